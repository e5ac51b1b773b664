package model

import "time"

type ID = uint

// SpotStatus is the transient daily state of a parking spot. A NULL status
// in the database (nil pointer here) means "unset": free by default until
// somebody acts on the spot.
type SpotStatus string

const (
	SpotFree                 SpotStatus = "free"
	SpotOccupied             SpotStatus = "occupied"
	SpotOccupiedWithoutClaim SpotStatus = "occupied_without_claim"
	SpotHidden               SpotStatus = "hidden"
)

type Driver struct {
	ID        ID        `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`

	Username string `json:"username" db:"username"`
	FullName string `json:"fullName" db:"full_name"`

	Karma       int `json:"karma" db:"karma"`
	ExtraWeight int `json:"extraWeight" db:"extra_weight"`

	// DrawAllowance is primed with a random value at every day rollover and
	// set to -1 once the driver has taken their daily karma draw.
	DrawAllowance int `json:"drawAllowance" db:"draw_allowance"`

	AbsentUntil *time.Time `json:"absentUntil,omitempty" db:"absent_until"`
	Enabled     bool       `json:"enabled" db:"enabled"`
}

// Present reports whether the driver is around on the given day.
// AbsentUntil is the absence end, exclusive.
func (d Driver) Present(day time.Time) bool {
	return d.AbsentUntil == nil || !d.AbsentUntil.After(day)
}

type ParkingSpot struct {
	ID ID `json:"id" db:"id"`

	Status          *SpotStatus `json:"status,omitempty" db:"status"`
	CurrentDriverID *ID         `json:"currentDriverId,omitempty" db:"current_driver_id"`

	// QueueEligibleAfter keeps the lottery from re-offering a spot right
	// after its owner released it.
	QueueEligibleAfter *time.Time `json:"queueEligibleAfter,omitempty" db:"queue_eligible_after"`
}

// Hidden spots are out of rotation regardless of the daily cycle.
func (s ParkingSpot) Hidden() bool {
	return s.Status != nil && *s.Status == SpotHidden
}

func (s ParkingSpot) Occupied() bool {
	return s.Status != nil &&
		(*s.Status == SpotOccupied || *s.Status == SpotOccupiedWithoutClaim)
}

// Reservation is a standing claim on a spot for a weekday.
// DayOfWeek follows time.Weekday: 0 is Sunday.
type Reservation struct {
	ID        ID  `json:"id" db:"id"`
	DayOfWeek int `json:"dayOfWeek" db:"day_of_week"`

	SpotID   ID `json:"spotId" db:"spot_id"`
	DriverID ID `json:"driverId" db:"driver_id"`
}

// QueueEntry is one waiting driver. A non-nil SpotID together with
// ChooseBefore is a pending offer.
type QueueEntry struct {
	ID        ID        `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	DriverID ID `json:"driverId" db:"driver_id"`

	SpotID       *ID        `json:"spotId,omitempty" db:"spot_id"`
	ChooseBefore *time.Time `json:"chooseBefore,omitempty" db:"choose_before"`
}

// HasLiveOffer reports whether the entry carries an offer that has not
// expired yet at the given moment.
func (e QueueEntry) HasLiveOffer(now time.Time) bool {
	return e.SpotID != nil && e.ChooseBefore != nil && e.ChooseBefore.After(now)
}

type AppParam struct {
	ID          ID      `json:"id" db:"id"`
	Key         string  `json:"key" db:"key"`
	Value       string  `json:"value" db:"value"`
	Description *string `json:"description,omitempty" db:"description"`
}
