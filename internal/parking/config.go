package parking

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	// TickInterval is how often the lottery scheduler wakes up.
	TickInterval time.Duration

	// OfferDuration is the acceptance window of a spot offer before it is
	// snapped out of quiet hours.
	OfferDuration time.Duration

	// DayOffsetHours shifts the business-day boundary away from midnight.
	// The app_params key "new_day_offset" overrides it at runtime.
	DayOffsetHours int

	// BaseWeight is the floor added to karma in the raffle. The app_params
	// key "lottery_base_weight" overrides it at runtime.
	BaseWeight int

	// CooldownDay/CooldownEvening delay a released spot's return to the
	// lottery; the evening value applies from EveningFromHour onward.
	CooldownDay     time.Duration
	CooldownEvening time.Duration
	EveningFromHour int

	// QuietWindows are the daily pauses during which the scheduler does
	// not run and no offer deadline may land.
	QuietWindows []Window
}

func DefaultConfig() Config {
	return Config{
		TickInterval:    time.Minute,
		OfferDuration:   30 * time.Minute,
		DayOffsetHours:  4,
		BaseWeight:      10,
		CooldownDay:     10 * time.Minute,
		CooldownEvening: 8 * time.Hour,
		EveningFromHour: 17,
	}
}

// Window is a daily time range in minutes of day. A window with To <= From
// wraps past midnight.
type Window struct {
	From int
	To   int
}

// ParseWindow parses a "HH:MM-HH:MM" range.
func ParseWindow(s string) (Window, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 2 {
		return Window{}, fmt.Errorf("invalid time window %q", s)
	}

	from, err := parseMinuteOfDay(parts[0])
	if err != nil {
		return Window{}, fmt.Errorf("invalid time window %q: %w", s, err)
	}

	to, err := parseMinuteOfDay(parts[1])
	if err != nil {
		return Window{}, fmt.Errorf("invalid time window %q: %w", s, err)
	}

	return Window{From: from, To: to}, nil
}

func parseMinuteOfDay(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}

	return t.Hour()*60 + t.Minute(), nil
}

func (w Window) Contains(t time.Time) bool {
	minute := t.Hour()*60 + t.Minute()

	if w.From <= w.To {
		return minute >= w.From && minute < w.To
	}

	return minute >= w.From || minute < w.To
}

// End returns the moment the window containing t closes.
func (w Window) End(t time.Time) time.Time {
	day := t
	minute := t.Hour()*60 + t.Minute()

	if w.From > w.To && minute >= w.From {
		day = day.AddDate(0, 0, 1)
	}

	return time.Date(day.Year(), day.Month(), day.Day(), w.To/60, w.To%60, 0, 0, t.Location())
}
