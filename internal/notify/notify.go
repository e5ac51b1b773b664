// Package notify is the delivery boundary of the engine. Implementations
// must never fail the caller: delivery problems are reported as false and
// logged, nothing more.
package notify

import (
	"context"
	"log/slog"

	"github.com/parkpool-dev/parkpool/internal/model"
)

type Event string

const (
	EventNewDay        Event = "new_day"
	EventNewHoliday    Event = "new_holiday"
	EventOffer         Event = "offer"
	EventOfferMissed   Event = "offer_missed"
	EventSpotOccupied  Event = "spot_occupied"
	EventSpotReleased  Event = "spot_released"
	EventSpotFreeToday Event = "spot_free_today"
	EventKarmaDrawn    Event = "karma_drawn"
)

// Args are the structured facts a presentation collaborator renders into
// user-facing text. The engine never formats messages itself.
type Args map[string]any

type Notifier interface {
	Notify(ctx context.Context, event Event, from, to model.Driver, args Args) bool
}

// LogNotifier is the development fallback: every event is only logged and
// counts as delivered.
type LogNotifier struct {
	Logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{Logger: logger.With("module", "notify")}
}

func (n *LogNotifier) Notify(_ context.Context, event Event, from, to model.Driver, args Args) bool {
	n.Logger.Info("notification",
		"event", string(event),
		"fromDriver", from.ID,
		"toDriver", to.ID,
		"args", map[string]any(args),
	)
	return true
}
