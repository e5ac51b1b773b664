// Package parking is the allocation core: the day rollover controller, the
// spot occupancy operations and the queue lottery scheduler.
package parking

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/parkpool-dev/parkpool/internal/calendar"
	"github.com/parkpool-dev/parkpool/internal/notify"
)

// app_params keys the engine reads and writes.
const (
	ParamCurrentDay             = "current_day"
	ParamCurrentDayIsWorkingDay = "current_day_is_working_day"
	ParamCurrentDayHoliday      = "current_day_holiday"
	ParamNewDayOffset           = "new_day_offset"
	ParamBaseWeight             = "lottery_base_weight"
)

const _dayLayout = "02.01.2006"

type Engine struct {
	logger   *slog.Logger
	stores   Stores
	inTx     TxRunner
	notifier notify.Notifier
	calendar calendar.Classifier
	cfg      Config

	locks *lockSet
	now   func() time.Time

	randMu sync.Mutex
	rng    *rand.Rand
}

type Option func(*Engine)

// WithClock substitutes the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRand substitutes the raffle's random source, for deterministic tests.
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) { e.rng = rng }
}

func New(
	logger *slog.Logger,
	stores Stores,
	inTx TxRunner,
	notifier notify.Notifier,
	classifier calendar.Classifier,
	cfg Config,
	opts ...Option,
) *Engine {
	e := &Engine{
		logger:   logger.With("module", "parking"),
		stores:   stores,
		inTx:     inTx,
		notifier: notifier,
		calendar: classifier,
		cfg:      cfg,
		locks:    newLockSet(),
		now:      time.Now,
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

func (e *Engine) intN(n int) int {
	e.randMu.Lock()
	defer e.randMu.Unlock()
	return e.rng.IntN(n)
}

// BusinessDay is today's date shifted by the configured hour offset, so the
// day rolls over at a handover-friendly time instead of midnight.
func (e *Engine) BusinessDay(ctx context.Context) (time.Time, error) {
	offset, err := e.intParam(ctx, ParamNewDayOffset, e.cfg.DayOffsetHours)
	if err != nil {
		return time.Time{}, err
	}

	return dateOf(e.now().Add(time.Duration(offset) * time.Hour)), nil
}

func (e *Engine) baseWeight(ctx context.Context) int {
	weight, err := e.intParam(ctx, ParamBaseWeight, e.cfg.BaseWeight)
	if err != nil {
		e.logger.Warn("failed to read base weight, using default", "error", err)
		return e.cfg.BaseWeight
	}

	return weight
}

func (e *Engine) intParam(ctx context.Context, key string, def int) (int, error) {
	value, err := e.stores.Params.Get(ctx, key, strconv.Itoa(def))
	if err != nil {
		return 0, err
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		e.logger.Warn("malformed int param, using default", "key", key, "value", value)
		return def, nil
	}

	return parsed, nil
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
