package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/parkpool-dev/parkpool/internal/calendar"
	"github.com/parkpool-dev/parkpool/internal/database"
	"github.com/parkpool-dev/parkpool/internal/env"
	"github.com/parkpool-dev/parkpool/internal/notify"
	"github.com/parkpool-dev/parkpool/internal/parking"
	"github.com/parkpool-dev/parkpool/internal/version"
)

var _cfgFile = flag.String("cfg", "", "path to config file")

func init() {
	flag.Parse()
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	err := run(logger)
	if err != nil {
		trace := string(debug.Stack())
		logger.Error(err.Error(), "trace", trace)
		os.Exit(1)
	}
}

type config struct {
	httpHost string
	httpPort int
	db       struct {
		dsn         string
		automigrate bool
	}
	notify struct {
		webhookURL string
	}
	calendarServ struct {
		baseURL string
	}
	engine parking.Config
}

type application struct {
	config config
	db     *database.DB
	engine *parking.Engine
	logger *slog.Logger
	wg     sync.WaitGroup
}

func run(logger *slog.Logger) error {
	var cfg config

	if *_cfgFile != "" {
		err := env.Load(*_cfgFile)
		if err != nil {
			return err
		}
	}

	cfg.httpHost = env.GetString("HTTP_HOST", "localhost")
	cfg.httpPort = env.GetInt("HTTP_PORT", 8080)
	cfg.db.dsn = env.GetString("DB_DSN", "postgres:postgres@localhost:5432/postgres")
	cfg.db.automigrate = env.GetBool("DB_AUTOMIGRATE", true)
	cfg.notify.webhookURL = env.GetString("NOTIFY_WEBHOOK_URL", "")
	cfg.calendarServ.baseURL = env.GetString("CALENDAR_BASE_URL", "")

	cfg.engine = parking.DefaultConfig()
	cfg.engine.TickInterval = env.GetDuration("SCHEDULER_INTERVAL", cfg.engine.TickInterval)
	cfg.engine.OfferDuration = env.GetDuration("OFFER_DURATION", cfg.engine.OfferDuration)
	cfg.engine.DayOffsetHours = env.GetInt("NEW_DAY_OFFSET_HOURS", cfg.engine.DayOffsetHours)
	cfg.engine.BaseWeight = env.GetInt("LOTTERY_BASE_WEIGHT", cfg.engine.BaseWeight)
	cfg.engine.CooldownDay = env.GetDuration("RELEASE_COOLDOWN_DAY", cfg.engine.CooldownDay)
	cfg.engine.CooldownEvening = env.GetDuration("RELEASE_COOLDOWN_EVENING", cfg.engine.CooldownEvening)
	cfg.engine.EveningFromHour = env.GetInt("EVENING_FROM_HOUR", cfg.engine.EveningFromHour)

	quietWindows, err := parseQuietWindows(env.GetString("QUIET_WINDOWS", ""))
	if err != nil {
		return err
	}
	cfg.engine.QuietWindows = quietWindows

	showVersion := flag.Bool("version", false, "display version and exit")

	flag.Parse()

	if *showVersion {
		fmt.Printf("version: %s\n", version.Get())
		return nil
	}

	db, err := database.New(cfg.db.dsn, cfg.db.automigrate)
	if err != nil {
		return err
	}
	defer db.Close()

	app := &application{
		config: cfg,
		db:     db,
		engine: buildEngine(logger, db, cfg),
		logger: logger,
	}

	return app.serveHTTP()
}

// buildEngine wires the allocation core to the DAOs. The transaction
// runner rebinds every DAO to one transaction so the rollover sequence is
// all-or-nothing.
func buildEngine(logger *slog.Logger, db *database.DB, cfg config) *parking.Engine {
	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	if cfg.notify.webhookURL != "" {
		notifier = notify.NewWebhookNotifier(logger, cfg.notify.webhookURL)
	}

	var classifier calendar.Classifier = calendar.Fallback{}
	if cfg.calendarServ.baseURL != "" {
		classifier = calendar.NewClient(logger, cfg.calendarServ.baseURL)
	}

	stores := storesFor(logger, db, nil)

	inTx := func(ctx context.Context, fn func(s parking.Stores) error) error {
		return db.InTx(ctx, func(tx database.Ext) error {
			return fn(storesFor(logger, db, tx))
		})
	}

	return parking.New(logger, stores, inTx, notifier, classifier, cfg.engine)
}

func storesFor(logger *slog.Logger, db *database.DB, tx database.Ext) parking.Stores {
	params := database.NewParamDAO(logger, db)
	drivers := database.NewDriverDAO(logger, db)
	spots := database.NewSpotDAO(logger, db)
	queue := database.NewQueueDAO(logger, db)
	reservations := database.NewReservationDAO(logger, db)

	if tx == nil {
		return parking.Stores{
			Params:       params,
			Drivers:      drivers,
			Spots:        spots,
			Queue:        queue,
			Reservations: reservations,
		}
	}

	return parking.Stores{
		Params:       params.WithTx(tx),
		Drivers:      drivers.WithTx(tx),
		Spots:        spots.WithTx(tx),
		Queue:        queue.WithTx(tx),
		Reservations: reservations.WithTx(tx),
	}
}

// parseQuietWindows parses a comma-separated list of "HH:MM-HH:MM" ranges.
func parseQuietWindows(s string) ([]parking.Window, error) {
	if s == "" {
		return nil, nil
	}

	var windows []parking.Window
	for _, part := range strings.Split(s, ",") {
		window, err := parking.ParseWindow(part)
		if err != nil {
			return nil, err
		}
		windows = append(windows, window)
	}

	return windows, nil
}
