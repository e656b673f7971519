package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"github.com/nick-dorsch/projectpilot/internal/board"
	"github.com/nick-dorsch/projectpilot/internal/config"
	"github.com/nick-dorsch/projectpilot/internal/db"
	"github.com/nick-dorsch/projectpilot/internal/logging"
	"github.com/nick-dorsch/projectpilot/internal/reminder"
	"github.com/nick-dorsch/projectpilot/internal/slot"
	"github.com/nick-dorsch/projectpilot/internal/suggest"
)

// app holds what every command shares: the board store, the fired-reminder
// slot backend and a logger.
type app struct {
	cfg     *config.Config
	logger  *log.Logger
	store   *board.Store
	slots   slot.Store
	closers []func() error
}

// newApp wires the store and slot backend. When logFile is set the logger
// appends there instead of writing to w.
func newApp(ctx context.Context, cfg *config.Config, w io.Writer, logFile bool) (*app, error) {
	a := &app{cfg: cfg}

	opts := logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Timestamp: cfg.Log.Timestamp}
	if logFile && cfg.Log.File != "" {
		logger, closeLog, err := logging.NewFile(cfg.Log.File, opts)
		if err != nil {
			return nil, err
		}
		a.logger = logger
		a.closers = append(a.closers, closeLog)
	} else {
		a.logger = logging.New(w, opts)
	}

	slots, err := a.openSlots(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.slots = slots

	a.store = board.NewStore(board.SeedProject(time.Now()),
		board.WithUsers(board.DefaultUsers),
		board.WithLogger(a.logger.WithPrefix("board")),
	)
	a.closers = append(a.closers, func() error {
		a.store.Close()
		return nil
	})
	return a, nil
}

func (a *app) openSlots(ctx context.Context) (slot.Store, error) {
	switch a.cfg.Reminders.Backend {
	case config.SlotMemory:
		return slot.NewMemory(), nil

	case config.SlotRedis:
		client := redis.NewClient(&redis.Options{Addr: a.cfg.Reminders.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", a.cfg.Reminders.RedisAddr, err)
		}
		a.closers = append(a.closers, client.Close)
		a.logger.Debug("using redis slot backend", "addr", a.cfg.Reminders.RedisAddr)
		return slot.NewRedis(client, a.cfg.Reminders.RedisPrefix), nil

	default:
		database, err := db.Open(a.cfg.Reminders.DBPath)
		if err != nil {
			return nil, err
		}
		if err := database.Init(ctx); err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		a.closers = append(a.closers, database.Close)
		a.logger.Debug("using sqlite slot backend", "path", a.cfg.Reminders.DBPath)
		return slot.NewSQLite(database), nil
	}
}

func (a *app) runner() *suggest.Runner {
	s := suggest.New(suggest.Options{
		APIKey:    a.cfg.Suggest.APIKey,
		Endpoint:  a.cfg.Suggest.Endpoint,
		Model:     a.cfg.Suggest.Model,
		MockDelay: a.cfg.Suggest.MockDelay.Duration,
		Logger:    a.logger.WithPrefix("suggest"),
	})
	if _, ok := s.(suggest.Mock); ok {
		a.logger.Info("no API key configured, using mock suggestions")
	}
	return suggest.NewRunner(s, a.cfg.Suggest.Timeout.Duration, a.logger.WithPrefix("suggest"))
}

func (a *app) permissions() (perm, onRequest reminder.Permission, err error) {
	perm, err = reminder.ParsePermission(a.cfg.Notifications.Permission)
	if err != nil {
		return "", "", err
	}
	onRequest, err = reminder.ParsePermission(a.cfg.Notifications.OnRequest)
	if err != nil {
		return "", "", err
	}
	return perm, onRequest, nil
}

func (a *app) dispatcher(n reminder.Notifier) *reminder.Dispatcher {
	d := reminder.NewDispatcher(a.store, n, a.slots, a.logger.WithPrefix("remind"))
	d.Interval = a.cfg.Reminders.Interval.Duration
	return d
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
