// Package factory wires the record store, roster and admin identity from
// configuration.
package factory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"scrabble-bot/internal/admin"
	"scrabble-bot/internal/clock"
	"scrabble-bot/internal/config"
	"scrabble-bot/internal/identity"
	"scrabble-bot/internal/metrics"
	"scrabble-bot/internal/proof"
	"scrabble-bot/internal/roster"
	"scrabble-bot/internal/store"
	"scrabble-bot/internal/store/memory"
	redisstore "scrabble-bot/internal/store/redis"
	"scrabble-bot/internal/store/sheets"
)

// App contains all wired application components.
type App struct {
	Store    store.RecordStore
	Roster   *roster.Synchronizer
	Proof    proof.Channel
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry
	Clock    clock.Clock
	Logger   *slog.Logger

	// Directory is nil when no admin accounts are configured.
	Directory *identity.Directory

	closers []io.Closer
}

// New builds the store for cfg.StoreBackend and everything that sits on top
// of it. The roster is not started; call App.Start.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	a := &App{Clock: clock.New(), Logger: logger}

	switch cfg.StoreBackend {
	case config.BackendMemory, "":
		a.Store = memory.New(memory.WithClock(a.Clock), memory.WithUniqueColumn(store.ColEmail))
	case config.BackendRedis:
		rc := redisstore.DefaultConfig()
		rc.URL = cfg.RedisURL
		rc.Logger = logger
		rs, err := redisstore.New(rc)
		if err != nil {
			return nil, fmt.Errorf("redis store: %w", err)
		}
		a.Store = rs
		a.closers = append(a.closers, rs)
	case config.BackendSheets:
		sc, err := sheets.New(ctx, cfg.GoogleServiceAccountJSON, cfg.SpreadsheetID, cfg.SheetsPollInterval, logger)
		if err != nil {
			return nil, fmt.Errorf("sheets store: %w", err)
		}
		a.Store = sc
		a.closers = append(a.closers, sc)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	return a.wire(cfg)
}

// NewWithStore wires an App around an existing store.
func NewWithStore(cfg config.Config, st store.RecordStore, c clock.Clock, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	a := &App{Store: st, Clock: c, Logger: logger}
	return a.wire(cfg)
}

func (a *App) wire(cfg config.Config) (*App, error) {
	ch, err := proof.NewChannel(cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Proof = ch

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Registry)
	a.Roster = roster.New(a.Store, roster.WithLogger(a.Logger), roster.WithMetrics(a.Metrics))

	if len(cfg.AdminAccounts) > 0 {
		a.Directory = identity.NewDirectory(cfg.AdminAccounts, cfg.SessionSigningKey, cfg.SessionTTL, a.Clock)
	}
	return a, nil
}

// Start subscribes the roster to store changes and performs the first load.
func (a *App) Start(ctx context.Context) (release func(), err error) {
	return a.Roster.Start(ctx)
}

// IdentityProvider hands each admin chat its own session client, or returns
// nil when admin access is disabled.
func (a *App) IdentityProvider() func() admin.IdentityProvider {
	if a.Directory == nil {
		return nil
	}
	return func() admin.IdentityProvider { return a.Directory.NewClient() }
}

// Close releases the roster subscription and backend connections.
func (a *App) Close() error {
	if a.Roster != nil {
		a.Roster.Close()
	}
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}
