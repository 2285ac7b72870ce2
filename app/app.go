/*
Package app assembles the records engine from a Config.

PURPOSE:
  The server and the CLI need the same object graph: a store, the stale
  view sinks, one reconciler and the domain services on top of it. This
  package builds that graph once so both binaries stay thin.

WIRING:
  config ──▶ store (sqlite | postgres)
         ──▶ marker: cache.Memory  [+ cache.Redis when configured]
         ──▶ generic.Reconciler ──▶ academic / finance / attendance
         ──▶ roster, permission, export

SEE ALSO:
  - cmd/server/main.go, cmd/recordsctl: Callers
*/
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/warp/records-engine/academic"
	"github.com/warp/records-engine/attendance"
	"github.com/warp/records-engine/cache"
	"github.com/warp/records-engine/config"
	"github.com/warp/records-engine/export"
	"github.com/warp/records-engine/factory"
	"github.com/warp/records-engine/finance"
	"github.com/warp/records-engine/generic"
	"github.com/warp/records-engine/permission"
	"github.com/warp/records-engine/roster"
	"github.com/warp/records-engine/store/postgres"
	"github.com/warp/records-engine/store/sqlite"
)

// App is the assembled engine.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Gateway generic.Gateway

	Views  *cache.Memory
	Shared *cache.Redis // nil unless redis is configured

	Reconciler *generic.Reconciler
	Roster     *roster.Service
	Academic   *academic.Service
	Finance    *finance.Service
	Attendance *attendance.Service
	Permission *permission.Service
	Export     *export.Service
	Factory    *factory.SubmissionFactory

	closers []func()
}

// New opens the configured store and builds every service.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	gw, closeStore, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}
	return Build(cfg, gw, generic.SystemClock, logger, closeStore), nil
}

// Build wires services over an already opened gateway.
func Build(cfg *config.Config, gw generic.Gateway, clock generic.Clock, logger *slog.Logger, closers ...func()) *App {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{
		Config:  cfg,
		Logger:  logger,
		Gateway: gw,
		Views:   cache.NewMemory(clock),
		Factory: factory.NewSubmissionFactory(),
		closers: closers,
	}

	var marker generic.StaleMarker = a.Views
	if cfg.Redis.Enabled() {
		a.Shared = cache.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			cfg.Redis.Prefix, cfg.Redis.TTL(), logger)
		marker = cache.Fanout{a.Views, a.Shared}
		a.closers = append(a.closers, func() { _ = a.Shared.Close() })
	}

	a.Reconciler = generic.NewReconciler(gw, marker, clock, logger)
	a.Roster = roster.NewService(gw, clock, logger)

	a.Academic = academic.NewService(a.Reconciler)
	a.Academic.GradeStrategy = cfg.Reconcile.GradeStrategy
	a.Academic.TahfidzStrategy = cfg.Reconcile.TahfidzStrategy

	a.Finance = finance.NewService(a.Reconciler, gw, clock, logger)
	a.Finance.Strategy = cfg.Reconcile.PaymentStrategy

	a.Attendance = attendance.NewService(a.Reconciler)
	a.Permission = permission.NewService(gw, marker, clock, logger)
	a.Export = export.NewService(gw)
	return a
}

// Services exposes the batch services to the submission factory.
func (a *App) Services() factory.Services {
	return factory.Services{
		Academic:   a.Academic,
		Finance:    a.Finance,
		Attendance: a.Attendance,
	}
}

// Scheduler builds the monthly billing scheduler from the billing config.
func (a *App) Scheduler() *finance.MonthlyScheduler {
	b := a.Config.Billing
	s := finance.NewMonthlyScheduler(a.Finance, b.Category, b.AmountDecimal())
	s.Enabled = b.Enabled
	s.CheckInterval = b.Interval()
	return s
}

// Listen mirrors invalidations published by other instances into Views.
// It blocks until ctx is done and returns nil when redis is not configured.
func (a *App) Listen(ctx context.Context) error {
	if a.Shared == nil {
		return nil
	}
	return a.Shared.Listen(ctx, a.Views)
}

// Health pings the store (when it supports it) and redis.
func (a *App) Health(ctx context.Context) error {
	var errs []error
	if hc, ok := a.Gateway.(interface{ HealthCheck(context.Context) error }); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}
	if a.Shared != nil {
		if err := a.Shared.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

// ErrResetUnsupported is returned by Reset for stores that cannot be wiped.
var ErrResetUnsupported = errors.New("store does not support reset")

// Reset wipes every table of the store.
func (a *App) Reset(ctx context.Context) error {
	r, ok := a.Gateway.(interface{ Reset(context.Context) error })
	if !ok {
		return ErrResetUnsupported
	}
	if err := r.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset store: %w", err)
	}
	a.Logger.Warn("store_reset")
	return nil
}

// Close releases the store and redis connections.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func openStore(ctx context.Context, sc config.StoreConfig, logger *slog.Logger) (generic.Gateway, func(), error) {
	switch sc.Driver {
	case config.DriverPostgres:
		s, err := postgres.New(ctx, sc.PostgresURL, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		return s, s.Close, nil
	default:
		s, err := sqlite.New(sc.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	}
}
