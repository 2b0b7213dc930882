package main

import (
	"context"
	"fmt"

	"github.com/yazid-hub/GMOA/internal/auth"
	"github.com/yazid-hub/GMOA/internal/blob"
	"github.com/yazid-hub/GMOA/internal/checklist"
	"github.com/yazid-hub/GMOA/internal/clock"
	"github.com/yazid-hub/GMOA/internal/config"
	"github.com/yazid-hub/GMOA/internal/db"
	"github.com/yazid-hub/GMOA/internal/directory"
	"github.com/yazid-hub/GMOA/internal/logging"
	"github.com/yazid-hub/GMOA/internal/media"
	"github.com/yazid-hub/GMOA/internal/notify"
	"github.com/yazid-hub/GMOA/internal/observability"
	"github.com/yazid-hub/GMOA/internal/plan"
	"github.com/yazid-hub/GMOA/internal/repair"
	"github.com/yazid-hub/GMOA/internal/report"
	"github.com/yazid-hub/GMOA/internal/sequence"
	"github.com/yazid-hub/GMOA/internal/workorder"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// app is the wired set of services behind one command invocation.
type app struct {
	cfg      *config.Config
	db       *gorm.DB
	log      *zap.Logger
	actorID  string
	users    *directory.Users
	assets   *directory.Assets
	outbox   *notify.Outbox
	tpls     *checklist.Service
	orders   *workorder.Service
	reports  *report.Service
	media    *media.Service
	repairs  *repair.Service
	plans    *plan.Service
	shutdown []func(context.Context) error
}

// connectFromConfig loads the config file and opens the database.
func connectFromConfig(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return cfg, gormDB, nil
}

// openApp connects to the database and builds every service from the config.
func openApp(ctx context.Context, g *globals) (*app, error) {
	cfg, gormDB, err := connectFromConfig(g.configPath)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, db: gormDB, log: logging.New(cfg.Logging), actorID: g.actorID}

	stopTracer, err := observability.InitTracer(ctx, cfg.Tracing, a.log)
	if err != nil {
		a.log.Warn("tracing unavailable", zap.Error(err))
	}
	a.shutdown = append(a.shutdown, stopTracer)

	seq, err := a.sequence(ctx)
	if err != nil {
		a.close()
		return nil, err
	}
	store, err := blob.NewDirStore(cfg.Media.Root)
	if err != nil {
		a.close()
		return nil, err
	}

	clk := clock.Real{}
	a.users = directory.NewUsers(gormDB)
	a.assets = directory.NewAssets(gormDB)
	gate := auth.NewGate(a.users)
	notifier := a.notifier()

	a.tpls = checklist.NewService(gormDB, gate, clk, cfg.Features, a.log)
	a.orders = workorder.NewService(gormDB, gate, clk, cfg.Workflow, notifier, a.log)
	a.reports = report.NewService(gormDB, gate, clk, cfg.Workflow, a.log)
	a.media = media.NewService(gormDB, gate, store, clk, cfg.Workflow, a.log)
	a.repairs = repair.NewService(gormDB, gate, seq, clk, cfg, notifier, a.log)
	a.plans = plan.NewService(gormDB, gate, a.orders, clk, a.log)
	return a, nil
}

func (a *app) sequence(ctx context.Context) (sequence.Generator, error) {
	if a.cfg.Sequence.Backend != "redis" {
		return sequence.NewDBCounter(a.db), nil
	}
	client, err := sequence.NewRedisClient(ctx, a.cfg.Sequence.RedisAddr, a.cfg.Sequence.RedisDB)
	if err != nil {
		return nil, err
	}
	a.shutdown = append(a.shutdown, func(context.Context) error { return client.Close() })
	return sequence.NewRedisCounter(client), nil
}

// notifier builds the sink fan-out. A misconfigured webhook disables that
// sink only.
func (a *app) notifier() *notify.Notifier {
	sinks := []notify.Sink{notify.NewLogSink(a.log)}
	if a.cfg.Notify.Outbox {
		a.outbox = notify.NewOutbox(a.db, a.users)
		sinks = append(sinks, a.outbox)
	}
	if a.cfg.Notify.SlackWebhook != "" {
		sinks = append(sinks, notify.NewSlackSink(a.cfg.Notify.SlackWebhook))
	}
	if a.cfg.Notify.DiscordWebhook != "" {
		s, err := notify.NewDiscordSink(a.cfg.Notify.DiscordWebhook)
		if err != nil {
			a.log.Warn("discord sink disabled", zap.Error(err))
		} else {
			sinks = append(sinks, s)
		}
	}
	return notify.New(a.log, sinks...)
}

// actor resolves the --as user.
func (a *app) actor(ctx context.Context) (auth.Actor, error) {
	if a.actorID == "" {
		return auth.Actor{}, fmt.Errorf("no acting user: pass --as or set GMAO_USER")
	}
	return a.users.Actor(ctx, a.actorID)
}

func (a *app) close() {
	for i := len(a.shutdown) - 1; i >= 0; i-- {
		if err := a.shutdown[i](context.Background()); err != nil {
			a.log.Warn("shutdown", zap.Error(err))
		}
	}
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
	a.log.Sync()
}

// withApp opens the app, runs fn and closes it.
func withApp(ctx context.Context, g *globals, fn func(a *app) error) error {
	a, err := openApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}

// withActor is withApp for operations performed on behalf of a user.
func withActor(ctx context.Context, g *globals, fn func(a *app, actor auth.Actor) error) error {
	return withApp(ctx, g, func(a *app) error {
		actor, err := a.actor(ctx)
		if err != nil {
			return err
		}
		return fn(a, actor)
	})
}
