package app

import (
	"context"
	"log/slog"
	"net/http"

	"pulsemon/internal/alerts"
	"pulsemon/internal/checks"
	"pulsemon/internal/config"
	"pulsemon/internal/db"
	"pulsemon/internal/docker"
	"pulsemon/internal/heartbeat"
	"pulsemon/internal/netx"
	"pulsemon/internal/query"
	"pulsemon/internal/web"
)

type App struct {
	cfg config.Config
	log *slog.Logger

	repo       *db.Repository
	dispatcher *alerts.Dispatcher
	orch       *Orchestrator

	httpSrv *http.Server
}

func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	sqldb, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(sqldb); err != nil {
		return nil, err
	}
	repo := db.NewRepository(sqldb)

	net := netx.NewClient(cfg.DNSOverrideIP, cfg.InternalHostnames())
	dc := docker.NewClient(cfg.DockerSocket)
	checker := checks.NewChecker(net, dc, cfg.CheckTimeout)
	hb := heartbeat.NewClient(net, cfg.HeartbeatURL, cfg.HeartbeatSecret, cfg.HeartbeatTimeout, logger.With("module", "heartbeat"))
	webhook := alerts.NewWebhook(net, cfg.AlertWebhookURL, 5*cfg.CheckTimeout)
	dispatcher := alerts.NewDispatcher(webhook, logger.With("module", "alerts"))

	engine := query.NewEngine(repo, cfg.LoopInterval, cfg.TargetDataPoints)
	srv := web.NewServer(repo, engine, dc, logger.With("module", "web"))

	app := &App{
		cfg:        cfg,
		log:        logger,
		repo:       repo,
		dispatcher: dispatcher,
		orch:       NewOrchestrator(cfg, checker, dc, hb, repo, dispatcher, logger.With("module", "monitor")),
	}
	app.httpSrv = &http.Server{Addr: cfg.Addr, Handler: srv.Routes()}
	return app, nil
}

func (a *App) Run(ctx context.Context) error {
	if !a.cfg.HasHeartbeat() {
		a.log.Warn("HEARTBEAT_URL or SECRET_KEY not set, heartbeats disabled")
	}
	if a.cfg.AlertWebhookURL == "" {
		a.log.Warn("ALERT_WEBHOOK_URL not set, alerts will not be sent")
	}

	go func() {
		a.log.Info("http server listening", "addr", a.cfg.Addr)
		if err := a.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Error("http server failed", "err", err)
		}
	}()
	go a.dispatcher.Run(ctx)

	a.orch.Run(ctx)

	_ = a.httpSrv.Shutdown(context.Background())
	return a.repo.DB().Close()
}
