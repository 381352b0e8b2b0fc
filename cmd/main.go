package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ecobee_automation/internal/automation"
	"ecobee_automation/internal/config"
	"ecobee_automation/internal/handlers"
	"ecobee_automation/internal/logger"
	"ecobee_automation/internal/repository"
	"ecobee_automation/internal/repository/db"
	"ecobee_automation/internal/server"
	"ecobee_automation/internal/service"
)

const shutdownGrace = 10 * time.Second

func main() {
	// Bootstrap logger; recreated at the configured level once config loads.
	log := logger.New(logger.InfoLevel)

	cfg, err := config.Load("configs")
	if err != nil {
		log.Fatalw("error reading config", "err", err)
	}
	log = logger.New(cfg.LogLevel)

	sqlDB, err := db.InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer closeDB(sqlDB, log)

	repos := repository.NewRepository(sqlDB)
	services, session, err := buildServices(cfg, repos, log)
	if err != nil {
		log.Fatalw("failed to wire services", "err", err)
	}
	apiHandler := handlers.NewHandler(services, log.Named("http"))

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// background upkeep: diagnostic age sweeps and idle-session reaping
	go services.Maintenance.Run(ctx, cfg.Diagnostics.SweepInterval)

	srv := &server.Server{}
	runHTTPServer(srv, cfg.Port, apiHandler, log)

	waitForShutdown(cancel, srv, session, log)
}

// buildServices wires the automation stack and the composed service on top of
// it. The session manager is returned separately so shutdown can release the
// browser it owns.
func buildServices(cfg *config.Config, repos *repository.Repository, log *logger.Logger) (*service.Service, *automation.SessionManager, error) {
	selectors, err := automation.NewSelectorMap(cfg.Selectors)
	if err != nil {
		return nil, nil, err
	}

	session := automation.NewSessionManager(cfg.Portal, cfg.Credentials, cfg.Thermostats,
		selectors, log.Named("session"))
	collector := automation.NewCollector(cfg.Diagnostics.Enabled, cfg.Diagnostics.Dir,
		cfg.Diagnostics.MaxArtifacts, cfg.Diagnostics.MaxAge, repos.Artifacts, log.Named("diagnostics"))
	retry := automation.NewRetryPolicy(cfg.Retry, collector, session, log.Named("retry"))
	status := automation.NewStatusReader(session, log.Named("status"))
	modes := automation.NewModeController(session, status, retry, log.Named("mode"))
	temps := automation.NewTemperatureController(session, status, retry, log.Named("temperature"))

	svc := service.NewService(service.Deps{
		Repos:     repos,
		Session:   session,
		Modes:     modes,
		Temps:     temps,
		Status:    status,
		Retry:     retry,
		Collector: collector,
		Cfg:       cfg,
		Log:       log,
	})
	return svc, session, nil
}

func closeDB(sqlDB *sql.DB, log *logger.Logger) {
	if err := sqlDB.Close(); err != nil {
		log.Errorw("failed to close sqlite", "err", err)
	}
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		if err := srv.Run(port, handler.InitRoutes()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and performs graceful
// shutdown: stop background loops, drain in-flight requests, then release the
// portal browser.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, session *automation.SessionManager, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	// stop background goroutines
	cancel()

	// allow in-flight requests to complete
	ctx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "err", err)
	}

	if err := session.Close(); err != nil {
		log.Errorw("failed to release browser session", "err", err)
	}
}
