// Package ingester is the long-running process that ingests each platform's daily snapshot on
// its cron schedule.
package ingester

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/canopy-network/socialx/pkg/config"
	"github.com/canopy-network/socialx/pkg/db"
	"github.com/canopy-network/socialx/pkg/db/models/social"
	"github.com/canopy-network/socialx/pkg/db/postgres"
	"github.com/canopy-network/socialx/pkg/logging"
	"github.com/canopy-network/socialx/pkg/metrics"
	"github.com/canopy-network/socialx/pkg/redis"
	"github.com/canopy-network/socialx/pkg/scheduler"
	"github.com/canopy-network/socialx/pkg/utils"
	"github.com/go-jose/go-jose/v4/json"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type App struct {
	DB          *postgres.Client
	RedisClient *redis.Client

	// Scheduler owns the cron loop and the ingestion pipeline.
	Scheduler *scheduler.Scheduler

	Logger *zap.Logger

	// Server serves health, metrics and manual runs.
	Server *http.Server
}

// Initialize connects to Postgres (and Redis when enabled), ensures the schema and builds the
// scheduler from the jobs config.
func Initialize(ctx context.Context) (*App, error) {
	logger, err := logging.Named("ingester")
	if err != nil {
		// nothing else to do here, we'll just log to stderr
		panic(err)
	}

	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}

	client, err := db.NewClient(ctx, logger, "ingester")
	if err != nil {
		return nil, err
	}
	stores, err := db.EnsureSocialStores(ctx, logger, client, true)
	if err != nil {
		client.Close()
		return nil, err
	}

	sched := scheduler.New(cfg, stores, logger)
	sched.JobTimeout = utils.EnvDuration("JOB_TIMEOUT", scheduler.DefaultJobTimeout)

	app := &App{
		DB:        client,
		Scheduler: sched,
		Logger:    logger,
	}
	// only assign when present: a nil *redis.Client in an interface would not compare nil
	if rc := redis.NewOptional(ctx, logger); rc != nil {
		app.RedisClient = rc
		sched.Cache = rc
		sched.Events = rc
	}

	return app, nil
}

// SetupServer sets up the HTTP server.
func (a *App) SetupServer() {
	// use <ip>:<port> to bind to a specific interface or :<port> to bind to all interfaces
	addr := utils.Env("ADDR", ":3002")
	a.Server = &http.Server{
		Addr:              addr,
		Handler:           a.NewRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.Logger.Info("Starting server", zap.String("addr", addr))
}

// NewRouter exposes liveness, readiness, metrics and POST /jobs/{platform}/run.
func (a *App) NewRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(metrics.Middleware)

	r.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })).Methods("GET")
	r.Handle("/readyz", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.Ready(r.Context()) {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})).Methods("GET")
	r.Handle("/metrics", metrics.Handler()).Methods("GET")
	r.HandleFunc("/jobs/{platform}/run", a.HandleRun).Methods("POST")

	return r
}

// HandleRun runs one platform's pipeline synchronously and returns its result.
func (a *App) HandleRun(w http.ResponseWriter, r *http.Request) {
	catalog, ok := social.Lookup(mux.Vars(r)["platform"])
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown platform"})
		return
	}

	res, err := a.Scheduler.RunOnce(r.Context(), catalog.Platform)
	if err != nil {
		status := http.StatusInternalServerError
		msg := "ingestion failed"
		switch {
		case errors.Is(err, social.ErrScheduleConflict):
			status, msg = http.StatusConflict, err.Error()
		case errors.Is(err, social.ErrValidation):
			status, msg = http.StatusUnprocessableEntity, err.Error()
		}
		a.Logger.Warn("Manual ingestion failed", zap.String("platform", string(catalog.Platform)), zap.Error(err))
		writeJSON(w, status, map[string]string{"error": msg})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Ready reports whether Postgres and the stores are reachable.
func (a *App) Ready(ctx context.Context) bool {
	ready := true
	a.Scheduler.Stores.Range(func(_ string, store db.SocialStore) bool {
		if err := store.Ping(ctx); err != nil {
			ready = false
			return false
		}
		return true
	})
	return ready
}

// Start runs the optional start-up ingestion, starts cron and serves until ctx is done.
func (a *App) Start(ctx context.Context) error {
	if utils.EnvBool("RUN_ON_START", false) {
		for _, p := range social.Platforms() {
			if _, ok := a.Scheduler.Config.Job(p); !ok {
				continue
			}
			if _, err := a.Scheduler.RunOnce(ctx, p); err != nil {
				a.Logger.Error("Start-up ingestion failed", zap.String("platform", string(p)), zap.Error(err))
			}
		}
	}

	if err := a.Scheduler.Start(ctx); err != nil {
		return err
	}

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error("Server stopped", zap.Error(err))
		}
	}()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a.Scheduler.Stop(shutdownCtx)
	_ = a.Server.Shutdown(shutdownCtx)
	if a.RedisClient != nil {
		_ = a.RedisClient.Close()
	}
	a.DB.Close()

	a.Logger.Info("さようなら!")
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
