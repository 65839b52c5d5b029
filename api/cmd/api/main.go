package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"mold-inspection-backend/api/internal/middleware"
	"mold-inspection-backend/api/internal/repos"
	"mold-inspection-backend/api/internal/scheduling"
	"mold-inspection-backend/shared/authx"
	"mold-inspection-backend/shared/cachex"
	"mold-inspection-backend/shared/config"
	"mold-inspection-backend/shared/dbx"
	"mold-inspection-backend/shared/httpx"
	"mold-inspection-backend/shared/logx"
	"mold-inspection-backend/shared/metricsx"
	"mold-inspection-backend/shared/observability"
)

type statusResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Env     string `json:"env,omitempty"`
	Version string `json:"version,omitempty"`
}

func main() {
	cfg, readyProblems := config.Load("api", 8080)
	version := strings.TrimSpace(os.Getenv("VERSION"))
	logger := logx.New(cfg.ServiceName, cfg.Env, version, cfg.LogLevel)
	metricsx.Register()

	if cfg.DatabaseURL == "" {
		readyProblems = append(readyProblems, config.Problem{Field: "DATABASE_URL", Message: "DATABASE_URL is required"})
	}

	var shutdownTracer func(context.Context) error
	if cfg.OtelEnabled {
		var err error
		shutdownTracer, err = observability.InitTracer(context.Background(), observability.TracerConfig{
			ServiceName: cfg.ServiceName,
			Env:         cfg.Env,
			Endpoint:    cfg.OtelEndpoint,
			Insecure:    cfg.OtelInsecure,
			SampleRatio: cfg.OtelSampleRatio,
		})
		if err != nil {
			logger.Error(context.Background(), "otel_init_failed", "otel init failed",
				slog.String("error_code", "FAILED_PRECONDITION"),
				slog.String("error", err.Error()),
			)
		}
	}

	var dbPool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		var err error
		dbPool, err = dbx.NewPool(cfg)
		if err != nil {
			readyProblems = append(readyProblems, config.Problem{Field: "DATABASE_URL", Message: "failed to connect to database"})
			logger.Error(context.Background(), "db_init_failed", "database init failed",
				slog.String("error_code", "FAILED_PRECONDITION"),
				slog.String("error", err.Error()),
			)
		}
	}

	var cacheClient *cachex.Client
	if cfg.RedisAddr != "" {
		var err error
		cacheClient, err = cachex.New(cfg)
		if err != nil {
			logger.Warn(context.Background(), "redis_init_failed", "redis init failed",
				slog.String("error_code", "FAILED_PRECONDITION"),
				slog.String("error", err.Error()),
			)
		}
	}

	var verifier *authx.JWTVerifier
	if cfg.OIDCIssuer != "" && cfg.OIDCAudience != "" {
		var err error
		verifier, err = authx.NewJWTVerifier(cfg.OIDCIssuer, cfg.OIDCAudience, cfg.OIDCJWKSURL, cfg.JWKSTTLSeconds, cfg.JWTClockSkewSec)
		if err != nil {
			readyProblems = append(readyProblems, config.Problem{Field: "OIDC_ISSUER", Message: "failed to initialize JWT verifier"})
		}
	}

	catalogRepo := repos.NewCatalogRepo(dbPool)
	checklistsRepo := repos.NewChecklistsRepo(dbPool)
	schedulesRepo := repos.NewSchedulesRepo(dbPool)
	alertsRepo := repos.NewAlertsRepo(dbPool)
	thresholdsRepo := repos.NewThresholdsRepo(dbPool)
	equipmentRepo := repos.NewEquipmentRepo(dbPool)
	inspectionsRepo := repos.NewInspectionsRepo(dbPool)
	outboxRepo := repos.NewOutboxRepo(dbPool)
	auditRepo := repos.NewAuditRepo(dbPool)

	snapshotTTL := time.Duration(cfg.SnapshotCacheSec) * time.Second
	snapshots := scheduling.NewSnapshotProvider(checklistsRepo, cacheClient, snapshotTTL)
	ruleStore := scheduling.NewRuleStore(thresholdsRepo, cacheClient, cfg)
	service := scheduling.NewService(dbPool, equipmentRepo, inspectionsRepo, schedulesRepo, alertsRepo, outboxRepo, snapshots, logger)

	srv := &apiServer{
		cfg:        cfg,
		logger:     logger,
		catalog:    catalogRepo,
		checklists: checklistsRepo,
		schedules:  schedulesRepo,
		alerts:     alertsRepo,
		thresholds: thresholdsRepo,
		equipment:  equipmentRepo,
		outbox:     outboxRepo,
		snapshots:  snapshots,
		rules:      ruleStore,
		service:    service,
		inspRepo:   inspectionsRepo,
		asynqOpt: asynq.RedisClientOpt{
			Addr:     cfg.AsynqRedisAddr,
			Password: cfg.AsynqRedisPass,
			DB:       cfg.AsynqRedisDB,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, statusResponse{
			Status:  "ok",
			Service: cfg.ServiceName,
			Env:     cfg.Env,
			Version: version,
		})
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if len(readyProblems) > 0 {
			httpx.WriteError(
				w,
				r,
				http.StatusServiceUnavailable,
				"FAILED_PRECONDITION",
				"service not ready: invalid configuration",
				map[string]any{"problems": readyProblems},
			)
			return
		}
		if err := dbx.Ping(r.Context(), dbPool); err != nil {
			httpx.WriteError(
				w,
				r,
				http.StatusServiceUnavailable,
				"FAILED_PRECONDITION",
				"service not ready: database unavailable",
				map[string]any{"problem": "db_ping_failed"},
			)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, statusResponse{
			Status:  "ready",
			Service: cfg.ServiceName,
			Env:     cfg.Env,
			Version: version,
		})
	})
	mux.Handle("GET /metrics", metricsx.Handler())

	mux.HandleFunc("GET /api/v1/me", func(w http.ResponseWriter, r *http.Request) {
		auth, ok := authx.FromContext(r.Context())
		if !ok {
			httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "missing auth context", nil)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"subject": auth.Subject,
			"email":   auth.Email,
			"name":    auth.Name,
			"roles":   auth.Roles,
		})
	})

	authorOnly := middleware.RequireRole(authx.RoleAuthor)
	approverOnly := middleware.RequireRole(authx.RoleApprover)
	inspectorOnly := middleware.RequireRole(authx.RoleInspector)
	adminOnly := middleware.RequireRole(authx.RoleAdmin)

	mux.Handle("POST /api/v1/items", authorOnly(http.HandlerFunc(srv.createItem)))
	mux.HandleFunc("GET /api/v1/items", srv.listItems)
	mux.HandleFunc("GET /api/v1/items/{id}", srv.getItem)
	mux.Handle("POST /api/v1/cycles", authorOnly(http.HandlerFunc(srv.createCycle)))
	mux.HandleFunc("GET /api/v1/cycles", srv.listCycles)
	mux.HandleFunc("GET /api/v1/cycles/{id}", srv.getCycle)

	mux.Handle("POST /api/v1/checklists", authorOnly(http.HandlerFunc(srv.createChecklist)))
	mux.HandleFunc("GET /api/v1/checklists", srv.listChecklists)
	mux.HandleFunc("GET /api/v1/checklists/deployed", srv.getDeployedChecklist)
	mux.HandleFunc("GET /api/v1/checklists/{id}", srv.getChecklist)
	mux.HandleFunc("GET /api/v1/checklists/{id}/items", srv.listChecklistMappings)
	mux.Handle("PATCH /api/v1/checklists/{id}", authorOnly(http.HandlerFunc(srv.updateChecklist)))
	mux.Handle("POST /api/v1/checklists/{id}/submit", authorOnly(http.HandlerFunc(srv.submitChecklist)))
	mux.Handle("POST /api/v1/checklists/{id}/approve", approverOnly(http.HandlerFunc(srv.approveChecklist)))
	mux.Handle("POST /api/v1/checklists/{id}/deploy", approverOnly(http.HandlerFunc(srv.deployChecklist)))
	mux.Handle("POST /api/v1/checklists/{id}/clone", authorOnly(http.HandlerFunc(srv.cloneChecklist)))

	mux.HandleFunc("GET /api/v1/equipment", srv.listEquipment)
	mux.HandleFunc("GET /api/v1/equipment/{id}", srv.getEquipment)
	mux.Handle("PATCH /api/v1/equipment/{id}", adminOnly(http.HandlerFunc(srv.setEquipmentActive)))

	mux.HandleFunc("GET /api/v1/schedules", srv.listSchedules)
	mux.HandleFunc("GET /api/v1/schedules/summary", srv.scheduleSummary)

	mux.HandleFunc("GET /api/v1/alerts", srv.listAlerts)
	mux.HandleFunc("GET /api/v1/alerts/{id}", srv.getAlert)
	mux.Handle("POST /api/v1/alerts/{id}/resolve", inspectorOnly(http.HandlerFunc(srv.resolveAlert)))

	mux.HandleFunc("GET /api/v1/threshold-rules", srv.listRules)
	mux.HandleFunc("GET /api/v1/threshold-rules/{key}", srv.getRule)
	mux.Handle("PUT /api/v1/threshold-rules/{key}", adminOnly(http.HandlerFunc(srv.setRule)))

	mux.Handle("POST /api/v1/inspections", inspectorOnly(http.HandlerFunc(srv.startInspection)))
	mux.HandleFunc("GET /api/v1/inspections/{id}", srv.getInspection)
	mux.Handle("PATCH /api/v1/inspections/{id}/items/{itemId}", inspectorOnly(http.HandlerFunc(srv.updateRunItem)))
	mux.Handle("POST /api/v1/inspections/{id}/complete", inspectorOnly(http.HandlerFunc(srv.completeInspection)))

	mux.Handle("POST /api/v1/recalculate", adminOnly(http.HandlerFunc(srv.triggerRecalc)))

	notFound := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
	})

	skipInfra := func(r *http.Request) bool {
		return r.URL.Path == "/healthz" || r.URL.Path == "/readyz" || r.URL.Path == "/metrics"
	}

	handler := httpx.WrapServeMux(mux, notFound)
	handler = middleware.DBRequiredMiddleware{
		Pool: dbPool,
		Skip: skipInfra,
	}.Wrap(handler)
	handler = middleware.AuditMiddleware{
		Enabled: cfg.AuditEnabled,
		Repo:    auditRepo,
		Logger:  logger,
		Skip:    skipInfra,
	}.Wrap(handler)
	handler = middleware.AuthMiddleware{
		Verifier: verifier,
		Skip:     skipInfra,
	}.Wrap(handler)
	handler = middleware.RateLimitMiddleware{
		Limiter: middleware.NewIPRateLimiter(50, 100, 10*time.Minute),
		Skip:    skipInfra,
	}.Wrap(handler)
	handler = middleware.CORSMiddleware{
		AllowedOrigins: splitCSV(os.Getenv("CORS_ALLOWED_ORIGINS")),
		Skip:           skipInfra,
	}.Wrap(handler)
	handler = httpx.WithTimeout(cfg.RequestTimeout, handler)
	handler = httpx.WithRequestID(handler)
	handler = httpx.WithRecover(logger, handler)
	handler = httpx.WithRequestLog(logger, httpx.RequestLogOptions{SkipPaths: map[string]bool{"/healthz": true, "/metrics": true}}, handler)
	handler = metricsx.Instrument(handler)
	if cfg.OtelEnabled {
		handler = otelhttp.NewHandler(handler, "http.server")
	}

	server := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cfg.HTTPPort)),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "service_start", "starting service",
			slog.String("addr", server.Addr),
			slog.Int("http_port", cfg.HTTPPort),
			slog.String("log_level", cfg.LogLevel),
			slog.Int("request_timeout_ms", cfg.RequestTimeoutMS),
		)
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info(context.Background(), "shutdown_signal", "received signal", slog.String("signal", sig.String()))
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "server_failed", "server failed",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(context.Background(), "shutdown_failed", "shutdown failed",
			slog.String("error_code", "INTERNAL_ERROR"),
			slog.String("error", err.Error()),
		)
	}
	if shutdownTracer != nil {
		_ = shutdownTracer(context.Background())
	}
	if cacheClient != nil {
		cacheClient.Close()
	}
	if dbPool != nil {
		dbPool.Close()
	}
	logger.Info(context.Background(), "service_stop", "service stopped")
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
