package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"

	"aegis/internal/authz"
	authzhandler "aegis/internal/authz/handler"
	authzmetrics "aegis/internal/authz/metrics"
	"aegis/internal/authz/remote"
	jwttoken "aegis/internal/jwt_token"
	"aegis/internal/platform/config"
	"aegis/internal/platform/httpserver"
	"aegis/internal/platform/logger"
	"aegis/internal/platform/metrics"
	"aegis/internal/platform/middleware"
	platformredis "aegis/internal/platform/redis"
	"aegis/internal/policy"
	policyhandler "aegis/internal/policy/handler"
	policymetrics "aegis/internal/policy/metrics"
	policyservice "aegis/internal/policy/service"
	assignmentstore "aegis/internal/policy/store/assignment"
	versionstore "aegis/internal/policy/store/version"
	httptransport "aegis/internal/transport/http"
	"aegis/pkg/platform/audit"
	auditpublisher "aegis/pkg/platform/audit/publisher"
	auditmemory "aegis/pkg/platform/audit/store/memory"
	auditpostgres "aegis/pkg/platform/audit/store/postgres"
	"aegis/pkg/platform/circuit"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	registry := buildRegistry()

	var (
		db          *sql.DB
		versions    policyservice.VersionStore
		assignments policyservice.AssignmentStore
		policyTx    policyservice.StoreTx
		auditStore  audit.Store
	)
	if cfg.Database.URL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			return err
		}
		pgVersions := versionstore.NewPostgres(db)
		versions = pgVersions
		assignments = assignmentstore.NewPostgres(db)
		policyTx = newPolicyPostgresTx(db, pgVersions)
		auditStore = auditpostgres.New(db)
		log.Info("using postgres policy store")
	} else {
		memVersions := versionstore.NewInMemoryStore()
		versions = memVersions
		assignments = assignmentstore.NewInMemoryStore(memVersions.GetDefault)
		policyTx = newPolicyMemoryTx(memVersions)
		auditStore = auditmemory.NewInMemoryStore()
		log.Warn("no database configured, using in-memory policy store")
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	auditPub := auditpublisher.NewPublisher(auditStore,
		auditpublisher.WithAsyncBuffer(cfg.Audit.AsyncBuffer),
		auditpublisher.WithLogger(log),
	)
	defer auditPub.Close()

	var decisionCache remote.Cache
	if redisClient != nil {
		decisionCache = remote.NewRedisCache(redisClient.Client, "", log)
	} else {
		decisionCache = remote.NewMemoryCache()
	}

	authzMetrics := authzmetrics.New()

	authority := remote.NewResilient(
		remote.NewHTTPClient(cfg.Authority.BaseURL, cfg.Authority.ServiceName, cfg.Authority.ServiceToken,
			remote.WithHTTPClient(&http.Client{Timeout: cfg.Authority.Timeout}),
			remote.WithHTTPLogger(log),
		),
		decisionCache,
		circuit.New("policy-authority"),
		remote.WithLogger(log),
		remote.WithAuditPublisher(auditPub),
		remote.WithTTLs(cfg.Authority.AllowTTL, cfg.Authority.DenyTTL),
		remote.WithMaxAttempts(cfg.Authority.MaxAttempts),
		remote.WithMetrics(authzMetrics),
	)

	authzSvc := authz.NewService(authz.NewResolver(), authority,
		authz.WithLogger(log),
		authz.WithAuditPublisher(auditPub),
		authz.WithMetrics(authzMetrics),
	)

	policySvc := policyservice.NewVersionService(
		versions,
		assignments,
		policyTx,
		policy.NewCompiler(registry, log),
		policy.NewEngine(log),
		policyservice.WithLogger(log),
		policyservice.WithAuditPublisher(auditPub),
		policyservice.WithMetrics(policymetrics.New()),
	)

	jwtSvc := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
	adminGuard := middleware.Guard(authzSvc, "admin", "manage", log)

	router := httptransport.NewRouter(log, metrics.New(),
		func() error {
			if db != nil {
				if err := db.Ping(); err != nil {
					return err
				}
			}
			if redisClient != nil {
				return redisClient.Health(context.Background())
			}
			return nil
		},
		authzhandler.New(authzSvc, log, jwtSvc),
		policyhandler.New(policySvc, registry, log, jwtSvc, adminGuard),
	)

	srv := httpserver.New(cfg.Server.Addr, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting aegis", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return err
	}
	log.Info("shutdown complete")
	return nil
}

// buildRegistry declares the content platform's namespaces and actions.
// Changing the action set means redeploying; policies referencing unknown
// cells are ignored by the compiler.
func buildRegistry() *policy.Registry {
	return policy.NewRegistry(map[string]policy.NamespaceSpec{
		"articles": {
			Label:            "Articles",
			SupportedActions: []string{"read", "create", "update", "publish", "delete"},
		},
		"categories": {
			Label:            "Categories",
			SupportedActions: []string{"read", "manage"},
		},
		"media": {
			Label:            "Media",
			SupportedActions: []string{"read", "upload", "delete"},
		},
		"admin": {
			Label:            "Administration",
			SupportedActions: []string{"manage"},
		},
	}, policy.WildcardPolicy{AllowNamespaceWildcard: true})
}
