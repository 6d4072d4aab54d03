// Package main initializes and starts the Legal Lens web server, setting up
// configuration, logging, the session store, the identity gateway client,
// handlers and TLS.
package main

import (
	"cmp"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	nethttp "net/http"

	"github.com/atinyakov/LegalLens/internal/analysis"
	"github.com/atinyakov/LegalLens/internal/certgen"
	"github.com/atinyakov/LegalLens/internal/config"
	"github.com/atinyakov/LegalLens/internal/db"
	"github.com/atinyakov/LegalLens/internal/identity"
	"github.com/atinyakov/LegalLens/internal/logger"
	"github.com/atinyakov/LegalLens/internal/middleware"
	"github.com/atinyakov/LegalLens/internal/pages"
	"github.com/atinyakov/LegalLens/internal/repository"
	"github.com/atinyakov/LegalLens/internal/server/handler/http"
	"github.com/atinyakov/LegalLens/internal/service"
	"github.com/atinyakov/LegalLens/internal/session"
	"go.uber.org/zap"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	// Parse command-line, .env and environment configuration.
	options := config.Parse()

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	var err error
	if options.LogFile != "" {
		err = log.InitFile(options.LogLevel, options.LogFile)
	} else {
		err = log.Init(options.LogLevel)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	zapLogger := log.Log

	// The identity gateway cannot be reached without these values.
	id := options.Identity
	if err := id.Validate(); err != nil {
		zapLogger.Fatal("invalid identity configuration", zap.Error(err))
	}
	zapLogger.Info("identity configuration loaded",
		zap.String("api_key", config.Mask(id.APIKey)),
		zap.String("project_id", id.ProjectID),
		zap.String("app_id", config.Mask(id.AppID)),
	)
	for _, name := range id.Missing() {
		zapLogger.Warn("identity configuration value is missing", zap.String("key", name))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Select the session store: Postgres, then Redis, then memory.
	store, health, closeStore := openStore(ctx, options, zapLogger)
	defer closeStore()

	// Identity gateway client and optional Google sign-in.
	client := identity.NewClient(identity.ClientConfig{
		APIKey:         id.APIKey,
		AppID:          id.AppID,
		ToolkitURL:     id.IdentityToolkitURL,
		SecureTokenURL: id.SecureTokenURL,
	})
	google := identity.NewGoogleProvider(identity.GoogleConfig{
		ClientID:     id.GoogleClientID,
		ClientSecret: id.GoogleClientSecret,
		RedirectURL:  id.GoogleRedirectURL,
	})
	if google == nil {
		zapLogger.Info("google sign-in disabled")
	}

	policy := session.PolicyAuthOnly
	if options.LandingPage {
		policy = session.PolicyLanding
	}
	manager := session.NewManager(session.ManagerConfig{
		Client:    client,
		Google:    google,
		Store:     store,
		ProjectID: id.ProjectID,
		Policy:    policy,
		Logger:    zapLogger,
	})
	defer manager.Close()

	// Document analysis backend.
	backend := analysis.NewClient(options.AnalysisURL, nil)
	if !backend.Configured() {
		zapLogger.Warn("analysis backend not configured; document pages will show a notice")
	}

	renderer, err := pages.New()
	if err != nil {
		zapLogger.Fatal("failed to parse page templates", zap.Error(err))
	}

	handler := &http.Handler{
		Sessions:      manager,
		Documents:     service.NewDocumentService(backend),
		Pages:         renderer,
		Identity:      id,
		GoogleEnabled: google != nil,
		CookieSecure:  options.CookieSecure,
		HealthCheck:   health,
		Logger:        zapLogger,
	}

	limiter := middleware.NewRateLimiter(30, 10, zapLogger)
	limiter.StartCleanup(ctx, time.Minute, 10*time.Minute)

	// Build the router with middleware and routes.
	router := http.NewRouter(handler, limiter, middleware.CookieConfig{
		Secure: options.CookieSecure,
		MaxAge: options.SessionTTL,
	}, zapLogger)

	server := &nethttp.Server{
		Addr:              options.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zapLogger.Error("graceful shutdown failed", zap.Error(err))
		}
	}()

	err = serve(server, options, zapLogger)
	if err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		zapLogger.Fatal("server failed", zap.Error(err))
	}
	zapLogger.Info("server stopped")
}

// serve starts HTTPS when a key pair or -tls-dev is configured, plain HTTP
// otherwise.
func serve(server *nethttp.Server, options *config.Options, log *zap.Logger) error {
	switch {
	case options.TLSCert != "" && options.TLSKey != "":
		server.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		log.Info("starting HTTPS server", zap.String("addr", server.Addr))
		return server.ListenAndServeTLS(options.TLSCert, options.TLSKey)
	case options.TLSDev:
		cert, err := certgen.DevCertificate(certgen.DefaultHosts, 30*24*time.Hour)
		if err != nil {
			return fmt.Errorf("generate development certificate: %w", err)
		}
		server.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
		log.Warn("starting HTTPS server with a self-signed development certificate", zap.String("addr", server.Addr))
		return server.ListenAndServeTLS("", "")
	default:
		log.Info("starting HTTP server", zap.String("addr", server.Addr))
		return server.ListenAndServe()
	}
}

// openStore returns the session store, a health check for it and a close
// function.
func openStore(ctx context.Context, options *config.Options, log *zap.Logger) (session.Store, func(context.Context) error, func()) {
	switch {
	case options.DatabaseDSN != "":
		postgresDB, err := db.InitPostgres(options.DatabaseDSN)
		if err != nil {
			log.Fatal("cannot init database", zap.Error(err))
		}
		db.StartSessionCleaner(ctx, postgresDB, time.Hour, options.SessionTTL, log)
		log.Info("using postgres session store")
		return repository.NewPostgresSessionRepository(postgresDB), postgresDB.PingContext, func() { _ = postgresDB.Close() }

	case options.RedisURL != "":
		redisStore, err := repository.NewRedisSessionStore(options.RedisURL, options.SessionTTL)
		if err != nil {
			log.Fatal("cannot connect to redis", zap.Error(err))
		}
		log.Info("using redis session store")
		return redisStore, redisStore.Ping, func() { _ = redisStore.Close() }

	default:
		log.Warn("no session store configured; sessions are lost on restart")
		return repository.NewMemorySessionStore(options.SessionTTL), nil, func() {}
	}
}
