// Package main runs the Legal Lens terminal client: the same pages and auth
// flows as the web server, rendered as text screens.
package main

import (
	"bufio"
	"cmp"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atinyakov/LegalLens/internal/analysis"
	"github.com/atinyakov/LegalLens/internal/client/shell"
	"github.com/atinyakov/LegalLens/internal/client/storage"
	"github.com/atinyakov/LegalLens/internal/config"
	"github.com/atinyakov/LegalLens/internal/identity"
	"github.com/atinyakov/LegalLens/internal/logger"
	"github.com/atinyakov/LegalLens/internal/service"
	"github.com/atinyakov/LegalLens/internal/session"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

var (
	version   string
	buildDate string
)

const defaultRedirectURL = "http://localhost/auth/google/callback"

func main() {
	var (
		sessionPath string
		caFile      string
		analysisURL string
		logLevel    string
		landing     bool
		showVer     bool
	)

	flag.StringVar(&sessionPath, "session", storage.DefaultSessionPath(), "encrypted session file")
	flag.StringVar(&caFile, "ca", "", "extra CA certificate for the gateway and analysis backend")
	flag.StringVar(&analysisURL, "analysis", "", "document analysis backend URL")
	flag.StringVar(&logLevel, "log-level", "warn", "log level")
	flag.BoolVar(&landing, "landing", true, "show the landing page to signed-out users")
	flag.BoolVar(&showVer, "version", false, "show build version and date")
	flag.Parse()

	if showVer {
		fmt.Printf("Legal Lens Client\nVersion: %s\nBuild Date: %s\n", cmp.Or(version, "N/A"), cmp.Or(buildDate, "N/A"))
		return
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "error while loading .env: %v\n", err)
	}
	analysisURL = cmp.Or(analysisURL, os.Getenv("ANALYSIS_URL"))

	log := logger.New()
	if err := log.InitConsole(logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = log.Log.Sync() }()
	zapLogger := log.Log

	id := config.IdentityFromEnv(os.Getenv)
	if err := id.Validate(); err != nil {
		zapLogger.Fatal("invalid identity configuration", zap.Error(err))
	}
	for _, name := range id.Missing() {
		zapLogger.Warn("identity configuration value is missing", zap.String("key", name))
	}

	httpClient, err := storage.NewHTTPClient(caFile, 30*time.Second)
	if err != nil {
		zapLogger.Fatal("cannot build HTTP client", zap.Error(err))
	}

	// One buffered reader serves both the passphrase prompt and the shell.
	in := bufio.NewReader(os.Stdin)
	passphrase := os.Getenv("LEGALLENS_PASSPHRASE")
	if passphrase == "" {
		passphrase, err = storage.NewPrompt(in, os.Stdout).Required("Session passphrase: ")
		if err != nil {
			zapLogger.Fatal("no passphrase", zap.Error(err))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	auth := identity.NewAuth(identity.AuthConfig{
		Client: identity.NewClient(identity.ClientConfig{
			APIKey:         id.APIKey,
			AppID:          id.AppID,
			ToolkitURL:     id.IdentityToolkitURL,
			SecureTokenURL: id.SecureTokenURL,
			HTTPClient:     httpClient,
		}),
		Google: identity.NewGoogleProvider(identity.GoogleConfig{
			ClientID:     id.GoogleClientID,
			ClientSecret: id.GoogleClientSecret,
			RedirectURL:  cmp.Or(id.GoogleRedirectURL, defaultRedirectURL),
		}),
		Store:     storage.NewSessionFile(sessionPath, []byte(passphrase)),
		ProjectID: id.ProjectID,
		Logger:    zapLogger,
	})

	policy := session.PolicyAuthOnly
	if landing {
		policy = session.PolicyLanding
	}
	inbox := &session.Inbox{}
	svc := service.NewAuthService(auth, inbox, zapLogger)
	ctrl := session.NewController(svc, policy, inbox, zapLogger)
	if err := ctrl.Start(); err != nil {
		zapLogger.Fatal("cannot start controller", zap.Error(err))
	}
	defer ctrl.Close()

	// Restores the saved session, if the passphrase opens it.
	auth.Init(ctx)

	sh := shell.New(shell.Config{
		Controller: ctrl,
		Auth:       svc,
		Documents:  service.NewDocumentService(analysis.NewClient(analysisURL, httpClient)),
		Tokens:     auth,
		In:         in,
		Out:        os.Stdout,
		Logger:     zapLogger,
	})
	if err := sh.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		zapLogger.Fatal("shell failed", zap.Error(err))
	}
	fmt.Println("Bye")
}
