// Package config provides functionality for managing configuration options
// for the application using command-line flags, a JSON config file, a .env
// file and environment variables.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Identity holds the web configuration of the hosted identity gateway.
type Identity struct {
	APIKey            string `json:"apiKey"`
	AuthDomain        string `json:"authDomain"`
	ProjectID         string `json:"projectId"`
	StorageBucket     string `json:"storageBucket"`
	MessagingSenderID string `json:"messagingSenderId"`
	AppID             string `json:"appId"`

	// GoogleClientID and GoogleClientSecret configure federated sign-in.
	GoogleClientID     string `json:"googleClientId,omitempty"`
	GoogleClientSecret string `json:"googleClientSecret,omitempty"`
	// GoogleRedirectURL defaults to <BaseURL>/auth/google/callback.
	GoogleRedirectURL string `json:"googleRedirectUrl,omitempty"`

	// Endpoint overrides for emulators and tests.
	IdentityToolkitURL string `json:"identityToolkitUrl,omitempty"`
	SecureTokenURL     string `json:"secureTokenUrl,omitempty"`
}

// ErrIncompleteIdentity is returned when a required identity value is missing.
var ErrIncompleteIdentity = errors.New("identity configuration is incomplete")

// Validate checks that the API key, project id and app id are present.
func (i Identity) Validate() error {
	var missing []string
	if i.APIKey == "" {
		missing = append(missing, "apiKey")
	}
	if i.ProjectID == "" {
		missing = append(missing, "projectId")
	}
	if i.AppID == "" {
		missing = append(missing, "appId")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrIncompleteIdentity, strings.Join(missing, ", "))
	}
	return nil
}

// Missing names the optional identity values that are not set.
func (i Identity) Missing() []string {
	var missing []string
	if i.AuthDomain == "" {
		missing = append(missing, "authDomain")
	}
	if i.StorageBucket == "" {
		missing = append(missing, "storageBucket")
	}
	if i.MessagingSenderID == "" {
		missing = append(missing, "messagingSenderId")
	}
	return missing
}

// Options holds the configuration values for the application.
type Options struct {
	// Port defines the server's listening address (ip:port).
	Port string `json:"port"`

	// BaseURL is the externally visible URL of the server.
	BaseURL string `json:"baseUrl"`

	// DatabaseDSN selects the Postgres session store when set.
	DatabaseDSN string `json:"databaseDsn"`

	// RedisURL selects the Redis session store when set and no DSN is given.
	RedisURL string `json:"redisUrl"`

	// AnalysisURL is the base URL of the document-analysis backend.
	AnalysisURL string `json:"analysisUrl"`

	// LandingPage keeps the landing page as the unauthenticated entry page.
	// When false the auth form is the entry page.
	LandingPage bool `json:"landingPage"`

	// SessionTTL bounds both idle controllers and stored sessions.
	SessionTTL time.Duration `json:"-"`

	// CookieSecure marks the session cookie Secure.
	CookieSecure bool `json:"cookieSecure"`

	// TLSCert and TLSKey enable HTTPS when both are set.
	TLSCert string `json:"tlsCert"`
	TLSKey  string `json:"tlsKey"`
	// TLSDev serves HTTPS with a generated self-signed certificate.
	TLSDev bool `json:"tlsDev"`

	// LogLevel is the zap level name.
	LogLevel string `json:"logLevel"`
	// LogFile, when set, also writes JSON logs to a rotated file.
	LogFile string `json:"logFile"`

	// Config is the path to the Config file.
	Config string `json:"-"`

	Identity Identity `json:"identity"`
}

// identityEnv maps identity fields to their environment variable suffixes.
var identityEnv = []struct {
	suffix string
	field  func(*Identity) *string
}{
	{"API_KEY", func(i *Identity) *string { return &i.APIKey }},
	{"AUTH_DOMAIN", func(i *Identity) *string { return &i.AuthDomain }},
	{"PROJECT_ID", func(i *Identity) *string { return &i.ProjectID }},
	{"STORAGE_BUCKET", func(i *Identity) *string { return &i.StorageBucket }},
	{"MESSAGING_SENDER_ID", func(i *Identity) *string { return &i.MessagingSenderID }},
	{"APP_ID", func(i *Identity) *string { return &i.AppID }},
}

// Parse loads .env, parses the process flags and environment and returns
// the resulting options. It exits the process on malformed input.
func Parse() *Options {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "error while loading .env: %v\n", err)
	}
	opts, err := ParseArgs(os.Args[0], os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	return opts
}

// ParseArgs builds Options from args and the lookup function. Precedence,
// lowest first: defaults, flags, config file, environment.
func ParseArgs(name string, args []string, getenv func(string) string) (*Options, error) {
	options := &Options{}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&options.Port, "a", "localhost:8080", "run on ip:port server")
	fs.StringVar(&options.BaseURL, "base-url", "", "externally visible base URL")
	fs.StringVar(&options.DatabaseDSN, "d", "", "postgres session store DSN")
	fs.StringVar(&options.RedisURL, "redis", "", "redis session store URL")
	fs.StringVar(&options.AnalysisURL, "analysis", "", "document analysis backend URL")
	fs.BoolVar(&options.LandingPage, "landing", true, "use the landing page as the public entry page")
	fs.DurationVar(&options.SessionTTL, "session-ttl", 7*24*time.Hour, "session lifetime")
	fs.BoolVar(&options.CookieSecure, "secure-cookie", false, "mark the session cookie Secure")
	fs.StringVar(&options.TLSCert, "tls-cert", "", "TLS certificate file")
	fs.StringVar(&options.TLSKey, "tls-key", "", "TLS key file")
	fs.BoolVar(&options.TLSDev, "tls-dev", false, "serve HTTPS with a generated self-signed certificate")
	fs.StringVar(&options.LogLevel, "log-level", "info", "log level")
	fs.StringVar(&options.LogFile, "log-file", "", "rotated JSON log file")
	fs.StringVar(&options.Config, "config", "config.json", "path to config file")
	fs.StringVar(&options.Config, "c", "config.json", "path to config file (shorthand)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Override flags with environment variables if set
	if configPath := getenv("CONFIG"); configPath != "" {
		options.Config = configPath
	}

	if options.Config != "" {
		if _, err := os.Stat(options.Config); err == nil {
			data, err := os.ReadFile(options.Config)
			if err != nil {
				return nil, fmt.Errorf("error while reading config file: %w", err)
			}
			if err := json.Unmarshal(data, options); err != nil {
				return nil, fmt.Errorf("error while parsing config file: %w", err)
			}
		}
	}

	if serverAddress := getenv("SERVER_ADDRESS"); serverAddress != "" {
		options.Port = serverAddress
	}
	if v := getenv("BASE_URL"); v != "" {
		options.BaseURL = v
	}
	if v := getenv("DATABASE_DSN"); v != "" {
		options.DatabaseDSN = v
	}
	if v := getenv("REDIS_URL"); v != "" {
		options.RedisURL = v
	}
	if v := getenv("ANALYSIS_URL"); v != "" {
		options.AnalysisURL = v
	}
	if v := getenv("LANDING_PAGE"); v != "" {
		options.LandingPage = v == "1" || strings.EqualFold(v, "true")
	}
	applyIdentityEnv(&options.Identity, getenv)

	if options.BaseURL == "" {
		options.BaseURL = "http://" + options.Port
	}
	if options.Identity.GoogleRedirectURL == "" {
		options.Identity.GoogleRedirectURL = strings.TrimSuffix(options.BaseURL, "/") + "/auth/google/callback"
	}

	return options, nil
}

// IdentityFromEnv reads the identity configuration from the environment
// alone. The terminal client uses it; it has no flags for these values.
func IdentityFromEnv(getenv func(string) string) Identity {
	var id Identity
	applyIdentityEnv(&id, getenv)
	return id
}

func applyIdentityEnv(id *Identity, getenv func(string) string) {
	if v := getenv("GOOGLE_CLIENT_ID"); v != "" {
		id.GoogleClientID = v
	}
	if v := getenv("GOOGLE_CLIENT_SECRET"); v != "" {
		id.GoogleClientSecret = v
	}
	if v := getenv("GOOGLE_REDIRECT_URL"); v != "" {
		id.GoogleRedirectURL = v
	}
	if v := getenv("IDENTITY_TOOLKIT_URL"); v != "" {
		id.IdentityToolkitURL = v
	}
	if v := getenv("SECURE_TOKEN_URL"); v != "" {
		id.SecureTokenURL = v
	}

	for _, e := range identityEnv {
		for _, prefix := range []string{"LEGALLENS_FIREBASE_", "VITE_FIREBASE_"} {
			if v := getenv(prefix + e.suffix); v != "" {
				*e.field(id) = v
				break
			}
		}
	}
}

// Mask shortens a secret for log output.
func Mask(s string) string {
	if s == "" {
		return "MISSING"
	}
	if len(s) <= 10 {
		return s[:len(s)/2] + "..."
	}
	return s[:10] + "..."
}
