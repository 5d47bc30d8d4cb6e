package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Store kinds.
const (
	StoreNone     = "none"
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreObject   = "object"
)

// Settings is the engine configuration.
type Settings struct {
	// Concurrency is the run-level default limit; 0 leaves the document's
	// run default in effect.
	Concurrency int

	LogLevel  string
	LogFormat string

	// TracePath receives trace lines; empty or "-" means stdout.
	TracePath string

	Store   StoreSettings
	Remote  RemoteSettings
	Signing SigningSettings

	ServeAddr string
}

// StoreSettings selects where run records are persisted.
type StoreSettings struct {
	Kind string
	// DSN is the SQLite path or the Postgres connection string.
	DSN string

	// Object store fields.
	Endpoint  string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// RemoteSettings configures the remote executor backend.
type RemoteSettings struct {
	Endpoint string
	Timeout  time.Duration

	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

// OAuth2Enabled reports whether client credentials are configured.
func (r RemoteSettings) OAuth2Enabled() bool {
	return r.ClientID != "" || r.ClientSecret != "" || r.TokenURL != ""
}

// SigningSettings configures the signing gate.
type SigningSettings struct {
	// KeyPath is a JWK or a PEM-encoded public key.
	KeyPath            string
	InsecureSkipVerify bool
}

// Defaults returns the built-in settings.
func Defaults() Settings {
	return Settings{
		LogLevel:  "info",
		LogFormat: "text",
		Store:     StoreSettings{Kind: StoreNone, Prefix: "runs/"},
		Remote:    RemoteSettings{Timeout: 60 * time.Second},
		ServeAddr: ":8080",
	}
}

// Load builds Settings from defaults, the file at path (skipped when path is
// empty) and ADL_* environment variables, in that order, then validates.
func Load(path string) (Settings, error) {
	s := Defaults()
	if path != "" {
		c, err := FromFile(path)
		if err != nil {
			return Settings{}, err
		}
		s = s.Merge(c)
	}
	s, err := s.ApplyEnv()
	if err != nil {
		return Settings{}, err
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Merge overlays values present in c onto s.
func (s Settings) Merge(c Config) Settings {
	s.Concurrency = c.Int("concurrency", s.Concurrency)

	log := c.Sub("log")
	s.LogLevel = log.String("level", s.LogLevel)
	s.LogFormat = log.String("format", s.LogFormat)

	s.TracePath = c.Sub("trace").String("path", s.TracePath)

	st := c.Sub("store")
	s.Store.Kind = st.String("kind", s.Store.Kind)
	s.Store.DSN = st.String("dsn", s.Store.DSN)
	s.Store.Endpoint = st.String("endpoint", s.Store.Endpoint)
	s.Store.Bucket = st.String("bucket", s.Store.Bucket)
	s.Store.Prefix = st.String("prefix", s.Store.Prefix)
	s.Store.AccessKey = st.String("access_key", s.Store.AccessKey)
	s.Store.SecretKey = st.String("secret_key", s.Store.SecretKey)
	s.Store.UseSSL = st.Bool("use_ssl", s.Store.UseSSL)

	rm := c.Sub("remote")
	s.Remote.Endpoint = rm.String("endpoint", s.Remote.Endpoint)
	s.Remote.Timeout = rm.Duration("timeout", s.Remote.Timeout)
	oauth := rm.Sub("oauth2")
	s.Remote.ClientID = oauth.String("client_id", s.Remote.ClientID)
	s.Remote.ClientSecret = oauth.String("client_secret", s.Remote.ClientSecret)
	s.Remote.TokenURL = oauth.String("token_url", s.Remote.TokenURL)
	s.Remote.Scopes = oauth.StringSlice("scopes", s.Remote.Scopes)

	sg := c.Sub("signing")
	s.Signing.KeyPath = sg.String("key", s.Signing.KeyPath)
	s.Signing.InsecureSkipVerify = sg.Bool("insecure_skip_verify", s.Signing.InsecureSkipVerify)

	s.ServeAddr = c.Sub("serve").String("addr", s.ServeAddr)
	return s
}

// ApplyEnv overlays ADL_* environment variables onto s.
func (s Settings) ApplyEnv() (Settings, error) {
	var err error
	var errs []error
	collect := func(e error) {
		if e != nil {
			errs = append(errs, e)
		}
	}

	s.Concurrency, err = envInt("CONCURRENCY", s.Concurrency)
	collect(err)
	s.LogLevel = envString("LOG_LEVEL", s.LogLevel)
	s.LogFormat = envString("LOG_FORMAT", s.LogFormat)
	s.TracePath = envString("TRACE_PATH", s.TracePath)

	s.Store.Kind = envString("STORE_KIND", s.Store.Kind)
	s.Store.DSN = envString("STORE_DSN", s.Store.DSN)
	s.Store.Endpoint = envString("STORE_ENDPOINT", s.Store.Endpoint)
	s.Store.Bucket = envString("STORE_BUCKET", s.Store.Bucket)
	s.Store.Prefix = envString("STORE_PREFIX", s.Store.Prefix)
	s.Store.AccessKey = envString("STORE_ACCESS_KEY", s.Store.AccessKey)
	s.Store.SecretKey = envString("STORE_SECRET_KEY", s.Store.SecretKey)
	s.Store.UseSSL, err = envBool("STORE_USE_SSL", s.Store.UseSSL)
	collect(err)

	s.Remote.Endpoint = envString("REMOTE_ENDPOINT", s.Remote.Endpoint)
	s.Remote.Timeout, err = envDuration("REMOTE_TIMEOUT", s.Remote.Timeout)
	collect(err)
	s.Remote.ClientID = envString("OAUTH2_CLIENT_ID", s.Remote.ClientID)
	s.Remote.ClientSecret = envString("OAUTH2_CLIENT_SECRET", s.Remote.ClientSecret)
	s.Remote.TokenURL = envString("OAUTH2_TOKEN_URL", s.Remote.TokenURL)
	s.Remote.Scopes = envList("OAUTH2_SCOPES", s.Remote.Scopes)

	s.Signing.KeyPath = envString("SIGNING_KEY", s.Signing.KeyPath)
	s.Signing.InsecureSkipVerify, err = envBool("INSECURE_SKIP_VERIFY", s.Signing.InsecureSkipVerify)
	collect(err)

	s.ServeAddr = envString("SERVE_ADDR", s.ServeAddr)

	if len(errs) > 0 {
		return Settings{}, errors.Join(errs...)
	}
	return s, nil
}

// Validate reports every invalid setting.
func (s Settings) Validate() error {
	var errs []error
	if s.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("concurrency must be >= 0, got %d", s.Concurrency))
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s.LogLevel)); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch strings.ToLower(s.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", s.LogFormat))
	}

	switch s.Store.Kind {
	case "", StoreNone, StoreMemory:
	case StoreSQLite, StorePostgres:
		if s.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store.dsn is required for store kind %q", s.Store.Kind))
		}
	case StoreObject:
		if s.Store.Endpoint == "" || s.Store.Bucket == "" {
			errs = append(errs, errors.New("store.endpoint and store.bucket are required for the object store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store kind %q", s.Store.Kind))
	}

	if s.Remote.Timeout < 0 {
		errs = append(errs, fmt.Errorf("remote.timeout must be >= 0, got %s", s.Remote.Timeout))
	}
	if s.Remote.OAuth2Enabled() && (s.Remote.ClientID == "" || s.Remote.ClientSecret == "" || s.Remote.TokenURL == "") {
		errs = append(errs, errors.New("remote.oauth2 needs client_id, client_secret and token_url"))
	}
	return errors.Join(errs...)
}
