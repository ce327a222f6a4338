package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/vocanote/internal/remote"
	pkgconfig "github.com/starford/vocanote/pkg/config"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
	AuthModeJWT      = "jwt"
)

// Config represents the application configuration.
type Config struct {
	App           ApplicationConfig   `yaml:"app" toml:"app"`
	Remote        RemoteConfig        `yaml:"remote" toml:"remote"`
	Session       SessionConfig       `yaml:"session" toml:"session"`
	Persist       PersistConfig       `yaml:"persist" toml:"persist"`
	Update        UpdateConfig        `yaml:"update" toml:"update"`
	Transcription TranscriptionConfig `yaml:"transcription" toml:"transcription"`
	Auth          AuthConfig          `yaml:"auth" toml:"auth"`
	Inbox         InboxConfig         `yaml:"inbox" toml:"inbox"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []interface{ Validate() error }{
		&c.App, &c.Remote, &c.Session, &c.Persist, &c.Update, &c.Transcription, &c.Auth,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level" toml:"log_level"`
	HTTP     HTTPConfig `yaml:"http" toml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port" toml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// RemoteConfig selects the remote note store.
type RemoteConfig struct {
	Driver    string             `yaml:"driver" toml:"driver"`
	DSN       string             `yaml:"dsn" toml:"dsn"`
	OpTimeout pkgconfig.Duration `yaml:"op_timeout" toml:"op_timeout"`
}

// Validate validates the remote store configuration.
func (c *RemoteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required, validation.In(remote.DriverSQLite, remote.DriverPostgres)),
		validation.Field(&c.DSN, validation.Required),
		validation.Field(&c.OpTimeout, validation.Min(pkgconfig.Duration(0))),
	)
}

// SessionConfig bounds user resolution. The sum of both timeouts is the
// longest a session start can wait on the remote store.
type SessionConfig struct {
	LookupTimeout pkgconfig.Duration `yaml:"lookup_timeout" toml:"lookup_timeout"`
	CreateTimeout pkgconfig.Duration `yaml:"create_timeout" toml:"create_timeout"`
}

// Validate validates the session configuration.
func (c *SessionConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.LookupTimeout, validation.Required),
		validation.Field(&c.CreateTimeout, validation.Required),
	)
}

// PersistConfig sizes the outbound command queue.
type PersistConfig struct {
	Workers int `yaml:"workers" toml:"workers"`
	Buffer  int `yaml:"buffer" toml:"buffer"`
}

// Validate validates the persistence queue configuration.
func (c *PersistConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Workers, validation.Required, validation.Min(1), validation.Max(64)),
		validation.Field(&c.Buffer, validation.Required, validation.Min(1)),
	)
}

// UpdateConfig configures over-the-air bundle updates. An empty ManifestURL
// disables update checks.
type UpdateConfig struct {
	ManifestURL string `yaml:"manifest_url" toml:"manifest_url"`
	Native      bool   `yaml:"native" toml:"native"`
	BaseVersion string `yaml:"base_version" toml:"base_version"`
	BundleDir   string `yaml:"bundle_dir" toml:"bundle_dir"`
}

// Validate validates the update configuration.
func (c *UpdateConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseVersion, validation.Required),
		validation.Field(&c.BundleDir, validation.Required),
	)
}

// TranscriptionConfig points at the speech-to-text service. LiveURL is
// optional and enables streaming transcription.
type TranscriptionConfig struct {
	Endpoint string `yaml:"endpoint" toml:"endpoint"`
	LiveURL  string `yaml:"live_url" toml:"live_url"`
	APIKey   string `yaml:"api_key" toml:"api_key"`
}

// Validate validates the transcription configuration.
func (c *TranscriptionConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Endpoint, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
//   - "jwt": HS256 bearer JWTs signed with JWTSecret; the subject is the
//     auth identity.
type AuthConfig struct {
	Mode      string `yaml:"mode" toml:"mode"`
	Token     string `yaml:"token" toml:"token"`
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken, AuthModeJWT)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	if c.Mode == AuthModeJWT && c.JWTSecret == "" {
		return fmt.Errorf("auth: mode is %q but jwt_secret is empty", AuthModeJWT)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken || c.Mode == AuthModeJWT
}

// InboxConfig names a directory watched for dropped export and Markdown
// files. Empty disables the watcher.
type InboxConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Remote: RemoteConfig{
			Driver:    remote.DriverSQLite,
			DSN:       "./vocanote.db",
			OpTimeout: pkgconfig.Duration(10 * time.Second),
		},
		Session: SessionConfig{
			LookupTimeout: pkgconfig.Duration(3 * time.Second),
			CreateTimeout: pkgconfig.Duration(3 * time.Second),
		},
		Persist: PersistConfig{
			Workers: 2,
			Buffer:  256,
		},
		Update: UpdateConfig{
			BaseVersion: "1.0.0",
			BundleDir:   "./bundles",
		},
		Transcription: TranscriptionConfig{
			Endpoint: "http://localhost:9000/transcribe",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
