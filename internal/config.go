package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/yardmove/internal/models"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Gateway backends.
const (
	BackendSandbox  = "sandbox"
	BackendMyGeotab = "mygeotab"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Gateway  GatewayConfig     `yaml:"gateway"`
	Sandbox  SandboxConfig     `yaml:"sandbox"`
	Category CategoryConfig    `yaml:"category"`
	Auth     AuthConfig        `yaml:"auth"`
	Events   EventsConfig      `yaml:"events"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Gateway.Validate(); err != nil {
		return err
	}
	if c.Gateway.Backend == BackendSandbox {
		if err := c.Sandbox.Validate(); err != nil {
			return err
		}
	}
	if err := c.Category.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	return c.Events.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
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

// GatewayConfig selects the remote zone store.
type GatewayConfig struct {
	Backend  string         `yaml:"backend"`
	MyGeotab MyGeotabConfig `yaml:"mygeotab"`
}

// Validate validates the gateway configuration.
func (c *GatewayConfig) Validate() error {
	if c.Backend == "" {
		c.Backend = BackendSandbox
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.Required, validation.In(BackendSandbox, BackendMyGeotab)),
	); err != nil {
		return err
	}
	if c.Backend == BackendMyGeotab {
		if err := c.MyGeotab.Validate(); err != nil {
			return fmt.Errorf("gateway.mygeotab: %w", err)
		}
	}
	return nil
}

// MyGeotabConfig holds fleet API credentials. Either Password or SessionID
// must be set.
type MyGeotabConfig struct {
	Server    string        `yaml:"server"`
	Database  string        `yaml:"database"`
	UserName  string        `yaml:"username"`
	Password  string        `yaml:"password"`
	SessionID string        `yaml:"session_id"`
	Timeout   time.Duration `yaml:"timeout"`
}

// Validate validates the MyGeotab configuration.
func (c *MyGeotabConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Server, validation.Required),
		validation.Field(&c.Database, validation.Required),
		validation.Field(&c.UserName, validation.Required),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	); err != nil {
		return err
	}
	if c.Password == "" && c.SessionID == "" {
		return fmt.Errorf("password or session_id is required")
	}
	return nil
}

// SandboxConfig holds the SQLite zone store used when Backend is "sandbox".
type SandboxConfig struct {
	Path     string `yaml:"path"`
	SeedFile string `yaml:"seed_file"`
	Watch    bool   `yaml:"watch"`
}

// Validate validates the sandbox configuration.
func (c *SandboxConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	); err != nil {
		return err
	}
	if c.Watch && c.SeedFile == "" {
		return fmt.Errorf("sandbox: watch is enabled but seed_file is empty")
	}
	return nil
}

// CategoryConfig names the zone type that marks Yard Move zones.
type CategoryConfig struct {
	Name string `yaml:"name"`
}

// Validate validates the category configuration.
func (c *CategoryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Name, validation.Required, validation.Length(1, 255)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// EventsConfig tunes the SSE stream.
type EventsConfig struct {
	// ListsThrottle is the minimum interval between lists.changed events.
	ListsThrottle time.Duration `yaml:"lists_throttle"`
}

// Validate validates the events configuration.
func (c *EventsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ListsThrottle, validation.Min(time.Duration(0)), validation.Max(time.Minute)),
	)
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
		Gateway: GatewayConfig{
			Backend: BackendSandbox,
			MyGeotab: MyGeotabConfig{
				Timeout: 30 * time.Second,
			},
		},
		Sandbox: SandboxConfig{
			Path: "./yardmove.db",
		},
		Category: CategoryConfig{
			Name: models.DefaultCategoryName,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Events: EventsConfig{
			ListsThrottle: time.Second,
		},
	}
}
