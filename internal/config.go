package internal

import (
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"portapak/internal/classify"
	"portapak/internal/model"
	"portapak/internal/pack"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Workspace WorkspaceConfig   `yaml:"workspace"`
	History   HistoryConfig     `yaml:"history"`
	Auth      AuthConfig        `yaml:"auth"`
	Classify  ClassifyConfig    `yaml:"classify"`
	Tools     ToolsConfig       `yaml:"tools"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Workspace.Validate(); err != nil {
		return err
	}
	if err := c.History.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	return c.Classify.Validate()
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

// WorkspaceConfig holds the directory the serve front end watches for
// configuration files and writes conversions into.
type WorkspaceConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the workspace configuration.
func (c *WorkspaceConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// HistoryConfig holds the run-history database configuration.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the history configuration.
func (c *HistoryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
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
	// Normalise empty mode to "disabled" for backward compatibility.
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

// ClassifyConfig carries extra classification rules, tried before the
// built-in defaults.
type ClassifyConfig struct {
	Rules []classify.Rule `yaml:"rules"`
}

// Validate validates the classification rules.
func (c *ClassifyConfig) Validate() error {
	for i, r := range c.Rules {
		if err := validation.ValidateStruct(&r,
			validation.Field(&r.Prefix, validation.Required),
			validation.Field(&r.Type, validation.Required, validation.In(model.DirProgram, model.DirData)),
		); err != nil {
			return fmt.Errorf("classify: rule %d: %w", i, err)
		}
	}
	return nil
}

// EffectiveRules returns the configured rules followed by the defaults.
func (c *ClassifyConfig) EffectiveRules() []classify.Rule {
	return append(append([]classify.Rule(nil), c.Rules...), classify.DefaultRules()...)
}

// ToolsConfig overrides the external capture tool invocations. Each value
// is an argv template; {input} and {output} expand at run time. Empty
// values keep the built-in defaults.
type ToolsConfig struct {
	RegistryExport     []string `yaml:"registry_export"`
	ServiceQuery       []string `yaml:"service_query"`
	ServiceDescription []string `yaml:"service_description"`
	TaskQuery          []string `yaml:"task_query"`
}

// ToolSet merges the configured overrides over the defaults.
func (c *ToolsConfig) ToolSet() pack.ToolSet {
	ts := pack.DefaultToolSet()
	if len(c.RegistryExport) > 0 {
		ts.RegistryExport = pack.Tool(c.RegistryExport)
	}
	if len(c.ServiceQuery) > 0 {
		ts.ServiceQuery = pack.Tool(c.ServiceQuery)
	}
	if len(c.ServiceDescription) > 0 {
		ts.ServiceDescription = pack.Tool(c.ServiceDescription)
	}
	if len(c.TaskQuery) > 0 {
		ts.TaskQuery = pack.Tool(c.TaskQuery)
	}
	return ts
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
		Workspace: WorkspaceConfig{
			Path: "./workspace",
		},
		History: HistoryConfig{
			Path: "./portapak.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
