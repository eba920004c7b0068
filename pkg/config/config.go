// Package config loads and validates the runtime configuration: a YAML file
// with ${VAR} environment expansion merged over built-in defaults.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/agent-world/agentworld/pkg/models"
	"github.com/agent-world/agentworld/pkg/queue"
	"github.com/agent-world/agentworld/pkg/storage"
)

// Config is the full runtime configuration.
type Config struct {
	HTTP    HTTPConfig     `yaml:"http"`
	Storage storage.Config `yaml:"storage"`
	Queue   queue.Config   `yaml:"queue"`
	LLM     LLMConfig      `yaml:"llm"`
	MCP     MCPConfig      `yaml:"mcp"`
	World   WorldConfig    `yaml:"world"`
}

// HTTPConfig parameterizes the HTTP surface.
type HTTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the host:port listen address.
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ProviderCredentials authenticates one provider family.
type ProviderCredentials struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty"`
}

// LLMConfig holds per-provider credentials. Providers without credentials are
// simply unavailable to agents.
type LLMConfig struct {
	Providers map[models.Provider]ProviderCredentials `yaml:"providers"`
}

// MCPConfig parameterizes the MCP server registry.
type MCPConfig struct {
	ToolCacheTTL      time.Duration `yaml:"tool_cache_ttl"`
	IdleShutdownDelay time.Duration `yaml:"idle_shutdown_delay"`
}

// WorldConfig parameterizes the world runtime.
type WorldConfig struct {
	// ToolIterationLimit caps tool rounds per agent response.
	ToolIterationLimit int `yaml:"tool_iteration_limit"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Storage: storage.Config{
			Backend: storage.BackendSQLite,
			RootDir: "./data",
		},
		Queue: queue.Config{
			ProcessingTimeout: queue.DefaultProcessingTimeout,
		},
		LLM: LLMConfig{
			Providers: map[models.Provider]ProviderCredentials{},
		},
		MCP: MCPConfig{
			ToolCacheTTL:      time.Hour,
			IdleShutdownDelay: 30 * time.Second,
		},
		World: WorldConfig{
			ToolIterationLimit: 10,
		},
	}
}

// Validate collects every problem in the configuration.
func (c *Config) Validate() error {
	var errs []error

	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		errs = append(errs, &ValidationError{
			Section: "http", Field: "port",
			Err: fmt.Errorf("%w: %d", ErrInvalidValue, c.HTTP.Port),
		})
	}
	if !c.Storage.Backend.IsValid() {
		errs = append(errs, &ValidationError{
			Section: "storage", Field: "backend",
			Err: fmt.Errorf("%w: %q", ErrInvalidValue, c.Storage.Backend),
		})
	}
	if c.Storage.Backend != storage.BackendPostgres && c.Storage.RootDir == "" {
		errs = append(errs, &ValidationError{
			Section: "storage", Field: "root_dir",
			Err: ErrMissingRequiredField,
		})
	}
	if c.Storage.Backend == storage.BackendPostgres {
		if c.Storage.Postgres.Host == "" {
			errs = append(errs, &ValidationError{
				Section: "storage.postgres", Field: "host",
				Err: ErrMissingRequiredField,
			})
		}
		if c.Storage.Postgres.Database == "" {
			errs = append(errs, &ValidationError{
				Section: "storage.postgres", Field: "database",
				Err: ErrMissingRequiredField,
			})
		}
	}
	for provider := range c.LLM.Providers {
		if !provider.IsValid() {
			errs = append(errs, &ValidationError{
				Section: "llm.providers", Field: string(provider),
				Err: fmt.Errorf("%w: unknown provider", ErrInvalidValue),
			})
		}
	}
	if c.World.ToolIterationLimit < 1 {
		errs = append(errs, &ValidationError{
			Section: "world", Field: "tool_iteration_limit",
			Err: fmt.Errorf("%w: %d", ErrInvalidValue, c.World.ToolIterationLimit),
		})
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrValidationFailed, errors.Join(errs...))
}

// Credentials returns the configured credentials for a provider.
func (c *Config) Credentials(provider models.Provider) (ProviderCredentials, bool) {
	creds, ok := c.LLM.Providers[provider]
	return creds, ok
}
