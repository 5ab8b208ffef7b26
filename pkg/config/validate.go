package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks the settings shared by all binaries. Every problem is
// reported, each prefixed with its field path.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port))
	}
	if c.Server.MaxBodySize <= 0 {
		errs = append(errs, fmt.Errorf("server.max_body_size must be > 0"))
	}

	in := c.Interpreter
	if in.DefaultTimeout <= 0 {
		errs = append(errs, fmt.Errorf("interpreter.default_timeout must be > 0"))
	}
	if in.MaxTimeout < in.DefaultTimeout {
		errs = append(errs, fmt.Errorf("interpreter.max_timeout (%s) must not be below default_timeout (%s)", in.MaxTimeout, in.DefaultTimeout))
	}
	if in.MaxOutputBytes <= 0 {
		errs = append(errs, fmt.Errorf("interpreter.max_output_bytes must be > 0"))
	}
	if in.SessionTTL < 0 {
		errs = append(errs, fmt.Errorf("interpreter.session_ttl must not be negative"))
	}
	if in.DrainGrace <= 0 {
		errs = append(errs, fmt.Errorf("interpreter.drain_grace must be > 0"))
	}

	switch c.Executor.Backend {
	case "local":
	case "remote":
		if c.Executor.URL == "" && c.Executor.Sandbox.Template == "" {
			errs = append(errs, fmt.Errorf("executor.url or executor.sandbox.template is required when executor.backend is \"remote\""))
		}
		if c.Executor.URL != "" {
			if err := checkURL(c.Executor.URL); err != nil {
				errs = append(errs, fmt.Errorf("executor.url: %w", err))
			}
		}
	default:
		errs = append(errs, fmt.Errorf("executor.backend must be \"local\" or \"remote\", got %q", c.Executor.Backend))
	}

	if c.Agent.MaxIterations <= 0 {
		errs = append(errs, fmt.Errorf("agent.max_iterations must be > 0, got %d", c.Agent.MaxIterations))
	}

	switch c.Storage.Type {
	case "none", "memory":
	case "postgres":
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"none\", \"memory\" or \"postgres\", got %q", c.Storage.Type))
	}

	switch c.Auth.Type {
	case "none":
	case "apikey":
		if len(c.Auth.APIKeys) == 0 {
			errs = append(errs, fmt.Errorf("auth.api_keys must not be empty when auth.type is \"apikey\""))
		}
		for i, k := range c.Auth.APIKeys {
			if k.Key == "" && k.KeyFile == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d]: key or key_file is required", i))
			}
			if k.Subject == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d].subject is required", i))
			}
		}
	case "jwt":
		if c.Auth.JWT.JWKSURL == "" {
			errs = append(errs, fmt.Errorf("auth.jwt.jwks_url is required when auth.type is \"jwt\""))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\", \"apikey\" or \"jwt\", got %q", c.Auth.Type))
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// ValidateModel checks the settings the agent needs to reach its model.
func (c *Config) ValidateModel() error {
	var errs []error
	if c.Model.BaseURL == "" {
		errs = append(errs, fmt.Errorf("model.base_url is required"))
	} else if err := checkURL(c.Model.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("model.base_url: %w", err))
	}
	if c.Model.Name == "" {
		errs = append(errs, fmt.Errorf("model.name is required"))
	}
	if t := c.Model.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, fmt.Errorf("model.temperature must be in 0..2, got %g", *t))
	}
	return errors.Join(errs...)
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host is missing")
	}
	return nil
}
