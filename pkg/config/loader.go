package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rhuss/datasci/pkg/debug"
)

// Load builds the configuration from defaults, the YAML file, the
// environment and _file references, then validates it.
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	if path := discoverConfigFile(configPath); path != "" {
		if err := loadYAMLFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
		debug.Log("config", "loaded config file", "path", path)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

// discoverConfigFile returns the explicit path, $DATASCI_CONFIG,
// ./config.yaml or /etc/datasci/config.yaml, whichever comes first.
// An empty result means no file.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("DATASCI_CONFIG"); envPath != "" {
		return envPath
	}
	for _, path := range []string{"config.yaml", "/etc/datasci/config.yaml"} {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadYAMLFile decodes path over cfg. Unknown keys are rejected so that a
// misspelled setting does not silently fall back to its default.
func loadYAMLFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// envSetter applies one environment variable to the config.
type envSetter func(cfg *Config, v string) error

func setString(field func(*Config) *string) envSetter {
	return func(cfg *Config, v string) error {
		*field(cfg) = v
		return nil
	}
}

func setInt(field func(*Config) *int) envSetter {
	return func(cfg *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(cfg) = n
		return nil
	}
}

func setDuration(field func(*Config) *time.Duration) envSetter {
	return func(cfg *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(cfg) = d
		return nil
	}
}

func setBool(field func(*Config) *bool) envSetter {
	return func(cfg *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(cfg) = b
		return nil
	}
}

// envOverrides maps DATASCI_* variables to config fields.
var envOverrides = map[string]envSetter{
	"DATASCI_PORT":            setInt(func(c *Config) *int { return &c.Server.Port }),
	"DATASCI_MAX_CONCURRENT":  setInt(func(c *Config) *int { return &c.Interpreter.MaxConcurrent }),
	"DATASCI_DEFAULT_TIMEOUT": setDuration(func(c *Config) *time.Duration { return &c.Interpreter.DefaultTimeout }),
	"DATASCI_MAX_TIMEOUT":     setDuration(func(c *Config) *time.Duration { return &c.Interpreter.MaxTimeout }),
	"DATASCI_SESSION_TTL":     setDuration(func(c *Config) *time.Duration { return &c.Interpreter.SessionTTL }),
	"DATASCI_OUTPUT_ROOT":     setString(func(c *Config) *string { return &c.Interpreter.OutputRoot }),

	"DATASCI_EXECUTOR":          setString(func(c *Config) *string { return &c.Executor.Backend }),
	"DATASCI_INTERPRETER_URL":   setString(func(c *Config) *string { return &c.Executor.URL }),
	"DATASCI_INTERPRETER_KEY":   setString(func(c *Config) *string { return &c.Executor.APIKey }),
	"DATASCI_SANDBOX_TEMPLATE":  setString(func(c *Config) *string { return &c.Executor.Sandbox.Template }),
	"DATASCI_SANDBOX_NAMESPACE": setString(func(c *Config) *string { return &c.Executor.Sandbox.Namespace }),

	"DATASCI_MAX_ITERATIONS":  setInt(func(c *Config) *int { return &c.Agent.MaxIterations }),
	"DATASCI_EXEC_TIMEOUT":    setDuration(func(c *Config) *time.Duration { return &c.Agent.ExecTimeout }),
	"DATASCI_RUN_ANSWER_CODE": setBool(func(c *Config) *bool { return &c.Agent.ExecuteFinalAnswerCode }),

	"DATASCI_MODEL_URL":     setString(func(c *Config) *string { return &c.Model.BaseURL }),
	"DATASCI_MODEL":         setString(func(c *Config) *string { return &c.Model.Name }),
	"DATASCI_MODEL_API_KEY": setString(func(c *Config) *string { return &c.Model.APIKey }),

	"DATASCI_STORAGE":      setString(func(c *Config) *string { return &c.Storage.Type }),
	"DATASCI_STORAGE_SIZE": setInt(func(c *Config) *int { return &c.Storage.MaxSize }),
	"DATASCI_POSTGRES_DSN": setString(func(c *Config) *string { return &c.Storage.Postgres.DSN }),

	"DATASCI_AUTH_TYPE": setString(func(c *Config) *string { return &c.Auth.Type }),
	"DATASCI_API_KEYS":  setAPIKeys,

	"DATASCI_LOG_FORMAT": setString(func(c *Config) *string { return &c.Logging.Format }),
	"DATASCI_METRICS":    setBool(func(c *Config) *bool { return &c.Observability.Metrics.Enabled }),
}

// setAPIKeys reads a JSON array of API key entries.
func setAPIKeys(cfg *Config, v string) error {
	var keys []APIKeyConfig
	if err := json.Unmarshal([]byte(v), &keys); err != nil {
		return err
	}
	cfg.Auth.APIKeys = keys
	return nil
}

// applyEnvOverrides applies every set DATASCI_* variable. Malformed values
// are reported together.
func applyEnvOverrides(cfg *Config) error {
	var errs []error
	for name, set := range envOverrides {
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			continue
		}
		if err := set(cfg, v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// secretRef pairs a _file setting with the value it fills.
type secretRef struct {
	name  string
	file  string
	value *string
}

// resolveFileReferences fills secret fields from their _file variants when
// the value itself is empty.
func resolveFileReferences(cfg *Config) error {
	refs := []secretRef{
		{"model.api_key_file", cfg.Model.APIKeyFile, &cfg.Model.APIKey},
		{"executor.api_key_file", cfg.Executor.APIKeyFile, &cfg.Executor.APIKey},
		{"storage.postgres.dsn_file", cfg.Storage.Postgres.DSNFile, &cfg.Storage.Postgres.DSN},
	}
	for i := range cfg.Auth.APIKeys {
		k := &cfg.Auth.APIKeys[i]
		refs = append(refs, secretRef{fmt.Sprintf("auth.api_keys[%d].key_file", i), k.KeyFile, &k.Key})
	}

	for _, ref := range refs {
		if ref.file == "" || *ref.value != "" {
			continue
		}
		val, err := readSecretFile(ref.file)
		if err != nil {
			return fmt.Errorf("%s: %w", ref.name, err)
		}
		*ref.value = val
	}
	return nil
}

// readSecretFile returns the file content with surrounding whitespace
// trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
