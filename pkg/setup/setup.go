// Package setup turns a loaded config.Config into the components the
// binaries run: the executor backend, the run store, the model client and
// the authentication middleware.
package setup

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"sigs.k8s.io/controller-runtime/pkg/client"
	ctrlconfig "sigs.k8s.io/controller-runtime/pkg/client/config"

	"github.com/rhuss/datasci/pkg/agent"
	"github.com/rhuss/datasci/pkg/auth"
	"github.com/rhuss/datasci/pkg/auth/apikey"
	"github.com/rhuss/datasci/pkg/auth/jwt"
	"github.com/rhuss/datasci/pkg/auth/noop"
	"github.com/rhuss/datasci/pkg/config"
	"github.com/rhuss/datasci/pkg/executor"
	"github.com/rhuss/datasci/pkg/executor/remote"
	"github.com/rhuss/datasci/pkg/executor/remote/kubernetes"
	"github.com/rhuss/datasci/pkg/interpreter"
	"github.com/rhuss/datasci/pkg/model/openaicompat"
	"github.com/rhuss/datasci/pkg/storage"
	"github.com/rhuss/datasci/pkg/storage/memory"
	"github.com/rhuss/datasci/pkg/storage/postgres"
)

// Limits returns the execution timeout bounds of cfg.
func Limits(cfg *config.Config) executor.Limits {
	return executor.Limits{Default: cfg.Interpreter.DefaultTimeout, Max: cfg.Interpreter.MaxTimeout}
}

// Local creates the in-process backend.
func Local(cfg *config.Config) *executor.Local {
	return executor.NewLocal(executor.LocalOptions{
		Interpreter: interpreter.Options{
			OutputRoot:     cfg.Interpreter.OutputRoot,
			MaxOutputBytes: cfg.Interpreter.MaxOutputBytes,
			DrainGrace:     cfg.Interpreter.DrainGrace,
		},
		Limits:          Limits(cfg),
		IdleTTL:         cfg.Interpreter.SessionTTL,
		JanitorInterval: cfg.Interpreter.JanitorInterval,
	})
}

// Executor creates the backend selected by executor.backend. For the
// local backend the idle session janitor runs until ctx is done.
func Executor(ctx context.Context, cfg *config.Config) (executor.Executor, error) {
	switch cfg.Executor.Backend {
	case "local":
		l := Local(cfg)
		if cfg.Interpreter.SessionTTL > 0 {
			go l.RunJanitor(ctx)
		}
		slog.Info("executor ready", "backend", "local",
			"default_timeout", cfg.Interpreter.DefaultTimeout, "session_ttl", cfg.Interpreter.SessionTTL)
		return l, nil

	case "remote":
		acq, err := acquirer(cfg)
		if err != nil {
			return nil, err
		}
		c := remote.NewClient(remote.WithAPIKey(cfg.Executor.APIKey))
		slog.Info("executor ready", "backend", "remote",
			"url", cfg.Executor.URL, "sandbox_template", cfg.Executor.Sandbox.Template)
		return remote.New(c, acq, Limits(cfg)), nil
	}
	return nil, fmt.Errorf("unknown executor backend %q", cfg.Executor.Backend)
}

func acquirer(cfg *config.Config) (remote.SandboxAcquirer, error) {
	sb := cfg.Executor.Sandbox
	if sb.Template == "" {
		return remote.StaticURL(cfg.Executor.URL), nil
	}

	restCfg, err := ctrlconfig.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("kubernetes config: %w", err)
	}
	scheme, err := kubernetes.NewScheme()
	if err != nil {
		return nil, err
	}
	kc, err := client.New(restCfg, client.Options{Scheme: scheme})
	if err != nil {
		return nil, fmt.Errorf("kubernetes client: %w", err)
	}
	return kubernetes.NewClaimAcquirer(kc, kubernetes.Options{
		Template:  sb.Template,
		Namespace: sb.Namespace,
		Timeout:   sb.ClaimTimeout,
		Port:      sb.Port,
	}), nil
}

// Store creates the run store selected by storage.type. A nil store
// means runs are not persisted.
func Store(ctx context.Context, cfg *config.Config) (storage.RunStore, error) {
	switch cfg.Storage.Type {
	case "none":
		slog.Info("storage disabled")
		return nil, nil
	case "memory":
		slog.Info("storage enabled", "type", "memory", "max_size", cfg.Storage.MaxSize)
		return memory.New(cfg.Storage.MaxSize), nil
	case "postgres":
		s, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Storage.Postgres.DSN,
			MaxConns:       cfg.Storage.Postgres.MaxConns,
			MigrateOnStart: cfg.Storage.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres store: %w", err)
		}
		slog.Info("storage enabled", "type", "postgres", "max_conns", cfg.Storage.Postgres.MaxConns)
		return s, nil
	}
	return nil, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
}

// Model creates the chat completions client.
func Model(cfg *config.Config) (*openaicompat.Client, error) {
	if err := cfg.ValidateModel(); err != nil {
		return nil, err
	}
	return openaicompat.New(openaicompat.Config{
		BaseURL:     cfg.Model.BaseURL,
		APIKey:      cfg.Model.APIKey,
		Model:       cfg.Model.Name,
		Temperature: cfg.Model.Temperature,
		MaxTokens:   cfg.Model.MaxTokens,
		Stop:        agent.StopSequences,
		Timeout:     cfg.Model.Timeout,
	})
}

// AgentConfig maps the agent section. A system_prompt_file replaces the
// built-in prompt.
func AgentConfig(cfg *config.Config) (agent.Config, error) {
	ac := agent.Config{
		MaxIterations:             cfg.Agent.MaxIterations,
		MaxConsecutiveModelErrors: cfg.Agent.MaxModelErrors,
		ExecTimeout:               cfg.Agent.ExecTimeout,
		MaxObservationChars:       cfg.Agent.MaxObservationChars,
		ExecuteFinalAnswerCode:    cfg.Agent.ExecuteFinalAnswerCode,
	}
	if path := cfg.Agent.SystemPromptFile; path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return agent.Config{}, fmt.Errorf("agent.system_prompt_file: %w", err)
		}
		ac.SystemPrompt = string(b)
	}
	return ac, nil
}

// AuthMiddleware builds the authentication middleware for auth.type.
func AuthMiddleware(cfg *config.Config) (func(http.Handler) http.Handler, error) {
	var authn auth.Authenticator
	switch cfg.Auth.Type {
	case "none":
		authn = noop.Authenticator{}
	case "apikey":
		keys := make([]apikey.Key, 0, len(cfg.Auth.APIKeys))
		for _, k := range cfg.Auth.APIKeys {
			scopes := k.Scopes
			if len(scopes) == 0 {
				scopes = []string{auth.ScopeAll}
			}
			keys = append(keys, apikey.Key{
				Key:      k.Key,
				Identity: auth.Identity{Subject: k.Subject, ServiceTier: k.ServiceTier, Scopes: scopes},
			})
		}
		authn = apikey.New(keys)
	case "jwt":
		j := cfg.Auth.JWT
		scopes := j.DefaultScopes
		if len(scopes) == 0 {
			scopes = []string{auth.ScopeExecute}
		}
		authn = jwt.New(jwt.Config{
			Issuer:        j.Issuer,
			Audience:      j.Audience,
			JWKSURL:       j.JWKSURL,
			SubjectClaim:  j.SubjectClaim,
			TierClaim:     j.TierClaim,
			ScopesClaim:   j.ScopesClaim,
			DefaultScopes: scopes,
		})
	default:
		return nil, fmt.Errorf("unknown auth type %q", cfg.Auth.Type)
	}

	opts := auth.MiddlewareOptions{Policy: auth.RoutePolicy}
	if rl := cfg.Auth.RateLimit; rl.RequestsPerMinute > 0 || len(rl.Tiers) > 0 {
		tiers := make(map[string]auth.TierConfig, len(rl.Tiers))
		for name, rpm := range rl.Tiers {
			tiers[name] = auth.TierConfig{RequestsPerMinute: rpm}
		}
		opts.Limiter = auth.NewInProcessLimiter(tiers, rl.RequestsPerMinute)
	}
	slog.Info("authentication configured", "type", cfg.Auth.Type, "rate_limited", opts.Limiter != nil)
	return auth.Middleware(auth.NewChain(authn), opts), nil
}
