// Command interpreter runs the code execution service: persistent Go
// interpreter sessions behind a REST API and an MCP endpoint.
//
// Configuration is read from a YAML file (--config, DATASCI_CONFIG,
// ./config.yaml or /etc/datasci/config.yaml) and DATASCI_* environment
// variables. Common overrides:
//
//	DATASCI_PORT            - Listen port (default: 8080)
//	DATASCI_MAX_CONCURRENT  - Concurrent executions before 429 (default: 8)
//	DATASCI_DEFAULT_TIMEOUT - Execution timeout when none is requested (default: 30s)
//	DATASCI_SESSION_TTL     - Idle session eviction, 0 disables (default: 1h)
//	DATASCI_EXECUTOR        - "local" or "remote" (default: local)
//	DATASCI_AUTH_TYPE       - "none", "apikey" or "jwt" (default: none)
//
// With --stdio the MCP tools are served on stdin and stdout instead, for
// MCP clients that start the interpreter as a subprocess.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/rhuss/datasci/pkg/config"
	"github.com/rhuss/datasci/pkg/debug"
	"github.com/rhuss/datasci/pkg/executor"
	"github.com/rhuss/datasci/pkg/setup"
	"github.com/rhuss/datasci/pkg/transport"
	transporthttp "github.com/rhuss/datasci/pkg/transport/http"
	"github.com/rhuss/datasci/pkg/transport/mcp"
)

// version is set at build time.
var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		slog.Error("interpreter failed", "error", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string
	var stdio bool
	cmd := &cobra.Command{
		Use:           "interpreter",
		Short:         "Serve persistent Go interpreter sessions over HTTP and MCP",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if stdio {
				return serveMCP(ctx, configPath, &sdkmcp.StdioTransport{})
			}
			return serve(ctx, configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the YAML config file")
	cmd.Flags().BoolVar(&stdio, "stdio", false, "serve the MCP tools on stdin/stdout instead of HTTP")
	return cmd
}

// openBackend loads the configuration and creates the execution backend.
// The returned function closes the backend and stops its janitor.
func openBackend(configPath string) (*config.Config, executor.Executor, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	debug.Init(cfg.Logging.Debug, cfg.Logging.Level, cfg.Logging.Format)

	backendCtx, cancelBackend := context.WithCancel(context.Background())
	backend, err := setup.Executor(backendCtx, cfg)
	if err != nil {
		cancelBackend()
		return nil, nil, nil, fmt.Errorf("creating executor: %w", err)
	}
	return cfg, backend, func() {
		if err := backend.Close(); err != nil {
			slog.Warn("closing executor", "error", err)
		}
		cancelBackend()
	}, nil
}

// serveMCP serves the MCP tools over t until ctx is done or the client
// disconnects.
func serveMCP(ctx context.Context, configPath string, t sdkmcp.Transport) error {
	cfg, backend, closeBackend, err := openBackend(configPath)
	if err != nil {
		return err
	}
	defer closeBackend()

	tools := mcp.NewServer(backend, backend, mcp.Options{
		Version:  version,
		InFlight: transport.NewInFlightRegistry(),
	})
	slog.Info("interpreter serving MCP tools", "backend", cfg.Executor.Backend, "version", version)
	return tools.Run(ctx, t)
}

func serve(ctx context.Context, configPath string) error {
	cfg, backend, closeBackend, err := openBackend(configPath)
	if err != nil {
		return err
	}
	// The janitor stops with the backend, after the server has drained.
	defer closeBackend()

	authMW, err := setup.AuthMiddleware(cfg)
	if err != nil {
		return err
	}

	srv := transporthttp.NewServer(backend, backend,
		transporthttp.WithAddr(":"+strconv.Itoa(cfg.Server.Port)),
		transporthttp.WithMaxBodySize(cfg.Server.MaxBodySize),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		transporthttp.WithMaxConcurrent(cfg.Interpreter.MaxConcurrent),
		transporthttp.WithMetrics(cfg.Observability.Metrics.Enabled),
		transporthttp.WithVersion(version),
		transporthttp.WithHTTPMiddleware(authMW),
	)

	if cfg.Server.MCP {
		tools := mcp.NewServer(srv.Executor(), backend, mcp.Options{
			Version:  version,
			InFlight: srv.InFlight(),
		})
		srv.Mount("/mcp", tools.Handler())
	}

	slog.Info("interpreter configured",
		"port", cfg.Server.Port,
		"backend", cfg.Executor.Backend,
		"max_concurrent", cfg.Interpreter.MaxConcurrent,
		"auth", cfg.Auth.Type,
		"mcp", cfg.Server.MCP,
		"version", version,
	)
	return srv.Run(ctx)
}
