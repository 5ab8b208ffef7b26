// Command datasci answers data analysis questions with a ReAct loop: a
// chat model writes Go code, the code runs in a persistent interpreter
// session and its output is fed back until the model gives a final answer.
//
// Settings come from the config file, DATASCI_* environment variables and
// an optional .env file. The model is selected with DATASCI_MODEL_URL and
// DATASCI_MODEL.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/rhuss/datasci/pkg/config"
	"github.com/rhuss/datasci/pkg/debug"
)

var version = "dev"

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	envFile    string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "datasci",
		Short:         "Data analysis agent that reasons in Go code",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "path to the YAML config file")
	root.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "dotenv file loaded before the configuration")

	root.AddCommand(newRunCommand(g), newRunsCommand(g))
	return root
}

// load reads the env file and the configuration and sets up logging.
func (g *globalFlags) load() (*config.Config, error) {
	if g.envFile != "" {
		// Variables already set in the environment win over the file.
		if err := godotenv.Load(g.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", g.envFile, err)
		}
	}
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	debug.Init(cfg.Logging.Debug, cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}

func closeStore(ctx context.Context, c interface{ Close() error }) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		slog.WarnContext(ctx, "closing store", "error", err)
	}
}
