package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rhuss/datasci/pkg/agent"
	"github.com/rhuss/datasci/pkg/api"
	"github.com/rhuss/datasci/pkg/setup"
)

type runFlags struct {
	session       string
	maxIterations int
	answerCode    bool
	jsonOutput    bool
	quiet         bool
}

func newRunCommand(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run [task]",
		Short: "Run one task through the agent loop",
		Long: `Run one task through the agent loop and print the final answer.

The task is read from the arguments, or from stdin when it is "-".

Examples:
  datasci run "How many rows does data.csv have?"
  datasci run --session analysis-1 "Plot the monthly totals"
  cat task.txt | datasci run -`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := readTask(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runTask(ctx, g, f, task, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVar(&f.session, "session", "", "reuse an existing interpreter session instead of creating one")
	cmd.Flags().IntVar(&f.maxIterations, "max-iterations", 0, "override agent.max_iterations")
	cmd.Flags().BoolVar(&f.answerCode, "run-answer-code", false, "execute code blocks in the final answer")
	cmd.Flags().BoolVar(&f.jsonOutput, "json", false, "print the run record as JSON")
	cmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "do not print the conversation while it runs")
	return cmd
}

func readTask(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading task: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	return strings.Join(args, " "), nil
}

func runTask(ctx context.Context, g *globalFlags, f *runFlags, task string, stdout, stderr io.Writer) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	if f.maxIterations > 0 {
		cfg.Agent.MaxIterations = f.maxIterations
	}
	if f.answerCode {
		cfg.Agent.ExecuteFinalAnswerCode = true
	}

	m, err := setup.Model(cfg)
	if err != nil {
		return err
	}
	defer m.Close()
	exec, err := setup.Executor(ctx, cfg)
	if err != nil {
		return err
	}
	defer exec.Close()

	store, err := setup.Store(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore(ctx, store)

	ac, err := setup.AgentConfig(cfg)
	if err != nil {
		return err
	}
	ac.SessionID = f.session

	opts := []agent.Option{}
	if store != nil {
		opts = append(opts, agent.WithStore(store))
	}
	if !f.quiet && !f.jsonOutput {
		opts = append(opts, agent.WithObserver(printTurns(stderr)))
	}

	a, err := agent.New(m, exec, ac, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Warn("closing agent session", "error", err)
		}
	}()

	res, err := a.Run(ctx, task)
	if err != nil {
		return err
	}

	if f.jsonOutput {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res.Record()); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(stdout, res.Answer)
	}

	switch res.Status {
	case api.RunStatusCompleted:
		return nil
	case api.RunStatusBudgetExhausted:
		return fmt.Errorf("run %s stopped after %d iterations without a final answer", res.RunID, res.Iterations)
	default:
		if res.Err != nil {
			return fmt.Errorf("run %s %s: %w", res.RunID, res.Status, res.Err)
		}
		return fmt.Errorf("run %s %s", res.RunID, res.Status)
	}
}

// printTurns writes the conversation as it happens.
func printTurns(w io.Writer) agent.Observer {
	return func(ev agent.Event) {
		if ev.Turn == nil {
			return
		}
		switch ev.Turn.Kind {
		case api.TurnAction:
			fmt.Fprintf(w, "--- step %d ---\n%s\n", ev.Iteration, ev.Turn.Content)
		case api.TurnObservation:
			fmt.Fprintf(w, "%s\n", ev.Turn.Content)
		}
	}
}
