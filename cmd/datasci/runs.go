package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rhuss/datasci/pkg/api"
	"github.com/rhuss/datasci/pkg/setup"
	"github.com/rhuss/datasci/pkg/storage"
)

func newRunsCommand(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect stored runs (requires storage.type postgres)",
	}

	var opts storage.ListOptions
	var status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List stored runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.Status = api.RunStatus(status)
			return withStore(cmd.Context(), g, func(s storage.RunStore) error {
				page, err := s.ListRuns(cmd.Context(), opts)
				if err != nil {
					return err
				}
				return printRuns(cmd.OutOrStdout(), page)
			})
		},
	}
	list.Flags().IntVar(&opts.Limit, "limit", storage.DefaultListLimit, "maximum number of runs")
	list.Flags().StringVar(&opts.After, "after", "", "list runs after this run id")
	list.Flags().StringVar(&status, "status", "", "only runs with this status")
	list.Flags().StringVar(&opts.Order, "order", "desc", "asc or desc by creation time")

	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print a stored run with its conversation as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), g, func(s storage.RunStore) error {
				run, err := s.GetRun(cmd.Context(), args[0])
				if err != nil {
					return notFound(args[0], err)
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(run)
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), g, func(s storage.RunStore) error {
				if err := s.DeleteRun(cmd.Context(), args[0]); err != nil {
					return notFound(args[0], err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "deleted", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(list, show, del)
	return cmd
}

func withStore(ctx context.Context, g *globalFlags, fn func(storage.RunStore) error) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	store, err := setup.Store(ctx, cfg)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("storage is disabled (storage.type is none)")
	}
	defer closeStore(ctx, store)
	return fn(store)
}

func notFound(id string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("run %s not found", id)
	}
	return err
}

func printRuns(w io.Writer, page *storage.RunList) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tITERATIONS\tCREATED\tTASK")
	for _, r := range page.Data {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", r.ID, r.Status, r.Iterations,
			r.CreatedAt.Local().Format(time.DateTime), firstLine(r.Task, 60))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if page.HasMore {
		fmt.Fprintf(w, "more runs available, continue with --after %s\n", page.LastID)
	}
	return nil
}

func firstLine(s string, limit int) string {
	for i, c := range s {
		if c == '\n' {
			s = s[:i]
			break
		}
	}
	if r := []rune(s); len(r) > limit {
		return string(r[:limit-1]) + "…"
	}
	return s
}
