package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/docsearcher/internal/collection"
	"github.com/hyperjump/docsearcher/pkg/utils"
)

func newIndexCmd(opts *rootOptions) *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "index [collection...]",
		Short: "Index collections (all when none are named)",
		Long: `Index one or more collections and wait for the run to finish.

By default only files that changed since the last run are re-extracted. Use --full to
rebuild the index from scratch. Interrupting the command stops indexing and keeps the
previous index.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runIndex(ctx, cmd, opts, args, full)
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "Rebuild the index from scratch")
	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, opts *rootOptions, names []string, full bool) error {
	a, err := openApp(opts, utils.NewCommandLogger)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	cols, err := a.resolve(names)
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No collections.")
		return nil
	}

	// Init opens existing indexes and starts a full build for collections that have none.
	if err := a.registry.Init(ctx); err != nil {
		a.logger.Warn("collections failed to initialize", zap.Error(err))
	}
	for _, c := range cols {
		if _, err := c.Index(full); err != nil && !errors.Is(err, collection.ErrIndexingInProgress) {
			return fmt.Errorf("%s: %w", c.Name(), err)
		}
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		for _, c := range cols {
			c.StopRequest()
		}
	}()

	waitErr := a.wait(context.Background(), cols)
	for _, c := range cols {
		st := c.Status()
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s, %d documents\n", st.Name, st.State, st.NumberOfDocs)
	}
	return waitErr
}
