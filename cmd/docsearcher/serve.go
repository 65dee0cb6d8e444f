package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/docsearcher/internal/server"
	"github.com/hyperjump/docsearcher/pkg/utils"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var reindex bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts, reindex)
		},
	}
	cmd.Flags().BoolVar(&reindex, "reindex", false, "Run an incremental index of every valid collection at startup")
	return cmd
}

func runServe(ctx context.Context, opts *rootOptions, reindex bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(opts, utils.NewLogger)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.init(ctx, reindex || a.index.ReindexOnStart); err != nil {
		a.logger.Warn("no collection could be initialized", zap.Error(err))
	}

	srv := server.NewServer(a.registry, a.search, a.gateway, &a.cfg.Server, a.logger)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	a.logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		a.logger.Warn("server shutdown", zap.Error(err))
	}
	a.close(shutdownCtx)
	return serveErr
}
