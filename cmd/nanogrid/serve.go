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

	"github.com/arthur-debert/nanogrid/nanogrid/gridfilter"
	"github.com/arthur-debert/nanogrid/nanogrid/server"
)

const shutdownTimeout = 5 * time.Second

func (cli *CLI) addServeCommand() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the data file over HTTP with a live filter stream",
		Long: `Starts an HTTP server exposing the data file's fields, records and filter,
per-column values and filters, chooser suggestions, and a websocket at /api/ws
streaming filter and record changes. With --remember the chooser state is
restored on start and saved as it changes.`,
		Args: cobra.NoArgs,
		RunE: cli.runServe,
	}
	cmd.Flags().String("addr", "127.0.0.1:8080", "Listen address")
	cmd.Flags().Bool("remember", false, "Restore and save the filter in the state backend")
	cli.rootCmd.AddCommand(cmd)
}

func (cli *CLI) runServe(cmd *cobra.Command, _ []string) error {
	remember, _ := cmd.Flags().GetBool("remember")
	sess, err := cli.openSession(remember)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	grid, err := gridfilter.New(gridfilter.Config{
		Bind:     sess.store,
		TreeMode: cli.v.GetBool("tree"),
		Logger:   cli.logger,
	})
	if err != nil {
		return WrapError("create grid filter", err)
	}
	defer grid.Destroy()

	srv, err := server.New(server.Config{
		Store:   sess.store,
		Grid:    grid,
		Chooser: sess.chooser,
		Logger:  cli.logger,
	})
	if err != nil {
		return WrapError("create server", err)
	}
	defer srv.Close()

	addr := cli.v.GetString("addr")
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		cli.logger.Info("listening", "addr", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return WrapError("serve "+addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	cli.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return WrapError("shut down", err)
	}
	return nil
}
