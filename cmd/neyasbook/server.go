package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/neyasbook/neyasbook/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		return runServer(addr)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default :<server.port>)")
}

func runServer(addr string) error {
	fmt.Fprintf(os.Stderr, "neyasbook version %s\n", version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if addr == "" {
		addr = fmt.Sprintf(":%d", a.cfg.Server.Port)
	}
	if a.cfg.Server.APIToken != "" {
		slog.Info("API bearer token required")
	}

	handler := api.NewHandler(api.Deps{
		Repo:       a.repo,
		Sweeper:    a.sweeper,
		Chat:       a.chat,
		CORSOrigin: a.cfg.Server.CORSOrigin,
		Token:      a.cfg.Server.APIToken,
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("neyasbook listening", "addr", addr, "storage", a.cfg.Storage.Backend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
