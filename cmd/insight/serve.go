package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/PBLIZZ/MindfulCRM-sub000/internal/config"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/mcp"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/scheduler"
)

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	if err := a.withPipeline(); err != nil {
		return err
	}
	a.startReporter(ctx)

	if a.cfg.Schedule.Enabled {
		sched, err := scheduler.New(a.cfg.SchedulerConfig(), a.costs, a.activity, a.limiter, a.logger)
		if err != nil {
			return err
		}
		sched.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := sched.Stop(stopCtx); err != nil {
				a.logger.Warn("scheduler did not stop in time", "error", err)
			}
		}()
	}

	if path := os.Getenv(config.PathEnv); path != "" {
		go func() {
			if err := config.Watch(ctx, path, a.logger, a.applyConfig); err != nil {
				a.logger.Warn("config watch disabled", "path", path, "error", err)
			}
		}()
	}

	server := mcp.NewServer(mcp.Config{
		Services:      a.mcpServices(),
		Resolver:      a.apiKeys,
		AuthEnabled:   a.cfg.Auth.Enabled,
		DefaultUser:   a.cfg.Auth.DefaultUser,
		TransportMode: a.cfg.Transport.Mode,
		Version:       version,
		Logger:        a.logger,
	})

	if a.cfg.Transport.Mode == "stdio" {
		return runStdioMode(ctx, a, server)
	}
	return runHTTPMode(ctx, a, server)
}

func runStdioMode(ctx context.Context, a *app, server *sdkmcp.Server) error {
	a.logger.Info("starting stdio transport", "auth", "disabled", "user_id", a.cfg.Auth.DefaultUser)

	// Run blocks until stdin closes or ctx is canceled.
	if err := server.Run(ctx, &sdkmcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stdio server: %w", err)
	}
	a.logger.Info("shutting down")
	return nil
}

func runHTTPMode(ctx context.Context, a *app, server *sdkmcp.Server) error {
	mcpHandler := sdkmcp.NewStreamableHTTPHandler(
		func(r *http.Request) *sdkmcp.Server { return server },
		&sdkmcp.StreamableHTTPOptions{
			Stateless:      false,
			SessionTimeout: 30 * time.Minute,
		},
	)

	router := http.NewServeMux()
	router.Handle("/mcp", mcpHandler)
	router.Handle("/mcp/", mcpHandler)
	router.HandleFunc("/health", healthHandler(a))

	addr := fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server listening", "addr", addr, "auth", a.cfg.Auth.Enabled)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a.logger.Info("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// healthHandler reports ok while the database answers.
func healthHandler(a *app) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.db.PingContext(ctx); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}
