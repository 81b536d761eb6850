package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"warranty_reminder/internal/infra/config"
	"warranty_reminder/internal/infra/httpapi"
	"warranty_reminder/internal/infra/logger"
	"warranty_reminder/internal/infra/scheduler"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func loadConfig() (*config.AppConfig, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger.Init(cfg)
	logger.Log.WithFields(logrus.Fields{
		"environment": cfg.Environment,
		"driver":      cfg.StorageDriver,
		"interval":    cfg.SchedulerInterval,
	}).Info("Configuration loaded.")
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and the admin HTTP surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			d, err := buildDeps(ctx, cfg)
			if err != nil {
				logger.Log.WithError(err).Error("Could not initialize dependencies")
				return err
			}
			defer d.Close()

			coord := scheduler.NewCoordinator(d.dispatch, scheduler.NewEnvLeaderResolver(), cfg.SchedulerInterval, logger.Component("scheduler"))
			if err := coord.Start(); err != nil {
				logger.Log.WithError(err).Error("Could not start scheduler")
				return err
			}
			defer coord.Stop()

			router := httpapi.NewRouter(coord, httpapi.Options{
				AdminToken:     cfg.AdminToken,
				AllowedOrigins: cfg.CORSAllowedOrigins,
			}, logger.Component("http"))
			srv := httpapi.NewServer(cfg.HTTPAddr, router)

			errCh := make(chan error, 1)
			go func() {
				logger.Log.WithField("addr", cfg.HTTPAddr).Info("Admin HTTP listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case <-ctx.Done():
			case err := <-errCh:
				if err != nil {
					logger.Log.WithError(err).Error("Admin HTTP server failed")
					return err
				}
			}

			logger.Log.Info("Shutting down application...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Log.WithError(err).Warn("Admin HTTP shutdown incomplete")
			}
			return nil
		},
	}
}

// triggerCmd asks the running server for a manual pass, so the pass shares that
// process's dedup ledger and run lock.
func triggerCmd() *cobra.Command {
	var (
		serverURL string
		timeout   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Ask the running server for one manual notification pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			admin := config.LoadAdminClient()
			if admin.AdminToken == "" {
				return errors.New("ADMIN_TOKEN is not set; the server does not expose admin endpoints without it")
			}
			if serverURL == "" {
				serverURL = adminBaseURL(admin.HTTPAddr)
			}
			res, err := requestTrigger(cmd.Context(), &http.Client{Timeout: timeout}, serverURL, admin.AdminToken)
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
	cmd.Flags().StringVar(&serverURL, "url", "", "base URL of the running server (default derived from HTTP_ADDR)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "how long to wait for the pass to finish")
	return cmd
}

// adminBaseURL turns a listen address into a URL reachable from the same host.
func adminBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// requestTrigger posts to the admin trigger endpoint. A 409 maps to
// scheduler.ErrAlreadyRunning.
func requestTrigger(ctx context.Context, client *http.Client, baseURL, token string) (scheduler.TriggerResult, error) {
	var res scheduler.TriggerResult
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+"/admin/scheduler/trigger", nil)
	if err != nil {
		return res, fmt.Errorf("build trigger request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return res, fmt.Errorf("reach server at %s: %w", baseURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		return res, scheduler.ErrAlreadyRunning
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return res, fmt.Errorf("trigger failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return res, fmt.Errorf("decode trigger result: %w", err)
	}
	return res, nil
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print whether this process would own the scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(scheduler.NewEnvLeaderResolver().Resolve())
		},
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
