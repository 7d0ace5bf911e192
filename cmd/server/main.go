package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Brownie44l1/scan-triage/internal/handlers"
	"github.com/Brownie44l1/scan-triage/internal/triage"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "scan-triage",
		Short:        "Chest scan triage: CT/X-ray routing, disease models and Grad-CAM heatmaps",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CONFIG_PATH"), "path to config.yaml")

	root.AddCommand(newServeCmd(&configPath), newPredictCmd(&configPath))
	return root
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			return serve(a)
		},
	}
}

func newPredictCmd(configPath *string) *cobra.Command {
	var modelType string

	cmd := &cobra.Command{
		Use:   "predict <image>",
		Short: "Classify one image and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			res := a.pipeline.ProcessFile(cmd.Context(), args[0], modelType)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().StringVar(&modelType, "model", triage.RequestDefault,
		"model to report: auto, default, ct_efficientnetv2s, ct_resnet50, xray_mobilenetv2, xray_vgg16")
	return cmd
}

func serve(a *app) error {
	cfg := a.cfg

	handler, err := handlers.NewHandler(a.pipeline, cfg.MaxUploadBytes(), cfg.Cache.Size, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create handler: %w", err)
	}

	opts := handlers.RouterOptions{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		RateLimitRPS:   cfg.RateLimit.RPS,
		RateLimitBurst: cfg.RateLimit.Burst,
		TrustProxy:     cfg.RateLimit.TrustProxy,
		Logger:         a.logger,
	}
	if a.local != nil {
		opts.HeatmapDir = a.local.Dir()
		opts.HeatmapPrefix = a.local.URLPrefix()
	}

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handlers.NewRouter(handler, opts),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.Strings("endpoints", []string{"GET /health", "POST /predict", "GET /metrics"}),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-stop:
	}

	a.logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
