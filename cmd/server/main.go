package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/illmedicine/livepay/internal/auth"
	"github.com/illmedicine/livepay/internal/config"
	"github.com/illmedicine/livepay/internal/distribution"
	"github.com/illmedicine/livepay/internal/earnings"
	"github.com/illmedicine/livepay/internal/google"
	"github.com/illmedicine/livepay/internal/handoff"
	"github.com/illmedicine/livepay/internal/httpapi"
	"github.com/illmedicine/livepay/internal/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := metrics.NewRegistry()
	signer := auth.NewSigner(cfg.Auth.PairingSecret)
	if !signer.Enabled() {
		logger.Warn("LIVEPAY_PAIRING_SECRET not set, ingest and streams will reject every credential")
	}

	hub := distribution.NewHub(logger)

	earningsSvc := earnings.NewService(logger)
	earningsSvc.StartResetScheduler()
	earningsSvc.StartEventMode()
	defer earningsSvc.Stop()

	googleClient := google.NewClient(cfg.Google, logger)

	publish := func(subject string, fields map[string]any) {
		msg, err := hub.Publish(subject, fields)
		if err != nil {
			logger.Error("stats publish failed", "error", err)
			return
		}
		reg.EventsBroadcast.Inc()
		var ev earnings.Event
		if err := json.Unmarshal(msg, &ev); err == nil && ev.Type != "" {
			earningsSvc.Ingest(ev)
		}
	}
	poller := google.NewPoller(googleClient, cfg.Google.Handles, cfg.Google.PollInterval, publish, reg, logger)
	go poller.Run(ctx)

	if cfg.Handoff.Path != "" {
		store, err := handoff.Open(cfg.Handoff.Path)
		if err != nil {
			logger.Error("failed to open handoff buffer", "error", err)
			os.Exit(1)
		}
		defer store.Close()
		go handoff.NewPoller(store, earningsSvc, cfg.Handoff.PollInterval, logger).Run(ctx)
	}

	api := httpapi.NewServer(signer, hub, googleClient, cfg.Google.Handles, earningsSvc, reg, logger)
	api.SetPollNow(func() { poller.Poll(ctx) })

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: api.Router(),
	}

	go func() {
		logger.Info("server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
		}
	}()

	waitForShutdown(logger, httpServer, cancel)
}

func waitForShutdown(logger *slog.Logger, server *http.Server, cancel context.CancelFunc) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	cancel()
	ctx, cancelTimeout := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelTimeout()

	logger.Info("shutting down")
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
