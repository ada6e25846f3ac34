package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Sh0oya/Jour/internal/analysis"
	"github.com/Sh0oya/Jour/internal/capture"
	"github.com/Sh0oya/Jour/internal/config"
	"github.com/Sh0oya/Jour/internal/ledger"
	"github.com/Sh0oya/Jour/internal/live"
	"github.com/Sh0oya/Jour/internal/observability"
	"github.com/Sh0oya/Jour/internal/playback"
	"github.com/Sh0oya/Jour/internal/session"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("user_id", cfg.UserID).
		Str("tier", cfg.Tier).
		Str("live_model", cfg.LiveModel).
		Bool("voice_output", cfg.VoiceOutputEnabled).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Jour voice journaling starting")

	store, err := ledger.OpenSQLite(cfg.LedgerPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.LedgerPath).Msg("Failed to open ledger")
	}
	defer store.Close()

	analyzer := analysis.NewGeminiAnalyzer(cfg.GeminiAPIKey, cfg.AnalysisModel, logger)

	micCtx, err := capture.NewContext()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize audio backend")
	}
	defer micCtx.Close()

	sink, err := playback.NewDeviceSink(cfg.OutputSampleRate, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open playback device")
	}
	defer sink.Close()

	// Observability endpoints run beside the session
	mux := http.NewServeMux()
	mux.HandleFunc("/health", observability.HealthCheckHandler())
	mux.HandleFunc("/ready", observability.ReadinessHandler(map[string]observability.HealthCheckFunc{
		"ledger": func(ctx context.Context) (bool, error) {
			if err := store.Ping(ctx); err != nil {
				return false, err
			}
			return true, nil
		},
	}))
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info().Str("port", cfg.Port).Msg("Observability server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Observability server failed to start")
		}
	}()

	controller := session.New(session.Config{
		UserID:             cfg.UserID,
		Tier:               config.Tier(cfg.Tier),
		DailyCapSeconds:    cfg.DailyCap(config.Tier(cfg.Tier)),
		GatingDelay:        time.Duration(cfg.GatingDelaySeconds) * time.Second,
		VoiceOutput:        cfg.VoiceOutputEnabled,
		OutputSampleRate:   cfg.OutputSampleRate,
		MinTranscriptChars: cfg.MinTranscriptChars,
		Live: live.Config{
			APIKey:            cfg.GeminiAPIKey,
			Model:             cfg.LiveModel,
			VoiceName:         cfg.VoiceName,
			SystemInstruction: cfg.SystemInstruction,
			AudioOutput:       cfg.VoiceOutputEnabled,
			InputSampleRate:   cfg.InputSampleRate,
		},
	}, session.Deps{
		Transport: live.NewClient(logger),
		Capture: capture.New(micCtx, capture.Config{
			SampleRate: cfg.InputSampleRate,
			BufferSize: cfg.CaptureBufferSize,
		}, logger),
		Playback: playback.NewScheduler(sink, playback.WallClock(), logger),
		Ledger:   store,
		Analyzer: analyzer,
		Logger:   logger,
	})

	go controller.Run(context.Background())

	// First signal stops the session; teardown then saves the entry
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info().Msg("Stop requested, ending session...")
		controller.Stop()
		<-controller.Done()
	case <-controller.Done():
	}

	// Let analysis enrichment finish before exiting
	controller.Wait()

	res := controller.Result()
	if res.Err != nil {
		logger.Error().Err(res.Err).Str("state", res.State.String()).Msg("Session ended with error")
	} else if res.EntryID != "" {
		logger.Info().
			Str("entry_id", res.EntryID).
			Int("duration_seconds", res.DurationSeconds).
			Msg("Journal entry saved")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Observability server forced to shutdown")
	}

	logger.Info().Msg("Exited gracefully")
}
