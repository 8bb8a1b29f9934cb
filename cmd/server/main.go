package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/lexiqai/translation-gateway/internal/audio"
	"github.com/lexiqai/translation-gateway/internal/cache"
	"github.com/lexiqai/translation-gateway/internal/config"
	"github.com/lexiqai/translation-gateway/internal/gateway"
	"github.com/lexiqai/translation-gateway/internal/observability"
	"github.com/lexiqai/translation-gateway/internal/pipeline"
	"github.com/lexiqai/translation-gateway/internal/session"
	"github.com/lexiqai/translation-gateway/internal/stt"
	"github.com/lexiqai/translation-gateway/internal/translate"
	"github.com/lexiqai/translation-gateway/internal/tts"
)

// grpcServiceName is the name reported by the gRPC health service
const grpcServiceName = "translation.Gateway"

type adapters struct {
	transcriber stt.Transcriber
	translator  translate.Translator
	synth       tts.Synthesizer
	checks      map[string]observability.HealthCheckFunc
	close       func()
}

func buildAdapters(ctx context.Context, cfg *config.Config) (*adapters, error) {
	if cfg.AdapterProvider == config.ProviderEcho {
		return &adapters{
			transcriber: stt.NewEchoTranscriber(),
			translator:  translate.NewEchoTranslator(),
			synth:       tts.NewToneSynthesizer(),
			checks:      map[string]observability.HealthCheckFunc{},
			close:       func() {},
		}, nil
	}

	deepgram := stt.NewDeepgramTranscriber(cfg)
	gemini, err := translate.NewGeminiTranslator(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini translator: %w", err)
	}
	cartesia := tts.NewCartesiaSynthesizer(cfg)

	return &adapters{
		transcriber: deepgram,
		translator:  gemini,
		synth:       cartesia,
		checks: map[string]observability.HealthCheckFunc{
			"deepgram": deepgram.Ready,
			"gemini":   gemini.Ready,
			"cartesia": cartesia.Ready,
		},
		close: func() { gemini.Close() },
	}, nil
}

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
		Str("port", cfg.Port).
		Str("grpc_port", cfg.GRPCPort).
		Str("adapter_provider", cfg.AdapterProvider).
		Int("pipeline_depth", cfg.PipelineDepth).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Translation Gateway starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ad, err := buildAdapters(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize adapters")
	}
	defer ad.close()

	outputs, err := cache.New(ad.translator, ad.synth, cfg.CacheSize, cfg.AudioRefCacheSize)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create dual output cache")
	}
	outputs.CallTimeout = cfg.AdapterTimeout()

	vad := audio.DefaultVADConfig()
	vad.EnergyThreshold = cfg.VADEnergyThreshold
	processor := pipeline.NewProcessor(ad.transcriber, outputs, cfg.AdapterTimeout(), vad)

	registry := session.NewRegistry(processor, session.OptionsFromConfig(cfg))
	go registry.Run(ctx)

	// Create HTTP server
	mux := http.NewServeMux()
	gateway.NewServer(registry, processor, cfg.QualityProbeInterval(), cfg.MaxChunkBytes).Routes(mux)

	// Health check endpoint
	mux.HandleFunc("/health", observability.HealthCheckHandler())

	// Readiness covers the registry plus every remote adapter's circuit breaker
	checks := ad.checks
	checks["registry"] = func(ctx context.Context) (bool, error) {
		if !registry.Accepting() {
			return false, fmt.Errorf("registry is shutting down")
		}
		return true, nil
	}
	mux.HandleFunc("/ready", observability.ReadinessHandler(checks))

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// WebSocket connections are long lived, so only the header read is bounded
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// gRPC health service for orchestrators that probe over gRPC
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(grpcServiceName, healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		logger.Fatal().Err(err).Str("grpc_port", cfg.GRPCPort).Msg("Failed to listen for gRPC")
	}
	go func() {
		if err := grpcServer.Serve(grpcListener); err != nil {
			logger.Error().Err(err).Msg("gRPC health server stopped")
		}
	}()

	// Start server in a goroutine
	go func() {
		endpoint := fmt.Sprintf("ws://localhost:%s/ws", cfg.Port)
		if cfg.PublicURL != "" {
			endpoint = cfg.PublicURL + "/ws"
		}
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", endpoint).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down server...")

	healthServer.SetServingStatus(grpcServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := registry.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to end every session")
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	grpcServer.GracefulStop()

	logger.Info().Msg("Server exited gracefully")
}
