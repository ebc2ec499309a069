package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/rebble-dev/asr-gateway/internal/app"
	"github.com/rebble-dev/asr-gateway/internal/config"
	"github.com/rebble-dev/asr-gateway/internal/events"
	"github.com/rebble-dev/asr-gateway/internal/httpapi"
	"github.com/rebble-dev/asr-gateway/internal/observability"
	"github.com/rebble-dev/asr-gateway/internal/service/asr"
	"github.com/rebble-dev/asr-gateway/internal/service/asr/elevenlabs"
	"github.com/rebble-dev/asr-gateway/internal/service/asr/groq"
	"github.com/rebble-dev/asr-gateway/internal/service/asr/mock"
	"github.com/rebble-dev/asr-gateway/internal/service/asr/wyoming"
	"github.com/rebble-dev/asr-gateway/internal/service/dispatch"
)

func main() {
	// Local development convenience; absent .env files are fine.
	_ = godotenv.Load()

	cfg := config.Load()
	application := app.New(cfg)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize recognition backend")
	}
	log.Info().Str("provider", provider.Name()).Msg("Using ASR provider")

	publisher := events.New(&events.Config{
		Enabled:   cfg.Kafka.Enabled,
		Brokers:   cfg.Kafka.Brokers,
		Topic:     cfg.Kafka.Topic,
		Principal: cfg.Service.Principal,
	})
	defer publisher.Close()

	dispatcher := dispatch.New(provider, publisher, cfg.ASR.Timeout)

	obs := observability.NewServer(":" + cfg.Service.MetricsPort)
	obs.Start()

	handler := httpapi.NewHandler(dispatcher)
	server := &http.Server{
		Addr:              ":" + cfg.Service.Port,
		Handler:           httpapi.NewRouter(application, handler),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	application.Start()
	go func() {
		log.Info().Str("addr", server.Addr).Msg("ASR gateway listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	application.Shutdown()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	if err := obs.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Observability server shutdown failed")
	}
}

// buildProvider resolves the configured provider kind to its concrete
// client. Selection happens exactly once; the instance is shared by all
// request workers for the process lifetime.
func buildProvider(cfg *config.Config) (asr.Provider, error) {
	switch cfg.ASR.Provider {
	case config.ProviderElevenLabs:
		return elevenlabs.New(cfg.ASR.APIKey)
	case config.ProviderGroq:
		return groq.New(cfg.ASR.APIKey)
	case config.ProviderWyoming:
		return wyoming.New(cfg.ASR.WyomingHost, cfg.ASR.WyomingPort), nil
	case config.ProviderMock:
		return mock.New(), nil
	default:
		return nil, fmt.Errorf("invalid ASR provider %q", cfg.ASR.Provider)
	}
}
