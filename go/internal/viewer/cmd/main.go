package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/deckcast/go/internal/viewer/config"
	"github.com/mcdev12/deckcast/go/internal/viewer/document"
	"github.com/mcdev12/deckcast/go/internal/viewer/document/fitzraster"
	"github.com/mcdev12/deckcast/go/internal/viewer/document/pdfdoc"
	"github.com/mcdev12/deckcast/go/internal/viewer/frame"
	"github.com/mcdev12/deckcast/go/internal/viewer/preview"
	"github.com/mcdev12/deckcast/go/internal/viewer/screen"
	"github.com/mcdev12/deckcast/go/internal/viewer/session"
	"github.com/mcdev12/deckcast/go/internal/viewer/transport"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("room", cfg.Room).
		Str("role", cfg.Role).
		Str("transport", cfg.Transport).
		Str("rasterizer", cfg.Rasterizer).
		Str("preview_addr", cfg.PreviewAddr).
		Msg("starting deckcast viewer")

	clock := clockwork.NewRealClock()

	loader, err := pdfdoc.NewLoader(cfg.DocumentBaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create document loader")
	}

	var rasterizer document.Rasterizer
	switch cfg.Rasterizer {
	case config.RasterizerFitz:
		fz := fitzraster.New()
		defer func() {
			if err := fz.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close rasterizer")
			}
		}()
		rasterizer = fz
	default:
		rasterizer = document.NewOutlineRasterizer()
	}

	sc, err := screen.New(cfg.ScreenSpecs()...)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create screen")
	}

	sess, err := session.New(session.Config{
		Room:           cfg.Room,
		Role:           cfg.SessionRole(),
		Document:       cfg.Document,
		ResizeDebounce: cfg.ResizeDebounce,
		SettleRetries:  cfg.SettleRetries,
	}, session.Options{
		Transport:  newTransport(cfg, clock),
		Loader:     loader,
		Rasterizer: rasterizer,
		Frames:     frame.NewClockScheduler(clock, cfg.FrameInterval()),
		Clock:      clock,
		Surfaces:   sc.SurfaceConfigs(),
		Geometry:   sc,
		Indicator:  sc,
		Display:    sc,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create session")
	}

	previewConfig := preview.DefaultConfig()
	previewConfig.Addr = cfg.PreviewAddr
	server := preview.NewServer(previewConfig, sess, sc)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessionDone := make(chan error, 1)
	go func() {
		sessionDone <- sess.Run(ctx)
	}()

	// Start preview server
	go func() {
		if err := server.ListenAndServe(); err != nil {
			log.Fatal().Err(err).Msg("preview server failed")
		}
	}()

	// Wait for interrupt signal or for the session to give up
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case runErr = <-sessionDone:
		sessionDone = nil
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("preview server shutdown failed")
	}

	cancel()
	if sessionDone != nil {
		select {
		case runErr = <-sessionDone:
		case <-shutdownCtx.Done():
			log.Warn().Msg("session did not stop in time")
		}
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error().Err(runErr).Msg("viewer session failed")
	}
	log.Info().Msg("deckcast viewer shutdown complete")
}

func newTransport(cfg config.Config, clock clockwork.Clock) transport.Transport {
	switch cfg.Transport {
	case config.TransportNATS:
		natsConfig := transport.DefaultNATSConfig(cfg.Room)
		natsConfig.URL = cfg.NATS.URL
		natsConfig.SubjectPrefix = cfg.NATS.SubjectPrefix
		natsConfig.Stream = cfg.NATS.Stream
		natsConfig.ReconnectWait = cfg.ReconnectWait
		return transport.NewNATSClient(natsConfig, clock)
	default:
		wsConfig := transport.DefaultWebSocketConfig(cfg.ServerURL)
		wsConfig.ReconnectWait = cfg.ReconnectWait
		return transport.NewWebSocketClient(wsConfig, clock)
	}
}
