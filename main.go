package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prappser/prappser_cdn/internal"
	"github.com/prappser/prappser_cdn/internal/catalog"
	"github.com/prappser/prappser_cdn/internal/health"
	"github.com/prappser/prappser_cdn/internal/keyspace"
	"github.com/prappser/prappser_cdn/internal/server"
	"github.com/prappser/prappser_cdn/internal/status"
	"github.com/prappser/prappser_cdn/internal/storage"
	"github.com/prappser/prappser_cdn/internal/transport"
	"github.com/prappser/prappser_cdn/internal/websocket"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/valyala/fasthttp"
)

const version = "1.0.0"

func main() {
	configPath := pflag.StringP("config", "c", internal.DefaultConfigPath, "path to the YAML configuration file")
	pflag.Parse()

	config, err := internal.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
		return
	}
	if err := internal.SetupLogging(config.Log); err != nil {
		log.Fatal().Err(err).Msg("Error configuring logging")
		return
	}

	ks, err := keyspace.FromResourceSpace(config.Server.ResourceSpace)
	if err != nil {
		log.Fatal().Err(err).Msg("Error parsing resource space")
		return
	}

	backend, err := storage.NewBackend(config.BackendConfig())
	if err != nil {
		log.Fatal().Err(err).Str("type", config.Storage.Type).Msg("Error initializing storage")
		return
	}

	var (
		cat               *catalog.Catalog
		resourceEndpoints *catalog.Endpoints
		resourceCounter   status.ResourceCounter
	)
	if config.Server.CatalogPath != "" {
		cat, err = catalog.Open(config.Server.CatalogPath)
		if err != nil {
			log.Fatal().Err(err).Msg("Error opening catalog")
			return
		}
		defer cat.Close()
		resourceEndpoints = catalog.NewEndpoints(cat)
		resourceCounter = cat
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Remote sessions and the local server share one router.
	bus := transport.NewBus()
	hub := websocket.NewHub(bus.Router(), config.Broker.Compress)
	go hub.Run(ctx)

	var wsHandler *websocket.Handler
	if config.Broker.Enabled {
		wsHandler = websocket.NewHandler(hub)
	}

	srv := server.New(bus.Session(), ks, storage.NewShardStore(backend), cat)
	serverErrs := srv.Serve(ctx)

	healthEndpoints := health.NewEndpoints(version, health.Check{
		Name: "storage",
		Run: func(ctx context.Context) error {
			_, err := backend.Exists(ctx, ".health")
			return err
		},
	})
	statusEndpoints := status.NewEndpoints(version, hub, resourceCounter)

	requestHandler := internal.NewRequestHandler(config, healthEndpoints, statusEndpoints, resourceEndpoints, wsHandler)
	httpServer := &fasthttp.Server{
		Handler:            requestHandler,
		Name:               "prappser_cdn",
		MaxRequestBodySize: 1 << 20,
	}

	httpErrs := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", config.Server.HTTPAddr).
			Str("resourceSpace", ks.Pattern()).
			Bool("broker", config.Broker.Enabled).
			Msg("CDN node listening")
		httpErrs <- httpServer.ListenAndServe(config.Server.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
	case err := <-serverErrs:
		log.Error().Err(err).Msg("Server loop stopped")
	case err := <-httpErrs:
		log.Error().Err(err).Msg("HTTP server stopped")
	}

	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error shutting down HTTP server")
	}
}
