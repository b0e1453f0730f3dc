package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/joshp123/gobike/internal/config"
	"github.com/joshp123/gobike/internal/health"
	"github.com/joshp123/gobike/internal/homeassistant"
	"github.com/joshp123/gobike/internal/influx"
	"github.com/joshp123/gobike/internal/poller"
	"github.com/joshp123/gobike/internal/rate"
	"github.com/joshp123/gobike/internal/server"
	"github.com/joshp123/gobike/internal/session"
	"github.com/joshp123/gobike/mysmartbike"
)

func serveMain(args []string) {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := flags.String("config", "", "Path to config.yaml (default: search path)")
	debug := flags.Bool("debug", false, "Enable debug logging")
	_ = flags.Parse(args)

	logger, err := newLogger(*debug)
	if err != nil {
		fatal("serve", err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Sugar()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("serve", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var blobStore session.BlobStore
	if cfg.Blob.Configured() {
		store, err := session.NewS3Store(cfg.Blob)
		if err != nil {
			fatal("serve", err)
		}
		blobStore = store
	}

	manager, err := session.NewManager(session.Config{
		BaseURL:   cfg.MySmartBike.BaseURL,
		StatePath: cfg.MySmartBike.StateFile,
	}, cfg.MySmartBike.BootstrapFile, blobStore)
	if err != nil {
		fatal("serve", err)
	}
	if cfg.Session.RefreshEnabled {
		manager.StartWithInterval(ctx, cfg.Session.RefreshInterval())
	}

	// The cloud publishes no rate-limit headers; the static budget
	// keeps the bridge well under what the mobile app generates.
	decl := rate.Provider(session.Provider).
		MaxRequestsPer(rate.Minute, 6).
		MaxRequestsPer(rate.Hour, 120).
		CacheFor(30 * time.Second).
		ReadHeaders(rate.StandardHeaders())
	httpClient := rate.WrapHTTP(decl, &http.Client{Timeout: 30 * time.Second})

	client, err := mysmartbike.NewClient(mysmartbike.Config{
		BaseURL:    cfg.MySmartBike.BaseURL,
		Limit:      cfg.MySmartBike.Limit,
		HTTPClient: httpClient,
	}, manager)
	if err != nil {
		fatal("serve", err)
	}

	store := poller.NewStore()

	var sinks []poller.Sink
	components := []health.Component{manager}

	if cfg.MQTT.Enabled {
		publisher, err := homeassistant.NewPublisher(cfg.MQTT, log)
		if err != nil {
			fatal("serve", err)
		}
		defer publisher.Close()
		sinks = append(sinks, publisher)
		components = append(components, publisher)
	}
	if cfg.Influx.Enabled {
		writer, err := influx.NewWriter(cfg.Influx, log)
		if err != nil {
			fatal("serve", err)
		}
		defer writer.Close()
		sinks = append(sinks, writer)
		components = append(components, writer)
	}

	p := poller.New(client, store, sinks, cfg.MySmartBike.PollInterval(), log)
	components = append(components, p)

	if err := health.ValidateComponents(components); err != nil {
		fatal("serve", err)
	}

	shared := append(session.MetricsCollectors(), rate.MetricsCollectors()...)
	registry := health.MetricsRegistry(components, shared...)
	registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "gobike_build_info",
		Help: "Build information",
	}, func() float64 { return 1 }))

	if err := server.WriteDashboards(cfg.DashboardDir); err != nil {
		log.Warnw("dashboard provisioning failed", "dir", cfg.DashboardDir, "error", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/health", server.HealthHandler(components))
	mux.Handle("/metrics", server.MetricsHandler(registry))
	mux.Handle("/dashboards/", server.DashboardsHandler(server.DashboardsMap()))
	mux.Handle("/api/v1/bikes", server.BikesHandler(store))
	mux.Handle("/api/v1/bikes/", server.BikesHandler(store))

	httpServer := server.NewHTTPServer(cfg.HTTPAddr, mux)
	grpcServer, err := server.NewGRPCServer(cfg.GRPCAddr)
	if err != nil {
		fatal("serve", err)
	}
	grpcServer.SyncComponentHealth(ctx, components, 15*time.Second)

	go p.Run(ctx)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("http serve", "error", err)
		}
	}()
	go func() {
		if err := grpcServer.Serve(); err != nil {
			log.Fatalw("grpc serve", "error", err)
		}
	}()

	log.Infow("gobike started",
		"http_addr", cfg.HTTPAddr,
		"grpc_addr", cfg.GRPCAddr,
		"poll_interval", cfg.MySmartBike.PollInterval(),
		"mqtt", cfg.MQTT.Enabled,
		"influx", cfg.Influx.Enabled,
	)

	<-ctx.Done()
	log.Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warnw("http shutdown", "error", err)
	}
	grpcServer.GracefulStop()
}

func newLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}
