// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/adxyz/adserve/pkg/analytics"
	"github.com/adxyz/adserve/pkg/config"
	"github.com/adxyz/adserve/pkg/inventory"
	"github.com/adxyz/adserve/pkg/log"
	"github.com/adxyz/adserve/pkg/moderation"
	"github.com/adxyz/adserve/pkg/performance"
	"github.com/adxyz/adserve/pkg/sales"
	"github.com/adxyz/adserve/pkg/selection"
)

var (
	configPath = flag.String("config", "", "Path to YAML config file")
	listenAddr = flag.String("listen", "", "Listen address override")
	logLevel   = flag.String("log-level", "", "Log level override")

	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	flag.Parse()

	fmt.Printf("adserved %s (built: %s)\n", Version, BuildTime)

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Printf("Failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger := log.NewWithLevel(cfg.LogLevel)
	defer logger.Sync()

	server := NewServer(cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	server.Start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

// Server wires every engine behind the HTTP surface.
type Server struct {
	cfg *config.Config

	store      *inventory.Store
	moderation *moderation.Engine
	selection  *selection.Engine
	tracker    *performance.Tracker
	analytics  *analytics.Engine
	sales      *sales.Integration

	httpServer *http.Server
	log        log.Logger
}

// NewServer builds the component graph.
func NewServer(cfg *config.Config, logger log.Logger) *Server {
	store := inventory.NewStore(logger)
	mod := moderation.NewEngine(store, logger)
	sel := selection.NewEngine(store, mod, selection.Options{
		ShortlistSize: cfg.Serving.ShortlistSize,
		FrequencyCap:  cfg.Serving.FrequencyCap,
	}, logger)
	tracker := performance.NewTracker(logger)
	an := analytics.NewEngine(cfg.Analytics, logger)
	integration := sales.NewIntegration(store, mod, sel, logger)

	s := &Server{
		cfg:        cfg,
		store:      store,
		moderation: mod,
		selection:  sel,
		tracker:    tracker,
		analytics:  an,
		sales:      integration,
		log:        logger,
	}

	router := mux.NewRouter()
	s.routes(router)
	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start launches the HTTP listener, the analytics ingest loop and the
// insight schedule.
func (s *Server) Start(ctx context.Context) {
	s.analytics.Start()
	go s.analytics.Run(ctx, s.tracker.Events())

	go func() {
		s.log.Info("http server listening", "addr", s.cfg.ListenAddr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("http server failed", "error", err)
		}
	}()
}

// Shutdown stops the HTTP server and tears down analytics state.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.analytics.Destroy()
	return err
}
