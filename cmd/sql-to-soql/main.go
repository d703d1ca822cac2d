package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crmbridge/sql-to-soql/cmd/sql-to-soql/api"
	"github.com/crmbridge/sql-to-soql/lib/plog"
)

func main() {
	var cfg api.Config
	configFile := flag.String("config", "", "configuration file")
	flag.Parse()

	logger := plog.New()

	if *configFile != "" {
		configContent, err := os.ReadFile(*configFile)
		if err != nil {
			logger.Errorf("failed to read config file: %v", err)
			os.Exit(1)
		}
		if err = json.Unmarshal(configContent, &cfg); err != nil {
			logger.Errorf("failed to parse config file: %v", err)
			os.Exit(1)
		}
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.LogLevel != "" {
		level, err := plog.ParseLevel(cfg.LogLevel)
		if err != nil {
			logger.Errorf("%v", err)
			os.Exit(1)
		}
		logger.SetLevel(level)
	}

	srv, err := api.NewServer(cfg, logger)
	if err != nil {
		logger.Errorf("failed to configure server: %v", err)
		os.Exit(1)
	}
	defer srv.Close()

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Infof("listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("server error: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Infof("shutting down server...")

	// Give server 30 seconds to finish requests
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Errorf("server forced to shutdown: %v", err)
	}

	logger.Infof("server stopped")
}
