/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/carverauto/metermon/pkg/cache"
	"github.com/carverauto/metermon/pkg/cloud"
	"github.com/carverauto/metermon/pkg/config"
	"github.com/carverauto/metermon/pkg/exporter"
	"github.com/carverauto/metermon/pkg/logger"
	"github.com/carverauto/metermon/pkg/probe"
	"github.com/carverauto/metermon/pkg/recon"
)

const (
	readTimeout     = 30 * time.Second
	writeTimeout    = 30 * time.Second
	idleTimeout     = 60 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to config file (JSON)")
	listenAddr := flag.String("web.listen-addr", "", "Address on which to expose metrics (overrides config)")
	flag.Parse()

	// credentials may live in a .env next to the binary; absence is fine
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cfg.ApplyEnv()

	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	mainLogger, err := logger.NewComponent("metermon", cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source, err := buildSource(ctx, cfg, *configPath, mainLogger)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", exporter.New(source, mainLogger.WithComponent("exporter")))

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	errCh := make(chan error, 1)

	go func() {
		mainLogger.Info().
			Str("listen_addr", cfg.ListenAddr).
			Str("mode", cfg.Mode).
			Msg("metermon starting")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	mainLogger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	return nil
}

// buildSource selects the acquisition strategy from config: local broadcast
// discovery with unicast fallback, or the vendor cloud relay.
func buildSource(ctx context.Context, cfg *config.Config, configPath string, mainLogger logger.Logger) (recon.Source, error) {
	if cfg.Mode == config.ModeCloud {
		client, err := cloud.NewClient(cfg.Cloud, mainLogger.WithComponent("cloud"))
		if err != nil {
			return nil, fmt.Errorf("failed to create cloud client: %w", err)
		}

		return client, nil
	}

	prober := probe.New(cfg.BroadcastAddr, mainLogger.WithComponent("probe"))

	engine := recon.NewEngine(
		prober,
		cache.New(),
		time.Duration(cfg.ProbeWait),
		time.Duration(cfg.ForgetTimeout),
		mainLogger.WithComponent("recon"),
	)

	if configPath != "" {
		err := config.Watch(ctx, configPath, mainLogger.WithComponent("config"), func(next *config.Config) {
			engine.UpdateTunables(time.Duration(next.ProbeWait), time.Duration(next.ForgetTimeout))
		})
		if err != nil {
			mainLogger.Warn().Err(err).Msg("config watch unavailable, tunables fixed for process lifetime")
		}
	}

	return engine, nil
}
