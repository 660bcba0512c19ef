// Command pixelbridged runs the WebSocket bridge daemon: the endpoint the
// browser-hosted editor connects to, the observability surface, and
// optional Consul registration.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lcx/pixelbridge/bridge"
	"github.com/lcx/pixelbridge/config"
	"github.com/lcx/pixelbridge/discovery"
	"github.com/lcx/pixelbridge/log"
)

func main() {
	var (
		configPath = flag.String("config", "./configs", "configuration directory")
		env        = flag.String("env", "development", "environment overlay directory")
	)
	flag.Parse()

	if err := run(*configPath, *env); err != nil {
		fmt.Fprintf(os.Stderr, "pixelbridged: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, env string) error {
	configManager := config.NewConfigManager()
	configManager.SetBasePath(configPath)
	configManager.SetEnvironment(env)
	config.SetInstance(configManager)
	defer configManager.Close()

	if err := log.InitializeWithConfigManager(configManager); err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}

	b, err := bridge.NewBridgeWithConfigManager(configManager)
	if err != nil {
		return err
	}
	b.Start()
	defer b.Stop()

	transport, err := bridge.NewWSTransportWithConfigManager(configManager, b)
	if err != nil {
		return err
	}
	if err := transport.Start(); err != nil {
		return err
	}

	observe := &http.Server{
		Addr:    b.Cfg().ObserveAddr,
		Handler: bridge.NewObserveMux(b),
	}
	go func() {
		if err := observe.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Str("addr", observe.Addr).Err(err).Msg("observe serve failed")
		}
	}()
	log.Info().Str("addr", observe.Addr).Msg("observe surface listening")

	registrar, err := discovery.NewRegistrarWithConfigManager(configManager)
	if err != nil {
		// Discovery is optional; a deployment without the config file
		// simply runs unregistered.
		log.Warn().Err(err).Msg("discovery config unavailable, registration disabled")
		registrar, _ = discovery.NewRegistrar(&discovery.DiscoveryCfg{Enabled: false})
	}
	if err := registrar.Start(); err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	log.Info().Str("signal", s.String()).Msg("shutting down")

	if err := registrar.Stop(); err != nil {
		log.Warn().Err(err).Msg("deregister failed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := transport.Stop(ctx); err != nil {
		log.Warn().Err(err).Msg("transport shutdown failed")
	}
	if err := observe.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("observe shutdown failed")
	}
	return nil
}
