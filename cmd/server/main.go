package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"asactl/internal/app"
	"asactl/internal/config"

	"github.com/rs/zerolog"
)

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	configDir, err := config.Dir()
	if err != nil {
		logger.Fatal().Err(err).Msg("could not determine config directory")
	}

	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not load configuration")
	}

	container, err := app.Build(logger, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not build components")
	}

	logger.Info().
		Str("database", cfg.DatabasePath).
		Str("servers", cfg.ServersPath).
		Str("binaries", cfg.BinariesPath).
		Msg("asactl daemon starting")

	if err := container.Supervisor.ResetStatuses(); err != nil {
		logger.Warn().Err(err).Msg("could not reconcile server statuses")
	}

	// Resume idle monitoring for every server with an enabled policy.
	policies, err := container.Store.ListPolicies()
	if err != nil {
		logger.Warn().Err(err).Msg("could not list auto-shutdown policies")
	}
	for i := range policies {
		if !policies[i].Enabled {
			continue
		}
		if err := container.AutoShutdown.StartMonitoring(policies[i].ServerName); err != nil {
			logger.Warn().Err(err).Str("server", policies[i].ServerName).Msg("could not start auto-shutdown monitor")
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/jobs", container.Hub.ServeWs)

	listenAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: listenAddr, Handler: mux}

	go func() {
		logger.Info().Str("addr", listenAddr).Msg("job-progress stream listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("listener failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down")
	container.AutoShutdown.ClearAllTimers()
	container.Hub.Stop()
	_ = server.Close()
}
