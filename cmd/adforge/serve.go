package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/ternarybob/adforge/internal/app"
	"github.com/ternarybob/adforge/internal/common"
	"github.com/ternarybob/adforge/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API, WebSocket feed and in-process agent backend",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	common.PrintBanner(config, logger)

	logger.Info().
		Int("port", config.Server.Port).
		Str("host", config.Server.Host).
		Msg("Starting AdForge server")

	application, err := app.New(config, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer application.Close()

	srv := server.New(application)

	serverErr := make(chan error, 1)
	common.SafeGo(logger, "httpServer", func() {
		serverErr <- srv.Start()
	})

	logger.Info().
		Str("url", fmt.Sprintf("http://%s:%d", config.Server.Host, config.Server.Port)).
		Msg("Server ready - Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info().Msg("Interrupt signal received")
	case err := <-serverErr:
		if err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown failed")
	}

	logger.Info().Msg("Server stopped")
	return nil
}
