package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ccd/internal/server"
)

var (
	servePort int
	serveBind string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the completion daemon",
	Long: `Start the CCD HTTP daemon. The daemon keeps parsed translation units warm
across requests and serves completion and diagnostics queries for editor
clients over a JSON API.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveBind, "bind", "", "Address to bind to (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if serveBind != "" {
		cfg.Server.Bind = serveBind
	}

	logger := newLogger(cfg)

	p, err := buildPipeline(cfg, logger, true)
	if err != nil {
		return err
	}
	defer p.Close()

	if p.watcher != nil {
		if err := p.watcher.Start(); err != nil {
			logger.Warn("Flag watcher failed to start", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	srv := server.New(cfg.Server, p.dispatcher, p.cache, p.stats, p.watcher, logger)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		fmt.Printf("CCD daemon listening on http://%s:%d\n", cfg.Server.Bind, cfg.Server.Port)
		fmt.Println("Press Ctrl+C to stop")
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			logger.Error("Server error", map[string]interface{}{
				"error": err.Error(),
			})
			return err
		}
	case sig := <-shutdown:
		logger.Info("Received shutdown signal", map[string]interface{}{
			"signal": sig.String(),
		})

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Error during shutdown", map[string]interface{}{
				"error": err.Error(),
			})
			return err
		}
		logger.Info("Daemon stopped gracefully", nil)
	}

	return nil
}
