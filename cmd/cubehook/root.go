package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dokzlo13/cubehook/internal/app"
	"github.com/dokzlo13/cubehook/internal/config"
)

var (
	configPath string
	logLevel   string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
}

var rootCmd = &cobra.Command{
	Use:           "cubehook",
	Short:         "Drive a desk robot from webhooks",
	Long:          "cubehook accepts webhook calls (IFTTT, CI notifications) and plays robot sequences for them in the background.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

// loadConfig loads the configuration and sets up logging from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	setupLogging(cfg.Log.Level, cfg.Log.UseJSON, cfg.Log.Colors)
	return cfg, nil
}

func serve() error {
	cfg, err := loadConfig()
	if err != nil {
		setupLogging("info", false, true)
		log.Error().Err(err).Msg("Failed to load configuration")
		return err
	}

	log.Info().Str("config", configPath).Str("version", version).Msg("Starting cubehook")

	// Create application
	application, err := app.New(cfg, configPath)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create application")
		return err
	}

	// Create context that cancels on shutdown signal
	ctx := app.SignalContext()

	// Start the application
	if err := application.Start(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to start application")
		_ = application.Stop()
		return err
	}

	// Wait for shutdown
	application.Wait()

	// Graceful shutdown
	if err := application.Stop(); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
		return err
	}
	return nil
}
