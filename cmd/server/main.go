package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pipechat/pipechat-server/internal/app"
	"github.com/pipechat/pipechat-server/internal/config"
	"github.com/pipechat/pipechat-server/internal/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		opsAddr    string
		dbPath     string
		filesDir   string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:           "pipechat-server",
		Short:         "Multi-room chat relay server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := log.New(logLevel)

			cfg, path, err := config.Load(logger, configPath)
			if err != nil {
				logger.Error().Err(err).Msg("load config")
				return err
			}

			// Flags beat the config file.
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			if cmd.Flags().Changed("ops-addr") {
				cfg.OpsAddr = opsAddr
			}
			if cmd.Flags().Changed("db") {
				cfg.DatabasePath = dbPath
			}
			if cmd.Flags().Changed("files-dir") {
				cfg.FilesDir = filesDir
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			logger = log.New(cfg.LogLevel)
			logger.Info().Str("config", path).Msg("configuration loaded")

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(cfg, logger)
			if err != nil {
				logger.Error().Err(err).Msg("initialize application")
				return err
			}

			if err := application.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("server exited with error")
				return err
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config.yaml")
	cmd.Flags().StringVar(&addr, "addr", config.Default().Addr, "TCP listen address")
	cmd.Flags().StringVar(&opsAddr, "ops-addr", config.Default().OpsAddr, "ops HTTP listen address (empty disables)")
	cmd.Flags().StringVar(&dbPath, "db", config.Default().DatabasePath, "SQLite database path")
	cmd.Flags().StringVar(&filesDir, "files-dir", config.Default().FilesDir, "directory for uploaded files")
	cmd.Flags().StringVar(&logLevel, "log-level", config.Default().LogLevel, "log level (debug, info, warn, error)")

	return cmd
}
