package main

import (
	"fmt"
	"path/filepath"

	"github.com/codefionn/kernelrunner/internal/chatstore"
	"github.com/codefionn/kernelrunner/internal/config"
	"github.com/codefionn/kernelrunner/internal/logger"
	"github.com/codefionn/kernelrunner/internal/registry"
	"github.com/codefionn/kernelrunner/internal/storage"
	"github.com/spf13/cobra"
)

var (
	flagConfig   string
	flagGateway  string
	flagToken    string
	flagDataDir  string
	flagLogLevel string
	flagLogFile  string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "kernelrunner",
	Short: "Execute code on a remote Jupyter Enterprise Gateway",
	Long: `kernelrunner runs code on a remote Jupyter Enterprise Gateway kernel,
stages chat-attached files into the session workspace beforehand and
registers files the code generates afterwards.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(flagConfig)
		if err != nil {
			return err
		}
		if flagGateway != "" {
			cfg.GatewayURL = flagGateway
		}
		if flagToken != "" {
			cfg.Token = flagToken
		}
		if flagDataDir != "" {
			cfg.DataDir = flagDataDir
		}
		if flagLogLevel != "" {
			cfg.LogLevel = flagLogLevel
		}
		if flagLogFile != "" {
			cfg.LogPath = flagLogFile
		}

		return logger.Init(logger.ParseLevel(cfg.LogLevel), cfg.LogPath)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "kernelrunner.json", "config file path")
	rootCmd.PersistentFlags().StringVar(&flagGateway, "gateway", "", "Enterprise Gateway base URL")
	rootCmd.PersistentFlags().StringVar(&flagToken, "token", "", "gateway bearer token")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "base data directory")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (debug, info, warn, error, none)")
	rootCmd.PersistentFlags().StringVar(&flagLogFile, "log-file", "", "log file path")
}

// deps bundles the persistent collaborators opened from the data dir.
type deps struct {
	chats *chatstore.SQLiteStore
	files *registry.SQLiteRegistry
	blobs *storage.Local
}

func openDeps() (*deps, error) {
	chats, err := chatstore.OpenSQLite(filepath.Join(cfg.DataDir, "chats.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open chat store: %w", err)
	}

	files, err := registry.OpenSQLite(filepath.Join(cfg.DataDir, "files.db"))
	if err != nil {
		chats.Close()
		return nil, fmt.Errorf("failed to open file registry: %w", err)
	}

	return &deps{
		chats: chats,
		files: files,
		blobs: storage.NewLocal(cfg.DataDir),
	}, nil
}

func (d *deps) close() {
	d.chats.Close()
	d.files.Close()
}
