package main

import (
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/codefionn/kernelrunner/internal/logger"
	"github.com/codefionn/kernelrunner/internal/server"
	"github.com/spf13/cobra"
)

var flagAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the execution HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDeps()
		if err != nil {
			return err
		}
		defer d.close()

		srv := server.New(flagAddr, cfg, d.chats, d.files, d.blobs)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-quit
			logger.Info("shutting down")
			if err := srv.Stop(); err != nil {
				logger.Error("shutdown failed: %v", err)
			}
		}()

		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&flagAddr, "addr", "localhost:8980", "listen address")
	rootCmd.AddCommand(serveCmd)
}
