package main

import (
	"net/http"
	"path/filepath"

	"github.com/spf13/cobra"

	"ragchat/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		release, err := acquireDataLock(cfg.Storage.DataDir)
		if err != nil {
			return err
		}
		defer release()

		logger := newLogger()
		pipeline, err := buildPipeline(cfg, logger)
		if err != nil {
			return err
		}
		srv := server.New(pipeline, filepath.Join(cfg.Storage.DataDir, "uploads"), logger)
		logger.Info("listening", "addr", cfg.Server.Listen, "chunks", pipeline.Size())
		return http.ListenAndServe(cfg.Server.Listen, srv.Router())
	},
}
