package main

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Ingest documents directly into the data directory",
	Args:  cobra.MinimumNArgs(1),
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

		pipeline, err := buildPipeline(cfg, newLogger())
		if err != nil {
			return err
		}
		bar := progressbar.Default(int64(len(args)), "ingesting")
		total := 0
		for _, path := range args {
			n, err := pipeline.Ingest(cmd.Context(), path)
			if err != nil {
				return fmt.Errorf("ingest %s: %w", path, err)
			}
			total += n
			_ = bar.Add(1)
		}
		fmt.Printf("Ingested %d chunks from %d files (%d total)\n", total, len(args), pipeline.Size())
		return nil
	},
}
