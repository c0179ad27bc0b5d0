package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"ragchat/internal/chunker"
	"ragchat/internal/config"
	"ragchat/internal/extractor"
	"ragchat/internal/llm"
	"ragchat/internal/service"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:          "ragchat",
	Short:        "Retrieval-augmented chat backend over your own documents",
	SilenceUsage: true, // don't print usage on operational errors
	Long: `ragchat ingests documents, indexes their embeddings, and answers chat
questions conditioned on the most relevant chunks plus an operator-set
guardrails instruction block.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "path to YAML config file")
	rootCmd.AddCommand(serveCmd, ingestCmd, chatCmd, guardrailsCmd)
}

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.AppConfig, error) {
	return config.LoadOrInit(cfgPath)
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

// buildPipeline assembles the retrieval pipeline from config and loads the
// persisted state.
func buildPipeline(cfg *config.AppConfig, logger *slog.Logger) (*service.Pipeline, error) {
	client, err := llm.NewClient(llm.Config{
		BaseURL:         cfg.OpenAI.BaseURL,
		APIKeyEnv:       cfg.OpenAI.APIKeyEnv,
		EmbeddingModel:  cfg.OpenAI.EmbeddingModel,
		CompletionModel: cfg.OpenAI.CompletionModel,
		Timeout:         time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	pipeline := service.NewPipeline(
		extractor.NewFileExtractor(),
		chunker.NewTokenChunker(),
		client,
		client,
		service.Options{
			DataDir:        cfg.Storage.DataDir,
			MaxChunkTokens: cfg.Chunking.MaxChunkTokens,
			TopK:           cfg.Retrieval.TopK,
		},
		logger,
	)
	if err := pipeline.LoadState(); err != nil {
		return nil, err
	}
	return pipeline, nil
}
