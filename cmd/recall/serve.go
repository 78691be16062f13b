package recall

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/recallai/recall"
	"github.com/recallai/recall/pkg/config"
	"github.com/recallai/recall/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Recall HTTP server",
	Long: `Start the Recall HTTP server to expose the retrieval pipeline over REST.

The server provides endpoints for:
- Running retrievals (POST /api/v1/retrieve)
- Reading and editing per-user retrieval parameters
- Health checks

Configuration can be provided through config files, environment variables, or command-line flags.`,
	RunE: runServe,
}

var (
	serveHost string
	servePort int
	serveMode string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "localhost", "Server host")
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "Server port")
	serveCmd.Flags().StringVar(&serveMode, "mode", "debug", "Server mode (debug, release, test)")

	// Backing store flags
	serveCmd.Flags().String("graph-uri", "bolt://localhost:7687", "Graph store bolt URI")
	serveCmd.Flags().String("graph-username", "neo4j", "Graph store username")
	serveCmd.Flags().String("graph-password", "", "Graph store password")
	serveCmd.Flags().String("graph-database", "neo4j", "Graph store database")
	serveCmd.Flags().String("relational-dsn", "", "Relational store DSN")
	serveCmd.Flags().String("vector-table", "entity_embeddings", "pgvector table name")

	// Cache flags
	serveCmd.Flags().String("cache-backend", "memory", "Cache backend (redis, badger, memory, none)")
	serveCmd.Flags().String("redis-addr", "localhost:6379", "Redis address")
	serveCmd.Flags().String("badger-dir", "", "Badger directory")

	// Embedding flags
	serveCmd.Flags().String("embedding-model", "text-embedding-3-small", "Embedding model")
	serveCmd.Flags().String("embedding-api-key", "", "Embedding API key")
	serveCmd.Flags().String("embedding-base-url", "", "Embedding base URL")

	// Retrieval flags
	serveCmd.Flags().String("presets-dir", "", "Directory of parameter preset files")

	// Telemetry flags
	serveCmd.Flags().String("telemetry-parquet-path", "", "Path to directory for retrieval telemetry")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	overrideConfigWithFlags(cmd, cfg)

	if err := validateServeConfig(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	fmt.Println("Initializing Recall...")
	client, err := recall.Open(cmd.Context(), cfg, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize Recall: %w", err)
	}
	defer client.Close(context.Background())

	srv := server.New(cfg, client)
	srv.Setup()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			serverErrChan <- err
		}
	}()

	select {
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		fmt.Printf("\nReceived signal: %v\n", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		fmt.Println("Server stopped gracefully")
		return nil
	}
}

func overrideConfigWithFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serveHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
	}
	if cmd.Flags().Changed("mode") {
		cfg.Server.Mode = serveMode
	}

	if cmd.Flags().Changed("graph-uri") {
		cfg.Graph.URI, _ = cmd.Flags().GetString("graph-uri")
	}
	if cmd.Flags().Changed("graph-username") {
		cfg.Graph.Username, _ = cmd.Flags().GetString("graph-username")
	}
	if cmd.Flags().Changed("graph-password") {
		cfg.Graph.Password, _ = cmd.Flags().GetString("graph-password")
	}
	if cmd.Flags().Changed("graph-database") {
		cfg.Graph.Database, _ = cmd.Flags().GetString("graph-database")
	}
	if cmd.Flags().Changed("relational-dsn") {
		cfg.Relational.DSN, _ = cmd.Flags().GetString("relational-dsn")
	}
	if cmd.Flags().Changed("vector-table") {
		cfg.Vector.Table, _ = cmd.Flags().GetString("vector-table")
	}

	if cmd.Flags().Changed("cache-backend") {
		cfg.Cache.Backend, _ = cmd.Flags().GetString("cache-backend")
	}
	if cmd.Flags().Changed("redis-addr") {
		cfg.Cache.RedisAddr, _ = cmd.Flags().GetString("redis-addr")
	}
	if cmd.Flags().Changed("badger-dir") {
		cfg.Cache.BadgerDir, _ = cmd.Flags().GetString("badger-dir")
	}

	if cmd.Flags().Changed("embedding-model") {
		cfg.Embedding.Model, _ = cmd.Flags().GetString("embedding-model")
	}
	if cmd.Flags().Changed("embedding-api-key") {
		cfg.Embedding.APIKey, _ = cmd.Flags().GetString("embedding-api-key")
	}
	if cmd.Flags().Changed("embedding-base-url") {
		cfg.Embedding.BaseURL, _ = cmd.Flags().GetString("embedding-base-url")
	}

	if cmd.Flags().Changed("presets-dir") {
		cfg.Retrieval.PresetsDir, _ = cmd.Flags().GetString("presets-dir")
	}
	if cmd.Flags().Changed("telemetry-parquet-path") {
		cfg.Telemetry.ParquetPath, _ = cmd.Flags().GetString("telemetry-parquet-path")
	}
}

func validateServeConfig(cfg *config.Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Server.Port)
	}
	if cfg.Graph.URI == "" {
		return fmt.Errorf("graph uri is required")
	}
	if cfg.Relational.DSN == "" {
		return fmt.Errorf("relational dsn is required")
	}
	if cfg.Embedding.APIKey == "" {
		return fmt.Errorf("embedding api key is required (flag, config, or OPENAI_API_KEY)")
	}
	return nil
}
