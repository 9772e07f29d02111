/*
 * Copyright 2025 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/catalog-ai-enrichment/internal/catalog"
	_ "github.com/GoogleCloudPlatform/catalog-ai-enrichment/internal/catalog/datahub"
	_ "github.com/GoogleCloudPlatform/catalog-ai-enrichment/internal/catalog/postgres"
	"github.com/GoogleCloudPlatform/catalog-ai-enrichment/internal/config"
	"github.com/GoogleCloudPlatform/catalog-ai-enrichment/internal/enricher"
	"github.com/GoogleCloudPlatform/catalog-ai-enrichment/internal/genai"
	"github.com/GoogleCloudPlatform/catalog-ai-enrichment/internal/store/badgerstore"
)

var (
	cfgFile string
	dryRun  bool
	verbose bool

	// Catalog connection flags
	catalogBackend string
	catalogURL     string
	catalogToken   string
	catalogDSN     string

	// Gemini API Key flag
	geminiAPIKey string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "catalog_enricher",
	Short: "A tool to enrich metadata catalog entries with AI-generated suggestions",
	Long: `catalog_enricher is a CLI tool that generates descriptions, PII tags and
classification tags for catalog datasets using a generative model. Suggestions are
staged locally for human review and applied back to the catalog on approval.`,
	PersistentPreRunE:  initFlagsAndConfig,
	PersistentPostRunE: flushLogger,
	SilenceUsage:       true,
}

// initFlagsAndConfig loads the layered configuration (defaults, optional
// config file, ENRICHER_* environment, then explicit flags) and builds the
// process logger.
func initFlagsAndConfig(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return err
	}

	if cmd != nil {
		flags := cmd.Flags()
		if flags.Changed("backend") {
			cfg.Catalog.Backend = strings.ToLower(catalogBackend)
		}
		if flags.Changed("catalog-url") {
			cfg.Catalog.URL = catalogURL
		}
		if flags.Changed("catalog-token") {
			cfg.Catalog.Token = catalogToken
		}
		if flags.Changed("dsn") {
			cfg.Catalog.DSN = catalogDSN
		}
		if flags.Changed("gemini-api-key") {
			cfg.Gemini.APIKey = geminiAPIKey
		}
	}
	if cfg.Gemini.APIKey == "" {
		cfg.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return fmt.Errorf("initializing logger: %v", err)
	}
	return nil
}

func flushLogger(cmd *cobra.Command, args []string) error {
	if logger != nil {
		_ = logger.Sync()
	}
	return nil
}

func setupCatalog() (catalog.Client, error) {
	client, err := catalog.New(catalog.Config{
		Backend: cfg.Catalog.Backend,
		URL:     cfg.Catalog.URL,
		Token:   cfg.Catalog.Token,
		DSN:     cfg.Catalog.DSN,
		Timeout: cfg.Catalog.Timeout,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to catalog: %w", err)
	}
	return client, nil
}

func retryOptions() enricher.RetryOptions {
	return enricher.RetryOptions{
		MaxAttempts:       cfg.Retry.MaxAttempts,
		InitialBackoff:    cfg.Retry.InitialBackoff,
		MaxBackoff:        cfg.Retry.MaxBackoff,
		BackoffMultiplier: cfg.Retry.BackoffMultiplier,
		AttemptTimeout:    cfg.Retry.AttemptTimeout,
	}
}

// openStore opens the suggestion store. ephemeral selects an in-memory
// database, used by dry runs so nothing is staged.
func openStore(writer catalog.Client, ephemeral bool) (*badgerstore.Store, error) {
	return badgerstore.Open(badgerstore.Options{
		Path:                cfg.Store.Path,
		InMemory:            ephemeral,
		Writer:              writer,
		ConfidenceThreshold: cfg.Engine.ConfidenceThreshold,
		Retry:               retryOptions(),
		Logger:              logger,
	})
}

// setupEngine builds the full pipeline. The caller owns closing the returned
// catalog client and store.
func setupEngine(ctx context.Context, additionalContext string, enrichments map[string]bool, ephemeralStore bool) (*enricher.Engine, catalog.Client, *badgerstore.Store, error) {
	if cfg.Gemini.APIKey == "" {
		return nil, nil, nil, fmt.Errorf("gemini API key is not configured. Set the GEMINI_API_KEY environment variable or the --gemini-api-key flag")
	}

	catalogClient, err := setupCatalog()
	if err != nil {
		return nil, nil, nil, err
	}

	model, err := genai.NewClient(ctx, genai.Config{
		APIKey:          cfg.Gemini.APIKey,
		Model:           cfg.Gemini.Model,
		Temperature:     cfg.Gemini.Temperature,
		MaxOutputTokens: cfg.Gemini.MaxOutputTokens,
		Logger:          logger,
	})
	if err != nil {
		catalogClient.Close()
		return nil, nil, nil, fmt.Errorf("initializing model client: %w", err)
	}

	store, err := openStore(catalogClient, ephemeralStore)
	if err != nil {
		model.Close()
		catalogClient.Close()
		return nil, nil, nil, err
	}

	breaker := enricher.NewCircuitBreaker(enricher.BreakerOptions{
		Threshold: cfg.Breaker.Threshold,
		Cooldown:  cfg.Breaker.Cooldown,
	})
	generator := enricher.NewGenerator(model, retryOptions(), breaker, logger)
	generator.AdditionalContext = additionalContext
	generator.Enrichments = enrichments

	cache := enricher.NewFingerprintCache(cfg.Engine.CacheSize, cfg.Engine.CacheMaxAge)
	engine := enricher.NewEngine(catalogClient, generator, cache, store, cfg.Engine.Concurrency, logger)
	return engine, catalogClient, store, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to a YAML config file (optional)")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", true, "Enable dry-run mode (no catalog modifications, nothing staged)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	// Catalog connection flags
	rootCmd.PersistentFlags().StringVar(&catalogBackend, "backend", "", fmt.Sprintf("Catalog backend (%s)", strings.Join(catalog.SupportedBackends(), ", ")))
	rootCmd.PersistentFlags().StringVar(&catalogURL, "catalog-url", "", "Catalog API endpoint (DataHub GMS URL)")
	rootCmd.PersistentFlags().StringVar(&catalogToken, "catalog-token", "", "Catalog API access token")
	rootCmd.PersistentFlags().StringVar(&catalogDSN, "dsn", "", "Connection string for SQL-backed catalogs")

	// Gemini API Key flag
	rootCmd.PersistentFlags().StringVar(&geminiAPIKey, "gemini-api-key", "", "Gemini API key (can also be set via GEMINI_API_KEY environment variable)")

	// Add subcommands
	rootCmd.AddCommand(enrichCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(getSuggestionsCmd)
	rootCmd.AddCommand(expireSuggestionsCmd)
	rootCmd.AddCommand(testConnectionCmd)
}
