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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GoogleCloudPlatform/catalog-ai-enrichment/internal/genai"
)

// testConnectionCmd represents the test-connection command
var testConnectionCmd = &cobra.Command{
	Use:               "test-connection",
	Short:             "Verify catalog connectivity and the Gemini API key",
	Example:           `./catalog_enricher test-connection --backend datahub --catalog-url http://localhost:8080`,
	PersistentPreRunE: initFlagsAndConfig,
	RunE:              runTestConnection,
}

func runTestConnection(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	catalogClient, err := setupCatalog()
	if err != nil {
		return err
	}
	defer catalogClient.Close()

	if err := catalogClient.Ping(ctx); err != nil {
		return fmt.Errorf("catalog connection failed: %w", err)
	}
	fmt.Printf("Catalog connection OK (%s)\n", cfg.Catalog.Backend)

	if cfg.Gemini.APIKey == "" {
		fmt.Println("No Gemini API key configured; skipping model check")
		return nil
	}
	model, err := genai.NewClient(ctx, genai.Config{
		APIKey: cfg.Gemini.APIKey,
		Model:  cfg.Gemini.Model,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("initializing model client: %w", err)
	}
	defer model.Close()
	if err := model.IsAPIKeyValid(ctx); err != nil {
		return fmt.Errorf("gemini API key is invalid: %w", err)
	}
	fmt.Printf("Gemini API key OK (%s)\n", cfg.Gemini.Model)
	return nil
}
