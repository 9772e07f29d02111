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
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/catalog-ai-enrichment/internal/utils"
)

// enrichCmd represents the enrich command
var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Generate enrichment suggestions for catalog datasets",
	Long: `Fetches dataset schemas from the catalog, generates description, PII-tag
and classification-tag suggestions with the configured model, and stages them in the
local suggestion store for review. With --dry-run (the default) nothing is staged; the
generated suggestions are only written to the output file.`,
	Example:           `./catalog_enricher enrich --backend datahub --catalog-url http://localhost:8080 --dataset "urn:li:dataset:(urn:li:dataPlatform:postgres,mydb.public.users,PROD)" --enrichments "descriptions,pii" --dry-run=false`,
	PersistentPreRunE: initFlagsAndConfig,
	RunE:              runEnrich,
}

func runEnrich(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	outputFile := cmd.Flag("out_file").Value.String()
	if outputFile == "" {
		outputFile = utils.GetDefaultOutputFilePath("enrich")
	}

	contextFilesFlag := cmd.Flag("context").Value.String()
	additionalContext, err := utils.ReadContextFiles(contextFilesFlag)
	if err != nil {
		return fmt.Errorf("failed to read context files: %w", err)
	}

	enrichmentsFlag := cmd.Flag("enrichments").Value.String()
	enrichmentSet := make(map[string]bool)
	if enrichmentsFlag != "" {
		for _, e := range strings.Split(enrichmentsFlag, ",") {
			enrichmentSet[strings.TrimSpace(strings.ToLower(e))] = true
		}
	}

	if cmd.Flags().Changed("concurrency") {
		concurrency, _ := cmd.Flags().GetInt("concurrency")
		cfg.Engine.Concurrency = concurrency
	}

	engine, catalogClient, store, err := setupEngine(ctx, additionalContext, enrichmentSet, dryRun)
	if err != nil {
		return err
	}
	defer catalogClient.Close()
	defer store.Close()

	datasets, err := enrichTargets(cmd)
	if err != nil {
		return err
	}
	if len(datasets) == 0 {
		platform := cmd.Flag("platform").Value.String()
		limit, _ := cmd.Flags().GetInt("limit")
		refs, listErr := catalogClient.ListDatasets(ctx, platform, limit)
		if listErr != nil {
			return fmt.Errorf("listing datasets: %w", listErr)
		}
		for _, ref := range refs {
			datasets = append(datasets, ref.ID)
		}
	}
	if len(datasets) == 0 {
		logger.Info("no datasets to enrich")
		return nil
	}

	logger.Info("starting enrichment",
		zap.Int("datasets", len(datasets)),
		zap.Bool("dry_run", dryRun))

	result, err := engine.EnrichBatch(ctx, datasets)
	if err != nil {
		return fmt.Errorf("enrichment failed: %w", err)
	}

	if err := utils.WriteJSONFile(outputFile, result); err != nil {
		return err
	}
	logger.Info("enrichment complete",
		zap.Int("succeeded", result.Summary.Succeeded),
		zap.Int("failed", result.Summary.Failed),
		zap.Int("skipped", result.Summary.Skipped),
		zap.Int("cache_hits", result.Summary.CacheHits),
		zap.Int("suggestions", result.Summary.Suggestions),
		zap.Int("dropped_candidates", result.Summary.DroppedCandidates),
		zap.String("out_file", outputFile))

	if dryRun {
		logger.Info("dry-run mode: suggestions were not staged for review")
	}
	if result.Summary.Failed > 0 {
		return fmt.Errorf("%d of %d datasets failed; see %s for details", result.Summary.Failed, len(datasets), outputFile)
	}
	return nil
}

func enrichTargets(cmd *cobra.Command) ([]string, error) {
	datasets, err := cmd.Flags().GetStringArray("dataset")
	if err != nil {
		return nil, err
	}
	return datasets, nil
}

func init() {
	var outputFile string
	var datasets []string
	var platform string
	var limit int
	var enrichments string
	var contextFiles string
	var concurrency int

	// Flags for enrich command
	enrichCmd.Flags().StringVarP(&outputFile, "out_file", "o", "", "File path for the JSON enrichment report (defaults to enrich_suggestions.json)")
	enrichCmd.Flags().StringArrayVar(&datasets, "dataset", nil, "Dataset identifier to enrich (repeatable). If omitted, datasets are listed from the catalog.")
	enrichCmd.Flags().StringVar(&platform, "platform", "", "Restrict catalog listing to one platform (used when no --dataset is given)")
	enrichCmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of datasets to list from the catalog (used when no --dataset is given)")
	enrichCmd.Flags().StringVar(&enrichments, "enrichments", "", "Comma-separated list of enrichments to generate ('descriptions,pii,tags'). If empty, all are generated.")
	enrichCmd.Flags().StringVar(&contextFiles, "context", "", "Comma-separated list of context files to provide additional information for description generation.")
	enrichCmd.Flags().IntVar(&concurrency, "concurrency", 0, "Number of datasets enriched in parallel (defaults to the configured engine.concurrency)")
}
