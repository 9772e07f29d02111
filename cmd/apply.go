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
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/catalog-ai-enrichment/internal/enricher"
	"github.com/GoogleCloudPlatform/catalog-ai-enrichment/internal/utils"
)

// applyCmd represents the apply command
var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply approved suggestions back to the catalog",
	Long: `Writes staged suggestions through to the catalog. Each suggestion must pass
the freshness check (the dataset schema is unchanged since generation) and the
confidence threshold unless --override-confidence is set. Already-applied suggestions
are never written twice. With --dry-run (the default) the pending suggestions are
printed without modifying the catalog.`,
	Example:           `./catalog_enricher apply --backend datahub --catalog-url http://localhost:8080 --ids "3f1c...,9a42..." --dry-run=false`,
	PersistentPreRunE: initFlagsAndConfig,
	RunE:              runApply,
}

func runApply(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	catalogClient, err := setupCatalog()
	if err != nil {
		return err
	}
	defer catalogClient.Close()

	store, err := openStore(catalogClient, false)
	if err != nil {
		return err
	}
	defer store.Close()

	ids := utils.SplitCommaFlag(cmd.Flag("ids").Value.String())
	datasets, _ := cmd.Flags().GetStringArray("dataset")
	if len(ids) == 0 && len(datasets) == 0 {
		return fmt.Errorf("nothing to apply: provide --ids or --dataset")
	}

	// Resolve --dataset targets to the pending suggestion IDs for each.
	for _, datasetID := range datasets {
		pending, listErr := store.ListByDataset(ctx, datasetID)
		if listErr != nil {
			return fmt.Errorf("listing suggestions for %s: %w", datasetID, listErr)
		}
		for _, suggestion := range pending {
			ids = append(ids, suggestion.ID)
		}
	}
	if len(ids) == 0 {
		logger.Info("no pending suggestions for the given targets")
		return nil
	}

	if dryRun {
		logger.Info("dry-run mode: no catalog writes will be performed",
			zap.Int("pending", len(ids)))
		for _, id := range ids {
			suggestion, getErr := store.Get(ctx, id)
			if getErr != nil {
				fmt.Printf("%s\t(unavailable: %v)\n", id, getErr)
				continue
			}
			fmt.Printf("%s\t%s\t%s\t%q\tconfidence=%.2f\n",
				suggestion.ID, suggestion.DatasetID, suggestion.Kind, suggestion.Value, suggestion.Confidence)
		}
		return nil
	}

	skipConfirm, _ := cmd.Flags().GetBool("yes")
	if !skipConfirm && !utils.ConfirmAction(fmt.Sprintf("apply %d suggestion(s) to the catalog", len(ids))) {
		logger.Info("apply aborted by user")
		return nil
	}

	override, _ := cmd.Flags().GetBool("override-confidence")
	engine := enricher.NewEngine(catalogClient, nil, nil, store, cfg.Engine.Concurrency, logger)
	report, err := engine.ApplySuggestions(ctx, ids, override)
	if err != nil {
		return fmt.Errorf("apply failed: %w", err)
	}

	outputFile := cmd.Flag("out_file").Value.String()
	if outputFile == "" {
		outputFile = utils.GetDefaultOutputFilePath("apply")
	}
	if err := utils.WriteJSONFile(outputFile, report); err != nil {
		return err
	}

	logger.Info("apply complete",
		zap.Int("applied", report.Applied),
		zap.Int("skipped_stale", report.SkippedStale),
		zap.Int("skipped_low_confidence", report.SkippedLowConfidence),
		zap.Int("failed", report.Failed),
		zap.String("out_file", outputFile))
	if report.Failed > 0 {
		return fmt.Errorf("%d suggestion(s) failed to apply; see %s for details", report.Failed, outputFile)
	}
	return nil
}

func init() {
	var ids string
	var datasets []string
	var override bool
	var skipConfirm bool
	var outputFile string

	// Flags for apply command
	applyCmd.Flags().StringVar(&ids, "ids", "", "Comma-separated list of suggestion IDs to apply")
	applyCmd.Flags().StringArrayVar(&datasets, "dataset", nil, "Apply all pending suggestions for this dataset (repeatable)")
	applyCmd.Flags().BoolVar(&override, "override-confidence", false, "Apply suggestions even when their confidence is below the threshold")
	applyCmd.Flags().BoolVar(&skipConfirm, "yes", false, "Skip the interactive confirmation prompt")
	applyCmd.Flags().StringVarP(&outputFile, "out_file", "o", "", "File path for the JSON apply report (defaults to apply_suggestions.json)")
}
