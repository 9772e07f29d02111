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

	"github.com/GoogleCloudPlatform/catalog-ai-enrichment/internal/utils"
)

// getSuggestionsCmd represents the get-suggestions command
var getSuggestionsCmd = &cobra.Command{
	Use:               "get-suggestions",
	Short:             "List the pending suggestions staged for a dataset",
	Example:           `./catalog_enricher get-suggestions --dataset "urn:li:dataset:(urn:li:dataPlatform:postgres,mydb.public.users,PROD)"`,
	PersistentPreRunE: initFlagsAndConfig,
	RunE:              runGetSuggestions,
}

func runGetSuggestions(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	datasetID := cmd.Flag("dataset").Value.String()
	if datasetID == "" {
		return fmt.Errorf("--dataset is required")
	}

	// Listing never writes, so the store opens without a catalog connection.
	store, err := openStore(nil, false)
	if err != nil {
		return err
	}
	defer store.Close()

	suggestions, err := store.ListByDataset(ctx, datasetID)
	if err != nil {
		return fmt.Errorf("listing suggestions: %w", err)
	}
	if len(suggestions) == 0 {
		fmt.Printf("No pending suggestions for %s\n", datasetID)
		return nil
	}

	outputFile := cmd.Flag("out_file").Value.String()
	if outputFile != "" {
		if err := utils.WriteJSONFile(outputFile, suggestions); err != nil {
			return err
		}
		fmt.Printf("Wrote %d suggestion(s) to %s\n", len(suggestions), outputFile)
		return nil
	}

	for _, s := range suggestions {
		target := s.Column
		if target == "" {
			target = "(dataset)"
		}
		fmt.Printf("%s\t%s\t%s\t%q\tconfidence=%.2f\n", s.ID, target, s.Kind, s.Value, s.Confidence)
	}
	return nil
}

func init() {
	var datasetID string
	var outputFile string

	// Flags for get-suggestions command
	getSuggestionsCmd.Flags().StringVar(&datasetID, "dataset", "", "Dataset identifier to list suggestions for - MANDATORY")
	getSuggestionsCmd.Flags().StringVarP(&outputFile, "out_file", "o", "", "Write suggestions as JSON to this file instead of stdout")
}
