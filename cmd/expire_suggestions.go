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
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// expireSuggestionsCmd represents the expire-suggestions command
var expireSuggestionsCmd = &cobra.Command{
	Use:               "expire-suggestions",
	Short:             "Delete staged suggestions older than a cutoff age",
	Long:              `Removes pending suggestions that were generated too long ago to still be trustworthy. The cutoff defaults to the configured store.max_suggestion_age.`,
	Example:           `./catalog_enricher expire-suggestions --older-than 720h`,
	PersistentPreRunE: initFlagsAndConfig,
	RunE:              runExpireSuggestions,
}

func runExpireSuggestions(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	maxAge, err := cmd.Flags().GetDuration("older-than")
	if err != nil {
		return err
	}
	if maxAge <= 0 {
		maxAge = cfg.Store.MaxSuggestionAge
	}
	if maxAge <= 0 {
		return fmt.Errorf("--older-than must be a positive duration")
	}

	store, err := openStore(nil, false)
	if err != nil {
		return err
	}
	defer store.Close()

	expired, err := store.ExpireOlderThan(ctx, maxAge)
	if err != nil {
		return fmt.Errorf("expiring suggestions: %w", err)
	}
	logger.Info("expired suggestions",
		zap.Int("count", expired),
		zap.Duration("older_than", maxAge))
	fmt.Printf("Expired %d suggestion(s) older than %s\n", expired, maxAge)
	return nil
}

func init() {
	var olderThan time.Duration

	// Flags for expire-suggestions command
	expireSuggestionsCmd.Flags().DurationVar(&olderThan, "older-than", 0, "Delete suggestions older than this duration (defaults to the configured maximum age)")
}
