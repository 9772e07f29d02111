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
package utils

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// ReadContextFiles reads the content of the specified context files and combines them into a single string.
func ReadContextFiles(filePaths string) (string, error) {
	if filePaths == "" {
		return "", nil // No context files provided
	}

	paths := strings.Split(filePaths, ",")
	var combinedContext strings.Builder
	for _, path := range paths {
		path = strings.TrimSpace(path)
		content, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read context file '%s': %w", path, err)
		}
		combinedContext.WriteString("\n-- Context from file: " + path + " --\n")
		combinedContext.WriteString(string(content))
	}
	return combinedContext.String(), nil
}

// GetDefaultOutputFilePath names the JSON report written by a command when
// no --out_file is given.
func GetDefaultOutputFilePath(commandName string) string {
	return fmt.Sprintf("%s_suggestions.json", strings.ReplaceAll(commandName, "-", "_"))
}

// WriteJSONFile writes v as indented JSON to the given path.
func WriteJSONFile(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write file '%s': %w", path, err)
	}
	return nil
}

// ConfirmAction prompts the operator before catalog writes proceed.
func ConfirmAction(actionDescription string) bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Printf("\n-------------------------------------------------------------\n")
	fmt.Printf("About to %s.\n", actionDescription)
	fmt.Print("Do you want to apply these changes to the catalog? (yes/no): ")
	text, _ := reader.ReadString('\n')
	action := strings.TrimSpace(strings.ToLower(text))
	return action == "yes" || action == "y"
}

// SplitCommaFlag splits a comma-separated flag value, tolerating whitespace
// around entries. Not suitable for dataset URNs, which embed commas.
func SplitCommaFlag(flagValue string) []string {
	if flagValue == "" {
		return nil
	}
	var values []string
	for _, part := range strings.Split(flagValue, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			values = append(values, part)
		}
	}
	return values
}
