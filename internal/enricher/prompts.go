package enricher

import (
	"fmt"
	"strings"

	"github.com/GoogleCloudPlatform/catalog-ai-enrichment/internal/catalog"
)

// describeColumns renders the column list the way every prompt presents it.
func describeColumns(schema *catalog.SchemaSnapshot) string {
	var sb strings.Builder
	for _, col := range schema.Columns {
		sb.WriteString(fmt.Sprintf("- %s (%s)", col.Name, col.DataType))
		if !col.Nullable {
			sb.WriteString(" [NOT NULL]")
		}
		if col.Description != "" {
			sb.WriteString(fmt.Sprintf("\n  Current description: %s", col.Description))
		}
		if len(col.Tags) > 0 {
			sb.WriteString(fmt.Sprintf("\n  Current tags: %s", strings.Join(col.Tags, ", ")))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func buildColumnDescriptionPrompt(schema *catalog.SchemaSnapshot, additionalContext string) string {
	contextBlock := ""
	if additionalContext != "" {
		contextBlock = fmt.Sprintf(`
********** Additional Context **********
%s
********** End Additional Context **********
`, additionalContext)
	}

	return fmt.Sprintf(`You are a data catalog documentation assistant. Your task is to generate clear,
concise descriptions for dataset columns based on their names and data types.

Dataset: %s
%s
Columns:
%s
Please provide a brief, informative description for each column. The description should:
1. Explain what the column represents in plain English
2. Include any business context you can infer from the name
3. Be 1-2 sentences maximum
4. Avoid repeating the column name verbatim

Format your response as a JSON array, one entry per column:

[
  {"column": "column_name", "description": "...", "confidence": 0.9, "rationale": "brief justification"}
]

Express confidence as a number between 0 and 1. Only include columns that need
descriptions (skip those with good existing descriptions).`,
		schema.Name, contextBlock, describeColumns(schema))
}

func buildPIIDetectionPrompt(schema *catalog.SchemaSnapshot) string {
	return fmt.Sprintf(`You are a data privacy and security expert. Your task is to identify columns that
may contain Personally Identifiable Information (PII) or other sensitive data.

Dataset: %s

Columns:
%s
Analyze each column and identify those that may contain:
1. Direct PII: names, email addresses, phone numbers, national IDs
2. Indirect PII: birth dates, zip codes, IP addresses, device IDs
3. Sensitive data: health information, financial data, credentials

Consider the column names, data types, and common naming patterns.

Format your response as a JSON array, one entry per flagged column:

[
  {"column": "column_name", "pii_type": "email|phone|name|...", "confidence": 0.8, "rationale": "brief explanation"}
]

Express confidence as a number between 0 and 1. Only include columns where the
confidence is at least 0.5.`,
		schema.Name, describeColumns(schema))
}

func buildTagSuggestionPrompt(schema *catalog.SchemaSnapshot) string {
	// Tag prompts only need a shape of the schema, cap the listing at 20 columns.
	names := make([]string, 0, len(schema.Columns))
	for _, col := range schema.Columns {
		names = append(names, col.Name)
		if len(names) == 20 {
			break
		}
	}
	columnsText := strings.Join(names, ", ")
	if len(schema.Columns) > 20 {
		columnsText += fmt.Sprintf(", ... and %d more", len(schema.Columns)-20)
	}

	description := schema.Description
	if description == "" {
		description = "No description provided"
	}

	return fmt.Sprintf(`You are a data governance expert helping to classify and tag datasets in a data catalog.

Dataset: %s
Description: %s
Sample Columns: %s

Based on the dataset name, description, and column structure, suggest relevant
tags that would help users discover and understand this dataset. Consider the
business domain, the kind of data (transactional, analytical, reference,
time series), its sensitivity, and typical use cases.

Guidelines:
- Suggest 3-7 tags maximum
- Use lowercase with underscores (e.g., customer_data)
- Be specific but not overly detailed
- Avoid redundant tags

Format your response as a JSON array:

[
  {"tag": "tag_name", "confidence": 0.7, "rationale": "brief explanation"}
]

Express confidence as a number between 0 and 1.`,
		schema.Name, description, columnsText)
}
