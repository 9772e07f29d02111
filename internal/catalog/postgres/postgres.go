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

// Package postgres implements the catalog client directly against a
// PostgreSQL database: tables act as datasets, and descriptions and tags are
// persisted as column/table comments.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/catalog-ai-enrichment/internal/catalog"
)

func init() {
	catalog.RegisterDriver("postgres", func(cfg catalog.Config) (catalog.Client, error) {
		return NewClient(cfg)
	})
}

// tagsMarker separates the free-text description from the tag list inside a
// comment. Tags survive description rewrites and vice versa.
const tagsMarker = "Tags: "

type client struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ catalog.Client = (*client)(nil)

// NewClient opens a catalog client over a PostgreSQL connection string.
func NewClient(cfg catalog.Config) (*client, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres backend requires a connection string")
	}
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	return &client{db: db, logger: cfg.Logger}, nil
}

// newClientWithDB wires an existing pool, used by tests with sqlmock.
func newClientWithDB(db *sql.DB, logger *zap.Logger) *client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &client{db: db, logger: logger}
}

func (c *client) Close() error { return c.db.Close() }

func (c *client) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return &catalog.TransientError{Msg: "database ping failed", Err: err}
	}
	return nil
}

// FetchSchema builds a snapshot from information_schema plus any existing
// column and table comments.
func (c *client) FetchSchema(ctx context.Context, datasetID string) (*catalog.SchemaSnapshot, error) {
	const query = `
		SELECT col.column_name, col.data_type, col.is_nullable,
		       COALESCE(pgd.description, '')
		FROM information_schema.columns col
		LEFT JOIN pg_catalog.pg_class cls
			ON cls.relname = col.table_name
		LEFT JOIN pg_catalog.pg_description pgd
			ON pgd.objoid = cls.oid AND pgd.objsubid = col.ordinal_position
		WHERE col.table_schema = 'public'
		AND col.table_name = $1
		ORDER BY col.ordinal_position;`

	rows, err := c.db.QueryContext(ctx, query, datasetID)
	if err != nil {
		return nil, c.wrapQueryError("query columns", err)
	}
	defer rows.Close()

	snapshot := &catalog.SchemaSnapshot{
		DatasetID: datasetID,
		Name:      datasetID,
		Platform:  "postgres",
	}
	for rows.Next() {
		var name, dataType, nullable, comment string
		if err := rows.Scan(&name, &dataType, &nullable, &comment); err != nil {
			return nil, fmt.Errorf("failed to scan column row: %w", err)
		}
		description, tags := decodeComment(comment)
		snapshot.Columns = append(snapshot.Columns, catalog.Column{
			Name:        name,
			DataType:    dataType,
			Nullable:    strings.EqualFold(nullable, "YES"),
			Description: description,
			Tags:        tags,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, c.wrapQueryError("iterate columns", err)
	}
	if len(snapshot.Columns) == 0 {
		return nil, catalog.ErrNotFound
	}

	tableComment, err := c.tableComment(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	snapshot.Description, snapshot.Tags = decodeComment(tableComment)
	return snapshot, nil
}

// ListDatasets lists base tables in the public schema. The platform filter is
// ignored: everything this backend serves is "postgres".
func (c *client) ListDatasets(ctx context.Context, _ string, limit int) ([]catalog.DatasetRef, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public'
		AND table_type = 'BASE TABLE'
		ORDER BY table_name`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := c.db.QueryContext(ctx, query+";", args...)
	if err != nil {
		return nil, c.wrapQueryError("query tables", err)
	}
	defer rows.Close()

	var refs []catalog.DatasetRef
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table row: %w", err)
		}
		refs = append(refs, catalog.DatasetRef{ID: name, Name: name, Platform: "postgres"})
	}
	if err := rows.Err(); err != nil {
		return nil, c.wrapQueryError("iterate tables", err)
	}
	return refs, nil
}

// WriteDescription rewrites the description segment of the comment while
// preserving any tag segment already present.
func (c *client) WriteDescription(ctx context.Context, datasetID, columnName, text string) error {
	current, err := c.currentComment(ctx, datasetID, columnName)
	if err != nil {
		return err
	}
	_, tags := decodeComment(current)
	return c.setComment(ctx, datasetID, columnName, encodeComment(text, tags))
}

// AddTag appends a tag to the comment's tag segment, preserving the
// description. Adding a tag that is already present is a no-op.
func (c *client) AddTag(ctx context.Context, datasetID, columnName, tag string) error {
	current, err := c.currentComment(ctx, datasetID, columnName)
	if err != nil {
		return err
	}
	description, tags := decodeComment(current)
	for _, existing := range tags {
		if strings.EqualFold(existing, tag) {
			return nil
		}
	}
	tags = append(tags, tag)
	return c.setComment(ctx, datasetID, columnName, encodeComment(description, tags))
}

func (c *client) currentComment(ctx context.Context, datasetID, columnName string) (string, error) {
	if columnName == "" {
		return c.tableComment(ctx, datasetID)
	}
	const query = `
		SELECT COALESCE(pgd.description, '')
		FROM pg_catalog.pg_description pgd
		JOIN pg_catalog.pg_class cls ON cls.oid = pgd.objoid
		JOIN pg_catalog.pg_attribute att
			ON att.attrelid = cls.oid AND att.attnum = pgd.objsubid
		WHERE cls.relname = $1 AND att.attname = $2;`

	var comment string
	err := c.db.QueryRowContext(ctx, query, datasetID, columnName).Scan(&comment)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", c.wrapQueryError("query column comment", err)
	}
	return comment, nil
}

func (c *client) tableComment(ctx context.Context, datasetID string) (string, error) {
	const query = `
		SELECT COALESCE(obj_description(cls.oid), '')
		FROM pg_catalog.pg_class cls
		WHERE cls.relname = $1 AND cls.relkind = 'r';`

	var comment string
	err := c.db.QueryRowContext(ctx, query, datasetID).Scan(&comment)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", c.wrapQueryError("query table comment", err)
	}
	return comment, nil
}

func (c *client) setComment(ctx context.Context, datasetID, columnName, comment string) error {
	var stmt string
	if columnName == "" {
		stmt = fmt.Sprintf("COMMENT ON TABLE %s IS %s;",
			quoteIdentifier(datasetID), quoteLiteral(comment))
	} else {
		stmt = fmt.Sprintf("COMMENT ON COLUMN %s.%s IS %s;",
			quoteIdentifier(datasetID), quoteIdentifier(columnName), quoteLiteral(comment))
	}
	if _, err := c.db.ExecContext(ctx, stmt); err != nil {
		return c.wrapQueryError("execute comment statement", err)
	}
	c.logger.Debug("wrote comment",
		zap.String("dataset", datasetID), zap.String("column", columnName))
	return nil
}

func (c *client) wrapQueryError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &catalog.TransientError{Msg: op, Err: err}
}

// encodeComment renders the description and tag list into a single comment
// string, segments joined with " | ".
func encodeComment(description string, tags []string) string {
	var parts []string
	if description != "" {
		parts = append(parts, description)
	}
	if len(tags) > 0 {
		parts = append(parts, tagsMarker+strings.Join(tags, ", "))
	}
	return strings.Join(parts, " | ")
}

// decodeComment splits a comment back into its description and tag list.
func decodeComment(comment string) (string, []string) {
	if comment == "" {
		return "", nil
	}
	var descParts []string
	var tags []string
	for _, segment := range strings.Split(comment, " | ") {
		if rest, ok := strings.CutPrefix(segment, tagsMarker); ok {
			for _, tag := range strings.Split(rest, ",") {
				if trimmed := strings.TrimSpace(tag); trimmed != "" {
					tags = append(tags, trimmed)
				}
			}
			continue
		}
		descParts = append(descParts, segment)
	}
	return strings.Join(descParts, " | "), tags
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}
