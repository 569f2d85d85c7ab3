//-------------------------------------------------------------------------
//
// pgEdge Market Data Generator
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pgEdge/pgedge-marketgen/internal/logging"
	"github.com/pgEdge/pgedge-marketgen/pkg/version"
)

const metadataTable = "marketgen_metadata"

// Well-known metadata keys.
const (
	KeyVersion        = "version"
	KeyTable          = "table"
	KeyState          = "state"
	KeyChunkInterval  = "chunk_interval_days"
	KeyCompressAfter  = "compress_after_days"
	KeyInitializedAt  = "initialized_at"
	KeyLastMigratedAt = "last_migrated_at"
)

// createMetadataTableSQL creates the metadata table if it doesn't exist.
const createMetadataTableSQL = `
CREATE TABLE IF NOT EXISTS marketgen_metadata (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
)`

// SaveMetadata upserts the given values, stamping the tool version.
func SaveMetadata(ctx context.Context, conn DB, values map[string]string) error {
	// Create table if it doesn't exist
	_, err := conn.Exec(ctx, createMetadataTableSQL)
	if err != nil {
		return fmt.Errorf("failed to create metadata table: %w", err)
	}

	metadata := map[string]string{
		KeyVersion:        version.Short(),
		KeyLastMigratedAt: time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range values {
		metadata[k] = v
	}

	for key, value := range metadata {
		_, err := conn.Exec(ctx, `
            INSERT INTO marketgen_metadata (key, value) VALUES ($1, $2)
            ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
        `, key, value)
		if err != nil {
			return fmt.Errorf("failed to save metadata %s: %w", key, err)
		}
	}

	logging.Debug().
		Int("keys", len(metadata)).
		Msg("Saved metadata")

	return nil
}

// SaveMetadataOnce stores a value only if the key is absent.
func SaveMetadataOnce(ctx context.Context, conn DB, key, value string) error {
	_, err := conn.Exec(ctx, `
        INSERT INTO marketgen_metadata (key, value) VALUES ($1, $2)
        ON CONFLICT (key) DO NOTHING
    `, key, value)
	if err != nil {
		return fmt.Errorf("failed to save metadata %s: %w", key, err)
	}
	return nil
}

// GetMetadataValue retrieves a single metadata value by key. A missing
// key yields an empty string and no error.
func GetMetadataValue(ctx context.Context, conn DB, key string) (string, error) {
	var value string
	err := conn.QueryRow(ctx, `
        SELECT value FROM marketgen_metadata WHERE key = $1
    `, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// GetAllMetadata retrieves all metadata as a map.
func GetAllMetadata(ctx context.Context, conn DB) (map[string]string, error) {
	rows, err := conn.Query(ctx, `SELECT key, value FROM marketgen_metadata`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	metadata := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		metadata[key] = value
	}

	return metadata, rows.Err()
}

// DropMetadata drops the metadata table.
func DropMetadata(ctx context.Context, conn DB) error {
	_, err := conn.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", metadataTable))
	return err
}

// MetadataExists checks if the metadata table exists.
func MetadataExists(ctx context.Context, conn DB) (bool, error) {
	var exists bool
	err := conn.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, metadataTable).Scan(&exists)
	return exists, err
}
