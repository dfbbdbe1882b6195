package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// ApplySchema creates the slips table and indexes if they do not exist.
// Integration tests and fresh deployments call this; production migrations
// run the same SQL through the deploy pipeline.
func ApplySchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply slips schema: %w", err)
	}
	return nil
}
