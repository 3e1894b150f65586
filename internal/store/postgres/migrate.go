package postgres

import (
	"context"
	_ "embed"
	"strings"

	"github.com/uptrace/bun"
)

//go:embed schema.sql
var schemaSQL string

// ApplySchema creates the full schema in one transaction. The pgx stdlib
// driver rejects multi-statement strings, so the file is executed statement
// by statement.
func ApplySchema(ctx context.Context, db bun.IDB) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
