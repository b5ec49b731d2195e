// Package identity resolves actor user IDs to display names for export
// rows. The user store itself is owned elsewhere; this is a read-only
// lookup surface.
package identity

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Directory resolves user IDs to display names in one batch lookup.
// Unknown IDs are simply absent from the result; resolution is best-effort
// and never an error path for exports.
type Directory interface {
	DisplayNames(ctx context.Context, ids []string) (map[string]string, error)
}

// SQLDirectory resolves names from the users table.
type SQLDirectory struct {
	db *sql.DB
}

// NewSQLDirectory wraps an open database handle.
func NewSQLDirectory(db *sql.DB) *SQLDirectory {
	return &SQLDirectory{db: db}
}

// DisplayNames returns a map of id -> display name for the IDs that exist.
func (d *SQLDirectory) DisplayNames(ctx context.Context, ids []string) (map[string]string, error) {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}
	if len(unique) == 0 {
		return map[string]string{}, nil
	}

	placeholders := make([]string, len(unique))
	args := make([]any, len(unique))
	for i, id := range unique {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := fmt.Sprintf("SELECT id, display_name FROM users WHERE id IN (%s)",
		strings.Join(placeholders, ", "))

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("identity: resolve display names: %w", err)
	}
	defer func() { _ = rows.Close() }()

	names := make(map[string]string, len(unique))
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("identity: scan user row: %w", err)
		}
		names[id] = name
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("identity: resolve display names: %w", err)
	}
	return names, nil
}

// StaticDirectory is a fixed id -> name map, used in tests and embedded
// deployments.
type StaticDirectory map[string]string

// DisplayNames returns the subset of ids present in the map.
func (d StaticDirectory) DisplayNames(_ context.Context, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	for _, id := range ids {
		if name, ok := d[id]; ok {
			names[id] = name
		}
	}
	return names, nil
}
