package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nerrad567/manage-core/internal/manageable"
)

// GroupProvider persists groups.
type GroupProvider struct {
	owned
}

// NewGroupProvider creates a provider over an open, migrated database.
func NewGroupProvider(db *sql.DB) *GroupProvider {
	return &GroupProvider{owned: owned{db: db, ownerType: manageable.TypeGroup}}
}

// Add inserts g.
func (p *GroupProvider) Add(ctx context.Context, g *manageable.Group) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := p.db.ExecContext(ctx,
		"INSERT INTO device_groups (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)",
		g.ID, g.Name, now, now,
	)
	if err != nil {
		if isConstraintError(err) {
			return ErrExists
		}
		return fmt.Errorf("inserting group: %w", err)
	}
	return nil
}

// Get returns the groups matching f with their schedules and history.
// Filter.Group is ignored.
func (p *GroupProvider) Get(ctx context.Context, f Filter) ([]*manageable.Group, error) {
	query := "SELECT id, name FROM device_groups"
	var args []any
	if f.ID != "" {
		query += " WHERE id = ?"
		args = append(args, f.ID)
	}
	query += " ORDER BY id"

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying groups: %w", err)
	}

	var groups []*manageable.Group
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning group: %w", err)
		}
		groups = append(groups, manageable.NewGroup(id, name))
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterating groups: %w", err)
	}
	rows.Close()

	for _, g := range groups {
		if err := p.load(ctx, &g.Entity); err != nil {
			return nil, fmt.Errorf("loading group %s: %w", g.ID, err)
		}
	}
	return groups, nil
}

// UpdateOne sets the given properties of group id. Only name is writable.
func (p *GroupProvider) UpdateOne(ctx context.Context, id string, fields Fields) error {
	if len(fields) == 0 {
		return nil
	}
	for key := range fields {
		if key != "name" {
			return fmt.Errorf("%w: %s", ErrUnknownField, key)
		}
	}

	result, err := p.db.ExecContext(ctx,
		"UPDATE device_groups SET name = ?, updated_at = ? WHERE id = ?",
		fields["name"], time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("updating group: %w", err)
	}
	return requireRows(result)
}

// Remove deletes group id with its schedules and history. Member devices
// keep their group reference; callers detach them first.
func (p *GroupProvider) Remove(ctx context.Context, id string) error {
	return removeWithOwned(ctx, p.owned, "device_groups", id)
}
