package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/manage-core/internal/manageable"
)

// deviceColumns maps writable properties to their column.
var deviceColumns = map[string]string{
	"name":    "name",
	"state":   "state",
	"group":   "group_id",
	"ip":      "ip",
	"url":     "url",
	"storage": "storage",
	"inputs":  "inputs",
	"presets": "presets",
}

// DeviceProvider persists devices.
type DeviceProvider struct {
	owned
}

// NewDeviceProvider creates a provider over an open, migrated database.
func NewDeviceProvider(db *sql.DB) *DeviceProvider {
	return &DeviceProvider{owned: owned{db: db, ownerType: manageable.TypeDevice}}
}

// Add inserts d. Its schedules and history are not written.
func (p *DeviceProvider) Add(ctx context.Context, d *manageable.Device) error {
	storage, err := marshalNullable(d.Storage)
	if err != nil {
		return fmt.Errorf("marshalling storage: %w", err)
	}
	inputs, err := marshalNullable(d.Inputs)
	if err != nil {
		return fmt.Errorf("marshalling inputs: %w", err)
	}
	presets, err := marshalNullable(d.Presets)
	if err != nil {
		return fmt.Errorf("marshalling presets: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO devices (id, name, state, group_id, ip, url, storage, inputs, presets,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Name, string(d.State), nullableString(d.Group), nullableString(d.IP),
		nullableString(d.URL), storage, inputs, presets, now, now,
	)
	if err != nil {
		if isConstraintError(err) {
			return ErrExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}
	return nil
}

// Get returns the devices matching f with their schedules and history.
// Every device is returned DISCONNECTED.
func (p *DeviceProvider) Get(ctx context.Context, f Filter) ([]*manageable.Device, error) {
	query := `
		SELECT id, name, state, group_id, ip, url, storage, inputs, presets
		FROM devices`
	var (
		where []string
		args  []any
	)
	if f.ID != "" {
		where = append(where, "id = ?")
		args = append(args, f.ID)
	}
	if f.Group != "" {
		where = append(where, "group_id = ?")
		args = append(args, f.Group)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}

	var devices []*manageable.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	rows.Close()

	// Loaded after the cursor is closed: the pool holds a single connection.
	for _, d := range devices {
		if err := p.load(ctx, &d.Entity); err != nil {
			return nil, fmt.Errorf("loading device %s: %w", d.ID, err)
		}
	}
	return devices, nil
}

// UpdateOne sets the given properties of device id.
func (p *DeviceProvider) UpdateOne(ctx context.Context, id string, fields Fields) error {
	if len(fields) == 0 {
		return nil
	}

	sets := make([]string, 0, len(fields)+1)
	args := make([]any, 0, len(fields)+2)
	for key, value := range fields {
		column, ok := deviceColumns[key]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownField, key)
		}
		v, err := deviceValue(key, value)
		if err != nil {
			return err
		}
		sets = append(sets, column+" = ?")
		args = append(args, v)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC().Format(time.RFC3339), id)

	result, err := p.db.ExecContext(ctx,
		"UPDATE devices SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("updating device: %w", err)
	}
	return requireRows(result)
}

// Remove deletes device id with its schedules and history.
func (p *DeviceProvider) Remove(ctx context.Context, id string) error {
	return removeWithOwned(ctx, p.owned, "devices", id)
}

func deviceValue(key string, value any) (any, error) {
	switch key {
	case "storage", "inputs", "presets":
		v, err := marshalNullable(value)
		if err != nil {
			return nil, fmt.Errorf("marshalling %s: %w", key, err)
		}
		return v, nil
	case "group", "ip", "url":
		if s, ok := value.(string); ok {
			return nullableString(s), nil
		}
		return value, nil
	case "state":
		if s, ok := value.(manageable.DeviceState); ok {
			return string(s), nil
		}
		return value, nil
	default:
		return value, nil
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDevice(row scanner) (*manageable.Device, error) {
	var (
		id, name, state          string
		group, ip, url           sql.NullString
		storage, inputs, presets sql.NullString
	)
	if err := row.Scan(&id, &name, &state, &group, &ip, &url, &storage, &inputs, &presets); err != nil {
		return nil, fmt.Errorf("scanning device: %w", err)
	}

	d := manageable.NewDevice(id)
	d.Name = name
	d.State = manageable.DeviceState(state)
	d.Group = group.String
	d.IP = ip.String
	d.URL = url.String

	if storage.Valid {
		if err := json.Unmarshal([]byte(storage.String), &d.Storage); err != nil {
			return nil, fmt.Errorf("unmarshalling device %s storage: %w", id, err)
		}
	}
	if inputs.Valid {
		if err := json.Unmarshal([]byte(inputs.String), &d.Inputs); err != nil {
			return nil, fmt.Errorf("unmarshalling device %s inputs: %w", id, err)
		}
	}
	if presets.Valid {
		if err := json.Unmarshal([]byte(presets.String), &d.Presets); err != nil {
			return nil, fmt.Errorf("unmarshalling device %s presets: %w", id, err)
		}
	}
	return d, nil
}

// removeWithOwned deletes the row id of table and everything o owns for it
// in one transaction.
func removeWithOwned(ctx context.Context, o owned, table, id string) error {
	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	result, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting from %s: %w", table, err)
	}
	if err := requireRows(result); err != nil {
		return err
	}
	if err := o.removeOwned(ctx, tx, id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing delete: %w", err)
	}
	return nil
}
