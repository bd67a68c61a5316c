// Package store persists devices, groups and the schedules and history they
// own in SQLite.
//
// DeviceProvider and GroupProvider share the schedule and history tables,
// keyed by owner id and owner type. Runtime-only state (a device's session
// status, a schedule's timer handles) is never written.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/nerrad567/manage-core/internal/manageable"
)

// Store errors.
var (
	// ErrNotFound is returned when no row matches the given id.
	ErrNotFound = errors.New("store: not found")

	// ErrExists is returned when inserting a row whose id is taken.
	ErrExists = errors.New("store: already exists")

	// ErrUnknownField is returned by UpdateOne for a field that is not writable.
	ErrUnknownField = errors.New("store: unknown field")
)

// Fields is a partial update keyed by manageable property name.
type Fields map[string]any

// Filter narrows Get. Empty fields match everything.
type Filter struct {
	ID    string
	Group string
}

// timeLayout is fixed width and always written in UTC, so ORDER BY on a
// date column is chronological. Rows are parsed with time.RFC3339Nano.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// owned implements the schedule and history sub-operations for one owner type.
type owned struct {
	db        *sql.DB
	ownerType manageable.Type
}

// AddHistoric stores h in the history of ownerID.
func (o owned) AddHistoric(ctx context.Context, ownerID string, h *manageable.Historic) error {
	params, err := marshalNullable(h.Message.Params)
	if err != nil {
		return fmt.Errorf("marshalling historic params: %w", err)
	}

	_, err = o.db.ExecContext(ctx, `
		INSERT INTO history (id, owner_id, owner_type, timestamp, message_key, message_params)
		VALUES (?, ?, ?, ?, ?, ?)`,
		h.ID, ownerID, string(o.ownerType), formatTime(h.Timestamp), h.Message.Key, params,
	)
	if err != nil {
		if isConstraintError(err) {
			return ErrExists
		}
		return fmt.Errorf("inserting historic: %w", err)
	}
	return nil
}

// RemoveHistoric deletes one history entry of ownerID.
func (o owned) RemoveHistoric(ctx context.Context, ownerID, historicID string) error {
	result, err := o.db.ExecContext(ctx,
		"DELETE FROM history WHERE id = ? AND owner_id = ? AND owner_type = ?",
		historicID, ownerID, string(o.ownerType),
	)
	if err != nil {
		return fmt.Errorf("deleting historic: %w", err)
	}
	return requireRows(result)
}

// RemoveHistory deletes every history entry of ownerID.
func (o owned) RemoveHistory(ctx context.Context, ownerID string) error {
	_, err := o.db.ExecContext(ctx,
		"DELETE FROM history WHERE owner_id = ? AND owner_type = ?",
		ownerID, string(o.ownerType),
	)
	if err != nil {
		return fmt.Errorf("deleting history: %w", err)
	}
	return nil
}

// AddSchedule stores s for ownerID.
func (o owned) AddSchedule(ctx context.Context, ownerID string, s *manageable.Schedule) error {
	var end sql.NullString
	if s.EndDate != nil {
		end = sql.NullString{String: formatTime(*s.EndDate), Valid: true}
	}

	_, err := o.db.ExecContext(ctx, `
		INSERT INTO schedules (id, owner_id, owner_type, name, begin_date, duration_ms,
			end_date, recurrent, preset, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, ownerID, string(o.ownerType), s.Name, formatTime(s.BeginDate),
		s.Duration.Milliseconds(), end, string(s.Recurrent), s.Preset,
		formatTime(time.Now()),
	)
	if err != nil {
		if isConstraintError(err) {
			return ErrExists
		}
		return fmt.Errorf("inserting schedule: %w", err)
	}
	return nil
}

// RemoveSchedule deletes one schedule of ownerID.
func (o owned) RemoveSchedule(ctx context.Context, ownerID, scheduleID string) error {
	result, err := o.db.ExecContext(ctx,
		"DELETE FROM schedules WHERE id = ? AND owner_id = ? AND owner_type = ?",
		scheduleID, ownerID, string(o.ownerType),
	)
	if err != nil {
		return fmt.Errorf("deleting schedule: %w", err)
	}
	return requireRows(result)
}

// load fills the schedules and history of e.
func (o owned) load(ctx context.Context, e *manageable.Entity) error {
	schedules, err := o.schedules(ctx, e.ID)
	if err != nil {
		return err
	}
	history, err := o.history(ctx, e.ID)
	if err != nil {
		return err
	}
	e.Schedules = schedules
	e.History = history
	return nil
}

// removeOwned deletes the schedules and history of ownerID inside tx.
func (o owned) removeOwned(ctx context.Context, tx *sql.Tx, ownerID string) error {
	for _, table := range []string{"schedules", "history"} {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM "+table+" WHERE owner_id = ? AND owner_type = ?",
			ownerID, string(o.ownerType),
		); err != nil {
			return fmt.Errorf("deleting %s: %w", table, err)
		}
	}
	return nil
}

func (o owned) schedules(ctx context.Context, ownerID string) ([]*manageable.Schedule, error) {
	rows, err := o.db.QueryContext(ctx, `
		SELECT id, name, begin_date, duration_ms, end_date, recurrent, preset
		FROM schedules
		WHERE owner_id = ? AND owner_type = ?
		ORDER BY begin_date`,
		ownerID, string(o.ownerType),
	)
	if err != nil {
		return nil, fmt.Errorf("querying schedules: %w", err)
	}
	defer rows.Close()

	out := []*manageable.Schedule{}
	for rows.Next() {
		var (
			s          manageable.Schedule
			begin      string
			durationMS int64
			end        sql.NullString
			recurrent  string
		)
		if err := rows.Scan(&s.ID, &s.Name, &begin, &durationMS, &end, &recurrent, &s.Preset); err != nil {
			return nil, fmt.Errorf("scanning schedule: %w", err)
		}
		if s.BeginDate, err = time.Parse(time.RFC3339Nano, begin); err != nil {
			return nil, fmt.Errorf("parsing schedule %s begin date: %w", s.ID, err)
		}
		if end.Valid {
			t, err := time.Parse(time.RFC3339Nano, end.String)
			if err != nil {
				return nil, fmt.Errorf("parsing schedule %s end date: %w", s.ID, err)
			}
			s.EndDate = &t
		}
		if s.Recurrent, err = manageable.ParseRecurrence(recurrent); err != nil {
			return nil, fmt.Errorf("schedule %s: %w", s.ID, err)
		}
		s.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating schedules: %w", err)
	}
	return out, nil
}

func (o owned) history(ctx context.Context, ownerID string) ([]*manageable.Historic, error) {
	rows, err := o.db.QueryContext(ctx, `
		SELECT id, timestamp, message_key, message_params
		FROM history
		WHERE owner_id = ? AND owner_type = ?
		ORDER BY timestamp`,
		ownerID, string(o.ownerType),
	)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	out := []*manageable.Historic{}
	for rows.Next() {
		var (
			h      manageable.Historic
			ts     string
			params sql.NullString
		)
		if err := rows.Scan(&h.ID, &ts, &h.Message.Key, &params); err != nil {
			return nil, fmt.Errorf("scanning historic: %w", err)
		}
		if h.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parsing historic %s timestamp: %w", h.ID, err)
		}
		if params.Valid {
			if err := json.Unmarshal([]byte(params.String), &h.Message.Params); err != nil {
				return nil, fmt.Errorf("unmarshalling historic %s params: %w", h.ID, err)
			}
		}
		out = append(out, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history: %w", err)
	}
	return out, nil
}

func requireRows(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// marshalNullable encodes v as JSON, storing nil values as NULL.
func marshalNullable[T any](v T) (sql.NullString, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	if string(b) == "null" {
		return sql.NullString{}, nil
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isConstraintError(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		se.ExtendedCode == sqlite3.ErrConstraintUnique
}
