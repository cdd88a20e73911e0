package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gaetancollaud/integrations-mqtt/pkg/core"
)

const entryColumns = "entry_id, domain, title, unique_id, source, version, data, options, created_at, updated_at"

// EntryRepository implements core.EntryStore on the config_entries table.
type EntryRepository struct {
	db *DB
}

func NewEntryRepository(db *DB) *EntryRepository {
	return &EntryRepository{db: db}
}

func (r *EntryRepository) List(ctx context.Context) ([]*core.ConfigEntry, error) {
	return r.query(ctx, "SELECT "+entryColumns+" FROM config_entries ORDER BY position, created_at")
}

func (r *EntryRepository) ListByDomain(ctx context.Context, domain string) ([]*core.ConfigEntry, error) {
	return r.query(ctx, "SELECT "+entryColumns+" FROM config_entries WHERE domain = ? ORDER BY position, created_at", domain)
}

func (r *EntryRepository) Get(ctx context.Context, entryId string) (*core.ConfigEntry, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+entryColumns+" FROM config_entries WHERE entry_id = ?", entryId)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownEntry, entryId)
	}
	return entry, err
}

func (r *EntryRepository) Add(ctx context.Context, entry *core.ConfigEntry) error {
	data, options, err := encodeMaps(entry)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO config_entries
		(entry_id, domain, title, unique_id, source, version, data, options, created_at, updated_at, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM config_entries))`,
		entry.EntryId, entry.Domain, entry.Title, entry.UniqueId, string(entry.Source), entry.Version,
		data, options, formatTime(entry.CreatedAt), formatTime(entry.UpdatedAt))
	if err != nil {
		return fmt.Errorf("error inserting config entry: %w", err)
	}
	return nil
}

func (r *EntryRepository) Update(ctx context.Context, entry *core.ConfigEntry) error {
	data, options, err := encodeMaps(entry)
	if err != nil {
		return err
	}
	entry.UpdatedAt = time.Now().UTC()
	result, err := r.db.ExecContext(ctx, `UPDATE config_entries
		SET title = ?, unique_id = ?, version = ?, data = ?, options = ?, updated_at = ?
		WHERE entry_id = ?`,
		entry.Title, entry.UniqueId, entry.Version, data, options, formatTime(entry.UpdatedAt), entry.EntryId)
	if err != nil {
		return fmt.Errorf("error updating config entry: %w", err)
	}
	return expectOneRow(result, entry.EntryId)
}

func (r *EntryRepository) Delete(ctx context.Context, entryId string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM config_entries WHERE entry_id = ?", entryId)
	if err != nil {
		return fmt.Errorf("error deleting config entry: %w", err)
	}
	return expectOneRow(result, entryId)
}

func (r *EntryRepository) query(ctx context.Context, query string, args ...interface{}) ([]*core.ConfigEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying config entries: %w", err)
	}
	defer rows.Close()

	entries := []*core.ConfigEntry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row scanner) (*core.ConfigEntry, error) {
	var (
		entry              core.ConfigEntry
		source             string
		data, options      string
		createdAt, updated string
	)
	if err := row.Scan(&entry.EntryId, &entry.Domain, &entry.Title, &entry.UniqueId, &source, &entry.Version,
		&data, &options, &createdAt, &updated); err != nil {
		return nil, err
	}
	entry.Source = core.Source(source)
	if err := json.Unmarshal([]byte(data), &entry.Data); err != nil {
		return nil, fmt.Errorf("error decoding data of entry %s: %w", entry.EntryId, err)
	}
	if err := json.Unmarshal([]byte(options), &entry.Options); err != nil {
		return nil, fmt.Errorf("error decoding options of entry %s: %w", entry.EntryId, err)
	}
	if entry.Data == nil {
		entry.Data = map[string]interface{}{}
	}
	if entry.Options == nil {
		entry.Options = map[string]interface{}{}
	}
	entry.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	entry.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return &entry, nil
}

func encodeMaps(entry *core.ConfigEntry) (string, string, error) {
	data, err := json.Marshal(entry.Data)
	if err != nil {
		return "", "", fmt.Errorf("error encoding entry data: %w", err)
	}
	options, err := json.Marshal(entry.Options)
	if err != nil {
		return "", "", fmt.Errorf("error encoding entry options: %w", err)
	}
	if entry.Data == nil {
		data = []byte("{}")
	}
	if entry.Options == nil {
		options = []byte("{}")
	}
	return string(data), string(options), nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func expectOneRow(result sql.Result, entryId string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", core.ErrUnknownEntry, entryId)
	}
	return nil
}

var _ core.EntryStore = (*EntryRepository)(nil)
