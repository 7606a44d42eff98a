// Package presets persists named snapshots of channel values in SQLite so
// an operator can capture a mix and replay it through the relay later.
package presets

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"grainbridge/internal/config"
	"grainbridge/internal/oscmsg"
	"grainbridge/internal/relay"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema
// changes; existing databases must then be deleted and re-created.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database was created by an incompatible
// version.
var ErrSchemaMismatch = errors.New("preset schema version mismatch")

// ErrNotFound marks lookups of presets that do not exist.
var ErrNotFound = errors.New("preset not found")

const maxNameLength = 64

// Preset is one named snapshot of channel values.
type Preset struct {
	Name      string          `json:"name"`
	Channels  map[int]float64 `json:"channels"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Store manages preset persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// Open initializes or connects to the preset database at cfg.Paths.PresetDB.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Paths.PresetDB)
	if err != nil {
		return nil, fmt.Errorf("open preset db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: cfg.Paths.PresetDB}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path reports the database file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	err = s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to reset)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}

// Save upserts a preset. Values are clamped to [0,1] before storage so the
// database never holds out-of-range channel values; an existing preset
// keeps its creation timestamp.
func (s *Store) Save(ctx context.Context, name string, channels map[int]float64) (Preset, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Preset{}, errors.New("preset name must not be empty")
	}
	if len(name) > maxNameLength {
		return Preset{}, fmt.Errorf("preset name exceeds %d characters", maxNameLength)
	}
	if len(channels) == 0 {
		return Preset{}, errors.New("preset must contain at least one channel value")
	}

	clamped := make(map[int]float64, len(channels))
	for ch, v := range channels {
		clamped[ch] = oscmsg.Clamp01(v)
	}
	payload, err := json.Marshal(clamped)
	if err != nil {
		return Preset{}, fmt.Errorf("encode channel map: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	err = retryOnBusy(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx, `
INSERT INTO presets (name, channels, created_at, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET
    channels = excluded.channels,
    updated_at = excluded.updated_at`,
			name, string(payload), now, now)
		return execErr
	})
	if err != nil {
		return Preset{}, fmt.Errorf("save preset %q: %w", name, err)
	}
	return s.Get(ctx, name)
}

// Get returns one preset by name.
func (s *Store) Get(ctx context.Context, name string) (Preset, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT name, channels, created_at, updated_at FROM presets WHERE name = ?",
		strings.TrimSpace(name))
	preset, err := scanPreset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Preset{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return preset, err
}

// List returns all presets ordered by name.
func (s *Store) List(ctx context.Context) ([]Preset, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, channels, created_at, updated_at FROM presets ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list presets: %w", err)
	}
	defer rows.Close()

	var out []Preset
	for rows.Next() {
		preset, err := scanPreset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, preset)
	}
	return out, rows.Err()
}

// Delete removes a preset by name.
func (s *Store) Delete(ctx context.Context, name string) error {
	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, execErr := s.db.ExecContext(ctx,
			"DELETE FROM presets WHERE name = ?", strings.TrimSpace(name))
		if execErr != nil {
			return execErr
		}
		affected, execErr = res.RowsAffected()
		return execErr
	})
	if err != nil {
		return fmt.Errorf("delete preset %q: %w", name, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPreset(row rowScanner) (Preset, error) {
	var (
		preset    Preset
		payload   string
		createdAt string
		updatedAt string
	)
	if err := row.Scan(&preset.Name, &payload, &createdAt, &updatedAt); err != nil {
		return Preset{}, err
	}
	if err := json.Unmarshal([]byte(payload), &preset.Channels); err != nil {
		return Preset{}, fmt.Errorf("decode channel map for %q: %w", preset.Name, err)
	}
	var err error
	if preset.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return Preset{}, fmt.Errorf("parse created_at for %q: %w", preset.Name, err)
	}
	if preset.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return Preset{}, fmt.Errorf("parse updated_at for %q: %w", preset.Name, err)
	}
	return preset, nil
}

// ChannelSender replays preset values; the relay satisfies it.
type ChannelSender interface {
	SendChannel(channel int, value float64) (relay.Result, error)
}

// ApplyOutcome reports a preset replay: how many channel sends went out,
// were dropped by the rate limiter, or failed.
type ApplyOutcome struct {
	Preset  Preset `json:"preset"`
	Sent    int    `json:"sent"`
	Dropped int    `json:"dropped"`
	Failed  int    `json:"failed"`
}

// Apply loads a preset and replays its values through sender in ascending
// channel order. Rate-limit drops and transport failures are counted per
// channel, not returned as errors, so a partial replay still reports what
// landed.
func (s *Store) Apply(ctx context.Context, name string, sender ChannelSender) (ApplyOutcome, error) {
	preset, err := s.Get(ctx, name)
	if err != nil {
		return ApplyOutcome{}, err
	}

	order := make([]int, 0, len(preset.Channels))
	for ch := range preset.Channels {
		order = append(order, ch)
	}
	sort.Ints(order)

	outcome := ApplyOutcome{Preset: preset}
	for _, ch := range order {
		res, _ := sender.SendChannel(ch, preset.Channels[ch])
		switch {
		case res.Sent:
			outcome.Sent++
		case res.RateLimited:
			outcome.Dropped++
		default:
			outcome.Failed++
		}
	}
	return outcome, nil
}
