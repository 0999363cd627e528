package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/pumpwatch/pumpwatch/pkg/types"
	_ "modernc.org/sqlite"
)

const sqliteDriverName = "sqlite"

// snapshots are stored one row per poll cycle, readings as a JSON blob. Row
// shape is queried by time only, so there is no reason to explode readings
// into columns that would need a migration every time the vendor adds a
// data point.
const schemaSnapshots = `
CREATE TABLE IF NOT EXISTS snapshots (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    taken_at TIMESTAMP NOT NULL,
    readings TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_taken_at ON snapshots (taken_at);
`

// SQLiteProvider implements Database on a local SQLite file.
type SQLiteProvider struct {
	path string
	db   *sql.DB
}

// configuredSQLite sets up the SQLite provider. It registers flags for
// configuration.
func configuredSQLite() *SQLiteProvider {
	path := lflag.String("sqlite-path", "pumpwatch.db", "Path of the SQLite database file")

	s := &SQLiteProvider{}

	lflag.Do(func() {
		s.path = *path
	})

	return s
}

// NewSQLite returns an initialized provider for the given file path. Mostly
// for tests; production wiring goes through Configured.
func NewSQLite(ctx context.Context, path string) (*SQLiteProvider, error) {
	s := &SQLiteProvider{path: path}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks if the provider is properly configured.
func (s *SQLiteProvider) Validate() error {
	if s.path == "" {
		return fmt.Errorf("sqlite path cannot be empty")
	}
	return nil
}

// Init opens the database file, applies pragmas and ensures the schema.
// This must be called before using the provider methods.
func (s *SQLiteProvider) Init(ctx context.Context) error {
	db, err := sql.Open(sqliteDriverName, s.path)
	if err != nil {
		return fmt.Errorf("open sqlite at %q: %w", s.path, err)
	}

	// SQLite is not great with many writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping sqlite: %w", err)
	}

	s.db = db
	return nil
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, schemaSnapshots); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema transaction: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteProvider) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteProvider) InsertSnapshot(ctx context.Context, snap types.SensorSnapshot) error {
	readings, err := json.Marshal(snap.Readings)
	if err != nil {
		return fmt.Errorf("marshal readings: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO snapshots (taken_at, readings) VALUES (?, ?)",
		snap.TakenAt.UTC(), string(readings))
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteProvider) LatestSnapshot(ctx context.Context) (types.SensorSnapshot, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT taken_at, readings FROM snapshots ORDER BY taken_at DESC, id DESC LIMIT 1")
	snap, err := scanSnapshot(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return types.SensorSnapshot{}, ErrNoSnapshots
	}
	if err != nil {
		return types.SensorSnapshot{}, fmt.Errorf("query latest snapshot: %w", err)
	}
	return snap, nil
}

func (s *SQLiteProvider) SnapshotHistory(ctx context.Context, start, end time.Time) ([]types.SensorSnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT taken_at, readings FROM snapshots WHERE taken_at >= ? AND taken_at < ? ORDER BY taken_at ASC",
		start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query snapshot history: %w", err)
	}
	defer rows.Close()

	var out []types.SensorSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot history: %w", err)
	}
	return out, nil
}

func (s *SQLiteProvider) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM snapshots WHERE taken_at < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	return n, nil
}

// scanSnapshot decodes one snapshot row via the given Scan function, so the
// same path serves both QueryRow and Rows.
func scanSnapshot(scan func(dest ...any) error) (types.SensorSnapshot, error) {
	var takenAt time.Time
	var readings string
	if err := scan(&takenAt, &readings); err != nil {
		return types.SensorSnapshot{}, err
	}
	snap := types.SensorSnapshot{TakenAt: takenAt}
	if err := json.Unmarshal([]byte(readings), &snap.Readings); err != nil {
		return types.SensorSnapshot{}, fmt.Errorf("unmarshal readings: %w", err)
	}
	return snap, nil
}
