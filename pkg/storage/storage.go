package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/pumpwatch/pumpwatch/pkg/types"
)

// ErrNoSnapshots is returned by LatestSnapshot when nothing has been
// recorded yet.
var ErrNoSnapshots = errors.New("no snapshots recorded")

// Database persists poll results and serves history queries.
type Database interface {
	// InsertSnapshot records one completed poll cycle.
	InsertSnapshot(ctx context.Context, snap types.SensorSnapshot) error

	// LatestSnapshot returns the most recently recorded snapshot, or
	// ErrNoSnapshots.
	LatestSnapshot(ctx context.Context) (types.SensorSnapshot, error)

	// SnapshotHistory returns snapshots taken in [start, end), oldest
	// first.
	SnapshotHistory(ctx context.Context, start, end time.Time) ([]types.SensorSnapshot, error)

	// PruneBefore deletes snapshots older than cutoff and reports how
	// many were removed.
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Lifecycle
	Close() error
}

// Configured sets up the storage provider based on flags.
func Configured() Database {
	provider := lflag.String("storage-provider", "sqlite", "Storage provider to use (available: sqlite)")

	var p struct{ Database }

	sq := configuredSQLite()

	lflag.Do(func() {
		switch *provider {
		case "sqlite":
			if err := sq.Validate(); err != nil {
				panic(fmt.Sprintf("sqlite validation failed: %v", err))
			}
			p.Database = sq
			if err := sq.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("sqlite init failed: %v", err))
			}
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return &p
}
