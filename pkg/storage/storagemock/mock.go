package storagemock

import (
	"context"
	"time"

	"github.com/pumpwatch/pumpwatch/pkg/storage"
	"github.com/pumpwatch/pumpwatch/pkg/types"
	"github.com/stretchr/testify/mock"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) InsertSnapshot(ctx context.Context, snap types.SensorSnapshot) error {
	args := m.Called(ctx, snap)
	return args.Error(0)
}

func (m *MockDatabase) LatestSnapshot(ctx context.Context) (types.SensorSnapshot, error) {
	args := m.Called(ctx)
	return args.Get(0).(types.SensorSnapshot), args.Error(1)
}

func (m *MockDatabase) SnapshotHistory(ctx context.Context, start, end time.Time) ([]types.SensorSnapshot, error) {
	args := m.Called(ctx, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.SensorSnapshot), args.Error(1)
}

func (m *MockDatabase) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}
