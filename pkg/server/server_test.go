package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pumpwatch/pumpwatch/pkg/common"
	"github.com/pumpwatch/pumpwatch/pkg/portal"
	"github.com/pumpwatch/pumpwatch/pkg/storage"
	"github.com/pumpwatch/pumpwatch/pkg/storage/storagemock"
	"github.com/pumpwatch/pumpwatch/pkg/types"
)

func newTestServer(src portal.Source, db storage.Database) *Server {
	s := &Server{
		source:  src,
		storage: db,
		metrics: newMetrics(),
	}
	s.poller = newPoller(src, db, s.metrics, types.Settings{})
	return s
}

func TestHandleSnapshot(t *testing.T) {
	t.Run("No Data Yet", func(t *testing.T) {
		s := newTestServer(portal.NewMock(), nil)

		w := httptest.NewRecorder()
		s.setupHandler().ServeHTTP(w, httptest.NewRequest("GET", "/api/snapshot", nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("After Cycle", func(t *testing.T) {
		src := portal.NewMock()
		s := newTestServer(src, nil)
		s.poller.cycle(context.Background())

		w := httptest.NewRecorder()
		s.setupHandler().ServeHTTP(w, httptest.NewRequest("GET", "/api/snapshot", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var resp snapshotResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Empty())
		assert.Empty(t, resp.LastError)
		assert.False(t, resp.LastPoll.IsZero())
	})

	t.Run("Stale With Error", func(t *testing.T) {
		src := portal.NewMock()
		s := newTestServer(src, nil)
		s.poller.cycle(context.Background())

		src.SetError(errors.New("portal down"))
		s.poller.cycle(context.Background())

		w := httptest.NewRecorder()
		s.setupHandler().ServeHTTP(w, httptest.NewRequest("GET", "/api/snapshot", nil))
		require.Equal(t, http.StatusOK, w.Code, "last good snapshot stays available")

		var resp snapshotResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Empty())
		assert.Contains(t, resp.LastError, "portal down")
	})

	t.Run("Cold Start Serves Stored Snapshot", func(t *testing.T) {
		stored := types.SensorSnapshot{
			TakenAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
			Readings: map[types.SensorKey]types.SensorReading{
				types.SensorOutdoorTemperature: {Key: types.SensorOutdoorTemperature, Value: 7.5},
			},
		}
		db := &storagemock.MockDatabase{}
		db.On("LatestSnapshot", mock.Anything).Return(stored, nil)

		// no cycle has run yet, only the database has data
		s := newTestServer(portal.NewMock(), db)
		w := httptest.NewRecorder()
		s.setupHandler().ServeHTTP(w, httptest.NewRequest("GET", "/api/snapshot", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var resp snapshotResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		r, ok := resp.Reading(types.SensorOutdoorTemperature)
		require.True(t, ok)
		assert.Equal(t, 7.5, r.Value)
		db.AssertExpectations(t)
	})

	t.Run("Cold Start With Empty Storage", func(t *testing.T) {
		db := &storagemock.MockDatabase{}
		db.On("LatestSnapshot", mock.Anything).Return(types.SensorSnapshot{}, storage.ErrNoSnapshots)

		s := newTestServer(portal.NewMock(), db)
		w := httptest.NewRecorder()
		s.setupHandler().ServeHTTP(w, httptest.NewRequest("GET", "/api/snapshot", nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("Error Before First Success", func(t *testing.T) {
		src := portal.NewMock()
		src.SetError(errors.New("portal down"))
		s := newTestServer(src, nil)
		s.poller.cycle(context.Background())

		w := httptest.NewRecorder()
		s.setupHandler().ServeHTTP(w, httptest.NewRequest("GET", "/api/snapshot", nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestHandleSensors(t *testing.T) {
	s := newTestServer(portal.NewMock(), nil)

	w := httptest.NewRecorder()
	s.setupHandler().ServeHTTP(w, httptest.NewRequest("GET", "/api/sensors", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var infos []types.SensorInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &infos))
	assert.Len(t, infos, len(types.Registry()))
}

func TestHandleHistory(t *testing.T) {
	t.Run("No Storage", func(t *testing.T) {
		s := newTestServer(portal.NewMock(), nil)
		w := httptest.NewRecorder()
		s.setupHandler().ServeHTTP(w, httptest.NewRequest("GET", "/api/history", nil))
		assert.Equal(t, http.StatusNotImplemented, w.Code)
	})

	t.Run("Window Query", func(t *testing.T) {
		db := &storagemock.MockDatabase{}
		start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
		end := start.Add(6 * time.Hour)
		db.On("SnapshotHistory", mock.Anything, start, end).
			Return([]types.SensorSnapshot{{TakenAt: start.Add(time.Hour)}}, nil)

		s := newTestServer(portal.NewMock(), db)
		w := httptest.NewRecorder()
		s.setupHandler().ServeHTTP(w, httptest.NewRequest("GET",
			"/api/history?start="+start.Format(time.RFC3339)+"&end="+end.Format(time.RFC3339), nil))
		require.Equal(t, http.StatusOK, w.Code)

		var snaps []types.SensorSnapshot
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snaps))
		assert.Len(t, snaps, 1)
		db.AssertExpectations(t)
	})

	t.Run("Hours Shortcut", func(t *testing.T) {
		db := &storagemock.MockDatabase{}
		db.On("SnapshotHistory", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, nil).Run(func(args mock.Arguments) {
			start := args.Get(1).(time.Time)
			end := args.Get(2).(time.Time)
			assert.InDelta(t, (6 * time.Hour).Seconds(), end.Sub(start).Seconds(), 1)
		})

		s := newTestServer(portal.NewMock(), db)
		w := httptest.NewRecorder()
		s.setupHandler().ServeHTTP(w, httptest.NewRequest("GET", "/api/history?hours=6", nil))
		require.Equal(t, http.StatusOK, w.Code)
		db.AssertExpectations(t)
	})

	t.Run("Bad Hours", func(t *testing.T) {
		s := newTestServer(portal.NewMock(), &storagemock.MockDatabase{})
		w := httptest.NewRecorder()
		s.setupHandler().ServeHTTP(w, httptest.NewRequest("GET", "/api/history?hours=-1", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Bad Time", func(t *testing.T) {
		s := newTestServer(portal.NewMock(), &storagemock.MockDatabase{})
		w := httptest.NewRecorder()
		s.setupHandler().ServeHTTP(w, httptest.NewRequest("GET", "/api/history?start=yesterday", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Inverted Window", func(t *testing.T) {
		s := newTestServer(portal.NewMock(), &storagemock.MockDatabase{})
		w := httptest.NewRecorder()
		s.setupHandler().ServeHTTP(w, httptest.NewRequest("GET",
			"/api/history?start=2026-08-02T00:00:00Z&end=2026-08-01T00:00:00Z", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandleHealthz(t *testing.T) {
	s := newTestServer(portal.NewMock(), nil)
	w := httptest.NewRecorder()
	s.setupHandler().ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
	assert.Equal(t, "pumpwatch/"+common.Version(), w.Header().Get("Server"))
}

func TestHandleMetrics(t *testing.T) {
	src := portal.NewMock()
	s := newTestServer(src, nil)
	s.poller.cycle(context.Background())

	w := httptest.NewRecorder()
	s.setupHandler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "pumpwatch_portal_up 1")
	assert.Contains(t, body, `heatpump_temperature_celsius{sensor="outdoor_temperature"} 8`)
}
