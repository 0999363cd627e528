package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/levenlabs/go-lflag"
	"github.com/pumpwatch/pumpwatch/pkg/common"
	"github.com/pumpwatch/pumpwatch/pkg/log"
	"github.com/pumpwatch/pumpwatch/pkg/portal"
	"github.com/pumpwatch/pumpwatch/pkg/storage"
	"github.com/pumpwatch/pumpwatch/pkg/types"
)

// Server exposes the latest poll results over HTTP: a JSON API for the
// current snapshot and history, plus Prometheus metrics. It owns the poll
// loop for its Source.
type Server struct {
	source  portal.Source
	storage storage.Database
	metrics *metrics
	poller  *poller

	listenAddr string
	httpServer *http.Server
}

// reauthCounter is implemented by sources that track session
// re-authentications, like portal.Client.
type reauthCounter interface {
	ReauthCount() int64
}

// Configured initializes the Server with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(src portal.Source, db storage.Database) *Server {
	srv := &Server{
		source:  src,
		storage: db,
		metrics: newMetrics(),
	}
	if rc, ok := src.(reauthCounter); ok {
		srv.metrics.registerReauthCount(func() float64 {
			return float64(rc.ReauthCount())
		})
	}

	// get the port from PORT when running in a container platform
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")
	scanInterval := lflag.Duration("scan-interval", types.DefaultScanInterval, "How often to poll the portal (minimum 1m)")
	historyRetention := lflag.Duration("history-retention", types.DefaultHistoryRetention, "How long to keep stored snapshots. 0 disables pruning.")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
		srv.poller = newPoller(srv.source, srv.storage, srv.metrics, types.Settings{
			ScanInterval:     *scanInterval,
			HistoryRetention: *historyRetention,
		})
	})

	return srv
}

func (s *Server) setupHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/snapshot", s.handleSnapshot)
	mux.HandleFunc("GET /api/sensors", s.handleSensors)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("GET /metrics", s.metrics.handler())
	return versionMiddleware(gziphandler.GzipHandler(mux))
}

func versionMiddleware(next http.Handler) http.Handler {
	name := "pumpwatch/" + common.Version()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", name)
		next.ServeHTTP(w, r)
	})
}

// Run starts the poll loop and the HTTP server, blocking until the context
// is canceled or the server fails. Shutdown is graceful and waits for the
// poll loop to exit.
func (s *Server) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.poller.run(ctx)
	}()
	defer wg.Wait()

	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

// snapshotResponse is the /api/snapshot payload. LastError is set when the
// most recent cycle failed; the snapshot is then the last good one.
type snapshotResponse struct {
	types.SensorSnapshot
	LastPoll  time.Time `json:"lastPoll"`
	LastError string    `json:"lastError,omitempty"`
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, lastPoll, lastErr := s.poller.latest()
	if snap.Empty() && s.storage != nil {
		// no successful cycle since the process started, fall back to the
		// last persisted snapshot so a restart doesn't blank the API
		stored, err := s.storage.LatestSnapshot(r.Context())
		if err == nil {
			snap = stored
		} else if !errors.Is(err, storage.ErrNoSnapshots) {
			log.Ctx(r.Context()).ErrorContext(r.Context(), "latest snapshot query failed", slog.Any("error", err))
		}
	}
	if snap.Empty() {
		if lastErr != nil {
			writeJSONError(w, lastErr.Error(), http.StatusServiceUnavailable)
			return
		}
		writeJSONError(w, "no poll cycle has completed yet", http.StatusServiceUnavailable)
		return
	}

	resp := snapshotResponse{SensorSnapshot: snap, LastPoll: lastPoll}
	if lastErr != nil {
		resp.LastError = lastErr.Error()
	}
	writeJSON(w, resp)
}

func (s *Server) handleSensors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, types.Registry())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.storage == nil {
		writeJSONError(w, "history storage not configured", http.StatusNotImplemented)
		return
	}

	end := time.Now()
	start := end.Add(-24 * time.Hour)
	var err error
	if v := r.URL.Query().Get("hours"); v != "" {
		hours, herr := strconv.Atoi(v)
		if herr != nil || hours <= 0 {
			writeJSONError(w, "invalid hours, expected a positive integer", http.StatusBadRequest)
			return
		}
		start = end.Add(-time.Duration(hours) * time.Hour)
	}
	if v := r.URL.Query().Get("start"); v != "" {
		if start, err = time.Parse(time.RFC3339, v); err != nil {
			writeJSONError(w, "invalid start time, expected RFC3339", http.StatusBadRequest)
			return
		}
	}
	if v := r.URL.Query().Get("end"); v != "" {
		if end, err = time.Parse(time.RFC3339, v); err != nil {
			writeJSONError(w, "invalid end time, expected RFC3339", http.StatusBadRequest)
			return
		}
	}
	if !start.Before(end) {
		writeJSONError(w, "start must be before end", http.StatusBadRequest)
		return
	}

	snaps, err := s.storage.SnapshotHistory(r.Context(), start, end)
	if err != nil {
		log.Ctx(r.Context()).ErrorContext(r.Context(), "history query failed", slog.Any("error", err))
		writeJSONError(w, "history query failed", http.StatusInternalServerError)
		return
	}
	if snaps == nil {
		snaps = []types.SensorSnapshot{}
	}
	writeJSON(w, snaps)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg}); err != nil {
		slog.Warn("failed to write error response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}
