package types

import "time"

const (
	// MinScanInterval is the floor for how often we poll the portal. The
	// dashboard data barely changes faster than this and the vendor rate
	// limits aggressive pollers.
	MinScanInterval = time.Minute

	// DefaultScanInterval matches the portal dashboard's own refresh.
	DefaultScanInterval = time.Minute

	// DefaultRequestTimeout bounds every portal HTTP call.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultHistoryRetention is how long stored snapshots are kept before
	// pruning.
	DefaultHistoryRetention = 30 * 24 * time.Hour
)

// Settings holds runtime configuration for the poller. These come from
// flags/env; the core treats them as opaque immutable inputs.
type Settings struct {
	// BaseURL of the vendor portal, without a trailing slash.
	BaseURL string `json:"baseURL"`

	// ScanInterval is how often a poll cycle runs. Clamped to
	// MinScanInterval by Normalize.
	ScanInterval time.Duration `json:"scanInterval"`

	// RequestTimeout applies to each individual portal request.
	RequestTimeout time.Duration `json:"requestTimeout"`

	// HistoryRetention is how long stored snapshots are kept. Zero disables
	// pruning.
	HistoryRetention time.Duration `json:"historyRetention"`
}

// Normalize fills defaults and enforces the scan interval floor.
func (s Settings) Normalize() Settings {
	if s.ScanInterval < MinScanInterval {
		s.ScanInterval = DefaultScanInterval
	}
	if s.RequestTimeout <= 0 {
		s.RequestTimeout = DefaultRequestTimeout
	}
	return s
}
