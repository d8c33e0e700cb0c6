// Package config handles configuration for the client component.
package config

import "time"

// Config holds runtime settings for the taskhive client.
//
// Fields:
//   - ServerEndpointAddr: base URL of the sync server (e.g., "http://127.0.0.1:8080").
//   - DatabaseDSN: path of the local SQLite database file.
//   - AuthToken: bearer token presented on every request.
//   - SyncInterval: how often the periodic sync loop triggers a cycle.
//   - PendingThreshold: queued-change count that triggers an eager sync.
//   - SchemaVersion: local schema version reported to the server on pull.
//   - Watch: keep syncing on a timer instead of running a single cycle.
//   - Reset: wipe local sync state first; the next cycle re-pulls everything.
type Config struct {
	ServerEndpointAddr string
	DatabaseDSN        string
	AuthToken          string
	SyncInterval       time.Duration
	PendingThreshold   int
	SchemaVersion      int
	Watch              bool
	Reset              bool
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "http://127.0.0.1:8080"
	c.DatabaseDSN = "taskhive.db"
	c.SyncInterval = 30 * time.Second
	c.PendingThreshold = 20
	c.SchemaVersion = 1
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
