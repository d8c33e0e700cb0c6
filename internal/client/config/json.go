package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/akarpov87/taskhive/internal/flagx"
	"github.com/akarpov87/taskhive/internal/timex"
)

// JsonConfig is the DTO for reading JSON configuration files.
type JsonConfig struct {
	ServerEndpointAddr string         `json:"server_endpoint_addr"`
	DatabaseDSN        string         `json:"database_dsn"`
	AuthToken          string         `json:"auth_token"`
	SyncInterval       timex.Duration `json:"sync_interval"`
	PendingThreshold   int            `json:"pending_threshold"`
	SchemaVersion      int            `json:"schema_version"`
}

func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}
	if err := applyJSONFile(config, jsonConfigFile); err != nil {
		panic(err)
	}
}

func applyJSONFile(config *Config, path string) error {
	file, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return err
	}

	if c.ServerEndpointAddr != "" {
		config.ServerEndpointAddr = c.ServerEndpointAddr
	}
	if c.DatabaseDSN != "" {
		config.DatabaseDSN = c.DatabaseDSN
	}
	if c.AuthToken != "" {
		config.AuthToken = c.AuthToken
	}
	if c.SyncInterval.Duration != 0 {
		config.SyncInterval = time.Duration(c.SyncInterval.Duration)
	}
	if c.PendingThreshold != 0 {
		config.PendingThreshold = c.PendingThreshold
	}
	if c.SchemaVersion != 0 {
		config.SchemaVersion = c.SchemaVersion
	}
	return nil
}
