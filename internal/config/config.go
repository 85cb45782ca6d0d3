// Package config resolves the process configuration: compiled-in defaults,
// the managed env file and the environment. Runtime-mutable settings live in
// the ledger; this package only seeds them and persists saves back to the
// managed env file.
package config

import (
	"fmt"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/shelfmark/shelfsync/internal/ledger"
	"github.com/shelfmark/shelfsync/internal/utils"
)

const (
	DefaultPort            = 8090
	DefaultLibraryDir      = "/calibre-library"
	DefaultAPIBase         = "https://www.bookfusion.com/calibre-api/v1"
	DefaultIntervalMinutes = 15
	DefaultSyncTag         = "bf"
)

// Environment variable names, also the keys of the managed env file.
const (
	EnvAppPort    = "APP_PORT"
	EnvLibraryDir = "CALIBRE_LIBRARY_DIR"
	EnvAPIKey     = "BOOKFUSION_API_KEY"
	EnvAPIBase    = "BOOKFUSION_API_BASE"
	EnvInterval   = "SYNC_INTERVAL_MINUTES"
	EnvSyncTag    = "SYNC_TAG"
	EnvSyncMode   = "DEFAULT_SYNC_MODE"
)

// Config is the resolved process configuration.
type Config struct {
	DataDir         string
	Port            int
	LibraryDir      string
	APIKey          string
	APIBase         string
	IntervalMinutes int
	SyncTag         string
	SyncMode        string
	EnvFile         string
}

// Normalize applies the silent-fallback policy: malformed or out-of-range
// values revert to defaults instead of failing startup.
func (c *Config) Normalize() {
	if c.Port <= 0 {
		c.Port = DefaultPort
	}
	if c.IntervalMinutes <= 0 {
		c.IntervalMinutes = DefaultIntervalMinutes
	}
	if c.LibraryDir == "" {
		c.LibraryDir = DefaultLibraryDir
	}
	if c.SyncTag == "" {
		c.SyncTag = DefaultSyncTag
	}
	if c.APIBase == "" {
		c.APIBase = DefaultAPIBase
	}
	if !ledger.ValidMode(c.SyncMode) {
		c.SyncMode = string(ledger.ModeManual)
	}
}

// Validate checks the few values that cannot be defaulted away.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data dir is required")
	}
	return nil
}

func (c *Config) StateDBPath() string {
	return filepath.Join(c.DataDir, "shelfsync.db")
}

func (c *Config) LogFilePath() string {
	return filepath.Join(c.DataDir, "logs", "shelfsync.log")
}

func (c *Config) LockFilePath() string {
	return filepath.Join(c.DataDir, "shelfsync.lock")
}

// LedgerDefaults converts the resolved config into the fallback values the
// settings store hands out for unset or malformed rows.
func (c *Config) LedgerDefaults() ledger.Defaults {
	return ledger.Defaults{
		AppPort:         c.Port,
		LibraryDir:      c.LibraryDir,
		APIKey:          c.APIKey,
		IntervalMinutes: c.IntervalMinutes,
		SyncTag:         c.SyncTag,
		SyncMode:        ledger.Mode(c.SyncMode),
	}
}

// LoadEnvFile loads the managed env file into the process environment.
// Variables already set in the environment win. A missing file is fine.
func LoadEnvFile(path string) error {
	if path == "" || !utils.FileExists(path) {
		return nil
	}
	return godotenv.Load(path)
}

// SaveManagedEnv merges values over the managed env file so the saved
// settings survive a container restart.
func SaveManagedEnv(path string, values map[string]string) error {
	current := map[string]string{}
	if utils.FileExists(path) {
		parsed, err := godotenv.Read(path)
		if err != nil {
			return fmt.Errorf("read env file: %w", err)
		}
		current = parsed
	}
	for k, v := range values {
		current[k] = v
	}

	if err := utils.EnsureParent(path); err != nil {
		return fmt.Errorf("ensure env file dir: %w", err)
	}
	if err := godotenv.Write(current, path); err != nil {
		return fmt.Errorf("write env file: %w", err)
	}
	return nil
}
