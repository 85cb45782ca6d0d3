package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Mode selects how sync runs are triggered.
type Mode string

const (
	ModeManual    Mode = "manual"
	ModeAutomatic Mode = "automatic"
)

// ValidMode reports whether s names a known sync mode.
func ValidMode(s string) bool {
	return Mode(s) == ModeManual || Mode(s) == ModeAutomatic
}

// Setting keys. Values are stored as text; typed getters coerce with
// fallback to the configured default on missing or malformed values.
const (
	KeyAppPort         = "app_port"
	KeyLibraryDir      = "library_dir"
	KeyAPIKey          = "api_key"
	KeyIntervalMinutes = "sync_interval_minutes"
	KeySyncTag         = "sync_tag"
	KeySyncMode        = "sync_mode"
)

// Defaults carries the compiled-in/env fallback values for every setting.
type Defaults struct {
	AppPort         int
	LibraryDir      string
	APIKey          string
	IntervalMinutes int
	SyncTag         string
	SyncMode        Mode
}

// Settings is one consistent snapshot of the mutable configuration. The
// coordinator takes a snapshot at run start and uses it for the whole run.
type Settings struct {
	AppPort         int    `json:"app_port"`
	LibraryDir      string `json:"library_dir"`
	APIKey          string `json:"api_key"`
	IntervalMinutes int    `json:"sync_interval_minutes"`
	SyncTag         string `json:"sync_tag"`
	SyncMode        Mode   `json:"mode"`
}

// SetDefaults attaches fallback values used by the typed getters.
func (s *Store) SetDefaults(d Defaults) {
	s.defaults = d
}

// Bootstrap seeds any unset setting with its default so the settings surface
// always shows concrete values.
func (s *Store) Bootstrap() error {
	seeds := map[string]string{
		KeyAppPort:         strconv.Itoa(s.defaults.AppPort),
		KeyLibraryDir:      s.defaults.LibraryDir,
		KeyAPIKey:          s.defaults.APIKey,
		KeyIntervalMinutes: strconv.Itoa(s.defaults.IntervalMinutes),
		KeySyncTag:         s.defaults.SyncTag,
	}
	for key, value := range seeds {
		var existing string
		err := s.db.Get(&existing, `SELECT value FROM sync_settings WHERE key = ?`, key)
		if errors.Is(err, sql.ErrNoRows) {
			if err := s.SetSetting(key, value); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("bootstrap read %s: %w", key, err)
		}
	}
	// Mode() persists the default when the stored value is absent or invalid.
	_ = s.Mode()
	return nil
}

// Setting returns the raw stored value, "" when unset. Read errors degrade
// to "unset" so getters can fall back to defaults; the settings store never
// raises for a malformed value.
func (s *Store) Setting(key string) string {
	var value string
	if err := s.db.Get(&value, `SELECT value FROM sync_settings WHERE key = ?`, key); err != nil {
		return ""
	}
	return value
}

// SetSetting upserts one settings row.
func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO sync_settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

func (s *Store) stringSetting(key, fallback string) string {
	value := strings.TrimSpace(s.Setting(key))
	if value == "" {
		return strings.TrimSpace(fallback)
	}
	return value
}

// positiveIntSetting parses the stored value, silently reverting to the
// fallback on malformed or non-positive input.
func (s *Store) positiveIntSetting(key string, fallback int) int {
	raw := strings.TrimSpace(s.Setting(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func (s *Store) AppPort() int {
	return s.positiveIntSetting(KeyAppPort, s.defaults.AppPort)
}

func (s *Store) LibraryDir() string {
	return s.stringSetting(KeyLibraryDir, s.defaults.LibraryDir)
}

func (s *Store) APIKey() string {
	return s.stringSetting(KeyAPIKey, s.defaults.APIKey)
}

func (s *Store) IntervalMinutes() int {
	return s.positiveIntSetting(KeyIntervalMinutes, s.defaults.IntervalMinutes)
}

func (s *Store) SyncTag() string {
	return s.stringSetting(KeySyncTag, s.defaults.SyncTag)
}

// Mode returns the active sync mode. An absent or invalid stored value falls
// back to the default and is persisted so the next read is stable.
func (s *Store) Mode() Mode {
	value := s.Setting(KeySyncMode)
	if ValidMode(value) {
		return Mode(value)
	}
	mode := s.defaults.SyncMode
	if !ValidMode(string(mode)) {
		mode = ModeManual
	}
	_ = s.SetSetting(KeySyncMode, string(mode))
	return mode
}

// SetMode validates and persists the sync mode.
func (s *Store) SetMode(mode Mode) error {
	if !ValidMode(string(mode)) {
		return fmt.Errorf("invalid sync mode: %q", mode)
	}
	return s.SetSetting(KeySyncMode, string(mode))
}

// Snapshot reads every setting once, giving a run a consistent view even if
// settings change mid-run.
func (s *Store) Snapshot() Settings {
	return Settings{
		AppPort:         s.AppPort(),
		LibraryDir:      s.LibraryDir(),
		APIKey:          s.APIKey(),
		IntervalMinutes: s.IntervalMinutes(),
		SyncTag:         s.SyncTag(),
		SyncMode:        s.Mode(),
	}
}
