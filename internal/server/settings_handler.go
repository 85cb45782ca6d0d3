package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/shelfmark/shelfsync/internal/config"
	"github.com/shelfmark/shelfsync/internal/ledger"
)

type SettingsHandler struct {
	store   *ledger.Store
	envFile string
}

func NewSettingsHandler(store *ledger.Store, envFile string) *SettingsHandler {
	return &SettingsHandler{store: store, envFile: envFile}
}

func (h *SettingsHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.Snapshot())
}

type UpdateSettingsRequest struct {
	AppPort         int    `json:"app_port"`
	LibraryDir      string `json:"library_dir"`
	APIKey          string `json:"api_key"`
	IntervalMinutes int    `json:"sync_interval_minutes"`
	SyncTag         string `json:"sync_tag"`
	SyncMode        string `json:"mode"`
}

// Update validates and persists the full settings document, then mirrors it
// into the managed env file so the values survive a restart.
func (h *SettingsHandler) Update(c *gin.Context) {
	var req UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, err)
		return
	}

	req.LibraryDir = strings.TrimSpace(req.LibraryDir)
	req.APIKey = strings.TrimSpace(req.APIKey)
	req.SyncTag = strings.TrimSpace(req.SyncTag)

	if req.LibraryDir == "" {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Errorf("library_dir must not be empty"))
		return
	}
	if req.SyncTag == "" {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Errorf("sync_tag must not be empty"))
		return
	}
	if req.AppPort <= 0 {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Errorf("app_port must be positive"))
		return
	}
	if req.IntervalMinutes <= 0 {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Errorf("sync_interval_minutes must be positive"))
		return
	}
	if !ledger.ValidMode(req.SyncMode) {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Errorf("mode must be %q or %q", ledger.ModeManual, ledger.ModeAutomatic))
		return
	}

	updates := map[string]string{
		ledger.KeyAppPort:         strconv.Itoa(req.AppPort),
		ledger.KeyLibraryDir:      req.LibraryDir,
		ledger.KeyAPIKey:          req.APIKey,
		ledger.KeyIntervalMinutes: strconv.Itoa(req.IntervalMinutes),
		ledger.KeySyncTag:         req.SyncTag,
	}
	for key, value := range updates {
		if err := h.store.SetSetting(key, value); err != nil {
			AbortWithError(c, http.StatusInternalServerError, ErrCodeUnknownError, err)
			return
		}
	}
	if err := h.store.SetMode(ledger.Mode(req.SyncMode)); err != nil {
		AbortWithError(c, http.StatusInternalServerError, ErrCodeUnknownError, err)
		return
	}

	if h.envFile != "" {
		err := config.SaveManagedEnv(h.envFile, map[string]string{
			config.EnvAppPort:    strconv.Itoa(req.AppPort),
			config.EnvLibraryDir: req.LibraryDir,
			config.EnvAPIKey:     req.APIKey,
			config.EnvInterval:   strconv.Itoa(req.IntervalMinutes),
			config.EnvSyncTag:    req.SyncTag,
			config.EnvSyncMode:   req.SyncMode,
		})
		if err != nil {
			// The ledger already holds the new values; losing the env mirror
			// only matters across restarts.
			slog.Error("settings env file save failed", "path", h.envFile, "error", err)
		}
	}

	c.JSON(http.StatusOK, h.store.Snapshot())
}
