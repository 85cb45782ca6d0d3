package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shelfmark/shelfsync/internal/ledger"
	"github.com/shelfmark/shelfsync/internal/sync"
)

type SyncHandler struct {
	coord *sync.Coordinator
	store *ledger.Store
}

func NewSyncHandler(coord *sync.Coordinator, store *ledger.Store) *SyncHandler {
	return &SyncHandler{coord: coord, store: store}
}

type TriggerSyncRequest struct {
	ForceResync bool `json:"force_resync"`
}

// Trigger runs one manual sync cycle and returns its Summary. Lock
// contention is reported inside the Summary, not as an HTTP error.
func (h *SyncHandler) Trigger(c *gin.Context) {
	var req TriggerSyncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, err)
			return
		}
	}

	// A run in progress cannot be cancelled; a dropped client connection
	// must not abort mid-protocol, so the run does not use the request ctx.
	summary := h.coord.RunCycle(context.Background(), ledger.ModeManual, req.ForceResync)
	c.JSON(http.StatusOK, summary)
}

type SyncStatusResponse struct {
	Mode            string       `json:"mode"`
	SyncTag         string       `json:"sync_tag"`
	IntervalMinutes int          `json:"sync_interval_minutes"`
	LastRun         *ledger.Run  `json:"last_run"`
	RecentRuns      []ledger.Run `json:"recent_runs"`
}

func (h *SyncHandler) Status(c *gin.Context) {
	last, err := h.store.LastRun()
	if err != nil {
		AbortWithError(c, http.StatusInternalServerError, ErrCodeUnknownError, err)
		return
	}
	recent, err := h.store.RecentRuns(10)
	if err != nil {
		AbortWithError(c, http.StatusInternalServerError, ErrCodeUnknownError, err)
		return
	}

	c.JSON(http.StatusOK, SyncStatusResponse{
		Mode:            string(h.store.Mode()),
		SyncTag:         h.store.SyncTag(),
		IntervalMinutes: h.store.IntervalMinutes(),
		LastRun:         last,
		RecentRuns:      recent,
	})
}
