// Package sync orchestrates run cycles: enumerate tagged books, compare
// digests against the ledger, upload what changed and record the run.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	stdsync "sync"

	"github.com/shelfmark/shelfsync/internal/bookfusion"
	"github.com/shelfmark/shelfsync/internal/digest"
	"github.com/shelfmark/shelfsync/internal/ledger"
	"github.com/shelfmark/shelfsync/internal/library"
)

const (
	// MsgAlreadyRunning is the lock-contention outcome. Not an error; the
	// caller is expected to re-trigger later.
	MsgAlreadyRunning = "Another sync is currently running"

	msgNoAPIKey = "BookFusion API key is not configured"
)

// Coordinator owns the process-wide run lock and drives one cycle end to
// end. Books are processed strictly sequentially within a run.
type Coordinator struct {
	store   *ledger.Store
	baseURL string
	mu      stdsync.Mutex

	// Swapped in tests.
	openLibrary func(dir string) (LibraryReader, error)
	newUploader func(baseURL, apiKey string) Uploader
}

func NewCoordinator(store *ledger.Store, apiBaseURL string) *Coordinator {
	return &Coordinator{
		store:   store,
		baseURL: apiBaseURL,
		openLibrary: func(dir string) (LibraryReader, error) {
			return library.Open(dir)
		},
		newUploader: func(baseURL, apiKey string) Uploader {
			return bookfusion.New(baseURL, apiKey)
		},
	}
}

// RunCycle executes one sync run. forceResync uploads even when the stored
// digest matches, regardless of mode. The returned Summary is never nil and
// no error escapes to the trigger source; a crash mid-run is recorded on the
// run and reflected in the counts.
func (c *Coordinator) RunCycle(ctx context.Context, mode ledger.Mode, forceResync bool) *Summary {
	// One settings snapshot for the whole run, read before the lock so a
	// missing credential never records a run.
	settings := c.store.Snapshot()
	if settings.APIKey == "" {
		slog.Error(msgNoAPIKey)
		return &Summary{Results: []ItemResult{}, Failed: 1, Message: msgNoAPIKey}
	}

	if !c.mu.TryLock() {
		slog.Info("sync cycle skipped, another run in progress", "mode", mode)
		return &Summary{Results: []ItemResult{}, Message: MsgAlreadyRunning}
	}
	defer c.mu.Unlock()

	runID, err := c.store.StartRun(mode)
	if err != nil {
		msg := fmt.Sprintf("record run start: %v", err)
		slog.Error(msg)
		return &Summary{Results: []ItemResult{}, Failed: 1, Message: msg}
	}

	summary := &Summary{Results: []ItemResult{}}
	if crashMsg := c.process(ctx, settings, forceResync, summary); crashMsg != "" {
		// The crash itself counts as one extra failure on top of whatever
		// was accumulated before it.
		summary.Failed++
		summary.Message = crashMsg
	}

	if err := c.store.FinishRun(runID, summary.Total, summary.Succeeded, summary.Failed, summary.Skipped, summary.Message); err != nil {
		slog.Error("finish run record", "run", runID, "error", err)
	}

	slog.Info("sync cycle complete",
		"mode", mode,
		"processed", summary.Total,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"skipped", summary.Skipped)
	return summary
}

// process runs the enumeration loop. It is the run boundary: any panic is
// converted into a crash message so the run record still gets finalized and
// the lock is released.
func (c *Coordinator) process(ctx context.Context, settings ledger.Settings, forceResync bool, summary *Summary) (crashMsg string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("sync cycle crashed", "panic", r)
			crashMsg = fmt.Sprintf("sync cycle crashed: %v", r)
		}
	}()

	lib, err := c.openLibrary(settings.LibraryDir)
	if err != nil {
		return fmt.Sprintf("open library: %v", err)
	}
	defer lib.Close()

	books, err := lib.ListTagged(settings.SyncTag)
	if err != nil {
		return fmt.Sprintf("list tagged books: %v", err)
	}
	summary.Total = len(books)
	slog.Info("starting sync cycle", "tag", settings.SyncTag, "tagged", len(books))

	uploader := c.newUploader(c.baseURL, settings.APIKey)
	for _, book := range books {
		c.processBook(ctx, lib, uploader, settings, forceResync, book, summary)
	}
	return ""
}

func (c *Coordinator) processBook(ctx context.Context, lib LibraryReader, uploader Uploader, settings ledger.Settings, forceResync bool, book library.Book, summary *Summary) {
	fail := func(msg string) {
		summary.Failed++
		summary.Results = append(summary.Results, ItemResult{Title: book.Title, Message: msg})
		slog.Warn("book failed", "book", book.ID, "title", book.Title, "reason", msg)
	}

	filename, path, err := lib.ResolvePrimaryContent(book)
	if err != nil {
		fail(err.Error())
		return
	}

	fileDigest, err := digest.Compute(path)
	if err != nil {
		fail(err.Error())
		return
	}

	previous, err := c.store.SyncedDigest(book.ID)
	if err != nil {
		fail(err.Error())
		return
	}
	if !forceResync && previous == fileDigest {
		summary.Skipped++
		summary.Results = append(summary.Results, ItemResult{
			Title:   book.Title,
			Success: true,
			Message: "Skipped (already synced)",
			Skipped: true,
		})
		return
	}

	meta, err := lib.FullMetadata(book.ID, settings.SyncTag)
	if err != nil {
		fail(fmt.Sprintf("read metadata: %v", err))
		return
	}

	res := uploader.Upload(ctx, filename, path, fileDigest, meta)
	if !res.OK {
		// Ledger untouched: the next run retries from the same digest.
		fail(res.Message)
		return
	}

	// Order matters: the marker comes off and the digest is recorded only
	// after finalize was acknowledged for this exact digest.
	if err := lib.RemoveMarkerTag(book.ID, settings.SyncTag); err != nil {
		slog.Error("remove marker tag", "book", book.ID, "error", err)
	}
	if err := c.store.UpsertSyncedDigest(book.ID, fileDigest); err != nil {
		slog.Error("record synced digest", "book", book.ID, "error", err)
	}
	summary.Succeeded++
	summary.Results = append(summary.Results, ItemResult{
		Title:   book.Title,
		Success: true,
		Message: res.Message,
	})
}
