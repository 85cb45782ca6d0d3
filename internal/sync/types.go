package sync

import (
	"context"

	"github.com/shelfmark/shelfsync/internal/bookfusion"
	"github.com/shelfmark/shelfsync/internal/library"
)

// ItemResult is the per-book outcome reported in a Summary.
type ItemResult struct {
	Title   string `json:"title"`
	Success bool   `json:"success"`
	Message string `json:"message"`
	Skipped bool   `json:"skipped"`
}

// Summary aggregates one run cycle. Message is set on fast-fail paths and
// on the crash path; per-book failures live in Results.
type Summary struct {
	Results   []ItemResult `json:"results"`
	Total     int          `json:"total"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Skipped   int          `json:"skipped"`
	Message   string       `json:"message,omitempty"`
}

// LibraryReader is the slice of the library facade the coordinator needs.
type LibraryReader interface {
	ListTagged(tag string) ([]library.Book, error)
	ResolvePrimaryContent(book library.Book) (filename string, absPath string, err error)
	FullMetadata(bookID int64, excludeTag string) (*library.Metadata, error)
	RemoveMarkerTag(bookID int64, tag string) error
	Close() error
}

// Uploader runs the three-phase exchange for one file.
type Uploader interface {
	Upload(ctx context.Context, filename, path, digest string, meta *library.Metadata) bookfusion.Result
}
