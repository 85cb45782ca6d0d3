package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shelfmark/shelfsync/internal/ledger"
	"github.com/shelfmark/shelfsync/internal/library"
)

type BooksHandler struct {
	store *ledger.Store
}

func NewBooksHandler(store *ledger.Store) *BooksHandler {
	return &BooksHandler{store: store}
}

type BooksResponse struct {
	Books []library.Book `json:"books"`
	Count int            `json:"count"`
	Tag   string         `json:"tag"`
}

// List returns the books currently queued for sync, i.e. carrying the
// marker tag.
func (h *BooksHandler) List(c *gin.Context) {
	tag := h.store.SyncTag()

	reader, err := library.Open(h.store.LibraryDir())
	if err != nil {
		AbortWithError(c, http.StatusServiceUnavailable, ErrCodeLibraryUnavailable, err)
		return
	}
	defer reader.Close()

	books, err := reader.ListTagged(tag)
	if err != nil {
		AbortWithError(c, http.StatusInternalServerError, ErrCodeUnknownError, err)
		return
	}

	c.JSON(http.StatusOK, BooksResponse{Books: books, Count: len(books), Tag: tag})
}
