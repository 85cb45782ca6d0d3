package server

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/shelfmark/shelfsync/internal/ledger"
	"github.com/shelfmark/shelfsync/internal/library"
)

type CoversHandler struct {
	store *ledger.Store
}

func NewCoversHandler(store *ledger.Store) *CoversHandler {
	return &CoversHandler{store: store}
}

// Get serves a book's cover image straight from the library folder. Anything
// that cannot be resolved to a file inside the library root is a 404.
func (h *CoversHandler) Get(c *gin.Context) {
	bookID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Errorf("invalid book id: %q", c.Param("id")))
		return
	}

	reader, err := library.Open(h.store.LibraryDir())
	if err != nil {
		AbortWithError(c, http.StatusServiceUnavailable, ErrCodeLibraryUnavailable, err)
		return
	}
	defer reader.Close()

	relPath, err := reader.ResolveStoragePath(bookID)
	if err != nil {
		AbortWithError(c, http.StatusNotFound, ErrCodeNotFound, fmt.Errorf("book %d not found", bookID))
		return
	}

	bookDir, err := containedDir(reader.Root(), relPath)
	if err != nil {
		AbortWithError(c, http.StatusNotFound, ErrCodeNotFound, fmt.Errorf("book %d not found", bookID))
		return
	}

	cover, ok := library.FindCover(bookDir)
	if !ok {
		AbortWithError(c, http.StatusNotFound, ErrCodeNotFound, fmt.Errorf("no cover for book %d", bookID))
		return
	}

	c.Header("Cache-Control", "public, max-age=300")
	c.File(cover)
}

// containedDir resolves root/rel and rejects anything escaping the root,
// symlinks included. The path column is attacker-influenced only through the
// library database, but covers are served without auth so it stays strict.
func containedDir(root, rel string) (string, error) {
	rootReal, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", fmt.Errorf("resolve library root: %w", err)
	}
	dirReal, err := filepath.EvalSymlinks(filepath.Join(root, rel))
	if err != nil {
		return "", fmt.Errorf("resolve book folder: %w", err)
	}
	if dirReal != rootReal && !strings.HasPrefix(dirReal, rootReal+string(filepath.Separator)) {
		return "", fmt.Errorf("book folder escapes library root")
	}
	return dirReal, nil
}
