// Package library is a read-only facade over a calibre library: the
// metadata.db sqlite store plus the book folders that sit next to it. The
// store is owned by calibre; the only mutation this package performs is
// removing a tag association.
package library

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/shelfmark/shelfsync/internal/db"
	"github.com/shelfmark/shelfsync/internal/utils"
)

const (
	metadataDBName   = "metadata.db"
	contentExtension = ".epub"
)

var (
	ErrBookNotFound = errors.New("book not found")
)

// coverNames lists the cover files calibre may write, in lookup order.
var coverNames = []string{"cover.jpg", "cover.jpeg", "cover.png", "cover.webp"}

// Book is one library record: stable id, title and the storage path of the
// book folder relative to the library root.
type Book struct {
	ID    int64  `db:"id" json:"id"`
	Title string `db:"title" json:"title"`
	Path  string `db:"path" json:"path"`
}

// Metadata aggregates the descriptive fields sent alongside an upload.
// Optional fields are empty when absent, never an error.
type Metadata struct {
	Title    string
	Authors  []string
	Tags     []string
	Summary  string
	ISBN     string
	Language string
}

// Reader queries one calibre library. Open a fresh Reader per sync run so a
// library path change in settings takes effect on the next run.
type Reader struct {
	root string
	db   *sqlx.DB
}

// Open connects to the metadata.db under libraryDir.
func Open(libraryDir string) (*Reader, error) {
	root, err := utils.ResolvePath(libraryDir)
	if err != nil {
		return nil, fmt.Errorf("resolve library dir: %w", err)
	}

	mdb, err := db.OpenExisting(filepath.Join(root, metadataDBName))
	if err != nil {
		return nil, fmt.Errorf("open library metadata: %w", err)
	}

	return &Reader{root: root, db: mdb}, nil
}

func (r *Reader) Close() error {
	return r.db.Close()
}

// Root returns the resolved library root directory.
func (r *Reader) Root() string {
	return r.root
}

// ListTagged returns all books carrying the given tag. Order is unspecified.
func (r *Reader) ListTagged(tag string) ([]Book, error) {
	var books []Book
	err := r.db.Select(&books, `
		SELECT books.id, books.title, books.path
		FROM books
		JOIN books_tags_link ON books.id = books_tags_link.book
		JOIN tags ON tags.id = books_tags_link.tag
		WHERE tags.name = ?`, tag)
	if err != nil {
		return nil, fmt.Errorf("list tagged books: %w", err)
	}
	return books, nil
}

// ResolvePrimaryContent locates the book's primary content file: the
// lexicographically first EPUB in its storage folder. The deterministic
// choice matters when a folder holds multiple EPUBs.
func (r *Reader) ResolvePrimaryContent(book Book) (filename string, absPath string, err error) {
	bookDir := filepath.Join(r.root, book.Path)
	if !utils.DirExists(bookDir) {
		return "", "", fmt.Errorf("book folder missing: %s", bookDir)
	}

	entries, err := os.ReadDir(bookDir)
	if err != nil {
		return "", "", fmt.Errorf("read book folder: %w", err)
	}

	var epubs []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(strings.ToLower(e.Name()), contentExtension) {
			epubs = append(epubs, e.Name())
		}
	}
	if len(epubs) == 0 {
		return "", "", errors.New("no EPUB found")
	}
	sort.Strings(epubs)

	return epubs[0], filepath.Join(bookDir, epubs[0]), nil
}

// FullMetadata aggregates the descriptive metadata for a book. excludeTag is
// the sync marker tag, which is never reported as a regular tag.
func (r *Reader) FullMetadata(bookID int64, excludeTag string) (*Metadata, error) {
	var title string
	if err := r.db.Get(&title, `SELECT title FROM books WHERE id = ?`, bookID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookNotFound
		}
		return nil, fmt.Errorf("query title: %w", err)
	}

	var authors []string
	err := r.db.Select(&authors, `
		SELECT DISTINCT authors.name
		FROM authors
		JOIN books_authors_link ON authors.id = books_authors_link.author
		WHERE books_authors_link.book = ?
		ORDER BY authors.name`, bookID)
	if err != nil {
		return nil, fmt.Errorf("query authors: %w", err)
	}

	var tags []string
	err = r.db.Select(&tags, `
		SELECT tags.name
		FROM tags
		JOIN books_tags_link ON tags.id = books_tags_link.tag
		WHERE books_tags_link.book = ? AND tags.name != ?`, bookID, excludeTag)
	if err != nil {
		return nil, fmt.Errorf("query tags: %w", err)
	}

	var summary string
	err = r.db.Get(&summary, `SELECT text FROM comments WHERE book = ?`, bookID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("query summary: %w", err)
	}

	var isbn string
	err = r.db.Get(&isbn, `SELECT val FROM identifiers WHERE book = ? AND type = 'isbn'`, bookID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("query isbn: %w", err)
	}

	var language string
	err = r.db.Get(&language, `
		SELECT languages.lang_code
		FROM languages
		JOIN books_languages_link ON languages.id = books_languages_link.lang_code
		WHERE books_languages_link.book = ?
		LIMIT 1`, bookID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("query language: %w", err)
	}

	return &Metadata{
		Title:    title,
		Authors:  authors,
		Tags:     tags,
		Summary:  summary,
		ISBN:     isbn,
		Language: language,
	}, nil
}

// RemoveMarkerTag deletes the association between the book and the named tag.
// Removing an absent association is not an error.
func (r *Reader) RemoveMarkerTag(bookID int64, tag string) error {
	_, err := r.db.Exec(`
		DELETE FROM books_tags_link
		WHERE book = ?
		AND tag = (SELECT id FROM tags WHERE name = ?)`, bookID, tag)
	if err != nil {
		return fmt.Errorf("remove tag %q from book %d: %w", tag, bookID, err)
	}
	return nil
}

// ResolveStoragePath returns the book's storage path relative to the library
// root, or ErrBookNotFound.
func (r *Reader) ResolveStoragePath(bookID int64) (string, error) {
	var path string
	if err := r.db.Get(&path, `SELECT path FROM books WHERE id = ?`, bookID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrBookNotFound
		}
		return "", fmt.Errorf("query book path: %w", err)
	}
	return path, nil
}

// FindCover returns the first cover image in a book folder, if any.
func FindCover(bookDir string) (string, bool) {
	for _, name := range coverNames {
		path := filepath.Join(bookDir, name)
		if utils.FileExists(path) {
			return path, true
		}
	}
	return "", false
}
