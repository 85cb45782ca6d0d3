package bookfusion

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfmark/shelfsync/internal/library"
)

// fakeRemote fakes the three BookFusion contract points. Status codes are
// adjustable per phase to drive failure scenarios.
type fakeRemote struct {
	t              *testing.T
	srv            *httptest.Server
	initStatus     int
	transferStatus int
	finalizeStatus int

	initSeen     map[string]string
	transferSeen map[string][]string
	transferFile []byte
	finalizeSeen map[string][]string
	transferAuth string
}

func newFakeRemote(t *testing.T) *fakeRemote {
	f := &fakeRemote{
		t:              t,
		initStatus:     http.StatusOK,
		transferStatus: http.StatusNoContent,
		finalizeStatus: http.StatusCreated,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /uploads/init", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		f.initSeen = map[string]string{
			"filename": r.FormValue("filename"),
			"digest":   r.FormValue("digest"),
			"auth":     r.Header.Get("Authorization"),
		}
		if f.initStatus != http.StatusOK && f.initStatus != http.StatusCreated {
			w.WriteHeader(f.initStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.initStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"url": f.srv.URL + "/storage/put",
			"params": map[string]string{
				"key":    "uploads/abc123",
				"policy": "opaque-policy",
			},
		})
	})
	mux.HandleFunc("POST /storage/put", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(8<<20))
		f.transferAuth = r.Header.Get("Authorization")
		f.transferSeen = r.MultipartForm.Value
		file, _, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		buf := make([]byte, 1<<20)
		n, _ := file.Read(buf)
		f.transferFile = buf[:n]
		w.WriteHeader(f.transferStatus)
	})
	mux.HandleFunc("POST /uploads/finalize", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		f.finalizeSeen = r.MultipartForm.Value
		w.WriteHeader(f.finalizeStatus)
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func testUploadArgs(t *testing.T) (string, string, *library.Metadata) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Dune.epub")
	require.NoError(t, os.WriteFile(path, []byte("epub payload"), 0o644))
	meta := &library.Metadata{
		Title:    "Dune",
		Authors:  []string{"Frank Herbert"},
		Tags:     []string{"scifi", "classic"},
		Summary:  "A desert planet epic",
		ISBN:     "9780441013593",
		Language: "eng",
	}
	return "Dune.epub", path, meta
}

func TestUpload_AllPhasesSucceed(t *testing.T) {
	remote := newFakeRemote(t)
	client := New(remote.srv.URL, "api-key")
	name, path, meta := testUploadArgs(t)

	res := client.Upload(context.Background(), name, path, "digest-1", meta)
	require.True(t, res.OK, res.Message)
	assert.Equal(t, "Uploaded", res.Message)

	// Init carried filename, digest and the Basic credential.
	assert.Equal(t, "Dune.epub", remote.initSeen["filename"])
	assert.Equal(t, "digest-1", remote.initSeen["digest"])
	wantAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte("api-key:"))
	assert.Equal(t, wantAuth, remote.initSeen["auth"])

	// Transfer forwarded every init param plus the raw bytes, without auth.
	assert.Equal(t, []string{"uploads/abc123"}, remote.transferSeen["key"])
	assert.Equal(t, []string{"opaque-policy"}, remote.transferSeen["policy"])
	assert.Equal(t, []byte("epub payload"), remote.transferFile)
	assert.Empty(t, remote.transferAuth)

	// Finalize carried key, digest and the metadata fields, with repeats.
	assert.Equal(t, []string{"uploads/abc123"}, remote.finalizeSeen["key"])
	assert.Equal(t, []string{"digest-1"}, remote.finalizeSeen["digest"])
	assert.Equal(t, []string{"digest-1"}, remote.finalizeSeen["metadata[calibre_metadata_digest]"])
	assert.Equal(t, []string{"Dune"}, remote.finalizeSeen["metadata[title]"])
	assert.Equal(t, []string{"Frank Herbert"}, remote.finalizeSeen["metadata[author_list][]"])
	assert.ElementsMatch(t, []string{"scifi", "classic"}, remote.finalizeSeen["metadata[tag_list][]"])
	assert.Equal(t, []string{"A desert planet epic"}, remote.finalizeSeen["metadata[summary]"])
	assert.Equal(t, []string{"9780441013593"}, remote.finalizeSeen["metadata[isbn]"])
	assert.Equal(t, []string{"eng"}, remote.finalizeSeen["metadata[language]"])
}

func TestUpload_OptionalMetadataOmitted(t *testing.T) {
	remote := newFakeRemote(t)
	client := New(remote.srv.URL, "api-key")
	name, path, _ := testUploadArgs(t)

	res := client.Upload(context.Background(), name, path, "digest-2", &library.Metadata{Title: "Bare"})
	require.True(t, res.OK, res.Message)

	assert.NotContains(t, remote.finalizeSeen, "metadata[summary]")
	assert.NotContains(t, remote.finalizeSeen, "metadata[isbn]")
	assert.NotContains(t, remote.finalizeSeen, "metadata[language]")
	assert.NotContains(t, remote.finalizeSeen, "metadata[author_list][]")
}

func TestUpload_InitFailureAbortsEarly(t *testing.T) {
	remote := newFakeRemote(t)
	remote.initStatus = http.StatusForbidden
	client := New(remote.srv.URL, "api-key")
	name, path, meta := testUploadArgs(t)

	res := client.Upload(context.Background(), name, path, "digest-3", meta)
	require.False(t, res.OK)
	assert.Contains(t, res.Message, "Init failed")
	assert.Contains(t, res.Message, "403")
	// Phases 2 and 3 never ran.
	assert.Nil(t, remote.transferSeen)
	assert.Nil(t, remote.finalizeSeen)
}

func TestUpload_TransferFailure(t *testing.T) {
	remote := newFakeRemote(t)
	remote.transferStatus = http.StatusInternalServerError
	client := New(remote.srv.URL, "api-key")
	name, path, meta := testUploadArgs(t)

	res := client.Upload(context.Background(), name, path, "digest-4", meta)
	require.False(t, res.OK)
	assert.Contains(t, res.Message, "S3 upload failed")
	assert.Nil(t, remote.finalizeSeen)
}

func TestUpload_FinalizeFailure(t *testing.T) {
	remote := newFakeRemote(t)
	remote.finalizeStatus = http.StatusUnprocessableEntity
	client := New(remote.srv.URL, "api-key")
	name, path, meta := testUploadArgs(t)

	res := client.Upload(context.Background(), name, path, "digest-5", meta)
	require.False(t, res.OK)
	assert.Contains(t, res.Message, "Finalize failed")
	assert.Contains(t, res.Message, "422")
}

func TestUpload_MissingFileFailsTransfer(t *testing.T) {
	remote := newFakeRemote(t)
	client := New(remote.srv.URL, "api-key")
	_, _, meta := testUploadArgs(t)

	res := client.Upload(context.Background(), "gone.epub", filepath.Join(t.TempDir(), "gone.epub"), "digest-6", meta)
	require.False(t, res.OK)
	assert.Contains(t, res.Message, "S3 upload failed")
}
