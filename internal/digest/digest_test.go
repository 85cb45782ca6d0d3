package digest

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestCompute_Deterministic(t *testing.T) {
	path := writeFile(t, "book.epub", []byte("some epub bytes"))

	first, err := Compute(path)
	require.NoError(t, err)
	second, err := Compute(path)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
	assert.Equal(t, first, string(bytes.ToLower([]byte(first))))
}

func TestCompute_MatchesReferenceFraming(t *testing.T) {
	content := []byte("hello world")
	path := writeFile(t, "ref.epub", content)

	h := sha256.New()
	var size [8]byte
	binary.BigEndian.PutUint64(size[:], uint64(len(content)))
	h.Write(size[:])
	h.Write([]byte{0})
	h.Write(content)
	want := hex.EncodeToString(h.Sum(nil))

	got, err := Compute(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCompute_IdenticalBytesSeparateFiles(t *testing.T) {
	data := bytes.Repeat([]byte("abc123"), 50_000) // spans multiple read chunks
	a := writeFile(t, "a.epub", data)
	b := writeFile(t, "b.epub", data)

	da, err := Compute(a)
	require.NoError(t, err)
	db, err := Compute(b)
	require.NoError(t, err)
	assert.Equal(t, da, db)
}

func TestCompute_DifferentContentDiffers(t *testing.T) {
	a := writeFile(t, "a.epub", []byte("content one"))
	b := writeFile(t, "b.epub", []byte("content two"))

	da, err := Compute(a)
	require.NoError(t, err)
	db, err := Compute(b)
	require.NoError(t, err)
	assert.NotEqual(t, da, db)
}

func TestCompute_EmptyVsMissing(t *testing.T) {
	empty := writeFile(t, "empty.epub", nil)
	d, err := Compute(empty)
	require.NoError(t, err)
	assert.Len(t, d, 64)

	_, err = Compute(filepath.Join(t.TempDir(), "missing.epub"))
	assert.Error(t, err)
}
