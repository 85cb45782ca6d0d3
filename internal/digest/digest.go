// Package digest computes the content fingerprint used for change detection.
//
// The fingerprint is a sha256 over the file's byte length (8 bytes, big
// endian) followed by a single zero byte, then the file content. The length
// prefix makes the digest sensitive to size before any content is read and
// rules out collisions between truncated/extended variants of the same bytes.
package digest

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// Compute returns the lowercase hex digest for the file at path.
// It is deterministic: identical size and bytes produce identical output.
func Compute(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}

	h := sha256.New()

	var size [8]byte
	binary.BigEndian.PutUint64(size[:], uint64(info.Size()))
	h.Write(size[:])
	h.Write([]byte{0})

	// 64 KiB chunks; the chunk size must not affect the result.
	buf := make([]byte, 64*1024)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
