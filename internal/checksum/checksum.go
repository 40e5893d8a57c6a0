// Package checksum fingerprints file contents so unchanged writes can be told apart.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// File streams the file at path through SHA-256 and returns the hex digest.
// Files larger than limit bytes are not hashed and yield "" with no error;
// limit <= 0 disables the cap.
func File(path string, limit int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("checksum: open: %w", err)
	}
	defer f.Close()

	if limit > 0 {
		info, err := f.Stat()
		if err != nil {
			return "", fmt.Errorf("checksum: stat: %w", err)
		}
		if info.Size() > limit {
			return "", nil
		}
	}

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("checksum: read: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
