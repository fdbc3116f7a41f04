// Package fileutil holds file helpers shared by staging and storage code.
package fileutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// sniffLen matches the number of bytes http.DetectContentType considers.
const sniffLen = 512

// Digest describes a file's content address.
type Digest struct {
	SHA256      string
	Size        int64
	ContentType string
}

// HashFile streams path through SHA-256 and sniffs its content type from the
// leading bytes.
func HashFile(path string) (Digest, error) {
	in, err := os.Open(path)
	if err != nil {
		return Digest{}, err
	}
	defer in.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(in, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return Digest{}, fmt.Errorf("read %s: %w", path, err)
	}
	head = head[:n]

	hasher := sha256.New()
	hasher.Write(head)
	rest, err := io.Copy(hasher, in)
	if err != nil {
		return Digest{}, fmt.Errorf("hash %s: %w", path, err)
	}
	return Digest{
		SHA256:      hex.EncodeToString(hasher.Sum(nil)),
		Size:        int64(n) + rest,
		ContentType: http.DetectContentType(head),
	}, nil
}

// WriteVerified streams r into dst through a temporary file in the same
// directory and checks the bytes against the expected SHA-256 digest. dst is
// only replaced when the digest matches; an empty digest skips the check.
func WriteVerified(r io.Reader, dst, expectedSHA256 string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, fmt.Errorf("create destination directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".incoming-*")
	if err != nil {
		return 0, err
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(tmp, hasher), r)
	if err != nil {
		_ = tmp.Close()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if got := hex.EncodeToString(hasher.Sum(nil)); expectedSHA256 != "" && got != expectedSHA256 {
		return 0, fmt.Errorf("hash mismatch: expected %s, got %s", expectedSHA256, got)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return 0, err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return 0, err
	}
	return written, nil
}
