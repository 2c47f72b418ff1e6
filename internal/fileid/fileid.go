// Package fileid derives deterministic keys and IDs from document paths.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strconv"
	"strings"
)

const prefix = "file:"

// Key returns the case-insensitive lookup key for a document path.
func Key(path string) string {
	return strings.ToLower(filepath.Clean(path))
}

// FileDocID returns a stable document ID for the given path.
// Paths differing only in case or by redundant separators yield the same ID.
func FileDocID(path string) string {
	hash := sha256.Sum256([]byte(Key(path)))
	return prefix + hex.EncodeToString(hash[:])
}

// PageID returns a stable ID for one page of a document.
func PageID(path string, page int) string {
	return FileDocID(path) + "#" + strconv.Itoa(page)
}

// ParsePageID splits a page ID into its document ID and page number.
func ParsePageID(id string) (docID string, page int, ok bool) {
	i := strings.LastIndexByte(id, '#')
	if i < 0 {
		return "", 0, false
	}
	n, err := strconv.Atoi(id[i+1:])
	if err != nil {
		return "", 0, false
	}
	return id[:i], n, true
}
