// Package fileid derives stable document ids from document paths, so reindexing a file
// replaces its previous document instead of adding a second one.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"

	"github.com/hyperjump/docsearcher/internal/archive"
)

const prefix = "doc:"

// For returns the id of the document at path. Paths are cleaned first, so /a/./b and /a/b
// share an id.
func For(path string) string {
	hash := sha256.Sum256([]byte(filepath.Clean(path)))
	return prefix + hex.EncodeToString(hash[:])
}

// ForEntry returns the id of an archive member.
func ForEntry(archivePath, entry string) string {
	return For(archive.Join(filepath.Clean(archivePath), entry))
}
