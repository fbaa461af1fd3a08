// Package magic determines the Content-Type of files on disk.
package magic

import (
	"mime"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

// Fallback is used when neither the extension nor the content says more.
const Fallback = "application/octet-stream"

// Func maps a file path to a content type.
type Func func(path string) string

// Lookup tries the extension table first and falls back to sniffing the
// file's leading bytes.
func Lookup(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return Detect(path)
}

// Detect identifies path by content signature alone.
func Detect(path string) string {
	m, err := mimetype.DetectFile(path)
	if err != nil {
		return Fallback
	}
	return m.String()
}
