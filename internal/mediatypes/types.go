package mediatypes

import (
	"path/filepath"
	"strings"
)

// DefaultImageExtensions is the allow-list used when configuration does not
// provide one. Entries are lowercase without the leading dot.
var DefaultImageExtensions = []string{"jpg", "jpeg", "gif", "png", "bmp", "webp", "tif", "tiff"}

// MimeTypes maps image extensions (without dot) to their MIME types.
var MimeTypes = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"bmp":  "image/bmp",
	"webp": "image/webp",
	"tiff": "image/tiff",
	"tif":  "image/tiff",
}

// ExtensionSet is a fixed allow-list of image extensions.
type ExtensionSet map[string]bool

// NewExtensionSet normalizes the given extensions (case, leading dot) into a set.
// An empty list yields the default image extensions.
func NewExtensionSet(exts []string) ExtensionSet {
	if len(exts) == 0 {
		exts = DefaultImageExtensions
	}
	set := make(ExtensionSet, len(exts))
	for _, ext := range exts {
		ext = Normalize(ext)
		if ext != "" {
			set[ext] = true
		}
	}
	return set
}

// Normalize lowercases an extension and strips surrounding spaces and the leading dot.
func Normalize(ext string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
}

// Ext returns the normalized extension of a file name, e.g. "JPG" for "a.JPG" -> "jpg".
func Ext(name string) string {
	return Normalize(filepath.Ext(name))
}

// Allows reports whether the file name carries an allowed extension.
func (s ExtensionSet) Allows(name string) bool {
	return s[Ext(name)]
}

// List returns the extensions in the set in no particular order.
func (s ExtensionSet) List() []string {
	out := make([]string, 0, len(s))
	for ext := range s {
		out = append(out, ext)
	}
	return out
}

// GetMimeType returns the MIME type for an extension (with or without dot).
// Returns "application/octet-stream" if the extension is not recognized.
func GetMimeType(ext string) string {
	if mime, ok := MimeTypes[Normalize(ext)]; ok {
		return mime
	}
	return "application/octet-stream"
}
