// Package evidence models the local artifacts that back a verdict and the
// remote handles they become once uploaded.
package evidence

import (
	"fmt"
	"path/filepath"
	"strings"
)

// File is a local evidence artifact ready for upload.
//
// SourceURL, when set, is the identity the evaluator cites instead of the
// filename: a crawled corpus carries its site URL, a processed document
// carries the URL recorded in its SOURCE_URL header.
type File struct {
	Path        string
	Name        string // original filename when Path is a derived temp file
	SourceURL   string
	Fingerprint string
}

// DisplayName is the citable identity of the file.
func (f File) DisplayName() string {
	if f.SourceURL != "" {
		return f.SourceURL
	}
	return f.BaseName()
}

// BaseName is the filename used for cache keys.
func (f File) BaseName() string {
	if f.Name != "" {
		return f.Name
	}
	return filepath.Base(f.Path)
}

// CacheKey identifies this exact content under this name.
func (f File) CacheKey() string {
	return f.BaseName() + ":" + f.Fingerprint
}

// IsWebsite reports whether the file represents crawled site content.
func (f File) IsWebsite() bool {
	return strings.HasPrefix(f.SourceURL, "http://") || strings.HasPrefix(f.SourceURL, "https://")
}

// Handle references an uploaded remote artifact.
type Handle struct {
	ID          string
	URI         string
	MIMEType    string
	DisplayName string
}

func (h Handle) String() string {
	if h.DisplayName != "" {
		return fmt.Sprintf("%s (%s)", h.DisplayName, h.ID)
	}
	return h.ID
}

var mimeTypes = map[string]string{
	".pdf":      "application/pdf",
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".txt":      "text/plain",
	".csv":      "text/csv",
	".tsv":      "text/tab-separated-values",
	".xlsx":     "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".xls":      "application/vnd.ms-excel",
	".ods":      "application/vnd.oasis.opendocument.spreadsheet",
}

// MIMEType returns the upload MIME type for path, keyed by extension.
func MIMEType(path string) (string, bool) {
	m, ok := mimeTypes[strings.ToLower(filepath.Ext(path))]
	return m, ok
}

func isMarkdown(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".md" || ext == ".markdown"
}
