package storage

import (
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// genealogyExtensions covers formats the artifact pipeline sees that the
// platform mime database usually does not know about. GEDCOM exports in
// particular come back as octet-stream everywhere.
var genealogyExtensions = map[string]string{
	".ged":    "text/x-gedcom",
	".gedcom": "text/x-gedcom",
	".heic":   "image/heic",
	".heif":   "image/heif",
}

// DetectContentType resolves the MIME type for an artifact. An explicitly
// provided type wins; otherwise the filename extension is tried (with the
// genealogy overrides above), then the first 512 bytes are sniffed, and
// finally application/octet-stream.
func DetectContentType(providedType, filename string, data io.Reader) string {
	if providedType != "" {
		return providedType
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if ct, ok := genealogyExtensions[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}

	if data != nil {
		buffer := make([]byte, 512)
		n, err := io.ReadFull(data, buffer)
		if err == nil || err == io.EOF || err == io.ErrUnexpectedEOF {
			return http.DetectContentType(buffer[:n])
		}
	}

	return "application/octet-stream"
}

// IsImage reports whether the content type is any image format. Photo
// artifacts use this to decide whether a thumbnail can be generated.
func IsImage(contentType string) bool {
	return strings.HasPrefix(baseType(contentType), "image/")
}

// baseType strips parameters like "; charset=..." and normalizes case.
func baseType(contentType string) string {
	base := strings.Split(contentType, ";")[0]
	return strings.TrimSpace(strings.ToLower(base))
}
