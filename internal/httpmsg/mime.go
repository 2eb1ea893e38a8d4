package httpmsg

import "strings"

// mimeEntry pairs a MIME type with whether it should be treated as
// text (vs. binary) when the caller needs to decide how to filter or
// escape a body before sending it.
type mimeEntry struct {
	mimeType string
	isText   bool
}

// extToType is the static extension-to-MIME table. Lookup is
// case-insensitive on the extension; an extension not present maps to
// text/plain with IsText=false, per spec.
var extToType = map[string]mimeEntry{
	".html": {"text/html", true},
	".htm":  {"text/html", true},
	".css":  {"text/css", true},
	".csv":  {"text/csv", true},
	".txt":  {"text/plain", true},
	".md":   {"text/markdown", true},
	".xml":  {"application/xml", true},
	".json": {"application/json", true},
	".js":   {"application/javascript", true},
	".mjs":  {"application/javascript", true},
	".svg":  {"image/svg+xml", true},
	".yaml": {"application/yaml", true},
	".yml":  {"application/yaml", true},

	".jpg":  {"image/jpeg", false},
	".jpeg": {"image/jpeg", false},
	".png":  {"image/png", false},
	".gif":  {"image/gif", false},
	".webp": {"image/webp", false},
	".ico":  {"image/x-icon", false},
	".bmp":  {"image/bmp", false},

	".pdf":  {"application/pdf", false},
	".zip":  {"application/zip", false},
	".gz":   {"application/gzip", false},
	".tar":  {"application/x-tar", false},
	".wasm": {"application/wasm", false},
	".bin":  {"application/octet-stream", false},
	".woff": {"font/woff", false},
	".woff2": {"font/woff2", false},
	".ttf":  {"font/ttf", false},
	".mp3":  {"audio/mpeg", false},
	".mp4":  {"video/mp4", false},
	".wav":  {"audio/wav", false},
}

// ExtToType returns the MIME type registered for ext (with or without
// a leading dot). Unknown extensions return "text/plain".
func ExtToType(ext string) string {
	e, ok := lookupExt(ext)
	if !ok {
		return "text/plain"
	}
	return e.mimeType
}

// IsText reports whether the extension's MIME type is textual.
// Unknown extensions report false, per spec.
func IsText(ext string) bool {
	e, ok := lookupExt(ext)
	if !ok {
		return false
	}
	return e.isText
}

func lookupExt(ext string) (mimeEntry, bool) {
	if ext == "" {
		return mimeEntry{}, false
	}
	if ext[0] != '.' {
		ext = "." + ext
	}
	e, ok := extToType[strings.ToLower(ext)]
	return e, ok
}
