package http

import "strings"

const defaultContentType = "text/plain"

var suffixTypes = map[string]string{
	".html":  "text/html",
	".xml":   "text/xml",
	".xhtml": "application/xhtml+xml",
	".txt":   "text/plain",
	".rtf":   "application/rtf",
	".pdf":   "application/pdf",
	".word":  "application/nsword",
	".png":   "image/png",
	".gif":   "image/gif",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".au":    "audio/basic",
	".mpeg":  "video/mpeg",
	".mpg":   "video/mpeg",
	".avi":   "video/x-msvideo",
	".gz":    "application/x-gzip",
	".tar":   "application/x-tar",
	".css":   "text/css",
	".js":    "text/javascript",
}

// ContentType returns the MIME type for path, keyed on the text from its last
// '.'. Unknown or missing suffixes map to text/plain.
func ContentType(path string) string {
	idx := strings.LastIndexByte(path, '.')
	if idx < 0 {
		return defaultContentType
	}
	if t, ok := suffixTypes[path[idx:]]; ok {
		return t
	}
	return defaultContentType
}
