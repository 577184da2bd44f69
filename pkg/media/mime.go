package media

import (
	"path/filepath"
	"strings"
)

// DefaultMimeType is assumed when the extension is unrecognized; the
// capture pipeline overwhelmingly produces JPEG.
const DefaultMimeType = "image/jpeg"

var mimeByExt = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".heic": "image/heic",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
}

// InferMimeType derives an image mime type from a filename. Used when the
// asset arrived without one.
func InferMimeType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if mime, ok := mimeByExt[ext]; ok {
		return mime
	}
	return DefaultMimeType
}
