package extract

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// ResolveMimeType returns declared, stripped of parameters, unless it is
// empty or generic, in which case the type is sniffed from data.
func ResolveMimeType(declared string, data []byte) string {
	mt, _, _ := strings.Cut(strings.TrimSpace(strings.ToLower(declared)), ";")
	mt = strings.TrimSpace(mt)
	if mt != "" && mt != "application/octet-stream" {
		return mt
	}
	if len(data) == 0 {
		return mt
	}
	detected := mimetype.Detect(data).String()
	detected, _, _ = strings.Cut(detected, ";")
	return detected
}
