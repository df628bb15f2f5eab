package report

import (
	"path/filepath"
	"strings"
)

// DefaultName replaces a source name that sanitizes to nothing.
const DefaultName = "upload.csv"

// SafeName reduces an uploaded file name to a plain base name made of ASCII
// letters, digits, '.', '_' and '-'. Spaces become '_' and leading dots are
// dropped, so the result can never escape the report directory.
func SafeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
	}
	out := strings.TrimLeft(b.String(), "._")
	if out == "" {
		return DefaultName
	}
	return out
}
