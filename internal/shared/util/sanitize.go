package util

import (
	"errors"
	"path"
	"strings"
)

// ErrInvalidFileName is returned for names that are empty after cleaning or
// that try to climb out of a directory.
var ErrInvalidFileName = errors.New("invalid file name")

const maxStemLen = 80

// SafeObjectName reduces an uploaded file name to its last path element with
// every character outside [A-Za-z0-9._-] replaced by a single underscore. The
// extension is kept and the stem is capped at 80 bytes.
func SafeObjectName(name string) (string, error) {
	s := strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	for _, part := range strings.Split(s, "/") {
		if part == ".." {
			return "", ErrInvalidFileName
		}
	}

	base := path.Base(s)
	ext := path.Ext(base)
	stem := strings.Trim(replaceUnsafe(strings.TrimSuffix(base, ext)), "_.")
	if stem == "" {
		return "", ErrInvalidFileName
	}
	if len(stem) > maxStemLen {
		stem = strings.TrimRight(stem[:maxStemLen], "_.")
	}
	return stem + replaceUnsafe(ext), nil
}

func replaceUnsafe(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	underscore := false
	for _, r := range s {
		safe := r == '.' || r == '-' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if safe {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore {
			b.WriteByte('_')
			underscore = true
		}
	}
	return b.String()
}
