package object

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"loan-intake/internal/shared/util"
)

// Store holds scanned documents waiting to be processed.
type Store interface {
	// Save writes r under a new key derived from fileName and returns the key.
	Save(ctx context.Context, fileName string, r io.Reader) (key string, sizeBytes int64, err error)
	// Open returns the object stored at key.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// List returns every key under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
}

// ErrInvalidKey is returned for keys that escape the store root.
var ErrInvalidKey = errors.New("invalid storage key")

// NewKey returns incoming/<yyyy>/<mm>/<dd>/<uuid>_<name> for fileName.
func NewKey(fileName string, now time.Time) (string, error) {
	name, err := util.SafeObjectName(fileName)
	if err != nil {
		return "", fmt.Errorf("sanitize file name: %w", err)
	}
	return path.Join("incoming", now.UTC().Format("2006/01/02"), uuid.NewString()+"_"+name), nil
}

// CleanKey rejects absolute keys and traversal.
func CleanKey(key string) (string, error) {
	clean := path.Clean(strings.ReplaceAll(strings.TrimSpace(key), "\\", "/"))
	if clean == "." || strings.HasPrefix(clean, "..") || strings.HasPrefix(clean, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return clean, nil
}
