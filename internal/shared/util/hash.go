package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// Digest returns the hex SHA-256 of data. Logs carry it in place of document
// contents.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
