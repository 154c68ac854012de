package storage

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// generateID generates a new UUID
func generateID() string {
	return uuid.New().String()
}

// generateAPIKey generates a new API key
func generateAPIKey() string {
	b := make([]byte, 24)
	_, _ = rand.Read(b)
	return fmt.Sprintf("uv_key_%s", hex.EncodeToString(b))
}

// hashAPIKey hashes an API key for storage
func hashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

// encodeCursor makes an opaque cursor from a row sequence number
func encodeCursor(seq int64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatInt(seq, 10)))
}

// decodeCursor reverses encodeCursor. The empty cursor is the first page.
func decodeCursor(cursor string) (int64, error) {
	if cursor == "" {
		return 0, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, ErrInvalidCursor
	}
	seq, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil || seq <= 0 {
		return 0, ErrInvalidCursor
	}
	return seq, nil
}

func pageLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	return limit
}
