package util

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

// NewReference builds an immutable human-facing reference for an opinion,
// e.g. "AGORA-2026-1042". seq comes from the store's reference sequence.
func NewReference(seq int64) string {
	return fmt.Sprintf("AGORA-%d-%d", time.Now().Year(), seq)
}
