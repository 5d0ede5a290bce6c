package node

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// NewID generates a 16-hex-character node id from the first 8 bytes of a
// random (version 4) UUID. 60 of those 64 bits are random; the version
// nibble (the 13th hex character) is always 4. It is used both for PEX identity
// and for collision breaking in the initiate rule (see pex.go).
func NewID() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(u[:8]), nil
}

// shortID trims an id for compact log lines.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
