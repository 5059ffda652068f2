// Package id generates identifiers that are safe to use as file names.
//
// Identifiers are UUIDv4 bytes encoded as unpadded base32 (RFC 4648). The
// resulting strings are 26 characters long and lowercase.
package id

import (
	"encoding/base32"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewID returns a new random identifier.
func NewID() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate uuid: %w", err)
	}
	return strings.ToLower(encoding.EncodeToString(u[:])), nil
}
