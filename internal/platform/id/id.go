// Package id generates compact random identifiers for persisted entities.
package id

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
)

// NewID returns a 26-character lowercase base32 identifier backed by 128 bits
// of crypto/rand entropy. The alphabet is URL- and filename-safe.
func NewID() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	encoded := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf[:])
	return strings.ToLower(encoded), nil
}

// MustNewID returns a new identifier and panics on entropy failure. It is
// intended for test fixtures, not production code paths.
func MustNewID() string {
	value, err := NewID()
	if err != nil {
		panic(err)
	}
	return value
}
