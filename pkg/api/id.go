package api

import (
	"crypto/rand"
	"math/big"
	"regexp"

	"github.com/google/uuid"
)

const (
	idLength    = 24
	charset     = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	runIDPrefix = "run_"

	// MaxSessionIDLength bounds caller-chosen session identifiers.
	MaxSessionIDLength = 128
)

var (
	runIDPattern     = regexp.MustCompile(`^run_[a-zA-Z0-9]{24}$`)
	sessionIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)
)

// NewSessionID generates a fresh session identifier (a random UUID).
func NewSessionID() string {
	return uuid.NewString()
}

// ValidateSessionID reports whether id is usable as a session identifier.
// Identifiers become part of on-disk artifact directory names, so path
// separators and leading dots are rejected.
func ValidateSessionID(id string) bool {
	return len(id) > 0 && len(id) <= MaxSessionIDLength && sessionIDPattern.MatchString(id)
}

// NewRunID generates a run ID with the "run_" prefix followed by 24
// cryptographically random alphanumeric characters.
func NewRunID() string {
	return runIDPrefix + randomAlphanumeric(idLength)
}

// ValidateRunID checks whether the given string is a valid run ID.
func ValidateRunID(id string) bool {
	return runIDPattern.MatchString(id)
}

func randomAlphanumeric(n int) string {
	max := big.NewInt(int64(len(charset)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("crypto/rand failed: " + err.Error())
		}
		b[i] = charset[idx.Int64()]
	}
	return string(b)
}
