// Package uuid generates and checks identifiers for queued requests.
package uuid

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// UUID v4 format: xxxxxxxx-xxxx-4xxx-yxxx-xxxxxxxxxxxx
// where y is one of [8, 9, a, b] (variant bits)
var uuidV4Regex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-4[0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)

// New generates a new UUID v4.
func New() string {
	return uuid.New().String()
}

// IsValid checks if a string is a valid UUID v4.
func IsValid(s string) bool {
	return uuidV4Regex.MatchString(s)
}

// Normalize trims s and lower-cases it when it is a UUID v4. Ids that came
// from the backend in another shape (e.g. "srv-3") are only trimmed.
func Normalize(s string) string {
	trimmed := strings.TrimSpace(s)
	if IsValid(trimmed) {
		return strings.ToLower(trimmed)
	}
	return trimmed
}
