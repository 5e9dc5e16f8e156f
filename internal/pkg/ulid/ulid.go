// Package ulid provides ULID generation utilities.
package ulid

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropy     = ulid.Monotonic(rand.Reader, 0)
	entropyLock sync.Mutex
)

// New generates a new ULID.
func New() string {
	return NewFromTime(time.Now())
}

// NewFromTime generates a new ULID with a specific timestamp.
func NewFromTime(t time.Time) string {
	entropyLock.Lock()
	defer entropyLock.Unlock()

	id := ulid.MustNew(ulid.Timestamp(t), entropy)
	return id.String()
}

// Prefixed returns "<prefix>-<ulid>" in lower case, e.g. "web-01j9...".
// IDs generated in the same millisecond still sort in creation order.
func Prefixed(prefix string) string {
	id := strings.ToLower(New())
	if prefix == "" {
		return id
	}
	return prefix + "-" + id
}

// IsValid checks if a string is a valid ULID.
func IsValid(s string) bool {
	_, err := ulid.ParseStrict(strings.ToUpper(s))
	return err == nil
}

// Time extracts the timestamp from a ULID string.
func Time(s string) (time.Time, error) {
	id, err := ulid.Parse(strings.ToUpper(s))
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(id.Time()), nil
}
