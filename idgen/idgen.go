// Package idgen produces identifiers for detection results and history
// records. Constructors take a Generator so tests can pin IDs.
package idgen

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator of RFC 9562 version 7 UUIDs, which sort by
// creation time.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed prepends prefix to every ID produced by gen ("det_", "hist_").
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Sequence returns a deterministic Generator yielding prefix1, prefix2, ...
// It is not safe for concurrent use.
func Sequence(prefix string) Generator {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s%d", prefix, n)
	}
}

// Detection is the Generator for detection result IDs.
var Detection Generator = Prefixed("det_", UUIDv7())

// New produces a bare UUIDv7.
func New() string {
	return UUIDv7()()
}

// Parse validates an ID, optionally carrying a "xxx_" prefix, and returns it
// in canonical form.
func Parse(s string) (string, error) {
	prefix, raw := "", s
	if i := strings.IndexByte(s, '_'); i >= 0 {
		prefix, raw = s[:i+1], s[i+1:]
	}
	u, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("idgen: invalid id %q: %w", s, err)
	}
	return prefix + u.String(), nil
}
