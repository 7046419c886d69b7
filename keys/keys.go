// Package keys validates translation key paths against an existing
// dictionary before they are stored.
//
// A key is a dot-joined path of segments built from [A-Za-z0-9_-]. A key
// must not turn an existing leaf into a branch, nor an existing branch into
// a leaf; such conflicts are reported with the existing key and value so the
// caller can pick another key or append ".self" deliberately.
package keys

import (
	"errors"
	"fmt"
	"strings"

	"github.com/minios-linux/ngxkit/dictionary"
)

var (
	ErrEmpty     = errors.New("empty key")
	ErrMalformed = errors.New("malformed key path")
	ErrForbidden = errors.New("forbidden character")
	ErrConflict  = errors.New("key conflict")
)

// ValidationError describes why a candidate key was rejected. It unwraps to
// one of ErrEmpty, ErrMalformed, ErrForbidden or ErrConflict.
type ValidationError struct {
	Key    string
	Reason string
	// Forbidden lists the offending characters, in order of first appearance.
	Forbidden []string
	// Conflict is set for ErrConflict.
	Conflict *Conflict

	rule error
}

// Conflict names the existing entry a candidate key collides with.
type Conflict struct {
	Key   string
	Value string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func (e *ValidationError) Unwrap() error {
	return e.rule
}

// Validate checks candidate against the existing dictionary. Rules are
// applied in order and the first failure wins:
//
//  1. the key is empty;
//  2. it starts or ends with a dot, or contains "..";
//  3. it contains characters outside [A-Za-z0-9._-];
//  4. a leading part of the key already exists as a leaf, or the key
//     itself is already a branch (an existing key continues below it).
func Validate(candidate string, existing *dictionary.Flat) error {
	if candidate == "" {
		return &ValidationError{Key: candidate, Reason: "Invalid key", rule: ErrEmpty}
	}

	if strings.HasPrefix(candidate, ".") || strings.HasSuffix(candidate, ".") || strings.Contains(candidate, "..") {
		return &ValidationError{Key: candidate, Reason: "Invalid key", rule: ErrMalformed}
	}

	if bad := forbiddenChars(candidate); len(bad) > 0 {
		return &ValidationError{
			Key:       candidate,
			Reason:    fmt.Sprintf("Character '%s' is forbidden", strings.Join(bad, ",")),
			Forbidden: bad,
			rule:      ErrForbidden,
		}
	}

	// Strict prefixes, shortest first.
	for i := 0; i < len(candidate); i++ {
		if candidate[i] != '.' {
			continue
		}
		prefix := candidate[:i]
		if value, ok := existing.Get(prefix); ok {
			return conflict(candidate, prefix, value)
		}
	}

	below := candidate + dictionary.Separator
	for _, k := range existing.Keys() {
		if strings.HasPrefix(k, below) {
			value, _ := existing.Get(k)
			return conflict(candidate, k, value)
		}
	}

	return nil
}

func conflict(candidate, key, value string) error {
	return &ValidationError{
		Key:      candidate,
		Reason:   fmt.Sprintf("Key %s is used and its value is '%s'", key, value),
		Conflict: &Conflict{Key: key, Value: value},
		rule:     ErrConflict,
	}
}

// forbiddenChars returns the distinct characters outside [A-Za-z0-9._-].
func forbiddenChars(s string) []string {
	var out []string
	seen := make(map[rune]bool)
	for _, r := range s {
		if IsKeyRune(r) || r == '.' || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, string(r))
	}
	return out
}

// IsKeyRune reports whether r may appear inside a key segment.
func IsKeyRune(r rune) bool {
	return r >= 'a' && r <= 'z' ||
		r >= 'A' && r <= 'Z' ||
		r >= '0' && r <= '9' ||
		r == '_' || r == '-'
}

// IsSegment reports whether s is a valid, non-empty key segment.
func IsSegment(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !IsKeyRune(r) {
			return false
		}
	}
	return true
}

// Segments splits a key into its path segments.
func Segments(key string) []string {
	if key == "" {
		return nil
	}
	return strings.Split(key, dictionary.Separator)
}
