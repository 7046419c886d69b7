package dictionary

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	// ErrNotFound means the dictionary file does not exist.
	ErrNotFound = errors.New("dictionary not found")
	// ErrUnreadable means the dictionary file exists but could not be read.
	ErrUnreadable = errors.New("dictionary unreadable")
	// ErrParse means the dictionary file is not a well-formed JSON object.
	ErrParse = errors.New("parsing dictionary failed")
	// ErrWrite means writing the dictionary back failed.
	ErrWrite = errors.New("writing dictionary failed")
)

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

// ReadFile reads a dictionary file, mapping failures to ErrNotFound and
// ErrUnreadable.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: reading %s: %w", ErrUnreadable, path, err)
	}
	return data, nil
}

// ParseFile reads and parses a dictionary file.
func ParseFile(path string) (*Branch, error) {
	data, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	root, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return root, nil
}

// Parse parses dictionary JSON, preserving the key order of every object.
func Parse(data []byte) (*Branch, error) {
	root, err := parseBranch(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return root, nil
}

// parseBranch decodes a JSON object key by key with json.Decoder so that
// the source order survives.
func parseBranch(data []byte) (*Branch, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	t, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := t.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected {, got %v", t)
	}

	b := NewBranch()
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := kt.(string)
		if !ok {
			return nil, fmt.Errorf("expected string key, got %T", kt)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("value for key %q: %w", key, err)
		}
		n, err := parseNode(raw)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		b.Set(key, n)
	}

	// Closing brace.
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after top-level object")
	}

	return b, nil
}

func parseNode(raw json.RawMessage) (Node, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty value")
	}
	switch raw[0] {
	case '{':
		return parseBranch(raw)
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return Text(s), nil
	default:
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return nil, err
		}
		return Literal(buf.String()), nil
	}
}

// ---------------------------------------------------------------------------
// Writing
// ---------------------------------------------------------------------------

// Marshal serializes a tree with 4-space indentation per level. Keys are
// sorted ascending except "self", which always comes first at its level.
// The output does not depend on insertion order and has no trailing newline.
func Marshal(root *Branch) []byte {
	var b strings.Builder
	writeBranch(&b, root, 1)
	return []byte(b.String())
}

func writeBranch(b *strings.Builder, br *Branch, level int) {
	b.WriteByte('{')
	for i, k := range SortedKeys(br) {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
		b.WriteString(strings.Repeat(" ", 4*level))
		b.WriteString(jsonString(k))
		b.WriteString(": ")

		switch n := br.children[k].(type) {
		case *Branch:
			writeBranch(b, n, level+1)
		case Leaf:
			if n.literal {
				b.WriteString(n.Value)
			} else {
				b.WriteString(jsonString(n.Value))
			}
		}
	}
	b.WriteByte('\n')
	b.WriteString(strings.Repeat(" ", 4*(level-1)))
	b.WriteByte('}')
}

// SortedKeys returns the branch keys in serialization order: "self" first,
// then the rest ascending.
func SortedKeys(b *Branch) []string {
	keys := b.Keys()
	sort.Slice(keys, func(i, j int) bool {
		if keys[i] == Self || keys[j] == Self {
			return keys[i] == Self && keys[j] != Self
		}
		return keys[i] < keys[j]
	})
	return keys
}

// jsonString returns a JSON-encoded string without HTML escaping, so that
// markup inside translations stays readable in diffs.
func jsonString(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return strings.TrimSuffix(buf.String(), "\n")
}

// WriteFile serializes the tree and writes it to path.
func WriteFile(path string, root *Branch) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("%w: creating directory for %s: %w", ErrWrite, path, err)
	}
	if err := os.WriteFile(path, Marshal(root), 0644); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// File-backed source
// ---------------------------------------------------------------------------

// FileSource loads and saves a dictionary at a fixed path.
type FileSource struct {
	Path string
}

// Load parses the dictionary file.
func (s FileSource) Load() (*Branch, error) {
	return ParseFile(s.Path)
}

// Save writes the dictionary file.
func (s FileSource) Save(root *Branch) error {
	return WriteFile(s.Path, root)
}
