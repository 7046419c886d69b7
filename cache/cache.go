// Package cache implements ngxkit.cache, a snapshot of the flattened
// dictionary together with the MD5 checksum of the file it was built from.
// Read-only commands use it to skip parsing the JSON tree while the source
// file is unchanged. A stale snapshot is never patched; it is replaced
// wholesale from a fresh parse.
//
// The cache is stored next to .ngxkit.yaml as ngxkit.cache.
package cache

import (
	"crypto/md5"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/minios-linux/ngxkit/dictionary"
	"gopkg.in/yaml.v3"
)

// FileName is the default cache file name.
const FileName = "ngxkit.cache"

// Version is the cache file format version.
const Version = 1

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// Entry is one flattened key/value pair.
type Entry struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
	// Literal marks raw JSON values (numbers, booleans, null, arrays).
	Literal bool `yaml:"literal,omitempty"`
}

// Snapshot represents the ngxkit.cache file structure.
type Snapshot struct {
	Version  int     `yaml:"version"`
	Source   string  `yaml:"source"`
	Checksum string  `yaml:"checksum"` // md5 of the source file bytes
	Entries  []Entry `yaml:"entries"`

	mu   sync.Mutex `yaml:"-"`
	path string     `yaml:"-"`
}

// ---------------------------------------------------------------------------
// Loading and saving
// ---------------------------------------------------------------------------

// Load reads the cache from the given directory.
// Returns an empty snapshot if the file doesn't exist or has another format
// version.
func Load(dir string) (*Snapshot, error) {
	path := filepath.Join(dir, FileName)
	s := &Snapshot{Version: Version, path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var loaded Snapshot
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if loaded.Version != Version {
		return s, nil
	}

	s.Source = loaded.Source
	s.Checksum = loaded.Checksum
	s.Entries = loaded.Entries
	return s, nil
}

// Save writes the cache to disk.
func (s *Snapshot) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return fmt.Errorf("cache path not set")
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling cache: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", s.path, err)
	}

	return nil
}

// Path returns the cache file path.
func (s *Snapshot) Path() string {
	return s.path
}

// ---------------------------------------------------------------------------
// Snapshot operations
// ---------------------------------------------------------------------------

// Hash computes the MD5 hex digest of data.
func Hash(data []byte) string {
	return fmt.Sprintf("%x", md5.Sum(data))
}

// Fresh reports whether the snapshot was built from source with exactly
// this content.
func (s *Snapshot) Fresh(source string, data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.Source == filepath.ToSlash(source) && s.Checksum == Hash(data)
}

// Replace discards the current entries and records flat as the snapshot of
// source.
func (s *Snapshot) Replace(source string, data []byte, flat *dictionary.Flat) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Source = filepath.ToSlash(source)
	s.Checksum = Hash(data)
	s.Entries = make([]Entry, 0, flat.Len())
	for _, k := range flat.Keys() {
		l, _ := flat.Leaf(k)
		s.Entries = append(s.Entries, Entry{Key: k, Value: l.Value, Literal: l.IsLiteral()})
	}
}

// Dictionary returns the cached entries as a flat dictionary.
func (s *Snapshot) Dictionary() *dictionary.Flat {
	s.mu.Lock()
	defer s.mu.Unlock()

	flat := dictionary.NewFlat()
	for _, e := range s.Entries {
		if e.Literal {
			flat.SetLeaf(e.Key, dictionary.Literal(e.Value))
		} else {
			flat.Set(e.Key, e.Value)
		}
	}
	return flat
}

// Flatten returns the flattened dictionary at path. The snapshot is used
// while the file is unchanged; otherwise the file is parsed and the snapshot
// replaced. changed reports whether the snapshot needs saving.
func (s *Snapshot) Flatten(path string) (flat *dictionary.Flat, changed bool, err error) {
	data, err := dictionary.ReadFile(path)
	if err != nil {
		return nil, false, err
	}
	if s.Fresh(path, data) {
		return s.Dictionary(), false, nil
	}

	root, err := dictionary.Parse(data)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", path, err)
	}
	flat = dictionary.Flatten(root)
	s.Replace(path, data, flat)
	return flat, true, nil
}

// ---------------------------------------------------------------------------
// Human-readable summary
// ---------------------------------------------------------------------------

// Summary returns a human-readable summary string.
func (s *Snapshot) Summary() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Checksum == "" {
		return "empty"
	}
	return fmt.Sprintf("%d keys from %s (md5 %s)", len(s.Entries), s.Source, s.Checksum)
}
