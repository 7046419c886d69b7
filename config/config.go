// Package config loads and saves the .ngxkit.yaml project configuration.
//
// The file tells ngxkit where the source dictionary lives and which template
// files the language server works on. Every field is optional; a missing
// file means all defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/minios-linux/ngxkit/dictionary"
	"gopkg.in/yaml.v3"
)

// FileName is the config file name in the project root.
const FileName = ".ngxkit.yaml"

// Defaults.
const (
	DefaultLocale  = "**/locale/**/en.json"
	DefaultExclude = "**/node_modules/**"
	DefaultPattern = "**/*.{html,ts}"
)

// ---------------------------------------------------------------------------
// YAML schema
// ---------------------------------------------------------------------------

// File is the .ngxkit.yaml structure.
type File struct {
	// Locale is a glob, relative to the project root, matching the source
	// dictionary. The first match in lexical order wins.
	Locale string `yaml:"locale,omitempty"`
	// Exclude is a glob of paths never considered, for both the dictionary
	// lookup and served documents.
	Exclude string `yaml:"exclude,omitempty"`
	// Pattern is a glob of template files the language server handles.
	Pattern string `yaml:"pattern,omitempty"`
	// Cache toggles the flattened snapshot cache (default on).
	Cache *bool `yaml:"cache,omitempty"`

	root string
}

// Default returns the configuration used when no file exists.
func Default(root string) *File {
	f := &File{root: root}
	f.applyDefaults()
	return f
}

func (f *File) applyDefaults() {
	if f.Locale == "" {
		f.Locale = DefaultLocale
	}
	if f.Exclude == "" {
		f.Exclude = DefaultExclude
	}
	if f.Pattern == "" {
		f.Pattern = DefaultPattern
	}
}

// ---------------------------------------------------------------------------
// Loading and saving
// ---------------------------------------------------------------------------

// Load reads .ngxkit.yaml from root. A missing file yields the defaults.
func Load(root string) (*File, error) {
	path := filepath.Join(root, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(root), nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	f := &File{}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	f.root = root
	f.applyDefaults()

	for name, pattern := range map[string]string{"locale": f.Locale, "exclude": f.Exclude, "pattern": f.Pattern} {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("%s: invalid %s pattern %q", path, name, pattern)
		}
	}
	return f, nil
}

// Save writes the configuration to .ngxkit.yaml in its root.
func (f *File) Save() error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	path := f.Path()
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Root returns the project root the file belongs to.
func (f *File) Root() string {
	return f.root
}

// Path returns the config file path.
func (f *File) Path() string {
	return filepath.Join(f.root, FileName)
}

// CacheEnabled reports whether the snapshot cache is used.
func (f *File) CacheEnabled() bool {
	return f.Cache == nil || *f.Cache
}

// ---------------------------------------------------------------------------
// Dictionary lookup
// ---------------------------------------------------------------------------

// Locate returns the path of the source dictionary: the first file, in
// lexical order, matching Locale and not Exclude. Without a match the error
// wraps dictionary.ErrNotFound.
func (f *File) Locate() (string, error) {
	matches, err := doublestar.Glob(os.DirFS(f.root), f.Locale, doublestar.WithFilesOnly())
	if err != nil {
		return "", fmt.Errorf("searching %q: %w", f.Locale, err)
	}

	var found []string
	for _, m := range matches {
		if f.excluded(m) {
			continue
		}
		found = append(found, m)
	}
	if len(found) == 0 {
		return "", fmt.Errorf("%w: no file matches %q in %s", dictionary.ErrNotFound, f.Locale, f.root)
	}

	sort.Strings(found)
	return filepath.Join(f.root, filepath.FromSlash(found[0])), nil
}

// Source locates the dictionary and returns a file-backed source for it.
func (f *File) Source() (dictionary.FileSource, error) {
	path, err := f.Locate()
	if err != nil {
		return dictionary.FileSource{}, err
	}
	return dictionary.FileSource{Path: path}, nil
}

// SetLocale points Locale at a dictionary file. The stored glob is
// "**/" followed by the path relative to the root.
func (f *File) SetLocale(path string) error {
	rel, err := f.rel(path)
	if err != nil {
		return err
	}
	if f.excluded(rel) {
		return fmt.Errorf("%s is excluded by %q", path, f.Exclude)
	}
	f.Locale = "**/" + rel
	return nil
}

// Matches reports whether path is a template file served by the language
// server.
func (f *File) Matches(path string) bool {
	rel, err := f.rel(path)
	if err != nil || f.excluded(rel) {
		return false
	}
	ok, _ := doublestar.Match(f.Pattern, rel)
	return ok
}

// IsLocale reports whether path is a candidate dictionary file: it matches
// Locale and not Exclude.
func (f *File) IsLocale(path string) bool {
	rel, err := f.rel(path)
	if err != nil || f.excluded(rel) {
		return false
	}
	ok, _ := doublestar.Match(f.Locale, rel)
	return ok
}

// Excluded reports whether path lies under the root and matches Exclude. A
// directory counts as excluded when its contents are.
func (f *File) Excluded(path string) bool {
	rel, err := f.rel(path)
	if err != nil {
		return false
	}
	return f.excluded(rel) || f.excluded(rel+"/x")
}

func (f *File) excluded(rel string) bool {
	ok, _ := doublestar.Match(f.Exclude, rel)
	return ok
}

// rel returns path relative to the root, slash separated.
func (f *File) rel(path string) (string, error) {
	absRoot, err := filepath.Abs(f.root)
	if err != nil {
		return "", err
	}
	absPath := path
	if !filepath.IsAbs(path) {
		absPath = filepath.Join(absRoot, path)
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s is outside the project root %s", path, f.root)
	}
	return rel, nil
}
