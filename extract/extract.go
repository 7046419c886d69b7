// Package extract finds translation key references in template and
// component sources.
//
// Recognized forms are the ones ngxkit inserts plus the service calls of
// ngx-translate:
//
//	'nav.home' | translate
//	translate="nav.home"
//	translate.instant('nav.home')   (also get, stream)
//
// Keys built at runtime (string concatenation, variables) are not seen.
package extract

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/minios-linux/ngxkit/config"
	"github.com/minios-linux/ngxkit/dictionary"
	"github.com/minios-linux/ngxkit/snippet"
)

// keyExpr matches a key path: dot-separated segments of [\w-].
const keyExpr = `([\w-]+(?:\.[\w-]+)*)`

// referencePatterns capture the key in group 1.
var referencePatterns = []*regexp.Regexp{
	regexp.MustCompile(`['"]` + keyExpr + `['"]\s*\|\s*translate\b`),
	regexp.MustCompile(`\btranslate\s*=\s*["']` + keyExpr + `["']`),
	regexp.MustCompile(`\.(?:instant|get|stream)\(\s*['"]` + keyExpr + `['"]`),
}

// Ref is one key reference in a source file. Line and Col are 1-based; Col
// counts UTF-16 units like editor positions do.
type Ref struct {
	File string
	Line int
	Col  int
	Key  string
}

func (r Ref) String() string {
	return fmt.Sprintf("%s:%d:%d: %s", r.File, r.Line, r.Col, r.Key)
}

// FindSources returns the files under the config root matching its pattern
// and not its exclude glob, sorted.
func FindSources(cfg *config.File) ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(cfg.Root()), cfg.Pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("searching %q: %w", cfg.Pattern, err)
	}

	var files []string
	for _, m := range matches {
		path := filepath.Join(cfg.Root(), filepath.FromSlash(m))
		if cfg.Matches(path) {
			files = append(files, path)
		}
	}
	sort.Strings(files)
	return files, nil
}

// ScanFile returns the references in one file, in reading order.
func ScanFile(path string) ([]Ref, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	defer f.Close()

	var refs []Ref
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for n := 1; sc.Scan(); n++ {
		refs = append(refs, ScanLine(path, n, sc.Text())...)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return refs, nil
}

// ScanLine returns the references in one line, ordered by column.
func ScanLine(file string, line int, text string) []Ref {
	var refs []Ref
	for _, re := range referencePatterns {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			refs = append(refs, Ref{
				File: file,
				Line: line,
				Col:  snippet.UTF16Column(text, m[2]) + 1,
				Key:  text[m[2]:m[3]],
			})
		}
	}
	sort.SliceStable(refs, func(i, j int) bool { return refs[i].Col < refs[j].Col })
	return refs
}

// Scan reads every file and concatenates the references.
func Scan(files []string) ([]Ref, error) {
	var refs []Ref
	for _, f := range files {
		r, err := ScanFile(f)
		if err != nil {
			return nil, err
		}
		refs = append(refs, r...)
	}
	return refs, nil
}

// Report compares references with a dictionary.
type Report struct {
	// Missing are the references to keys the dictionary lacks.
	Missing []Ref
	// Unused are the dictionary keys no reference names, in dictionary
	// order.
	Unused []string
}

// Check builds a report. A reference to a group counts as a use of its
// "self" key.
func Check(refs []Ref, flat *dictionary.Flat) Report {
	var r Report
	used := make(map[string]bool, len(refs))
	for _, ref := range refs {
		switch self := ref.Key + dictionary.Separator + dictionary.Self; {
		case flat.Has(ref.Key):
			used[ref.Key] = true
		case flat.Has(self):
			used[self] = true
		default:
			r.Missing = append(r.Missing, ref)
		}
	}
	for _, k := range flat.Keys() {
		if !used[k] {
			r.Unused = append(r.Unused, k)
		}
	}
	return r
}

// Clean reports whether nothing is missing.
func (r Report) Clean() bool {
	return len(r.Missing) == 0
}
