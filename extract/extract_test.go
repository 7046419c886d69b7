package extract

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/minios-linux/ngxkit/config"
	"github.com/minios-linux/ngxkit/dictionary"
)

func TestScanLine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		line string
		want []string
	}{
		{name: "pipe", line: `<p>{{ 'nav.home' | translate }}</p>`, want: []string{"nav.home"}},
		{name: "pipe with params", line: `{{ "a.b" | translate : { 'n': 1 } }}`, want: []string{"a.b"}},
		{name: "binding", line: `<img [alt]="'logo.alt' | translate">`, want: []string{"logo.alt"}},
		{name: "attribute", line: `<span translate="title" [translateParams]="{}">`, want: []string{"title"}},
		{name: "service", line: `this.t.instant('err.x'); this.t.get("err.y")`, want: []string{"err.x", "err.y"}},
		{name: "ordered by column", line: `{{ 'b' | translate }} <i translate="a"></i>`, want: []string{"b", "a"}},
		{name: "plain string", line: `const k = 'nav.home';`, want: nil},
		{name: "dynamic key", line: `{{ 'nav.' + id | translate }}`, want: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got []string
			for _, r := range ScanLine("f", 1, tc.line) {
				got = append(got, r.Key)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("ScanLine(%q) = %v, want %v", tc.line, got, tc.want)
			}
		})
	}
}

func TestScanLineColumns(t *testing.T) {
	t.Parallel()

	refs := ScanLine("a.html", 3, `<p>é {{ 'x' | translate }}</p>`)
	if len(refs) != 1 {
		t.Fatalf("ScanLine() = %v", refs)
	}
	want := Ref{File: "a.html", Line: 3, Col: 10, Key: "x"}
	if refs[0] != want {
		t.Fatalf("ref = %#v, want %#v", refs[0], want)
	}
	if got := refs[0].String(); got != "a.html:3:10: x" {
		t.Fatalf("String() = %q", got)
	}
}

func TestFindSourcesAndScan(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	write := func(rel, content string) string {
		t.Helper()
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
		return p
	}

	html := write("src/app/app.component.html", "<h1>{{ 'title' | translate }}</h1>\n<p translate=\"nav.home\"></p>\n")
	ts := write("src/app/app.component.ts", "this.t.instant('missing.key');\n")
	write("src/app/readme.md", "{{ 'ignored' | translate }}\n")
	write("node_modules/lib/x.html", "{{ 'ignored' | translate }}\n")

	files, err := FindSources(config.Default(root))
	if err != nil {
		t.Fatalf("FindSources: %v", err)
	}
	if want := []string{html, ts}; !reflect.DeepEqual(files, want) {
		t.Fatalf("FindSources() = %v, want %v", files, want)
	}

	refs, err := Scan(files)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	want := []Ref{
		{File: html, Line: 1, Col: 9, Key: "title"},
		{File: html, Line: 2, Col: 15, Key: "nav.home"},
		{File: ts, Line: 1, Col: 17, Key: "missing.key"},
	}
	if !reflect.DeepEqual(refs, want) {
		t.Fatalf("Scan() = %#v, want %#v", refs, want)
	}

	if _, err := Scan([]string{filepath.Join(root, "nope.html")}); err == nil {
		t.Fatal("expected error for a missing file")
	}
}

func TestCheck(t *testing.T) {
	t.Parallel()

	flat := dictionary.NewFlat()
	flat.Set("menu.self", "Menu")
	flat.Set("menu.open", "Open")
	flat.Set("title", "Title")
	flat.Set("unused", "Unused")

	refs := []Ref{
		{File: "a", Line: 1, Col: 1, Key: "menu"},
		{File: "a", Line: 2, Col: 1, Key: "menu.open"},
		{File: "a", Line: 3, Col: 1, Key: "title"},
		{File: "b", Line: 1, Col: 1, Key: "nav.gone"},
	}

	r := Check(refs, flat)
	if r.Clean() {
		t.Fatal("Clean() = true with a missing key")
	}
	if len(r.Missing) != 1 || r.Missing[0].Key != "nav.gone" {
		t.Fatalf("Missing = %v", r.Missing)
	}
	if !reflect.DeepEqual(r.Unused, []string{"unused"}) {
		t.Fatalf("Unused = %v, want [unused]", r.Unused)
	}

	if r := Check(nil, dictionary.NewFlat()); !r.Clean() || r.Unused != nil {
		t.Fatalf("Check(empty) = %#v", r)
	}
}
