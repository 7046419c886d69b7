package server

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/minios-linux/ngxkit/config"
	"github.com/minios-linux/ngxkit/dictionary"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

const testDict = `{
    "nav": {
        "home": "Home",
        "user": "Hi {{ user }}"
    },
    "title": "Title"
}`

func setup(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "src", "locale", "en.json")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(testDict), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s := New(config.Default(dir), "test")
	if err := s.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	return s, dir
}

func open(t *testing.T, s *Server, uri, lang, text string) {
	t.Helper()
	err := s.didOpen(nil, &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{URI: uri, LanguageID: lang, Version: 1, Text: text},
	})
	if err != nil {
		t.Fatalf("didOpen: %v", err)
	}
}

func completionAt(t *testing.T, s *Server, uri string, line, col uint32) []protocol.CompletionItem {
	t.Helper()
	params := &protocol.CompletionParams{}
	params.TextDocument.URI = uri
	params.Position = protocol.Position{Line: line, Character: col}
	got, err := s.completion(nil, params)
	if err != nil {
		t.Fatalf("completion: %v", err)
	}
	if got == nil {
		return nil
	}
	return got.([]protocol.CompletionItem)
}

func TestReload(t *testing.T) {
	s, dir := setup(t)
	if s.Dictionary().Len() != 3 {
		t.Fatalf("Dictionary().Len() = %d, want 3", s.Dictionary().Len())
	}
	if want := filepath.Join(dir, "src", "locale", "en.json"); s.Source() != want {
		t.Fatalf("Source() = %q, want %q", s.Source(), want)
	}

	// A broken file keeps the previous snapshot.
	if err := os.WriteFile(s.Source(), []byte(`{"a": `), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := s.Reload(); !errors.Is(err, dictionary.ErrParse) {
		t.Fatalf("Reload() err = %v, want ErrParse", err)
	}
	if s.Dictionary().Len() != 3 {
		t.Fatal("snapshot replaced after a failed reload")
	}
}

func TestReloadNotFound(t *testing.T) {
	s := New(config.Default(t.TempDir()), "test")
	if err := s.Reload(); !errors.Is(err, dictionary.ErrNotFound) {
		t.Fatalf("Reload() err = %v, want ErrNotFound", err)
	}
	if s.Dictionary().Len() != 0 {
		t.Fatal("expected empty dictionary")
	}
	// Reporting without a client connection only logs.
	s.reloadAndReport(nil, s.Reload)
}

func TestInitialize(t *testing.T) {
	s, _ := setup(t)
	res, err := s.initialize(nil, &protocol.InitializeParams{})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	result := res.(protocol.InitializeResult)
	if result.ServerInfo == nil || result.ServerInfo.Name != Name || *result.ServerInfo.Version != "test" {
		t.Fatalf("ServerInfo = %#v", result.ServerInfo)
	}
	if result.Capabilities.TextDocumentSync != protocol.TextDocumentSyncKindFull {
		t.Fatalf("TextDocumentSync = %#v", result.Capabilities.TextDocumentSync)
	}
	if result.Capabilities.CompletionProvider == nil {
		t.Fatal("completion not advertised")
	}
}

func TestCompletion(t *testing.T) {
	s, dir := setup(t)
	uri := "file://" + filepath.Join(dir, "src", "app.component.html")
	open(t, s, uri, "html", "<h1>\n<p>'nav.\n")

	items := completionAt(t, s, uri, 1, 8)
	if len(items) != 2 {
		t.Fatalf("completion = %#v, want 2 items", items)
	}
	user := items[1]
	if user.Label != "user" || *user.Detail != "Hi {{ user }}" {
		t.Fatalf("item = %q / %q", user.Label, *user.Detail)
	}
	if *user.InsertText != "{{ 'nav.user' | translate : { 'user': $1 } }}$0" {
		t.Fatalf("InsertText = %q", *user.InsertText)
	}
	if *user.InsertTextFormat != protocol.InsertTextFormatSnippet {
		t.Fatal("InsertTextFormat is not snippet")
	}
	edit := user.AdditionalTextEdits[0]
	if edit.Range.Start.Character != 3 || edit.Range.End.Character != 8 || edit.NewText != "" {
		t.Fatalf("edit = %#v", edit)
	}
}

func TestCompletionContexts(t *testing.T) {
	s, dir := setup(t)

	ts := "file://" + filepath.Join(dir, "src", "app.component.ts")
	open(t, s, ts, "typescript", "@Component({\n  template: `<b>_.`\n})\nconst k = _.")

	items := completionAt(t, s, ts, 1, 18)
	if len(items) != 3 || *items[2].InsertText != "{{ 'title' | translate }}$0" {
		t.Fatalf("inline template completion = %#v", items)
	}

	items = completionAt(t, s, ts, 3, 12)
	if len(items) != 3 || *items[2].InsertText != "'title'$0" {
		t.Fatalf("code completion = %#v", items)
	}

	// No trigger, unknown document, line out of range.
	if items := completionAt(t, s, ts, 2, 2); items != nil {
		t.Fatalf("completion without trigger = %#v", items)
	}
	if items := completionAt(t, s, "file:///nowhere.html", 0, 0); items != nil {
		t.Fatalf("completion for unknown document = %#v", items)
	}
	if items := completionAt(t, s, ts, 40, 0); items != nil {
		t.Fatalf("completion past the end = %#v", items)
	}
}

func TestHover(t *testing.T) {
	s, dir := setup(t)
	uri := "file://" + filepath.Join(dir, "src", "a.html")
	open(t, s, uri, "html", `<p>{{ 'nav.home' | translate }} {{ 'missing' | translate }}</p>`)

	params := &protocol.HoverParams{}
	params.TextDocument.URI = uri
	params.Position = protocol.Position{Line: 0, Character: 10}

	h, err := s.hover(nil, params)
	if err != nil || h == nil {
		t.Fatalf("hover = %v, %v", h, err)
	}
	content := h.Contents.(protocol.MarkupContent)
	if content.Value != "*Home*" || content.Kind != protocol.MarkupKindMarkdown {
		t.Fatalf("Contents = %#v", content)
	}
	if h.Range.Start.Character != 6 || h.Range.End.Character != 16 {
		t.Fatalf("Range = %#v", *h.Range)
	}

	params.Position.Character = 38
	if h, _ := s.hover(nil, params); h != nil {
		t.Fatalf("hover on unknown key = %#v", h)
	}
}

func TestDocumentLifecycle(t *testing.T) {
	s, dir := setup(t)
	uri := "file://" + filepath.Join(dir, "src", "a.html")
	open(t, s, uri, "html", "<p>\n")

	err := s.didChange(nil, &protocol.DidChangeTextDocumentParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: uri},
			Version:                2,
		},
		ContentChanges: []any{
			protocol.TextDocumentContentChangeEvent{
				Range: &protocol.Range{
					Start: protocol.Position{Line: 0, Character: 3},
					End:   protocol.Position{Line: 0, Character: 3},
				},
				Text: "'nav.",
			},
		},
	})
	if err != nil {
		t.Fatalf("didChange: %v", err)
	}
	if items := completionAt(t, s, uri, 0, 8); len(items) != 2 {
		t.Fatalf("completion after edit = %#v", items)
	}

	err = s.didChange(nil, &protocol.DidChangeTextDocumentParams{
		TextDocument:   protocol.VersionedTextDocumentIdentifier{TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: uri}},
		ContentChanges: []any{protocol.TextDocumentContentChangeEventWhole{Text: "plain"}},
	})
	if err != nil {
		t.Fatalf("didChange(whole): %v", err)
	}
	if doc, _ := s.document(uri); doc.text != "plain" {
		t.Fatalf("text = %q", doc.text)
	}

	if err := s.didClose(nil, &protocol.DidCloseTextDocumentParams{TextDocument: protocol.TextDocumentIdentifier{URI: uri}}); err != nil {
		t.Fatalf("didClose: %v", err)
	}
	if _, ok := s.document(uri); ok {
		t.Fatal("document still open after didClose")
	}
}

func TestDidOpenIgnoresUnmatchedFiles(t *testing.T) {
	s, dir := setup(t)
	uri := "file://" + filepath.Join(dir, "node_modules", "lib", "a.html")
	open(t, s, uri, "html", "<p>")
	if _, ok := s.document(uri); ok {
		t.Fatal("excluded document was opened")
	}

	untitled := "untitled:Untitled-1"
	open(t, s, untitled, "html", "<p>")
	if _, ok := s.document(untitled); !ok {
		t.Fatal("unsaved document was not opened")
	}
}

func TestApplyChangeOutOfRange(t *testing.T) {
	_, err := applyChange("a", protocol.TextDocumentContentChangeEvent{
		Range: &protocol.Range{Start: protocol.Position{Line: 5}, End: protocol.Position{Line: 5}},
	})
	if err == nil {
		t.Fatal("expected error")
	}
}

// startWatch runs Watch with a short debounce until the test ends.
func startWatch(t *testing.T, s *Server) {
	t.Helper()
	old := Debounce
	Debounce = 10 * time.Millisecond
	t.Cleanup(func() { Debounce = old })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher time to register before writing.
	time.Sleep(50 * time.Millisecond)
}

// eventually polls cond for up to five seconds.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("%s: timed out", what)
}

func TestWatchReloadsOnChange(t *testing.T) {
	s, _ := setup(t)
	startWatch(t, s)

	if err := os.WriteFile(s.Source(), []byte(`{"only": "One"}`), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	eventually(t, "dictionary reloaded", func() bool { return s.Dictionary().Has("only") })
}

func TestWatchFollowsFirstReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "src", "locale", "en.json")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(`{"a": "A"}`), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	// Watch starts before the client handshake loads the dictionary.
	s := New(config.Default(dir), "test")
	startWatch(t, s)
	if err := s.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if err := os.WriteFile(path, []byte(`{"only": "One"}`), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	eventually(t, "dictionary edit reloaded", func() bool { return s.Dictionary().Has("only") })
}

func TestWatchFindsDictionaryCreatedLater(t *testing.T) {
	dir := t.TempDir()
	s := New(config.Default(dir), "test")
	startWatch(t, s)

	path := filepath.Join(dir, "src", "locale", "en.json")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte(testDict), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	eventually(t, "new dictionary loaded", func() bool { return s.Dictionary().Has("title") })
	if s.Source() != path {
		t.Fatalf("Source() = %q, want %q", s.Source(), path)
	}
}

func TestWatchReportsParseFailure(t *testing.T) {
	s, _ := setup(t)

	var (
		mu       sync.Mutex
		messages []protocol.ShowMessageParams
	)
	ctx := &glsp.Context{Notify: func(method string, params any) {
		if method != string(protocol.ServerWindowShowMessage) {
			return
		}
		mu.Lock()
		messages = append(messages, params.(protocol.ShowMessageParams))
		mu.Unlock()
	}}
	if err := s.initialized(ctx, &protocol.InitializedParams{}); err != nil {
		t.Fatalf("initialized: %v", err)
	}
	startWatch(t, s)

	if err := os.WriteFile(s.Source(), []byte(`{"a": `), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	eventually(t, "parse failure shown", func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, m := range messages {
			if m.Type == protocol.MessageTypeWarning && strings.Contains(m.Message, "not valid JSON") {
				return true
			}
		}
		return false
	})
	if s.Dictionary().Len() != 3 {
		t.Fatalf("snapshot replaced after a failed reload, keys = %v", s.Dictionary().Keys())
	}
}
