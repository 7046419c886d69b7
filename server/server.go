// Package server is the ngxkit language server: key completion and hover
// previews for translation references in template files, over LSP on stdio.
//
// The server keeps one flattened dictionary snapshot. Requests read the
// snapshot that is current when they start; a reload builds a new snapshot
// and swaps it in whole, so a request never sees a half-loaded dictionary.
package server

import (
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/minios-linux/ngxkit/config"
	"github.com/minios-linux/ngxkit/dictionary"
	"github.com/minios-linux/ngxkit/snippet"
	"github.com/minios-linux/ngxkit/translator"
	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"
)

// Name is the server name reported to clients.
const Name = "ngxkit"

// Server holds the language server state.
type Server struct {
	handler protocol.Handler
	svc     *translator.Service
	log     commonlog.Logger
	version string

	snapshot atomic.Pointer[dictionary.Flat]
	// reloaded is signalled after every successful Reload so Watch can
	// follow the dictionary file.
	reloaded chan struct{}

	mu     sync.Mutex
	cfg    *config.File
	source string
	docs   map[protocol.DocumentUri]*document
	// client is the notifier of the connected client, set on initialized.
	client glsp.NotifyFunc
}

type document struct {
	languageID string
	text       string
}

// New creates a server for the project described by cfg.
func New(cfg *config.File, version string) *Server {
	s := &Server{
		svc:     translator.New(),
		log:     commonlog.GetLogger("ngxkit.server"),
		version: version,
		cfg:     cfg,
		docs:    make(map[protocol.DocumentUri]*document),

		reloaded: make(chan struct{}, 1),
	}
	s.handler = protocol.Handler{
		Initialize:             s.initialize,
		Initialized:            s.initialized,
		Shutdown:               s.shutdown,
		SetTrace:               s.setTrace,
		TextDocumentDidOpen:    s.didOpen,
		TextDocumentDidChange:  s.didChange,
		TextDocumentDidClose:   s.didClose,
		TextDocumentCompletion: s.completion,
		TextDocumentHover:      s.hover,
	}
	return s
}

// RunStdio serves LSP over stdin/stdout until the client disconnects.
func (s *Server) RunStdio() error {
	return glspserver.NewServer(&s.handler, Name, false).RunStdio()
}

// ---------------------------------------------------------------------------
// Dictionary snapshot
// ---------------------------------------------------------------------------

// Dictionary returns the current snapshot, empty before the first load.
func (s *Server) Dictionary() *dictionary.Flat {
	if flat := s.snapshot.Load(); flat != nil {
		return flat
	}
	return dictionary.NewFlat()
}

// Source returns the path of the loaded dictionary file.
func (s *Server) Source() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// Config returns the active configuration.
func (s *Server) Config() *config.File {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Reload locates and parses the dictionary and replaces the snapshot. On
// failure the previous snapshot stays in place.
func (s *Server) Reload() error {
	cfg := s.Config()
	path, err := cfg.Locate()
	if err != nil {
		return err
	}
	root, err := dictionary.ParseFile(path)
	if err != nil {
		return err
	}
	flat := dictionary.Flatten(root)

	s.mu.Lock()
	s.source = path
	s.mu.Unlock()
	s.snapshot.Store(flat)
	select {
	case s.reloaded <- struct{}{}:
	default:
	}

	s.log.Infof("loaded %d keys from %s", flat.Len(), path)
	return nil
}

// ReloadConfig re-reads .ngxkit.yaml and then the dictionary.
func (s *Server) ReloadConfig() error {
	cfg, err := config.Load(s.Config().Root())
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return s.Reload()
}

// reloadAndReport runs reload and reports failures to the log and, when a
// client is connected, to the client. ctx may be nil outside a request.
func (s *Server) reloadAndReport(ctx *glsp.Context, reload func() error) {
	err := reload()
	if err == nil {
		return
	}

	var msg string
	switch {
	case errors.Is(err, dictionary.ErrNotFound):
		msg = fmt.Sprintf("Can't find locale file matching %q. Run `ngxkit locale set <file>`.", s.Config().Locale)
	case errors.Is(err, dictionary.ErrParse):
		msg = fmt.Sprintf("Locale file is not valid JSON, keeping the previous dictionary: %v", err)
	default:
		msg = err.Error()
	}
	s.log.Warning(msg)
	s.notify(ctx, protocol.MessageTypeWarning, msg)
}

// notify shows a message through the request's notifier, or the client's
// when ctx is nil.
func (s *Server) notify(ctx *glsp.Context, kind protocol.MessageType, msg string) {
	var send glsp.NotifyFunc
	if ctx != nil {
		send = ctx.Notify
	}
	if send == nil {
		s.mu.Lock()
		send = s.client
		s.mu.Unlock()
	}
	if send == nil {
		return
	}
	send(string(protocol.ServerWindowShowMessage), protocol.ShowMessageParams{Type: kind, Message: msg})
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func (s *Server) initialize(_ *glsp.Context, _ *protocol.InitializeParams) (any, error) {
	capabilities := s.handler.CreateServerCapabilities()
	capabilities.TextDocumentSync = protocol.TextDocumentSyncKindFull
	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{"."},
	}

	version := s.version
	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    Name,
			Version: &version,
		},
	}, nil
}

func (s *Server) initialized(ctx *glsp.Context, _ *protocol.InitializedParams) error {
	if ctx != nil && ctx.Notify != nil {
		s.mu.Lock()
		s.client = ctx.Notify
		s.mu.Unlock()
	}
	s.reloadAndReport(ctx, s.Reload)
	return nil
}

func (s *Server) shutdown(_ *glsp.Context) error {
	protocol.SetTraceValue(protocol.TraceValueOff)
	return nil
}

func (s *Server) setTrace(_ *glsp.Context, params *protocol.SetTraceParams) error {
	protocol.SetTraceValue(params.Value)
	return nil
}

// ---------------------------------------------------------------------------
// Documents
// ---------------------------------------------------------------------------

func (s *Server) didOpen(_ *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	item := params.TextDocument
	if !s.serves(item.URI) {
		return nil
	}
	s.mu.Lock()
	s.docs[item.URI] = &document{languageID: item.LanguageID, text: item.Text}
	s.mu.Unlock()
	return nil
}

func (s *Server) didChange(_ *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[params.TextDocument.URI]
	if !ok {
		return nil
	}
	for _, change := range params.ContentChanges {
		switch c := change.(type) {
		case protocol.TextDocumentContentChangeEventWhole:
			doc.text = c.Text
		case protocol.TextDocumentContentChangeEvent:
			text, err := applyChange(doc.text, c)
			if err != nil {
				return err
			}
			doc.text = text
		}
	}
	return nil
}

func (s *Server) didClose(_ *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	s.mu.Lock()
	delete(s.docs, params.TextDocument.URI)
	s.mu.Unlock()
	return nil
}

// document returns a copy of an open document.
func (s *Server) document(uri protocol.DocumentUri) (document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[uri]
	if !ok {
		return document{}, false
	}
	return *doc, true
}

// serves reports whether a document is handled. Local files must match the
// configured pattern; other schemes (unsaved buffers) are always served.
func (s *Server) serves(uri protocol.DocumentUri) bool {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "file" {
		return true
	}
	return s.Config().Matches(u.Path)
}

// applyChange applies a ranged edit. Positions are UTF-16 based.
func applyChange(text string, c protocol.TextDocumentContentChangeEvent) (string, error) {
	if c.Range == nil {
		return c.Text, nil
	}
	start, err := offsetOf(text, c.Range.Start)
	if err != nil {
		return "", err
	}
	end, err := offsetOf(text, c.Range.End)
	if err != nil {
		return "", err
	}
	if end < start {
		return "", fmt.Errorf("invalid range %v", *c.Range)
	}
	return text[:start] + c.Text + text[end:], nil
}

func offsetOf(text string, pos protocol.Position) (int, error) {
	line, start, ok := snippet.Line(text, int(pos.Line))
	if !ok {
		return 0, fmt.Errorf("line %d out of range", pos.Line+1)
	}
	return start + snippet.ByteColumn(line, int(pos.Character)), nil
}

// ---------------------------------------------------------------------------
// Completion and hover
// ---------------------------------------------------------------------------

func (s *Server) completion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	doc, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	line, lineStart, ok := snippet.Line(doc.text, int(params.Position.Line))
	if !ok {
		return nil, nil
	}
	at := snippet.ByteColumn(line, int(params.Position.Character))

	trigger, ok := snippet.ParseTrigger(line[:at])
	if !ok {
		return nil, nil
	}

	flat := s.Dictionary()
	if flat.Len() == 0 {
		s.log.Warning("dictionary is empty")
		s.notify(ctx, protocol.MessageTypeWarning, "Your dictionary is empty. Run `ngxkit locale set <file>` to choose one.")
	}

	lc := snippet.LexicalContext{
		Text:    trigger.Context,
		Content: snippet.ClassifyContent(doc.languageID, doc.text, lineStart+at),
	}
	typed := protocol.Range{
		Start: protocol.Position{Line: params.Position.Line, Character: protocol.UInteger(snippet.UTF16Column(line, trigger.Start))},
		End:   params.Position,
	}

	kind := protocol.CompletionItemKindSnippet
	format := protocol.InsertTextFormatSnippet
	suggestions := s.svc.Suggest(trigger.Prefix, lc, flat)
	items := make([]protocol.CompletionItem, 0, len(suggestions))
	for _, sg := range suggestions {
		detail := sg.Detail
		insert := sg.Snippet
		items = append(items, protocol.CompletionItem{
			Label:            sg.Label,
			Kind:             &kind,
			Detail:           &detail,
			InsertText:       &insert,
			InsertTextFormat: &format,
			// The typed quote and prefix are removed; the snippet brings
			// its own quoting.
			AdditionalTextEdits: []protocol.TextEdit{{Range: typed, NewText: ""}},
		})
	}
	return items, nil
}

func (s *Server) hover(_ *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	doc, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	line, _, ok := snippet.Line(doc.text, int(params.Position.Line))
	if !ok {
		return nil, nil
	}

	key, start, end, ok := snippet.KeyAt(line, snippet.ByteColumn(line, int(params.Position.Character)))
	if !ok {
		return nil, nil
	}
	value, ok := s.svc.Lookup(key, s.Dictionary())
	if !ok {
		return nil, nil
	}

	return &protocol.Hover{
		Contents: protocol.MarkupContent{Kind: protocol.MarkupKindMarkdown, Value: "*" + value + "*"},
		Range: &protocol.Range{
			Start: protocol.Position{Line: params.Position.Line, Character: protocol.UInteger(snippet.UTF16Column(line, start))},
			End:   protocol.Position{Line: params.Position.Line, Character: protocol.UInteger(snippet.UTF16Column(line, end))},
		},
	}, nil
}
