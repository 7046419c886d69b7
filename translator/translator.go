// Package translator ties the dictionary codec, key validation, snippet
// templating and fuzzy matching together into the three user actions of
// ngxkit: storing selected text as a new key, searching existing
// translations, and suggesting key completions.
//
// The service holds no dictionary state. Every call receives the snapshot
// it works on, and Store returns an updated copy instead of mutating the
// caller's tree. Loading and persisting the dictionary is left to the
// DictionarySource the caller supplies.
package translator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/minios-linux/ngxkit/dictionary"
	"github.com/minios-linux/ngxkit/fuzzy"
	"github.com/minios-linux/ngxkit/keys"
	"github.com/minios-linux/ngxkit/snippet"
)

var (
	// ErrNoKey is returned when the key prompt was cancelled or answered
	// with nothing.
	ErrNoKey = errors.New("no key supplied")
	// ErrNoSource is returned when there is no dictionary to store into.
	ErrNoSource = errors.New("no dictionary source")
)

// ---------------------------------------------------------------------------
// Collaborators
// ---------------------------------------------------------------------------

// DictionarySource loads and persists the translation tree.
// dictionary.FileSource is the file-backed implementation.
type DictionarySource interface {
	Load() (*dictionary.Branch, error)
	Save(root *dictionary.Branch) error
}

// ContextProvider supplies the lexical context at the cursor.
type ContextProvider interface {
	Context() (snippet.LexicalContext, error)
}

// StaticContext is a ContextProvider for an already known context.
type StaticContext snippet.LexicalContext

// Context implements ContextProvider.
func (c StaticContext) Context() (snippet.LexicalContext, error) {
	return snippet.LexicalContext(c), nil
}

// KeyPrompt asks the user for a key. validate can be called on every
// candidate to give live feedback. ok is false when the user cancelled.
type KeyPrompt interface {
	PromptKey(validate func(string) error) (key string, ok bool)
}

// KeyPromptFunc adapts a function to KeyPrompt.
type KeyPromptFunc func(validate func(string) error) (string, bool)

// PromptKey implements KeyPrompt.
func (f KeyPromptFunc) PromptKey(validate func(string) error) (string, bool) {
	return f(validate)
}

// FixedKey is a KeyPrompt that always answers with the same key, as when the
// key is given on the command line.
type FixedKey string

// PromptKey implements KeyPrompt.
func (k FixedKey) PromptKey(func(string) error) (string, bool) {
	return string(k), k != ""
}

// ---------------------------------------------------------------------------
// Service
// ---------------------------------------------------------------------------

// Service implements the translation actions.
type Service struct{}

// New creates a Service.
func New() *Service {
	return &Service{}
}

// StoreRequest is the input of Store.
type StoreRequest struct {
	// Text is the selected text to store as a translation.
	Text string
	// Context is the lexical context where the key reference is inserted.
	Context snippet.LexicalContext
	// Tree is the current dictionary. It is not modified.
	Tree *dictionary.Branch
	// Prompt supplies the key.
	Prompt KeyPrompt
	// FirstTabStop numbers the snippet's parameter tab stops; 0 means 1.
	FirstTabStop int
}

// StoreResult is the outcome of Store.
type StoreResult struct {
	// Tree is the updated dictionary.
	Tree *dictionary.Branch
	// Flat is the flattened projection of Tree.
	Flat *dictionary.Flat
	// Key is the key the value was stored under. It ends in ".self" when the
	// requested key already was a branch.
	Key string
	// Value is the normalized text that was stored.
	Value string
	// Data is the serialized dictionary.
	Data []byte
	// Snippet is the key reference to insert at the cursor.
	Snippet string
}

// Store adds req.Text to a copy of req.Tree under a key obtained from
// req.Prompt and renders the reference to insert.
func (s *Service) Store(req StoreRequest) (*StoreResult, error) {
	if req.Tree == nil {
		return nil, ErrNoSource
	}
	if req.Prompt == nil {
		return nil, ErrNoKey
	}

	value := snippet.NormalizeText(req.Text)
	existing := dictionary.Flatten(req.Tree)

	key, ok := req.Prompt.PromptKey(func(candidate string) error {
		return keys.Validate(candidate, existing)
	})
	if !ok || key == "" {
		return nil, ErrNoKey
	}
	if err := keys.Validate(key, existing); err != nil {
		return nil, err
	}

	tree := req.Tree.Clone()
	stored := tree.Insert(key, value)

	first := req.FirstTabStop
	if first < 1 {
		first = 1
	}
	params := snippet.ExtractParams(value)

	return &StoreResult{
		Tree:    tree,
		Flat:    dictionary.Flatten(tree),
		Key:     stored,
		Value:   value,
		Data:    dictionary.Marshal(tree),
		Snippet: snippet.RenderAt(snippet.Select(req.Context), stored, params, first),
	}, nil
}

// StoreAndSave runs the full store action against a source: load, store,
// save. The result is returned even when saving fails, together with the
// error, so the caller can still show what would have been written.
func (s *Service) StoreAndSave(src DictionarySource, text string, ctx ContextProvider, prompt KeyPrompt) (*StoreResult, error) {
	if src == nil {
		return nil, ErrNoSource
	}

	tree, err := src.Load()
	if err != nil {
		return nil, fmt.Errorf("loading dictionary: %w", err)
	}

	var lc snippet.LexicalContext
	if ctx != nil {
		if lc, err = ctx.Context(); err != nil {
			return nil, fmt.Errorf("reading cursor context: %w", err)
		}
	}

	res, err := s.Store(StoreRequest{Text: text, Context: lc, Tree: tree, Prompt: prompt})
	if err != nil {
		return nil, err
	}

	if err := src.Save(res.Tree); err != nil {
		return res, fmt.Errorf("saving dictionary: %w", err)
	}
	return res, nil
}

// Match is a search hit.
type Match struct {
	Key   string
	Value string
}

// Search returns the entries whose value contains query as a subsequence,
// in dictionary order. Keys are not searched.
func (s *Service) Search(query string, flat *dictionary.Flat) []Match {
	var out []Match
	for _, k := range flat.Keys() {
		v, _ := flat.Get(k)
		if fuzzy.IsSubsequence(query, v) {
			out = append(out, Match{Key: k, Value: v})
		}
	}
	return out
}

// Suggestion is a completion candidate.
type Suggestion struct {
	// Label is the key with prefix and the joining dot removed.
	Label string
	Key   string
	// Detail is the translation text.
	Detail  string
	Snippet string
}

// Suggest lists the keys starting with prefix, in dictionary order, with
// the reference rendered for ctx. The match is a plain string prefix, so
// "nav" also matches "navbar.title".
func (s *Service) Suggest(prefix string, ctx snippet.LexicalContext, flat *dictionary.Flat) []Suggestion {
	tpl := snippet.Select(ctx)

	var out []Suggestion
	for _, k := range flat.Keys() {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		v, _ := flat.Get(k)
		out = append(out, Suggestion{
			Label:   strings.TrimPrefix(k[len(prefix):], dictionary.Separator),
			Key:     k,
			Detail:  v,
			Snippet: snippet.Render(tpl, k, snippet.ExtractParams(v)),
		})
	}
	return out
}

// Lookup returns the value of key for hover previews.
func (s *Service) Lookup(key string, flat *dictionary.Flat) (string, bool) {
	return flat.Get(key)
}

// Snippet renders the reference to an existing key, as inserted after
// picking a search result.
func (s *Service) Snippet(key string, ctx snippet.LexicalContext, flat *dictionary.Flat) (string, error) {
	v, ok := flat.Get(key)
	if !ok {
		return "", fmt.Errorf("key %q: %w", key, dictionary.ErrNotFound)
	}
	return snippet.Render(snippet.Select(ctx), key, snippet.ExtractParams(v)), nil
}
