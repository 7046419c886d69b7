package snippet

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf16"

	"github.com/minios-linux/ngxkit/keys"
)

// ContentType classifies the document around the cursor.
type ContentType int

const (
	// ContentOther is plain host-language code.
	ContentOther ContentType = iota
	// ContentMarkup is an HTML-like template file.
	ContentMarkup
	// ContentInlineTemplate is a template string embedded in host code
	// (template: `...`).
	ContentInlineTemplate
)

func (c ContentType) String() string {
	switch c {
	case ContentMarkup:
		return "markup"
	case ContentInlineTemplate:
		return "inline"
	default:
		return "other"
	}
}

// IsMarkup reports whether the content is rendered as a template.
func (c ContentType) IsMarkup() bool {
	return c == ContentMarkup || c == ContentInlineTemplate
}

// ParseContentType parses the names printed by String. "html" and
// "template" are accepted as aliases.
func ParseContentType(s string) (ContentType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "markup", "html":
		return ContentMarkup, nil
	case "inline", "template":
		return ContentInlineTemplate, nil
	case "other", "":
		return ContentOther, nil
	}
	return ContentOther, fmt.Errorf("unknown content type %q (valid: markup, inline, other)", s)
}

// LexicalContext is the text of the current line up to the cursor plus the
// content type of the surrounding document.
type LexicalContext struct {
	Text    string
	Content ContentType
}

// inlineTemplatePattern finds component templates embedded in host code.
var inlineTemplatePattern = regexp.MustCompile("(?i)(template\\s*:\\s*`)([^`]*)`")

// ClassifyContent returns the content type at a byte offset of a document.
// HTML documents are markup; elsewhere only offsets inside an inline
// template literal count as markup.
func ClassifyContent(languageID, text string, offset int) ContentType {
	if languageID == "html" {
		return ContentMarkup
	}
	for _, m := range inlineTemplatePattern.FindAllStringSubmatchIndex(text, -1) {
		if offset >= m[4] && offset <= m[5] {
			return ContentInlineTemplate
		}
	}
	return ContentOther
}

// LanguageID guesses an editor language identifier from a file name.
func LanguageID(path string) string {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".html", ".htm":
		return "html"
	case ".ts", ".mts", ".cts":
		return "typescript"
	case ".js", ".mjs", ".cjs":
		return "javascript"
	default:
		return strings.TrimPrefix(ext, ".")
	}
}

// ---------------------------------------------------------------------------
// Positions
// ---------------------------------------------------------------------------

// Line returns the 0-based line of text without its line terminator, and
// the byte offset where it starts.
func Line(text string, line int) (string, int, bool) {
	if line < 0 {
		return "", 0, false
	}
	start := 0
	for i := 0; i < line; i++ {
		nl := strings.IndexByte(text[start:], '\n')
		if nl < 0 {
			return "", 0, false
		}
		start += nl + 1
	}
	end := len(text)
	if nl := strings.IndexByte(text[start:], '\n'); nl >= 0 {
		end = start + nl
	}
	return strings.TrimSuffix(text[start:end], "\r"), start, true
}

// ByteColumn converts a UTF-16 column (as used by editors) into a byte
// offset within line, clamped to the line length.
func ByteColumn(line string, col int) int {
	units := 0
	for i, r := range line {
		if units >= col {
			return i
		}
		units += utf16.RuneLen(r)
	}
	return len(line)
}

// UTF16Column converts a byte offset within line into a UTF-16 column.
func UTF16Column(line string, offset int) int {
	if offset > len(line) {
		offset = len(line)
	}
	units := 0
	for _, r := range line[:offset] {
		units += utf16.RuneLen(r)
	}
	return units
}

// ContextAt builds the lexical context for a 0-based line and UTF-16 column
// of a document.
func ContextAt(text string, line, col int, languageID string) (LexicalContext, error) {
	lineText, start, ok := Line(text, line)
	if !ok {
		return LexicalContext{}, fmt.Errorf("line %d out of range", line+1)
	}
	at := ByteColumn(lineText, col)
	return LexicalContext{
		Text:    lineText[:at],
		Content: ClassifyContent(languageID, text, start+at),
	}, nil
}

// ---------------------------------------------------------------------------
// Completion triggers and hover keys
// ---------------------------------------------------------------------------

// Trigger is a completion request parsed from the text before the cursor.
type Trigger struct {
	// Prefix is the key path typed so far, without the trailing dot.
	Prefix string
	// Start is the byte offset where the typed reference begins; the text
	// from Start to the cursor is replaced by the completion.
	Start int
	// Context is the line text before the typed reference.
	Context string
}

// ParseTrigger recognizes a key reference being typed at the end of the
// line prefix: a quote or "_" followed by key segments and a dot, e.g.
// `'nav.`, `"nav.menu.` or `_.`. A bare `_.` lists every key; a bare quote
// followed by a dot does not trigger.
func ParseTrigger(linePrefix string) (Trigger, bool) {
	index := max(
		strings.LastIndex(linePrefix, "'"),
		strings.LastIndex(linePrefix, `"`),
		strings.LastIndex(linePrefix, "_"),
	)
	if index == -1 || !strings.HasSuffix(linePrefix, ".") {
		return Trigger{}, false
	}

	typed := linePrefix[index:]
	prefix := ""
	if typed != "_." {
		switch {
		case strings.HasPrefix(typed, "_."):
			prefix = typed[2 : len(typed)-1]
		case typed[0] == '\'' || typed[0] == '"':
			prefix = typed[1 : len(typed)-1]
			if prefix == "" {
				return Trigger{}, false
			}
		default:
			return Trigger{}, false
		}

		for _, part := range keys.Segments(prefix) {
			if !keys.IsSegment(part) {
				return Trigger{}, false
			}
		}
	}

	return Trigger{Prefix: prefix, Start: index, Context: linePrefix[:index]}, true
}

// quotedKeyPattern matches a quoted key path for hover.
var quotedKeyPattern = regexp.MustCompile(`'[.\w-]+'|"[.\w-]+"`)

// KeyAt returns the quoted key under the byte column of a line, along with
// the byte range of the quoted text.
func KeyAt(line string, col int) (key string, start, end int, ok bool) {
	for _, m := range quotedKeyPattern.FindAllStringIndex(line, -1) {
		if col >= m[0] && col <= m[1] {
			return line[m[0]+1 : m[1]-1], m[0], m[1], true
		}
	}
	return "", 0, 0, false
}
