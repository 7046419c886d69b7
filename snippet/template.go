// Package snippet decides how a translation key reference is written at the
// cursor and renders the editor snippet for it.
//
// The cursor's surroundings are classified into one of a closed set of
// kinds (attribute binding, attribute interpolation, inside an open tag,
// markup content, plain expression) by pure string patterns. Each kind maps
// to one fixed template that receives the key and the value's placeholders.
package snippet

import (
	"regexp"
	"strings"
)

// Kind classifies the cursor position for template selection.
type Kind int

const (
	// KindLiteral is a plain host-language expression: 'key'.
	KindLiteral Kind = iota
	// KindBinding is a bracket-bound attribute value: [title]="'key' | translate".
	KindBinding
	// KindInterpolation is a plain attribute value: title="{{ 'key' | translate }}".
	KindInterpolation
	// KindTagAttribute is inside an open tag: translate="key" [translateParams]="{...}".
	KindTagAttribute
	// KindMarkup is markup content: {{ 'key' | translate : {...} }}.
	KindMarkup
)

func (k Kind) String() string {
	switch k {
	case KindLiteral:
		return "literal"
	case KindBinding:
		return "binding"
	case KindInterpolation:
		return "interpolation"
	case KindTagAttribute:
		return "tag-attribute"
	case KindMarkup:
		return "markup"
	default:
		return "unknown"
	}
}

// Template is a textual pattern with ${key} and ${params} placeholders.
type Template struct {
	Kind    Kind
	Pattern string
}

var templates = map[Kind]string{
	KindLiteral:       `'${key}'`,
	KindBinding:       `'${key}' | translate`,
	KindInterpolation: `{{ '${key}' | translate }}`,
	KindTagAttribute:  `translate="${key}" [translateParams]="{ ${params} }"`,
	KindMarkup:        `{{ '${key}' | translate : { ${params} } }}`,
}

// TemplateFor returns the template of a kind.
func TemplateFor(k Kind) Template {
	return Template{Kind: k, Pattern: templates[k]}
}

// attributePattern matches an attribute name, "=" and an opening quote at
// the end of the context, i.e. the cursor sits inside an attribute value.
var attributePattern = regexp.MustCompile(`\[?([\w-]+)\]?\s*=\s*['"]\s*$`)

// Classify inspects the context in priority order: attribute value, open
// tag, markup content, plain expression.
func Classify(ctx LexicalContext) Kind {
	if m := attributePattern.FindString(ctx.Text); m != "" {
		if strings.Contains(m, "[") {
			return KindBinding
		}
		return KindInterpolation
	}
	if strings.LastIndex(ctx.Text, ">") < strings.LastIndex(ctx.Text, "<") {
		return KindTagAttribute
	}
	if ctx.Content.IsMarkup() {
		return KindMarkup
	}
	return KindLiteral
}

// Select returns the template for the context.
func Select(ctx LexicalContext) Template {
	return TemplateFor(Classify(ctx))
}

// Render substitutes key and params into the template, numbering tab stops
// from $1.
func Render(t Template, key string, params ParamList) string {
	return RenderAt(t, key, params, 1)
}

// RenderAt is Render with an explicit first tab stop, for call sites that
// already used earlier tab stops.
//
// Without params the parameter clause is removed together with the empty
// braces or attribute it leaves behind. The result always ends with the $0
// exit marker.
func RenderAt(t Template, key string, params ParamList, first int) string {
	s := strings.Replace(t.Pattern, "${key}", key, 1)
	s = strings.Replace(s, "${params}", params.Block(first), 1)
	s = strings.Replace(s, "translate : {  }", "translate", 1)
	s = strings.Replace(s, ` [translateParams]="{  }"`, "", 1)
	return Finish(s)
}

// Finish appends the $0 exit marker unless present.
func Finish(s string) string {
	if !strings.HasSuffix(s, "$0") {
		s += "$0"
	}
	return s
}

var tabStopPattern = regexp.MustCompile(`\$\d+`)

// StripTabStops removes $N markers, giving the text as inserted with empty
// tab stops.
func StripTabStops(s string) string {
	return tabStopPattern.ReplaceAllString(s, "")
}
