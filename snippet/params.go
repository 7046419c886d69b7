package snippet

import (
	"fmt"
	"regexp"
	"strings"
)

// space is the whitespace of JavaScript regular expressions: ASCII space
// characters plus the Unicode space separators, line separators and BOM.
const space = `\s\x0B\p{Zs}\x{2028}\x{2029}\x{FEFF}`

// paramPattern matches {{ name }} placeholders.
var paramPattern = regexp.MustCompile(`\{\{[` + space + `]*([^{}` + space + `]+)[` + space + `]*\}\}`)

var (
	openBraces  = regexp.MustCompile(`\{\{[` + space + `]*`)
	closeBraces = regexp.MustCompile(`[` + space + `]*\}\}`)
)

// Param is a placeholder name with its 1-based position in the value.
type Param struct {
	Name  string
	Index int
}

// ParamList is the ordered list of placeholders found in a value.
// Repeated names are kept, each with its own index.
type ParamList []Param

// ExtractParams scans value for {{ name }} placeholders, left to right.
func ExtractParams(value string) ParamList {
	matches := paramPattern.FindAllStringSubmatch(value, -1)
	if len(matches) == 0 {
		return nil
	}
	params := make(ParamList, 0, len(matches))
	for i, m := range matches {
		params = append(params, Param{Name: strings.TrimSpace(m[1]), Index: i + 1})
	}
	return params
}

// Block formats the list as "'name': $N" entries joined by ", ". The first
// param gets tab stop first; later ones follow its index.
func (p ParamList) Block(first int) string {
	parts := make([]string, len(p))
	for i, param := range p {
		parts[i] = fmt.Sprintf("'%s': $%d", param.Name, first+param.Index-1)
	}
	return strings.Join(parts, ", ")
}

// NormalizeText rewrites placeholder braces to the canonical padded form,
// e.g. "{{name}}" becomes "{{ name }}".
func NormalizeText(text string) string {
	text = openBraces.ReplaceAllString(text, "{{ ")
	return closeBraces.ReplaceAllString(text, " }}")
}
