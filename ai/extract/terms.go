package extract

import (
	"regexp"
	"strings"

	"github.com/prodtalk/prodtalk/store"
)

// TermDictionary rewrites colloquial user expressions to the standard
// domain terms before extraction and SQL generation run ("어제" becomes a
// relative-date expression, vendor nicknames become canonical machine names).
type TermDictionary struct {
	replacers []termReplacer
}

type termReplacer struct {
	pattern *regexp.Regexp
	term    string
}

// NewTermDictionary compiles the mappings once. Matching is case-insensitive
// and whole-word: an expression surrounded by letters, digits or underscores
// is left alone.
func NewTermDictionary(mappings []*store.TermMapping) *TermDictionary {
	dict := &TermDictionary{}
	for _, mapping := range mappings {
		if mapping.UserExpression == "" {
			continue
		}
		pattern, err := regexp.Compile(`(?i)(^|[^\p{L}\p{N}_])` + regexp.QuoteMeta(mapping.UserExpression) + `([^\p{L}\p{N}_]|$)`)
		if err != nil {
			continue
		}
		dict.replacers = append(dict.replacers, termReplacer{
			pattern: pattern,
			term:    mapping.StandardTerm,
		})
	}
	return dict
}

// Normalize applies every mapping in order and returns the rewritten text.
func (d *TermDictionary) Normalize(text string) string {
	for _, replacer := range d.replacers {
		replacement := "${1}" + strings.ReplaceAll(replacer.term, "$", "$$") + "${2}"
		text = replacer.pattern.ReplaceAllString(text, replacement)
	}
	return text
}
