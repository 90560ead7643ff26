// Package extract pulls typed filter values out of user questions using
// admin-defined rules. Extraction is pure string work over a rule snapshot,
// so results are deterministic for a given (text, rules) pair.
package extract

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/prodtalk/prodtalk/store"
)

var digitsRegex = regexp.MustCompile(`\d+`)

// Entities maps a field name to its extracted values. Fields whose rule
// does not allow multiples hold exactly one element.
type Entities map[string][]string

// Clone returns a shallow-value copy so merges never alias the input maps.
func (e Entities) Clone() Entities {
	cloned := make(Entities, len(e))
	for field, values := range e {
		cloned[field] = append([]string(nil), values...)
	}
	return cloned
}

// Rule is a compiled filter rule. Pattern is nil when the stored regex
// did not compile; the keyword stage still applies for such rules.
type Rule struct {
	FieldName       string
	FieldType       store.FieldType
	Keywords        []string
	ValueMapping    map[string]string
	Pattern         *regexp.Regexp
	ValidValues     []string
	ValidationType  store.ValidationType
	MultipleAllowed bool
}

// CompileRules converts stored filter rules into compiled form, preserving
// order. A rule whose pattern fails to compile keeps its keyword stage and
// loses only the regex stage.
func CompileRules(records []*store.FilterRule) []*Rule {
	rules := make([]*Rule, 0, len(records))
	for _, record := range records {
		rule := &Rule{
			FieldName:       record.FieldName,
			FieldType:       record.FieldType,
			Keywords:        record.ExtractionKeywords,
			ValueMapping:    record.ValueMapping,
			ValidValues:     record.ValidValues,
			ValidationType:  record.ValidationType,
			MultipleAllowed: record.MultipleAllowed,
		}
		if record.ExtractionPattern != "" {
			pattern, err := regexp.Compile(record.ExtractionPattern)
			if err != nil {
				slog.Warn("extract: pattern does not compile, keyword stage only",
					"field", record.FieldName, "error", err)
			} else {
				rule.Pattern = pattern
			}
		}
		if rule.ValidationType != store.ValidationNone && len(rule.ValidValues) == 0 {
			// An empty valid list would reject every candidate.
			slog.Warn("extract: validation enabled without valid values, disabling",
				"field", record.FieldName)
			rule.ValidationType = store.ValidationNone
		}
		rules = append(rules, rule)
	}
	return rules
}

// Extract applies every rule to the text in order. Candidates that fail a
// rule's validation are discarded silently; a rule that yields nothing
// simply contributes no entity.
func Extract(text string, rules []*Rule) Entities {
	entities := Entities{}
	for _, rule := range rules {
		value, ok := extractOne(text, rule)
		if !ok {
			continue
		}
		if rule.MultipleAllowed {
			entities[rule.FieldName] = append(entities[rule.FieldName], value)
		} else if _, exists := entities[rule.FieldName]; !exists {
			entities[rule.FieldName] = []string{value}
		}
	}
	return entities
}

// extractOne runs the keyword stage then the regex stage for one rule.
func extractOne(text string, rule *Rule) (string, bool) {
	// Keywords first: exact substring triggers beat the regex.
	for _, keyword := range rule.Keywords {
		if !containsKeyword(text, keyword) {
			continue
		}
		value, mapped := rule.ValueMapping[keyword]
		if !mapped {
			value = keyword
			// "1번" carries its own value; keep just the digits.
			if digits := digitsRegex.FindString(keyword); digits != "" {
				value = digits
			}
		}
		if !validate(value, rule) {
			continue
		}
		return value, true
	}

	if rule.Pattern == nil {
		return "", false
	}
	match := rule.Pattern.FindStringSubmatch(text)
	if match == nil {
		return "", false
	}
	// First non-empty capture group, else the whole match.
	value := match[0]
	for _, group := range match[1:] {
		if group != "" {
			value = group
			break
		}
	}
	if !validate(value, rule) {
		return "", false
	}
	return value, true
}

func containsKeyword(text, keyword string) bool {
	return keyword != "" && strings.Contains(text, keyword)
}

// validate checks a candidate against the rule's valid values. Rules whose
// bounds are missing or unparsable accept everything; rejection is reserved
// for values that demonstrably fall outside a well-formed constraint.
func validate(value string, rule *Rule) bool {
	switch rule.ValidationType {
	case store.ValidationExact:
		if len(rule.ValidValues) == 0 {
			return true
		}
		for _, valid := range rule.ValidValues {
			if value == valid {
				return true
			}
		}
		return false
	case store.ValidationRange:
		if len(rule.ValidValues) < 2 {
			return true
		}
		min, errMin := strconv.ParseFloat(rule.ValidValues[0], 64)
		max, errMax := strconv.ParseFloat(rule.ValidValues[1], 64)
		val, errVal := strconv.ParseFloat(value, 64)
		if errMin != nil || errMax != nil || errVal != nil {
			return true
		}
		return min <= val && val <= max
	default:
		return true
	}
}

// Merge overlays current-turn entities on top of previously accumulated
// ones. A field present in both takes the current value wholesale.
func Merge(current, previous Entities) Entities {
	if len(previous) == 0 {
		return current.Clone()
	}
	merged := previous.Clone()
	for field, values := range current {
		merged[field] = append([]string(nil), values...)
	}
	return merged
}

// Backfill fills fields the current turn left unspecified by re-running
// extraction over recent turns, oldest first so that more recent turns win.
// The current turn's entities always take final precedence.
func Backfill(current Entities, recentTexts []string, rules []*Rule) Entities {
	accumulated := Entities{}
	for _, text := range recentTexts {
		accumulated = Merge(Extract(text, rules), accumulated)
	}
	return Merge(current, accumulated)
}
