package llm

import (
	"regexp"
	"strings"
)

var (
	sqlFenceRegex  = regexp.MustCompile("(?s)```(?:sql)?\\s*(.*?)```")
	jsonFenceRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	selectRegex    = regexp.MustCompile(`(?i)\bSELECT\b`)
	limitRegex     = regexp.MustCompile(`(?i)\bLIMIT\s+\d+`)
)

// CleanSQL normalizes a raw completion into a bare SQL statement: fence and
// comment stripping, leading commentary removal, truncation at the last
// complete LIMIT clause. Pure string transform, independent of which
// backend produced the text.
func CleanSQL(raw string) string {
	text := raw
	if m := sqlFenceRegex.FindStringSubmatch(text); m != nil {
		text = m[1]
	}

	// Drop comments line by line, then flatten.
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(stripLineComment(line))
		if line != "" {
			lines = append(lines, line)
		}
	}
	text = strings.Join(lines, " ")

	// Models often prefix commentary; the statement starts at SELECT.
	if loc := selectRegex.FindStringIndex(text); loc != nil {
		text = text[loc[0]:]
	} else {
		return ""
	}

	// Trailing prose after the statement is cut at the last LIMIT clause.
	if locs := limitRegex.FindAllStringIndex(text, -1); locs != nil {
		last := locs[len(locs)-1]
		text = text[:last[1]]
	} else if i := strings.Index(text, ";"); i >= 0 {
		text = text[:i]
	}

	text = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(text), ";"))
	if text == "" {
		return ""
	}
	return text + ";"
}

// stripLineComment cuts a line at the first -- or # marker that sits
// outside a single-quoted string literal, so markers inside values like
// 'A#3' survive.
func stripLineComment(line string) string {
	inQuote := false
	for i := 0; i < len(line); i++ {
		switch {
		case line[i] == '\'':
			inQuote = !inQuote
		case inQuote:
		case line[i] == '#':
			return line[:i]
		case line[i] == '-' && i+1 < len(line) && line[i+1] == '-':
			return line[:i]
		}
	}
	return line
}

// CleanJSON extracts the JSON object from a completion that may be fenced
// or surrounded by commentary.
func CleanJSON(raw string) string {
	text := raw
	if m := jsonFenceRegex.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(text[start : end+1])
}
