// Package sqlguard is the single trust boundary between generated SQL and
// the production database. Every candidate statement, agent-generated or
// not, must pass Validate and then Sanitize before execution.
package sqlguard

import (
	"fmt"
	"regexp"
	"strings"
)

// Rejection reason codes. Machine-readable; the detail carries the
// offending token.
const (
	ReasonEmpty             = "empty_statement"
	ReasonMultiStatement    = "multi_statement"
	ReasonNotSelect         = "not_select"
	ReasonDeniedKeyword     = "denied_keyword"
	ReasonDeniedFunction    = "denied_function"
	ReasonSuspiciousPattern = "suspicious_pattern"
	ReasonBadTableName      = "bad_table_name"
)

// RejectionError reports why a candidate statement was refused. Rejections
// are never corrected silently.
type RejectionError struct {
	Code   string
	Detail string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("sql rejected (%s): %s", e.Code, e.Detail)
}

var deniedKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "CREATE",
	"TRUNCATE", "EXEC", "EXECUTE", "SLEEP", "LOAD_FILE",
	"UNION", "WITH", "PRAGMA", "ATTACH", "DETACH", "REPLACE", "RENAME",
}

var deniedFunctions = []string{
	"SLEEP", "BENCHMARK", "LOAD_FILE", "OUTFILE", "SYSTEM", "SHELL_EXEC", "EVAL", "EXEC",
}

var (
	blockCommentRegex = regexp.MustCompile(`(?s)/\*.*?\*/`)
	lineCommentRegex  = regexp.MustCompile(`--[^\n]*`)
	hashCommentRegex  = regexp.MustCompile(`#[^\n]*`)

	suspiciousPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bxp_`),         // vendor extended procedures
		regexp.MustCompile(`(?i)\bsp_`),         // vendor system procedures
		regexp.MustCompile(`@@`),                // global variables
		regexp.MustCompile(`(?i)0x[0-9a-f]+`),   // raw hex literals
	}

	tableRefRegex = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+(\S+)`)
	tableNameOK   = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

	deniedKeywordRegexes  = compileKeywordRegexes()
	deniedFunctionRegexes = compileFunctionRegexes()
)

func compileKeywordRegexes() map[string]*regexp.Regexp {
	out := make(map[string]*regexp.Regexp, len(deniedKeywords))
	for _, kw := range deniedKeywords {
		out[kw] = regexp.MustCompile(`(?i)\b` + kw + `\b`)
	}
	return out
}

func compileFunctionRegexes() map[string]*regexp.Regexp {
	out := make(map[string]*regexp.Regexp, len(deniedFunctions))
	for _, fn := range deniedFunctions {
		out[fn] = regexp.MustCompile(`(?i)\b` + fn + `\s*\(`)
	}
	return out
}

// Validate runs the static check pipeline in a fixed order and returns nil
// or a *RejectionError with the first failing stage's reason code.
func Validate(sql string) error {
	if strings.TrimSpace(sql) == "" {
		return &RejectionError{Code: ReasonEmpty, Detail: "blank statement"}
	}

	cleaned := stripComments(sql)
	cleaned = strings.Join(strings.Fields(cleaned), " ")

	// A semicolon anywhere but the very end means a second statement.
	if strings.Contains(strings.TrimRight(cleaned, ";"), ";") {
		return &RejectionError{Code: ReasonMultiStatement, Detail: "multiple statements"}
	}

	if !strings.HasPrefix(strings.ToUpper(cleaned), "SELECT") {
		return &RejectionError{Code: ReasonNotSelect, Detail: "only SELECT is allowed"}
	}

	for _, kw := range deniedKeywords {
		if deniedKeywordRegexes[kw].MatchString(cleaned) {
			return &RejectionError{Code: ReasonDeniedKeyword, Detail: kw}
		}
	}

	for _, fn := range deniedFunctions {
		if deniedFunctionRegexes[fn].MatchString(cleaned) {
			return &RejectionError{Code: ReasonDeniedFunction, Detail: fn + "("}
		}
	}

	for _, pattern := range suspiciousPatterns {
		if pattern.MatchString(cleaned) {
			return &RejectionError{Code: ReasonSuspiciousPattern, Detail: pattern.String()}
		}
	}

	for _, table := range extractTables(cleaned) {
		if !tableNameOK.MatchString(table) {
			return &RejectionError{Code: ReasonBadTableName, Detail: table}
		}
	}

	return nil
}

// Sanitize canonicalizes a statement that already passed Validate: strip
// comments, collapse whitespace, append the row cap when no LIMIT clause
// exists and guarantee a trailing semicolon. Idempotent.
func Sanitize(sql string, rowCap int) string {
	sql = stripComments(sql)
	sql = strings.Join(strings.Fields(sql), " ")
	if sql == "" {
		return sql
	}
	if !strings.Contains(strings.ToUpper(sql), "LIMIT") {
		sql = strings.TrimSpace(strings.TrimRight(sql, ";")) + fmt.Sprintf(" LIMIT %d", rowCap)
	}
	if !strings.HasSuffix(sql, ";") {
		sql += ";"
	}
	return sql
}

func stripComments(sql string) string {
	sql = blockCommentRegex.ReplaceAllString(sql, "")
	sql = lineCommentRegex.ReplaceAllString(sql, "")
	sql = hashCommentRegex.ReplaceAllString(sql, "")
	return sql
}

// extractTables pulls the token after each FROM/JOIN. Subqueries are not
// table references, so tokens opening a parenthesis are skipped.
func extractTables(sql string) []string {
	var tables []string
	for _, match := range tableRefRegex.FindAllStringSubmatch(sql, -1) {
		token := strings.TrimRight(match[1], ",;)")
		if token == "" || strings.HasPrefix(token, "(") {
			continue
		}
		tables = append(tables, token)
	}
	return tables
}
