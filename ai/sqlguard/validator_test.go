package sqlguard

import (
	"errors"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		sql      string
		wantCode string // empty means accept
	}{
		{"plain select", "SELECT * FROM production_records LIMIT 10;", ""},
		{"aggregate", "SELECT SUM(production_qty) FROM injection_cycle WHERE cycle_date = CURDATE();", ""},
		{"line comment stripped then allowed", "SELECT * FROM injection_cycle -- comment", ""},
		{"block comment stripped then allowed", "SELECT * FROM injection_cycle /* note */;", ""},
		{"empty", "   ", ReasonEmpty},
		{"multi statement", "SELECT * FROM t; DROP TABLE users;", ReasonMultiStatement},
		{"insert", "INSERT INTO injection_cycle VALUES (1);", ReasonNotSelect},
		{"delete disguised", "SELECT * FROM t WHERE 1=1; DELETE FROM t", ReasonMultiStatement},
		{"union", "SELECT id FROM t WHERE id = 1 UNION SELECT password FROM users", ReasonDeniedKeyword},
		{"with cte", "WITH x AS (SELECT 1) SELECT * FROM x", ReasonNotSelect},
		{"update whole word only", "SELECT updates FROM release_notes", ""},
		{"sleep function", "SELECT SLEEP(5) FROM t", ReasonDeniedKeyword},
		{"benchmark function", "SELECT BENCHMARK (100000, MD5('x')) FROM t", ReasonDeniedFunction},
		{"hex literal", "SELECT * FROM t WHERE id = 0x31", ReasonSuspiciousPattern},
		{"global variable", "SELECT @@version", ReasonSuspiciousPattern},
		{"extended procedure", "SELECT * FROM t WHERE c = 'xp_cmdshell'", ReasonSuspiciousPattern},
		{"bad table name", "SELECT * FROM users$admin", ReasonBadTableName},
		{"subquery from", "SELECT x FROM (SELECT machine_id AS x FROM injection_cycle) sub", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.sql)
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("expected accept, got %v", err)
				}
				return
			}
			var rejection *RejectionError
			if !errors.As(err, &rejection) {
				t.Fatalf("expected RejectionError, got %v", err)
			}
			if rejection.Code != tt.wantCode {
				t.Errorf("code: got %s, want %s", rejection.Code, tt.wantCode)
			}
		})
	}
}

// Any statement containing a deny-listed keyword as a whole word must be
// rejected, wherever it appears.
func TestValidateDenyListSafety(t *testing.T) {
	for _, kw := range deniedKeywords {
		sql := "SELECT col FROM t WHERE note = x " + kw + " y"
		if err := Validate(sql); err == nil {
			t.Errorf("statement containing %s accepted", kw)
		}
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want string
	}{
		{
			"appends limit and semicolon",
			"SELECT COUNT(*) FROM injection_cycle WHERE cycle_date = CURDATE()",
			"SELECT COUNT(*) FROM injection_cycle WHERE cycle_date = CURDATE() LIMIT 100;",
		},
		{
			"existing limit untouched",
			"SELECT * FROM t LIMIT 5;",
			"SELECT * FROM t LIMIT 5;",
		},
		{
			"comments and whitespace collapsed",
			"SELECT *\n  FROM t -- trailing note\n WHERE id = 1",
			"SELECT * FROM t WHERE id = 1 LIMIT 100;",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.sql, 100); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSanitizeIdempotent(t *testing.T) {
	inputs := []string{
		"SELECT * FROM injection_cycle",
		"SELECT machine_id, COUNT(*) FROM injection_cycle GROUP BY machine_id",
		"SELECT * FROM t LIMIT 7;",
	}
	for _, sql := range inputs {
		once := Sanitize(sql, 100)
		twice := Sanitize(once, 100)
		if once != twice {
			t.Errorf("not idempotent for %q: %q != %q", sql, once, twice)
		}
	}
}
