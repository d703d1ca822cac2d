package soql_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/crmbridge/sql-to-soql/lib/soql"
)

type mapSchema map[string][]string

func (m mapSchema) ColumnsFor(table string) ([]string, bool) {
	cols, ok := m[table]
	return cols, ok
}

var testSchema = mapSchema{
	"Account": {"Id", "a1", "a2", "a3", "OwnerId"},
	"Contact": {"Id", "c1", "c2", "c3", "OwnerId", "AccountId"},
}

func translate(t *testing.T, sql string, opts soql.Options) *soql.Result {
	t.Helper()
	res, err := soql.Translate(sql, opts)
	if err != nil {
		t.Fatalf("Translate(%q) error: %v", sql, err)
	}
	return res
}

func TestTranslateSuccess(t *testing.T) {
	full := soql.Options{Schema: testSchema, EnsureID: true, DefaultLimit: 4}

	tests := []struct {
		name     string
		sql      string
		opts     soql.Options
		expected string
		table    string
	}{
		{
			name:     "forced key and relationship keys appended",
			sql:      "SELECT a1, a2 FROM Account WHERE Name='Fred' GROUP BY lastname ORDER BY firstname",
			opts:     full,
			expected: "SELECT a1, a2, Id, OwnerId FROM Account WHERE Name='Fred' GROUP BY lastname ORDER BY firstname LIMIT 4",
			table:    "Account",
		},
		{
			name:     "aggregate keeps field list and gets no limit",
			sql:      "SELECT Max(a1) cmax FROM Account WHERE Name='Fred' Group BY firstname order by cmax DESC",
			opts:     full,
			expected: "SELECT Max(a1) cmax FROM Account WHERE Name='Fred' GROUP BY firstname ORDER BY cmax DESC",
			table:    "Account",
		},
		{
			name:     "wildcard expands to schema columns and explicit limit wins",
			sql:      "SELECT * FROM Contact WHERE FirstName='Fred' and LastName='Smith' ORDER BY email DESC limit 20",
			opts:     full,
			expected: "SELECT Id, c1, c2, c3, OwnerId, AccountId FROM Contact WHERE FirstName='Fred' and LastName='Smith' ORDER BY email DESC LIMIT 20",
			table:    "Contact",
		},
		{
			name:     "quoted date literal is unquoted",
			sql:      "SELECT a1, a2, a3 FROM Account WHERE ModDate > '2023-01-01' GROUP BY industry ORDER BY revenue",
			opts:     full,
			expected: "SELECT a1, a2, a3, Id, OwnerId FROM Account WHERE ModDate > 2023-01-01 GROUP BY industry ORDER BY revenue LIMIT 4",
			table:    "Account",
		},
		{
			name:     "single digit month date literal",
			sql:      "SELECT a1, a2 FROM Account WHERE ModDate > '2023-1-01' GROUP BY industry ORDER BY revenue",
			opts:     full,
			expected: "SELECT a1, a2, Id, OwnerId FROM Account WHERE ModDate > 2023-1-01 GROUP BY industry ORDER BY revenue LIMIT 4",
			table:    "Account",
		},
		{
			name:     "wildcard on unknown table uses the all-fields sentinel",
			sql:      "SELECT * from Task",
			opts:     soql.Options{},
			expected: "SELECT FIELDS(ALL) FROM Task",
			table:    "Task",
		},
		{
			name:     "wildcard sentinel suppresses forced key",
			sql:      "SELECT * from Task",
			opts:     soql.Options{EnsureID: true},
			expected: "SELECT FIELDS(ALL) FROM Task",
			table:    "Task",
		},
		{
			name:     "count star becomes zero argument count",
			sql:      "SELECT count(*) FROM Account",
			opts:     full,
			expected: "SELECT count() FROM Account",
			table:    "Account",
		},
		{
			name:     "hallucinated column is pruned",
			sql:      "SELECT a1, bogus FROM Account",
			opts:     soql.Options{Schema: testSchema, EnsureID: true},
			expected: "SELECT a1, Id, OwnerId FROM Account",
			table:    "Account",
		},
		{
			name:     "unknown table keeps caller fields verbatim",
			sql:      "SELECT Subject, Status FROM Task WHERE IsClosed = false",
			opts:     soql.Options{Schema: testSchema},
			expected: "SELECT Subject, Status FROM Task WHERE IsClosed = false",
			table:    "Task",
		},
		{
			name:     "default cap only when no explicit limit",
			sql:      "SELECT a1 FROM Account LIMIT 2",
			opts:     full,
			expected: "SELECT a1, Id, OwnerId FROM Account LIMIT 2",
			table:    "Account",
		},
		{
			name:     "today pseudo constant loses its parens",
			sql:      "SELECT a1 FROM Account WHERE CloseDate = TODAY()",
			opts:     soql.Options{},
			expected: "SELECT a1 FROM Account WHERE CloseDate = TODAY",
			table:    "Account",
		},
		{
			name:     "month end boundary becomes half open next month",
			sql:      "SELECT a1 FROM Account WHERE CloseDate <= THIS_MONTH_END",
			opts:     soql.Options{},
			expected: "SELECT a1 FROM Account WHERE CloseDate < NEXT_MONTH",
			table:    "Account",
		},
		{
			name:     "month start boundary becomes half open last month",
			sql:      "SELECT a1 FROM Account WHERE CloseDate >= THIS_MONTH_START",
			opts:     soql.Options{},
			expected: "SELECT a1 FROM Account WHERE CloseDate > LAST_MONTH",
			table:    "Account",
		},
		{
			name:     "last day of today rewrites with parens collapsed",
			sql:      "SELECT a1 FROM Account WHERE CloseDate <= LAST_DAY(TODAY())",
			opts:     soql.Options{},
			expected: "SELECT a1 FROM Account WHERE CloseDate < NEXT_MONTH",
			table:    "Account",
		},
		{
			name:     "first day of today rewrites with parens collapsed",
			sql:      "SELECT a1 FROM Account WHERE CloseDate >= FIRST_DAY(TODAY())",
			opts:     soql.Options{},
			expected: "SELECT a1 FROM Account WHERE CloseDate > LAST_MONTH",
			table:    "Account",
		},
		{
			name:     "multiple date literals all unquoted",
			sql:      "SELECT a1 FROM Account WHERE d1 > '2023-01-01' AND d2 < '2024-12-31'",
			opts:     soql.Options{},
			expected: "SELECT a1 FROM Account WHERE d1 > 2023-01-01 AND d2 < 2024-12-31",
			table:    "Account",
		},
		{
			name:     "aggregate with default cap still gets no limit",
			sql:      "SELECT count() FROM Contact",
			opts:     soql.Options{Schema: testSchema, DefaultLimit: 10},
			expected: "SELECT count() FROM Contact",
			table:    "Contact",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := translate(t, tt.sql, tt.opts)
			if res.SOQL != tt.expected {
				t.Errorf("unexpected SOQL:\n got: %s\nwant: %s", res.SOQL, tt.expected)
			}
			if res.Table != tt.table {
				t.Errorf("unexpected table: got %q, want %q", res.Table, tt.table)
			}
		})
	}
}

func TestTranslateMalformed(t *testing.T) {
	tests := []struct {
		name string
		sql  string
	}{
		{"no select keyword", "UPDATE Account SET a1 = 1"},
		{"no from keyword", "SELECT a1, a2"},
		{"missing table name", "SELECT a1 FROM "},
		{"empty statement", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := soql.Translate(tt.sql, soql.Options{})
			if err == nil {
				t.Fatalf("expected error for %q", tt.sql)
			}
			var te *soql.TranslationError
			if !errors.As(err, &te) {
				t.Fatalf("expected *TranslationError, got %T", err)
			}
			if te.Code != http.StatusBadRequest {
				t.Errorf("unexpected code: got %d, want %d", te.Code, http.StatusBadRequest)
			}
		})
	}
}

// Already-translated WHERE clauses must pass through untouched, so feeding a
// statement whose dates are unquoted is a no-op on the WHERE text.
func TestTranslateUnquotedDatesUntouched(t *testing.T) {
	res := translate(t, "SELECT a1 FROM Account WHERE d > 2023-01-01 AND e = TODAY", soql.Options{})
	want := "SELECT a1 FROM Account WHERE d > 2023-01-01 AND e = TODAY"
	if res.SOQL != want {
		t.Errorf("unexpected SOQL:\n got: %s\nwant: %s", res.SOQL, want)
	}
}

func TestTranslateConcurrent(t *testing.T) {
	const workers = 8
	done := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				res, err := soql.Translate(
					"SELECT * FROM Contact WHERE CreatedDate > '2024-2-9' LIMIT 7",
					soql.Options{Schema: testSchema, EnsureID: true, DefaultLimit: 4},
				)
				if err != nil {
					done <- err
					return
				}
				want := "SELECT Id, c1, c2, c3, OwnerId, AccountId FROM Contact WHERE CreatedDate > 2024-2-9 LIMIT 7"
				if res.SOQL != want {
					done <- errors.New("unexpected result: " + res.SOQL)
					return
				}
			}
			done <- nil
		}()
	}
	for i := 0; i < workers; i++ {
		if err := <-done; err != nil {
			t.Fatal(err)
		}
	}
}
