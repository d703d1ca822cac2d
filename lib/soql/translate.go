// Package soql translates a constrained dialect of SQL SELECT statements
// into SOQL, the query language of a Salesforce-style record store.
//
// The two dialects are close enough to be confused and different enough to
// break: SOQL has no SELECT *, no JOINs, a zero-argument count(), unquoted
// date literals, and its own set of date pseudo-constants. The translator is
// a deterministic, side-effect-free heuristic rewriter over those known
// incompatibilities, not a SQL parser and not a verifier. Statements it
// cannot recognize at all (no SELECT or FROM boundary) are rejected;
// everything else gets a best-effort rewrite.
package soql

import "strings"

// Schema supplies the ordered column list for a table. A false return means
// the table is unknown and every schema-dependent fixup is disabled for that
// call.
type Schema interface {
	ColumnsFor(table string) ([]string, bool)
}

// Options control the fixup rules. The zero value translates with every
// schema-dependent and limit rule disabled.
type Options struct {
	// Schema validates field names and expands wildcard field lists.
	Schema Schema
	// EnsureID appends the primary-key field to non-aggregate field lists
	// that lack it.
	EnsureID bool
	// DefaultLimit caps non-aggregate statements that carry no explicit
	// LIMIT. Zero means no implicit cap.
	DefaultLimit int
}

// Result is the translated statement together with the table it reads from.
type Result struct {
	SOQL  string
	Table string
}

// Translate converts one SQL SELECT statement into SOQL. It is a pure
// function over its inputs and safe for concurrent use.
func Translate(sql string, opts Options) (*Result, error) {
	clauses, err := ExtractClauses(sql)
	if err != nil {
		return nil, err
	}
	clauses.applyFixups(opts)
	return &Result{SOQL: clauses.assemble(), Table: clauses.Table}, nil
}

// assemble concatenates the fixed-up clauses in canonical order, omitting
// absent ones. Pure formatting; no validation happens here.
func (c *Clauses) assemble() string {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(c.FieldsText)
	b.WriteString(" FROM ")
	b.WriteString(c.Table)
	if c.Where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(c.Where)
	}
	if c.GroupBy != "" {
		b.WriteString(" GROUP BY ")
		b.WriteString(c.GroupBy)
	}
	if c.OrderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(c.OrderBy)
	}
	if c.Limit != "" {
		b.WriteString(" LIMIT ")
		b.WriteString(c.Limit)
	}
	return b.String()
}
