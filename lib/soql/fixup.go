package soql

import (
	"regexp"
	"strconv"
	"strings"
)

// AllFields is the output-dialect sentinel emitted for a wildcard field list
// when no schema is known for the table.
const AllFields = "FIELDS(ALL)"

// Pseudo-constant rewrites for WHERE clauses. The input dialect spells date
// boundaries with functions and half-open month markers the output dialect
// does not have. TODAY() is replaced before these run, so the LAST_DAY and
// FIRST_DAY patterns tolerate both TODAY and TODAY().
var (
	reMonthEnd   = regexp.MustCompile(`<=\s*THIS_MONTH_END`)
	reMonthStart = regexp.MustCompile(`>=\s*THIS_MONTH_START`)
	reLastDay    = regexp.MustCompile(`<=\s*LAST_DAY\(TODAY(\(\))?\)`)
	reFirstDay   = regexp.MustCompile(`>=\s*FIRST_DAY\(TODAY(\(\))?\)`)

	// Single-quoted ISO date literal, 1-2 digit month and day tolerated.
	reQuotedDate = regexp.MustCompile(`'\d{4}-\d{1,2}-\d{1,2}'`)
)

// applyFixups rewrites the extracted clauses in place. The rules run in a
// fixed order; later rules depend on state left by earlier ones.
func (c *Clauses) applyFixups(opts Options) {
	var cols []string
	known := false
	if opts.Schema != nil {
		cols, known = opts.Schema.ColumnsFor(c.Table)
	}

	// 1. Wildcard expansion. Both branches count Id as present so the
	// forced-key rule does not fire on an already complete field list.
	idPresent := containsField(c.Fields, "Id")
	if c.FieldsText == "*" {
		if known {
			c.setFields(append([]string(nil), cols...))
		} else {
			c.setFields([]string{AllFields})
		}
		idPresent = true
	}

	// 2. count(*) has no output-dialect equivalent; the zero-argument form
	// does the same job.
	if strings.EqualFold(strings.TrimSpace(c.FieldsText), "count(*)") {
		c.setFields([]string{"count()"})
	}

	// 3. Forced key inclusion.
	if opts.EnsureID && !c.Aggregate && !idPresent {
		c.setFields(append(c.Fields, "Id"))
	}

	// 4. Relationship key injection: downstream consumers usually need the
	// foreign keys even when the caller did not ask for them.
	if !c.Aggregate && known {
		fields := c.Fields
		for _, col := range cols {
			if !strings.HasSuffix(col, "Id") && !strings.HasSuffix(col, "Id__c") {
				continue
			}
			if !containsField(fields, col) {
				fields = append(fields, col)
			}
		}
		if len(fields) != len(c.Fields) {
			c.setFields(fields)
		}
	}

	// 5. Prune hallucinated columns. Parenthesized entries are aggregate or
	// function expressions and are kept as-is.
	if known {
		kept := make([]string, 0, len(c.Fields))
		for _, f := range c.Fields {
			if strings.Contains(f, "(") || containsField(cols, f) {
				kept = append(kept, f)
			}
		}
		c.setFields(kept)
	}

	// 6. Date spelling fixups in the WHERE clause.
	if c.Where != "" {
		c.Where = fixWhereDates(c.Where)
	}

	// 7. Limit resolution. An explicit LIMIT always wins; aggregates never
	// get an implicit one.
	if c.Limit == "" && !c.Aggregate && opts.DefaultLimit > 0 {
		c.Limit = strconv.Itoa(opts.DefaultLimit)
	}
}

// fixWhereDates rewrites date pseudo-constants and unquotes ISO date
// literals. Unquoting loops to a fixed point because each removal shifts the
// offsets of later matches; on already-unquoted input it is a no-op.
func fixWhereDates(where string) string {
	where = strings.ReplaceAll(where, "TODAY()", "TODAY")
	where = reMonthEnd.ReplaceAllString(where, "< NEXT_MONTH")
	where = reMonthStart.ReplaceAllString(where, "> LAST_MONTH")
	where = reLastDay.ReplaceAllString(where, "< NEXT_MONTH")
	where = reFirstDay.ReplaceAllString(where, "> LAST_MONTH")

	for {
		loc := reQuotedDate.FindStringIndex(where)
		if loc == nil {
			return where
		}
		where = where[:loc[0]] + where[loc[0]+1:loc[1]-1] + where[loc[1]:]
	}
}

// setFields replaces the field list and rebuilds the field-list text from the
// surviving entries.
func (c *Clauses) setFields(fields []string) {
	c.Fields = fields
	c.FieldsText = strings.Join(fields, ", ")
}

func containsField(fields []string, name string) bool {
	for _, f := range fields {
		if f == name {
			return true
		}
	}
	return false
}
