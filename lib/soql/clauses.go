package soql

import (
	"fmt"
	"net/http"
	"strings"
	"unicode"
)

// Clauses holds the parts of a single SELECT statement after clause
// extraction. Where, GroupBy, OrderBy and Limit are optional; the empty
// string means the clause is absent. Limit keeps the literal digit string
// from the source text.
type Clauses struct {
	FieldsText string
	Fields     []string
	Table      string
	Aggregate  bool
	Where      string
	GroupBy    string
	OrderBy    string
	Limit      string
}

// Aggregate function names recognized in the field list. A name immediately
// followed by "(" marks the whole statement as an aggregate query.
var aggregateNames = []string{"count(", "avg(", "count_distinct(", "min(", "max(", "sum("}

// ExtractClauses splits a raw SELECT statement into its clause fragments.
// Scanning is a fixed-order single pass over keyword boundaries:
// SELECT -> field list -> FROM -> table -> WHERE? -> GROUP BY? -> ORDER BY? -> LIMIT?.
// Missing SELECT or FROM boundaries are fatal; everything after the table is
// optional.
func ExtractClauses(sql string) (*Clauses, error) {
	_, after, ok := scanKeyword(sql, "select")
	if !ok {
		return nil, &TranslationError{
			Code:    http.StatusBadRequest,
			Message: "translator: statement has no SELECT keyword",
		}
	}
	rest := sql[after:]

	start, after, ok := scanKeyword(rest, "from")
	if !ok {
		return nil, &TranslationError{
			Code:    http.StatusBadRequest,
			Message: "translator: statement has no FROM keyword",
		}
	}
	fieldsText := strings.TrimSpace(rest[:start])
	if fieldsText == "" {
		return nil, &TranslationError{
			Code:    http.StatusBadRequest,
			Message: "translator: statement has an empty field list",
		}
	}

	table, rest := readIdentifier(rest[after:])
	if table == "" {
		return nil, &TranslationError{
			Code:    http.StatusBadRequest,
			Message: fmt.Sprintf("translator: no table name after FROM in %q", sql),
		}
	}

	c := &Clauses{
		FieldsText: fieldsText,
		Fields:     splitFields(fieldsText),
		Table:      table,
		Aggregate:  isAggregate(fieldsText),
	}

	if _, after, ok := scanKeyword(rest, "where"); ok {
		c.Where, rest = cutAtTerminator(rest[after:], "group", "order", "limit")
	}
	if _, after, ok := scanKeyword(rest, "group", "by"); ok {
		c.GroupBy, rest = cutAtTerminator(rest[after:], "order", "limit")
	}
	if _, after, ok := scanKeyword(rest, "order", "by"); ok {
		c.OrderBy, rest = cutAtTerminator(rest[after:], "limit")
	}
	if _, after, ok := scanKeyword(rest, "limit"); ok {
		c.Limit = readDigits(rest[after:])
	}
	return c, nil
}

// scanKeyword finds the first case-insensitive occurrence of the given word
// sequence where every word is followed by at least one whitespace character.
// It returns the index of the first word, the index just past the whitespace
// after the last word, and whether a match was found.
func scanKeyword(s string, words ...string) (int, int, bool) {
	lower := strings.ToLower(s)
	first := words[0]
	for from := 0; ; {
		i := strings.Index(lower[from:], first)
		if i < 0 {
			return 0, 0, false
		}
		start := from + i
		pos := start
		matched := true
		for _, w := range words {
			if !strings.HasPrefix(lower[pos:], w) {
				matched = false
				break
			}
			pos += len(w)
			n := leadingSpace(s[pos:])
			if n == 0 {
				matched = false
				break
			}
			pos += n
		}
		if matched {
			return start, pos, true
		}
		from = start + 1
	}
}

// cutAtTerminator splits s at the earliest case-insensitive occurrence of any
// terminator word, returning the trimmed clause text and the remainder
// starting at the terminator. Without a terminator the whole string is the
// clause.
func cutAtTerminator(s string, terms ...string) (string, string) {
	lower := strings.ToLower(s)
	cut := len(s)
	for _, term := range terms {
		if i := strings.Index(lower, term); i >= 0 && i < cut {
			cut = i
		}
	}
	return strings.TrimSpace(s[:cut]), s[cut:]
}

// splitFields tokenizes the field-list text on top-level commas. A
// parenthesized argument list is atomic, but only one level of nesting is
// tracked: a function call argument that itself contains a call with commas
// is split incorrectly. That limitation is kept on purpose; callers accept a
// best-effort split.
func splitFields(text string) []string {
	var fields []string
	inParen := false
	start := 0
	for i, r := range text {
		switch r {
		case '(':
			inParen = true
		case ')':
			inParen = false
		case ',':
			if !inParen {
				if f := strings.TrimSpace(text[start:i]); f != "" {
					fields = append(fields, f)
				}
				start = i + 1
			}
		}
	}
	if f := strings.TrimSpace(text[start:]); f != "" {
		fields = append(fields, f)
	}
	return fields
}

func isAggregate(fieldsText string) bool {
	lower := strings.ToLower(fieldsText)
	for _, name := range aggregateNames {
		if strings.Contains(lower, name) {
			return true
		}
	}
	return false
}

// readIdentifier returns the leading word-character run of s and the text
// after it, skipping whitespace on both sides.
func readIdentifier(s string) (string, string) {
	s = s[leadingSpace(s):]
	end := len(s)
	for i, r := range s {
		if !isWordRune(r) {
			end = i
			break
		}
	}
	ident := s[:end]
	rest := s[end:]
	return ident, rest[leadingSpace(rest):]
}

func readDigits(s string) string {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	return s[:end]
}

func leadingSpace(s string) int {
	for i, r := range s {
		if !unicode.IsSpace(r) {
			return i
		}
	}
	return len(s)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
