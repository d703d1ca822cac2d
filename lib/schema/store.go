// Package schema holds the table-to-columns directory that drives the
// schema-aware translation fixups and the prompt text describing the data
// model to the language model.
package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

// ForeignKey declares that one table's column references another's, in
// Table.Column form on both sides.
type ForeignKey struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Store is the read-only table directory. Lookups take a read lock so the
// mapping can be swapped out by a live reload without disturbing callers.
type Store struct {
	mu     sync.RWMutex
	tables map[string][]string
	fks    []ForeignKey
}

// File is the on-disk JSON layout of a schema document.
type File struct {
	Tables      map[string][]string `json:"tables"`
	ForeignKeys []ForeignKey        `json:"foreignKeys,omitempty"`
}

// NewStore builds a Store from an in-memory mapping. Table names are
// case-sensitive and must be non-empty.
func NewStore(tables map[string][]string, fks []ForeignKey) (*Store, error) {
	normalized, err := normalizeTables(tables)
	if err != nil {
		return nil, err
	}
	return &Store{tables: normalized, fks: append([]ForeignKey(nil), fks...)}, nil
}

// LoadFile reads a schema document from disk.
func LoadFile(path string) (*Store, error) {
	s := &Store{}
	if err := s.Reload(path); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload replaces the mapping with the contents of path. On any error the
// previous mapping stays in place.
func (s *Store) Reload(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("schema: read %s: %w", path, err)
	}
	var doc File
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("schema: parse %s: %w", path, err)
	}
	tables, err := normalizeTables(doc.Tables)
	if err != nil {
		return fmt.Errorf("schema: %s: %w", path, err)
	}
	s.mu.Lock()
	s.tables = tables
	s.fks = doc.ForeignKeys
	s.mu.Unlock()
	return nil
}

// ColumnsFor returns a copy of the ordered column list for table, or false
// when the table is unknown.
func (s *Store) ColumnsFor(table string) ([]string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cols, ok := s.tables[table]
	if !ok {
		return nil, false
	}
	return append([]string(nil), cols...), true
}

// Tables lists the known table names, sorted.
func (s *Store) Tables() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tables := make([]string, 0, len(s.tables))
	for t := range s.tables {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	return tables
}

// ForeignKeys returns a copy of the declared foreign-key pairs.
func (s *Store) ForeignKeys() []ForeignKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ForeignKey(nil), s.fks...)
}

// Description renders the schema as prompt text: each table with its column
// list, then the relationship notes and the query rules the model has to
// follow when writing SQL against this store.
func (s *Store) Description() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var b strings.Builder
	names := make([]string, 0, len(s.tables))
	for t := range s.tables {
		names = append(names, t)
	}
	sort.Strings(names)
	for _, t := range names {
		fmt.Fprintf(&b, "Table: %s\n", t)
		fmt.Fprintf(&b, "Columns: %s\n", strings.Join(s.tables[t], ", "))
	}

	b.WriteString("Notes about the schema:\n")
	b.WriteString("* The primary key for all tables is Id\n")
	if len(s.fks) > 0 {
		pairs := make([]string, len(s.fks))
		for i, fk := range s.fks {
			pairs[i] = fk.From + "=" + fk.To
		}
		fmt.Fprintf(&b,
			"* The following column names are foreign keys to the following tables, in the format [Table.Column=Table.Column, ...]:\n[%s]\n",
			strings.Join(pairs, ", "))
	}
	b.WriteString("* Only query one table at a time.\n")
	b.WriteString("* Do not perform subselect or subqueries in a SQL statement.\n")
	b.WriteString("* Do not use JOINs. Take it step by step to do multiple SELECTs to get the data you need.\n")
	b.WriteString("* Do not use SELECTs in the where clause\n")
	return b.String()
}

func normalizeTables(src map[string][]string) (map[string][]string, error) {
	dst := make(map[string][]string, len(src))
	for name, cols := range src {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			return nil, fmt.Errorf("table name cannot be empty")
		}
		if _, exists := dst[trimmed]; exists {
			return nil, fmt.Errorf("duplicate table name %q", trimmed)
		}
		dst[trimmed] = append([]string(nil), cols...)
	}
	return dst, nil
}
