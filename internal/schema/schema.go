// Package schema reconstructs the live table/index/view catalog by reading
// the root page of the catalog table (sqlite_master / sqlite_schema,
// always b-tree root page 1) and parsing each row's CREATE statement with
// a small participle grammar, rather than the brittle split-on-comma
// approach the source tool used.
package schema

import (
	"strings"

	"github.com/elordeiro/sqlitecarver/internal/btree"
	"github.com/elordeiro/sqlitecarver/internal/dberrors"
	"github.com/elordeiro/sqlitecarver/internal/record"
)

// Entry is one reconstructed catalog row.
type Entry struct {
	Type     string // "table", "index", "view", "trigger"
	Name     string
	TblName  string
	RootPage int64
	SQL      string
	// Columns is the ordered (name, declared type) list for type=="table"
	// entries, empty when the CREATE statement couldn't be parsed (a
	// virtual table module clause, or genuinely malformed SQL salvaged
	// from free space).
	Columns []Column
}

// Column is one declared column of a table: its name and the type text
// as written in the CREATE TABLE statement (SQLite itself never enforces
// this beyond type affinity, so it is kept verbatim rather than mapped
// onto a closed set of types).
type Column struct {
	Name string
	Type string
}

// Names returns just the ordered column names, for callers (output
// headers) that have no use for the declared type.
func (e Entry) Names() []string {
	names := make([]string, len(e.Columns))
	for i, c := range e.Columns {
		names[i] = c.Name
	}
	return names
}

// ColumnNames parses a CREATE TABLE statement like Columns does and
// returns just the ordered column names, without the declared types.
func ColumnNames(sql string) ([]string, error) {
	cols, err := Columns(sql)
	if err != nil {
		return nil, err
	}
	if cols == nil {
		return nil, nil
	}
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names, nil
}

const CatalogRootPage int64 = 1

// Read walks the catalog table's b-tree (root page 1, by construction)
// and decodes every row into an Entry, attempting to parse table column
// lists along the way.
func Read(w *btree.Walker) ([]Entry, []error) {
	rows := w.Rows(CatalogRootPage)
	var entries []Entry
	var errs []error
	for _, row := range rows {
		e, err := decodeEntry(row.Cell)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		entries = append(entries, e)
	}
	return entries, errs
}

// decodeEntry maps a catalog row's five columns (type, name, tbl_name,
// rootpage, sql) into an Entry and, for tables, parses its column list.
func decodeEntry(c record.Cell) (Entry, error) {
	if len(c.Fields) < 5 {
		return Entry{}, &dberrors.SchemaParseFailedError{
			Table: "<catalog>",
			Err:   dberrors.ErrSchemaParseFailed,
		}
	}
	e := Entry{
		Type:    c.Fields[0].String(),
		Name:    c.Fields[1].String(),
		TblName: c.Fields[2].String(),
	}
	if c.Fields[3].Kind == record.KindInt {
		e.RootPage = c.Fields[3].Int
	}
	e.SQL = c.Fields[4].String()

	if e.Type == "table" && e.SQL != "" {
		cols, err := Columns(e.SQL)
		if err == nil {
			e.Columns = cols
		}
	}
	return e, nil
}

var tableConstraintKeywords = map[string]bool{
	"PRIMARY":    true,
	"UNIQUE":     true,
	"CHECK":      true,
	"FOREIGN":    true,
	"CONSTRAINT": true,
}

// Columns parses a CREATE TABLE statement's column/constraint list and
// returns its actual columns (name and declared type), in declaration
// order, skipping table-level constraint clauses (PRIMARY KEY(...),
// UNIQUE(...), etc). The declared type is whatever token immediately
// follows the column name, verbatim (e.g. "DECIMAL" for
// "amount DECIMAL(10,2)", "INTEGER" for "id INTEGER PRIMARY KEY") — the
// rest of the column-level clause (sizes, constraints) is not part of
// the declared type and is discarded here the same way it always was
// for the name-only list.
func Columns(sql string) ([]Column, error) {
	stmt, err := parseCreateTable(sql)
	if err != nil {
		return nil, &dberrors.SchemaParseFailedError{Table: sql, Err: err}
	}
	if stmt.Body == nil {
		return nil, nil
	}

	var cols []Column
	for _, item := range splitTopLevel(stmt.Body.Items) {
		if len(item) == 0 {
			continue
		}
		first := item[0]
		if first.Group != nil {
			continue // a stray parenthesized group with no name ahead of it
		}
		if tableConstraintKeywords[strings.ToUpper(first.Value)] {
			continue
		}
		col := Column{Name: unquote(first.Value)}
		if len(item) > 1 && item[1].Group == nil {
			col.Type = item[1].Value
		}
		cols = append(cols, col)
	}
	return cols, nil
}

// splitTopLevel splits a token list on "," tokens. Commas nested inside a
// *group are never visited here since group.Items already consumed them
// at parse time, so this only ever sees top-level separators.
func splitTopLevel(items []*token) [][]*token {
	var groups [][]*token
	var current []*token
	for _, it := range items {
		if it.Group == nil && it.Value == "," {
			groups = append(groups, current)
			current = nil
			continue
		}
		current = append(current, it)
	}
	groups = append(groups, current)
	return groups
}

func unquote(s string) string {
	if len(s) < 2 {
		return s
	}
	switch {
	case s[0] == '"' && s[len(s)-1] == '"':
		return strings.ReplaceAll(s[1:len(s)-1], `""`, `"`)
	case s[0] == '\'' && s[len(s)-1] == '\'':
		return strings.ReplaceAll(s[1:len(s)-1], "''", "'")
	case s[0] == '`' && s[len(s)-1] == '`':
		return strings.ReplaceAll(s[1:len(s)-1], "``", "`")
	case s[0] == '[' && s[len(s)-1] == ']':
		return s[1 : len(s)-1]
	default:
		return s
	}
}
