package schema

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// token is one element of a parenthesized group: either an opaque nested
// group (captured whole, never flattened) or a single lexeme. Keeping
// nested groups intact means a top-level comma scan never mistakes a
// comma inside "VARCHAR(10)" or "CHECK (price > 0)" for a column
// separator — exactly the case the naive string-split approach got wrong.
//
//nolint:govet // participle grammar tags are not standard struct tags
type token struct {
	Group *group `  @@`
	Value string `| @(Ident|Int|String|Op)`
}

//nolint:govet // participle grammar tags are not standard struct tags
type group struct {
	Items []*token `"(" @@* ")"`
}

//nolint:govet // participle grammar tags are not standard struct tags
type createTableStmt struct {
	Name string `"CREATE" ("TABLE"|"VIRTUAL" "TABLE") ("IF" "NOT" "EXISTS")? @(Ident|String)`
	Body *group `@@`
}

var schemaLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `--[^\r\n]*`},
	{Name: "String", Pattern: `"(?:[^"]|"")*"|'(?:[^']|'')*'|` + "`" + `(?:[^` + "`" + `]|` + "`" + "`" + `)*` + "`" + `|\[[^\]]*\]`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_$]*`},
	{Name: "Int", Pattern: `[0-9]+(\.[0-9]+)?`},
	{Name: "Op", Pattern: `[,;*+\-/<>=.]`},
	{Name: "Punct", Pattern: `[()]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var schemaParser = participle.MustBuild[createTableStmt](
	participle.Lexer(schemaLexer),
	participle.Elide("Comment", "Whitespace"),
	participle.CaseInsensitive("Ident"),
	participle.UseLookahead(2),
)

// parseCreateTable parses a CREATE TABLE statement as stored verbatim in
// the catalog table's sql column, returning its name and the ordered,
// opaque token groups that made up its column/constraint list.
func parseCreateTable(sql string) (*createTableStmt, error) {
	return schemaParser.ParseString("", sql)
}
