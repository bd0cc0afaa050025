package query

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// FilterLexer tokenizes filter expressions such as
//
//	thread = "worker-1" and not (lock ~ db or kind = Released)
//
// Keywords are plain identifiers matched by value in the grammar, so
// unquoted values such as lock-1 or thread.pool stay single tokens.
var FilterLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `[\s\t\n\r]+`},

	// Operators
	{Name: "NotEq", Pattern: `!=`},
	{Name: "Eq", Pattern: `==?`},
	{Name: "Match", Pattern: `~`},
	{Name: "LParen", Pattern: `\(`},
	{Name: "RParen", Pattern: `\)`},

	// Literals
	{Name: "String", Pattern: `"(?:[^"\\]|\\.)*"`},
	{Name: "Number", Pattern: `[-+]?[0-9]+(\.[0-9]+)?`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_.:\-]*`},
})
