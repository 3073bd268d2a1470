package grammar

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// ExprLexer tokenizes the implicit-function expression surface:
// identifiers (spatial inputs, named variables, function names), decimal
// number literals, arithmetic operators, and call punctuation.
var ExprLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		{"Ident", `[a-zA-Z_][a-zA-Z0-9_]*`, nil},
		{"Number", `[0-9]+(\.[0-9]+)?([eE][+-]?[0-9]+)?|\.[0-9]+`, nil},
		{"Operator", `[-+*/]`, nil},
		{"Punctuation", `[(),]`, nil},
		{"Whitespace", `[ \t\r\n]+`, nil},
	},
})
