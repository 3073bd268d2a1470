package grammar

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/fatih/color"

	"github.com/implicitcad/carve/expr"
)

var parser = participle.MustBuild[Expression](
	participle.Lexer(ExprLexer),
	participle.Elide("Whitespace"),
	// Calls and bare identifiers both start with Ident.
	participle.UseLookahead(2),
)

// Parse parses src into ctx and returns the root node. name labels
// positions in errors (a file name, or anything descriptive).
func Parse(name, src string, ctx *expr.Context) (expr.Node, error) {
	ast, err := parser.ParseString(name, src)
	if err != nil {
		return 0, err
	}
	return ast.Build(ctx)
}

// ReportParseError prints a friendly caret-style parse error message.
func ReportParseError(src string, err error) {
	pe, ok := err.(participle.Error)
	if !ok {
		color.Red("error: %s", err)
		return
	}

	pos := pe.Position()
	lines := strings.Split(src, "\n")
	if pos.Line <= 0 || pos.Line > len(lines) {
		color.Red("syntax error at unknown location: %s", err)
		return
	}

	line := lines[pos.Line-1]
	caret := strings.Repeat(" ", pos.Column-1) + "^"

	color.Red("syntax error at line %d, column %d:", pos.Line, pos.Column)
	fmt.Println(line)
	color.HiRed(caret)
	fmt.Printf("-> %s\n", pe.Message())
}
