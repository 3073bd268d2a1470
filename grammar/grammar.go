// Package grammar parses the textual expression surface into an expression
// context: `sqrt(x*x + y*y) - 1` and friends, with the usual arithmetic
// precedence, unary minus, and min/max/sqrt/abs/square/recip calls.
// Identifiers other than x, y, and z become named variable bindings.
package grammar

import (
	"fmt"

	"github.com/implicitcad/carve/expr"
)

// Expression is a sum of terms.
type Expression struct {
	Left *Term     `@@`
	Rest []*SumOp  `@@*`
}

// SumOp is one "+ term" or "- term" continuation.
type SumOp struct {
	Op   string `@("+" | "-")`
	Term *Term  `@@`
}

// Term is a product of unary factors.
type Term struct {
	Left *Unary      `@@`
	Rest []*FactorOp `@@*`
}

// FactorOp is one "* unary" or "/ unary" continuation.
type FactorOp struct {
	Op    string `@("*" | "/")`
	Unary *Unary `@@`
}

// Unary is an atom under any number of leading minus signs.
type Unary struct {
	Neg  *Unary `  "-" @@`
	Atom *Atom  `| @@`
}

// Atom is a literal, a function call, an input or variable reference, or a
// parenthesized subexpression.
type Atom struct {
	Number *float64    `  @Number`
	Call   *Call       `| @@`
	Ident  *string     `| @Ident`
	Sub    *Expression `| "(" @@ ")"`
}

// Call is a named function application.
type Call struct {
	Name string        `@Ident`
	Args []*Expression `"(" @@ ("," @@)* ")"`
}

// Build folds the parsed tree into ctx and returns the root node.
func (e *Expression) Build(ctx *expr.Context) (expr.Node, error) {
	n, err := e.Left.build(ctx)
	if err != nil {
		return 0, err
	}
	for _, op := range e.Rest {
		rhs, err := op.Term.build(ctx)
		if err != nil {
			return 0, err
		}
		if op.Op == "+" {
			n = ctx.Add(n, rhs)
		} else {
			n = ctx.Sub(n, rhs)
		}
	}
	return n, nil
}

func (t *Term) build(ctx *expr.Context) (expr.Node, error) {
	n, err := t.Left.build(ctx)
	if err != nil {
		return 0, err
	}
	for _, op := range t.Rest {
		rhs, err := op.Unary.build(ctx)
		if err != nil {
			return 0, err
		}
		if op.Op == "*" {
			n = ctx.Mul(n, rhs)
		} else {
			n = ctx.Div(n, rhs)
		}
	}
	return n, nil
}

func (u *Unary) build(ctx *expr.Context) (expr.Node, error) {
	if u.Neg != nil {
		n, err := u.Neg.build(ctx)
		if err != nil {
			return 0, err
		}
		return ctx.Neg(n), nil
	}
	return u.Atom.build(ctx)
}

func (a *Atom) build(ctx *expr.Context) (expr.Node, error) {
	switch {
	case a.Number != nil:
		return ctx.Const(float32(*a.Number)), nil
	case a.Call != nil:
		return a.Call.build(ctx)
	case a.Ident != nil:
		switch *a.Ident {
		case "x":
			return ctx.X(), nil
		case "y":
			return ctx.Y(), nil
		case "z":
			return ctx.Z(), nil
		default:
			return ctx.Var(*a.Ident), nil
		}
	default:
		return a.Sub.Build(ctx)
	}
}

func (c *Call) build(ctx *expr.Context) (expr.Node, error) {
	args := make([]expr.Node, len(c.Args))
	for i, e := range c.Args {
		n, err := e.Build(ctx)
		if err != nil {
			return 0, err
		}
		args[i] = n
	}
	unary := func(f func(expr.Node) expr.Node) (expr.Node, error) {
		if len(args) != 1 {
			return 0, fmt.Errorf("grammar: %s takes 1 argument, got %d", c.Name, len(args))
		}
		return f(args[0]), nil
	}
	binary := func(f func(a, b expr.Node) expr.Node) (expr.Node, error) {
		if len(args) != 2 {
			return 0, fmt.Errorf("grammar: %s takes 2 arguments, got %d", c.Name, len(args))
		}
		return f(args[0], args[1]), nil
	}
	switch c.Name {
	case "sqrt":
		return unary(ctx.Sqrt)
	case "abs":
		return unary(ctx.Abs)
	case "square":
		return unary(ctx.Square)
	case "recip":
		return unary(ctx.Recip)
	case "neg":
		return unary(ctx.Neg)
	case "min":
		return binary(ctx.Min)
	case "max":
		return binary(ctx.Max)
	}
	return 0, fmt.Errorf("grammar: unknown function %q", c.Name)
}
