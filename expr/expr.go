// Package expr implements the reference expression front-end: a deduplicated
// graph of math operations built bottom-up, which the lowering pipeline
// consumes through the api.Expr contract.
package expr

import (
	"fmt"
	"math"

	"github.com/implicitcad/carve/api"
)

// Node identifies one node inside a Context.
type Node uint32

type node struct {
	op       api.ExprOp
	lhs, rhs uint32
	imm      float32
}

// key is the structural identity of a node, used for hash-consing.
// Immediates are keyed on their bit pattern so that 0.0 and -0.0 stay
// distinct and NaN constants dedup.
type key struct {
	op       api.ExprOp
	lhs, rhs uint32
	imm      uint32
}

// Context owns a set of expression nodes. Construction deduplicates
// structurally identical nodes and folds constant subtrees, so the graph
// stays a compact DAG no matter how the caller assembles it.
//
// A Context is not safe for concurrent mutation; once an expression is
// lowered to a tape the Context is no longer needed.
type Context struct {
	nodes  []node
	dedup  map[key]Node
	vars   []string
	varIds map[string]uint32
}

// NewContext returns an empty expression context.
func NewContext() *Context {
	return &Context{
		dedup:  map[key]Node{},
		varIds: map[string]uint32{},
	}
}

func (c *Context) push(op api.ExprOp, lhs, rhs uint32, imm float32) Node {
	k := key{op: op, lhs: lhs, rhs: rhs, imm: math.Float32bits(imm)}
	if n, ok := c.dedup[k]; ok {
		return n
	}
	n := Node(len(c.nodes))
	c.nodes = append(c.nodes, node{op: op, lhs: lhs, rhs: rhs, imm: imm})
	c.dedup[k] = n
	return n
}

// X returns the node reading the first spatial input.
func (c *Context) X() Node { return c.push(api.ExprInput, 0, 0, 0) }

// Y returns the node reading the second spatial input.
func (c *Context) Y() Node { return c.push(api.ExprInput, 1, 0, 0) }

// Z returns the node reading the third spatial input.
func (c *Context) Z() Node { return c.push(api.ExprInput, 2, 0, 0) }

// Const returns a constant node.
func (c *Context) Const(v float32) Node { return c.push(api.ExprConst, 0, 0, v) }

// Var returns the node reading the named variable binding, allocating a new
// variable id on first use.
func (c *Context) Var(name string) Node {
	id, ok := c.varIds[name]
	if !ok {
		id = uint32(len(c.vars))
		c.vars = append(c.vars, name)
		c.varIds[name] = id
	}
	return c.push(api.ExprVar, id, 0, 0)
}

// VarName returns the name bound to the given variable id.
func (c *Context) VarName(id uint32) string { return c.vars[id] }

func (c *Context) unary(op api.ExprOp, a Node) Node {
	if n := c.nodes[a]; n.op == api.ExprConst {
		return c.Const(foldUnary(op, n.imm))
	}
	return c.push(op, uint32(a), 0, 0)
}

func (c *Context) binary(op api.ExprOp, a, b Node) Node {
	an, bn := c.nodes[a], c.nodes[b]
	if an.op == api.ExprConst && bn.op == api.ExprConst {
		return c.Const(foldBinary(op, an.imm, bn.imm))
	}
	return c.push(op, uint32(a), uint32(b), 0)
}

// Neg returns -a.
func (c *Context) Neg(a Node) Node { return c.unary(api.ExprNeg, a) }

// Abs returns |a|.
func (c *Context) Abs(a Node) Node { return c.unary(api.ExprAbs, a) }

// Recip returns 1/a.
func (c *Context) Recip(a Node) Node { return c.unary(api.ExprRecip, a) }

// Sqrt returns the square root of a.
func (c *Context) Sqrt(a Node) Node { return c.unary(api.ExprSqrt, a) }

// Square returns a*a.
func (c *Context) Square(a Node) Node { return c.unary(api.ExprSquare, a) }

// Add returns a+b.
func (c *Context) Add(a, b Node) Node { return c.binary(api.ExprAdd, a, b) }

// Sub returns a-b.
func (c *Context) Sub(a, b Node) Node { return c.binary(api.ExprSub, a, b) }

// Mul returns a*b.
func (c *Context) Mul(a, b Node) Node { return c.binary(api.ExprMul, a, b) }

// Div returns a/b.
func (c *Context) Div(a, b Node) Node { return c.binary(api.ExprDiv, a, b) }

// Min returns the smaller of a and b.
func (c *Context) Min(a, b Node) Node { return c.binary(api.ExprMin, a, b) }

// Max returns the larger of a and b.
func (c *Context) Max(a, b Node) Node { return c.binary(api.ExprMax, a, b) }

func foldUnary(op api.ExprOp, v float32) float32 {
	switch op {
	case api.ExprNeg:
		return -v
	case api.ExprAbs:
		return float32(math.Abs(float64(v)))
	case api.ExprRecip:
		return 1 / v
	case api.ExprSqrt:
		return float32(math.Sqrt(float64(v)))
	case api.ExprSquare:
		return v * v
	}
	panic(fmt.Sprintf("expr: fold of non-unary op %s", op))
}

func foldBinary(op api.ExprOp, a, b float32) float32 {
	switch op {
	case api.ExprAdd:
		return a + b
	case api.ExprSub:
		return a - b
	case api.ExprMul:
		return a * b
	case api.ExprDiv:
		return a / b
	case api.ExprMin:
		return float32(math.Min(float64(a), float64(b)))
	case api.ExprMax:
		return float32(math.Max(float64(a), float64(b)))
	}
	panic(fmt.Sprintf("expr: fold of non-binary op %s", op))
}

// View wraps a context and a root node into the api.Expr contract consumed
// by lowering.
type View struct {
	ctx  *Context
	root Node
}

// NewView returns the expression rooted at root.
func NewView(c *Context, root Node) View {
	if int(root) >= len(c.nodes) {
		panic("expr: root node out of range")
	}
	return View{ctx: c, root: root}
}

// Len implements api.Expr.
func (v View) Len() int { return len(v.ctx.nodes) }

// Root implements api.Expr.
func (v View) Root() int { return int(v.root) }

// Op implements api.Expr.
func (v View) Op(i int) api.ExprOp { return v.ctx.nodes[i].op }

// Operands implements api.Expr.
func (v View) Operands(i int) (lhs, rhs int) {
	n := v.ctx.nodes[i]
	return int(n.lhs), int(n.rhs)
}

// Imm implements api.Expr.
func (v View) Imm(i int) float32 { return v.ctx.nodes[i].imm }

// VarCount implements api.Expr.
func (v View) VarCount() int { return len(v.ctx.vars) }
