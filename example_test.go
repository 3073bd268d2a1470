package carve_test

import (
	"fmt"

	"github.com/implicitcad/carve"
	"github.com/implicitcad/carve/api"
	"github.com/implicitcad/carve/expr"
	"github.com/implicitcad/carve/grammar"
)

// Example builds the unit circle from text, proves a region of space
// entirely inside it with one interval evaluation, and prunes a min whose
// outcome the region decides.
func Example() {
	ctx := expr.NewContext()
	root, err := grammar.Parse("example", "min(sqrt(x*x + y*y) - 1, y)", ctx)
	if err != nil {
		panic(err)
	}
	tape, err := carve.BuildTape(expr.NewView(ctx, root), carve.NewConfig())
	if err != nil {
		panic(err)
	}

	ev, err := carve.NewIntervalEvaluator(tape)
	if err != nil {
		panic(err)
	}
	// Far below the x axis, y always wins the min.
	out := ev.Eval(
		api.NewInterval(-0.1, 0.1),
		api.NewInterval(-8, -6),
		api.PointInterval(0),
		nil,
	)
	fmt.Println("bounds:", out.Lower, out.Upper)
	fmt.Println("simplify:", ev.SimplifyRequested())

	simplified, err := ev.Simplify()
	if err != nil {
		panic(err)
	}
	fmt.Println("choices before:", tape.ChoiceCount(), "after:", simplified.ChoiceCount())

	// Output:
	// bounds: -8 -6
	// simplify: true
	// choices before: 1 after: 0
}
