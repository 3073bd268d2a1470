// Command carve renders a 2D slice of an implicit function's zero-set,
// either as ASCII art on stdout or as a PNG.
//
// Usage:
//
//	carve -e "sqrt(x*x + y*y) - 1" -n 32
//	carve -e "min(sqrt(x*x+y*y)-1, y)" -n 512 -o out.png
package main

import (
	"flag"
	"fmt"
	"image"
	"image/png"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/tliron/commonlog"

	"github.com/implicitcad/carve"
	"github.com/implicitcad/carve/expr"
	"github.com/implicitcad/carve/grammar"
	"github.com/implicitcad/carve/render"
)

var log = commonlog.GetLogger("carve.cmd")

func main() {
	var (
		exprFlag    = flag.String("e", "", "expression to render (required)")
		sizeFlag    = flag.Int("n", 64, "image size in pixels")
		outFlag     = flag.String("o", "", "write a PNG here instead of ASCII to stdout")
		zFlag       = flag.Float64("z", 0, "slice height")
		interpFlag  = flag.Bool("interpreter", false, "force the interpreter family")
		verboseFlag = flag.Int("v", 0, "log verbosity")
	)
	flag.Parse()
	commonlog.Configure(*verboseFlag, nil)

	if *exprFlag == "" {
		fmt.Fprintln(os.Stderr, "usage: carve -e <expression> [-n size] [-o out.png]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	ctx := expr.NewContext()
	root, err := grammar.Parse("<expr>", *exprFlag, ctx)
	if err != nil {
		grammar.ReportParseError(*exprFlag, err)
		os.Exit(1)
	}

	cfg := carve.NewConfig()
	if *interpFlag {
		cfg = cfg.WithInterpreter()
	}
	tape, err := carve.BuildTape(expr.NewView(ctx, root), cfg)
	if err != nil {
		color.Red("failed to build tape: %s", err)
		os.Exit(1)
	}
	log.Infof("tape: %d ops, %d choices, %d slots", tape.Len(), tape.ChoiceCount(), tape.SlotCount())

	start := time.Now()
	img, err := render.Render2D(tape, render.Config{
		ImageSize: *sizeFlag,
		Z:         float32(*zFlag),
	})
	if err != nil {
		color.Red("render failed: %s", err)
		os.Exit(1)
	}
	log.Infof("rendered %dx%d in %s", *sizeFlag, *sizeFlag, time.Since(start))

	if *outFlag == "" {
		printASCII(img)
		return
	}
	f, err := os.Create(*outFlag)
	if err != nil {
		color.Red("%s", err)
		os.Exit(1)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		color.Red("failed to encode PNG: %s", err)
		os.Exit(1)
	}
	color.Green("wrote %s", *outFlag)
}

func printASCII(img *image.Gray) {
	b := img.Bounds()
	var sb strings.Builder
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.GrayAt(x, y).Y != 0 {
				sb.WriteByte('X')
			} else {
				sb.WriteByte(' ')
			}
		}
		sb.WriteByte('\n')
	}
	fmt.Print(sb.String())
}
