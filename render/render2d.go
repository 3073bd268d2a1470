// Package render rasterizes the zero-set of an implicit function tape. The
// 2D renderer walks the image as a hierarchy of tiles: interval evaluation
// proves whole tiles inside or outside in one call, ambiguous tiles
// re-render under a simplified tape, and only the finest level touches
// individual pixels. Tiles fan out across a worker pool; each worker owns
// its evaluators and recycles their storage, so tapes are shared read-only
// and no lock guards the hot path.
package render

import (
	"errors"
	"image"
	"runtime"
	"sync"

	"github.com/implicitcad/carve"
	"github.com/implicitcad/carve/api"
)

// Config controls Render2D. The zero value renders a 256-pixel image of the
// [-1, 1] square at z = 0 with the default tile recursion.
type Config struct {
	// ImageSize is the output width and height in pixels.
	ImageSize int
	// TileSizes is the tile side length per recursion level, coarse to
	// fine. The recommended family default is {64, 8}.
	TileSizes []int
	// Z is the slice height.
	Z float32
	// Workers bounds render parallelism; it defaults to GOMAXPROCS.
	Workers int
}

func (c Config) withDefaults() Config {
	if c.ImageSize == 0 {
		c.ImageSize = 256
	}
	if len(c.TileSizes) == 0 {
		c.TileSizes = []int{64, 8}
	}
	if c.Workers == 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	return c
}

// Render2D rasterizes the tape's zero-set over the [-1, 1]² square: pixels
// where the function is negative come out white (255), the rest black.
// The tape must not read variable bindings.
func Render2D(t *carve.Tape, cfg Config) (*image.Gray, error) {
	cfg = cfg.withDefaults()
	if t.VarCount() != 0 {
		return nil, errors.New("render: tape reads variable bindings")
	}
	for i, s := range cfg.TileSizes {
		if s <= 0 || (i > 0 && cfg.TileSizes[i-1]%s != 0) {
			return nil, errors.New("render: tile sizes must be positive and nested")
		}
	}

	img := image.NewGray(image.Rect(0, 0, cfg.ImageSize, cfg.ImageSize))

	type tile struct{ x, y int }
	step := cfg.TileSizes[0]
	tiles := make(chan tile)
	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := &worker{cfg: cfg, img: img}
			for tl := range tiles {
				w.renderTile(t, tl.x, tl.y, 0)
			}
		}()
	}
	for ty := 0; ty < cfg.ImageSize; ty += step {
		for tx := 0; tx < cfg.ImageSize; tx += step {
			tiles <- tile{tx, ty}
		}
	}
	close(tiles)
	wg.Wait()
	return img, nil
}

type worker struct {
	cfg Config
	img *image.Gray

	// Spare storage recycled between the evaluators this worker builds.
	ivSpare []carve.Storage
	slSpare []carve.Storage

	xs, ys, zs, out []float32
}

// pixelRegion returns the world-space interval covered by a span of
// pixels along one axis, with image rows growing downward in y.
func (w *worker) pixelRegion(p0, n int, flip bool) api.Interval {
	size := float32(w.cfg.ImageSize)
	lo := -1 + 2*float32(p0)/size
	hi := -1 + 2*float32(p0+n)/size
	if flip {
		lo, hi = -hi, -lo
	}
	return api.Interval{Lower: lo, Upper: hi}
}

func (w *worker) renderTile(t *carve.Tape, tx, ty, level int) {
	size := w.cfg.TileSizes[level]
	if tx+size > w.cfg.ImageSize {
		size = w.cfg.ImageSize - tx
	}
	if ty+size > w.cfg.ImageSize {
		size = w.cfg.ImageSize - ty
	}
	if size <= 0 {
		return
	}

	ev, err := carve.NewIntervalEvaluatorWithStorage(t, w.popStorage(&w.ivSpare))
	if err != nil {
		// Construction only fails for tapes the family cannot run, which
		// Render2D's caller built; nothing per-tile can recover.
		panic(err)
	}
	out := ev.Eval(
		w.pixelRegion(tx, size, false),
		w.pixelRegion(ty, size, true),
		api.PointInterval(w.cfg.Z),
		nil,
	)

	switch {
	case out.Upper < 0:
		w.fill(tx, ty, size)
	case out.Lower > 0:
		// Entirely outside: leave black.
	default:
		sub := t
		if ev.SimplifyRequested() {
			if st, err := ev.Simplify(); err == nil {
				sub = st
			}
		}
		if level+1 < len(w.cfg.TileSizes) {
			step := w.cfg.TileSizes[level+1]
			for sy := ty; sy < ty+size; sy += step {
				for sx := tx; sx < tx+size; sx += step {
					w.renderTile(sub, sx, sy, level+1)
				}
			}
		} else {
			w.renderPixels(sub, tx, ty, size)
		}
	}
	if s, ok := ev.Take(); ok {
		w.ivSpare = append(w.ivSpare, s)
	}
}

func (w *worker) renderPixels(t *carve.Tape, tx, ty, size int) {
	ev, err := carve.NewFloatSliceEvaluatorWithStorage(t, w.popStorage(&w.slSpare))
	if err != nil {
		panic(err)
	}
	n := size * size
	w.xs = resize(w.xs, n)
	w.ys = resize(w.ys, n)
	w.zs = resize(w.zs, n)
	w.out = resize(w.out, n)

	imgSize := float32(w.cfg.ImageSize)
	i := 0
	for py := ty; py < ty+size; py++ {
		wy := 1 - 2*(float32(py)+0.5)/imgSize
		for px := tx; px < tx+size; px++ {
			w.xs[i] = -1 + 2*(float32(px)+0.5)/imgSize
			w.ys[i] = wy
			w.zs[i] = w.cfg.Z
			i++
		}
	}
	w.out = ev.Eval(w.xs, w.ys, w.zs, nil, w.out)

	i = 0
	for py := ty; py < ty+size; py++ {
		row := w.img.Pix[py*w.img.Stride:]
		for px := tx; px < tx+size; px++ {
			if w.out[i] < 0 {
				row[px] = 0xFF
			}
			i++
		}
	}
	if s, ok := ev.Take(); ok {
		w.slSpare = append(w.slSpare, s)
	}
}

func (w *worker) fill(tx, ty, size int) {
	for py := ty; py < ty+size; py++ {
		row := w.img.Pix[py*w.img.Stride:]
		for px := tx; px < tx+size; px++ {
			row[px] = 0xFF
		}
	}
}

func (w *worker) popStorage(spare *[]carve.Storage) carve.Storage {
	s := *spare
	if len(s) == 0 {
		return carve.Storage{}
	}
	last := s[len(s)-1]
	*spare = s[:len(s)-1]
	return last
}

func resize(s []float32, n int) []float32 {
	if cap(s) < n {
		return make([]float32, n)
	}
	return s[:n]
}
