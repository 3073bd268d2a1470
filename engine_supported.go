//go:build amd64 && (linux || darwin || freebsd)

package carve

import (
	"github.com/implicitcad/carve/internal/engine"
	"github.com/implicitcad/carve/internal/engine/compiler"
	"github.com/implicitcad/carve/internal/engine/interpreter"
)

func familyRegisterLimit(c Config) uint8 {
	if c.interpreter {
		return interpreter.RegLimit
	}
	return compiler.RegisterLimit
}

func newPointKernel(t *Tape, s engine.Storage) (engine.PointKernel, error) {
	if t.cfg.interpreter {
		return interpreter.NewPointKernel(t.t, s)
	}
	return compiler.NewPointKernel(t.t, s)
}

func newIntervalKernel(t *Tape, s engine.Storage) (engine.IntervalKernel, error) {
	if t.cfg.interpreter {
		return interpreter.NewIntervalKernel(t.t, s)
	}
	return compiler.NewIntervalKernel(t.t, s)
}

func newFloatSliceKernel(t *Tape, s engine.Storage) (engine.FloatSliceKernel, error) {
	if t.cfg.interpreter {
		return interpreter.NewFloatSliceKernel(t.t, s)
	}
	return compiler.NewFloatSliceKernel(t.t, s)
}

func newGradKernel(t *Tape, s engine.Storage) (engine.GradKernel, error) {
	if t.cfg.interpreter {
		return interpreter.NewGradKernel(t.t, s)
	}
	return compiler.NewGradKernel(t.t, s)
}
