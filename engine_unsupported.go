//go:build !(amd64 && (linux || darwin || freebsd))

package carve

import (
	"github.com/implicitcad/carve/internal/engine"
	"github.com/implicitcad/carve/internal/engine/interpreter"
)

func familyRegisterLimit(Config) uint8 {
	return interpreter.RegLimit
}

func newPointKernel(t *Tape, s engine.Storage) (engine.PointKernel, error) {
	return interpreter.NewPointKernel(t.t, s)
}

func newIntervalKernel(t *Tape, s engine.Storage) (engine.IntervalKernel, error) {
	return interpreter.NewIntervalKernel(t.t, s)
}

func newFloatSliceKernel(t *Tape, s engine.Storage) (engine.FloatSliceKernel, error) {
	return interpreter.NewFloatSliceKernel(t.t, s)
}

func newGradKernel(t *Tape, s engine.Storage) (engine.GradKernel, error) {
	return interpreter.NewGradKernel(t.t, s)
}
