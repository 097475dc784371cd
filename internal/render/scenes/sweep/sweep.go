// Package sweep has finite wiring checks: light one pixel, row or channel at a
// time so a misconfigured panel is obvious on the hardware.
package sweep

import (
	"time"

	"github.com/coreman2200/panelcast/internal/render"
)

type Kind string

const (
	Pixels   Kind = "pixels"   // one canvas pixel per step, row-major
	Rows     Kind = "rows"     // one canvas row per step
	Channels Kind = "channels" // all red, all green, all blue
)

// Sweep advances one step every Step and reports done after the last one.
type Sweep struct {
	Kind Kind
	Step time.Duration

	w, h int
	cur  int
}

func New(kind Kind, step time.Duration) *Sweep {
	if step <= 0 {
		step = 50 * time.Millisecond
	}
	return &Sweep{Kind: kind, Step: step}
}

func (s *Sweep) Name() string { return "sweep" }

func (s *Sweep) Presets() []string { return []string{string(Pixels), string(Rows), string(Channels)} }

func (s *Sweep) Caps() render.Capability { return render.CapSpeed }

func (s *Sweep) ApplyPreset(name string) {
	switch Kind(name) {
	case Pixels, Rows, Channels:
		s.Kind = Kind(name)
	}
}

func (s *Sweep) Init(w, h int) { s.w, s.h, s.cur = w, h, 0 }

// Steps is the number of distinct frames the sweep shows.
func (s *Sweep) Steps() int {
	switch s.Kind {
	case Rows:
		return s.h
	case Channels:
		return 3
	default:
		return s.w * s.h
	}
}

func (s *Sweep) Update(t time.Duration) bool {
	s.cur = int(t / s.Step)
	return s.cur < s.Steps()
}

func (s *Sweep) PixelColor(x, y int) render.Color {
	switch s.Kind {
	case Rows:
		if y == s.cur {
			return render.Color{R: 1, G: 1, B: 1}
		}
	case Channels:
		switch s.cur {
		case 0:
			return render.Color{R: 1}
		case 1:
			return render.Color{G: 1}
		case 2:
			return render.Color{B: 1}
		}
	default:
		if y*s.w+x == s.cur {
			return render.Color{R: 1, G: 1, B: 1}
		}
	}
	return render.Color{}
}
