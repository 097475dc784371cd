package solid

import (
	"math"
	"time"

	"github.com/coreman2200/panelcast/internal/render"
)

// Solid fills the canvas with one color. PulseHz > 0 modulates brightness.
type Solid struct {
	C       render.Color
	PulseHz float64

	scale float32
}

func New(c render.Color) *Solid { return &Solid{C: c, scale: 1} }

func (s *Solid) Name() string { return "solid" }

func (s *Solid) Presets() []string { return []string{"Red", "Green", "Blue", "White", "Black", "Pulse"} }

func (s *Solid) Caps() render.Capability { return render.CapColor | render.CapSpeed }

func (s *Solid) ApplyPreset(name string) {
	switch name {
	case "Red":
		s.C = render.Color{R: 1}
	case "Green":
		s.C = render.Color{G: 1}
	case "Blue":
		s.C = render.Color{B: 1}
	case "White":
		s.C = render.Color{R: 1, G: 1, B: 1}
	case "Black":
		s.C = render.Color{}
	case "Pulse":
		s.PulseHz = 0.5
	}
}

func (s *Solid) Init(int, int) { s.scale = 1 }

func (s *Solid) Update(t time.Duration) bool {
	s.scale = 1
	if s.PulseHz > 0 {
		s.scale = float32(0.5 + 0.5*math.Sin(2*math.Pi*s.PulseHz*t.Seconds()))
	}
	return true
}

func (s *Solid) PixelColor(int, int) render.Color {
	return render.Color{R: s.C.R * s.scale, G: s.C.G * s.scale, B: s.C.B * s.scale}
}
