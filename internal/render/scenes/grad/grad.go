package grad

import (
	"math"
	"time"

	"github.com/coreman2200/panelcast/internal/render"
)

type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisDiagonal
)

// Grad renders a rainbow gradient across the canvas.
//   - Axis picks the direction the hue varies along
//   - Speed animates the hue in cycles per second (default 0)
type Grad struct {
	Axis  Axis
	Speed float64

	w, h  int
	phase float64
}

func New() *Grad { return &Grad{Axis: AxisX} }

func (g *Grad) Name() string { return "grad" }

func (g *Grad) Presets() []string { return []string{"Horizontal", "Vertical", "Diagonal", "Rainbow"} }

func (g *Grad) Caps() render.Capability { return render.CapSpeed | render.CapPalette }

func (g *Grad) ApplyPreset(name string) {
	switch name {
	case "Horizontal":
		g.Axis = AxisX
	case "Vertical":
		g.Axis = AxisY
	case "Diagonal":
		g.Axis = AxisDiagonal
	case "Rainbow":
		g.Speed = 0.1
	}
}

func (g *Grad) Init(w, h int) { g.w, g.h = w, h }

func (g *Grad) Update(t time.Duration) bool {
	g.phase = t.Seconds() * 2 * math.Pi * g.Speed
	return true
}

func (g *Grad) PixelColor(x, y int) render.Color {
	var v float64
	switch g.Axis {
	case AxisY:
		v = norm(y, g.h)
	case AxisDiagonal:
		v = (norm(x, g.w) + norm(y, g.h)) / 2
	default:
		v = norm(x, g.w)
	}
	p := v*2*math.Pi + g.phase
	return render.Color{
		R: float32(0.5 + 0.5*math.Sin(p)),
		G: float32(0.5 + 0.5*math.Sin(p+2*math.Pi/3)),
		B: float32(0.5 + 0.5*math.Sin(p+4*math.Pi/3)),
	}
}

func norm(v, n int) float64 {
	if n <= 1 {
		return 0
	}
	return float64(v) / float64(n-1)
}
