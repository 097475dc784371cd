package layout

import (
	"errors"
	"fmt"

	"github.com/coreman2200/panelcast/internal/artnet"
)

// FallbackCanvas is used when no panels are configured and no explicit size is given.
var FallbackCanvas = Size{W: 32, H: 32}

var (
	ErrInvalidSize   = errors.New("panel size must be positive")
	ErrOutOfBounds   = errors.New("panel exceeds canvas bounds")
	ErrDuplicateID   = errors.New("duplicate panel id")
	ErrInvalidWiring = errors.New("invalid wiring")
	ErrNoAddress     = errors.New("panel address is empty")
)

type Point struct{ X, Y int }

type Size struct{ W, H int }

type Order string

const (
	RowMajor    Order = "row-major"
	ColumnMajor Order = "column-major"
)

// SerpentineMode selects which lines of a serpentine panel run backwards.
type SerpentineMode string

const (
	// Uniform reverses every line. This is how the stock 16x16 grids are wired.
	Uniform SerpentineMode = "uniform"
	// Alternate reverses odd lines only.
	Alternate SerpentineMode = "alternate"
)

type Corner string

const (
	TopLeft     Corner = "top-left"
	TopRight    Corner = "top-right"
	BottomLeft  Corner = "bottom-left"
	BottomRight Corner = "bottom-right"
)

type Protocol string

const (
	DDP    Protocol = "ddp"
	ArtNet Protocol = "artnet"
)

type Wiring struct {
	StartCorner    Corner
	Order          Order
	Serpentine     bool
	SerpentineMode SerpentineMode
	MirrorX        bool
}

// Panel is one physical LED matrix placed on the virtual grid.
type Panel struct {
	ID      string
	Address string // host or host:port
	Grid    Point  // placement in panel units
	Size    Size   // logical pixels
	Offset  Point  // added to sample coordinates
	Wiring  Wiring

	Protocol Protocol
	Universe int // Art-Net base universe
	DMXStart int // Art-Net DMX start address
}

func (p Panel) Count() int { return p.Size.W * p.Size.H }

// Origin is the top-left virtual pixel covered by the panel.
func (p Panel) Origin() Point {
	return Point{X: p.Grid.X * p.Size.W, Y: p.Grid.Y * p.Size.H}
}

func (p Panel) Contains(vx, vy int) bool {
	o := p.Origin()
	return vx >= o.X && vx < o.X+p.Size.W && vy >= o.Y && vy < o.Y+p.Size.H
}

// WithSize returns a copy of p with a new logical size. Non-positive axes keep the old value.
func (p Panel) WithSize(s Size) Panel {
	if s.W > 0 {
		p.Size.W = s.W
	}
	if s.H > 0 {
		p.Size.H = s.H
	}
	return p
}

// LocalIndex maps a virtual x,y inside the panel's rectangle to the panel's serial LED index.
// Column-major is x*h+y and row-major is y*w+x. Serpentine then reverses y in
// column-major panels and x in row-major ones, so a row-major panel only gets
// the plain y*w+x formula with serpentine off.
func LocalIndex(p Panel, vx, vy int) int {
	w, h := p.Size.W, p.Size.H
	o := p.Origin()
	x := vx - o.X
	y := vy - o.Y
	if p.Wiring.MirrorX {
		x = w - 1 - x
	}

	if p.Wiring.Order == ColumnMajor {
		if p.Wiring.Serpentine && reversed(p.Wiring.SerpentineMode, x) {
			y = h - 1 - y
		}
		return x*h + y
	}

	if p.Wiring.Serpentine && reversed(p.Wiring.SerpentineMode, y) {
		x = w - 1 - x
	}
	return y*w + x
}

func reversed(mode SerpentineMode, line int) bool {
	if mode == Alternate {
		return line%2 == 1
	}
	return true
}

func (w Wiring) validate() error {
	switch w.Order {
	case RowMajor, ColumnMajor:
	default:
		return fmt.Errorf("%w: order %q", ErrInvalidWiring, w.Order)
	}
	switch w.SerpentineMode {
	case Uniform, Alternate:
	default:
		return fmt.Errorf("%w: serpentine mode %q", ErrInvalidWiring, w.SerpentineMode)
	}
	switch w.StartCorner {
	case TopLeft, TopRight, BottomLeft, BottomRight:
	default:
		return fmt.Errorf("%w: start corner %q", ErrInvalidWiring, w.StartCorner)
	}
	return nil
}

// Layout is the full set of panels and the canvas they are drawn from.
type Layout struct {
	Canvas Size
	Panels []Panel
}

// CanvasFor returns the explicit size where given, else the panels' bounding box, per axis.
func CanvasFor(panels []Panel, explicit Size) Size {
	c := explicit
	if c.W > 0 && c.H > 0 {
		return c
	}
	var bw, bh int
	for _, p := range panels {
		o := p.Origin()
		bw = max(bw, o.X+p.Size.W)
		bh = max(bh, o.Y+p.Size.H)
	}
	if len(panels) == 0 {
		bw, bh = FallbackCanvas.W, FallbackCanvas.H
	}
	if c.W <= 0 {
		c.W = bw
	}
	if c.H <= 0 {
		c.H = bh
	}
	return c
}

// New builds and validates a Layout. Wiring defaults are filled in.
func New(panels []Panel, explicit Size) (Layout, error) {
	ps := make([]Panel, len(panels))
	for i, p := range panels {
		ps[i] = withDefaults(p)
	}
	l := Layout{Canvas: CanvasFor(ps, explicit), Panels: ps}
	if err := l.Validate(); err != nil {
		return Layout{}, err
	}
	return l, nil
}

func withDefaults(p Panel) Panel {
	if p.Wiring.Order == "" {
		p.Wiring.Order = RowMajor
	}
	if p.Wiring.SerpentineMode == "" {
		p.Wiring.SerpentineMode = Uniform
	}
	if p.Wiring.StartCorner == "" {
		p.Wiring.StartCorner = TopLeft
	}
	if p.Protocol == "" {
		p.Protocol = DDP
	}
	return p
}

// Validate checks every panel against the canvas. Panels are never clamped.
func (l Layout) Validate() error {
	seen := make(map[string]bool, len(l.Panels))
	for _, p := range l.Panels {
		if p.Size.W <= 0 || p.Size.H <= 0 {
			return fmt.Errorf("panel %s: %w (%dx%d)", p.ID, ErrInvalidSize, p.Size.W, p.Size.H)
		}
		if p.Address == "" {
			return fmt.Errorf("panel %s: %w", p.ID, ErrNoAddress)
		}
		if seen[p.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateID, p.ID)
		}
		seen[p.ID] = true
		if err := p.Wiring.validate(); err != nil {
			return fmt.Errorf("panel %s: %w", p.ID, err)
		}
		switch p.Protocol {
		case DDP:
		case ArtNet:
			if err := artnet.CheckStart(p.DMXStart, p.Count()); err != nil {
				return fmt.Errorf("panel %s: %w", p.ID, err)
			}
		default:
			return fmt.Errorf("panel %s: unknown protocol %q", p.ID, p.Protocol)
		}
		if err := l.fits(p); err != nil {
			return err
		}
	}
	return nil
}

func (l Layout) fits(p Panel) error {
	o := p.Origin()
	if o.X < 0 || o.Y < 0 || o.X+p.Size.W > l.Canvas.W || o.Y+p.Size.H > l.Canvas.H {
		return fmt.Errorf("panel %s at %d,%d size %dx%d on %dx%d canvas: %w",
			p.ID, o.X, o.Y, p.Size.W, p.Size.H, l.Canvas.W, l.Canvas.H, ErrOutOfBounds)
	}
	return nil
}

// Fit reports whether a panel (for example one resized from device metadata) still fits the canvas.
func (l Layout) Fit(p Panel) error {
	if p.Size.W <= 0 || p.Size.H <= 0 {
		return fmt.Errorf("panel %s: %w", p.ID, ErrInvalidSize)
	}
	return l.fits(p)
}

// Count is the number of virtual pixels on the canvas.
func (l Layout) Count() int { return l.Canvas.W * l.Canvas.H }
