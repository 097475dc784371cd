package render

import (
	"sort"
	"sync"
	"time"
)

// Color is a linear RGB value, nominally 0..1 per channel.
type Color struct{ R, G, B float32 }

// RGB8 builds a Color from 8-bit channels.
func RGB8(r, g, b uint8) Color {
	return Color{R: float32(r) / 255, G: float32(g) / 255, B: float32(b) / 255}
}

// Source produces pixel colors for the whole canvas.
//
// Update is called once per tick with the time since the source was started and
// reports whether the animation should keep running. PixelColor must be defined
// for every x in [0,w) and y in [0,h) and must not change state between Updates.
type Source interface {
	Init(w, h int)
	Update(t time.Duration) bool
	PixelColor(x, y int) Color
}

// Capability is a feature a scene exposes to the control surface.
type Capability uint8

const (
	CapColor Capability = 1 << iota
	CapSpeed
	CapPalette
)

func (c Capability) Has(f Capability) bool { return c&f != 0 }

// Scene is a named Source that can be picked from the registry.
type Scene interface {
	Source
	Name() string
	Presets() []string
	ApplyPreset(name string)
	Caps() Capability
}

// Factory builds a fresh Scene. Scenes hold per-run state, so the registry stores
// constructors rather than instances.
type Factory func() Scene

type Registry struct {
	mu sync.RWMutex
	m  map[string]Factory
}

func NewRegistry() *Registry { return &Registry{m: map[string]Factory{}} }

func (r *Registry) Register(name string, f Factory) {
	if f == nil || name == "" {
		return
	}
	r.mu.Lock()
	r.m[name] = f
	r.mu.Unlock()
}

// New returns a new instance of the named scene.
func (r *Registry) New(name string) (Scene, bool) {
	r.mu.RLock()
	f, ok := r.m[name]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return f(), true
}

func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.m))
	for k := range r.m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
