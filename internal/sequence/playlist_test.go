package sequence

import (
	"testing"
	"time"

	"github.com/coreman2200/panelcast/internal/render"
)

// flat is a scene with a fixed color that records the last time it saw.
type flat struct {
	name string
	c    render.Color
	last time.Duration
	stop time.Duration // 0 = never ends
}

func (f *flat) Init(int, int)                    {}
func (f *flat) PixelColor(int, int) render.Color { return f.c }
func (f *flat) Name() string                     { return f.name }
func (f *flat) Presets() []string                { return nil }
func (f *flat) ApplyPreset(string)               {}
func (f *flat) Caps() render.Capability          { return 0 }
func (f *flat) Update(t time.Duration) bool {
	f.last = t
	return f.stop == 0 || t < f.stop
}

func testRegistry() *render.Registry {
	reg := render.NewRegistry()
	reg.Register("red", func() render.Scene { return &flat{name: "red", c: render.Color{R: 1}} })
	reg.Register("blue", func() render.Scene { return &flat{name: "blue", c: render.Color{B: 1}} })
	reg.Register("short", func() render.Scene {
		return &flat{name: "short", c: render.Color{G: 1}, stop: time.Second}
	})
	return reg
}

func TestEnvelopeEval(t *testing.T) {
	env := Envelope{Keys: []Keyframe{
		{T: 0, V: 0, Ease: "linear"},
		{T: 10, V: 10, Ease: "linear"},
	}}
	if v := env.Eval(-1); v != 0 {
		t.Fatalf("expected 0 before start, got %v", v)
	}
	if v := env.Eval(5); v != 5 {
		t.Fatalf("expected 5 at t=5, got %v", v)
	}
	if v := env.Eval(11); v != 10 {
		t.Fatalf("expected 10 after end, got %v", v)
	}
	if v := (Envelope{}).Eval(3); v != 1 {
		t.Fatalf("empty envelope should be 1, got %v", v)
	}
	smooth := Envelope{Keys: []Keyframe{{T: 0, V: 0, Ease: "smooth"}, {T: 1, V: 1}}}
	if v := smooth.Eval(0.5); v != 0.5 {
		t.Fatalf("smoothstep midpoint should be 0.5, got %v", v)
	}
}

func TestNewValidatesProgram(t *testing.T) {
	reg := testRegistry()
	if _, err := New(reg, Program{}); err != ErrEmptyProgram {
		t.Fatalf("expected ErrEmptyProgram, got %v", err)
	}
	if _, err := New(reg, Program{Clips: []Clip{{Scene: "green", Duration: time.Second}}}); err == nil {
		t.Fatal("expected unknown scene error")
	}
	if _, err := New(reg, Program{Clips: []Clip{{Scene: "red"}}}); err == nil {
		t.Fatal("expected duration error")
	}
	if _, err := New(reg, Program{Clips: []Clip{{Scene: "red", Duration: time.Second, XFade: 2 * time.Second}}}); err == nil {
		t.Fatal("expected xfade error")
	}
}

func TestPlaylistCrossfadeAndEnd(t *testing.T) {
	p, err := New(testRegistry(), Program{Clips: []Clip{
		{Scene: "red", Duration: 4 * time.Second, XFade: 2 * time.Second},
		{Scene: "blue", Duration: 4 * time.Second},
	}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	p.Init(4, 4)

	if !p.Update(time.Second) {
		t.Fatal("ended early")
	}
	if c := p.PixelColor(0, 0); c != (render.Color{R: 1}) {
		t.Fatalf("expected red before fade, got %+v", c)
	}

	p.Update(3 * time.Second) // halfway through the fade window
	c := p.PixelColor(0, 0)
	if c.R < 0.49 || c.R > 0.51 || c.B < 0.49 || c.B > 0.51 {
		t.Fatalf("expected purple mid-fade, got %+v", c)
	}

	p.Update(5 * time.Second)
	if got := p.Current(); got != "blue" {
		t.Fatalf("expected blue clip, got %q", got)
	}
	if c := p.PixelColor(0, 0); c != (render.Color{B: 1}) {
		t.Fatalf("expected blue after fade, got %+v", c)
	}
	// blue was armed at t=3s, so its own clock keeps running
	if s := p.active.(*flat); s.last != 2*time.Second {
		t.Fatalf("expected promoted scene at 2s, got %s", s.last)
	}

	if !p.Update(7 * time.Second) {
		t.Fatal("blue should still be playing")
	}
	if p.Update(8 * time.Second) {
		t.Fatal("non-looping program should end")
	}
	if p.Update(9 * time.Second) {
		t.Fatal("finished program must stay finished")
	}
}

func TestPlaylistLoops(t *testing.T) {
	p, err := New(testRegistry(), Program{Loop: true, Clips: []Clip{
		{Scene: "red", Duration: time.Second},
		{Scene: "blue", Duration: time.Second},
	}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	p.Init(1, 1)
	for _, tc := range []struct {
		at   time.Duration
		want string
	}{
		{500 * time.Millisecond, "red"},
		{1500 * time.Millisecond, "blue"},
		{2500 * time.Millisecond, "red"},
		{5500 * time.Millisecond, "blue"},
	} {
		if !p.Update(tc.at) {
			t.Fatalf("looping program ended at %s", tc.at)
		}
		if got := p.Current(); got != tc.want {
			t.Fatalf("at %s: got %q want %q", tc.at, got, tc.want)
		}
	}
}

func TestFiniteSceneEndsClipEarly(t *testing.T) {
	p, err := New(testRegistry(), Program{Clips: []Clip{
		{Scene: "short", Duration: 10 * time.Second},
		{Name: "after", Scene: "red", Duration: time.Second},
	}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	p.Init(1, 1)
	p.Update(500 * time.Millisecond)
	if !p.Update(1200 * time.Millisecond) {
		t.Fatal("expected to move on to the next clip")
	}
	if got := p.Current(); got != "after" {
		t.Fatalf("got %q", got)
	}
	if p.Update(2300 * time.Millisecond) {
		t.Fatal("expected program end")
	}
}

func TestLevelEnvelope(t *testing.T) {
	p, err := New(testRegistry(), Program{Clips: []Clip{{
		Scene:    "red",
		Duration: 2 * time.Second,
		Level:    &Envelope{Keys: []Keyframe{{T: 0, V: 0}, {T: 2, V: 1}}},
	}}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	p.Init(1, 1)
	p.Update(time.Second)
	if c := p.PixelColor(0, 0); c.R < 0.49 || c.R > 0.51 {
		t.Fatalf("expected half level, got %+v", c)
	}
}
