package sequence

import (
	"errors"
	"fmt"
	"time"

	"github.com/coreman2200/panelcast/internal/render"
)

var (
	ErrEmptyProgram = errors.New("program has no clips")
	ErrUnknownScene = errors.New("unknown scene")
)

// Playlist plays a Program as a single render.Source. Update returns false once
// the last clip of a non-looping program has finished.
type Playlist struct {
	reg  *render.Registry
	prog Program

	w, h int
	idx  int
	done bool

	active      render.Scene
	activeStart time.Duration // source time when the active clip began
	activeLead  time.Duration // scene time already played during a crossfade

	next      render.Scene
	nextStart time.Duration
	alpha     float64

	level float64
}

// New checks that every clip names a registered scene and has a positive duration.
func New(reg *render.Registry, prog Program) (*Playlist, error) {
	if len(prog.Clips) == 0 {
		return nil, ErrEmptyProgram
	}
	known := map[string]bool{}
	for _, n := range reg.List() {
		known[n] = true
	}
	for i, c := range prog.Clips {
		if !known[c.Scene] {
			return nil, fmt.Errorf("clip %d: %w: %q", i, ErrUnknownScene, c.Scene)
		}
		if c.Duration <= 0 {
			return nil, fmt.Errorf("clip %d (%s): duration must be positive", i, c.Scene)
		}
		if c.XFade > c.Duration {
			return nil, fmt.Errorf("clip %d (%s): xfade %s longer than clip", i, c.Scene, c.XFade)
		}
	}
	return &Playlist{reg: reg, prog: prog, level: 1}, nil
}

func (p *Playlist) Init(w, h int) {
	p.w, p.h = w, h
	p.idx = 0
	p.done = false
	p.next = nil
	p.alpha = 0
	p.level = 1
	p.active = p.build(0)
	p.activeStart = 0
	p.activeLead = 0
}

// Current is the name of the clip (or scene) playing now.
func (p *Playlist) Current() string {
	if p.idx >= len(p.prog.Clips) {
		return ""
	}
	c := p.prog.Clips[p.idx]
	if c.Name != "" {
		return c.Name
	}
	return c.Scene
}

func (p *Playlist) Update(t time.Duration) bool {
	if p.done || p.active == nil {
		return false
	}

	for {
		clip := p.prog.Clips[p.idx]
		if t-p.activeStart < clip.Duration {
			break
		}
		if !p.advance(p.activeStart + clip.Duration) {
			return false
		}
	}

	clip := p.prog.Clips[p.idx]
	local := t - p.activeStart
	if !p.active.Update(local + p.activeLead) {
		// a finite scene ends its clip early
		if !p.advance(t) {
			return false
		}
		clip = p.prog.Clips[p.idx]
		local = 0
		p.active.Update(p.activeLead)
	}

	p.alpha = 0
	if clip.XFade > 0 {
		remain := clip.Duration - local
		if remain <= clip.XFade {
			if p.next == nil {
				if ni := p.nextIndex(); ni >= 0 {
					p.next = p.build(ni)
					p.nextStart = t
				}
			}
			if p.next != nil {
				p.next.Update(t - p.nextStart)
				p.alpha = clamp01(1 - float64(remain)/float64(clip.XFade))
			}
		}
	}

	p.level = 1
	if clip.Level != nil {
		p.level = clamp01(clip.Level.Eval(local.Seconds()))
	}
	return true
}

func (p *Playlist) PixelColor(x, y int) render.Color {
	if p.active == nil {
		return render.Color{}
	}
	c := p.active.PixelColor(x, y)
	if p.next != nil && p.alpha > 0 {
		c = render.Lerp(c, p.next.PixelColor(x, y), p.alpha)
	}
	if p.level < 1 {
		l := float32(p.level)
		c = render.Color{R: c.R * l, G: c.G * l, B: c.B * l}
	}
	return c
}

// advance moves to the next clip starting at source time at. An armed
// crossfade target is promoted so its animation continues without a jump.
func (p *Playlist) advance(at time.Duration) bool {
	ni := p.nextIndex()
	if ni < 0 {
		p.done = true
		return false
	}
	p.idx = ni
	p.activeLead = 0
	if p.next != nil {
		p.active = p.next
		p.activeLead = at - p.nextStart
	} else {
		p.active = p.build(ni)
	}
	p.activeStart = at
	p.next = nil
	p.alpha = 0
	return true
}

func (p *Playlist) nextIndex() int {
	ni := p.idx + 1
	if ni < len(p.prog.Clips) {
		return ni
	}
	if p.prog.Loop {
		return 0
	}
	return -1
}

func (p *Playlist) build(i int) render.Scene {
	c := p.prog.Clips[i]
	sc, ok := p.reg.New(c.Scene)
	if !ok {
		return nil
	}
	if c.Preset != "" {
		sc.ApplyPreset(c.Preset)
	}
	sc.Init(p.w, p.h)
	return sc
}
