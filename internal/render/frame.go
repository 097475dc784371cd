package render

import (
	"github.com/coreman2200/panelcast/internal/layout"
)

// Frame is one tick's worth of canvas pixels as packed RGB bytes, row-major.
type Frame struct {
	W, H int
	Pix  []byte
}

func NewFrame(w, h int) *Frame {
	return &Frame{W: w, H: h, Pix: make([]byte, w*h*3)}
}

func (f *Frame) At(x, y int) (r, g, b byte) {
	i := (y*f.W + x) * 3
	return f.Pix[i], f.Pix[i+1], f.Pix[i+2]
}

func (f *Frame) Set(x, y int, r, g, b byte) {
	i := (y*f.W + x) * 3
	f.Pix[i], f.Pix[i+1], f.Pix[i+2] = r, g, b
}

// Clamp pins a sample coordinate to the canvas.
func (f *Frame) Clamp(x, y int) (int, int) {
	return clampInt(x, 0, f.W-1), clampInt(y, 0, f.H-1)
}

// Extract fills dst with p's LEDs in serial order and returns it, growing dst if
// needed. Each LED samples the canvas at its virtual position plus the panel
// offset, clamped to the canvas.
func (f *Frame) Extract(p layout.Panel, dst []byte) []byte {
	n := p.Count() * 3
	if cap(dst) < n {
		dst = make([]byte, n)
	}
	dst = dst[:n]
	if f.W <= 0 || f.H <= 0 {
		clear(dst)
		return dst
	}
	o := p.Origin()
	for vy := o.Y; vy < o.Y+p.Size.H; vy++ {
		for vx := o.X; vx < o.X+p.Size.W; vx++ {
			sx, sy := f.Clamp(vx+p.Offset.X, vy+p.Offset.Y)
			i := layout.LocalIndex(p, vx, vy) * 3
			dst[i], dst[i+1], dst[i+2] = f.At(sx, sy)
		}
	}
	return dst
}

// Sampler turns a Source into a Frame, applying brightness and the limiter.
type Sampler struct {
	Brightness float64 // 0..1; values <= 0 are treated as 1
	Limiter    Limiter

	buf []Color
}

// Sample reads every canvas pixel from src into a new frame.
func (s *Sampler) Sample(src Source, w, h int) *Frame {
	n := w * h
	if cap(s.buf) < n {
		s.buf = make([]Color, n)
	}
	buf := s.buf[:n]
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			buf[y*w+x] = src.PixelColor(x, y)
		}
	}
	if b := s.Brightness; b > 0 && b < 1 {
		Scale(buf, float32(b))
	}
	s.Limiter.Apply(buf)

	f := NewFrame(w, h)
	for i, c := range buf {
		f.Pix[i*3] = quantize(c.R)
		f.Pix[i*3+1] = quantize(c.G)
		f.Pix[i*3+2] = quantize(c.B)
	}
	return f
}

func quantize(v float32) byte {
	return byte(clamp01(v)*255 + 0.5)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
