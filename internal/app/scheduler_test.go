package app

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"

	"github.com/coreman2200/panelcast/internal/fleet"
	"github.com/coreman2200/panelcast/internal/layout"
	"github.com/coreman2200/panelcast/internal/render"
)

type fakeOut struct {
	mu       sync.Mutex
	frames   []*render.Frame
	shutdown int
}

func (f *fakeOut) BroadcastFrame(fr *render.Frame) fleet.BroadcastResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, fr)
	return fleet.BroadcastResult{Sent: 1}
}

func (f *fakeOut) Shutdown() {
	f.mu.Lock()
	f.shutdown++
	f.mu.Unlock()
}

func (f *fakeOut) snapshot() ([]*render.Frame, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*render.Frame(nil), f.frames...), f.shutdown
}

// countdown is white until it has been updated n times.
type countdown struct {
	mu      sync.Mutex
	n       int
	updates int
	w, h    int
	times   []time.Duration
}

func (c *countdown) Init(w, h int) { c.w, c.h = w, h }

func (c *countdown) Update(t time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates++
	c.times = append(c.times, t)
	return c.n <= 0 || c.updates <= c.n
}

func (c *countdown) PixelColor(x, y int) render.Color { return render.Color{R: 1, G: 1, B: 1} }

func quiet() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func isBlack(f *render.Frame) bool {
	for _, b := range f.Pix {
		if b != 0 {
			return false
		}
	}
	return true
}

func TestStepSkipsEarlyTicks(t *testing.T) {
	out := &fakeOut{}
	s := NewScheduler(60*physic.Hertz, layout.Size{W: 2, H: 2}, out, quiet())
	src := &countdown{}
	src.Init(2, 2)
	s.src = src
	base := time.Now()
	s.start = base

	require.True(t, s.step(base))
	require.True(t, s.step(base.Add(2*time.Millisecond)))
	require.True(t, s.step(base.Add(17*time.Millisecond)))
	require.True(t, s.step(base.Add(20*time.Millisecond)))
	require.True(t, s.step(base.Add(34*time.Millisecond)))

	st := s.Stats()
	assert.Equal(t, uint64(3), st.Ticks)
	assert.Equal(t, uint64(2), st.Skipped)
	assert.Equal(t, fleet.BroadcastResult{Sent: 1}, st.Last)
	assert.Equal(t, []time.Duration{0, 17 * time.Millisecond, 34 * time.Millisecond}, src.times)

	frames, _ := out.snapshot()
	require.Len(t, frames, 3)
	assert.Equal(t, byte(255), frames[0].Pix[0])
}

func TestStepBrightness(t *testing.T) {
	out := &fakeOut{}
	s := NewScheduler(60*physic.Hertz, layout.Size{W: 1, H: 1}, out, quiet())
	s.src = &countdown{}
	base := time.Now()

	s.SetBrightness(0.5)
	s.step(base)
	s.SetBrightness(0)
	s.step(base.Add(time.Second))
	s.SetBrightness(7)
	assert.Equal(t, 1.0, s.Brightness())

	frames, _ := out.snapshot()
	require.Len(t, frames, 2)
	assert.Equal(t, []byte{128, 128, 128}, frames[0].Pix)
	assert.True(t, isBlack(frames[1]))
}

func TestStopBlacksOutAndIsIdempotent(t *testing.T) {
	out := &fakeOut{}
	s := NewScheduler(200*physic.Hertz, layout.Size{W: 2, H: 1}, out, quiet())
	require.NoError(t, s.Start(&countdown{}))
	assert.ErrorIs(t, s.Start(&countdown{}), ErrRunning)

	require.Eventually(t, func() bool { return s.Stats().Ticks >= 3 }, 2*time.Second, 5*time.Millisecond)
	s.Stop()
	assert.False(t, s.Running())

	frames, shut := out.snapshot()
	require.NotEmpty(t, frames)
	assert.True(t, isBlack(frames[len(frames)-1]))
	assert.Zero(t, shut)

	// nothing is broadcast after Stop returns
	time.Sleep(30 * time.Millisecond)
	after, _ := out.snapshot()
	assert.Len(t, after, len(frames))

	s.Stop()
	after, _ = out.snapshot()
	assert.Len(t, after, len(frames))
}

func TestSourceDoneShutsDownFleet(t *testing.T) {
	out := &fakeOut{}
	s := NewScheduler(200*physic.Hertz, layout.Size{W: 1, H: 1}, out, quiet())
	done := make(chan struct{})
	s.OnSourceDone = func() { close(done) }

	require.NoError(t, s.Start(&countdown{n: 3}))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("source never finished")
	}
	s.Wait()
	assert.False(t, s.Running())

	frames, shut := out.snapshot()
	assert.Equal(t, 1, shut)
	require.Len(t, frames, 4)
	assert.True(t, isBlack(frames[3]))
	assert.Equal(t, uint64(3), s.Stats().Ticks)

	// restartable
	require.NoError(t, s.Start(&countdown{}))
	s.Stop()
}

func TestStartWithoutSource(t *testing.T) {
	s := NewScheduler(0, layout.Size{W: 1, H: 1}, &fakeOut{}, quiet())
	assert.Equal(t, 60*physic.Hertz, s.Rate())
	assert.ErrorIs(t, s.Start(nil), ErrNoSource)
}

func TestObserversSeeEveryFrame(t *testing.T) {
	out := &fakeOut{}
	s := NewScheduler(60*physic.Hertz, layout.Size{W: 1, H: 1}, out, quiet())
	s.src = &countdown{}
	var seen int
	s.AddObserver(func(f *render.Frame, res fleet.BroadcastResult) {
		seen++
		assert.Equal(t, 1, res.Sent)
	})
	base := time.Now()
	s.step(base)
	s.step(base.Add(time.Second))
	assert.Equal(t, 2, seen)
}
