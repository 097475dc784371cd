package app

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/physic"

	"github.com/coreman2200/panelcast/internal/fleet"
	"github.com/coreman2200/panelcast/internal/layout"
	"github.com/coreman2200/panelcast/internal/render"
)

var (
	ErrRunning  = errors.New("scheduler already running")
	ErrNoSource = errors.New("scheduler has no source")
)

// Broadcaster is the part of the fleet the scheduler drives.
type Broadcaster interface {
	BroadcastFrame(*render.Frame) fleet.BroadcastResult
	Shutdown()
}

// FrameObserver sees every frame after it was broadcast. It runs on the tick
// goroutine and must return quickly.
type FrameObserver func(*render.Frame, fleet.BroadcastResult)

type SchedulerStats struct {
	Running bool                  `json:"running"`
	Rate    string                `json:"rate"`
	Ticks   uint64                `json:"ticks"`
	Skipped uint64                `json:"skipped"`
	Last    fleet.BroadcastResult `json:"last"`
}

// Scheduler ticks a Source at a fixed rate and hands every frame to the fleet.
//
// A tick that arrives sooner than MinInterval after the previous one (a ticker
// backlog after a slow frame) is dropped rather than run late.
type Scheduler struct {
	rate        physic.Frequency
	period      time.Duration
	MinInterval time.Duration
	canvas      layout.Size
	out         Broadcaster
	log         zerolog.Logger

	// OnSourceDone runs after a source ends the show and the fleet was shut down.
	OnSourceDone func()

	mu         sync.Mutex
	running    bool
	src        render.Source
	start      time.Time
	brightness float64
	limiter    render.Limiter
	observers  []FrameObserver
	stop       chan struct{}
	done       chan struct{}

	// tick goroutine only
	sampler render.Sampler
	last    time.Time

	ticks   atomic.Uint64
	skipped atomic.Uint64
	lastRes atomic.Pointer[fleet.BroadcastResult]
}

func NewScheduler(rate physic.Frequency, canvas layout.Size, out Broadcaster, logger *zerolog.Logger) *Scheduler {
	if rate <= 0 {
		rate = 60 * physic.Hertz
	}
	lg := log.Logger
	if logger != nil {
		lg = *logger
	}
	p := rate.Period()
	return &Scheduler{
		rate:        rate,
		period:      p,
		MinInterval: p / 2,
		canvas:      canvas,
		out:         out,
		log:         lg.With().Str("component", "scheduler").Logger(),
		brightness:  1,
	}
}

func (s *Scheduler) Rate() physic.Frequency { return s.rate }

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// AddObserver registers fn for every broadcast frame.
func (s *Scheduler) AddObserver(fn FrameObserver) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

func (s *Scheduler) SetBrightness(b float64) {
	if b < 0 {
		b = 0
	}
	if b > 1 {
		b = 1
	}
	s.mu.Lock()
	s.brightness = b
	s.mu.Unlock()
}

func (s *Scheduler) Brightness() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.brightness
}

func (s *Scheduler) SetLimiter(l render.Limiter) {
	s.mu.Lock()
	s.limiter = l
	s.mu.Unlock()
}

// SetSource swaps the running source. The new one starts at time zero.
func (s *Scheduler) SetSource(src render.Source) {
	src.Init(s.canvas.W, s.canvas.H)
	s.mu.Lock()
	s.src = src
	s.start = time.Now()
	s.mu.Unlock()
}

// Start begins ticking src.
func (s *Scheduler) Start(src render.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrRunning
	}
	if src == nil {
		return ErrNoSource
	}
	src.Init(s.canvas.W, s.canvas.H)
	s.src = src
	s.start = time.Now()
	s.last = time.Time{}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(s.stop, s.done)
	s.log.Info().Str("rate", s.rate.String()).Int("w", s.canvas.W).Int("h", s.canvas.H).Msg("scheduler started")
	return nil
}

// Stop waits for the tick in flight, schedules no more, and blacks out every
// panel. Stopping a stopped scheduler does nothing.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	done := s.done
	s.mu.Unlock()

	<-done
	s.blackout()
	s.log.Info().Uint64("ticks", s.ticks.Load()).Uint64("skipped", s.skipped.Load()).Msg("scheduler stopped")
}

// Wait blocks until the current run ends, by Stop or by the source finishing.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (s *Scheduler) Stats() SchedulerStats {
	st := SchedulerStats{
		Running: s.Running(),
		Rate:    s.rate.String(),
		Ticks:   s.ticks.Load(),
		Skipped: s.skipped.Load(),
	}
	if r := s.lastRes.Load(); r != nil {
		st.Last = *r
	}
	return st
}

func (s *Scheduler) loop(stop, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(s.period)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-t.C:
			select {
			case <-stop:
				return
			default:
			}
			if !s.step(now) {
				s.finish()
				return
			}
		}
	}
}

// step runs one tick. It returns false when the source is done.
func (s *Scheduler) step(now time.Time) bool {
	if !s.last.IsZero() && now.Sub(s.last) < s.MinInterval {
		s.skipped.Add(1)
		return true
	}
	s.last = now

	s.mu.Lock()
	src, start, bright := s.src, s.start, s.brightness
	s.sampler.Brightness = bright
	s.sampler.Limiter = s.limiter
	obs := s.observers
	s.mu.Unlock()

	if !src.Update(now.Sub(start)) {
		return false
	}
	var frame *render.Frame
	if bright == 0 {
		frame = render.NewFrame(s.canvas.W, s.canvas.H)
	} else {
		frame = s.sampler.Sample(src, s.canvas.W, s.canvas.H)
	}
	res := s.out.BroadcastFrame(frame)
	s.lastRes.Store(&res)
	s.ticks.Add(1)
	for _, fn := range obs {
		fn(frame, res)
	}
	return true
}

func (s *Scheduler) finish() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.log.Info().Uint64("ticks", s.ticks.Load()).Msg("source finished, shutting down fleet")
	s.blackout()
	s.out.Shutdown()
	if s.OnSourceDone != nil {
		s.OnSourceDone()
	}
}

func (s *Scheduler) blackout() {
	res := s.out.BroadcastFrame(render.NewFrame(s.canvas.W, s.canvas.H))
	if res.Failed > 0 {
		s.log.Warn().Int("failed", res.Failed).Msg("blackout incomplete")
	}
}
