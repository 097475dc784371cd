// Package fleet connects the configured panels and fans every frame out to the
// ones that are reachable.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/coreman2200/panelcast/internal/diagnostics"
	"github.com/coreman2200/panelcast/internal/layout"
	"github.com/coreman2200/panelcast/internal/link"
	"github.com/coreman2200/panelcast/internal/render"
)

var ErrClosed = errors.New("fleet: shut down")

// broadcastBatch is the link count above which a broadcast is split across goroutines.
const broadcastBatch = 8

// MetadataSource reports a panel's real pixel size. A zero axis means unknown
// and keeps the configured value; an error fails the connection attempt.
type MetadataSource interface {
	PanelSize(ctx context.Context, p layout.Panel) (w, h int, err error)
}

type Options struct {
	Metadata     MetadataSource
	Concurrency  int           // parallel connects; default 8
	WriteTimeout time.Duration // per packet; default link.DefaultWriteTimeout
	Logger       *zerolog.Logger
	// OnDiagnostic receives connect and send problems. It may be called from
	// connect goroutines and must not block.
	OnDiagnostic func(diagnostics.Diagnostic)
}

// BroadcastResult counts what happened to one frame.
type BroadcastResult struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

type Status struct {
	Connected int               `json:"connected"`
	Total     int               `json:"total"`
	Failed    []string          `json:"failed"`
	Errors    map[string]string `json:"errors,omitempty"`
	Links     []LinkStatus      `json:"links"`
}

type LinkStatus struct {
	ID      string `json:"id"`
	Target  string `json:"target"`
	LEDs    int    `json:"leds"`
	Frames  uint64 `json:"frames"`
	Packets uint64 `json:"packets"`
	Errors  uint64 `json:"errors"`
}

type Fleet struct {
	canvas  layout.Layout
	opts    Options
	log     zerolog.Logger
	sendLog zerolog.Logger // sampled; sends fail at frame rate

	mu     sync.RWMutex
	links  []*link.Link
	panels map[string]layout.Panel // every panel ever handed to ConnectAll
	order  []string
	errs   map[string]error
	closed bool

	// connecting guards against two attempts on one panel racing each other.
	connecting map[string]bool
}

func New(l layout.Layout, opts Options) *Fleet {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	lg := log.Logger
	if opts.Logger != nil {
		lg = *opts.Logger
	}
	lg = lg.With().Str("component", "fleet").Logger()
	return &Fleet{
		canvas:     l,
		opts:       opts,
		log:        lg,
		sendLog:    lg.Sample(&zerolog.BurstSampler{Burst: 5, Period: time.Second}),
		panels:     map[string]layout.Panel{},
		errs:       map[string]error{},
		connecting: map[string]bool{},
	}
}

// ConnectAll attempts every panel independently. Failures are recorded and
// reported back; they never abort the other attempts.
func (f *Fleet) ConnectAll(ctx context.Context, panels []layout.Panel) ([]*link.Link, []layout.Panel) {
	f.mu.Lock()
	for _, p := range panels {
		if _, ok := f.panels[p.ID]; !ok {
			f.order = append(f.order, p.ID)
		}
		f.panels[p.ID] = p
	}
	f.mu.Unlock()

	connected, failed := f.connect(ctx, panels)
	st := f.Status()
	ev := f.log.Info()
	if st.Connected < st.Total {
		ev = f.log.Warn()
	}
	ev.Int("connected", st.Connected).Int("total", st.Total).Strs("failed", st.Failed).Msg("fleet connect")
	f.emit(diagnostics.Partial(st.Connected, st.Total, st.Failed))
	return connected, failed
}

// Retry re-attempts only panels that are not connected. It never opens a
// second socket for a connected panel.
func (f *Fleet) Retry(ctx context.Context) ([]*link.Link, []layout.Panel) {
	f.mu.RLock()
	live := make(map[string]bool, len(f.links))
	for _, l := range f.links {
		live[l.ID()] = true
	}
	var todo []layout.Panel
	for _, id := range f.order {
		if !live[id] {
			todo = append(todo, f.panels[id])
		}
	}
	f.mu.RUnlock()

	if len(todo) == 0 {
		return nil, nil
	}
	f.log.Info().Int("panels", len(todo)).Msg("retrying panels")
	return f.connect(ctx, todo)
}

func (f *Fleet) connect(ctx context.Context, panels []layout.Panel) ([]*link.Link, []layout.Panel) {
	var (
		mu        sync.Mutex
		connected []*link.Link
		failed    []layout.Panel
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.opts.Concurrency)
	for _, p := range panels {
		g.Go(func() error {
			l, err := f.connectOne(gctx, p)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed = append(failed, p)
			} else if l != nil {
				connected = append(connected, l)
			}
			// per-panel failures are recorded, never returned
			return nil
		})
	}
	_ = g.Wait()
	return connected, failed
}

// connectOne returns (nil, nil) when the panel is already connected or another
// attempt is in flight.
func (f *Fleet) connectOne(ctx context.Context, p layout.Panel) (*link.Link, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, ErrClosed
	}
	if f.connecting[p.ID] || f.hasLinkLocked(p.ID) {
		f.mu.Unlock()
		return nil, nil
	}
	f.connecting[p.ID] = true
	f.mu.Unlock()

	l, err := f.dial(ctx, p)

	f.mu.Lock()
	delete(f.connecting, p.ID)
	if err == nil && f.closed {
		_ = l.Disconnect()
		err = ErrClosed
	}
	if err != nil {
		f.errs[p.ID] = err
	} else {
		delete(f.errs, p.ID)
		f.links = append(f.links, l)
	}
	f.mu.Unlock()

	if err != nil {
		f.log.Warn().Err(err).Str("panel", p.ID).Str("target", link.Target(p)).Msg("panel connect failed")
		f.emit(diagnostics.ConnectFailed(p.ID, link.Target(p), err))
		return nil, err
	}
	f.log.Info().Str("panel", p.ID).Str("target", l.Target()).Int("leds", l.LEDCount()).
		Str("protocol", string(p.Protocol)).Msg("panel connected")
	f.emit(diagnostics.Connected(p.ID, l.Target()))
	return l, nil
}

func (f *Fleet) dial(ctx context.Context, p layout.Panel) (*link.Link, error) {
	if f.opts.Metadata != nil {
		w, h, err := f.opts.Metadata.PanelSize(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("metadata: %w", err)
		}
		if sized := p.WithSize(layout.Size{W: w, H: h}); sized.Size != p.Size {
			if err := f.canvas.Fit(sized); err != nil {
				f.log.Warn().Err(err).Str("panel", p.ID).Msg("reported size does not fit the canvas, keeping configured size")
			} else {
				f.log.Info().Str("panel", p.ID).Int("w", sized.Size.W).Int("h", sized.Size.H).Msg("panel size from metadata")
				p = sized
			}
		}
	}
	l := link.New(p, f.opts.WriteTimeout)
	if err := l.Connect(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

func (f *Fleet) hasLinkLocked(id string) bool {
	for _, l := range f.links {
		if l.ID() == id {
			return true
		}
	}
	return false
}

// Links is a snapshot of the connected links.
func (f *Fleet) Links() []*link.Link {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]*link.Link, len(f.links))
	copy(out, f.links)
	return out
}

// BroadcastFrame sends each connected panel its slice of frame. A failing link
// is logged and counted; the rest still get the frame.
func (f *Fleet) BroadcastFrame(frame *render.Frame) BroadcastResult {
	links := f.Links()
	if len(links) == 0 {
		return BroadcastResult{}
	}
	if len(links) <= broadcastBatch {
		var res BroadcastResult
		var buf []byte
		for _, l := range links {
			buf = frame.Extract(l.Panel(), buf)
			f.sendOne(l, buf, &res)
		}
		return res
	}

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		res BroadcastResult
	)
	for i := 0; i < len(links); i += broadcastBatch {
		batch := links[i:min(i+broadcastBatch, len(links))]
		wg.Add(1)
		go func(b []*link.Link) {
			defer wg.Done()
			var local BroadcastResult
			var buf []byte
			for _, l := range b {
				buf = frame.Extract(l.Panel(), buf)
				f.sendOne(l, buf, &local)
			}
			mu.Lock()
			res.Sent += local.Sent
			res.Failed += local.Failed
			mu.Unlock()
		}(batch)
	}
	wg.Wait()
	return res
}

func (f *Fleet) sendOne(l *link.Link, buf []byte, res *BroadcastResult) {
	if err := l.SendFrame(buf); err != nil {
		res.Failed++
		f.sendLog.Warn().Err(err).Str("panel", l.ID()).Msg("frame send failed")
		f.emit(diagnostics.SendFailed(l.ID(), err))
		return
	}
	res.Sent++
}

// Shutdown blacks out every link connected at call time, then closes them.
// Later calls do nothing.
func (f *Fleet) Shutdown() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	links := f.links
	f.links = nil
	f.mu.Unlock()

	for _, l := range links {
		if err := l.Close(); err != nil {
			f.log.Warn().Err(err).Str("panel", l.ID()).Msg("blackout or disconnect failed")
		}
	}
	f.log.Info().Int("links", len(links)).Msg("fleet shut down")
}

// Status reports connected vs total panels and which ones failed.
func (f *Fleet) Status() Status {
	f.mu.RLock()
	defer f.mu.RUnlock()
	st := Status{
		Connected: len(f.links),
		Total:     len(f.order),
		Failed:    []string{},
		Errors:    map[string]string{},
		Links:     []LinkStatus{},
	}
	live := make(map[string]bool, len(f.links))
	for _, l := range f.links {
		live[l.ID()] = true
		s := l.Stats()
		st.Links = append(st.Links, LinkStatus{
			ID:      l.ID(),
			Target:  l.Target(),
			LEDs:    l.LEDCount(),
			Frames:  s.Frames,
			Packets: s.Packets,
			Errors:  s.Errors,
		})
	}
	for _, id := range f.order {
		if live[id] {
			continue
		}
		st.Failed = append(st.Failed, id)
		if err := f.errs[id]; err != nil {
			st.Errors[id] = err.Error()
		}
	}
	sort.Slice(st.Links, func(i, j int) bool { return st.Links[i].ID < st.Links[j].ID })
	return st
}

func (f *Fleet) emit(d diagnostics.Diagnostic) {
	if f.opts.OnDiagnostic != nil {
		f.opts.OnDiagnostic(d)
	}
}
