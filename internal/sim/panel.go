// Package sim is a stand-in WLED panel. It reassembles DDP or Art-Net frames
// from a UDP socket and answers the JSON API the way a controller in 2D mode
// does.
package sim

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/panelcast/internal/artnet"
	"github.com/coreman2200/panelcast/internal/ddp"
	"github.com/coreman2200/panelcast/internal/layout"
)

type Panel struct {
	panel layout.Panel
	log   zerolog.Logger

	// OnFrame gets each completed frame in serial LED order. The slice is a copy.
	OnFrame func(rgb []byte)

	mu     sync.Mutex
	buf    []byte
	seen   map[int]bool
	last   []byte
	frames uint64
	conn   net.PacketConn
}

func New(p layout.Panel, logger *zerolog.Logger) *Panel {
	lg := log.Logger
	if logger != nil {
		lg = *logger
	}
	if p.Protocol == "" {
		p.Protocol = layout.DDP
	}
	return &Panel{
		panel: p,
		log:   lg.With().Str("component", "sim").Str("panel", p.ID).Logger(),
		buf:   make([]byte, p.Count()*3),
		seen:  map[int]bool{},
	}
}

// Listen binds the UDP socket, e.g. "127.0.0.1:0" or ":4048".
func (s *Panel) Listen(addr string) (net.Addr, error) {
	pc, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.conn = pc
	s.mu.Unlock()
	return pc.LocalAddr(), nil
}

// Serve reads packets until ctx is done.
func (s *Panel) Serve(ctx context.Context) error {
	s.mu.Lock()
	pc := s.conn
	s.mu.Unlock()
	if pc == nil {
		return errors.New("sim: Listen first")
	}
	go func() {
		<-ctx.Done()
		pc.Close()
	}()

	buf := make([]byte, 2048)
	for {
		n, _, err := pc.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Warn().Err(err).Msg("read")
			continue
		}
		s.handle(buf[:n])
	}
}

func (s *Panel) handle(pkt []byte) {
	var done []byte
	s.mu.Lock()
	switch s.panel.Protocol {
	case layout.ArtNet:
		done = s.artnetLocked(pkt)
	default:
		done = s.ddpLocked(pkt)
	}
	cb := s.OnFrame
	s.mu.Unlock()
	if done != nil && cb != nil {
		cb(done)
	}
}

func (s *Panel) ddpLocked(pkt []byte) []byte {
	h, data, err := ddp.Parse(pkt)
	if err != nil {
		s.log.Debug().Err(err).Msg("bad ddp packet")
		return nil
	}
	if off := int(h.Offset); off < len(s.buf) {
		copy(s.buf[off:], data)
	}
	if !h.Push() {
		return nil
	}
	return s.completeLocked()
}

func (s *Panel) artnetLocked(pkt []byte) []byte {
	data := artnet.Payload(pkt)
	if data == nil || len(data) < s.panel.DMXStart {
		return nil
	}
	k := artnet.Universe(pkt) - s.panel.Universe
	leds := s.panel.Count()
	universes := (leds + artnet.LEDsPerPacket - 1) / artnet.LEDsPerPacket
	if k < 0 || k >= universes {
		return nil
	}
	data = data[s.panel.DMXStart:]
	first := k * artnet.LEDsPerPacket
	for i := 0; i+2 < len(data) && first+i/3 < leds; i += 3 {
		j := (first + i/3) * 3
		// wire order is B,R,G
		s.buf[j], s.buf[j+1], s.buf[j+2] = data[i+1], data[i+2], data[i]
	}
	s.seen[k] = true
	if len(s.seen) < universes {
		return nil
	}
	clear(s.seen)
	return s.completeLocked()
}

func (s *Panel) completeLocked() []byte {
	s.frames++
	s.last = append(s.last[:0], s.buf...)
	return append([]byte(nil), s.buf...)
}

// Last returns a copy of the most recent complete frame.
func (s *Panel) Last() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.last...)
}

func (s *Panel) Frames() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// ServeHTTP answers /json/info and /json/cfg.
func (s *Panel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p := s.panel
	var body any
	switch r.URL.Path {
	case "/json/info":
		body = map[string]any{
			"name": p.ID,
			"ver":  "panelsim",
			"leds": map[string]any{
				"count":  p.Count(),
				"fps":    0,
				"matrix": map[string]int{"w": p.Size.W, "h": p.Size.H},
			},
		}
	case "/json/cfg":
		body = map[string]any{
			"hw": map[string]any{"led": map[string]int{"total": p.Count()}},
			"if": map[string]any{"live": map[string]any{
				"dmx": map[string]int{"uni": p.Universe, "addr": p.DMXStart},
			}},
		}
	default:
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}
