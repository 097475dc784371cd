// Package link owns the UDP socket for one panel and frames pixel buffers in
// the panel's protocol.
package link

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coreman2200/panelcast/internal/artnet"
	"github.com/coreman2200/panelcast/internal/ddp"
	"github.com/coreman2200/panelcast/internal/layout"
)

// DefaultWriteTimeout bounds a single packet write so a wedged socket cannot
// hold up a tick.
const DefaultWriteTimeout = 50 * time.Millisecond

var (
	ErrNotConnected   = errors.New("link: not connected")
	ErrBufferTooSmall = errors.New("link: buffer too small")
)

type State int

const (
	Disconnected State = iota
	Connected
)

func (s State) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// Stats are cumulative counters for one link.
type Stats struct {
	Frames  uint64
	Packets uint64
	Errors  uint64
}

type Link struct {
	panel        layout.Panel
	writeTimeout time.Duration

	mu   sync.Mutex
	conn net.Conn
	seq  uint8

	frames  atomic.Uint64
	packets atomic.Uint64
	errs    atomic.Uint64
}

// New returns a disconnected link for p. writeTimeout <= 0 uses DefaultWriteTimeout.
func New(p layout.Panel, writeTimeout time.Duration) *Link {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &Link{panel: p, writeTimeout: writeTimeout}
}

func (l *Link) Panel() layout.Panel { return l.panel }

func (l *Link) ID() string { return l.panel.ID }

func (l *Link) LEDCount() int { return l.panel.Count() }

// Target is the host:port the link sends to.
func (l *Link) Target() string { return Target(l.panel) }

// Target appends the protocol's default port when the address has none.
func Target(p layout.Panel) string {
	if _, _, err := net.SplitHostPort(p.Address); err == nil {
		return p.Address
	}
	port := ddp.Port
	if p.Protocol == layout.ArtNet {
		port = artnet.Port
	}
	return net.JoinHostPort(p.Address, strconv.Itoa(port))
}

func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		return Connected
	}
	return Disconnected
}

func (l *Link) Connected() bool { return l.State() == Connected }

// Connect opens the socket. Calling it on a connected link is a no-op.
func (l *Link) Connect(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		return nil
	}
	var d net.Dialer
	c, err := d.DialContext(ctx, "udp", l.Target())
	if err != nil {
		return fmt.Errorf("link %s: dial %s: %w", l.panel.ID, l.Target(), err)
	}
	l.conn = c
	return nil
}

func (l *Link) Disconnect() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	err := l.conn.Close()
	l.conn = nil
	return err
}

// SendFrame encodes rgb (three bytes per LED in local index order) and writes
// every packet. Extra bytes past LEDCount are ignored. A transport error is
// returned for this frame only; the link stays connected.
func (l *Link) SendFrame(rgb []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sendLocked(rgb)
}

func (l *Link) sendLocked(rgb []byte) error {
	if l.conn == nil {
		return ErrNotConnected
	}
	n := l.panel.Count() * 3
	if len(rgb) < n {
		return fmt.Errorf("%w: have %d bytes, need %d", ErrBufferTooSmall, len(rgb), n)
	}
	rgb = rgb[:n]

	var (
		packets [][]byte
		err     error
	)
	switch l.panel.Protocol {
	case layout.ArtNet:
		packets, err = artnet.Encode(rgb, l.panel.Universe, l.panel.DMXStart)
	default:
		packets, err = ddp.Encode(rgb, l.seq)
	}
	if err != nil {
		return err
	}

	for _, p := range packets {
		_ = l.conn.SetWriteDeadline(time.Now().Add(l.writeTimeout))
		if _, err := l.conn.Write(p); err != nil {
			l.errs.Add(1)
			return fmt.Errorf("link %s: write: %w", l.panel.ID, err)
		}
		l.packets.Add(1)
	}
	if l.panel.Protocol != layout.ArtNet {
		l.seq++
	}
	l.frames.Add(1)
	return nil
}

// Blackout sends an all-zero frame.
func (l *Link) Blackout() error {
	return l.SendFrame(make([]byte, l.panel.Count()*3))
}

// Close blacks the panel out and disconnects. No frame can be sent between
// the two. The disconnect happens even if the blackout fails.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	berr := l.sendLocked(make([]byte, l.panel.Count()*3))
	cerr := l.conn.Close()
	l.conn = nil
	return errors.Join(berr, cerr)
}

func (l *Link) Seq() uint8 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

func (l *Link) Stats() Stats {
	return Stats{Frames: l.frames.Load(), Packets: l.packets.Load(), Errors: l.errs.Load()}
}
