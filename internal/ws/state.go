// Package ws serves the live preview, diagnostics stream, control channel and
// health endpoint.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/coreman2200/panelcast/internal/app"
	"github.com/coreman2200/panelcast/internal/diagnostics"
	"github.com/coreman2200/panelcast/internal/fleet"
	"github.com/coreman2200/panelcast/internal/render"
)

const (
	writeWait   = 200 * time.Millisecond
	diagBacklog = 32
)

var ErrUnknownCommand = errors.New("unknown command")

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

type client struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	binary bool // msgpack frames instead of JSON
}

func (c *client) write(b []byte) error {
	return c.writeMessage(websocket.TextMessage, b)
}

func (c *client) writeMessage(kind int, b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(kind, b)
}

type State struct {
	core  *app.Core
	log   zerolog.Logger
	start time.Time

	mu          sync.RWMutex
	clients     map[*client]bool
	diagClients map[*client]chan diagnostics.Diagnostic

	frames  chan *render.Frame
	frameID atomic.Uint64
	stopSub func()
}

type frameMsg struct {
	T       int64  `json:"t" msgpack:"t"`
	FrameID uint64 `json:"frame_id" msgpack:"frame_id"`
	W       int    `json:"w" msgpack:"w"`
	H       int    `json:"h" msgpack:"h"`
	RGB     []byte `json:"rgb" msgpack:"rgb"`
}

type topology struct {
	Canvas struct {
		W int `json:"w"`
		H int `json:"h"`
	} `json:"canvas"`
	Panels     []panelInfo `json:"panels"`
	Scenes     []string    `json:"scenes"`
	Rate       string      `json:"rate"`
	Brightness float64     `json:"brightness"`
}

type panelInfo struct {
	ID       string `json:"id"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	W        int    `json:"w"`
	H        int    `json:"h"`
	Protocol string `json:"protocol"`
}

// Command is one control message, e.g. {"cmd":"brightness","value":0.4}.
type Command struct {
	Cmd    string   `json:"cmd"`
	Value  *float64 `json:"value,omitempty"`
	Name   string   `json:"name,omitempty"`
	Preset string   `json:"preset,omitempty"`
}

type Reply struct {
	OK     bool          `json:"ok"`
	Cmd    string        `json:"cmd"`
	Error  string        `json:"error,omitempty"`
	Status *fleet.Status `json:"status,omitempty"`
}

func NewState(core *app.Core, logger *zerolog.Logger) *State {
	lg := log.Logger
	if logger != nil {
		lg = *logger
	}
	s := &State{
		core:        core,
		log:         lg.With().Str("component", "ws").Logger(),
		start:       time.Now(),
		clients:     map[*client]bool{},
		diagClients: map[*client]chan diagnostics.Diagnostic{},
		frames:      make(chan *render.Frame, 1),
	}
	core.Sched.AddObserver(s.offerFrame)
	s.stopSub = core.Diag.Subscribe(s.pushDiag)
	return s
}

// Routes registers the handlers on mux.
func (s *State) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.HandleFramesWS)
	mux.HandleFunc("/diag", s.HandleDiagWS)
	mux.HandleFunc("/control", s.HandleControlWS)
	mux.HandleFunc("/health", s.HandleHealth)
}

// Run forwards preview frames to websocket clients until ctx is done.
func (s *State) Run(ctx context.Context) {
	defer s.stopSub()
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-s.frames:
			s.broadcastFrame(f)
		}
	}
}

// offerFrame runs on the scheduler tick; a slow preview drops frames instead
// of holding the tick.
func (s *State) offerFrame(f *render.Frame, _ fleet.BroadcastResult) {
	s.frameID.Add(1)
	select {
	case s.frames <- f:
	default:
		select {
		case <-s.frames:
		default:
		}
		select {
		case s.frames <- f:
		default:
		}
	}
}

// HandleFramesWS streams preview frames. The first message is the topology as
// JSON; ?format=msgpack switches the frames to binary msgpack messages.
func (s *State) HandleFramesWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{conn: conn, binary: r.URL.Query().Get("format") == "msgpack"}
	if b, err := json.Marshal(s.topology()); err == nil {
		_ = c.write(b)
	}
	s.mu.Lock()
	s.clients[c] = true
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.clients, c)
			s.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *State) HandleDiagWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{conn: conn}
	ch := make(chan diagnostics.Diagnostic, diagBacklog)
	for _, d := range s.core.Diag.Recent() {
		select {
		case ch <- d:
		default:
		}
	}
	s.mu.Lock()
	s.diagClients[c] = ch
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.diagClients, c)
			s.mu.Unlock()
			conn.Close()
		}()
		for {
			select {
			case <-done:
				return
			case d := <-ch:
				b, _ := json.Marshal(d)
				if err := c.write(b); err != nil {
					s.log.Debug().Err(err).Msg("write diagnostic")
					return
				}
			}
		}
	}()
}

func (s *State) HandleControlWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	c := &client{conn: conn}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd Command
		var rep Reply
		if err := json.Unmarshal(data, &cmd); err != nil {
			rep = Reply{Error: err.Error()}
		} else {
			rep = s.Apply(r.Context(), cmd)
		}
		b, _ := json.Marshal(rep)
		if err := c.write(b); err != nil {
			return
		}
	}
}

// Apply runs one control command.
func (s *State) Apply(ctx context.Context, cmd Command) Reply {
	rep := Reply{Cmd: cmd.Cmd}
	var err error
	switch cmd.Cmd {
	case "retry":
		st := s.core.Retry(ctx)
		rep.Status = &st
	case "brightness":
		if cmd.Value == nil {
			err = errors.New("brightness needs a value")
			break
		}
		s.core.Sched.SetBrightness(*cmd.Value)
	case "scene":
		err = s.core.SetScene(cmd.Name, cmd.Preset)
	case "status":
		st := s.core.Fleet.Status()
		rep.Status = &st
	default:
		err = ErrUnknownCommand
	}
	if err != nil {
		rep.Error = err.Error()
		s.log.Warn().Err(err).Str("cmd", cmd.Cmd).Msg("control command rejected")
		return rep
	}
	rep.OK = true
	s.log.Info().Str("cmd", cmd.Cmd).Msg("control")
	return rep
}

func (s *State) HandleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.core.Fleet.Status()
	resp := map[string]any{
		"frame_id":   s.frameID.Load(),
		"uptime_s":   time.Since(s.start).Seconds(),
		"fleet":      st,
		"scheduler":  s.core.Sched.Stats(),
		"brightness": s.core.Sched.Brightness(),
	}
	w.Header().Set("Content-Type", "application/json")
	if len(s.core.Layout.Panels) > 0 && st.Connected == 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *State) topology() topology {
	var t topology
	l := s.core.Layout
	t.Canvas.W, t.Canvas.H = l.Canvas.W, l.Canvas.H
	for _, p := range l.Panels {
		o := p.Origin()
		t.Panels = append(t.Panels, panelInfo{ID: p.ID, X: o.X, Y: o.Y, W: p.Size.W, H: p.Size.H, Protocol: string(p.Protocol)})
	}
	t.Scenes = s.core.Reg.List()
	t.Rate = s.core.Sched.Rate().String()
	t.Brightness = s.core.Sched.Brightness()
	return t
}

func (s *State) broadcastFrame(f *render.Frame) {
	msg := frameMsg{T: time.Now().UnixNano(), FrameID: s.frameID.Load(), W: f.W, H: f.H, RGB: f.Pix}
	var text, bin []byte
	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.clients {
		var err error
		if c.binary {
			if bin == nil {
				if bin, err = msgpack.Marshal(msg); err != nil {
					return
				}
			}
			err = c.writeMessage(websocket.BinaryMessage, bin)
		} else {
			if text == nil {
				if text, err = json.Marshal(msg); err != nil {
					return
				}
			}
			err = c.write(text)
		}
		if err != nil {
			s.log.Debug().Err(err).Msg("write frame")
		}
	}
}

// pushDiag never blocks; a client that falls behind loses diagnostics.
func (s *State) pushDiag(d diagnostics.Diagnostic) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.diagClients {
		select {
		case ch <- d:
		default:
		}
	}
}
