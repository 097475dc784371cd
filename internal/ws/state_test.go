package ws

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/coreman2200/panelcast/internal/app"
	"github.com/coreman2200/panelcast/internal/config"
	"github.com/coreman2200/panelcast/internal/diagnostics"
)

func newServer(t *testing.T) (*app.Core, *State, *httptest.Server) {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { pc.Close() })

	cfg := &config.Config{
		Rate:       config.Rate{Frequency: config.DefaultRate},
		Brightness: 1,
		Scene:      "solid",
		Panels: []config.Panel{{
			ID:      "p1",
			Address: pc.LocalAddr().String(),
			Size:    config.WH{W: 4, H: 2},
		}},
	}
	nop := zerolog.Nop()
	core, err := app.InitCore(cfg, app.Options{Logger: &nop})
	require.NoError(t, err)
	st := NewState(core, &nop)

	mux := http.NewServeMux()
	st.Routes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	go st.Run(ctx)
	t.Cleanup(func() {
		core.Close()
		cancel()
	})
	return core, st, srv
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	c, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func readJSON(t *testing.T, c *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, b, err := c.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, v))
}

func TestHealth(t *testing.T) {
	core, _, srv := newServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	core.Connect(context.Background())
	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Fleet struct {
			Connected int      `json:"connected"`
			Total     int      `json:"total"`
			Failed    []string `json:"failed"`
		} `json:"fleet"`
		Brightness float64 `json:"brightness"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body.Fleet.Connected)
	assert.Equal(t, 1, body.Fleet.Total)
	assert.Empty(t, body.Fleet.Failed)
	assert.Equal(t, 1.0, body.Brightness)
}

func TestControlCommands(t *testing.T) {
	core, _, srv := newServer(t)
	core.Connect(context.Background())
	c := dial(t, srv, "/control")

	send := func(cmd string) Reply {
		require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(cmd)))
		var r Reply
		readJSON(t, c, &r)
		return r
	}

	r := send(`{"cmd":"brightness","value":0.25}`)
	assert.True(t, r.OK)
	assert.Equal(t, 0.25, core.Sched.Brightness())

	r = send(`{"cmd":"brightness"}`)
	assert.False(t, r.OK)

	r = send(`{"cmd":"scene","name":"sweep"}`)
	assert.True(t, r.OK)
	r = send(`{"cmd":"scene","name":"plasma"}`)
	assert.False(t, r.OK)
	assert.Contains(t, r.Error, "unknown scene")

	r = send(`{"cmd":"retry"}`)
	assert.True(t, r.OK)
	require.NotNil(t, r.Status)
	assert.Equal(t, 1, r.Status.Connected)

	r = send(`{"cmd":"dance"}`)
	assert.False(t, r.OK)
	assert.Equal(t, ErrUnknownCommand.Error(), r.Error)

	r = send(`not json`)
	assert.False(t, r.OK)
}

func TestDiagReplaysRecent(t *testing.T) {
	core, _, srv := newServer(t)
	core.Connect(context.Background())

	c := dial(t, srv, "/diag")
	var d diagnostics.Diagnostic
	readJSON(t, c, &d)
	assert.Equal(t, diagnostics.CodeConnected, d.Code)
	readJSON(t, c, &d)
	assert.Equal(t, diagnostics.CodePartial, d.Code)
	assert.Equal(t, diagnostics.Info, d.Severity)
}

func TestFramePreview(t *testing.T) {
	core, _, srv := newServer(t)
	core.Connect(context.Background())
	c := dial(t, srv, "/ws")

	var top topology
	readJSON(t, c, &top)
	assert.Equal(t, 4, top.Canvas.W)
	assert.Equal(t, 2, top.Canvas.H)
	require.Len(t, top.Panels, 1)
	assert.Equal(t, "ddp", top.Panels[0].Protocol)
	assert.Contains(t, top.Scenes, "grad")

	require.NoError(t, core.Start())
	var f frameMsg
	readJSON(t, c, &f)
	assert.Equal(t, 4, f.W)
	assert.Equal(t, 2, f.H)
	assert.Len(t, f.RGB, 4*2*3)
	assert.NotZero(t, f.FrameID)
}

func TestFramePreviewMsgpack(t *testing.T) {
	core, _, srv := newServer(t)
	core.Connect(context.Background())
	c := dial(t, srv, "/ws?format=msgpack")

	var top topology
	readJSON(t, c, &top)
	require.NoError(t, core.Start())

	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	kind, b, err := c.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, kind)
	var f frameMsg
	require.NoError(t, msgpack.Unmarshal(b, &f))
	assert.Equal(t, 4, f.W)
	assert.Len(t, f.RGB, 4*2*3)
}
