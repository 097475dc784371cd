package wled

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/panelcast/internal/layout"
)

func serve(t *testing.T, info, cfg string) (*Client, layout.Panel) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/json/info", func(w http.ResponseWriter, r *http.Request) {
		if info == "" {
			http.Error(w, "nope", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(info))
	})
	mux.HandleFunc("/json/cfg", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(cfg))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	host, port, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	n, _ := strconv.Atoi(port)

	c := NewClient()
	c.Port = n
	p := layout.Panel{
		ID:      "p1",
		Address: net.JoinHostPort(host, "4048"),
		Size:    layout.Size{W: 16, H: 16},
	}
	return c, p
}

func TestPanelSizeFromMatrix(t *testing.T) {
	c, p := serve(t, `{"name":"wled-a","leds":{"count":512,"matrix":{"w":32,"h":16}}}`, `{}`)
	w, h, err := c.PanelSize(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 32, w)
	assert.Equal(t, 16, h)
}

func TestPanelSizeWithoutMatrix(t *testing.T) {
	c, p := serve(t, `{"name":"strip","leds":{"count":60}}`, `{}`)
	w, h, err := c.PanelSize(context.Background(), p)
	require.NoError(t, err)
	assert.Zero(t, w)
	assert.Zero(t, h)
}

func TestPanelSizeHTTPError(t *testing.T) {
	c, p := serve(t, "", `{}`)
	_, _, err := c.PanelSize(context.Background(), p)
	assert.ErrorIs(t, err, ErrStatus)
}

func TestPanelSizeCancelled(t *testing.T) {
	c, p := serve(t, `{}`, `{}`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := c.PanelSize(ctx, p)
	assert.Error(t, err)
}

func TestVerify(t *testing.T) {
	c, p := serve(t,
		`{"leds":{"count":256,"matrix":{"w":16,"h":16}}}`,
		`{"hw":{"led":{"total":256}},"if":{"live":{"port":6454,"dmx":{"uni":2,"addr":0}}}}`)

	issues, err := c.Verify(context.Background(), p)
	require.NoError(t, err)
	assert.Empty(t, issues)

	p.Protocol = layout.ArtNet
	p.Universe = 1
	issues, err = c.Verify(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], "universe 2")

	p.Size = layout.Size{W: 8, H: 8}
	issues, err = c.Verify(context.Background(), p)
	require.NoError(t, err)
	assert.Len(t, issues, 4)
}
