// Package wled reads panel metadata from WLED controllers over their JSON API.
package wled

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/coreman2200/panelcast/internal/layout"
)

const (
	ConnectTimeout = 2 * time.Second
	ReadTimeout    = 3 * time.Second
)

var ErrStatus = errors.New("wled: unexpected http status")

type Info struct {
	Name string `json:"name"`
	Ver  string `json:"ver"`
	Leds struct {
		Count  int `json:"count"`
		FPS    int `json:"fps"`
		Matrix *struct {
			W int `json:"w"`
			H int `json:"h"`
		} `json:"matrix"`
	} `json:"leds"`
}

type Config struct {
	HW struct {
		Led struct {
			Total int `json:"total"`
		} `json:"led"`
	} `json:"hw"`
	Iface struct {
		Live struct {
			Port int `json:"port"`
			DMX  struct {
				Universe int `json:"uni"`
				Addr     int `json:"addr"`
			} `json:"dmx"`
		} `json:"live"`
	} `json:"if"`
}

// Client talks to the HTTP API of each panel's host.
type Client struct {
	HTTP *http.Client
	Port int // HTTP port on the panel host; 0 means 80
}

func NewClient() *Client {
	d := &net.Dialer{Timeout: ConnectTimeout}
	return &Client{HTTP: &http.Client{
		Timeout: ConnectTimeout + ReadTimeout,
		Transport: &http.Transport{
			DialContext:           d.DialContext,
			ResponseHeaderTimeout: ReadTimeout,
		},
	}}
}

func (c *Client) url(p layout.Panel, path string) string {
	host := p.Address
	if h, _, err := net.SplitHostPort(p.Address); err == nil {
		host = h
	}
	if c.Port > 0 && c.Port != 80 {
		host = net.JoinHostPort(host, strconv.Itoa(c.Port))
	}
	return "http://" + host + path
}

func (c *Client) get(ctx context.Context, p layout.Panel, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(p, path), nil)
	if err != nil {
		return err
	}
	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("wled %s%s: %w", p.Address, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s%s: %d", ErrStatus, p.Address, path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("wled %s%s: decode: %w", p.Address, path, err)
	}
	return nil
}

func (c *Client) Info(ctx context.Context, p layout.Panel) (*Info, error) {
	var info Info
	if err := c.get(ctx, p, "/json/info", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) Config(ctx context.Context, p layout.Panel) (*Config, error) {
	var cfg Config
	if err := c.get(ctx, p, "/json/cfg", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// PanelSize returns the 2D matrix size the controller reports. A controller
// not in 2D mode returns 0,0 so the configured size is kept.
func (c *Client) PanelSize(ctx context.Context, p layout.Panel) (int, int, error) {
	info, err := c.Info(ctx, p)
	if err != nil {
		return 0, 0, err
	}
	if info.Leds.Matrix == nil {
		return 0, 0, nil
	}
	return info.Leds.Matrix.W, info.Leds.Matrix.H, nil
}

// Verify compares what the controller reports against the configured panel and
// returns one line per mismatch.
func (c *Client) Verify(ctx context.Context, p layout.Panel) ([]string, error) {
	info, err := c.Info(ctx, p)
	if err != nil {
		return nil, err
	}
	var issues []string
	want := p.Count()
	if info.Leds.Count != want {
		issues = append(issues, fmt.Sprintf("device reports %d LEDs, expected %d", info.Leds.Count, want))
	}
	if m := info.Leds.Matrix; m == nil {
		issues = append(issues, "leds.matrix missing (device may not be in 2D mode)")
	} else if m.W != p.Size.W || m.H != p.Size.H {
		issues = append(issues, fmt.Sprintf("matrix %dx%d, expected %dx%d", m.W, m.H, p.Size.W, p.Size.H))
	}

	if p.Protocol == layout.ArtNet {
		cfg, err := c.Config(ctx, p)
		if err != nil {
			return issues, err
		}
		if n := cfg.HW.Led.Total; n != 0 && n != want {
			issues = append(issues, fmt.Sprintf("cfg hw.led.total=%d, expected %d", n, want))
		}
		dmx := cfg.Iface.Live.DMX
		if dmx.Universe != p.Universe {
			issues = append(issues, fmt.Sprintf("dmx universe %d, expected %d", dmx.Universe, p.Universe))
		}
		if dmx.Addr != p.DMXStart {
			issues = append(issues, fmt.Sprintf("dmx start address %d, expected %d", dmx.Addr, p.DMXStart))
		}
	}
	return issues, nil
}
