package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"

	"github.com/coreman2200/panelcast/internal/layout"
	"github.com/coreman2200/panelcast/internal/render"
	"github.com/coreman2200/panelcast/internal/sequence"
)

const DefaultRate = 60 * physic.Hertz

var ErrInvalid = errors.New("invalid config")

// Rate is a frame rate written as "60Hz" (or a bare number of hertz).
type Rate struct{ physic.Frequency }

func (r *Rate) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("rate: expected a scalar, got %v", n.Tag)
	}
	s := n.Value
	if err := r.Set(s); err != nil {
		return fmt.Errorf("rate %q: %w", s, err)
	}
	return nil
}

func (r Rate) MarshalYAML() (any, error) { return r.String(), nil }

type XY struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
}

type WH struct {
	W int `yaml:"w"`
	H int `yaml:"h"`
}

type Panel struct {
	ID      string `yaml:"id"`
	Address string `yaml:"address"` // host or host:port
	Grid    XY     `yaml:"grid"`
	Size    WH     `yaml:"size"`
	Offset  XY     `yaml:"offset,omitempty"`

	StartCorner    string `yaml:"start_corner,omitempty"`
	Order          string `yaml:"order,omitempty"`
	Serpentine     bool   `yaml:"serpentine,omitempty"`
	SerpentineMode string `yaml:"serpentine_mode,omitempty"`
	MirrorX        bool   `yaml:"mirror_x,omitempty"`

	Protocol string `yaml:"protocol,omitempty"` // "ddp" | "artnet"
	Universe int    `yaml:"universe,omitempty"`
	DMXStart int    `yaml:"dmx_start,omitempty"`
}

type Metadata struct {
	Enabled  bool `yaml:"enabled"`
	Verify   bool `yaml:"verify,omitempty"`
	HTTPPort int  `yaml:"http_port,omitempty"`
}

type Network struct {
	WriteTimeout time.Duration `yaml:"write_timeout,omitempty"`
	Concurrency  int           `yaml:"connect_concurrency,omitempty"`
}

type Config struct {
	Rate       Rate    `yaml:"rate"`
	Brightness float64 `yaml:"brightness"`
	HTTPAddr   string  `yaml:"http_addr,omitempty"`

	Canvas WH      `yaml:"canvas,omitempty"`
	Panels []Panel `yaml:"panels"`

	Scene   string            `yaml:"scene,omitempty"`
	Preset  string            `yaml:"preset,omitempty"`
	Program *sequence.Program `yaml:"program,omitempty"`

	Limiter  render.Limiter `yaml:"limiter,omitempty"`
	Metadata Metadata       `yaml:"metadata,omitempty"`
	Network  Network        `yaml:"network,omitempty"`
}

// Default is four 16x16 WLED panels in a 2x2 grid, wired column-major and
// serpentine from the bottom-left.
func Default() *Config {
	c := &Config{
		Rate:       Rate{DefaultRate},
		Brightness: 1,
		HTTPAddr:   ":8080",
		Scene:      "grad",
		Metadata:   Metadata{Enabled: true},
	}
	grid := []XY{{0, 0}, {1, 0}, {0, 1}, {1, 1}}
	for i, g := range grid {
		c.Panels = append(c.Panels, Panel{
			ID:          fmt.Sprintf("panel-%d", i+1),
			Address:     fmt.Sprintf("192.168.7.%d", 113+i),
			Grid:        g,
			Size:        WH{W: 16, H: 16},
			StartCorner: string(layout.BottomLeft),
			Order:       string(layout.ColumnMajor),
			Serpentine:  true,
			Protocol:    string(layout.DDP),
		})
	}
	return c
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Parse decodes YAML and fills defaults for anything left out.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Rate.Frequency == 0 {
		c.Rate = Rate{DefaultRate}
	}
	if c.Rate.Frequency < 0 {
		return nil, fmt.Errorf("%w: rate %s", ErrInvalid, c.Rate)
	}
	if c.Brightness == 0 {
		c.Brightness = 1
	}
	if c.Brightness < 0 || c.Brightness > 1 {
		return nil, fmt.Errorf("%w: brightness %v not in 0..1", ErrInvalid, c.Brightness)
	}
	return &c, nil
}

func Save(path string, c *Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

// Layout converts the panel list into a validated layout.
func (c *Config) Layout() (layout.Layout, error) {
	panels := make([]layout.Panel, 0, len(c.Panels))
	for i, p := range c.Panels {
		id := p.ID
		if id == "" {
			id = fmt.Sprintf("panel-%d", i+1)
		}
		panels = append(panels, layout.Panel{
			ID:      id,
			Address: p.Address,
			Grid:    layout.Point{X: p.Grid.X, Y: p.Grid.Y},
			Size:    layout.Size{W: p.Size.W, H: p.Size.H},
			Offset:  layout.Point{X: p.Offset.X, Y: p.Offset.Y},
			Wiring: layout.Wiring{
				StartCorner:    layout.Corner(p.StartCorner),
				Order:          layout.Order(p.Order),
				Serpentine:     p.Serpentine,
				SerpentineMode: layout.SerpentineMode(p.SerpentineMode),
				MirrorX:        p.MirrorX,
			},
			Protocol: layout.Protocol(p.Protocol),
			Universe: p.Universe,
			DMXStart: p.DMXStart,
		})
	}
	l, err := layout.New(panels, layout.Size{W: c.Canvas.W, H: c.Canvas.H})
	if err != nil {
		return layout.Layout{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return l, nil
}
