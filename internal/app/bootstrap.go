package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/panelcast/internal/config"
	"github.com/coreman2200/panelcast/internal/diagnostics"
	"github.com/coreman2200/panelcast/internal/fleet"
	"github.com/coreman2200/panelcast/internal/layout"
	"github.com/coreman2200/panelcast/internal/link"
	"github.com/coreman2200/panelcast/internal/render"
	"github.com/coreman2200/panelcast/internal/render/scenes"
	"github.com/coreman2200/panelcast/internal/sequence"
	"github.com/coreman2200/panelcast/internal/wled"
)

// Verifier checks a connected panel against what its controller reports.
type Verifier interface {
	Verify(ctx context.Context, p layout.Panel) ([]string, error)
}

type Options struct {
	// Metadata overrides the WLED client built from the config. Tests set it to
	// keep connects off the network.
	Metadata fleet.MetadataSource
	Verifier Verifier
	Logger   *zerolog.Logger
}

// Core is the wired show: layout, fleet, scenes and the scheduler.
type Core struct {
	Cfg    *config.Config
	Layout layout.Layout
	Fleet  *fleet.Fleet
	Reg    *render.Registry
	Sched  *Scheduler
	Diag   *diagnostics.Feed

	verifier Verifier
	log      zerolog.Logger
}

func InitCore(cfg *config.Config, opts Options) (*Core, error) {
	lg := log.Logger
	if opts.Logger != nil {
		lg = *opts.Logger
	}

	// 1) Layout
	l, err := cfg.Layout()
	if err != nil {
		return nil, err
	}

	// 2) Metadata
	meta, ver := opts.Metadata, opts.Verifier
	if cfg.Metadata.Enabled && (meta == nil || ver == nil) {
		wc := wled.NewClient()
		wc.Port = cfg.Metadata.HTTPPort
		if meta == nil {
			meta = wc
		}
		if ver == nil {
			ver = wc
		}
	}
	if !cfg.Metadata.Verify {
		ver = nil
	}

	// 3) Fleet
	feed := diagnostics.NewFeed()
	fl := fleet.New(l, fleet.Options{
		Metadata:     meta,
		Concurrency:  cfg.Network.Concurrency,
		WriteTimeout: cfg.Network.WriteTimeout,
		Logger:       &lg,
		OnDiagnostic: feed.Publish,
	})

	// 4) Scheduler
	sched := NewScheduler(cfg.Rate.Frequency, l.Canvas, fl, &lg)
	sched.SetBrightness(cfg.Brightness)
	sched.SetLimiter(cfg.Limiter)

	c := &Core{
		Cfg:      cfg,
		Layout:   l,
		Fleet:    fl,
		Reg:      scenes.Default(),
		Sched:    sched,
		Diag:     feed,
		verifier: ver,
		log:      lg.With().Str("component", "core").Logger(),
	}
	sched.OnSourceDone = func() {
		feed.Publish(diagnostics.SourceDone(sched.Stats().Ticks))
	}

	// fail on an unknown scene now rather than at Start
	if _, err := c.Source(); err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}
	return c, nil
}

// Source builds what the config asks to play: the program if one is set,
// otherwise the single scene.
func (c *Core) Source() (render.Source, error) {
	if c.Cfg.Program != nil {
		return sequence.New(c.Reg, *c.Cfg.Program)
	}
	name := c.Cfg.Scene
	if name == "" {
		name = "grad"
	}
	return c.Scene(name, c.Cfg.Preset)
}

func (c *Core) Scene(name, preset string) (render.Scene, error) {
	sc, ok := c.Reg.New(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", sequence.ErrUnknownScene, name)
	}
	if preset != "" {
		sc.ApplyPreset(preset)
	}
	return sc, nil
}

// Connect brings up every configured panel, then checks the connected ones
// against their controllers when verification is on.
func (c *Core) Connect(ctx context.Context) fleet.Status {
	connected, _ := c.Fleet.ConnectAll(ctx, c.Layout.Panels)
	c.verify(ctx, connected)
	return c.Fleet.Status()
}

// Retry re-attempts the panels that are down.
func (c *Core) Retry(ctx context.Context) fleet.Status {
	newly, _ := c.Fleet.Retry(ctx)
	c.verify(ctx, newly)
	st := c.Fleet.Status()
	c.Diag.Publish(diagnostics.Partial(st.Connected, st.Total, st.Failed))
	return st
}

// Start plays the configured source.
func (c *Core) Start() error {
	src, err := c.Source()
	if err != nil {
		return err
	}
	return c.Sched.Start(src)
}

// SetScene swaps what is playing without stopping the scheduler.
func (c *Core) SetScene(name, preset string) error {
	sc, err := c.Scene(name, preset)
	if err != nil {
		return err
	}
	c.Sched.SetSource(sc)
	c.log.Info().Str("scene", name).Str("preset", preset).Msg("scene changed")
	return nil
}

// Close stops the scheduler and shuts the fleet down.
func (c *Core) Close() {
	c.Sched.Stop()
	c.Fleet.Shutdown()
}

func (c *Core) verify(ctx context.Context, links []*link.Link) {
	if c.verifier == nil {
		return
	}
	for _, l := range links {
		p := l.Panel()
		issues, err := c.verifier.Verify(ctx, p)
		if err != nil {
			c.log.Warn().Err(err).Str("panel", p.ID).Msg("verify failed")
			continue
		}
		if len(issues) > 0 {
			c.log.Warn().Str("panel", p.ID).Strs("issues", issues).Msg("panel config mismatch")
			c.Diag.Publish(diagnostics.Mismatch(p.ID, issues))
		}
	}
}
