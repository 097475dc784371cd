// Package scenes wires the built-in scenes into a registry.
package scenes

import (
	"github.com/coreman2200/panelcast/internal/render"
	"github.com/coreman2200/panelcast/internal/render/scenes/grad"
	"github.com/coreman2200/panelcast/internal/render/scenes/solid"
	"github.com/coreman2200/panelcast/internal/render/scenes/sweep"
)

func Default() *render.Registry {
	reg := render.NewRegistry()
	reg.Register("solid", func() render.Scene { return solid.New(render.Color{R: 1, G: 1, B: 1}) })
	reg.Register("grad", func() render.Scene { return grad.New() })
	reg.Register("sweep", func() render.Scene { return sweep.New(sweep.Pixels, 0) })
	return reg
}
