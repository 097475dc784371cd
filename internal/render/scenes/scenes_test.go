package scenes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/panelcast/internal/render"
)

func TestDefaultRegistry(t *testing.T) {
	reg := Default()
	assert.Equal(t, []string{"grad", "solid", "sweep"}, reg.List())

	for _, name := range reg.List() {
		sc, ok := reg.New(name)
		require.True(t, ok, name)
		assert.Equal(t, name, sc.Name())
		assert.NotEmpty(t, sc.Presets())
		sc.Init(8, 8)
		assert.True(t, sc.Update(0), name)
	}
}

func TestSolidPresetAndPulse(t *testing.T) {
	sc, _ := Default().New("solid")
	sc.ApplyPreset("Blue")
	sc.Init(2, 2)
	sc.Update(0)
	assert.Equal(t, render.Color{B: 1}, sc.PixelColor(1, 1))

	sc.ApplyPreset("Pulse")
	sc.Update(500 * time.Millisecond) // sin(pi/2) at 0.5Hz
	assert.InDelta(t, 1.0, sc.PixelColor(0, 0).B, 1e-3)
}

func TestGradVariesAlongAxis(t *testing.T) {
	sc, _ := Default().New("grad")
	sc.Init(16, 4)
	sc.Update(0)
	assert.Equal(t, sc.PixelColor(3, 0), sc.PixelColor(3, 3))
	assert.NotEqual(t, sc.PixelColor(0, 0), sc.PixelColor(5, 0))

	sc.ApplyPreset("Vertical")
	assert.Equal(t, sc.PixelColor(0, 2), sc.PixelColor(9, 2))
	assert.NotEqual(t, sc.PixelColor(0, 0), sc.PixelColor(0, 2))
}
