package testpattern_test

import (
	"image/color"
	"testing"
	"time"

	"github.com/bryanchriswhite/backdrop/internal/capture/testpattern"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var green = color.RGBA{R: 0, G: 177, B: 64, A: 255}

func TestRenderHasBackdropAndSubject(t *testing.T) {
	opts := testpattern.Options{Width: 64, Height: 48, FPS: 10, Backdrop: green}
	img := testpattern.Render(opts, 0)

	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, green, img.RGBAAt(0, 0), "corner is backdrop")

	radius := 48 / 6
	headY := 48/2 - radius/2
	assert.NotEqual(t, green, img.RGBAAt(64/3, headY), "head center is subject")
}

func TestRenderMoves(t *testing.T) {
	opts := testpattern.Options{Width: 64, Height: 48, FPS: 10, Backdrop: green}
	a := testpattern.Render(opts, 0)
	b := testpattern.Render(opts, 10)
	assert.NotEqual(t, a.Pix, b.Pix)
}

func TestSourceLifecycle(t *testing.T) {
	s := testpattern.New(testpattern.Options{Width: 32, Height: 24, FPS: 50, Backdrop: green})
	assert.False(t, s.Ready())
	w, h := s.Dimensions()
	assert.Zero(t, w*h)

	require.NoError(t, s.Start())
	require.Eventually(t, s.Ready, time.Second, 5*time.Millisecond)

	w, h = s.Dimensions()
	assert.Equal(t, 32, w)
	assert.Equal(t, 24, h)

	frame, err := s.Frame()
	require.NoError(t, err)
	assert.Equal(t, 32, frame.Bounds().Dx())

	require.NoError(t, s.Stop())
	assert.False(t, s.Ready())
	_, err = s.Frame()
	assert.Error(t, err)
	require.NoError(t, s.Stop(), "stop is idempotent")
}
