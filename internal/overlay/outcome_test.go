package overlay

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blank(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	return img
}

func TestApplyOutcomeBorders(t *testing.T) {
	frames := []image.Image{blank(100, 60), blank(100, 60)}
	out, err := ApplyOutcome(frames, []Mark{MarkStep, MarkFailed})
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, stepColor, out[0].At(0, 0))
	assert.Equal(t, failedColor, out[1].At(0, 0))
	assert.Equal(t, failedColor, out[1].At(99, 59))
	assert.Equal(t, color.RGBA{0xff, 0xff, 0xff, 0xff}, out[1].At(50, 30), "interior untouched")
	assert.Equal(t, color.RGBA{0xff, 0xff, 0xff, 0xff}, frames[1].At(0, 0), "input frame not modified")
}

func TestApplyOutcomeProgress(t *testing.T) {
	frames := []image.Image{blank(100, 60), blank(100, 60)}
	out, err := ApplyOutcome(frames, []Mark{MarkStep, MarkPassed})
	require.NoError(t, err)

	y := 60 - BorderWidth - 1
	// First of two frames fills half the strip.
	assert.Equal(t, stepColor, out[0].At(BorderWidth+1, y))
	assert.Equal(t, trackColor, out[0].At(100-BorderWidth-2, y))
	// Last frame fills it completely.
	assert.Equal(t, passedColor, out[1].At(100-BorderWidth-2, y))
}

func TestApplyOutcomeMismatch(t *testing.T) {
	_, err := ApplyOutcome([]image.Image{blank(10, 10)}, nil)
	assert.ErrorContains(t, err, "got 0 marks for 1 frames")
}

func TestTinyFrame(t *testing.T) {
	out, err := ApplyOutcome([]image.Image{blank(4, 4)}, []Mark{MarkPassed})
	require.NoError(t, err)
	assert.Equal(t, passedColor, out[0].At(2, 2))
}
