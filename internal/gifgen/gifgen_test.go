package gifgen

import (
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return img
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestGenerate(t *testing.T) {
	frames := []image.Image{
		solid(320, 180, color.White),
		solid(640, 360, color.RGBA{0xdd, 0x22, 0x22, 0xff}),
	}
	out := filepath.Join(t.TempDir(), "replay", "delete_flow.gif")

	size, err := Generate(frames, out, Options{Hold: 500 * time.Millisecond, MaxWidth: 800})
	require.NoError(t, err)
	assert.Positive(t, size)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	g, err := gif.DecodeAll(f)
	require.NoError(t, err)

	require.Len(t, g.Image, 2)
	assert.Equal(t, []int{50, 300}, g.Delay)
	// Never upscaled past the first frame; later frames scaled to match.
	assert.Equal(t, image.Rect(0, 0, 320, 180), g.Image[0].Bounds())
	assert.Equal(t, image.Rect(0, 0, 320, 180), g.Image[1].Bounds())

	r, gg, b, _ := g.Image[1].At(160, 90).RGBA()
	assert.Equal(t, []uint32{0xdd, 0x22, 0x22}, []uint32{r >> 8, gg >> 8, b >> 8})
}

func TestGenerateNoFrames(t *testing.T) {
	out := filepath.Join(t.TempDir(), "empty.gif")
	size, err := Generate(nil, out, Options{})
	require.NoError(t, err)
	assert.Zero(t, size)
	assert.NoFileExists(t, out)
}

func TestLoadFrames(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "01_confirmation_dialog.png")
	b := filepath.Join(dir, "passed.png")
	writePNG(t, a, solid(8, 4, color.White))
	writePNG(t, b, solid(8, 4, color.Black))

	frames, err := LoadFrames([]string{a, b})
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, image.Rect(0, 0, 8, 4), frames[0].Bounds())

	_, err = LoadFrames([]string{filepath.Join(dir, "missing.png")})
	assert.ErrorContains(t, err, "failed to open frame")

	bad := filepath.Join(dir, "bad.png")
	require.NoError(t, os.WriteFile(bad, []byte("not a png"), 0o644))
	_, err = LoadFrames([]string{bad})
	assert.ErrorContains(t, err, "failed to decode")
}
