// Package gifgen assembles a run's screenshots into an animated replay.
package gifgen

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/nfnt/resize"
)

// Options configures GIF generation
type Options struct {
	// Hold is how long each frame stays on screen.
	Hold time.Duration
	// FinalHold replaces Hold for the last frame so the outcome stays readable.
	FinalHold time.Duration
	MaxWidth  uint
}

const (
	DefaultHold      = time.Second
	DefaultFinalHold = 3 * time.Second
	DefaultMaxWidth  = 800
)

// LoadFrames decodes PNG screenshots in order.
func LoadFrames(paths []string) ([]image.Image, error) {
	frames := make([]image.Image, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, fmt.Errorf("failed to open frame: %w", err)
		}
		img, _, err := image.Decode(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", p, err)
		}
		frames = append(frames, img)
	}
	return frames, nil
}

// Generate creates a GIF from frames and returns the file size.
func Generate(frames []image.Image, outputPath string, opts Options) (int64, error) {
	if len(frames) == 0 {
		return 0, nil
	}
	if opts.Hold <= 0 {
		opts.Hold = DefaultHold
	}
	if opts.FinalHold <= 0 {
		opts.FinalHold = DefaultFinalHold
	}

	// Output size follows the first frame; later frames are scaled to match.
	bounds := frames[0].Bounds()
	outputWidth := opts.MaxWidth
	if outputWidth == 0 {
		outputWidth = DefaultMaxWidth
	}
	if uint(bounds.Dx()) < outputWidth {
		outputWidth = uint(bounds.Dx())
	}
	aspectRatio := float64(bounds.Dy()) / float64(bounds.Dx())
	outputHeight := max(uint(float64(outputWidth)*aspectRatio), 1)

	g := &gif.GIF{
		Image:     make([]*image.Paletted, len(frames)),
		Delay:     make([]int, len(frames)),
		LoopCount: 0,
	}

	palette := generatePalette(frames)

	for i, frame := range frames {
		resized := resize.Resize(outputWidth, outputHeight, frame, resize.Lanczos3)

		paletted := image.NewPaletted(resized.Bounds(), palette)
		draw.FloydSteinberg.Draw(paletted, resized.Bounds(), resized, image.Point{})

		g.Image[i] = paletted
		g.Delay[i] = centiseconds(opts.Hold)
	}
	g.Delay[len(frames)-1] = centiseconds(opts.FinalHold)

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return 0, err
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if err := gif.EncodeAll(f, g); err != nil {
		return 0, err
	}

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func centiseconds(d time.Duration) int {
	return max(int(d/(10*time.Millisecond)), 1)
}

// generatePalette builds a 256-color palette from the most frequent colors
// across all frames, so the outcome border colors of the last frame survive.
func generatePalette(frames []image.Image) color.Palette {
	colorMap := make(map[color.RGBA]int)

	step := 4 // sample every 4th pixel
	for _, img := range frames {
		bounds := img.Bounds()
		for y := bounds.Min.Y; y < bounds.Max.Y; y += step {
			for x := bounds.Min.X; x < bounds.Max.X; x += step {
				r, g, b, a := img.At(x, y).RGBA()
				c := color.RGBA{
					R: uint8(r >> 8),
					G: uint8(g >> 8),
					B: uint8(b >> 8),
					A: uint8(a >> 8),
				}
				colorMap[c]++
			}
		}
	}

	type colorCount struct {
		c     color.RGBA
		count int
	}
	colors := make([]colorCount, 0, len(colorMap))
	for c, count := range colorMap {
		colors = append(colors, colorCount{c, count})
	}
	sort.Slice(colors, func(i, j int) bool {
		if colors[i].count != colors[j].count {
			return colors[i].count > colors[j].count
		}
		return rgbKey(colors[i].c) < rgbKey(colors[j].c)
	})

	palette := make(color.Palette, 0, 256)
	palette = append(palette, color.RGBA{0, 0, 0, 0})
	for i := 0; i < len(colors) && len(palette) < 256; i++ {
		palette = append(palette, colors[i].c)
	}

	// Pad with grayscale.
	for len(palette) < 256 {
		gray := uint8(len(palette))
		palette = append(palette, color.RGBA{gray, gray, gray, 255})
	}

	return palette
}

func rgbKey(c color.RGBA) uint32 {
	return uint32(c.R)<<24 | uint32(c.G)<<16 | uint32(c.B)<<8 | uint32(c.A)
}
