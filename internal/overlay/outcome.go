// Package overlay decorates replay frames with the run outcome.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
)

// Mark says what a frame shows.
type Mark int

const (
	// MarkStep is an intermediate screenshot taken by a screenshot step.
	MarkStep Mark = iota
	MarkPassed
	MarkFailed
)

// BorderWidth is the frame border thickness in pixels.
const BorderWidth = 6

// ProgressHeight is the height of the progress strip along the bottom edge.
const ProgressHeight = 4

var (
	stepColor   = color.RGBA{0x88, 0x88, 0x88, 0xff}
	passedColor = color.RGBA{0x22, 0xaa, 0x44, 0xff}
	failedColor = color.RGBA{0xdd, 0x22, 0x22, 0xff}
	trackColor  = color.RGBA{0x22, 0x22, 0x22, 0xff}
)

// Color returns the border color for m.
func (m Mark) Color() color.RGBA {
	switch m {
	case MarkPassed:
		return passedColor
	case MarkFailed:
		return failedColor
	default:
		return stepColor
	}
}

// ApplyOutcome draws a border in the mark's color around every frame and a
// progress strip showing how far through the replay the frame is.
func ApplyOutcome(frames []image.Image, marks []Mark) ([]image.Image, error) {
	if len(marks) != len(frames) {
		return nil, fmt.Errorf("got %d marks for %d frames", len(marks), len(frames))
	}

	result := make([]image.Image, len(frames))
	for i, frame := range frames {
		result[i] = decorate(frame, marks[i], float64(i+1)/float64(len(frames)))
	}
	return result, nil
}

func decorate(frame image.Image, mark Mark, progress float64) image.Image {
	bounds := frame.Bounds()
	result := image.NewRGBA(bounds)
	draw.Draw(result, bounds, frame, bounds.Min, draw.Src)

	c := image.NewUniform(mark.Color())
	bw := min(BorderWidth, bounds.Dx()/2, bounds.Dy()/2)
	edges := []image.Rectangle{
		image.Rect(bounds.Min.X, bounds.Min.Y, bounds.Max.X, bounds.Min.Y+bw),
		image.Rect(bounds.Min.X, bounds.Max.Y-bw, bounds.Max.X, bounds.Max.Y),
		image.Rect(bounds.Min.X, bounds.Min.Y, bounds.Min.X+bw, bounds.Max.Y),
		image.Rect(bounds.Max.X-bw, bounds.Min.Y, bounds.Max.X, bounds.Max.Y),
	}
	for _, r := range edges {
		draw.Draw(result, r, c, image.Point{}, draw.Src)
	}

	// Progress strip sits just inside the bottom border.
	inner := image.Rect(bounds.Min.X+bw, bounds.Max.Y-bw-ProgressHeight, bounds.Max.X-bw, bounds.Max.Y-bw)
	if inner.Empty() {
		return result
	}
	draw.Draw(result, inner, image.NewUniform(trackColor), image.Point{}, draw.Src)
	done := inner
	done.Max.X = inner.Min.X + int(float64(inner.Dx())*progress)
	draw.Draw(result, done, c, image.Point{}, draw.Src)

	return result
}
