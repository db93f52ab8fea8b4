// Package framesource produces synthetic capture frames for headless preview windows.
package framesource

import (
	"image"
	"image/color"
	"sync"
	"time"

	"pkt.systems/streamfx/schema"
)

// Pattern renders a moving test pattern: a diagonal color gradient with a
// bright square that sweeps across the frame, so successive frames differ and
// effects have edges to work on.
type Pattern struct {
	width  int
	height int

	mu  sync.Mutex
	seq uint64
	now func() time.Time
}

// NewPattern returns a pattern source. Non-positive dimensions fall back to the
// controller defaults.
func NewPattern(width, height int) *Pattern {
	if width <= 0 {
		width = schema.DefaultFrameWidth
	}
	if height <= 0 {
		height = schema.DefaultFrameHeight
	}
	return &Pattern{width: width, height: height, now: time.Now}
}

// Bounds returns the frame rectangle.
func (p *Pattern) Bounds() image.Rectangle {
	return image.Rect(0, 0, p.width, p.height)
}

// Next renders the next frame.
func (p *Pattern) Next() schema.Frame {
	p.mu.Lock()
	p.seq++
	seq := p.seq
	p.mu.Unlock()
	return schema.Frame{Seq: seq, Image: Render(p.width, p.height, seq), Captured: p.now()}
}

// Render draws frame number seq of the pattern.
func Render(width, height int, seq uint64) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	shift := int(seq % 256)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			off := img.PixOffset(x, y)
			img.Pix[off+0] = uint8((x*255/max(width-1, 1) + shift) % 256)
			img.Pix[off+1] = uint8(y * 255 / max(height-1, 1))
			img.Pix[off+2] = uint8(255 - (x+y)*255/max(width+height-2, 1))
			img.Pix[off+3] = 0xff
		}
	}
	side := min(width, height) / 4
	if side > 0 {
		span := max(width-side, 1)
		x0 := int(seq*4) % span
		y0 := (height - side) / 2
		square := color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
		for y := y0; y < y0+side; y++ {
			for x := x0; x < x0+side; x++ {
				img.SetRGBA(x, y, square)
			}
		}
	}
	return img
}
