package effects

import (
	"image"
)

// Invert returns the color negative of src.
func Invert(src *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(src.Rect)
	for i := 0; i+3 < len(src.Pix); i += 4 {
		dst.Pix[i+0] = 255 - src.Pix[i+0]
		dst.Pix[i+1] = 255 - src.Pix[i+1]
		dst.Pix[i+2] = 255 - src.Pix[i+2]
		dst.Pix[i+3] = src.Pix[i+3]
	}
	return dst
}

// Mosaic is the stylized look: each Cell x Cell block is filled with its
// average color, posterized to Levels steps per channel.
type Mosaic struct {
	Cell   int
	Levels int
}

// Apply implements Effect.
func (m Mosaic) Apply(src *image.RGBA) *image.RGBA {
	cell := max(m.Cell, 1)
	levels := max(m.Levels, 2)
	b := src.Rect
	dst := image.NewRGBA(b)
	step := 255 / (levels - 1)
	for by := b.Min.Y; by < b.Max.Y; by += cell {
		for bx := b.Min.X; bx < b.Max.X; bx += cell {
			ex, ey := min(bx+cell, b.Max.X), min(by+cell, b.Max.Y)
			var sum [4]int
			n := 0
			for y := by; y < ey; y++ {
				for x := bx; x < ex; x++ {
					off := src.PixOffset(x, y)
					for c := 0; c < 4; c++ {
						sum[c] += int(src.Pix[off+c])
					}
					n++
				}
			}
			var px [4]uint8
			for c := 0; c < 3; c++ {
				avg := sum[c] / n
				px[c] = uint8((avg + step/2) / step * step)
			}
			px[3] = uint8(sum[3] / n)
			for y := by; y < ey; y++ {
				for x := bx; x < ex; x++ {
					off := dst.PixOffset(x, y)
					copy(dst.Pix[off:off+4], px[:])
				}
			}
		}
	}
	return dst
}

// BackgroundBlur keeps the foreground sharp and box-blurs the rest. Without a
// segmentation model the foreground is the centered ellipse covering half of
// each dimension.
type BackgroundBlur struct {
	Radius int
}

// Apply implements Effect.
func (bb BackgroundBlur) Apply(src *image.RGBA) *image.RGBA {
	blurred := boxBlur(src, max(bb.Radius, 1))
	b := src.Rect
	cx := float64(b.Min.X+b.Max.X) / 2
	cy := float64(b.Min.Y+b.Max.Y) / 2
	rx := float64(b.Dx()) / 4
	ry := float64(b.Dy()) / 4
	if rx <= 0 || ry <= 0 {
		return blurred
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dx := (float64(x) + 0.5 - cx) / rx
			dy := (float64(y) + 0.5 - cy) / ry
			if dx*dx+dy*dy <= 1 {
				off := src.PixOffset(x, y)
				copy(blurred.Pix[off:off+4], src.Pix[off:off+4])
			}
		}
	}
	return blurred
}

// boxBlur runs a separable box filter with the given radius, clamping at edges.
func boxBlur(src *image.RGBA, radius int) *image.RGBA {
	b := src.Rect
	tmp := image.NewRGBA(b)
	dst := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			var sum [4]int
			n := 0
			for k := max(x-radius, b.Min.X); k <= min(x+radius, b.Max.X-1); k++ {
				off := src.PixOffset(k, y)
				for c := 0; c < 4; c++ {
					sum[c] += int(src.Pix[off+c])
				}
				n++
			}
			off := tmp.PixOffset(x, y)
			for c := 0; c < 4; c++ {
				tmp.Pix[off+c] = uint8(sum[c] / n)
			}
		}
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			var sum [4]int
			n := 0
			for k := max(y-radius, b.Min.Y); k <= min(y+radius, b.Max.Y-1); k++ {
				off := tmp.PixOffset(x, k)
				for c := 0; c < 4; c++ {
					sum[c] += int(tmp.Pix[off+c])
				}
				n++
			}
			off := dst.PixOffset(x, y)
			for c := 0; c < 4; c++ {
				dst.Pix[off+c] = uint8(sum[c] / n)
			}
		}
	}
	return dst
}
