package raster

import (
	"bytes"
	"image"
	"image/draw"
)

// Raster is an RGB pixel grid. It is never mutated once built.
type Raster struct {
	Width  int
	Height int
	// Pix holds 3 bytes per pixel, row-major, no padding.
	Pix []uint8
}

// New returns a black raster of the given size.
func New(width, height int) *Raster {
	return &Raster{Width: width, Height: height, Pix: make([]uint8, width*height*3)}
}

// FromImage copies img into a new raster, dropping alpha.
func FromImage(img image.Image) *Raster {
	b := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok {
		rgba = image.NewRGBA(b)
		draw.Draw(rgba, b, img, b.Min, draw.Src)
	}

	r := New(b.Dx(), b.Dy())
	for y := 0; y < r.Height; y++ {
		src := rgba.Pix[rgba.PixOffset(b.Min.X, b.Min.Y+y):]
		dst := r.Row(y)
		for x := 0; x < r.Width; x++ {
			dst[x*3+0] = src[x*4+0]
			dst[x*3+1] = src[x*4+1]
			dst[x*3+2] = src[x*4+2]
		}
	}
	return r
}

// Row returns the pixels of row y.
func (r *Raster) Row(y int) []uint8 {
	stride := r.Width * 3
	return r.Pix[y*stride : (y+1)*stride]
}

// Set paints pixel (x, y).
func (r *Raster) Set(x, y int, red, green, blue uint8) {
	i := (y*r.Width + x) * 3
	r.Pix[i], r.Pix[i+1], r.Pix[i+2] = red, green, blue
}

// SameSize reports whether both rasters have identical dimensions.
func (r *Raster) SameSize(o *Raster) bool {
	return r.Width == o.Width && r.Height == o.Height
}

// RowsEqual reports whether row y is pixel-identical in r and o.
func (r *Raster) RowsEqual(o *Raster, y int) bool {
	return bytes.Equal(r.Row(y), o.Row(y))
}

// Rotate90 returns r rotated a quarter turn clockwise.
func (r *Raster) Rotate90() *Raster {
	out := New(r.Height, r.Width)
	for y := 0; y < out.Height; y++ {
		dst := out.Row(y)
		for x := 0; x < out.Width; x++ {
			si := ((r.Height-1-x)*r.Width + y) * 3
			copy(dst[x*3:x*3+3], r.Pix[si:si+3])
		}
	}
	return out
}
