// Package annotate rewrites a document so only its changed pages remain, each
// carrying a margin marker next to the rows that changed.
package annotate

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"sort"

	"github.com/sw33tLie/docdiff/pkg/compare"
	"github.com/sw33tLie/docdiff/pkg/engine"
	"github.com/sw33tLie/docdiff/pkg/fileutil"
)

const (
	// DefaultScale supersamples overlays so thin markers stay visible.
	DefaultScale = 5
	// DefaultMarkWidth is the marker band width in overlay pixels.
	DefaultMarkWidth = 10
)

var markColor = color.NRGBA{R: 0xff, A: 0xff}

// Output describes a published annotated document.
type Output struct {
	Path string
	// Dropped lists the original indexes of the deleted identical pages.
	Dropped []int
}

// Annotator rewrites documents through a shared engine.
type Annotator struct {
	eng       engine.Engine
	scale     float64
	markWidth int
}

// New returns an annotator with the default scale and marker width.
func New(eng engine.Engine) *Annotator {
	return &Annotator{eng: eng, scale: DefaultScale, markWidth: DefaultMarkWidth}
}

// Annotate applies comps to the document at src, one per page in page order,
// and publishes the result at dst. Nothing is written at dst unless every step
// succeeds.
func (a *Annotator) Annotate(src string, comps []compare.Comparison, dst string) (*Output, error) {
	doc, err := a.eng.Open(src)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	count, err := doc.PageCount()
	if err != nil {
		return nil, err
	}
	if count != len(comps) {
		return nil, fmt.Errorf("%w: %s has %d pages but %d comparisons were given", engine.ErrModify, src, count, len(comps))
	}

	out := &Output{Path: dst}
	// index+shift is always the live position of original page index.
	shift := 0
	for index, comp := range comps {
		pos := index + shift
		if comp.Identical() {
			if err := doc.DeletePage(pos); err != nil {
				return nil, err
			}
			out.Dropped = append(out.Dropped, index)
			shift--
			continue
		}

		size, err := doc.PageSize(pos)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", engine.ErrModify, err)
		}
		if err := doc.AddOverlay(pos, a.overlay(size, comp.Segments)); err != nil {
			return nil, err
		}
	}

	err = fileutil.WriteAtomic(dst, 0o644, func(w io.Writer) error {
		return doc.Save(w)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", engine.ErrSave, dst, err)
	}
	return out, nil
}

// overlay describes a transparent layer the size of the page times the scale,
// with a red band in the left margin over every run of rows covered by segs.
func (a *Annotator) overlay(size engine.Size, segs []compare.Segment) engine.Overlay {
	w := max(1, int(math.Round(size.Width*a.scale)))
	h := max(1, int(math.Round(size.Height*a.scale)))
	ov := engine.Overlay{Width: w, Height: h, Color: markColor}

	band := min(a.markWidth, w)
	start := -1
	for y := 0; y <= h; y++ {
		hit := false
		if y < h {
			pos := 0.0
			if h > 1 {
				pos = float64(y) / float64(h-1)
			}
			hit = covered(segs, pos)
		}
		switch {
		case hit && start < 0:
			start = y
		case !hit && start >= 0:
			ov.Rects = append(ov.Rects, image.Rect(0, start, band, y))
			start = -1
		}
	}
	return ov
}

// covered reports whether pos falls in any of the sorted segments.
func covered(segs []compare.Segment, pos float64) bool {
	i := sort.Search(len(segs), func(i int) bool { return segs[i].End >= pos })
	return i < len(segs) && segs[i].Contains(pos)
}
