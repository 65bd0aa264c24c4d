package compare

import (
	"github.com/sw33tLie/docdiff/pkg/raster"
)

// Segment is a differing row range as fractions of the page height.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Contains reports whether pos lies within the segment, bounds included.
func (s Segment) Contains(pos float64) bool {
	return pos >= s.Start && pos <= s.End
}

// WholePage flags every row.
var WholePage = []Segment{{Start: 0, End: 1}}

// Comparison is the outcome for one current page. A Different comparison
// always carries at least one segment.
type Comparison struct {
	Different bool      `json:"different"`
	Segments  []Segment `json:"segments,omitempty"`
}

// Identical reports whether the page has no visible change.
func (c Comparison) Identical() bool {
	return !c.Different
}

// AllIdentical reports whether no page in comps changed.
func AllIdentical(comps []Comparison) bool {
	for _, c := range comps {
		if c.Different {
			return false
		}
	}
	return true
}

func wholePage() Comparison {
	return Comparison{Different: true, Segments: append([]Segment(nil), WholePage...)}
}

// Encode turns a match into a page comparison. cur is the current page and
// base the matched baseline page; base is ignored unless sim is similar with a
// non-zero diff.
func Encode(sim Similarity, cur, base *raster.Raster) Comparison {
	if !sim.Similar {
		return wholePage()
	}
	if sim.Diff == 0 {
		return Comparison{}
	}

	rows := cur.Height
	pos := func(y int) float64 {
		if rows <= 1 {
			return 0
		}
		return float64(y) / float64(rows-1)
	}

	var (
		segs []Segment
		open *Segment
	)
	for y := 0; y < rows; y++ {
		if cur.RowsEqual(base, y) {
			if open != nil {
				segs = append(segs, *open)
				open = nil
			}
			continue
		}
		if open == nil {
			open = &Segment{Start: pos(y)}
		}
		open.End = pos(y)
	}
	if open != nil {
		segs = append(segs, *open)
	}

	// A positive diff with no differing row means the inputs disagree; flag
	// the whole page rather than returning an empty Different.
	if len(segs) == 0 {
		return wholePage()
	}
	return Comparison{Different: true, Segments: segs}
}
