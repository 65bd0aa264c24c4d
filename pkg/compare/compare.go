// Package compare decides which pages of a document changed against its
// baseline, and where on each page.
package compare

import (
	"errors"
	"fmt"

	"github.com/sw33tLie/docdiff/pkg/engine"
	"github.com/sw33tLie/docdiff/pkg/raster"
)

// Comparer rasterizes a document pair and compares it page by page.
type Comparer struct {
	rasterizer *raster.Rasterizer
	matcher    Matcher
}

// NewComparer builds a comparer rendering through eng.
func NewComparer(eng engine.Engine, cfg raster.Config, workers int) *Comparer {
	return &Comparer{
		rasterizer: raster.NewRasterizer(eng, cfg, workers),
		matcher:    Matcher{Workers: workers},
	}
}

// ComparePDFs returns one comparison per page of current, in page order.
//
// A baseline that cannot be loaded, including one that does not exist, counts
// as a blank slate: every current page is flagged in full. Any other baseline
// failure, including an engine too busy to open it, is an error, as is failing
// to load or render the current document.
func (c *Comparer) ComparePDFs(current, baseline string) ([]Comparison, error) {
	cur, err := c.rasterizer.Render(current)
	if err != nil {
		return nil, fmt.Errorf("could not render %s: %w", current, err)
	}

	base, err := c.rasterizer.Render(baseline)
	if err != nil {
		if !errors.Is(err, engine.ErrLoad) {
			return nil, fmt.Errorf("could not render baseline %s: %w", baseline, err)
		}
		base = nil
	}

	sims := c.matcher.Compare(cur, base)
	out := make([]Comparison, len(cur))
	for i, sim := range sims {
		var matched *raster.Raster
		if sim.Similar {
			matched = base[sim.Index]
		}
		out[i] = Encode(sim, cur[i], matched)
	}
	return out, nil
}
