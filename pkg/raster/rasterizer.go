package raster

import (
	"errors"
	"fmt"
	"image"
	"math"
	"runtime"
	"sync"

	"github.com/sw33tLie/docdiff/pkg/engine"
)

const (
	defaultTargetWidth = 500
	defaultMaxHeight   = 10000
)

// Config fixes the raster geometry so pages of the same nominal size always
// produce rasters of the same dimensions.
type Config struct {
	TargetWidth     int
	MaxHeight       int
	RotateLandscape bool
}

// DefaultConfig renders at 500 pixels wide, at most 10000 tall, landscape
// pages turned upright.
func DefaultConfig() Config {
	return Config{
		TargetWidth:     defaultTargetWidth,
		MaxHeight:       defaultMaxHeight,
		RotateLandscape: true,
	}
}

// Geometry returns the final raster size for a page and whether the page has
// to be rotated. Width and height are those of the upright result.
func (c Config) Geometry(page engine.Size) (width, height int, rotate bool, err error) {
	pw, ph := page.Width, page.Height
	if pw <= 0 || ph <= 0 {
		return 0, 0, false, fmt.Errorf("%w: invalid page size %.2fx%.2f", engine.ErrRender, pw, ph)
	}
	rotate = c.RotateLandscape && page.Landscape()
	if rotate {
		pw, ph = ph, pw
	}

	target := c.TargetWidth
	if target <= 0 {
		target = defaultTargetWidth
	}
	scale := float64(target) / pw
	if c.MaxHeight > 0 && ph*scale > float64(c.MaxHeight) {
		scale = float64(c.MaxHeight) / ph
	}

	width = max(1, int(math.Round(pw*scale)))
	height = max(1, int(math.Round(ph*scale)))
	return width, height, rotate, nil
}

// Rasterizer renders every page of a document.
type Rasterizer struct {
	eng     engine.Engine
	cfg     Config
	workers int
}

// NewRasterizer builds a rasterizer on the shared engine. workers <= 0 uses
// GOMAXPROCS.
func NewRasterizer(eng engine.Engine, cfg Config, workers int) *Rasterizer {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Rasterizer{eng: eng, cfg: cfg, workers: workers}
}

// Render returns one raster per page in page order. Any page failure fails
// the whole document; no partial result is returned.
//
// The document is opened once, so a render never holds more than one engine
// handle. Pages are rendered in order through that handle while workers
// convert and rotate the finished images.
func (r *Rasterizer) Render(path string) ([]*Raster, error) {
	doc, err := r.eng.Open(path)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	count, err := doc.PageCount()
	if err != nil {
		return nil, err
	}
	out := make([]*Raster, count)
	if count == 0 {
		return out, nil
	}

	rendered := make(chan renderedPage, r.workers)
	var wg sync.WaitGroup
	for w := 0; w < min(r.workers, count); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range rendered {
				ras := FromImage(p.img)
				if p.rotate {
					ras = ras.Rotate90()
				}
				out[p.index] = ras
			}
		}()
	}

	var renderErr error
	for i := 0; i < count; i++ {
		p, err := r.renderPage(doc, i)
		if err != nil {
			renderErr = err
			break
		}
		rendered <- p
	}
	close(rendered)
	wg.Wait()

	if renderErr != nil {
		return nil, renderErr
	}
	return out, nil
}

type renderedPage struct {
	index  int
	img    image.Image
	rotate bool
}

func (r *Rasterizer) renderPage(doc engine.Document, index int) (renderedPage, error) {
	size, err := doc.PageSize(index)
	if err != nil {
		return renderedPage{}, err
	}
	width, height, rotate, err := r.cfg.Geometry(size)
	if err != nil {
		return renderedPage{}, err
	}

	// A rotated page is rendered lying down and turned upright afterwards.
	rw, rh := width, height
	if rotate {
		rw, rh = height, width
	}
	img, err := doc.RenderPage(index, rw, rh)
	if err != nil {
		if !errors.Is(err, engine.ErrRender) {
			err = fmt.Errorf("%w: page %d: %w", engine.ErrRender, index, err)
		}
		return renderedPage{}, err
	}
	return renderedPage{index: index, img: img, rotate: rotate}, nil
}
