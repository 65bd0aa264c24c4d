// Package enginetest provides an in-memory engine.Engine for tests.
//
// Documents are small JSON files describing their pages, so tests can build
// current and baseline trees on disk without a real PDF toolchain. Saving a
// document writes the same format back, including a summary of every overlay
// that was added, which lets tests check which pages survived and what was
// marked on them.
package enginetest

import (
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/sw33tLie/docdiff/pkg/engine"
)

// Band paints rows whose vertical center falls in [From, To) of the page
// height with Color.
type Band struct {
	From  float64  `json:"from"`
	To    float64  `json:"to"`
	Color [3]uint8 `json:"color"`
}

// Overlay summarizes an overlay image added to a page.
type Overlay struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	// Marked holds inclusive [first, last] runs of rows painted from the left edge.
	Marked [][2]int `json:"marked,omitempty"`
	// MarkWidth is the width of the first rect painted from the left edge.
	MarkWidth int `json:"mark_width,omitempty"`
}

// Page describes one page of a fake document.
type Page struct {
	ID         string    `json:"id"`
	Width      float64   `json:"width"`
	Height     float64   `json:"height"`
	Fill       [3]uint8  `json:"fill"`
	Bands      []Band    `json:"bands,omitempty"`
	FailRender bool      `json:"fail_render,omitempty"`
	Overlays   []Overlay `json:"overlays,omitempty"`
}

// Doc is the on-disk form of a fake document.
type Doc struct {
	Pages []Page `json:"pages"`
}

// WriteDoc stores doc at path.
func WriteDoc(path string, doc Doc) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadDoc loads the document stored at path.
func ReadDoc(path string) (Doc, error) {
	var doc Doc
	data, err := os.ReadFile(path)
	if err != nil {
		return doc, err
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, err
	}
	return doc, nil
}

// Engine opens fake documents. The zero value is ready to use.
type Engine struct {
	// MaxOpen caps the handles open at once, like a fixed instance pool;
	// Open fails with engine.ErrBusy beyond it. Zero means no cap.
	MaxOpen int
	// Busy lists paths whose Open always fails with engine.ErrBusy.
	Busy map[string]bool

	open  atomic.Int64
	mu    sync.Mutex
	opens map[string]int
}

var _ engine.Engine = (*Engine)(nil)

// Open implements engine.Engine.
func (e *Engine) Open(path string) (engine.Document, error) {
	if e.Busy[path] {
		return nil, fmt.Errorf("%w: %s", engine.ErrBusy, path)
	}
	doc, err := ReadDoc(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", engine.ErrLoad, path, err)
	}

	e.mu.Lock()
	if e.MaxOpen > 0 && int(e.open.Load()) >= e.MaxOpen {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %d handles already open", engine.ErrBusy, e.MaxOpen)
	}
	e.open.Add(1)
	if e.opens == nil {
		e.opens = make(map[string]int)
	}
	e.opens[path]++
	e.mu.Unlock()
	return &document{eng: e, pages: doc.Pages}, nil
}

// OpenHandles returns the number of documents not yet closed.
func (e *Engine) OpenHandles() int {
	return int(e.open.Load())
}

// Opens returns how many times path was opened.
func (e *Engine) Opens(path string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opens[path]
}

type document struct {
	eng    *Engine
	pages  []Page
	closed bool
}

func (d *document) page(index int) (*Page, error) {
	if index < 0 || index >= len(d.pages) {
		return nil, fmt.Errorf("page index %d out of range [0,%d)", index, len(d.pages))
	}
	return &d.pages[index], nil
}

func (d *document) PageCount() (int, error) {
	return len(d.pages), nil
}

func (d *document) PageSize(index int) (engine.Size, error) {
	p, err := d.page(index)
	if err != nil {
		return engine.Size{}, fmt.Errorf("%w: %w", engine.ErrRender, err)
	}
	return engine.Size{Width: p.Width, Height: p.Height}, nil
}

func (d *document) RenderPage(index, width, height int) (image.Image, error) {
	p, err := d.page(index)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", engine.ErrRender, err)
	}
	if p.FailRender {
		return nil, fmt.Errorf("%w: page %s refused to render", engine.ErrRender, p.ID)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		c := p.Fill
		center := (float64(y) + 0.5) / float64(height)
		for _, b := range p.Bands {
			if center >= b.From && center < b.To {
				c = b.Color
			}
		}
		rgba := color.RGBA{R: c[0], G: c[1], B: c[2], A: 0xff}
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, rgba)
		}
	}
	return img, nil
}

func (d *document) DeletePage(index int) error {
	if _, err := d.page(index); err != nil {
		return fmt.Errorf("%w: %w", engine.ErrModify, err)
	}
	d.pages = append(d.pages[:index], d.pages[index+1:]...)
	return nil
}

func (d *document) AddOverlay(index int, ov engine.Overlay) error {
	p, err := d.page(index)
	if err != nil {
		return fmt.Errorf("%w: %w", engine.ErrModify, err)
	}
	p.Overlays = append(p.Overlays, summarize(ov))
	return nil
}

func (d *document) Save(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(Doc{Pages: d.pages}); err != nil {
		return fmt.Errorf("%w: %w", engine.ErrSave, err)
	}
	return nil
}

func (d *document) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.eng.open.Add(-1)
	return nil
}

func summarize(ov engine.Overlay) Overlay {
	out := Overlay{Width: ov.Width, Height: ov.Height}
	bounds := image.Rect(0, 0, ov.Width, ov.Height)
	marked := make([]bool, ov.Height)
	for _, r := range ov.Rects {
		r = r.Intersect(bounds)
		if r.Empty() || r.Min.X != 0 || ov.Color.A == 0 {
			continue
		}
		if out.MarkWidth == 0 {
			out.MarkWidth = r.Dx()
		}
		for y := r.Min.Y; y < r.Max.Y; y++ {
			marked[y] = true
		}
	}

	open := false
	for row, m := range marked {
		switch {
		case !m:
			open = false
		case open:
			out.Marked[len(out.Marked)-1][1] = row
		default:
			out.Marked = append(out.Marked, [2]int{row, row})
			open = true
		}
	}
	return out
}
