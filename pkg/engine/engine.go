package engine

import (
	"errors"
	"image"
	"image/color"
	"io"
)

// Failure classes reported by engine implementations. Callers match them with errors.Is.
var (
	ErrLoad   = errors.New("unable to load document")
	ErrRender = errors.New("unable to render page")
	ErrModify = errors.New("unable to modify document")
	ErrSave   = errors.New("unable to save document")

	// ErrBusy means no engine capacity freed up in time. It says nothing
	// about the document itself.
	ErrBusy = errors.New("rendering engine busy")
)

// Size is a page size in PDF points.
type Size struct {
	Width  float64
	Height float64
}

// Landscape reports whether the page is wider than it is tall.
func (s Size) Landscape() bool {
	return s.Width > s.Height
}

// Overlay is a transparent layer laid over a whole page. Rects, in overlay
// pixels with the origin at the top left, are painted opaque in Color.
type Overlay struct {
	Width  int
	Height int
	Color  color.NRGBA
	Rects  []image.Rectangle
}

// Engine is the process-wide rendering engine. It is built once at startup and
// shared read-only by every component that rasterizes or rewrites documents.
// Implementations must be safe for concurrent use.
type Engine interface {
	Open(path string) (Document, error)
}

// Document is an open document handle. The document owns its pages, which are
// addressed by their current index; deleting a page shifts every later page
// down by one. Overlay objects belong to the page they were added to and never
// outlive the document. A Document is not safe for concurrent use.
type Document interface {
	PageCount() (int, error)
	PageSize(index int) (Size, error)
	// RenderPage renders the page unrotated into a width x height image.
	RenderPage(index, width, height int) (image.Image, error)
	DeletePage(index int) error
	// AddOverlay places ov over the whole page, scaled to the page size.
	AddOverlay(index int, ov Overlay) error
	Save(w io.Writer) error
	Close() error
}
