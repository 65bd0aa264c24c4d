package pdfium

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"os"
	"runtime"
	"time"

	gopdfium "github.com/klippa-app/go-pdfium"
	"github.com/klippa-app/go-pdfium/references"
	"github.com/klippa-app/go-pdfium/requests"
	"github.com/klippa-app/go-pdfium/structs"
	"github.com/klippa-app/go-pdfium/webassembly"

	"github.com/sw33tLie/docdiff/pkg/engine"
)

const defaultInstanceTimeout = 30 * time.Second

// Config controls the pdfium WebAssembly pool.
type Config struct {
	// WASMPath optionally points at a pdfium WebAssembly build to use instead
	// of the one embedded in go-pdfium.
	WASMPath string
	// Instances is the pool size; <= 0 uses GOMAXPROCS.
	Instances int
	// InstanceTimeout bounds the wait for a free instance.
	InstanceTimeout time.Duration
}

// Engine is the shared pdfium handle. Every open Document holds one pool
// instance until it is closed.
type Engine struct {
	pool    gopdfium.Pool
	timeout time.Duration
}

var _ engine.Engine = (*Engine)(nil)

// New initializes the pdfium pool. It must be called once per process.
func New(cfg Config) (*Engine, error) {
	instances := cfg.Instances
	if instances <= 0 {
		instances = runtime.GOMAXPROCS(0)
	}
	timeout := cfg.InstanceTimeout
	if timeout <= 0 {
		timeout = defaultInstanceTimeout
	}

	wcfg := webassembly.Config{
		MinIdle:  1,
		MaxIdle:  instances,
		MaxTotal: instances,
	}
	if cfg.WASMPath != "" {
		wasm, err := os.ReadFile(cfg.WASMPath)
		if err != nil {
			return nil, fmt.Errorf("could not read pdfium library %s: %w", cfg.WASMPath, err)
		}
		wcfg.WASM = wasm
	}

	pool, err := webassembly.Init(wcfg)
	if err != nil {
		return nil, fmt.Errorf("could not initialize pdfium: %w", err)
	}
	return &Engine{pool: pool, timeout: timeout}, nil
}

// Close shuts the pool down. Open documents must be closed first.
func (e *Engine) Close() error {
	return e.pool.Close()
}

// Open loads the document at path into a pool instance.
func (e *Engine) Open(path string) (engine.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", engine.ErrLoad, err)
	}

	inst, err := e.pool.GetInstance(e.timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: no pdfium instance free after %s: %w", engine.ErrBusy, e.timeout, err)
	}

	doc, err := inst.OpenDocument(&requests.OpenDocument{File: &data})
	if err != nil {
		inst.Close()
		return nil, fmt.Errorf("%w: %s: %w", engine.ErrLoad, path, err)
	}
	return &document{inst: inst, doc: doc.Document}, nil
}

type document struct {
	inst gopdfium.Pdfium
	doc  references.FPDF_DOCUMENT
}

// withPage loads the page fresh for every operation so that references never
// survive a deletion that shifts indexes.
func (d *document) withPage(index int, fn func(page requests.Page) error) error {
	loaded, err := d.inst.FPDF_LoadPage(&requests.FPDF_LoadPage{Document: d.doc, Index: index})
	if err != nil {
		return err
	}
	defer d.inst.FPDF_ClosePage(&requests.FPDF_ClosePage{Page: loaded.Page})

	ref := loaded.Page
	return fn(requests.Page{ByReference: &ref})
}

func (d *document) PageCount() (int, error) {
	res, err := d.inst.FPDF_GetPageCount(&requests.FPDF_GetPageCount{Document: d.doc})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", engine.ErrLoad, err)
	}
	return res.PageCount, nil
}

func (d *document) PageSize(index int) (engine.Size, error) {
	var size engine.Size
	err := d.withPage(index, func(page requests.Page) error {
		res, err := d.inst.GetPageSize(&requests.GetPageSize{Page: page})
		if err != nil {
			return err
		}
		size = engine.Size{Width: res.Width, Height: res.Height}
		return nil
	})
	if err != nil {
		return engine.Size{}, fmt.Errorf("%w: page %d size: %w", engine.ErrRender, index, err)
	}
	return size, nil
}

func (d *document) RenderPage(index, width, height int) (image.Image, error) {
	var out *image.RGBA
	err := d.withPage(index, func(page requests.Page) error {
		res, err := d.inst.RenderPageInPixels(&requests.RenderPageInPixels{
			Page:   page,
			Width:  width,
			Height: height,
		})
		if err != nil {
			return err
		}
		defer res.Cleanup()

		// The bitmap is released by Cleanup.
		src := res.Result.Image
		out = image.NewRGBA(src.Bounds())
		draw.Draw(out, out.Bounds(), src, src.Bounds().Min, draw.Src)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: page %d: %w", engine.ErrRender, index, err)
	}
	return out, nil
}

func (d *document) DeletePage(index int) error {
	if _, err := d.inst.FPDFPage_Delete(&requests.FPDFPage_Delete{Document: d.doc, PageIndex: index}); err != nil {
		return fmt.Errorf("%w: delete page %d: %w", engine.ErrModify, index, err)
	}
	return nil
}

func (d *document) AddOverlay(index int, ov engine.Overlay) error {
	if ov.Width <= 0 || ov.Height <= 0 {
		return fmt.Errorf("%w: empty overlay %dx%d", engine.ErrModify, ov.Width, ov.Height)
	}
	bitmap, err := d.inst.FPDFBitmap_Create(&requests.FPDFBitmap_Create{
		Width:  ov.Width,
		Height: ov.Height,
		Alpha:  1,
	})
	if err != nil {
		return fmt.Errorf("%w: overlay bitmap: %w", engine.ErrModify, err)
	}
	defer d.inst.FPDFBitmap_Destroy(&requests.FPDFBitmap_Destroy{Bitmap: bitmap.Bitmap})

	bounds := image.Rect(0, 0, ov.Width, ov.Height)
	if err := d.fillRect(bitmap.Bitmap, bounds, 0); err != nil {
		return fmt.Errorf("%w: overlay bitmap: %w", engine.ErrModify, err)
	}
	mark := argb(ov.Color)
	for _, r := range ov.Rects {
		r = r.Intersect(bounds)
		if r.Empty() {
			continue
		}
		if err := d.fillRect(bitmap.Bitmap, r, mark); err != nil {
			return fmt.Errorf("%w: overlay bitmap: %w", engine.ErrModify, err)
		}
	}

	err = d.withPage(index, func(page requests.Page) error {
		size, err := d.inst.GetPageSize(&requests.GetPageSize{Page: page})
		if err != nil {
			return err
		}

		obj, err := d.inst.FPDFPageObj_NewImageObj(&requests.FPDFPageObj_NewImageObj{Document: d.doc})
		if err != nil {
			return err
		}
		if _, err := d.inst.FPDFImageObj_SetBitmap(&requests.FPDFImageObj_SetBitmap{
			Page:        &page,
			ImageObject: obj.PageObject,
			Bitmap:      bitmap.Bitmap,
		}); err != nil {
			return err
		}

		// Unit square scaled to the page height; the overlay keeps the page
		// aspect ratio so the width follows.
		width := size.Height * float64(ov.Width) / float64(ov.Height)
		if _, err := d.inst.FPDFImageObj_SetMatrix(&requests.FPDFImageObj_SetMatrix{
			ImageObject: obj.PageObject,
			Transform: structs.FPDF_FS_MATRIX{
				A: float32(width),
				D: float32(size.Height),
			},
		}); err != nil {
			return err
		}
		if _, err := d.inst.FPDFPage_InsertObject(&requests.FPDFPage_InsertObject{
			Page:       page,
			PageObject: obj.PageObject,
		}); err != nil {
			return err
		}
		_, err = d.inst.FPDFPage_GenerateContent(&requests.FPDFPage_GenerateContent{Page: page})
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: overlay on page %d: %w", engine.ErrModify, index, err)
	}
	return nil
}

func (d *document) Save(w io.Writer) error {
	res, err := d.inst.FPDF_SaveAsCopy(&requests.FPDF_SaveAsCopy{Document: d.doc, FileWriter: w})
	if err != nil {
		return fmt.Errorf("%w: %w", engine.ErrSave, err)
	}
	if res.FileBytes != nil {
		if _, err := w.Write(*res.FileBytes); err != nil {
			return fmt.Errorf("%w: %w", engine.ErrSave, err)
		}
	}
	return nil
}

func (d *document) Close() error {
	_, err := d.inst.FPDF_CloseDocument(&requests.FPDF_CloseDocument{Document: d.doc})
	if cerr := d.inst.Close(); err == nil {
		err = cerr
	}
	return err
}

func (d *document) fillRect(bitmap references.FPDF_BITMAP, r image.Rectangle, fill uint64) error {
	_, err := d.inst.FPDFBitmap_FillRect(&requests.FPDFBitmap_FillRect{
		Bitmap: bitmap,
		Left:   r.Min.X,
		Top:    r.Min.Y,
		Width:  r.Dx(),
		Height: r.Dy(),
		Color:  fill,
	})
	return err
}

// argb packs c the way pdfium bitmaps expect fill colours: 0xAARRGGBB.
func argb(c color.NRGBA) uint64 {
	return uint64(c.A)<<24 | uint64(c.R)<<16 | uint64(c.G)<<8 | uint64(c.B)
}
