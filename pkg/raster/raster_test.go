package raster

import (
	"errors"
	"image"
	"image/color"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/sw33tLie/docdiff/pkg/engine"
	"github.com/sw33tLie/docdiff/pkg/engine/enginetest"
)

func TestGeometry(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		name         string
		page         engine.Size
		wantW, wantH int
		wantRotate   bool
	}{
		{"letter portrait", engine.Size{Width: 612, Height: 792}, 500, 647, false},
		{"letter landscape", engine.Size{Width: 792, Height: 612}, 500, 647, true},
		{"square", engine.Size{Width: 100, Height: 100}, 500, 500, false},
		{"very tall page is capped", engine.Size{Width: 10, Height: 1000}, 100, 10000, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h, rot, err := cfg.Geometry(tt.page)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if w != tt.wantW || h != tt.wantH || rot != tt.wantRotate {
				t.Fatalf("got %dx%d rotate=%t, want %dx%d rotate=%t", w, h, rot, tt.wantW, tt.wantH, tt.wantRotate)
			}
		})
	}
}

func TestGeometryRejectsEmptyPage(t *testing.T) {
	_, _, _, err := DefaultConfig().Geometry(engine.Size{})
	if !errors.Is(err, engine.ErrRender) {
		t.Fatalf("expected ErrRender, got %v", err)
	}
}

func TestFromImageDropsAlpha(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.Set(1, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 0xff})

	r := FromImage(img)
	if r.Width != 2 || r.Height != 1 {
		t.Fatalf("unexpected size %dx%d", r.Width, r.Height)
	}
	want := []uint8{0, 0, 0, 10, 20, 30}
	for i, v := range want {
		if r.Pix[i] != v {
			t.Fatalf("pix[%d] = %d, want %d (pix=%v)", i, r.Pix[i], v, r.Pix)
		}
	}
}

func TestRotate90Clockwise(t *testing.T) {
	// 3x2 source:
	//   a b c
	//   d e f
	src := New(3, 2)
	for i := 0; i < 6; i++ {
		src.Set(i%3, i/3, uint8(i+1), 0, 0)
	}

	got := src.Rotate90()
	if got.Width != 2 || got.Height != 3 {
		t.Fatalf("unexpected size %dx%d", got.Width, got.Height)
	}
	// Clockwise:
	//   d a
	//   e b
	//   f c
	want := [][]uint8{{4, 1}, {5, 2}, {6, 3}}
	for y, row := range want {
		for x, v := range row {
			if p := got.Row(y)[x*3]; p != v {
				t.Fatalf("pixel (%d,%d) = %d, want %d", x, y, p, v)
			}
		}
	}
}

func TestRenderKeepsPageOrderAndRotatesLandscape(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.pdf")
	doc := enginetest.Doc{Pages: []enginetest.Page{
		{ID: "p0", Width: 100, Height: 200, Fill: [3]uint8{1, 1, 1}},
		{ID: "p1", Width: 200, Height: 100, Fill: [3]uint8{2, 2, 2}},
		{ID: "p2", Width: 100, Height: 200, Fill: [3]uint8{3, 3, 3}},
	}}
	if err := enginetest.WriteDoc(path, doc); err != nil {
		t.Fatal(err)
	}

	eng := &enginetest.Engine{}
	cfg := Config{TargetWidth: 10, MaxHeight: 100, RotateLandscape: true}
	rasters, err := NewRasterizer(eng, cfg, 2).Render(path)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if len(rasters) != 3 {
		t.Fatalf("expected 3 rasters, got %d", len(rasters))
	}
	for i, r := range rasters {
		if r.Width != 10 || r.Height != 20 {
			t.Errorf("page %d: got %dx%d, want 10x20", i, r.Width, r.Height)
		}
		if r.Pix[0] != uint8(i+1) {
			t.Errorf("page %d rendered out of order: first byte %d", i, r.Pix[0])
		}
	}
	if n := eng.OpenHandles(); n != 0 {
		t.Fatalf("%d document handles leaked", n)
	}
}

func TestRenderFailsWholeDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.pdf")
	doc := enginetest.Doc{Pages: []enginetest.Page{
		{ID: "ok", Width: 100, Height: 100},
		{ID: "broken", Width: 100, Height: 100, FailRender: true},
	}}
	if err := enginetest.WriteDoc(path, doc); err != nil {
		t.Fatal(err)
	}

	eng := &enginetest.Engine{}
	rasters, err := NewRasterizer(eng, DefaultConfig(), 4).Render(path)
	if !errors.Is(err, engine.ErrRender) {
		t.Fatalf("expected ErrRender, got %v", err)
	}
	if rasters != nil {
		t.Fatalf("expected no partial result, got %d rasters", len(rasters))
	}
	if n := eng.OpenHandles(); n != 0 {
		t.Fatalf("%d document handles leaked", n)
	}
}

func TestRenderMissingDocument(t *testing.T) {
	_, err := NewRasterizer(&enginetest.Engine{}, DefaultConfig(), 1).Render(filepath.Join(t.TempDir(), "nope.pdf"))
	if !errors.Is(err, engine.ErrLoad) {
		t.Fatalf("expected ErrLoad, got %v", err)
	}
}

func TestRenderUsesOneHandlePerDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.pdf")
	pages := make([]enginetest.Page, 6)
	for i := range pages {
		pages[i] = enginetest.Page{ID: strconv.Itoa(i), Width: 100, Height: 100}
	}
	if err := enginetest.WriteDoc(path, enginetest.Doc{Pages: pages}); err != nil {
		t.Fatal(err)
	}

	eng := &enginetest.Engine{MaxOpen: 1}
	rasters, err := NewRasterizer(eng, Config{TargetWidth: 10}, 4).Render(path)
	if err != nil {
		t.Fatalf("render with a single engine slot failed: %v", err)
	}
	if len(rasters) != 6 {
		t.Fatalf("expected 6 rasters, got %d", len(rasters))
	}
	if n := eng.Opens(path); n != 1 {
		t.Errorf("document opened %d times, want 1", n)
	}
}

func TestRenderBusyEngine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.pdf")
	if err := enginetest.WriteDoc(path, enginetest.Doc{Pages: []enginetest.Page{{ID: "a", Width: 1, Height: 1}}}); err != nil {
		t.Fatal(err)
	}
	eng := &enginetest.Engine{Busy: map[string]bool{path: true}}
	_, err := NewRasterizer(eng, DefaultConfig(), 1).Render(path)
	if !errors.Is(err, engine.ErrBusy) || errors.Is(err, engine.ErrLoad) {
		t.Fatalf("expected ErrBusy only, got %v", err)
	}
}
