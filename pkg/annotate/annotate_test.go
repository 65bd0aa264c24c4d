package annotate

import (
	"errors"
	"image"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/sw33tLie/docdiff/pkg/compare"
	"github.com/sw33tLie/docdiff/pkg/engine"
	"github.com/sw33tLie/docdiff/pkg/engine/enginetest"
)

func pages(ids ...string) []enginetest.Page {
	out := make([]enginetest.Page, len(ids))
	for i, id := range ids {
		out[i] = enginetest.Page{ID: id, Width: 10, Height: 20}
	}
	return out
}

func setup(t *testing.T, p []enginetest.Page) (src, dst string) {
	t.Helper()
	dir := t.TempDir()
	src = filepath.Join(dir, "doc.pdf")
	dst = filepath.Join(dir, "doc.diff.1700000000.pdf")
	if err := enginetest.WriteDoc(src, enginetest.Doc{Pages: p}); err != nil {
		t.Fatal(err)
	}
	return src, dst
}

func TestAnnotateDropsIdenticalPages(t *testing.T) {
	src, dst := setup(t, pages("0", "1", "2", "3"))
	changed := compare.Comparison{Different: true, Segments: []compare.Segment{{Start: 0.5, End: 0.6}}}
	comps := []compare.Comparison{{}, changed, {}, changed}

	eng := &enginetest.Engine{}
	out, err := New(eng).Annotate(src, comps, dst)
	if err != nil {
		t.Fatalf("annotate failed: %v", err)
	}
	if out.Path != dst {
		t.Errorf("got path %s, want %s", out.Path, dst)
	}
	if want := []int{0, 2}; !reflect.DeepEqual(out.Dropped, want) {
		t.Errorf("dropped %v, want %v", out.Dropped, want)
	}

	doc, err := enginetest.ReadDoc(dst)
	if err != nil {
		t.Fatalf("could not read output: %v", err)
	}
	if len(doc.Pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(doc.Pages))
	}
	for i, id := range []string{"1", "3"} {
		p := doc.Pages[i]
		if p.ID != id {
			t.Errorf("page %d: got id %s, want %s", i, p.ID, id)
		}
		if len(p.Overlays) != 1 {
			t.Fatalf("page %s: expected 1 overlay, got %d", p.ID, len(p.Overlays))
		}
		ov := p.Overlays[0]
		if ov.Width != 50 || ov.Height != 100 {
			t.Errorf("page %s: overlay %dx%d, want 50x100", p.ID, ov.Width, ov.Height)
		}
		if ov.MarkWidth != DefaultMarkWidth {
			t.Errorf("page %s: mark width %d, want %d", p.ID, ov.MarkWidth, DefaultMarkWidth)
		}
		if want := [][2]int{{50, 59}}; !reflect.DeepEqual(ov.Marked, want) {
			t.Errorf("page %s: marked rows %v, want %v", p.ID, ov.Marked, want)
		}
	}
	if n := eng.OpenHandles(); n != 0 {
		t.Fatalf("%d document handles leaked", n)
	}

	// The source document is never modified.
	orig, _ := enginetest.ReadDoc(src)
	if len(orig.Pages) != 4 {
		t.Fatalf("source was modified: %d pages", len(orig.Pages))
	}
}

func TestAnnotateWholePageMarker(t *testing.T) {
	src, dst := setup(t, pages("only"))
	comps := []compare.Comparison{{Different: true, Segments: compare.WholePage}}

	if _, err := New(&enginetest.Engine{}).Annotate(src, comps, dst); err != nil {
		t.Fatalf("annotate failed: %v", err)
	}
	doc, _ := enginetest.ReadDoc(dst)
	if want := [][2]int{{0, 99}}; !reflect.DeepEqual(doc.Pages[0].Overlays[0].Marked, want) {
		t.Fatalf("marked rows %v, want %v", doc.Pages[0].Overlays[0].Marked, want)
	}
}

func TestMarkerClippedToNarrowPage(t *testing.T) {
	src, dst := setup(t, []enginetest.Page{{ID: "thin", Width: 1, Height: 20}})
	comps := []compare.Comparison{{Different: true, Segments: compare.WholePage}}

	if _, err := New(&enginetest.Engine{}).Annotate(src, comps, dst); err != nil {
		t.Fatalf("annotate failed: %v", err)
	}
	doc, _ := enginetest.ReadDoc(dst)
	if got := doc.Pages[0].Overlays[0].MarkWidth; got != 5 {
		t.Fatalf("mark width %d, want 5", got)
	}
}

func TestAnnotatePageCountMismatch(t *testing.T) {
	src, dst := setup(t, pages("0", "1"))

	_, err := New(&enginetest.Engine{}).Annotate(src, []compare.Comparison{{}}, dst)
	if !errors.Is(err, engine.ErrModify) {
		t.Fatalf("expected ErrModify, got %v", err)
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Fatalf("no output should be written, stat err = %v", err)
	}
}

func TestAnnotateMissingSource(t *testing.T) {
	dir := t.TempDir()
	_, err := New(&enginetest.Engine{}).Annotate(filepath.Join(dir, "nope.pdf"), nil, filepath.Join(dir, "out.pdf"))
	if !errors.Is(err, engine.ErrLoad) {
		t.Fatalf("expected ErrLoad, got %v", err)
	}
}

func TestAnnotateUnwritableOutput(t *testing.T) {
	src, _ := setup(t, pages("0"))
	dst := filepath.Join(t.TempDir(), "missing-dir", "out.pdf")

	_, err := New(&enginetest.Engine{}).Annotate(src, []compare.Comparison{{Different: true, Segments: compare.WholePage}}, dst)
	if !errors.Is(err, engine.ErrSave) {
		t.Fatalf("expected ErrSave, got %v", err)
	}
}

func TestCovered(t *testing.T) {
	segs := []compare.Segment{{Start: 0.1, End: 0.2}, {Start: 0.5, End: 0.5}, {Start: 0.9, End: 1}}
	tests := map[float64]bool{0: false, 0.1: true, 0.15: true, 0.3: false, 0.5: true, 0.51: false, 1: true}
	for pos, want := range tests {
		if got := covered(segs, pos); got != want {
			t.Errorf("covered(%v) = %t, want %t", pos, got, want)
		}
	}
}

func TestOverlayPaintsOneRectPerRun(t *testing.T) {
	a := New(&enginetest.Engine{})
	segs := []compare.Segment{{Start: 0, End: 0.1}, {Start: 0.5, End: 0.6}}

	ov := a.overlay(engine.Size{Width: 10, Height: 20}, segs)
	if ov.Width != 50 || ov.Height != 100 {
		t.Fatalf("overlay %dx%d, want 50x100", ov.Width, ov.Height)
	}
	if ov.Color != markColor {
		t.Errorf("color %v, want %v", ov.Color, markColor)
	}
	want := []image.Rectangle{image.Rect(0, 0, 10, 10), image.Rect(0, 50, 10, 60)}
	if !reflect.DeepEqual(ov.Rects, want) {
		t.Fatalf("rects %v, want %v", ov.Rects, want)
	}
}

func TestOverlayRunReachingLastRow(t *testing.T) {
	ov := New(&enginetest.Engine{}).overlay(engine.Size{Width: 1, Height: 2}, compare.WholePage)
	if want := []image.Rectangle{image.Rect(0, 0, 5, 10)}; !reflect.DeepEqual(ov.Rects, want) {
		t.Fatalf("rects %v, want %v", ov.Rects, want)
	}
}
