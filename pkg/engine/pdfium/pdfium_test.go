package pdfium

import (
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/klippa-app/go-pdfium/enums"
	"github.com/klippa-app/go-pdfium/requests"
	"github.com/klippa-app/go-pdfium/structs"

	"github.com/sw33tLie/docdiff/pkg/annotate"
	"github.com/sw33tLie/docdiff/pkg/compare"
	"github.com/sw33tLie/docdiff/pkg/engine"
	"github.com/sw33tLie/docdiff/pkg/raster"
)

func TestARGB(t *testing.T) {
	tests := []struct {
		in   color.NRGBA
		want uint64
	}{
		{color.NRGBA{}, 0},
		{color.NRGBA{R: 0xff, A: 0xff}, 0xffff0000},
		{color.NRGBA{R: 0x12, G: 0x34, B: 0x56, A: 0x78}, 0x78123456},
	}
	for _, tt := range tests {
		if got := argb(tt.in); got != tt.want {
			t.Errorf("argb(%v) = %#x, want %#x", tt.in, got, tt.want)
		}
	}
}

func newTestEngine(t *testing.T, instances int, timeout time.Duration) *Engine {
	t.Helper()
	if testing.Short() {
		t.Skip("starts the pdfium runtime")
	}
	eng, err := New(Config{Instances: instances, InstanceTimeout: timeout})
	if err != nil {
		t.Fatalf("could not start pdfium: %v", err)
	}
	t.Cleanup(func() { eng.Close() })
	return eng
}

// writePDF stores a document of 100x100pt pages at path. Pages flagged true
// carry a black bar from 40pt to 60pt above the bottom edge.
func writePDF(t *testing.T, eng *Engine, path string, barred ...bool) {
	t.Helper()
	inst, err := eng.pool.GetInstance(time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	defer inst.Close()

	doc, err := inst.FPDF_CreateNewDocument(&requests.FPDF_CreateNewDocument{})
	if err != nil {
		t.Fatal(err)
	}
	defer inst.FPDF_CloseDocument(&requests.FPDF_CloseDocument{Document: doc.Document})

	for i, bar := range barred {
		page, err := inst.FPDFPage_New(&requests.FPDFPage_New{Document: doc.Document, PageIndex: i, Width: 100, Height: 100})
		if err != nil {
			t.Fatal(err)
		}
		ref := requests.Page{ByReference: &page.Page}
		if bar {
			rect, err := inst.FPDFPageObj_CreateNewRect(&requests.FPDFPageObj_CreateNewRect{X: 0, Y: 40, W: 100, H: 20})
			if err != nil {
				t.Fatal(err)
			}
			if _, err := inst.FPDFPageObj_SetFillColor(&requests.FPDFPageObj_SetFillColor{
				PageObject: rect.PageObject,
				FillColor:  structs.FPDF_COLOR{A: 255},
			}); err != nil {
				t.Fatal(err)
			}
			if _, err := inst.FPDFPath_SetDrawMode(&requests.FPDFPath_SetDrawMode{
				PageObject: rect.PageObject,
				FillMode:   enums.FPDF_FILLMODE_ALTERNATE,
			}); err != nil {
				t.Fatal(err)
			}
			if _, err := inst.FPDFPage_InsertObject(&requests.FPDFPage_InsertObject{Page: ref, PageObject: rect.PageObject}); err != nil {
				t.Fatal(err)
			}
			if _, err := inst.FPDFPage_GenerateContent(&requests.FPDFPage_GenerateContent{Page: ref}); err != nil {
				t.Fatal(err)
			}
		}
		inst.FPDF_ClosePage(&requests.FPDF_ClosePage{Page: page.Page})
	}

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := inst.FPDF_SaveAsCopy(&requests.FPDF_SaveAsCopy{Document: doc.Document, FileWriter: f}); err != nil {
		t.Fatal(err)
	}
}

func TestOpenFailuresAreLoadErrors(t *testing.T) {
	eng := newTestEngine(t, 1, time.Minute)
	dir := t.TempDir()

	junk := filepath.Join(dir, "junk.pdf")
	if err := os.WriteFile(junk, []byte("not a pdf"), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, path := range []string{filepath.Join(dir, "missing.pdf"), junk} {
		_, err := eng.Open(path)
		if !errors.Is(err, engine.ErrLoad) {
			t.Errorf("Open(%s) = %v, want ErrLoad", filepath.Base(path), err)
		}
	}
}

func TestOpenWithoutFreeInstanceIsBusy(t *testing.T) {
	eng := newTestEngine(t, 1, 200*time.Millisecond)
	path := filepath.Join(t.TempDir(), "doc.pdf")
	writePDF(t, eng, path, false)

	held, err := eng.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer held.Close()

	_, err = eng.Open(path)
	if !errors.Is(err, engine.ErrBusy) {
		t.Fatalf("second Open = %v, want ErrBusy", err)
	}
	if errors.Is(err, engine.ErrLoad) {
		t.Errorf("busy engine reported as load failure: %v", err)
	}
}

func TestCompareAndAnnotateRealDocuments(t *testing.T) {
	eng := newTestEngine(t, 2, time.Minute)
	dir := t.TempDir()
	cur := filepath.Join(dir, "current.pdf")
	base := filepath.Join(dir, "baseline.pdf")
	out := filepath.Join(dir, "diff.pdf")
	writePDF(t, eng, base, false, false, false, false)
	writePDF(t, eng, cur, false, true, false, true)

	cfg := raster.Config{TargetWidth: 100, MaxHeight: 1000, RotateLandscape: true}
	comps, err := compare.NewComparer(eng, cfg, 2).ComparePDFs(cur, base)
	if err != nil {
		t.Fatal(err)
	}
	var pattern []bool
	for _, c := range comps {
		pattern = append(pattern, c.Different)
	}
	if want := []bool{false, true, false, true}; !reflect.DeepEqual(pattern, want) {
		t.Fatalf("different pages = %v, want %v", pattern, want)
	}
	for _, i := range []int{1, 3} {
		segs := comps[i].Segments
		if len(segs) != 1 || !segs[0].Contains(0.5) || segs[0].Contains(0.1) || segs[0].Contains(0.9) {
			t.Errorf("page %d segments = %v, want one run around the bar", i, segs)
		}
	}

	res, err := annotate.New(eng).Annotate(cur, comps, out)
	if err != nil {
		t.Fatal(err)
	}
	if want := []int{0, 2}; !reflect.DeepEqual(res.Dropped, want) {
		t.Errorf("Dropped = %v, want %v", res.Dropped, want)
	}

	doc, err := eng.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer doc.Close()
	count, err := doc.PageCount()
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("annotated document has %d pages, want 2", count)
	}

	pdoc := doc.(*document)
	for i := 0; i < count; i++ {
		err := pdoc.withPage(i, func(page requests.Page) error {
			objs, err := pdoc.inst.FPDFPage_CountObjects(&requests.FPDFPage_CountObjects{Page: page})
			if err != nil {
				return err
			}
			if objs.Count != 2 {
				t.Errorf("page %d has %d objects, want bar and overlay", i, objs.Count)
			}
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}

		img, err := doc.RenderPage(i, 100, 100)
		if err != nil {
			t.Fatal(err)
		}
		r, g, b, _ := img.At(0, 50).RGBA()
		if r>>8 < 200 || g>>8 > 80 || b>>8 > 80 {
			t.Errorf("page %d margin at the bar = (%d,%d,%d), want red", i, r>>8, g>>8, b>>8)
		}
		if img.At(0, 10) != img.At(50, 10) {
			t.Errorf("page %d margin marked outside the changed rows", i)
		}
	}
}
