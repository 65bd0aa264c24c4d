package compare

import (
	"runtime"
	"sync"

	"github.com/sw33tLie/docdiff/pkg/raster"
)

// rowsPerChunk bounds the inner pixel-scan work unit.
const rowsPerChunk = 64

// Similarity is the best match found for one current page. When Similar is
// false no baseline page had the same dimensions.
type Similarity struct {
	Similar bool
	// Index of the matched baseline page.
	Index int
	// Diff is the number of differing pixels against that page.
	Diff int
}

// Better reports whether s should be preferred over o. A similar match beats a
// different one, fewer differing pixels win, ties keep the lower page index.
func (s Similarity) Better(o Similarity) bool {
	switch {
	case s.Similar != o.Similar:
		return s.Similar
	case !s.Similar:
		return false
	case s.Diff != o.Diff:
		return s.Diff < o.Diff
	default:
		return s.Index < o.Index
	}
}

// Matcher finds, for every current page, the closest baseline page.
type Matcher struct {
	// Workers bounds the goroutines used per level; <= 0 uses GOMAXPROCS.
	Workers int
}

func (m Matcher) workers() int {
	if m.Workers > 0 {
		return m.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// Compare returns one Similarity per current page, in page order. Only
// current pages are iterated: baseline pages with no counterpart have no
// effect.
func (m Matcher) Compare(current, baseline []*raster.Raster) []Similarity {
	results := make([]Similarity, len(current))
	workers := m.workers()

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < min(workers, len(current)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for a := range jobs {
				results[a] = m.best(current[a], baseline, workers)
			}
		}()
	}
	for a := range current {
		jobs <- a
	}
	close(jobs)
	wg.Wait()

	return results
}

// best scans every baseline page and keeps the minimum. Each candidate is
// scored independently; the reduction runs on one goroutine.
func (m Matcher) best(page *raster.Raster, baseline []*raster.Raster, workers int) Similarity {
	scores := make([]Similarity, len(baseline))
	var wg sync.WaitGroup
	for b := range baseline {
		if !page.SameSize(baseline[b]) {
			continue
		}
		wg.Add(1)
		go func(b int) {
			defer wg.Done()
			scores[b] = Similarity{Similar: true, Index: b, Diff: CountDiff(page, baseline[b], workers)}
		}(b)
	}
	wg.Wait()

	var best Similarity
	for _, s := range scores {
		if s.Better(best) {
			best = s
		}
	}
	return best
}

// CountDiff returns the number of pixel positions whose RGB values differ.
// Both rasters must have the same dimensions. Rows are split into chunks
// counted independently and summed once all chunks are done.
func CountDiff(a, b *raster.Raster, workers int) int {
	if a.Height == 0 || a.Width == 0 {
		return 0
	}
	chunks := (a.Height + rowsPerChunk - 1) / rowsPerChunk
	if workers <= 0 {
		workers = 1
	}
	if chunks == 1 || workers == 1 {
		return countRows(a, b, 0, a.Height)
	}

	partial := make([]int, chunks)
	next := make(chan int, chunks)
	for c := 0; c < chunks; c++ {
		next <- c
	}
	close(next)

	var wg sync.WaitGroup
	for w := 0; w < min(workers, chunks); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range next {
				from := c * rowsPerChunk
				partial[c] = countRows(a, b, from, min(from+rowsPerChunk, a.Height))
			}
		}()
	}
	wg.Wait()

	total := 0
	for _, n := range partial {
		total += n
	}
	return total
}

func countRows(a, b *raster.Raster, from, to int) int {
	n := 0
	for y := from; y < to; y++ {
		if a.RowsEqual(b, y) {
			continue
		}
		ra, rb := a.Row(y), b.Row(y)
		for x := 0; x < len(ra); x += 3 {
			if ra[x] != rb[x] || ra[x+1] != rb[x+1] || ra[x+2] != rb[x+2] {
				n++
			}
		}
	}
	return n
}
