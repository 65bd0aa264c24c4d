// Package tracker runs one detection cycle over a tracked location: find the
// documents that changed since their baseline, publish an annotated diff for
// each, then promote them to be the new baseline.
package tracker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sw33tLie/docdiff/pkg/annotate"
	"github.com/sw33tLie/docdiff/pkg/compare"
	"github.com/sw33tLie/docdiff/pkg/engine"
	"github.com/sw33tLie/docdiff/pkg/events"
	"github.com/sw33tLie/docdiff/pkg/fileutil"
	"github.com/sw33tLie/docdiff/pkg/raster"
	"github.com/sw33tLie/docdiff/pkg/scan"
)

// Logger abstracts logging so callers can use logrus, stdlib log, or any
// other logger that satisfies this interface.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}

// Location is a tracked triple of absolute directories.
type Location struct {
	Current  string // documents as they are now
	Baseline string // last promoted copy of each document
	Output   string // published diff documents
}

// DefaultConcurrency is the number of documents a tracker processes at once
// unless Options says otherwise.
const DefaultConcurrency = 2

// Options tunes a Tracker. The zero value is usable.
type Options struct {
	Concurrency int           // documents processed in parallel; defaults to 2
	Workers     int           // render and match workers per document; <= 0 uses GOMAXPROCS
	Raster      raster.Config // zero value uses raster.DefaultConfig
	Log         Logger        // optional; nil = no logging
	Now         func() time.Time

	// OnFileDone is called from worker goroutines after each document.
	OnFileDone func(Result)
}

// Tracker owns one Location. It keeps no state between runs; the directories
// are the state.
type Tracker struct {
	loc         Location
	comparer    *compare.Comparer
	annotator   *annotate.Annotator
	concurrency int
	log         Logger
	now         func() time.Time
	onDone      func(Result)
}

// New builds a tracker for loc on the shared engine.
func New(loc Location, eng engine.Engine, opts Options) *Tracker {
	t := &Tracker{
		loc:         loc,
		comparer:    compare.NewComparer(eng, rasterConfig(opts.Raster), opts.Workers),
		annotator:   annotate.New(eng),
		concurrency: opts.Concurrency,
		log:         opts.Log,
		now:         opts.Now,
		onDone:      opts.OnFileDone,
	}
	if t.concurrency <= 0 {
		t.concurrency = DefaultConcurrency
	}
	if t.log == nil {
		t.log = nopLogger{}
	}
	if t.now == nil {
		t.now = time.Now
	}
	return t
}

func rasterConfig(cfg raster.Config) raster.Config {
	if cfg == (raster.Config{}) {
		return raster.DefaultConfig()
	}
	return cfg
}

// Location returns the tracked directories.
func (t *Tracker) Location() Location {
	return t.loc
}

// Run performs one full cycle. Per-document failures are reported in the
// results and never stop the other documents; the only error returned is a
// failure to scan the location.
//
// A document's baseline is promoted only after its diff has been published,
// so a crash mid-cycle re-detects the same change on the next run.
func (t *Tracker) Run(ctx context.Context) (Results, error) {
	cands, err := scan.Scan(t.loc.Current, t.loc.Baseline)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize document scan: %w", err)
	}

	results := make(Results, len(cands))
	if len(cands) == 0 {
		return results, nil
	}
	t.log.Debugf("Found %d changed document(s) in %s", len(cands), t.loc.Current)

	names := &outputNames{taken: make(map[string]bool)}
	candChan := make(chan scan.Candidate, len(cands))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < min(t.concurrency, len(cands)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range candChan {
				res := t.process(ctx, c, names)

				mu.Lock()
				results[c.Current] = res
				mu.Unlock()

				if t.onDone != nil {
					t.onDone(res)
				}
			}
		}()
	}

	for _, c := range cands {
		candChan <- c
	}
	close(candChan)
	wg.Wait()

	return results, nil
}

func (t *Tracker) process(ctx context.Context, c scan.Candidate, names *outputNames) Result {
	res := Result{Current: c.Current, Baseline: c.Baseline}
	fail := func(stage Stage, err error) Result {
		res.Err = &StageError{Stage: stage, Path: c.Current, Err: err}
		return res
	}

	if err := ctx.Err(); err != nil {
		return fail(StageCompare, err)
	}

	comps, err := t.comparer.ComparePDFs(c.Current, c.Baseline)
	if err != nil {
		return fail(StageCompare, err)
	}
	res.Pages = len(comps)

	if compare.AllIdentical(comps) {
		t.log.Debugf("No visible change in %s", c.Current)
	} else {
		if err := os.MkdirAll(t.loc.Output, 0o755); err != nil {
			return fail(StageAnnotate, err)
		}
		dst := names.claim(t.loc.Output, c.Current, t.now(), t.log)
		out, err := t.annotator.Annotate(c.Current, comps, dst)
		if err != nil {
			return fail(StageAnnotate, err)
		}
		res.Output = out.Path
		res.Dropped = out.Dropped
	}

	if err := fileutil.CopyAtomic(c.Current, c.Baseline); err != nil {
		return fail(StageCommit, err)
	}
	return res
}

// outputNames hands out diff paths within one cycle. Documents sharing a base
// name in different subdirectories would otherwise get the same path when
// they finish in the same second.
type outputNames struct {
	mu    sync.Mutex
	taken map[string]bool
}

// claim returns a diff path for current that no other document of the cycle
// holds and that is not on disk yet, moving the timestamp forward one second
// per clash.
func (n *outputNames) claim(dir, current string, now time.Time, log Logger) string {
	n.mu.Lock()
	defer n.mu.Unlock()

	for {
		dst := filepath.Join(dir, events.FileName(current, now))
		if _, err := os.Lstat(dst); err != nil && !n.taken[dst] {
			n.taken[dst] = true
			return dst
		}
		log.Warnf("Diff file %s is already taken, publishing %s one second later", dst, current)
		now = now.Add(time.Second)
	}
}
