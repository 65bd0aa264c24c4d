package polling

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sw33tLie/docdiff/pkg/engine/enginetest"
	"github.com/sw33tLie/docdiff/pkg/storage"
	"github.com/sw33tLie/docdiff/pkg/tracker"
)

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) add(level, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, level+" "+fmt.Sprintf(format, args...))
}

func (l *recordingLogger) Infof(f string, a ...interface{})  { l.add("INFO", f, a...) }
func (l *recordingLogger) Warnf(f string, a ...interface{})  { l.add("WARN", f, a...) }
func (l *recordingLogger) Errorf(f string, a ...interface{}) { l.add("ERROR", f, a...) }
func (l *recordingLogger) Debugf(f string, a ...interface{}) { l.add("DEBUG", f, a...) }

func (l *recordingLogger) contains(prefix, substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.HasPrefix(line, prefix) && strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

func newLocation(t *testing.T, docs ...string) tracker.Location {
	t.Helper()
	root := t.TempDir()
	loc := tracker.Location{
		Current:  filepath.Join(root, "current"),
		Baseline: filepath.Join(root, "last"),
		Output:   filepath.Join(root, "diff"),
	}
	if err := os.MkdirAll(loc.Current, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range docs {
		doc := enginetest.Doc{Pages: []enginetest.Page{{ID: name, Width: 50, Height: 50}}}
		if err := enginetest.WriteDoc(filepath.Join(loc.Current, name), doc); err != nil {
			t.Fatal(err)
		}
	}
	return loc
}

func TestRunReportsAndRecords(t *testing.T) {
	eng := &enginetest.Engine{}
	good := newLocation(t, "a.pdf")
	broken := newLocation(t, "b.pdf")
	if err := os.WriteFile(filepath.Join(broken.Current, "corrupt.pdf"), []byte("junk"), 0o644); err != nil {
		t.Fatal(err)
	}
	missing := tracker.Location{Current: filepath.Join(t.TempDir(), "gone"), Baseline: t.TempDir(), Output: t.TempDir()}

	db, err := storage.Open(filepath.Join(t.TempDir(), "history.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	log := &recordingLogger{}
	p := New(Config{
		Trackers: []*tracker.Tracker{
			tracker.New(good, eng, tracker.Options{}),
			tracker.New(broken, eng, tracker.Options{}),
			tracker.New(missing, eng, tracker.Options{}),
		},
		DB:       db,
		Interval: 5 * time.Minute,
		Log:      log,
	})

	if next := p.Run(context.Background()); next != 5*time.Minute {
		t.Fatalf("next delay %v, want 5m", next)
	}

	if !log.contains("INFO", filepath.Join(good.Current, "a.pdf")) {
		t.Errorf("expected a change report for a.pdf, got %v", log.lines)
	}
	if !log.contains("ERROR", "Was unable to update document: "+filepath.Join(broken.Current, "corrupt.pdf")) {
		t.Errorf("expected a failure report for corrupt.pdf, got %v", log.lines)
	}
	if !log.contains("ERROR", "Unable to initialize document scan for "+missing.Current) {
		t.Errorf("expected a scan failure report, got %v", log.lines)
	}

	outcomes, err := db.ListOutcomes(context.Background(), storage.ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("expected 3 recorded outcomes, got %+v", outcomes)
	}
	runIDs := map[string]bool{}
	statuses := map[string]int{}
	for _, o := range outcomes {
		runIDs[o.RunID] = true
		statuses[o.Status]++
		if o.Status == "failed" && o.Stage != "compare" {
			t.Errorf("failed outcome should carry its stage: %+v", o)
		}
	}
	if len(runIDs) != 1 {
		t.Errorf("one pass should share a run id, got %v", runIDs)
	}
	if statuses["changed"] != 2 || statuses["failed"] != 1 {
		t.Errorf("unexpected statuses %v", statuses)
	}
}

func TestDefaultInterval(t *testing.T) {
	if next := New(Config{}).Run(context.Background()); next != DefaultInterval {
		t.Fatalf("got %v, want %v", next, DefaultInterval)
	}
}

func TestBusyLocationIsSkipped(t *testing.T) {
	eng := &enginetest.Engine{}
	loc := newLocation(t, "a.pdf")

	p := New(Config{
		Trackers: []*tracker.Tracker{tracker.New(loc, eng, tracker.Options{})},
		Lock: func(tracker.Location) (func(), bool, error) {
			return nil, false, nil
		},
	})
	res := p.Poll(context.Background())
	if len(res) != 1 || !res[0].Skipped {
		t.Fatalf("expected the location to be skipped, got %+v", res)
	}
	if _, err := os.Stat(loc.Baseline); !os.IsNotExist(err) {
		t.Fatalf("skipped location must not be touched, stat err = %v", err)
	}
}

func TestLockIsReleased(t *testing.T) {
	eng := &enginetest.Engine{}
	loc := newLocation(t, "a.pdf")

	var held, released int
	p := New(Config{
		Trackers: []*tracker.Tracker{tracker.New(loc, eng, tracker.Options{})},
		Lock: func(tracker.Location) (func(), bool, error) {
			held++
			return func() { released++ }, true, nil
		},
	})
	res := p.Poll(context.Background())
	if res[0].Err != nil || len(res[0].Results) != 1 {
		t.Fatalf("unexpected result %+v", res[0])
	}
	if held != 1 || released != 1 {
		t.Fatalf("lock held %d, released %d", held, released)
	}
}

func TestOutcomes(t *testing.T) {
	loc := tracker.Location{Current: "/cur"}
	results := tracker.Results{
		"/cur/b.pdf": {Current: "/cur/b.pdf", Err: &tracker.StageError{Stage: tracker.StageCommit, Path: "/cur/b.pdf", Err: os.ErrPermission}},
		"/cur/a.pdf": {Current: "/cur/a.pdf", Output: "/diff/a", Pages: 3, Dropped: []int{0, 1}},
	}
	out := Outcomes("run", loc, results)
	if len(out) != 2 || out[0].CurrentPath != "/cur/a.pdf" {
		t.Fatalf("unexpected outcomes %+v", out)
	}
	if out[0].Status != "changed" || out[0].Dropped != 2 || out[0].Pages != 3 {
		t.Errorf("unexpected changed outcome %+v", out[0])
	}
	if out[1].Status != "failed" || out[1].Stage != "commit" || out[1].Error != os.ErrPermission.Error() {
		t.Errorf("unexpected failed outcome %+v", out[1])
	}
}
