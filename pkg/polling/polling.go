package polling

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sw33tLie/docdiff/pkg/storage"
	"github.com/sw33tLie/docdiff/pkg/tracker"
)

// DefaultInterval is the delay requested between two passes.
const DefaultInterval = time.Minute

// Logger abstracts logging so callers can use logrus, stdlib log, or any
// other logger that satisfies this interface.
type Logger = tracker.Logger

// nopLogger silently discards all messages.
type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}

// LockFunc takes an exclusive lock on a location without waiting. acquired is
// false when the location is busy elsewhere.
type LockFunc func(loc tracker.Location) (release func(), acquired bool, err error)

// Config holds everything a Poller needs.
type Config struct {
	Trackers []*tracker.Tracker
	DB       *storage.DB   // optional; nil = no history
	Interval time.Duration // defaults to DefaultInterval if <= 0
	Lock     LockFunc      // optional; nil = no locking
	Log      Logger        // optional; nil = no logging
}

// LocationResult holds the outcome of one pass over a single location.
type LocationResult struct {
	Location tracker.Location
	Results  tracker.Results
	// Err is set when the location could not be scanned at all.
	Err error
	// Skipped is set when another process held the location lock.
	Skipped bool
}

// Poller runs every tracker once per pass. It never sleeps: the caller owns
// the timer and asks Run for the next delay.
type Poller struct {
	cfg Config
	log Logger
	mu  sync.Mutex // one pass at a time
}

func New(cfg Config) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	log := cfg.Log
	if log == nil {
		log = nopLogger{}
	}
	return &Poller{cfg: cfg, log: log}
}

// Run performs one pass, reports every failure through the logger and
// returns the delay to wait before the next pass.
func (p *Poller) Run(ctx context.Context) time.Duration {
	for _, lr := range p.Poll(ctx) {
		loc := lr.Location.Current
		switch {
		case lr.Skipped:
			p.log.Warnf("Location %s is being processed by another process, skipping", loc)
		case lr.Err != nil:
			p.log.Errorf("Unable to initialize document scan for %s: %v", loc, lr.Err)
		default:
			for _, r := range sortedResults(lr.Results) {
				switch {
				case r.Err != nil:
					p.log.Errorf("Was unable to update document: %s. %v", r.Current, r.Err)
				case r.Output != "":
					p.log.Infof("Document %s changed, diff written to %s", r.Current, r.Output)
				default:
					p.log.Debugf("Document %s has no visible change", r.Current)
				}
			}
		}
	}
	return p.cfg.Interval
}

// Poll runs every location concurrently and returns their results in
// configuration order.
func (p *Poller) Poll(ctx context.Context) []LocationResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	runID := uuid.NewString()
	p.log.Debugf("Starting pass %s over %d location(s)", runID, len(p.cfg.Trackers))

	out := make([]LocationResult, len(p.cfg.Trackers))
	var wg sync.WaitGroup
	for i, t := range p.cfg.Trackers {
		wg.Add(1)
		go func(i int, t *tracker.Tracker) {
			defer wg.Done()
			out[i] = p.pollLocation(ctx, runID, t)
		}(i, t)
	}
	wg.Wait()
	return out
}

func (p *Poller) pollLocation(ctx context.Context, runID string, t *tracker.Tracker) LocationResult {
	lr := LocationResult{Location: t.Location()}

	if p.cfg.Lock != nil {
		release, ok, err := p.cfg.Lock(lr.Location)
		if err != nil {
			lr.Err = err
			return lr
		}
		if !ok {
			lr.Skipped = true
			return lr
		}
		defer release()
	}

	lr.Results, lr.Err = t.Run(ctx)
	if lr.Err != nil || p.cfg.DB == nil {
		return lr
	}

	if err := p.cfg.DB.LogOutcomes(ctx, Outcomes(runID, lr.Location, lr.Results)); err != nil {
		p.log.Warnf("Could not record history for %s: %v", lr.Location.Current, err)
	}
	return lr
}

// Outcomes converts tracker results into history rows.
func Outcomes(runID string, loc tracker.Location, results tracker.Results) []storage.Outcome {
	now := time.Now().UTC()
	out := make([]storage.Outcome, 0, len(results))
	for _, r := range sortedResults(results) {
		o := storage.Outcome{
			OccurredAt:  now,
			RunID:       runID,
			Location:    loc.Current,
			CurrentPath: r.Current,
			DiffPath:    r.Output,
			Status:      r.Status(),
			Pages:       r.Pages,
			Dropped:     len(r.Dropped),
		}
		if r.Err != nil {
			o.Error = r.Err.Error()
			var se *tracker.StageError
			if errors.As(r.Err, &se) {
				o.Stage = string(se.Stage)
				o.Error = se.Err.Error()
			}
		}
		out = append(out, o)
	}
	return out
}

func sortedResults(results tracker.Results) []tracker.Result {
	out := make([]tracker.Result, 0, len(results))
	for _, r := range results {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Current < out[j].Current })
	return out
}
