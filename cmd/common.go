package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"github.com/sw33tLie/docdiff/internal/config"
	"github.com/sw33tLie/docdiff/internal/utils"
	"github.com/sw33tLie/docdiff/pkg/engine/pdfium"
	"github.com/sw33tLie/docdiff/pkg/storage"
	"github.com/sw33tLie/docdiff/pkg/tracker"
)

// loadConfig decodes the global configuration.
func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}

// newEngine starts the shared pdfium runtime. Callers must Close it.
func newEngine(cfg *config.Config) (*pdfium.Engine, error) {
	return pdfium.New(pdfium.Config{
		WASMPath:        cfg.PDFium.WASMPath,
		Instances:       poolSize(cfg),
		InstanceTimeout: cfg.PDFium.InstanceTimeout,
	})
}

// poolSize gives every document that can be in flight its own instance:
// locations poll in parallel and a document holds one instance at a time.
func poolSize(cfg *config.Config) int {
	if cfg.PDFium.Instances > 0 {
		return cfg.PDFium.Instances
	}
	perLocation := cfg.Concurrency
	if perLocation <= 0 {
		perLocation = tracker.DefaultConcurrency
	}
	return max(1, perLocation*len(cfg.Locations))
}

// newTrackers builds one tracker per configured location on the shared engine.
func newTrackers(cfg *config.Config, eng *pdfium.Engine) []*tracker.Tracker {
	trackers := make([]*tracker.Tracker, 0, len(cfg.Locations))
	for _, loc := range cfg.Locations {
		trackers = append(trackers, tracker.New(loc.Tracker(), eng, tracker.Options{
			Concurrency: cfg.Concurrency,
			Workers:     cfg.Render.Workers,
			Raster:      cfg.Render.Raster(),
			Log:         utils.WithLocation(loc.CurrentPath),
		}))
	}
	return trackers
}

// openDB opens the history database. Writers hold the database lock until
// the returned cleanup runs.
func openDB(path string, writer bool) (*storage.DB, func(), error) {
	absPath, err := utils.GetAbsDBPath(path)
	if err != nil {
		return nil, nil, fmt.Errorf("could not resolve db path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, nil, err
	}

	var lock *utils.DBLock
	if writer {
		lock, err = utils.NewDBLock(absPath)
		if err != nil {
			return nil, nil, err
		}
		if err := lock.Lock(); err != nil {
			return nil, nil, err
		}
	}

	db, err := storage.Open(absPath)
	if err != nil {
		if lock != nil {
			lock.Unlock()
		}
		return nil, nil, err
	}
	return db, func() {
		db.Close()
		if lock != nil {
			lock.Unlock()
		}
	}, nil
}

func requireLocations(cfg *config.Config) error {
	if len(cfg.Locations) == 0 {
		return fmt.Errorf("no locations configured. Add them to %s", configFileUsed())
	}
	return nil
}

func configFileUsed() string {
	if f := viper.ConfigFileUsed(); f != "" {
		return f
	}
	return "~/.docdiff.yaml"
}
