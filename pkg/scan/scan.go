// Package scan finds files in a current tree that are new or newer than their
// counterpart in a baseline tree.
package scan

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
)

// Candidate pairs a current file with the baseline path it should be compared
// against. The baseline does not need to exist.
type Candidate struct {
	Current  string
	Baseline string
}

// Scan walks current recursively and returns a candidate for every file that
// is absent from baseline, newer than its baseline copy, or shadowed by a
// baseline directory of the same name. A missing baseline is never an error;
// any other I/O failure aborts the scan. Order is unspecified.
func Scan(current, baseline string) ([]Candidate, error) {
	var out []Candidate
	if err := scanDir(current, baseline, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func scanDir(current, baseline string, out *[]Candidate) error {
	entries, err := os.ReadDir(current)
	if err != nil {
		return fmt.Errorf("could not read %s: %w", current, err)
	}

	for _, entry := range entries {
		cur := filepath.Join(current, entry.Name())
		base := filepath.Join(baseline, entry.Name())

		baseInfo, err := os.Stat(base)
		if err != nil && !absent(err) {
			return fmt.Errorf("could not stat %s: %w", base, err)
		}

		// DirEntry types come from lstat: a symlink is never recursed
		// into, it is compared like a file.
		if entry.IsDir() {
			if err := scanDir(cur, base, out); err != nil {
				return err
			}
			continue
		}
		curInfo, err := fileInfo(cur, entry)
		if err != nil {
			return fmt.Errorf("could not stat %s: %w", cur, err)
		}

		switch {
		case baseInfo == nil, baseInfo.IsDir():
			// New file, or a stale baseline directory in the way; the
			// directory is left alone.
			*out = append(*out, Candidate{Current: cur, Baseline: base})
		case curInfo.ModTime().After(baseInfo.ModTime()):
			*out = append(*out, Candidate{Current: cur, Baseline: base})
		}
	}
	return nil
}

// fileInfo stats a current file, following a symlink to its target. A dangling
// link falls back to the link itself.
func fileInfo(path string, entry fs.DirEntry) (fs.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil && entry.Type()&fs.ModeSymlink != 0 && errors.Is(err, fs.ErrNotExist) {
		return entry.Info()
	}
	return info, err
}

// absent reports whether err means the baseline path does not exist. A
// baseline file where a directory is expected makes every path below it
// ENOTDIR, which is treated the same way.
func absent(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}
