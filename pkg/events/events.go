// Package events names diff files and reads them back as timestamped events.
package events

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"rsc.io/pdf"
)

const marker = ".diff."

// ErrMalformedName is returned for a file in an output directory whose name is
// not of the form <name>.diff.<unix seconds>.pdf.
var ErrMalformedName = errors.New("malformed diff file name")

// Event is one diff file.
type Event struct {
	// Title is the timestamp field as it appears in the file name.
	Title string
	// Source is the name of the document the diff was made from.
	Source string
	Time   time.Time
	Path   string
	// Pages is the number of changed pages, 0 when the file could not be read.
	Pages int
}

// FileName returns the diff file name for source generated at t.
func FileName(source string, t time.Time) string {
	name := filepath.Base(source)
	if name == "." || name == string(filepath.Separator) {
		name = "unknown_filename"
	}
	return fmt.Sprintf("%s%s%d.pdf", name, marker, t.Unix())
}

// ParseName extracts the source name and timestamp from a diff file name. The
// timestamp is the second-to-last dot separated field.
func ParseName(name string) (source string, stamp string, t time.Time, err error) {
	fields := strings.Split(name, ".")
	if len(fields) < 2 {
		return "", "", time.Time{}, fmt.Errorf("%w: %q is too short", ErrMalformedName, name)
	}
	stamp = fields[len(fields)-2]
	secs, err := strconv.ParseInt(stamp, 10, 64)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("%w: %q: %q is not a number", ErrMalformedName, name, stamp)
	}

	source = name
	if i := strings.LastIndex(name, marker); i >= 0 {
		source = name[:i]
	}
	return source, stamp, time.Unix(secs, 0).UTC(), nil
}

// List returns the events in dir whose time falls in [from, to). A zero to
// means no upper bound. Hidden files and subdirectories are skipped; any other
// file with an unparsable name fails the whole listing.
func List(dir string, from, to time.Time) ([]Event, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("could not read diff documents in %s: %w", dir, err)
	}

	var out []Event
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		source, stamp, t, err := ParseName(entry.Name())
		if err != nil {
			return nil, err
		}
		if t.Before(from) || (!to.IsZero() && !t.Before(to)) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		out = append(out, Event{
			Title:  stamp,
			Source: source,
			Time:   t,
			Path:   path,
			Pages:  pageCount(path),
		})
	}
	sortByTime(out)
	return out, nil
}

// ListAll merges the events of several output directories.
func ListAll(dirs []string, from, to time.Time) ([]Event, error) {
	var out []Event
	for _, dir := range dirs {
		evs, err := List(dir, from, to)
		if err != nil {
			return nil, err
		}
		out = append(out, evs...)
	}
	sortByTime(out)
	return out, nil
}

func sortByTime(evs []Event) {
	sort.SliceStable(evs, func(i, j int) bool {
		if !evs[i].Time.Equal(evs[j].Time) {
			return evs[i].Time.Before(evs[j].Time)
		}
		return evs[i].Path < evs[j].Path
	})
}

// pageCount reads the page tree with a pure Go parser so listing never needs
// a rendering engine instance.
func pageCount(path string) (n int) {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return 0
	}

	// rsc.io/pdf panics on some malformed inputs.
	defer func() {
		if recover() != nil {
			n = 0
		}
	}()
	r, err := pdf.NewReader(f, info.Size())
	if err != nil {
		return 0
	}
	return r.NumPage()
}
