package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sw33tLie/docdiff/pkg/events"
	"github.com/sw33tLie/docdiff/pkg/storage"
)

// SignedDocument is the payload a viewer needs to fetch one diff file.
type SignedDocument struct {
	Path      string `json:"path"`
	Signature string `json:"signature"`
	URL       string `json:"url"`
}

// Event is one entry of /api/events.
type Event struct {
	Title  string         `json:"title"`
	Time   time.Time      `json:"time"`
	Source string         `json:"source"`
	Pages  int            `json:"pages"`
	Data   SignedDocument `json:"data"`
}

// FileURL returns the relative URL serving path with signature.
func FileURL(path, signature string) string {
	return "/file/" + url.PathEscape(path) + "/" + url.PathEscape(signature)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseTime(q.Get("from"))
	if err != nil {
		http.Error(w, "invalid from: "+err.Error(), http.StatusBadRequest)
		return
	}
	to, err := parseTime(q.Get("to"))
	if err != nil {
		http.Error(w, "invalid to: "+err.Error(), http.StatusBadRequest)
		return
	}

	evs, err := events.ListAll(s.DiffDirs, from, to)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	out := make([]Event, 0, len(evs))
	for _, ev := range evs {
		sig, err := s.Signer.Sign(ev.Path)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		out = append(out, Event{
			Title:  ev.Title,
			Time:   ev.Time,
			Source: ev.Source,
			Pages:  ev.Pages,
			Data:   SignedDocument{Path: ev.Path, Signature: sig, URL: FileURL(ev.Path, sig)},
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	path := r.PathValue("file")
	sig := r.PathValue("signature")

	if !s.Signer.Verifier().Verify(path, sig) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if !filepath.IsAbs(path) || filepath.Clean(path) != path {
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if info.IsDir() {
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "history is disabled", http.StatusNotFound)
		return
	}
	stats, err := s.DB.GetStats(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(stats)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "history is disabled", http.StatusNotFound)
		return
	}
	q := r.URL.Query()
	since, err := parseTime(q.Get("since"))
	if err != nil {
		http.Error(w, "invalid since: "+err.Error(), http.StatusBadRequest)
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))

	outcomes, err := s.DB.ListOutcomes(r.Context(), storage.ListOptions{
		Location: q.Get("location"),
		Status:   q.Get("status"),
		Since:    since,
		Limit:    limit,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(outcomes)
}

// parseTime accepts unix seconds or RFC3339. Empty is the zero time.
func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected unix seconds or RFC3339, got %q", v)
	}
	return t, nil
}
