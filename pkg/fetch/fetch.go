// Package fetch is a client for a docdiff server: it lists change events and
// downloads the signed diff files they point to.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"

	"github.com/sw33tLie/docdiff/pkg/fileutil"
)

// Options configures a Client. The zero value is usable.
type Options struct {
	Username  string
	Password  string
	RetryMax  int           // defaults to 5
	RetryWait time.Duration // minimum wait between retries; 0 keeps the library default
	Timeout   time.Duration // per attempt; defaults to 30s
}

// Event is a change event as listed by the server.
type Event struct {
	Title     string
	Time      time.Time
	Source    string
	Pages     int
	Path      string
	Signature string
	URL       string
}

type Client struct {
	base *url.URL
	http *retryablehttp.Client
	opts Options
}

// New returns a client for the server at baseURL.
func New(baseURL string, opts Options) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q: scheme and host are required", baseURL)
	}

	retryClient := retryablehttp.NewClient()
	retryClient.Logger = log.New(io.Discard, "", 0)
	retryClient.RetryMax = 5
	if opts.RetryMax > 0 {
		retryClient.RetryMax = opts.RetryMax
	}
	if opts.RetryWait > 0 {
		retryClient.RetryWaitMin = opts.RetryWait
		retryClient.RetryWaitMax = 4 * opts.RetryWait
	}
	retryClient.HTTPClient.Timeout = 30 * time.Second
	if opts.Timeout > 0 {
		retryClient.HTTPClient.Timeout = opts.Timeout
	}

	return &Client{base: base, http: retryClient, opts: opts}, nil
}

func (c *Client) get(ctx context.Context, ref string) (*http.Response, error) {
	u, err := c.base.Parse(ref)
	if err != nil {
		return nil, err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if c.opts.Username != "" || c.opts.Password != "" {
		req.SetBasicAuth(c.opts.Username, c.opts.Password)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: %s: %s", u.Path, resp.Status, body)
	}
	return resp, nil
}

// Events lists the events in [from, to). A zero to means no upper bound.
func (c *Client) Events(ctx context.Context, from, to time.Time) ([]Event, error) {
	q := url.Values{}
	q.Set("from", strconv.FormatInt(from.Unix(), 10))
	if !to.IsZero() {
		q.Set("to", strconv.FormatInt(to.Unix(), 10))
	}

	resp, err := c.get(ctx, "/api/events?"+q.Encode())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	parsed := gjson.ParseBytes(body)
	if !parsed.IsArray() {
		return nil, fmt.Errorf("unexpected events response: %.100s", body)
	}
	var out []Event
	parsed.ForEach(func(_, ev gjson.Result) bool {
		out = append(out, Event{
			Title:     ev.Get("title").String(),
			Time:      ev.Get("time").Time(),
			Source:    ev.Get("source").String(),
			Pages:     int(ev.Get("pages").Int()),
			Path:      ev.Get("data.path").String(),
			Signature: ev.Get("data.signature").String(),
			URL:       ev.Get("data.url").String(),
		})
		return true
	})
	return out, nil
}

// Download stores the file of ev in dir and returns its local path.
func (c *Client) Download(ctx context.Context, ev Event, dir string) (string, error) {
	if ev.URL == "" {
		return "", fmt.Errorf("event %s has no file URL", ev.Title)
	}
	resp, err := c.get(ctx, ev.URL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	dest := filepath.Join(dir, filepath.Base(filepath.FromSlash(ev.Path)))
	err = fileutil.WriteAtomic(dest, 0o644, func(w io.Writer) error {
		_, err := io.Copy(w, resp.Body)
		return err
	})
	if err != nil {
		return "", err
	}
	return dest, nil
}
