package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/sync/errgroup"

	"github.com/raffaelramalhorosa/epgmerge/internal/models"
	"github.com/raffaelramalhorosa/epgmerge/internal/xmltv"
)

var gzipMagic = []byte{0x1f, 0x8b}

// HTTPError is returned for non-2xx responses.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for %s", e.StatusCode, e.URL)
}

// FetchError is returned once every attempt for a source has failed. Err is
// the error of the last attempt.
type FetchError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: giving up after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Options configures a Fetcher.
type Options struct {
	Timeout     time.Duration // per request
	Attempts    int
	Backoff     time.Duration // sleep before attempt n+1 is Backoff*n
	Concurrency int
	UserAgent   string

	// Client overrides the HTTP client; Timeout is ignored when set.
	Client *http.Client
}

// Fetcher downloads XMLTV feeds, retrying transient failures.
type Fetcher struct {
	opts   Options
	client *http.Client
	logger *slog.Logger
	hooks  Hooks
}

// Hooks observe fetch attempts. Nil fields are ignored.
type Hooks struct {
	Attempt func(url string, attempt int, err error)
	Done    func(url string, elapsed time.Duration, err error)
}

// New returns a Fetcher configured by opts.
func New(opts Options, logger *slog.Logger) *Fetcher {
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	return &Fetcher{opts: opts, client: client, logger: logger}
}

// WithHooks sets the attempt observers and returns f.
func (f *Fetcher) WithHooks(h Hooks) *Fetcher {
	f.hooks = h
	return f
}

// FetchAll fetches every url with up to Options.Concurrency requests in
// flight. Results are delivered in the order of urls, not completion order,
// and the channel is closed after the last one. Once ctx is done the channel
// may close early, so a caller that stops receiving should cancel ctx.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) <-chan models.FetchResult {
	slots := make([]chan models.FetchResult, len(urls))
	for i := range slots {
		slots[i] = make(chan models.FetchResult, 1)
	}

	go func() {
		var g errgroup.Group
		g.SetLimit(f.opts.Concurrency)
		for i, url := range urls {
			g.Go(func() error {
				doc, err := f.Fetch(ctx, url)
				slots[i] <- models.FetchResult{Index: i, URL: url, Document: doc, Err: err}
				return nil
			})
		}
		_ = g.Wait()
	}()

	out := make(chan models.FetchResult)
	go func() {
		defer close(out)
		for _, slot := range slots {
			res := <-slot
			select {
			case out <- res:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Fetch downloads and parses one feed. Every kind of failure is retried; when
// all attempts fail a *FetchError wrapping the last error is returned.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*models.Document, error) {
	started := time.Now()

	var (
		last     error
		attempts int
	)
	for attempts < f.opts.Attempts {
		attempts++
		doc, err := f.fetchOnce(ctx, url)
		if f.hooks.Attempt != nil {
			f.hooks.Attempt(url, attempts, err)
		}
		if err == nil {
			f.done(url, started, nil)
			return doc, nil
		}
		last = err

		if attempts == f.opts.Attempts {
			break
		}

		wait := f.opts.Backoff * time.Duration(attempts)
		f.logger.Debug("fetch attempt failed", "url", url, "attempt", attempts, "retry_in", wait, "error", err)
		if err := sleep(ctx, wait); err != nil {
			break
		}
	}

	ferr := &FetchError{URL: url, Attempts: attempts, Err: last}
	f.done(url, started, ferr)
	return nil, ferr
}

func (f *Fetcher) done(url string, started time.Time, err error) {
	if f.hooks.Done != nil {
		f.hooks.Done(url, time.Since(started), err)
	}
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) (*models.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "*/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: url}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	var r io.Reader = bytes.NewReader(body)
	if bytes.HasPrefix(body, gzipMagic) {
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gunzip: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	doc, err := xmltv.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}
	return doc, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
