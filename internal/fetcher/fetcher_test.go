package fetcher_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/raffaelramalhorosa/epgmerge/internal/fetcher"
	"github.com/raffaelramalhorosa/epgmerge/internal/xmltv"
)

const guide = `<?xml version="1.0" encoding="UTF-8"?>
<tv><channel id="c1"><display-name>One</display-name></channel>
<programme channel="c1" start="20240101120000 +0000" stop="20240101130000 +0000"><title>Show</title></programme></tv>`

func newFetcher(attempts int) *fetcher.Fetcher {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return fetcher.New(fetcher.Options{
		Timeout:     5 * time.Second,
		Attempts:    attempts,
		Backoff:     time.Millisecond,
		Concurrency: 2,
		UserAgent:   "epgmerge-test/1.0",
	}, logger)
}

func gzipped(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(s)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestFetchPlain(t *testing.T) {
	var gotUA, gotAccept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		w.Write([]byte(guide))
	}))
	defer server.Close()

	doc, err := newFetcher(3).Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(doc.Channels) != 1 || len(doc.Programmes) != 1 {
		t.Fatalf("got %d channels, %d programmes", len(doc.Channels), len(doc.Programmes))
	}
	if gotUA != "epgmerge-test/1.0" {
		t.Errorf("User-Agent = %q", gotUA)
	}
	if gotAccept != "*/*" {
		t.Errorf("Accept = %q", gotAccept)
	}
}

func TestFetchGzipBody(t *testing.T) {
	body := gzipped(t, guide)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/gzip")
		w.Write(body)
	}))
	defer server.Close()

	doc, err := newFetcher(1).Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if doc.Channels[0].ID() != "c1" {
		t.Errorf("channel id = %q", doc.Channels[0].ID())
	}
}

func TestFetchHTTPErrorRetries(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	doc, err := newFetcher(3).Fetch(context.Background(), server.URL)
	if doc != nil {
		t.Error("Fetch() should return nil document on failure")
	}

	var ferr *fetcher.FetchError
	if !errors.As(err, &ferr) {
		t.Fatalf("Fetch() error = %T, want *FetchError", err)
	}
	if ferr.Attempts != 3 || ferr.URL != server.URL {
		t.Errorf("FetchError = %+v", ferr)
	}

	var httpErr *fetcher.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("last error should be *HTTPError, got %v", ferr.Err)
	}
	if httpErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", httpErr.StatusCode)
	}

	if n := hits.Load(); n != 3 {
		t.Errorf("server hit %d times, want 3", n)
	}
}

func TestFetchRecoversOnRetry(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(guide))
	}))
	defer server.Close()

	var attempts []int
	f := newFetcher(3).WithHooks(fetcher.Hooks{
		Attempt: func(_ string, attempt int, _ error) { attempts = append(attempts, attempt) },
	})

	if _, err := f.Fetch(context.Background(), server.URL); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(attempts) != 2 {
		t.Errorf("attempts = %v, want [1 2]", attempts)
	}
}

func TestFetchParseFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<rss version="2.0"><channel></channel></rss>`))
	}))
	defer server.Close()

	_, err := newFetcher(2).Fetch(context.Background(), server.URL)
	if !errors.Is(err, xmltv.ErrNotXMLTV) {
		t.Fatalf("Fetch() error = %v, want ErrNotXMLTV", err)
	}
}

func TestFetchCorruptGzip(t *testing.T) {
	body := gzipped(t, guide)
	body = body[:len(body)/2]
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer server.Close()

	if _, err := newFetcher(1).Fetch(context.Background(), server.URL); err == nil {
		t.Fatal("Fetch() should fail on truncated gzip body")
	}
}

func TestFetchContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := fetcher.New(fetcher.Options{Attempts: 3, Backoff: time.Hour, Timeout: time.Second}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	hooked := f.WithHooks(fetcher.Hooks{Attempt: func(string, int, error) { cancel() }})

	start := time.Now()
	_, err := hooked.Fetch(ctx, server.URL)
	if err == nil {
		t.Fatal("expected error")
	}
	if time.Since(start) > 10*time.Second {
		t.Fatal("backoff sleep did not observe cancellation")
	}

	var ferr *fetcher.FetchError
	if !errors.As(err, &ferr) || ferr.Attempts != 1 {
		t.Errorf("error = %v, want FetchError after 1 attempt", err)
	}
}

func TestFetchAllKeepsSourceOrder(t *testing.T) {
	// The first source answers last; results must still arrive first.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/slow":
			time.Sleep(100 * time.Millisecond)
			fmt.Fprint(w, `<tv><channel id="slow"/></tv>`)
		case "/fast":
			fmt.Fprint(w, `<tv><channel id="fast"/></tv>`)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	urls := []string{server.URL + "/slow", server.URL + "/broken", server.URL + "/fast"}

	var got []string
	for res := range newFetcher(1).FetchAll(context.Background(), urls) {
		if res.URL != urls[res.Index] {
			t.Errorf("result %d has url %s", res.Index, res.URL)
		}
		if res.Err != nil {
			got = append(got, "error")
			continue
		}
		got = append(got, res.Document.Channels[0].ID())
	}

	want := []string{"slow", "error", "fast"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestFetchAllStopsWhenCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, guide)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := newFetcher(1).FetchAll(ctx, []string{server.URL + "/a", server.URL + "/b"})

	// Nobody receives while the forwarder gives up on the cancelled context.
	time.Sleep(100 * time.Millisecond)

	select {
	case res, ok := <-out:
		if ok {
			t.Errorf("got result for %s after cancellation, want closed channel", res.URL)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("FetchAll did not close its channel after cancellation")
	}
}
