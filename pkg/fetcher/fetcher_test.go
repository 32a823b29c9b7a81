package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dtnitsch/region-maps/pkg/caching"
)

func newServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/europe.html", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><body><table id="subregions"><tr><td class="subregion">Zürich</td></tr></table></body></html>`))
	})
	mux.HandleFunc("/alpha-latest.osm.pbf", func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != "region-maps-test" {
			http.Error(w, "bad agent "+ua, http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte("PBFDATA"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestGetHtml(t *testing.T) {
	srv, _ := newServer(t)
	f := NewFetcher()

	doc, err := f.GetHtml(context.Background(), srv.URL+"/europe.html")
	if err != nil {
		t.Fatalf("GetHtml() failed: %v", err)
	}
	if got := doc.Find("td.subregion").Text(); got != "Zürich" {
		t.Errorf("cell text = %q, want %q", got, "Zürich")
	}
}

func TestGetHtml_NotFound(t *testing.T) {
	srv, _ := newServer(t)
	_, err := NewFetcher().GetHtml(context.Background(), srv.URL+"/missing.html")

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("GetHtml() error = %v, want *StatusError", err)
	}
	if statusErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", statusErr.StatusCode)
	}
}

func TestGetHtml_ListingCache(t *testing.T) {
	srv, hits := newServer(t)
	cache, err := caching.NewListingCache(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatalf("NewListingCache() failed: %v", err)
	}
	f := NewFetcher(WithListingCache(cache))

	for i := 0; i < 3; i++ {
		if _, err := f.GetHtml(context.Background(), srv.URL+"/europe.html"); err != nil {
			t.Fatalf("GetHtml() #%d failed: %v", i, err)
		}
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("server hits = %d, want 1", got)
	}
}

func TestDownload(t *testing.T) {
	srv, _ := newServer(t)
	dest := filepath.Join(t.TempDir(), "Alpha.osm.pbf")
	f := NewFetcher(WithUserAgent("region-maps-test"), WithTimeout(time.Minute))

	n, err := f.Download(context.Background(), srv.URL+"/alpha-latest.osm.pbf", dest)
	if err != nil {
		t.Fatalf("Download() failed: %v", err)
	}
	if n != int64(len("PBFDATA")) {
		t.Errorf("Download() = %d bytes, want %d", n, len("PBFDATA"))
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read download: %v", err)
	}
	if string(data) != "PBFDATA" {
		t.Errorf("downloaded content = %q, want %q", data, "PBFDATA")
	}
	if _, err := os.Stat(dest + ".part"); !os.IsNotExist(err) {
		t.Error("temporary .part file left behind")
	}
}

func TestDownload_ErrorStatusWritesNothing(t *testing.T) {
	srv, _ := newServer(t)
	dest := filepath.Join(t.TempDir(), "Epsilon.osm.pbf")

	_, err := NewFetcher().Download(context.Background(), srv.URL+"/epsilon-latest.osm.pbf", dest)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusNotFound {
		t.Fatalf("Download() error = %v, want StatusError 404", err)
	}
	if statusErr.URL != srv.URL+"/epsilon-latest.osm.pbf" {
		t.Errorf("StatusError.URL = %q", statusErr.URL)
	}
	for _, p := range []string{dest, dest + ".part"} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s exists after failed download", p)
		}
	}
}

func TestDownload_Cancelled(t *testing.T) {
	srv, _ := newServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dest := filepath.Join(t.TempDir(), "Alpha.osm.pbf")
	if _, err := NewFetcher().Download(ctx, srv.URL+"/alpha-latest.osm.pbf", dest); !errors.Is(err, context.Canceled) {
		t.Errorf("Download() error = %v, want context.Canceled", err)
	}
}

func streamingServer(t *testing.T, chunks int, gap time.Duration, stallAfter int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, _ := w.(http.Flusher)
		for i := 0; i < chunks; i++ {
			if stallAfter > 0 && i == stallAfter {
				select {
				case <-r.Context().Done():
				case <-time.After(5 * time.Second):
				}
				return
			}
			_, _ = w.Write([]byte("chunk"))
			if flusher != nil {
				flusher.Flush()
			}
			select {
			case <-r.Context().Done():
				return
			case <-time.After(gap):
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDownload_SlowSteadyBodyOutlastsTimeout(t *testing.T) {
	// Ten chunks 50ms apart take longer than the timeout but never go idle for it.
	srv := streamingServer(t, 10, 50*time.Millisecond, 0)
	dest := filepath.Join(t.TempDir(), "Europe.osm.pbf")

	n, err := NewFetcher(WithTimeout(200*time.Millisecond)).Download(context.Background(), srv.URL+"/europe-latest.osm.pbf", dest)
	if err != nil {
		t.Fatalf("Download() failed: %v", err)
	}
	if n != int64(10*len("chunk")) {
		t.Errorf("Download() = %d bytes, want %d", n, 10*len("chunk"))
	}
	if _, err := os.Stat(dest); err != nil {
		t.Errorf("downloaded file missing: %v", err)
	}
}

func TestDownload_StalledBody(t *testing.T) {
	srv := streamingServer(t, 10, 10*time.Millisecond, 2)
	dest := filepath.Join(t.TempDir(), "Europe.osm.pbf")

	start := time.Now()
	_, err := NewFetcher(WithTimeout(200*time.Millisecond)).Download(context.Background(), srv.URL+"/europe-latest.osm.pbf", dest)
	if !errors.Is(err, ErrStalled) {
		t.Fatalf("Download() error = %v, want ErrStalled", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("stalled download took %v to abort", elapsed)
	}
	for _, p := range []string{dest, dest + ".part"} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s exists after stalled download", p)
		}
	}
}

func TestGetHtml_TimeoutBoundsListing(t *testing.T) {
	srv := streamingServer(t, 10, 50*time.Millisecond, 0)
	if _, err := NewFetcher(WithTimeout(100*time.Millisecond)).GetHtml(context.Background(), srv.URL+"/europe.html"); err == nil {
		t.Error("GetHtml() error = nil, want timeout for a listing slower than the limit")
	}
}
