package walker

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/dtnitsch/region-maps/pkg/fetcher"
	"github.com/dtnitsch/region-maps/pkg/parser"
	"github.com/dtnitsch/region-maps/pkg/pipeline"
)

// catalog serves a small region tree:
//
//	Alpha   (extract, leaf)
//	Delta   (no extract)
//	  Zeta  (no extract, leaf)
//	Gamma   (extract, leaf)
//	Broken  (no extract, listing page missing)
type catalog struct {
	srv *httptest.Server

	mu   sync.Mutex
	hits map[string]int
}

var catalogPages = map[string]string{
	"/index.html": `<table id="subregions">
		<tr><td class="subregion"><a href="alpha.html">Alpha</a></td><td><a href="alpha-latest.osm.pbf">pbf</a></td></tr>
		<tr><td class="subregion"><a href="delta.html">Delta</a></td><td></td></tr>
		<tr><td class="subregion"><a href="gamma.html">Gamma</a></td><td><a href="gamma-latest.osm.pbf">pbf</a></td></tr>
		<tr><td class="subregion"><a href="broken.html">Broken</a></td></tr>
	</table>`,
	"/alpha.html": `<p>leaf</p>`,
	"/delta.html": `<table id="subregions">
		<tr><td class="subregion"><a href="delta/zeta.html">(Zeta)</a></td></tr>
	</table>`,
	"/delta/zeta.html": `<p>leaf</p>`,
	"/gamma.html":      `<p>leaf</p>`,
}

func newCatalog(t *testing.T) *catalog {
	t.Helper()
	c := &catalog{hits: make(map[string]int)}
	c.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		c.hits[r.URL.Path]++
		c.mu.Unlock()
		page, ok := catalogPages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(page))
	}))
	t.Cleanup(c.srv.Close)
	return c
}

func (c *catalog) hitCount(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits[path]
}

type fakeDownloader struct {
	urls []string
}

func (d *fakeDownloader) Download(ctx context.Context, url, dest string) (int64, error) {
	d.urls = append(d.urls, url)
	return 3, os.WriteFile(dest, []byte("raw"), 0644)
}

type writingTool struct {
	calls int
}

func (w *writingTool) write(output string) error {
	w.calls++
	return os.WriteFile(output, []byte("out"), 0644)
}

func (w *writingTool) Filter(ctx context.Context, input, output string) error {
	return w.write(output)
}

func (w *writingTool) Convert(ctx context.Context, input, output string) error {
	return w.write(output)
}

type visitLog struct {
	visits []Visit
}

func (l *visitLog) RecordVisit(ctx context.Context, v Visit) error {
	l.visits = append(l.visits, v)
	return nil
}

type fixture struct {
	catalog    *catalog
	out        string
	downloader *fakeDownloader
	filter     *writingTool
	converter  *writingTool
	visits     *visitLog
	progress   *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{
		catalog:    newCatalog(t),
		out:        t.TempDir(),
		downloader: &fakeDownloader{},
		filter:     &writingTool{},
		converter:  &writingTool{},
	}
}

func (f *fixture) walker(maxDepth int) *Walker {
	f.visits = &visitLog{}
	f.progress = &bytes.Buffer{}
	return &Walker{
		Source: fetcher.NewFetcher(),
		Parser: &parser.Parser{},
		Runner: &pipeline.Runner{
			Downloader: f.downloader,
			Filter:     f.filter,
			Converter:  f.converter,
		},
		Recorder: f.visits,
		Out:      f.progress,
		MaxDepth: maxDepth,
	}
}

func (f *fixture) run(t *testing.T, maxDepth int) *Summary {
	t.Helper()
	summary, err := f.walker(maxDepth).Run(context.Background(), f.catalog.srv.URL+"/index.html", f.out)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	return summary
}

func (f *fixture) path(parts ...string) string {
	return filepath.Join(append([]string{f.out}, parts...)...)
}

func assertExists(t *testing.T, path string, want bool) {
	t.Helper()
	_, err := os.Stat(path)
	if got := err == nil; got != want {
		t.Errorf("exists(%s) = %v, want %v", path, got, want)
	}
}

func TestWalk_FullTree(t *testing.T) {
	f := newFixture(t)

	// Gamma was produced by the old layout.
	if err := os.MkdirAll(f.path("Gamma"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(f.path("Gamma", "map-filtered.osm.pbf"), []byte("legacy"), 0644); err != nil {
		t.Fatal(err)
	}

	summary := f.run(t, 0)

	assertExists(t, f.path("Alpha.map"), true)
	assertExists(t, f.path("Alpha.osm.pbf"), false)
	assertExists(t, f.path("Alpha.filtered.osm.pbf"), false)
	assertExists(t, f.path("Gamma.map"), true)
	assertExists(t, f.path("Gamma", "map-filtered.osm.pbf"), false)

	// Directories without any map below them are pruned.
	for _, dir := range []string{"Alpha", "Delta", "Gamma", "Broken"} {
		assertExists(t, f.path(dir), false)
	}

	if len(f.downloader.urls) != 1 || !strings.HasSuffix(f.downloader.urls[0], "/alpha-latest.osm.pbf") {
		t.Errorf("downloads = %v, want only alpha", f.downloader.urls)
	}
	if f.filter.calls != 2 || f.converter.calls != 2 {
		t.Errorf("filter calls = %d, convert calls = %d, want 2 and 2", f.filter.calls, f.converter.calls)
	}

	if summary.Regions != 5 {
		t.Errorf("Regions = %d, want 5", summary.Regions)
	}
	if summary.Migrations != 1 {
		t.Errorf("Migrations = %d, want 1", summary.Migrations)
	}
	if summary.Downloads != 1 || summary.Filters != 2 || summary.Conversions != 2 {
		t.Errorf("Downloads/Filters/Conversions = %d/%d/%d, want 1/2/2", summary.Downloads, summary.Filters, summary.Conversions)
	}
	if summary.Pruned != 5 {
		t.Errorf("Pruned = %d, want 5", summary.Pruned)
	}

	if len(summary.Errors) != 1 {
		t.Fatalf("Errors = %v, want one listing failure", summary.Errors)
	}
	if summary.Errors[0].Region != f.path("Broken") {
		t.Errorf("error region = %q, want %q", summary.Errors[0].Region, f.path("Broken"))
	}
	var statusErr *fetcher.StatusError
	if !errors.Is(summary.Errors[0].Err, pipeline.ErrNetwork) || !errors.As(summary.Errors[0].Err, &statusErr) {
		t.Errorf("error = %v, want ErrNetwork wrapping a StatusError", summary.Errors[0].Err)
	}
}

func TestWalk_VisitOrder(t *testing.T) {
	f := newFixture(t)
	f.run(t, 0)

	var names []string
	for _, line := range strings.Split(strings.TrimSpace(f.progress.String()), "\n") {
		names = append(names, strings.Fields(line)[0])
	}
	want := []string{"Alpha", "Delta", "Zeta", "Gamma", "Broken"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("visit order = %v, want %v", names, want)
	}
	if !strings.Contains(f.progress.String(), " Zeta "+f.catalog.srv.URL+"/delta/zeta.html") {
		t.Errorf("progress missing indented child line:\n%s", f.progress.String())
	}

	// Recorded visits complete children before their parent.
	var recorded []string
	for _, v := range f.visits.visits {
		recorded = append(recorded, v.Region.Name)
	}
	if got := strings.Join(recorded, ","); got != "Alpha,Zeta,Delta,Gamma,Broken" {
		t.Errorf("recorded visits = %s", got)
	}
	for _, v := range f.visits.visits {
		if v.Region.Name == "Zeta" && v.Region.Depth != 1 {
			t.Errorf("Zeta depth = %d, want 1", v.Region.Depth)
		}
	}
}

func TestWalk_RerunDoesNoWork(t *testing.T) {
	f := newFixture(t)
	f.run(t, 0)
	downloads, filters, converts := len(f.downloader.urls), f.filter.calls, f.converter.calls

	summary := f.run(t, 0)

	if len(f.downloader.urls) != downloads || f.filter.calls != filters || f.converter.calls != converts {
		t.Errorf("second run did work: downloads %d->%d, filters %d->%d, converts %d->%d",
			downloads, len(f.downloader.urls), filters, f.filter.calls, converts, f.converter.calls)
	}
	if summary.Downloads+summary.Filters+summary.Conversions+summary.Migrations != 0 {
		t.Errorf("second run summary = %+v, want no work", summary)
	}
	assertExists(t, f.path("Alpha.map"), true)
	assertExists(t, f.path("Gamma.map"), true)
}

func TestWalk_MaxDepth(t *testing.T) {
	f := newFixture(t)
	summary := f.run(t, 1)

	if summary.Regions != 4 {
		t.Errorf("Regions = %d, want 4", summary.Regions)
	}
	if n := f.catalog.hitCount("/delta.html"); n != 0 {
		t.Errorf("delta listing fetched %d times, want 0", n)
	}
	if len(summary.Errors) != 0 {
		t.Errorf("Errors = %v, want none when broken listing is never fetched", summary.Errors)
	}
	assertExists(t, f.path("Alpha.map"), true)
}

func TestWalk_KeepsDirectoryWithNestedMap(t *testing.T) {
	f := newFixture(t)
	if err := os.MkdirAll(f.path("Delta"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(f.path("Delta", "Zeta.map"), []byte("map"), 0644); err != nil {
		t.Fatal(err)
	}

	f.run(t, 0)

	assertExists(t, f.path("Delta"), true)
	assertExists(t, f.path("Delta", "Zeta.map"), true)
	assertExists(t, f.path("Delta", "Zeta"), false)
}

func TestRun_RootListingFailure(t *testing.T) {
	f := newFixture(t)
	_, err := f.walker(0).Run(context.Background(), f.catalog.srv.URL+"/missing.html", f.out)
	if !errors.Is(err, pipeline.ErrNetwork) {
		t.Errorf("Run() error = %v, want ErrNetwork", err)
	}
}

func TestRun_Cancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.walker(0).Run(ctx, f.catalog.srv.URL+"/index.html", f.out); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	assertExists(t, f.path("Alpha.map"), false)
}
