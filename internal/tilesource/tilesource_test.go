package tilesource

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"vectormap/pkg/tiles"
)

func tileServer(t *testing.T, hits *atomic.Int32, gate <-chan struct{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if gate != nil {
			<-gate
		}
		switch r.URL.Path {
		case "/1/0/0.pbf":
			if r.Header.Get("User-Agent") != "test-agent" {
				http.Error(w, "agent", http.StatusForbidden)
				return
			}
			w.Write([]byte("tile"))
		case "/1/1/1.pbf":
			http.Error(w, "boom", http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPFetch(t *testing.T) {
	var hits atomic.Int32
	srv := tileServer(t, &hits, nil)
	dir := t.TempDir()
	src, err := NewHTTP(HTTPOptions{URL: srv.URL + "/{z}/{x}/{y}.pbf", UserAgent: "test-agent", CacheDir: dir, Extension: "pbf"})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	data, err := src.Fetch(ctx, tiles.TileID{X: 0, Y: 0, Zoom: 1})
	if err != nil || string(data) != "tile" {
		t.Fatalf("fetch = %q, %v", data, err)
	}
	if !src.IsCached(tiles.TileID{X: 0, Y: 0, Zoom: 1}) {
		t.Error("tile not cached")
	}
	if _, err := src.Fetch(ctx, tiles.TileID{X: 0, Y: 0, Zoom: 1}); err != nil || hits.Load() != 1 {
		t.Errorf("cached fetch hit the server: %d hits, %v", hits.Load(), err)
	}

	_, err = src.Fetch(ctx, tiles.TileID{X: 1, Y: 0, Zoom: 1})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("missing tile err = %v", err)
	}

	_, err = src.Fetch(ctx, tiles.TileID{X: 1, Y: 1, Zoom: 1})
	var status *StatusError
	if !errors.As(err, &status) || status.Code != http.StatusInternalServerError {
		t.Errorf("server error = %v", err)
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("server error reported as not found")
	}
}

func TestHTTPSharesInFlightRequests(t *testing.T) {
	var hits atomic.Int32
	gate := make(chan struct{})
	srv := tileServer(t, &hits, gate)
	src, err := NewHTTP(HTTPOptions{URL: srv.URL + "/{z}/{x}/{y}.pbf", UserAgent: "test-agent"})
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	results := make([]string, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data, _ := src.Fetch(context.Background(), tiles.TileID{X: 0, Y: 0, Zoom: 1})
			results[i] = string(data)
		}(i)
	}
	for hits.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	close(gate)
	wg.Wait()
	for i, r := range results {
		if r != "tile" {
			t.Errorf("fetch %d = %q", i, r)
		}
	}
	if hits.Load() > 4 {
		t.Errorf("hits = %d", hits.Load())
	}
}

func TestHTTPCancel(t *testing.T) {
	var hits atomic.Int32
	gate := make(chan struct{})
	defer close(gate)
	srv := tileServer(t, &hits, gate)
	src, _ := NewHTTP(HTTPOptions{URL: srv.URL + "/{z}/{x}/{y}.pbf"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.Fetch(ctx, tiles.TileID{X: 0, Y: 0, Zoom: 1}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
}

func TestMBTiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.mbtiles")
	w, err := CreateMBTiles(path)
	if err != nil {
		t.Fatal(err)
	}
	id := tiles.TileID{X: 3, Y: 1, Zoom: 2}
	if err := w.Put(id, []byte("payload")); err != nil {
		t.Fatal(err)
	}
	if err := w.Put(id, []byte("replaced")); err != nil {
		t.Fatal(err)
	}
	if err := w.SetMetadata("format", "pbf"); err != nil {
		t.Fatal(err)
	}
	if n, err := w.Count(); err != nil || n != 1 {
		t.Errorf("count = %d, %v", n, err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := OpenMBTiles(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	data, err := r.Fetch(context.Background(), id)
	if err != nil || string(data) != "replaced" {
		t.Errorf("fetch = %q, %v", data, err)
	}
	if _, err := r.Fetch(context.Background(), tiles.TileID{X: 3, Y: 2, Zoom: 2}); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing err = %v", err)
	}
	md, err := r.Metadata()
	if err != nil || md["format"] != "pbf" {
		t.Errorf("metadata = %v, %v", md, err)
	}

	// rows are TMS-flipped on disk
	var row int
	if err := r.db.QueryRow("select tile_row from tiles").Scan(&row); err != nil || row != 2 {
		t.Errorf("stored row = %d, %v", row, err)
	}
}
