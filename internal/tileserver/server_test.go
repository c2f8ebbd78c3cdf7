package tileserver

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"vectormap/internal/tilesource"
	"vectormap/pkg/tiles"
)

func TestParseTilePath(t *testing.T) {
	tests := []struct {
		path string
		want tiles.TileID
		ok   bool
	}{
		{"/tile/3/2/1", tiles.TileID{X: 2, Y: 1, Zoom: 3}, true},
		{"/tile/3/2/1.pbf", tiles.TileID{X: 2, Y: 1, Zoom: 3}, true},
		{"/tile/0/0/0.png", tiles.TileID{}, true},
		{"/tile/1/2/0", tiles.TileID{}, false},
		{"/tile/1/0", tiles.TileID{}, false},
		{"/tile/a/b/c", tiles.TileID{}, false},
	}
	for _, tt := range tests {
		got, err := parseTilePath(tt.path)
		if (err == nil) != tt.ok {
			t.Errorf("%s: err = %v", tt.path, err)
			continue
		}
		if tt.ok && got != tt.want {
			t.Errorf("%s = %s, want %s", tt.path, got, tt.want)
		}
	}
}

func gzipped(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Write([]byte(s))
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestServeMBTiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.mbtiles")
	m, err := tilesource.CreateMBTiles(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Put(tiles.TileID{X: 1, Y: 0, Zoom: 1}, gzipped(t, "vector")); err != nil {
		t.Fatal(err)
	}
	m.Close()

	src, err := tilesource.OpenMBTiles(path)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()
	srv := httptest.NewServer(NewServer(src, Options{}).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/tile/1/1/0.pbf")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	// the client undoes the gzip encoding
	if string(body) != "vector" {
		t.Errorf("body = %q", body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/x-protobuf" {
		t.Errorf("content type = %q", ct)
	}

	resp, err = http.Get(srv.URL + "/tile/1/0/0.pbf")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing tile status = %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	var health struct {
		Status string `json:"status"`
		Tiles  int    `json:"tiles"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if health.Status != "ok" || health.Tiles != 1 {
		t.Errorf("health = %+v", health)
	}
}

func TestServeErrors(t *testing.T) {
	src := tilesource.Func(func(_ context.Context, id tiles.TileID) ([]byte, error) {
		if id.Zoom == 2 {
			return nil, io.ErrUnexpectedEOF
		}
		return []byte("\x89PNG\r\n\x1a\n"), nil
	})
	srv := httptest.NewServer(NewServer(src, Options{}).Handler())
	defer srv.Close()

	tests := []struct {
		method, path string
		status       int
	}{
		{http.MethodGet, "/tile/0/0/0.png", http.StatusOK},
		{http.MethodGet, "/tile/2/0/0.png", http.StatusBadGateway},
		{http.MethodGet, "/tile/0/5/0.png", http.StatusBadRequest},
		{http.MethodPost, "/tile/0/0/0.png", http.StatusMethodNotAllowed},
		{http.MethodPost, "/prefetch", http.StatusNotImplemented},
	}
	for _, tt := range tests {
		req, _ := http.NewRequest(tt.method, srv.URL+tt.path, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.status {
			t.Errorf("%s %s = %d, want %d", tt.method, tt.path, resp.StatusCode, tt.status)
		}
		if tt.status == http.StatusOK && resp.Header.Get("Content-Type") != "image/png" {
			t.Errorf("content type = %q", resp.Header.Get("Content-Type"))
		}
	}
}

func TestPrefetch(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[tiles.TileID]bool)
	src := tilesource.Func(func(_ context.Context, id tiles.TileID) ([]byte, error) {
		mu.Lock()
		defer mu.Unlock()
		seen[id] = true
		return []byte("x"), nil
	})
	s := NewServer(src, Options{PrefetchWorkers: 2})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	defer s.Shutdown(context.Background())

	body := `{"bound": [-180, -85, 180, 85], "minZoom": 0, "maxZoom": 2}`
	resp, err := http.Post(srv.URL+"/prefetch", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	var out struct {
		Queued int `json:"queued"`
	}
	json.NewDecoder(resp.Body).Decode(&out)
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted || out.Queued != 21 {
		t.Fatalf("status = %d queued = %d", resp.StatusCode, out.Queued)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if fetched, _ := s.prefetch.Stats(); fetched == 21 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("prefetch did not finish")
		}
		time.Sleep(2 * time.Millisecond)
	}
	mu.Lock()
	defer mu.Unlock()
	if !seen[tiles.TileID{X: 3, Y: 3, Zoom: 2}] {
		t.Error("corner tile not fetched")
	}

	for _, bad := range []string{`{"bound": [10, 0, 0, 10], "maxZoom": 1}`, `{"maxZoom": 30, "bound": [-180, -85, 180, 85]}`, `nope`} {
		resp, err := http.Post(srv.URL+"/prefetch", "application/json", strings.NewReader(bad))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusAccepted {
			t.Errorf("accepted %s", bad)
		}
	}
}
