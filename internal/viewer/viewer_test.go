package viewer

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/geojson"

	"vectormap/internal/collection"
	"vectormap/internal/config"
	"vectormap/internal/render"
	"vectormap/internal/tilesource"
	"vectormap/pkg/tiles"
)

var world = orb.Bound{Min: orb.Point{-180, -85}, Max: orb.Point{180, 85}}

// recordingDevice keeps live resources and every batch drawn.
type recordingDevice struct {
	mu       sync.Mutex
	buffers  map[*render.Buffer]struct{}
	textures map[*render.Texture]struct{}
	batches  []render.Batch
}

func newRecordingDevice() *recordingDevice {
	return &recordingDevice{
		buffers:  make(map[*render.Buffer]struct{}),
		textures: make(map[*render.Texture]struct{}),
	}
}

func (d *recordingDevice) CreateBuffer(kind render.BufferKind, size int) (*render.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b := render.NewBuffer(kind, size, nil)
	d.buffers[b] = struct{}{}
	return b, nil
}

func (d *recordingDevice) WriteBuffer(*render.Buffer, int, []byte) error { return nil }

func (d *recordingDevice) DeleteBuffer(b *render.Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.buffers, b)
}

func (d *recordingDevice) CreateTexture(width, height int) (*render.Texture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := render.NewTexture(width, height, nil)
	d.textures[t] = struct{}{}
	return t, nil
}

func (d *recordingDevice) WriteTexture(*render.Texture, *image.RGBA) error { return nil }

func (d *recordingDevice) DeleteTexture(t *render.Texture) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.textures, t)
}

func (d *recordingDevice) Draw(b render.Batch) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.batches = append(d.batches, b)
	return nil
}

func (d *recordingDevice) live() (buffers, textures int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buffers), len(d.textures)
}

func pngTile(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	img.Set(1, 1, color.NRGBA{R: 10, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func waterTile(t *testing.T) []byte {
	t.Helper()
	f := geojson.NewFeature(orb.Polygon{{{100, 100}, {3000, 100}, {3000, 3000}, {100, 3000}, {100, 100}}})
	data, err := mvt.Marshal(mvt.Layers{{Name: "water", Version: 2, Extent: 4096, Features: []*geojson.Feature{f}}})
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func collectionFile(t *testing.T) string {
	t.Helper()
	data, err := wkb.Marshal(orb.Polygon{{{0, 0}, {5, 0}, {5, 5}, {0, 5}, {0, 0}}})
	if err != nil {
		t.Fatal(err)
	}
	file, err := collection.Marshal([]collection.Record{{
		ID:         collection.ID{Lsb: 1},
		Properties: geojson.Properties{"owner": "NPS"},
		Polygon:    data,
	}})
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "lands.bin")
	if err := os.WriteFile(path, file, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func tileServer(t *testing.T) *httptest.Server {
	raster, vector := pngTile(t), waterTile(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/raster/"):
			w.Write(raster)
		case strings.HasPrefix(r.URL.Path, "/vector/"):
			w.Write(vector)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T) *config.Config {
	srv := tileServer(t)
	cfg := config.DefaultConfig()
	cfg.Fetch.CullDelay = 5 * time.Millisecond
	cfg.Render = config.Render{MaxGeometryBytes: 1 << 20, MaxIndexBytes: 1 << 18}
	cfg.Decode.Workers = 2
	cfg.Tilesets = []config.Tileset{
		{Name: "base", Type: config.Raster, URL: srv.URL + "/raster/{z}/{x}/{y}.png"},
		{Name: "streets", Type: config.Vector, URL: srv.URL + "/vector/{z}/{x}/{y}.pbf"},
	}
	cfg.Collections = []config.Collection{{Path: collectionFile(t)}}
	return cfg
}

func TestViewerLoadsAndDraws(t *testing.T) {
	ctx := context.Background()
	device := newRecordingDevice()
	v, err := New(ctx, testConfig(t), device)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if n := len(v.Layers()); n != 3 {
		t.Fatalf("layers = %d, want 3", n)
	}

	vp := tiles.Viewport{Bound: world, Zoom: 0}
	if err := v.SetViewport(ctx, vp); err != nil {
		t.Fatal(err)
	}
	if err := v.SetViewport(ctx, vp); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		v.Update(ctx)
		// frame and vector tile buffers, one raster texture
		if buffers, textures := device.live(); !v.Loading() && buffers >= 4 && textures >= 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out loading")
		}
		time.Sleep(2 * time.Millisecond)
	}

	view := render.View{Zoom: 0, Width: 256, Height: 256}
	if err := v.Frame(world, view); err != nil {
		t.Fatalf("Frame: %v", err)
	}
	drawn := make(map[*render.Program]int)
	for _, b := range device.batches {
		drawn[b.Program] += len(b.Drawables)
	}
	if drawn[render.Raster] != 1 {
		t.Errorf("raster drawables = %d, want 1", drawn[render.Raster])
	}
	if drawn[render.Triangle] == 0 {
		t.Error("no polygons drawn")
	}
	if len(v.planner.Baker().Drawables()) != 0 {
		t.Error("baker not cleared after frame")
	}

	v.Close()
	if buffers, textures := device.live(); buffers != 0 || textures != 0 {
		t.Errorf("after Close: %d buffers %d textures live", buffers, textures)
	}
}

func TestNewFailsOnBadTileset(t *testing.T) {
	cfg := testConfig(t)
	cfg.Tilesets = append(cfg.Tilesets, config.Tileset{Name: "broken", Type: config.Vector, URL: "http://x/{z}/{x}/{y}", Style: filepath.Join(t.TempDir(), "missing.yaml")})
	device := newRecordingDevice()
	if _, err := New(context.Background(), cfg, device); err == nil {
		t.Fatal("New accepted a missing style sheet")
	}
	if buffers, textures := device.live(); buffers != 0 || textures != 0 {
		t.Errorf("leaked %d buffers %d textures", buffers, textures)
	}
}

func TestOpenSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiles.mbtiles")
	m, err := tilesource.CreateMBTiles(path)
	if err != nil {
		t.Fatal(err)
	}
	id := tiles.TileID{X: 1, Y: 2, Zoom: 3}
	if err := m.Put(id, []byte("tile")); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}

	src, closer, err := OpenSource(config.Tileset{Name: "local", MBTiles: path}, config.Fetch{})
	if err != nil {
		t.Fatalf("OpenSource: %v", err)
	}
	if closer == nil {
		t.Fatal("mbtiles source without closer")
	}
	defer closer.Close()
	data, err := src.Fetch(context.Background(), id)
	if err != nil || string(data) != "tile" {
		t.Errorf("Fetch = %q, %v", data, err)
	}

	src, closer, err = OpenSource(config.Tileset{Name: "remote", URL: "http://example.com/{z}/{x}/{y}.pbf"}, config.Fetch{})
	if err != nil {
		t.Fatal(err)
	}
	if closer != nil {
		t.Error("http source has a closer")
	}
	if _, ok := src.(*tilesource.HTTP); !ok {
		t.Errorf("source = %T", src)
	}
}
