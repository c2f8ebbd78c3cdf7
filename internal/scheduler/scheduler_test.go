package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"vectormap/internal/tilesource"
	"vectormap/internal/worker"
	"vectormap/pkg/tiles"
)

var (
	// tile 1/0/0 at zoom 1, tile 2/0/0 at zoom 2
	northWest = orb.Bound{Min: orb.Point{-170, 70}, Max: orb.Point{-100, 80}}
	// tile 1/1/1 at zoom 1
	southEast = orb.Bound{Min: orb.Point{100, -80}, Max: orb.Point{170, -70}}

	nw1 = tiles.TileID{X: 0, Y: 0, Zoom: 1}
	nw2 = tiles.TileID{X: 0, Y: 0, Zoom: 2}
	se1 = tiles.TileID{X: 1, Y: 1, Zoom: 1}
)

type fakeSource struct {
	mu    sync.Mutex
	calls map[tiles.TileID]int
	fn    func(ctx context.Context, id tiles.TileID, call int) ([]byte, error)
}

func (f *fakeSource) Fetch(ctx context.Context, id tiles.TileID) ([]byte, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[tiles.TileID]int)
	}
	f.calls[id]++
	n := f.calls[id]
	f.mu.Unlock()
	return f.fn(ctx, id, n)
}

func (f *fakeSource) count(id tiles.TileID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func okSource() *fakeSource {
	return &fakeSource{fn: func(_ context.Context, id tiles.TileID, _ int) ([]byte, error) {
		return []byte(id.String()), nil
	}}
}

type harness struct {
	t    *testing.T
	s    *Scheduler
	cmds chan worker.Command
}

func newHarness(t *testing.T, src tilesource.Source) *harness {
	t.Helper()
	s := New(Options{Source: src, CullDelay: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{t: t, s: s, cmds: make(chan worker.Command, 1024)}
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()
	go func() {
		for {
			select {
			case c := <-s.Commands():
				h.cmds <- c
			case <-done:
				return
			}
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	h.send(worker.Initialize{Tileset: worker.Tileset{Name: "test", Zoom: tiles.ZoomRange{MinZoom: 0, MaxZoom: 2}}})
	return h
}

func (h *harness) send(r worker.Request) {
	h.t.Helper()
	if err := h.s.Send(context.Background(), r); err != nil {
		h.t.Fatal(err)
	}
}

func (h *harness) viewport(b orb.Bound, zoom float64) {
	h.t.Helper()
	h.send(worker.UpdateViewport{Viewport: tiles.Viewport{Bound: b, Zoom: zoom}})
}

// waitFor reads commands until one satisfies pred.
func (h *harness) waitFor(what string, pred func(worker.Command) bool) worker.Command {
	h.t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case c := <-h.cmds:
			if pred(c) {
				return c
			}
		case <-timeout:
			h.t.Fatalf("timed out waiting for %s", what)
			return nil
		}
	}
}

func (h *harness) loadTile(id tiles.TileID) worker.LoadTile {
	h.t.Helper()
	c := h.waitFor("load-tile "+id.String(), func(c worker.Command) bool {
		lt, ok := c.(worker.LoadTile)
		return ok && lt.ID == id
	})
	return c.(worker.LoadTile)
}

func (h *harness) idle() {
	h.t.Helper()
	h.waitFor("idle fetch state", func(c worker.Command) bool {
		fs, ok := c.(worker.UpdateFetchState)
		return ok && !fs.Fetching
	})
}

// drain collects every command that arrives within d.
func (h *harness) drain(d time.Duration) []worker.Command {
	var out []worker.Command
	timeout := time.After(d)
	for {
		select {
		case c := <-h.cmds:
			out = append(out, c)
		case <-timeout:
			return out
		}
	}
}

func TestIdempotentViewport(t *testing.T) {
	src := okSource()
	h := newHarness(t, src)

	h.viewport(northWest, 1)
	lt := h.loadTile(nw1)
	if string(lt.Data) != "1/0/0" {
		t.Errorf("payload = %q", lt.Data)
	}
	h.idle()

	h.viewport(northWest, 1)
	h.idle()
	if n := src.count(nw1); n != 1 {
		t.Errorf("fetches = %d, want 1", n)
	}
}

func TestNotFoundIsPermanent(t *testing.T) {
	src := &fakeSource{fn: func(context.Context, tiles.TileID, int) ([]byte, error) {
		return nil, tilesource.ErrNotFound
	}}
	h := newHarness(t, src)

	for i := 0; i < 3; i++ {
		h.viewport(northWest, 1)
		h.idle()
	}
	for _, c := range h.drain(20 * time.Millisecond) {
		if _, ok := c.(worker.LoadTile); ok {
			t.Errorf("missing tile was loaded: %+v", c)
		}
	}
	if n := src.count(nw1); n != 1 {
		t.Errorf("fetches = %d, want 1", n)
	}
}

func TestTransportErrorRetried(t *testing.T) {
	src := &fakeSource{fn: func(_ context.Context, _ tiles.TileID, call int) ([]byte, error) {
		if call == 1 {
			return nil, errors.New("connection reset")
		}
		return []byte("ok"), nil
	}}
	h := newHarness(t, src)

	h.viewport(northWest, 1)
	h.idle()
	h.viewport(northWest, 1)
	h.loadTile(nw1)
	if n := src.count(nw1); n != 2 {
		t.Errorf("fetches = %d, want 2", n)
	}
}

func TestAbortedFetchNeverIntegrates(t *testing.T) {
	started := make(chan struct{})
	src := &fakeSource{fn: func(ctx context.Context, id tiles.TileID, call int) ([]byte, error) {
		if id == nw1 && call == 1 {
			close(started)
			// a source that ignores cancellation and still answers
			<-ctx.Done()
			return []byte("stale"), nil
		}
		return []byte("fresh"), nil
	}}
	h := newHarness(t, src)

	h.viewport(northWest, 1)
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("first fetch never started")
	}
	h.viewport(southEast, 1)
	h.viewport(northWest, 1)

	loads := 0
	for _, c := range h.drain(100 * time.Millisecond) {
		if lt, ok := c.(worker.LoadTile); ok && lt.ID == nw1 {
			loads++
			if string(lt.Data) != "fresh" {
				t.Errorf("integrated %q", lt.Data)
			}
		}
	}
	if loads != 1 {
		t.Errorf("load-tile commands for %s = %d, want 1", nw1, loads)
	}
	if n := src.count(nw1); n != 2 {
		t.Errorf("fetches = %d, want 2", n)
	}
}

func TestCullKeepsTilesCoveringInFlightArea(t *testing.T) {
	release := make(chan struct{})
	src := &fakeSource{fn: func(ctx context.Context, id tiles.TileID, _ int) ([]byte, error) {
		if id == nw2 {
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return []byte(id.String()), nil
	}}
	h := newHarness(t, src)

	h.viewport(northWest, 1)
	h.loadTile(nw1)
	h.send(worker.TileLoaded{ID: nw1})

	// zoom in: the parent stays while its child is in flight
	h.viewport(northWest, 2)
	for _, c := range h.drain(50 * time.Millisecond) {
		if _, ok := c.(worker.UnloadTiles); ok {
			t.Fatalf("unloaded while child in flight: %+v", c)
		}
	}

	// the child arrives but is not decoded yet: still kept
	close(release)
	h.loadTile(nw2)
	for _, c := range h.drain(50 * time.Millisecond) {
		if _, ok := c.(worker.UnloadTiles); ok {
			t.Fatalf("unloaded while child pending: %+v", c)
		}
	}

	h.send(worker.TileLoaded{ID: nw2})
	h.viewport(northWest, 2)
	c := h.waitFor("unload", func(c worker.Command) bool {
		_, ok := c.(worker.UnloadTiles)
		return ok
	})
	ids := c.(worker.UnloadTiles).IDs
	if len(ids) != 1 || ids[0] != nw1 {
		t.Errorf("unloaded %v, want [%s]", ids, nw1)
	}
}

func TestCullUnloadsDisjointTiles(t *testing.T) {
	src := okSource()
	h := newHarness(t, src)

	h.viewport(northWest, 1)
	h.loadTile(nw1)
	h.send(worker.TileLoaded{ID: nw1})
	h.viewport(southEast, 1)

	var loaded bool
	var unloaded []tiles.TileID
	h.waitFor("load and unload", func(c worker.Command) bool {
		switch c := c.(type) {
		case worker.LoadTile:
			loaded = loaded || c.ID == se1
		case worker.UnloadTiles:
			unloaded = c.IDs
		}
		return loaded && unloaded != nil
	})
	if len(unloaded) != 1 || unloaded[0] != nw1 {
		t.Errorf("unloaded %v", unloaded)
	}
}

func TestLoadRequest(t *testing.T) {
	h := newHarness(t, okSource())
	h.send(worker.Load{ID: se1, Data: []byte("injected")})
	if lt := h.loadTile(se1); string(lt.Data) != "injected" {
		t.Errorf("payload = %q", lt.Data)
	}
}

func TestViewportBeforeInitialize(t *testing.T) {
	s := New(Options{Source: okSource()})
	s.Send(context.Background(), worker.UpdateViewport{})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Run(ctx); err == nil || errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run = %v, want a protocol error", err)
	}
}
