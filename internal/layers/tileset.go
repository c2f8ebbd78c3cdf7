package layers

import (
	"context"
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"

	"vectormap/internal/scheduler"
	"vectormap/internal/worker"
	"vectormap/pkg/tiles"
)

// tileHooks specialise a tileset for its payload type.
type tileHooks[T any] struct {
	// decode runs on a pool worker.
	decode func(ctx context.Context, id tiles.TileID, data []byte) (T, error)
	// integrate and unload run on the render goroutine.
	integrate func(id tiles.TileID, v T) error
	unload    func(id tiles.TileID)
}

// tileset drives one scheduler and decodes what it loads on a shared pool.
type tileset[T any] struct {
	name  string
	sched *scheduler.Scheduler
	pool  *worker.Pool[T]
	hooks tileHooks[T]

	loading  map[tiles.TileID]*worker.Task[T]
	fetching bool
	changed  bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *log.Entry
}

func newTileset[T any](name string, sched *scheduler.Scheduler, pool *worker.Pool[T], hooks tileHooks[T]) *tileset[T] {
	return &tileset[T]{
		name:    name,
		sched:   sched,
		pool:    pool,
		hooks:   hooks,
		loading: make(map[tiles.TileID]*worker.Task[T]),
		log:     log.WithField("layer", name),
	}
}

// start runs the scheduler until close and initializes it.
func (t *tileset[T]) start(ctx context.Context, zoom tiles.ZoomRange) error {
	ctx, t.cancel = context.WithCancel(ctx)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		if err := t.sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.log.Errorf("scheduler stopped: %v", err)
		}
	}()
	return t.sched.Send(ctx, worker.Initialize{Tileset: worker.Tileset{Name: t.name, Zoom: zoom}})
}

func (t *tileset[T]) viewportChanged(ctx context.Context, vp tiles.Viewport) error {
	return t.sched.Send(ctx, worker.UpdateViewport{Viewport: vp})
}

// update applies every ready scheduler command and every finished decode.
func (t *tileset[T]) update(ctx context.Context) bool {
drain:
	for {
		select {
		case c := <-t.sched.Commands():
			t.apply(ctx, c)
		default:
			break drain
		}
	}

	for id, task := range t.loading {
		select {
		case <-task.Done():
		default:
			continue
		}
		delete(t.loading, id)
		v, err := task.Result(ctx)
		switch {
		case errors.Is(err, context.Canceled):
			continue
		case err != nil:
			t.log.WithField("tile", id).Errorf("dropping tile: %v", err)
		default:
			if err := t.hooks.integrate(id, v); err != nil {
				t.log.WithField("tile", id).Errorf("failed to integrate tile: %v", err)
			}
		}
		t.changed = true
		if err := t.sched.Send(ctx, worker.TileLoaded{ID: id}); err != nil {
			t.log.Debugf("tile loaded not sent: %v", err)
		}
	}

	changed := t.changed
	t.changed = false
	return changed
}

func (t *tileset[T]) apply(ctx context.Context, c worker.Command) {
	switch c := c.(type) {
	case worker.LoadTile:
		if old, ok := t.loading[c.ID]; ok {
			old.Cancel()
		}
		id, data := c.ID, c.Data
		task, err := t.pool.Post(ctx, func(ctx context.Context) (T, error) {
			return t.hooks.decode(ctx, id, data)
		})
		if err != nil {
			t.log.WithField("tile", id).Warnf("decode not queued: %v", err)
			return
		}
		t.loading[id] = task
	case worker.UnloadTiles:
		for _, id := range c.IDs {
			if task, ok := t.loading[id]; ok {
				task.Cancel()
				delete(t.loading, id)
			}
			t.hooks.unload(id)
		}
		t.changed = true
	case worker.UpdateFetchState:
		t.fetching = c.Fetching
	default:
		panic("unknown command " + worker.CommandKind(c))
	}
}

func (t *tileset[T]) isLoading() bool {
	return t.fetching || len(t.loading) > 0
}

// close stops the scheduler and cancels outstanding decodes.
func (t *tileset[T]) close() {
	for id, task := range t.loading {
		task.Cancel()
		delete(t.loading, id)
	}
	if t.cancel != nil {
		t.cancel()
	}
	t.wg.Wait()
}
