// Package scheduler turns viewport changes into tile fetches. Each tileset
// has one Scheduler goroutine that owns all of its state; fetch goroutines
// report back to it over a channel.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"vectormap/internal/tilesource"
	"vectormap/internal/worker"
	"vectormap/pkg/tiles"
)

// Options configures a Scheduler.
type Options struct {
	Source tilesource.Source
	// Throttler is usually shared by every scheduler of a map.
	Throttler *Throttler
	CullDelay time.Duration
}

type fetch struct {
	token  uint64
	cancel context.CancelFunc
}

type completion struct {
	id    tiles.TileID
	token uint64
	data  []byte
	err   error
}

// Scheduler tracks the lifecycle of every tile of one tileset.
type Scheduler struct {
	opts     Options
	requests chan worker.Request
	commands chan worker.Command
	done     chan completion
	cullC    chan struct{}

	// owned by Run
	tileset     worker.Tileset
	initialized bool
	desired     map[tiles.TileID]struct{}
	inFlight    map[tiles.TileID]*fetch
	pending     map[tiles.TileID]struct{}
	loaded      map[tiles.TileID]struct{}
	empty       map[tiles.TileID]struct{}
	nextToken   uint64
	outbox      []worker.Command
	debounce    *Debouncer
	log         *log.Entry
}

func New(opts Options) *Scheduler {
	if opts.Throttler == nil {
		opts.Throttler = NewThrottler(0)
	}
	if opts.CullDelay <= 0 {
		opts.CullDelay = DefaultCullDelay
	}
	s := &Scheduler{
		opts:     opts,
		requests: make(chan worker.Request, 64),
		commands: make(chan worker.Command),
		done:     make(chan completion),
		cullC:    make(chan struct{}, 1),
		desired:  make(map[tiles.TileID]struct{}),
		inFlight: make(map[tiles.TileID]*fetch),
		pending:  make(map[tiles.TileID]struct{}),
		loaded:   make(map[tiles.TileID]struct{}),
		empty:    make(map[tiles.TileID]struct{}),
		log:      log.WithField("tileset", ""),
	}
	s.debounce = NewDebouncer(opts.CullDelay, func() {
		select {
		case s.cullC <- struct{}{}:
		default:
		}
	})
	return s
}

// Send queues a request for the scheduler goroutine.
func (s *Scheduler) Send(ctx context.Context, r worker.Request) error {
	select {
	case s.requests <- r:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Commands delivers the scheduler's output in order.
func (s *Scheduler) Commands() <-chan worker.Command {
	return s.commands
}

// Run processes requests until ctx ends. In-flight fetches are aborted on
// return.
func (s *Scheduler) Run(ctx context.Context) error {
	defer s.debounce.Stop()
	defer func() {
		for id, f := range s.inFlight {
			f.cancel()
			delete(s.inFlight, id)
		}
	}()

	for {
		var (
			out  chan<- worker.Command
			next worker.Command
		)
		if len(s.outbox) > 0 {
			out, next = s.commands, s.outbox[0]
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r := <-s.requests:
			if err := s.handle(ctx, r); err != nil {
				return err
			}
		case c := <-s.done:
			s.complete(c)
		case <-s.cullC:
			s.cull()
		case out <- next:
			s.outbox[0] = nil
			s.outbox = s.outbox[1:]
		}
	}
}

func (s *Scheduler) emit(c worker.Command) {
	s.outbox = append(s.outbox, c)
}

func (s *Scheduler) handle(ctx context.Context, r worker.Request) error {
	switch r := r.(type) {
	case worker.Initialize:
		s.tileset = r.Tileset
		s.initialized = true
		s.log = log.WithField("tileset", r.Tileset.Name)
		s.log.WithField("zoom", fmt.Sprintf("%d-%d", r.Tileset.Zoom.MinZoom, r.Tileset.Zoom.MaxZoom)).Debug("scheduler initialized")
	case worker.UpdateViewport:
		if !s.initialized {
			return fmt.Errorf("scheduler: %s before initialize", worker.RequestKind(r))
		}
		s.updateViewport(ctx, r.Viewport)
	case worker.Load:
		s.load(r.ID, r.Data)
	case worker.TileLoaded:
		if _, ok := s.pending[r.ID]; ok {
			delete(s.pending, r.ID)
			s.loaded[r.ID] = struct{}{}
		}
	default:
		return fmt.Errorf("scheduler: unknown request %T", r)
	}
	return nil
}

func (s *Scheduler) tracked(id tiles.TileID) bool {
	if _, ok := s.inFlight[id]; ok {
		return true
	}
	if _, ok := s.pending[id]; ok {
		return true
	}
	if _, ok := s.loaded[id]; ok {
		return true
	}
	_, ok := s.empty[id]
	return ok
}

func (s *Scheduler) updateViewport(ctx context.Context, vp tiles.Viewport) {
	clear(s.desired)
	for _, id := range tiles.Coverage(vp, s.tileset.Zoom) {
		s.desired[id] = struct{}{}
		if !s.tracked(id) {
			s.startFetch(ctx, id)
		}
	}
	for id, f := range s.inFlight {
		if _, ok := s.desired[id]; !ok {
			f.cancel()
			delete(s.inFlight, id)
		}
	}
	s.emit(worker.UpdateFetchState{Fetching: len(s.inFlight) > 0})
	s.debounce.Trigger()
}

func (s *Scheduler) startFetch(ctx context.Context, id tiles.TileID) {
	s.nextToken++
	token := s.nextToken
	fctx, cancel := context.WithCancel(ctx)
	s.inFlight[id] = &fetch{token: token, cancel: cancel}

	go func() {
		defer cancel()
		data, err := Throttle(fctx, s.opts.Throttler, func(ctx context.Context) ([]byte, error) {
			return s.opts.Source.Fetch(ctx, id)
		})
		select {
		case s.done <- completion{id: id, token: token, data: data, err: err}:
		case <-ctx.Done():
		}
	}()
}

// complete applies a fetch result if it belongs to the fetch currently
// registered for the tile.
func (s *Scheduler) complete(c completion) {
	f, ok := s.inFlight[c.id]
	if !ok || f.token != c.token {
		return
	}
	delete(s.inFlight, c.id)
	entry := s.log.WithField("tile", c.id)

	switch {
	case c.err == nil:
		s.pending[c.id] = struct{}{}
		s.emit(worker.LoadTile{ID: c.id, Data: c.data})
		s.debounce.Trigger()
	case errors.Is(c.err, tilesource.ErrNotFound):
		s.empty[c.id] = struct{}{}
		entry.Debug("tile not found, marked empty")
	case errors.Is(c.err, context.Canceled):
	default:
		entry.Warnf("fetch failed: %v", c.err)
	}
	s.emit(worker.UpdateFetchState{Fetching: len(s.inFlight) > 0})
}

// load accepts a payload that did not come from a fetch.
func (s *Scheduler) load(id tiles.TileID, data []byte) {
	if f, ok := s.inFlight[id]; ok {
		f.cancel()
		delete(s.inFlight, id)
	}
	delete(s.loaded, id)
	delete(s.empty, id)
	s.pending[id] = struct{}{}
	s.emit(worker.LoadTile{ID: id, Data: data})
	s.debounce.Trigger()
}

func intersectsAny[V any](id tiles.TileID, sets ...map[tiles.TileID]V) bool {
	for _, set := range sets {
		for other := range set {
			if tiles.Intersect(id, other) {
				return true
			}
		}
	}
	return false
}

// cull unloads tiles that are no longer desired, keeping those that still
// cover an area whose replacement is being fetched or decoded.
func (s *Scheduler) cull() {
	var unload []tiles.TileID
	for id := range s.pending {
		if _, ok := s.desired[id]; ok {
			continue
		}
		if intersectsAny(id, s.inFlight) {
			continue
		}
		delete(s.pending, id)
		unload = append(unload, id)
	}
	for id := range s.loaded {
		if _, ok := s.desired[id]; ok {
			continue
		}
		if intersectsAny(id, s.inFlight) || intersectsAny(id, s.pending) {
			continue
		}
		delete(s.loaded, id)
		unload = append(unload, id)
	}
	if len(unload) == 0 {
		return
	}
	sortIDs(unload)
	s.log.WithField("count", len(unload)).Debug("culling tiles")
	s.emit(worker.UnloadTiles{IDs: unload})
}

func sortIDs(ids []tiles.TileID) {
	sort.Slice(ids, func(i, j int) bool {
		a, b := ids[i], ids[j]
		if a.Zoom != b.Zoom {
			return a.Zoom < b.Zoom
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})
}
