package tileserver

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"vectormap/internal/tilesource"
	"vectormap/pkg/tiles"
)

// Prefetcher warms a source in the background, e.g. an HTTP source with a
// disk cache, so later requests are served locally.
type Prefetcher struct {
	src   tilesource.Source
	queue chan tiles.TileID
	wg    sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	fetched atomic.Int64
	failed  atomic.Int64
}

// NewPrefetcher starts workers goroutines draining a queue of size capacity.
func NewPrefetcher(src tilesource.Source, workers, capacity int) *Prefetcher {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Prefetcher{
		src:    src,
		queue:  make(chan tiles.TileID, capacity),
		ctx:    ctx,
		cancel: cancel,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Prefetcher) worker() {
	defer p.wg.Done()
	for id := range p.queue {
		if p.ctx.Err() != nil {
			continue
		}
		_, err := p.src.Fetch(p.ctx, id)
		switch {
		case err == nil, errors.Is(err, tilesource.ErrNotFound):
			p.fetched.Add(1)
		default:
			p.failed.Add(1)
			log.WithField("tile", id).Debugf("prefetch: %v", err)
		}
	}
}

// Queue adds ids without blocking and returns how many were accepted; the
// rest are dropped once the queue is full.
func (p *Prefetcher) Queue(ids []tiles.TileID) int {
	n := 0
	for _, id := range ids {
		select {
		case p.queue <- id:
			n++
		default:
			return n
		}
	}
	return n
}

// Stats returns the number of finished and failed fetches.
func (p *Prefetcher) Stats() (fetched, failed int64) {
	return p.fetched.Load(), p.failed.Load()
}

// Close abandons queued tiles and waits for the workers.
func (p *Prefetcher) Close() {
	p.cancel()
	close(p.queue)
	p.wg.Wait()
}
