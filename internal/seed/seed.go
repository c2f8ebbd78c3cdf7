// Package seed copies a region of a tile source into a tile sink, zoom by
// zoom, with a bounded number of concurrent fetches.
package seed

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	log "github.com/sirupsen/logrus"
	"github.com/teris-io/shortid"
	pb "gopkg.in/cheggaaa/pb.v1"

	"vectormap/internal/tilesource"
	"vectormap/pkg/tiles"
)

// maxLat is the latitude limit of the web mercator tile pyramid.
const maxLat = 85.05112878

// Sink stores seeded tiles. *tilesource.MBTiles is one.
type Sink interface {
	Put(id tiles.TileID, data []byte) error
}

type Options struct {
	Source  tilesource.Source
	Sink    Sink
	Bound   orb.Bound
	MinZoom int
	MaxZoom int
	// Workers caps concurrent fetches; zero means 4.
	Workers int
	// Gzip compresses tiles that are not already gzipped, as MBTiles
	// vector archives expect.
	Gzip bool
	// Progress shows a bar per zoom level on stdout.
	Progress bool
}

// Stats counts what a run did.
type Stats struct {
	ID      string
	Total   int64
	Stored  int64
	Missing int64
	Failed  int64
}

// Cover lists the tiles of zoom z that intersect b, a bound in degrees.
func Cover(b orb.Bound, z int) []tiles.TileID {
	b = clampBound(b)
	minTile := maptile.At(orb.Point{b.Min[0], b.Max[1]}, maptile.Zoom(z))
	maxTile := maptile.At(orb.Point{b.Max[0], b.Min[1]}, maptile.Zoom(z))

	var out []tiles.TileID
	for x := minTile.X; x <= maxTile.X; x++ {
		for y := minTile.Y; y <= maxTile.Y; y++ {
			out = append(out, tiles.FromMaptile(maptile.New(x, y, maptile.Zoom(z))))
		}
	}
	return out
}

func clampBound(b orb.Bound) orb.Bound {
	// maptile.At puts 180° and the poles one tile past the edge
	const eps = 1e-9
	b.Min[0] = max(b.Min[0], -180)
	b.Max[0] = min(b.Max[0], 180-eps)
	b.Min[1] = max(b.Min[1], -maxLat+eps)
	b.Max[1] = min(b.Max[1], maxLat-eps)
	return b
}

// Count is the number of tiles Run would visit.
func Count(b orb.Bound, minZoom, maxZoom int) int64 {
	b = clampBound(b)
	var n int64
	for z := minZoom; z <= maxZoom; z++ {
		minTile := maptile.At(orb.Point{b.Min[0], b.Max[1]}, maptile.Zoom(z))
		maxTile := maptile.At(orb.Point{b.Max[0], b.Min[1]}, maptile.Zoom(z))
		n += int64(maxTile.X-minTile.X+1) * int64(maxTile.Y-minTile.Y+1)
	}
	return n
}

// Run seeds every tile of opts.Bound between MinZoom and MaxZoom. Missing
// tiles are skipped; other fetch and store failures are counted and logged.
// Cancelling ctx stops after the fetches in flight.
func Run(ctx context.Context, opts Options) (Stats, error) {
	if opts.Source == nil || opts.Sink == nil {
		return Stats{}, errors.New("seed: source and sink are required")
	}
	if opts.MinZoom < 0 || opts.MaxZoom < opts.MinZoom {
		return Stats{}, fmt.Errorf("seed: bad zoom range [%d, %d]", opts.MinZoom, opts.MaxZoom)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	id, err := shortid.Generate()
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{ID: id, Total: Count(opts.Bound, opts.MinZoom, opts.MaxZoom)}
	logger := log.WithField("task", id)
	logger.Infof("seeding %d tiles, zoom %d-%d", stats.Total, opts.MinZoom, opts.MaxZoom)
	start := time.Now()

	// the sink is not assumed to take concurrent writes
	var sinkMu sync.Mutex
	for z := opts.MinZoom; z <= opts.MaxZoom; z++ {
		cover := Cover(opts.Bound, z)
		var bar *pb.ProgressBar
		if opts.Progress {
			bar = pb.New(len(cover)).Prefix(fmt.Sprintf("Zoom %d : ", z))
			bar.SetRefreshRate(time.Second)
			bar.Start()
		}

		sem := make(chan struct{}, workers)
		var wg sync.WaitGroup
	loop:
		for _, tile := range cover {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				break loop
			}
			wg.Add(1)
			go func(tile tiles.TileID) {
				defer func() {
					<-sem
					wg.Done()
					if bar != nil {
						bar.Increment()
					}
				}()
				data, err := opts.Source.Fetch(ctx, tile)
				switch {
				case errors.Is(err, tilesource.ErrNotFound):
					atomic.AddInt64(&stats.Missing, 1)
					return
				case err != nil:
					atomic.AddInt64(&stats.Failed, 1)
					logger.WithField("tile", tile).Warnf("fetch: %v", err)
					return
				}
				if opts.Gzip && !isGzip(data) {
					if data, err = compress(data); err != nil {
						atomic.AddInt64(&stats.Failed, 1)
						logger.WithField("tile", tile).Warnf("gzip: %v", err)
						return
					}
				}
				sinkMu.Lock()
				err = opts.Sink.Put(tile, data)
				sinkMu.Unlock()
				if err != nil {
					atomic.AddInt64(&stats.Failed, 1)
					logger.WithField("tile", tile).Warnf("store: %v", err)
					return
				}
				atomic.AddInt64(&stats.Stored, 1)
			}(tile)
		}
		wg.Wait()
		if bar != nil {
			bar.FinishPrint(fmt.Sprintf("Task %s Zoom %d finished", id, z))
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}
	}

	logger.WithFields(log.Fields{
		"stored":  stats.Stored,
		"missing": stats.Missing,
		"failed":  stats.Failed,
	}).Infof("seeded in %.3fs", time.Since(start).Seconds())
	return stats, nil
}

func isGzip(data []byte) bool {
	return len(data) > 1 && data[0] == 0x1f && data[1] == 0x8b
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
