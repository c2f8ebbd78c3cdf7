package layers

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"vectormap/internal/collection"
	"vectormap/internal/render"
	"vectormap/internal/worker"
	"vectormap/pkg/tiles"
)

// CollectionOptions configures a CollectionLayer.
type CollectionOptions struct {
	Name   string
	Path   string
	Loader *collection.Loader
	Pool   *worker.Pool[*collection.Loaded]
	Device render.Device
}

// CollectionLayer draws one polygon collection file. The file is read and
// triangulated once in the background; the viewport does not affect it.
type CollectionLayer struct {
	opts      CollectionOptions
	task      *worker.Task[*collection.Loaded]
	geometry  *render.Buffer
	index     *render.Buffer
	drawables []render.Drawable
	polygons  []collection.Polygon
	log       *log.Entry
}

// NewCollectionLayer queues the file for loading.
func NewCollectionLayer(ctx context.Context, opts CollectionOptions) (*CollectionLayer, error) {
	l := &CollectionLayer{opts: opts, log: log.WithField("layer", opts.Name)}
	task, err := opts.Pool.Post(ctx, func(context.Context) (*collection.Loaded, error) {
		f, err := collection.Open(opts.Path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return opts.Loader.Pack(f.Records), nil
	})
	if err != nil {
		return nil, fmt.Errorf("layer %s: %w", opts.Name, err)
	}
	l.task = task
	return l, nil
}

func (l *CollectionLayer) ViewportChanged(context.Context, tiles.Viewport) error {
	return nil
}

func (l *CollectionLayer) Update(ctx context.Context) bool {
	if l.task == nil {
		return false
	}
	select {
	case <-l.task.Done():
	default:
		return false
	}
	task := l.task
	l.task = nil

	loaded, err := task.Result(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			l.log.WithField("path", l.opts.Path).Errorf("failed to load collection: %v", err)
		}
		return false
	}
	if err := l.integrate(loaded); err != nil {
		l.log.Errorf("failed to upload collection: %v", err)
		l.release()
		return false
	}
	l.log.WithField("polygons", len(loaded.Polygons)).Info("collection loaded")
	return true
}

func (l *CollectionLayer) integrate(loaded *collection.Loaded) error {
	if len(loaded.Polygons) == 0 {
		return nil
	}
	device := l.opts.Device
	var err error
	if l.geometry, err = device.CreateBuffer(render.GeometryBuffer, len(loaded.Geometry)); err != nil {
		return err
	}
	if err := device.WriteBuffer(l.geometry, 0, loaded.Geometry); err != nil {
		return err
	}
	if l.index, err = device.CreateBuffer(render.IndexBuffer, len(loaded.Index)); err != nil {
		return err
	}
	if err := device.WriteBuffer(l.index, 0, loaded.Index); err != nil {
		return err
	}
	for _, p := range loaded.Polygons {
		l.drawables = append(l.drawables, render.Drawable{
			Program:        render.Triangle,
			Geometry:       l.geometry,
			GeometryOffset: p.GeometryOffset,
			GeometryLength: p.GeometryByteLength,
			Index:          l.index,
			IndexOffset:    p.IndexOffset,
			IndexCount:     p.IndexCount,
			Z:              p.Z,
		})
	}
	l.polygons = loaded.Polygons
	return nil
}

// Polygons lists the loaded records with their properties.
func (l *CollectionLayer) Polygons() []collection.Polygon {
	return l.polygons
}

func (l *CollectionLayer) Render(b *render.Baker, _ float64) error {
	b.AddDrawables(l.drawables...)
	return nil
}

func (l *CollectionLayer) Loading() bool {
	return l.task != nil
}

func (l *CollectionLayer) release() {
	if l.geometry != nil {
		l.opts.Device.DeleteBuffer(l.geometry)
		l.geometry = nil
	}
	if l.index != nil {
		l.opts.Device.DeleteBuffer(l.index)
		l.index = nil
	}
	l.drawables = nil
	l.polygons = nil
}

func (l *CollectionLayer) Close() {
	if l.task != nil {
		l.task.Cancel()
		l.task = nil
	}
	l.release()
}
