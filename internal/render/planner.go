package render

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	log "github.com/sirupsen/logrus"

	"vectormap/internal/mercator"
)

// Planner owns the frame buffers and draws whatever layers staged into its
// Baker.
type Planner struct {
	device   Device
	baker    *Baker
	geometry *Buffer
	index    *Buffer
}

// NewPlanner creates the frame buffers on device.
func NewPlanner(device Device, maxGeometry, maxIndex int) (*Planner, error) {
	geometry, err := device.CreateBuffer(GeometryBuffer, maxGeometry)
	if err != nil {
		return nil, fmt.Errorf("create geometry buffer: %w", err)
	}
	index, err := device.CreateBuffer(IndexBuffer, maxIndex)
	if err != nil {
		device.DeleteBuffer(geometry)
		return nil, fmt.Errorf("create index buffer: %w", err)
	}
	return &Planner{
		device:   device,
		baker:    NewBaker(maxGeometry, maxIndex),
		geometry: geometry,
		index:    index,
	}, nil
}

// Baker is the frame staging area layers write into.
func (p *Planner) Baker() *Baker {
	return p.baker
}

func (p *Planner) Device() Device {
	return p.device
}

// Centers returns the camera centres the frame is drawn around. area is the
// visible region in degrees; when it reaches past a ±180° seam the world is
// drawn a second time shifted by one world width.
func Centers(area orb.Bound, center orb.Point) []mercator.SplitVec2 {
	centers := []mercator.SplitVec2{mercator.SplitPoint(center[0], center[1])}
	if area.Min[0] < -180 {
		centers = append(centers, mercator.SplitPoint(center[0]+2, center[1]))
	}
	if area.Max[0] > 180 {
		centers = append(centers, mercator.SplitPoint(center[0]-2, center[1]))
	}
	return centers
}

// Render uploads the staged frame and draws every same-program run once per
// camera centre, then clears the baker. A batch the device rejects is skipped
// and the rest of the frame is still drawn; the rejections are returned
// joined.
func (p *Planner) Render(area orb.Bound, view View) error {
	defer p.baker.Clear()

	up, err := p.baker.Upload(p.device, p.geometry, p.index)
	if err != nil {
		return err
	}
	drawables := p.baker.Drawables()
	centers := Centers(area, view.Center)

	var errs []error
	draws := 0
	for start := 0; start < len(drawables); {
		end := start + 1
		for end < len(drawables) && drawables[end].Program == drawables[start].Program {
			end++
		}
		run := mergeContiguous(drawables[start:end])
		for _, c := range centers {
			if err := p.device.Draw(Batch{
				Program:   drawables[start].Program,
				Center:    c,
				View:      view,
				Drawables: run,
			}); err != nil {
				log.WithField("program", drawables[start].Program.Name).Warnf("batch skipped: %v", err)
				errs = append(errs, fmt.Errorf("draw %s: %w", drawables[start].Program.Name, err))
				continue
			}
			draws++
		}
		start = end
	}

	log.WithFields(log.Fields{
		"drawables": len(drawables),
		"draws":     draws,
		"geometry":  up.Geometry,
		"index":     up.Index,
	}).Trace("frame planned")
	return errors.Join(errs...)
}

// Release deletes the frame buffers.
func (p *Planner) Release() {
	p.device.DeleteBuffer(p.geometry)
	p.device.DeleteBuffer(p.index)
}

// mergeContiguous joins plain drawables of a run that share buffer, texture
// and z and whose byte ranges touch. Instanced and indexed drawables are
// left alone.
func mergeContiguous(run []Drawable) []Drawable {
	out := make([]Drawable, 0, len(run))
	for _, d := range run {
		if n := len(out); n > 0 {
			last := &out[n-1]
			if !last.instanced() && !last.indexed() && !d.instanced() && !d.indexed() &&
				!last.Program.Uniform &&
				last.Geometry == d.Geometry &&
				last.Texture == d.Texture &&
				last.Z == d.Z &&
				last.GeometryOffset+last.GeometryLength == d.GeometryOffset {
				last.GeometryLength += d.GeometryLength
				last.VertexCount += d.VertexCount
				continue
			}
		}
		out = append(out, d)
	}
	return out
}
