package renderer

import (
	"fmt"
	"image"

	"github.com/rajveermalviya/go-webgpu/wgpu"

	"vectormap/internal/render"
)

type gpuBuffer struct {
	buf *wgpu.Buffer
	// block binds the buffer's uniform blocks; created on first use.
	block *wgpu.BindGroup
}

type gpuTexture struct {
	texture *wgpu.Texture
	view    *wgpu.TextureView
	group   *wgpu.BindGroup
}

var _ render.Device = (*Renderer)(nil)

func (r *Renderer) CreateBuffer(kind render.BufferKind, size int) (*render.Buffer, error) {
	usage := wgpu.BufferUsage_Vertex | wgpu.BufferUsage_Uniform | wgpu.BufferUsage_CopyDst
	if kind == render.IndexBuffer {
		usage = wgpu.BufferUsage_Index | wgpu.BufferUsage_CopyDst
	}
	buf, err := r.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: kind.String(),
		Usage: usage,
		Size:  align(uint64(max(size, 1)), render.UniformAlignment),
	})
	if err != nil {
		return nil, fmt.Errorf("create %s buffer: %w", kind, err)
	}
	return render.NewBuffer(kind, size, &gpuBuffer{buf: buf}), nil
}

func (r *Renderer) WriteBuffer(b *render.Buffer, offset int, data []byte) error {
	if offset+len(data) > b.Size {
		return fmt.Errorf("write %d bytes at %d into %d byte buffer: %w", len(data), offset, b.Size, render.ErrOutOfSpace)
	}
	r.queue.WriteBuffer(b.Handle.(*gpuBuffer).buf, uint64(offset), pad4(data))
	return nil
}

func (r *Renderer) DeleteBuffer(b *render.Buffer) {
	h := b.Handle.(*gpuBuffer)
	if h.block != nil {
		h.block.Release()
	}
	h.buf.Release()
}

func (r *Renderer) CreateTexture(width, height int) (*render.Texture, error) {
	texture, err := r.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: "tile_texture",
		Size: wgpu.Extent3D{
			Width:              uint32(width),
			Height:             uint32(height),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension_2D,
		Format:        wgpu.TextureFormat_RGBA8UnormSrgb,
		Usage:         wgpu.TextureUsage_TextureBinding | wgpu.TextureUsage_CopyDst,
	})
	if err != nil {
		return nil, err
	}

	view, err := texture.CreateView(&wgpu.TextureViewDescriptor{
		Format:          wgpu.TextureFormat_RGBA8UnormSrgb,
		Dimension:       wgpu.TextureViewDimension_2D,
		BaseMipLevel:    0,
		MipLevelCount:   1,
		BaseArrayLayer:  0,
		ArrayLayerCount: 1,
		Aspect:          wgpu.TextureAspect_All,
	})
	if err != nil {
		texture.Release()
		return nil, err
	}

	group, err := r.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "texture",
		Layout: r.textureLayout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Sampler: r.sampler},
			{Binding: 1, TextureView: view},
		},
	})
	if err != nil {
		view.Release()
		texture.Release()
		return nil, err
	}
	return render.NewTexture(width, height, &gpuTexture{texture: texture, view: view, group: group}), nil
}

func (r *Renderer) WriteTexture(t *render.Texture, img *image.RGBA) error {
	size := img.Bounds().Size()
	if size.X != t.Width || size.Y != t.Height {
		return fmt.Errorf("write %v image into %dx%d texture", size, t.Width, t.Height)
	}
	r.queue.WriteTexture(
		&wgpu.ImageCopyTexture{Texture: t.Handle.(*gpuTexture).texture, MipLevel: 0, Origin: wgpu.Origin3D{}, Aspect: wgpu.TextureAspect_All},
		img.Pix,
		&wgpu.TextureDataLayout{Offset: 0, BytesPerRow: uint32(img.Stride), RowsPerImage: uint32(size.Y)},
		&wgpu.Extent3D{Width: uint32(size.X), Height: uint32(size.Y), DepthOrArrayLayers: 1},
	)
	return nil
}

func (r *Renderer) DeleteTexture(t *render.Texture) {
	h := t.Handle.(*gpuTexture)
	h.group.Release()
	h.view.Release()
	h.texture.Release()
}

// cameraBuffer holds cameraSlots camera blocks. Buffers are kept across
// frames once created.
type cameraBuffer struct {
	buf   *wgpu.Buffer
	group *wgpu.BindGroup
}

func (r *Renderer) addCameraBuffer() error {
	buf, err := r.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "camera",
		Usage: wgpu.BufferUsage_Uniform | wgpu.BufferUsage_CopyDst,
		Size:  cameraSlots * render.UniformAlignment,
	})
	if err != nil {
		return fmt.Errorf("camera buffer creation failed: %w", err)
	}
	group, err := r.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   "camera",
		Layout:  r.cameraLayout,
		Entries: []wgpu.BindGroupEntry{{Binding: 0, Buffer: buf, Size: cameraSize}},
	})
	if err != nil {
		buf.Release()
		return fmt.Errorf("camera bind group creation failed: %w", err)
	}
	r.cameras = append(r.cameras, cameraBuffer{buf: buf, group: group})
	return nil
}

// Draw records one batch into the current frame.
func (r *Renderer) Draw(b render.Batch) error {
	if r.pass == nil {
		return errNoFrame
	}
	pipeline, ok := r.pipelines[b.Program]
	if !ok {
		return fmt.Errorf("renderer: no pipeline for %q", b.Program.Name)
	}
	i, offset := cameraSlot(r.cameraSlot)
	if i == len(r.cameras) {
		if err := r.addCameraBuffer(); err != nil {
			return err
		}
	}
	r.cameraSlot++
	camera := r.cameras[i]
	r.queue.WriteBuffer(camera.buf, uint64(offset), cameraUniform(b.View, b.Center))

	r.pass.SetPipeline(pipeline)
	r.pass.SetBindGroup(0, camera.group, []uint32{offset})
	for _, d := range b.Drawables {
		if err := r.draw(b.Program, d); err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) draw(p *render.Program, d render.Drawable) error {
	geometry := d.Geometry.Handle.(*gpuBuffer)
	switch p {
	case render.Line, render.LineCap, render.Glyph:
		if p == render.Glyph {
			if d.Texture == nil {
				return fmt.Errorf("renderer: glyph drawable without texture")
			}
			r.pass.SetBindGroup(1, d.Texture.Handle.(*gpuTexture).group, nil)
		}
		r.pass.SetVertexBuffer(0, geometry.buf, uint64(d.GeometryOffset), uint64(d.GeometryLength))
		r.pass.Draw(uint32(d.VertexCount), uint32(d.InstanceCount), 0, 0)
	case render.Triangle:
		if d.Index == nil {
			return fmt.Errorf("renderer: triangle drawable without index buffer")
		}
		off := uint64(d.GeometryOffset)
		r.pass.SetVertexBuffer(0, geometry.buf, off+4, uint64(d.GeometryLength-4))
		r.pass.SetVertexBuffer(1, geometry.buf, off, 4)
		r.pass.SetIndexBuffer(d.Index.Handle.(*gpuBuffer).buf, wgpu.IndexFormat_Uint32, uint64(d.IndexOffset), uint64(d.IndexCount*4))
		r.pass.DrawIndexed(uint32(d.IndexCount), 1, 0, 0, 0)
	case render.Billboard, render.Raster:
		if d.Texture == nil {
			return fmt.Errorf("renderer: %s drawable without texture", p.Name)
		}
		block, err := r.blockGroup(geometry)
		if err != nil {
			return err
		}
		r.pass.SetBindGroup(1, d.Texture.Handle.(*gpuTexture).group, nil)
		r.pass.SetBindGroup(2, block, []uint32{uint32(d.GeometryOffset)})
		r.pass.Draw(uint32(d.VertexCount), 1, 0, 0)
	default:
		panic("unknown program " + p.Name)
	}
	return nil
}

func (r *Renderer) blockGroup(b *gpuBuffer) (*wgpu.BindGroup, error) {
	if b.block != nil {
		return b.block, nil
	}
	group, err := r.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   "uniform_blocks",
		Layout:  r.blockLayout,
		Entries: []wgpu.BindGroupEntry{{Binding: 0, Buffer: b.buf, Size: render.RasterBlockSize}},
	})
	if err != nil {
		return nil, fmt.Errorf("uniform block bind group: %w", err)
	}
	b.block = group
	return group, nil
}
