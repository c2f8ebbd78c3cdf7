// Package renderer implements render.Device on WebGPU: one pipeline per
// program, buffers and textures created on demand, draws recorded into a
// single render pass per frame.
package renderer

import (
	"errors"
	"fmt"

	"github.com/rajveermalviya/go-webgpu/wgpu"
	log "github.com/sirupsen/logrus"

	"vectormap/internal/render"
)

var errNoFrame = errors.New("renderer: draw outside BeginFrame/EndFrame")

// clearColor is the sea colour behind every layer.
var clearColor = wgpu.Color{R: 0.627, G: 0.765, B: 0.812, A: 1.0}

// Renderer handles all WebGPU rendering
type Renderer struct {
	device          *wgpu.Device
	queue           *wgpu.Queue
	surface         *wgpu.Surface
	adapter         *wgpu.Adapter
	swapChain       *wgpu.SwapChain
	swapChainFormat wgpu.TextureFormat
	sampler         *wgpu.Sampler

	cameraLayout  *wgpu.BindGroupLayout
	textureLayout *wgpu.BindGroupLayout
	blockLayout   *wgpu.BindGroupLayout
	pipelines     map[*render.Program]*wgpu.RenderPipeline

	cameras    []cameraBuffer
	cameraSlot int

	// current frame
	view    *wgpu.TextureView
	encoder *wgpu.CommandEncoder
	pass    *wgpu.RenderPassEncoder

	width  uint32
	height uint32
}

// NewRenderer creates a new WebGPU renderer
func NewRenderer(adapter *wgpu.Adapter, device *wgpu.Device, queue *wgpu.Queue, surface *wgpu.Surface, width, height uint32) (*Renderer, error) {
	r := &Renderer{
		adapter:   adapter,
		device:    device,
		queue:     queue,
		surface:   surface,
		width:     width,
		height:    height,
		pipelines: make(map[*render.Program]*wgpu.RenderPipeline),
	}

	if err := r.init(); err != nil {
		r.Release()
		return nil, err
	}

	return r, nil
}

func (r *Renderer) init() error {
	r.swapChainFormat = r.surface.GetPreferredFormat(r.adapter)

	var err error
	r.swapChain, err = r.device.CreateSwapChain(r.surface, &wgpu.SwapChainDescriptor{
		Usage:       wgpu.TextureUsage_RenderAttachment,
		Format:      r.swapChainFormat,
		Width:       r.width,
		Height:      r.height,
		PresentMode: wgpu.PresentMode_Fifo,
	})
	if err != nil {
		return fmt.Errorf("swap chain creation failed: %w", err)
	}

	r.sampler, err = r.device.CreateSampler(&wgpu.SamplerDescriptor{
		AddressModeU:   wgpu.AddressMode_ClampToEdge,
		AddressModeV:   wgpu.AddressMode_ClampToEdge,
		AddressModeW:   wgpu.AddressMode_ClampToEdge,
		MagFilter:      wgpu.FilterMode_Linear,
		MinFilter:      wgpu.FilterMode_Linear,
		MipmapFilter:   wgpu.MipmapFilterMode_Nearest,
		MaxAnisotrophy: 1,
	})
	if err != nil {
		return fmt.Errorf("sampler creation failed: %w", err)
	}

	if err := r.createLayouts(); err != nil {
		return err
	}

	if err := r.addCameraBuffer(); err != nil {
		return err
	}

	for _, p := range render.Programs() {
		pipeline, err := r.createPipeline(p)
		if err != nil {
			return fmt.Errorf("pipeline %s: %w", p.Name, err)
		}
		r.pipelines[p] = pipeline
	}
	return nil
}

func (r *Renderer) createLayouts() error {
	var err error
	r.cameraLayout, err = r.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "camera_layout",
		Entries: []wgpu.BindGroupLayoutEntry{{
			Binding:    0,
			Visibility: wgpu.ShaderStage_Vertex | wgpu.ShaderStage_Fragment,
			Buffer: wgpu.BufferBindingLayout{
				Type:             wgpu.BufferBindingType_Uniform,
				HasDynamicOffset: true,
				MinBindingSize:   cameraSize,
			},
		}},
	})
	if err != nil {
		return fmt.Errorf("camera layout creation failed: %w", err)
	}

	r.textureLayout, err = r.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "texture_layout",
		Entries: []wgpu.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: wgpu.ShaderStage_Fragment,
				Sampler:    wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingType_Filtering},
			},
			{
				Binding:    1,
				Visibility: wgpu.ShaderStage_Fragment,
				Texture: wgpu.TextureBindingLayout{
					SampleType:    wgpu.TextureSampleType_Float,
					ViewDimension: wgpu.TextureViewDimension_2D,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("texture layout creation failed: %w", err)
	}

	r.blockLayout, err = r.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "block_layout",
		Entries: []wgpu.BindGroupLayoutEntry{{
			Binding:    0,
			Visibility: wgpu.ShaderStage_Vertex,
			Buffer: wgpu.BufferBindingLayout{
				Type:             wgpu.BufferBindingType_Uniform,
				HasDynamicOffset: true,
				MinBindingSize:   render.RasterBlockSize,
			},
		}},
	})
	if err != nil {
		return fmt.Errorf("block layout creation failed: %w", err)
	}
	return nil
}

// Resize handles window resize
func (r *Renderer) Resize(width, height uint32) {
	if width == 0 || height == 0 {
		return
	}
	r.width = width
	r.height = height

	if r.swapChain != nil {
		r.swapChain.Release()
	}

	var err error
	r.swapChain, err = r.device.CreateSwapChain(r.surface, &wgpu.SwapChainDescriptor{
		Usage:       wgpu.TextureUsage_RenderAttachment,
		Format:      r.swapChainFormat,
		Width:       width,
		Height:      height,
		PresentMode: wgpu.PresentMode_Fifo,
	})
	if err != nil {
		r.swapChain = nil
		log.Errorf("failed to recreate swap chain: %v", err)
	}
}

// BeginFrame opens the frame's render pass. Every Draw until EndFrame is
// recorded into it.
func (r *Renderer) BeginFrame() error {
	if r.swapChain == nil {
		return errors.New("renderer: no swap chain")
	}
	view, err := r.swapChain.GetCurrentTextureView()
	if err != nil {
		return err
	}
	encoder, err := r.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{})
	if err != nil {
		view.Release()
		return err
	}
	r.view, r.encoder = view, encoder
	r.pass = encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     wgpu.LoadOp_Clear,
			StoreOp:    wgpu.StoreOp_Store,
			ClearValue: clearColor,
		}},
	})
	r.cameraSlot = 0
	return nil
}

// EndFrame submits and presents the frame.
func (r *Renderer) EndFrame() error {
	if r.pass == nil {
		return errNoFrame
	}
	defer func() {
		r.encoder.Release()
		r.view.Release()
		r.pass, r.encoder, r.view = nil, nil, nil
	}()

	r.pass.End()
	cmdBuffer, err := r.encoder.Finish(&wgpu.CommandBufferDescriptor{})
	if err != nil {
		return err
	}
	defer cmdBuffer.Release()

	r.queue.Submit(cmdBuffer)
	r.swapChain.Present()
	return nil
}

// Release frees all GPU resources
func (r *Renderer) Release() {
	for p, pipeline := range r.pipelines {
		pipeline.Release()
		delete(r.pipelines, p)
	}
	for _, c := range r.cameras {
		c.group.Release()
		c.buf.Release()
	}
	r.cameras = nil
	for _, l := range []*wgpu.BindGroupLayout{r.cameraLayout, r.textureLayout, r.blockLayout} {
		if l != nil {
			l.Release()
		}
	}
	if r.sampler != nil {
		r.sampler.Release()
	}
	if r.swapChain != nil {
		r.swapChain.Release()
	}
}
