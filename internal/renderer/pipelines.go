package renderer

import (
	"fmt"

	"github.com/rajveermalviya/go-webgpu/wgpu"

	"vectormap/internal/render"
)

var alphaBlend = wgpu.BlendState{
	Color: wgpu.BlendComponent{
		SrcFactor: wgpu.BlendFactor_SrcAlpha,
		DstFactor: wgpu.BlendFactor_OneMinusSrcAlpha,
		Operation: wgpu.BlendOperation_Add,
	},
	Alpha: wgpu.BlendComponent{
		SrcFactor: wgpu.BlendFactor_One,
		DstFactor: wgpu.BlendFactor_OneMinusSrcAlpha,
		Operation: wgpu.BlendOperation_Add,
	},
}

var lineInstance = wgpu.VertexBufferLayout{
	ArrayStride: render.LineVertexStride,
	StepMode:    wgpu.VertexStepMode_Instance,
	Attributes: []wgpu.VertexAttribute{
		{Format: wgpu.VertexFormat_Float32x4, Offset: 0, ShaderLocation: 0},
		{Format: wgpu.VertexFormat_Uint32, Offset: 16, ShaderLocation: 1},
		{Format: wgpu.VertexFormat_Uint32, Offset: 20, ShaderLocation: 2},
		{Format: wgpu.VertexFormat_Float32x2, Offset: 24, ShaderLocation: 3},
		{Format: wgpu.VertexFormat_Uint32, Offset: 32, ShaderLocation: 4},
	},
}

// programSetup is the per-program part of a pipeline.
type programSetup struct {
	source   string
	buffers  []wgpu.VertexBufferLayout
	topology wgpu.PrimitiveTopology
	textured bool
	block    bool
}

func setupFor(p *render.Program) (programSetup, error) {
	switch p {
	case render.Line:
		return programSetup{
			source:   lineShader,
			buffers:  []wgpu.VertexBufferLayout{lineInstance},
			topology: wgpu.PrimitiveTopology_TriangleStrip,
		}, nil
	case render.LineCap:
		return programSetup{
			source:   lineCapShader,
			buffers:  []wgpu.VertexBufferLayout{lineInstance},
			topology: wgpu.PrimitiveTopology_TriangleStrip,
		}, nil
	case render.Triangle:
		return programSetup{
			source: triangleShader,
			buffers: []wgpu.VertexBufferLayout{
				{
					ArrayStride: render.TriangleVertexSize,
					StepMode:    wgpu.VertexStepMode_Vertex,
					Attributes:  []wgpu.VertexAttribute{{Format: wgpu.VertexFormat_Float32x2, Offset: 0, ShaderLocation: 0}},
				},
				{
					// the group's fill word, read once
					ArrayStride: 4,
					StepMode:    wgpu.VertexStepMode_Instance,
					Attributes:  []wgpu.VertexAttribute{{Format: wgpu.VertexFormat_Uint32, Offset: 0, ShaderLocation: 1}},
				},
			},
			topology: wgpu.PrimitiveTopology_TriangleList,
		}, nil
	case render.Glyph:
		return programSetup{
			source: glyphShader,
			buffers: []wgpu.VertexBufferLayout{{
				ArrayStride: render.GlyphStride,
				StepMode:    wgpu.VertexStepMode_Instance,
				Attributes: []wgpu.VertexAttribute{
					{Format: wgpu.VertexFormat_Float32x4, Offset: 0, ShaderLocation: 0},
					{Format: wgpu.VertexFormat_Float32x4, Offset: 16, ShaderLocation: 1},
					{Format: wgpu.VertexFormat_Float32x4, Offset: 32, ShaderLocation: 2},
					{Format: wgpu.VertexFormat_Uint32, Offset: 48, ShaderLocation: 3},
					{Format: wgpu.VertexFormat_Uint32, Offset: 52, ShaderLocation: 4},
					{Format: wgpu.VertexFormat_Float32x2, Offset: 56, ShaderLocation: 5},
				},
			}},
			topology: wgpu.PrimitiveTopology_TriangleStrip,
			textured: true,
		}, nil
	case render.Billboard:
		return programSetup{source: billboardShader, topology: wgpu.PrimitiveTopology_TriangleStrip, textured: true, block: true}, nil
	case render.Raster:
		return programSetup{source: rasterShader, topology: wgpu.PrimitiveTopology_TriangleStrip, textured: true, block: true}, nil
	}
	return programSetup{}, fmt.Errorf("unknown program %q", p.Name)
}

func (r *Renderer) createPipeline(p *render.Program) (*wgpu.RenderPipeline, error) {
	setup, err := setupFor(p)
	if err != nil {
		return nil, err
	}

	shader, err := r.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          p.Name,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: cameraShader + setup.source},
	})
	if err != nil {
		return nil, fmt.Errorf("shader creation failed: %w", err)
	}
	defer shader.Release()

	groups := []*wgpu.BindGroupLayout{r.cameraLayout}
	if setup.textured {
		groups = append(groups, r.textureLayout)
	}
	if setup.block {
		groups = append(groups, r.blockLayout)
	}
	layout, err := r.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            p.Name,
		BindGroupLayouts: groups,
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline layout creation failed: %w", err)
	}
	defer layout.Release()

	return r.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  p.Name,
		Layout: layout,
		Vertex: wgpu.VertexState{
			Module:     shader,
			EntryPoint: "vs_main",
			Buffers:    setup.buffers,
		},
		Fragment: &wgpu.FragmentState{
			Module:     shader,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{{
				Format:    r.swapChainFormat,
				Blend:     &alphaBlend,
				WriteMask: wgpu.ColorWriteMask_All,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology: setup.topology,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
}
