package renderer

// cameraShader is prepended to every program. Positions arrive in world space,
// either as float32 or split into hi/lo halves.
const cameraShader = `
struct Camera {
    center: vec4<f32>,
    scale: vec2<f32>,
    pixel: vec2<f32>,
    zoom: f32,
}

@group(0) @binding(0) var<uniform> camera: Camera;

fn split_rel(p: vec4<f32>) -> vec2<f32> {
    return vec2<f32>((p.x - camera.center.x) + (p.y - camera.center.y),
                     (p.z - camera.center.z) + (p.w - camera.center.w));
}

fn world_rel(p: vec2<f32>) -> vec2<f32> {
    return split_rel(vec4<f32>(p.x, 0.0, p.y, 0.0));
}

fn to_clip(rel: vec2<f32>, pixels: vec2<f32>) -> vec4<f32> {
    return vec4<f32>(rel * camera.scale + pixels * camera.pixel, 0.0, 1.0);
}

fn unpack_color(c: u32) -> vec4<f32> {
    return unpack4x8unorm(c).wzyx;
}

fn corner(vid: u32) -> vec2<f32> {
    return vec2<f32>(f32(vid & 1u), f32(vid >> 1u));
}
`

const lineShader = `
struct LineOut {
    @builtin(position) position: vec4<f32>,
    @location(0) fill: vec4<f32>,
    @location(1) stroke: vec4<f32>,
    @location(2) across: f32,
    @location(3) radius: f32,
    @location(4) @interpolate(flat) stipple: u32,
    @location(5) along: f32,
}

@vertex
fn vs_main(
    @builtin(vertex_index) vid: u32,
    @location(0) ends: vec4<f32>,
    @location(1) fill: u32,
    @location(2) stroke: u32,
    @location(3) dist_radius: vec2<f32>,
    @location(4) stipple: u32,
) -> LineOut {
    let c = corner(vid);
    let a = world_rel(ends.xy);
    let b = world_rel(ends.zw);
    let dir_px = (b - a) * camera.scale / camera.pixel;
    let len_px = max(length(dir_px), 0.0001);
    let normal = vec2<f32>(-dir_px.y, dir_px.x) / len_px;
    let side = c.y * 2.0 - 1.0;
    let radius = max(dist_radius.y, 0.5);

    var out: LineOut;
    out.position = to_clip(mix(a, b, c.x), normal * side * radius);
    out.fill = unpack_color(fill);
    out.stroke = unpack_color(stroke);
    out.across = side * radius;
    out.radius = radius;
    out.stipple = stipple;
    out.along = dist_radius.x * camera.scale.x / camera.pixel.x + c.x * len_px;
    return out;
}

@fragment
fn fs_main(in: LineOut) -> @location(0) vec4<f32> {
    if (in.stipple != 0u && fract(in.along / 8.0) > 0.5) {
        discard;
    }
    if (in.stroke.a > 0.0 && abs(in.across) > in.radius - 1.0) {
        return in.stroke;
    }
    return in.fill;
}
`

const lineCapShader = `
struct CapOut {
    @builtin(position) position: vec4<f32>,
    @location(0) fill: vec4<f32>,
    @location(1) offset: vec2<f32>,
    @location(2) radius: f32,
}

@vertex
fn vs_main(
    @builtin(vertex_index) vid: u32,
    @location(0) ends: vec4<f32>,
    @location(1) fill: u32,
    @location(2) stroke: u32,
    @location(3) dist_radius: vec2<f32>,
    @location(4) stipple: u32,
) -> CapOut {
    let radius = max(dist_radius.y, 0.5);
    let offset = (corner(vid) * 2.0 - 1.0) * radius;

    var out: CapOut;
    out.position = to_clip(world_rel(ends.zw), offset);
    out.fill = unpack_color(fill);
    out.offset = offset;
    out.radius = radius;
    return out;
}

@fragment
fn fs_main(in: CapOut) -> @location(0) vec4<f32> {
    if (length(in.offset) > in.radius) {
        discard;
    }
    return in.fill;
}
`

const triangleShader = `
struct TriangleOut {
    @builtin(position) position: vec4<f32>,
    @location(0) fill: vec4<f32>,
}

@vertex
fn vs_main(@location(0) position: vec2<f32>, @location(1) fill: u32) -> TriangleOut {
    var out: TriangleOut;
    out.position = to_clip(world_rel(position), vec2<f32>(0.0, 0.0));
    out.fill = unpack_color(fill);
    return out;
}

@fragment
fn fs_main(in: TriangleOut) -> @location(0) vec4<f32> {
    return in.fill;
}
`

const texturedShader = `
@group(1) @binding(0) var tex_sampler: sampler;
@group(1) @binding(1) var tex: texture_2d<f32>;

struct TexturedOut {
    @builtin(position) position: vec4<f32>,
    @location(0) uv: vec2<f32>,
    @location(1) tint: vec4<f32>,
}
`

const glyphShader = texturedShader + `
@vertex
fn vs_main(
    @builtin(vertex_index) vid: u32,
    @location(0) center: vec4<f32>,
    @location(1) offset_size: vec4<f32>,
    @location(2) uv: vec4<f32>,
    @location(3) fill: u32,
    @location(4) stroke: u32,
    @location(5) angle_scale: vec2<f32>,
) -> TexturedOut {
    let c = corner(vid);
    let local = (offset_size.xy + (c - 0.5) * vec2<f32>(offset_size.z, -offset_size.w)) * angle_scale.y;
    let s = sin(angle_scale.x);
    let k = cos(angle_scale.x);
    let rotated = vec2<f32>(local.x * k - local.y * s, local.x * s + local.y * k);

    var out: TexturedOut;
    out.position = to_clip(split_rel(center), rotated);
    out.uv = mix(uv.xy, uv.zw, c);
    out.tint = unpack_color(fill);
    return out;
}

@fragment
fn fs_main(in: TexturedOut) -> @location(0) vec4<f32> {
    let a = textureSample(tex, tex_sampler, in.uv).a;
    return vec4<f32>(in.tint.rgb, in.tint.a * a);
}
`

const billboardShader = texturedShader + `
struct Billboard {
    center: vec4<f32>,
    offset_size: vec4<f32>,
    uv: vec4<f32>,
    tint: u32,
}

@group(2) @binding(0) var<uniform> block: Billboard;

@vertex
fn vs_main(@builtin(vertex_index) vid: u32) -> TexturedOut {
    let c = corner(vid);
    let pixels = block.offset_size.xy + (c - 0.5) * vec2<f32>(block.offset_size.z, -block.offset_size.w);

    var out: TexturedOut;
    out.position = to_clip(split_rel(block.center), pixels);
    out.uv = mix(block.uv.xy, block.uv.zw, c);
    out.tint = unpack_color(block.tint);
    return out;
}

@fragment
fn fs_main(in: TexturedOut) -> @location(0) vec4<f32> {
    let color = textureSample(tex, tex_sampler, in.uv);
    if (in.tint.a == 0.0) {
        return color;
    }
    return color * in.tint;
}
`

const rasterShader = texturedShader + `
struct Raster {
    low: vec4<f32>,
    high: vec4<f32>,
}

@group(2) @binding(0) var<uniform> block: Raster;

@vertex
fn vs_main(@builtin(vertex_index) vid: u32) -> TexturedOut {
    let c = corner(vid);
    let low = split_rel(block.low);
    let high = split_rel(block.high);

    var out: TexturedOut;
    out.position = to_clip(mix(low, high, c), vec2<f32>(0.0, 0.0));
    out.uv = vec2<f32>(c.x, 1.0 - c.y);
    out.tint = vec4<f32>(1.0, 1.0, 1.0, 1.0);
    return out;
}

@fragment
fn fs_main(in: TexturedOut) -> @location(0) vec4<f32> {
    return textureSample(tex, tex_sampler, in.uv);
}
`
