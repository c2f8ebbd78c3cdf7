// Package app runs the map in a GLFW window drawn with WebGPU.
package app

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/rajveermalviya/go-webgpu/wgpu"
	log "github.com/sirupsen/logrus"

	"vectormap/internal/camera"
	"vectormap/internal/config"
	"vectormap/internal/renderer"
	"vectormap/internal/viewer"
)

const (
	// KeyPanSpeed is the pixels panned per frame while a key is held.
	KeyPanSpeed = 10.0
	// KeyZoomStep is the zoom change of one key press.
	KeyZoomStep = 1.0
)

type App struct {
	cfg        *config.Config
	configPath string

	window   *glfw.Window
	instance *wgpu.Instance
	surface  *wgpu.Surface
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	renderer *renderer.Renderer
	viewer   *viewer.Viewer
	camera   *camera.Camera

	keys   map[glfw.Key]bool
	keysMu sync.RWMutex

	// moved is set by input and cleared once the frame is drawn.
	moved bool

	width, height int
}

// New opens the window and builds the map cfg describes. configPath, when
// set, receives the last camera position on Cleanup.
func New(ctx context.Context, cfg *config.Config, configPath string) (*App, error) {
	runtime.LockOSThread()

	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("GLFW init failed: %w", err)
	}

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.CocoaRetinaFramebuffer, glfw.True)

	window, err := glfw.CreateWindow(cfg.Window.Width, cfg.Window.Height, cfg.Window.Title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("window creation failed: %w", err)
	}

	app := &App{
		cfg:        cfg,
		configPath: configPath,
		window:     window,
		keys:       make(map[glfw.Key]bool),
		moved:      true,
	}
	app.width, app.height = window.GetFramebufferSize()

	if err := app.initWebGPU(); err != nil {
		app.Cleanup()
		return nil, err
	}

	app.renderer, err = renderer.NewRenderer(app.adapter, app.device, app.queue, app.surface, uint32(app.width), uint32(app.height))
	if err != nil {
		app.Cleanup()
		return nil, fmt.Errorf("renderer creation failed: %w", err)
	}

	app.viewer, err = viewer.New(ctx, cfg, app.renderer)
	if err != nil {
		app.Cleanup()
		return nil, fmt.Errorf("map creation failed: %w", err)
	}

	app.camera = camera.NewCamera(cfg.Camera.Lat, cfg.Camera.Lng, cfg.Camera.Zoom, app.width, app.height)
	app.setupCallbacks()

	return app, nil
}

func (app *App) initWebGPU() error {
	app.instance = wgpu.CreateInstance(&wgpu.InstanceDescriptor{
		Backends: instanceBackends,
	})
	if app.instance == nil {
		return fmt.Errorf("failed to create WebGPU instance")
	}

	app.surface = CreateSurface(app.instance, app.window)
	if app.surface == nil {
		return fmt.Errorf("surface creation failed")
	}

	var err error
	app.adapter, err = app.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: app.surface,
		PowerPreference:   wgpu.PowerPreference_HighPerformance,
	})
	if err != nil {
		log.Warnf("no adapter for the surface (%v), trying without", err)
		app.adapter, err = app.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
			PowerPreference: wgpu.PowerPreference_HighPerformance,
		})
		if err != nil {
			return fmt.Errorf("adapter request failed: %w", err)
		}
	}

	props := app.adapter.GetProperties()
	log.WithField("driver", props.DriverDescription).Infof("GPU: %s", props.Name)

	app.device, err = app.adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "vectormap",
	})
	if err != nil {
		return fmt.Errorf("device request failed: %w", err)
	}

	app.queue = app.device.GetQueue()
	return nil
}

func (app *App) setupCallbacks() {
	app.window.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		app.width = width
		app.height = height
		app.camera.SetViewport(width, height)
		app.renderer.Resize(uint32(width), uint32(height))
		app.moved = true
	})

	app.window.SetMouseButtonCallback(func(w *glfw.Window, button glfw.MouseButton, action glfw.Action, mods glfw.ModifierKey) {
		if button != glfw.MouseButtonLeft {
			return
		}
		x, y := app.cursor()
		if action == glfw.Press {
			app.camera.StartDrag(x, y)
		} else {
			app.camera.EndDrag()
		}
	})

	app.window.SetCursorPosCallback(func(w *glfw.Window, _, _ float64) {
		if app.camera.IsDragging() {
			app.camera.Drag(app.cursor())
			app.moved = true
		}
	})

	app.window.SetScrollCallback(func(w *glfw.Window, xoff, yoff float64) {
		if yoff == 0 {
			return
		}
		x, y := app.cursor()
		app.camera.ZoomAtPoint(yoff/4, x, y)
		app.moved = true
	})

	app.window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		app.keysMu.Lock()
		if action == glfw.Press {
			app.keys[key] = true
		} else if action == glfw.Release {
			app.keys[key] = false
		}
		app.keysMu.Unlock()

		if action != glfw.Press {
			return
		}
		switch key {
		case glfw.KeyEscape:
			w.SetShouldClose(true)
		case glfw.KeySpace, glfw.KeyMinus:
			app.camera.ZoomTo(app.camera.Zoom - KeyZoomStep)
			app.moved = true
		case glfw.KeyLeftShift, glfw.KeyRightShift, glfw.KeyEqual:
			app.camera.ZoomTo(app.camera.Zoom + KeyZoomStep)
			app.moved = true
		}
	})
}

// cursor is the cursor position in framebuffer pixels.
func (app *App) cursor() (x, y float64) {
	x, y = app.window.GetCursorPos()
	ww, wh := app.window.GetSize()
	if ww > 0 && wh > 0 {
		x *= float64(app.width) / float64(ww)
		y *= float64(app.height) / float64(wh)
	}
	return x, y
}

func (app *App) processInput() {
	app.keysMu.RLock()
	defer app.keysMu.RUnlock()

	panX, panY := 0.0, 0.0
	if app.keys[glfw.KeyW] || app.keys[glfw.KeyUp] {
		panY += KeyPanSpeed
	}
	if app.keys[glfw.KeyS] || app.keys[glfw.KeyDown] {
		panY -= KeyPanSpeed
	}
	if app.keys[glfw.KeyA] || app.keys[glfw.KeyLeft] {
		panX += KeyPanSpeed
	}
	if app.keys[glfw.KeyD] || app.keys[glfw.KeyRight] {
		panX -= KeyPanSpeed
	}

	if panX != 0 || panY != 0 {
		app.camera.Pan(panX, panY)
		app.moved = true
	}
}

// Run draws until the window closes. A frame is drawn only when the camera
// moved or a layer changed.
func (app *App) Run(ctx context.Context) error {
	lastTime := time.Now()
	frames := 0

	for !app.window.ShouldClose() {
		if ctx.Err() != nil {
			return nil
		}
		glfw.PollEvents()
		app.processInput()

		dirty := app.moved
		if app.moved {
			if err := app.viewer.SetViewport(ctx, app.camera.Viewport()); err != nil {
				log.Errorf("viewport: %v", err)
			}
		}
		if app.viewer.Update(ctx) {
			dirty = true
		}

		if dirty {
			if err := app.drawFrame(); err != nil {
				log.Errorf("render: %v", err)
			} else {
				frames++
			}
			app.moved = false
		} else {
			// idle until input or background work arrives
			glfw.WaitEventsTimeout(0.016)
		}

		if time.Since(lastTime) >= time.Second {
			app.updateTitle(frames)
			frames = 0
			lastTime = time.Now()
		}
	}

	return nil
}

func (app *App) drawFrame() error {
	if err := app.renderer.BeginFrame(); err != nil {
		return err
	}
	frameErr := app.viewer.Frame(app.camera.Extent(), app.camera.View())
	if err := app.renderer.EndFrame(); err != nil {
		return err
	}
	return frameErr
}

func (app *App) updateTitle(fps int) {
	title := fmt.Sprintf("%s | Zoom: %.1f | FPS: %d", app.cfg.Window.Title, app.camera.Zoom, fps)
	if app.viewer.Loading() {
		title += " | loading"
	}
	app.window.SetTitle(title)
}

// Cleanup releases the map, the GPU and the window, and saves the camera
// position when a config path was given.
func (app *App) Cleanup() {
	if app.camera != nil {
		lat, lng := app.camera.LatLng()
		config.SetCamera(lat, lng, app.camera.Zoom)
		if app.configPath != "" {
			if err := config.Save(app.configPath); err != nil {
				log.Warnf("save camera: %v", err)
			}
		}
	}
	if app.viewer != nil {
		app.viewer.Close()
	}
	if app.renderer != nil {
		app.renderer.Release()
	}
	if app.queue != nil {
		app.queue.Release()
	}
	if app.device != nil {
		app.device.Release()
	}
	if app.adapter != nil {
		app.adapter.Release()
	}
	if app.surface != nil {
		app.surface.Release()
	}
	if app.instance != nil {
		app.instance.Release()
	}
	if app.window != nil {
		app.window.Destroy()
	}
	glfw.Terminate()
}
