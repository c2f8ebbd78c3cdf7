// Package worker defines the messages exchanged between layers and their
// background schedulers, and a queued pool that runs decode jobs off the
// render goroutine.
package worker

import (
	"fmt"

	"vectormap/pkg/tiles"
)

// Tileset describes what a scheduler fetches.
type Tileset struct {
	Name string
	Zoom tiles.ZoomRange
}

// Request is sent from a layer to its scheduler.
type Request interface {
	request()
}

// Initialize configures the scheduler. It must be the first request.
type Initialize struct {
	Tileset Tileset
}

// Load asks the scheduler to treat Data as the fetched payload of ID.
type Load struct {
	ID   tiles.TileID
	Data []byte
}

// UpdateViewport replaces the visible region.
type UpdateViewport struct {
	Viewport tiles.Viewport
}

// TileLoaded reports that the layer finished decoding ID.
type TileLoaded struct {
	ID tiles.TileID
}

func (Initialize) request()     {}
func (Load) request()           {}
func (UpdateViewport) request() {}
func (TileLoaded) request()     {}

// Command is sent from a scheduler back to its layer.
type Command interface {
	command()
}

// LoadTile hands a fetched payload to the layer. Ownership of Data moves
// with the message.
type LoadTile struct {
	ID   tiles.TileID
	Data []byte
}

// UnloadTiles lists tiles the layer should drop.
type UnloadTiles struct {
	IDs []tiles.TileID
}

// UpdateFetchState reports whether any fetch is in flight.
type UpdateFetchState struct {
	Fetching bool
}

func (LoadTile) command()         {}
func (UnloadTiles) command()      {}
func (UpdateFetchState) command() {}

// RequestKind names a request for logs.
func RequestKind(r Request) string {
	switch r.(type) {
	case Initialize:
		return "initialize"
	case Load:
		return "load"
	case UpdateViewport:
		return "update-viewport"
	case TileLoaded:
		return "tile-loaded"
	}
	panic(fmt.Sprintf("worker: unknown request %T", r))
}

// CommandKind names a command for logs.
func CommandKind(c Command) string {
	switch c.(type) {
	case LoadTile:
		return "load-tile"
	case UnloadTiles:
		return "unload-tiles"
	case UpdateFetchState:
		return "update-fetch-state"
	}
	panic(fmt.Sprintf("worker: unknown command %T", c))
}
