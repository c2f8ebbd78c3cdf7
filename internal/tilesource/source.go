// Package tilesource fetches raw tile payloads from a tile server or a
// local MBTiles archive.
package tilesource

import (
	"context"
	"errors"
	"fmt"

	"vectormap/pkg/tiles"
)

// ErrNotFound means the source has no tile at that address. Callers treat
// such tiles as permanently empty.
var ErrNotFound = errors.New("tile not found")

// Source returns the payload of one tile.
type Source interface {
	Fetch(ctx context.Context, id tiles.TileID) ([]byte, error)
}

// StatusError is an unexpected HTTP status other than 404.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tile server returned status %d for %s", e.Code, e.URL)
}

// Func adapts a function to Source.
type Func func(ctx context.Context, id tiles.TileID) ([]byte, error)

func (f Func) Fetch(ctx context.Context, id tiles.TileID) ([]byte, error) {
	return f(ctx, id)
}
