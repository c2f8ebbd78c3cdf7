package tilesource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"vectormap/pkg/tiles"
)

// DefaultUserAgent identifies the viewer to tile servers.
const DefaultUserAgent = "vectormap/1.0"

// HTTPOptions configures an HTTP source.
type HTTPOptions struct {
	// URL is a template containing {z}, {x} and {y}.
	URL       string
	UserAgent string
	Timeout   time.Duration
	// CacheDir keeps fetched tiles on disk when set.
	CacheDir string
	// Extension names cached files, e.g. "pbf" or "png".
	Extension string
	Client    *http.Client
}

type call struct {
	done chan struct{}
	data []byte
	err  error
}

// HTTP fetches tiles from a templated URL with an optional disk cache.
// Concurrent fetches of one tile share a single request.
type HTTP struct {
	opts   HTTPOptions
	client *http.Client

	mu       sync.Mutex
	inFlight map[tiles.TileID]*call
}

// NewHTTP creates the source and its cache directory.
func NewHTTP(opts HTTPOptions) (*HTTP, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("tile source needs a URL template")
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Extension == "" {
		opts.Extension = "tile"
	}
	if opts.CacheDir != "" {
		if err := os.MkdirAll(opts.CacheDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &HTTP{opts: opts, client: client, inFlight: make(map[tiles.TileID]*call)}, nil
}

// tilePath returns the file path for a cached tile.
func (s *HTTP) tilePath(id tiles.TileID) string {
	return filepath.Join(s.opts.CacheDir, fmt.Sprintf("%d_%d_%d.%s", id.Zoom, id.X, id.Y, s.opts.Extension))
}

// IsCached reports whether id is on disk.
func (s *HTTP) IsCached(id tiles.TileID) bool {
	if s.opts.CacheDir == "" {
		return false
	}
	_, err := os.Stat(s.tilePath(id))
	return err == nil
}

// Fetch returns the cached tile or downloads it. A 404 is ErrNotFound.
func (s *HTTP) Fetch(ctx context.Context, id tiles.TileID) ([]byte, error) {
	if s.opts.CacheDir != "" {
		if data, err := os.ReadFile(s.tilePath(id)); err == nil {
			return data, nil
		}
	}

	s.mu.Lock()
	if c, ok := s.inFlight[id]; ok {
		s.mu.Unlock()
		select {
		case <-c.done:
			return c.data, c.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	c := &call{done: make(chan struct{})}
	s.inFlight[id] = c
	s.mu.Unlock()

	c.data, c.err = s.download(ctx, id)

	s.mu.Lock()
	delete(s.inFlight, id)
	close(c.done)
	s.mu.Unlock()
	return c.data, c.err
}

func (s *HTTP) download(ctx context.Context, id tiles.TileID) ([]byte, error) {
	start := time.Now()
	url := id.URL(s.opts.URL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.opts.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tile %s: %w", id, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusNoContent:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, url)
	default:
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read tile %s: %w", id, err)
	}

	if s.opts.CacheDir != "" {
		if err := os.WriteFile(s.tilePath(id), data, 0o644); err != nil {
			log.WithField("tile", id).Warnf("failed to cache tile: %v", err)
		}
	}
	log.WithFields(log.Fields{
		"tile":  id,
		"bytes": len(data),
		"ms":    time.Since(start).Milliseconds(),
	}).Debug("tile fetched")
	return data, nil
}
