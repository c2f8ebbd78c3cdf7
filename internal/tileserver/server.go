// Package tileserver serves a tile source over HTTP.
package tileserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/paulmach/orb"
	log "github.com/sirupsen/logrus"

	"vectormap/internal/seed"
	"vectormap/internal/tilesource"
	"vectormap/pkg/tiles"
)

// maxPrefetch caps the tiles one prefetch request may queue.
const maxPrefetch = 10_000

// Options configures a Server.
type Options struct {
	Addr string
	// Format is the tile format, "pbf", "png", "jpg" or "webp". Empty sniffs
	// the content type of each tile.
	Format string
	// PrefetchWorkers enables POST /prefetch when positive.
	PrefetchWorkers int
}

// Server provides HTTP endpoints for tile fetching
type Server struct {
	src      tilesource.Source
	opts     Options
	prefetch *Prefetcher
	server   *http.Server
}

// NewServer creates a new tile server
func NewServer(src tilesource.Source, opts Options) *Server {
	s := &Server{src: src, opts: opts}
	if opts.PrefetchWorkers > 0 {
		s.prefetch = NewPrefetcher(src, opts.PrefetchWorkers, maxPrefetch)
	}
	return s
}

// Handler routes /tile/{z}/{x}/{y}, /prefetch and /health.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/tile/", s.handleTile)
	mux.HandleFunc("/prefetch", s.handlePrefetch)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Start serves until Shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    s.opts.Addr,
		Handler: s.Handler(),
	}

	log.Infof("tile server listening on %s", s.opts.Addr)
	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for those in progress and stops
// prefetching.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}
	if s.prefetch != nil {
		s.prefetch.Close()
	}
	return err
}

// parseTilePath reads "{z}/{x}/{y}" with an optional extension on y.
func parseTilePath(path string) (tiles.TileID, error) {
	key := strings.TrimPrefix(path, "/tile/")
	if i := strings.LastIndexByte(key, '.'); i > strings.LastIndexByte(key, '/') {
		key = key[:i]
	}
	return tiles.ParseKey(key)
}

// handleTile serves tile requests: /tile/{zoom}/{x}/{y}
func (s *Server) handleTile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, err := parseTilePath(r.URL.Path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	data, err := s.src.Fetch(r.Context(), id)
	if errors.Is(err, tilesource.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		log.WithField("tile", id).Warnf("serve: %v", err)
		http.Error(w, fmt.Sprintf("Failed to get tile: %v", err), http.StatusBadGateway)
		return
	}

	if isGzip(data) {
		w.Header().Set("Content-Encoding", "gzip")
	}
	w.Header().Set("Content-Type", s.contentType(data))
	w.Header().Set("Cache-Control", "max-age=86400")
	w.Write(data)
	log.WithField("tile", id).Tracef("served %d bytes", len(data))
}

func (s *Server) contentType(data []byte) string {
	switch s.opts.Format {
	case "pbf", "mvt":
		return "application/x-protobuf"
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	}
	if isGzip(data) {
		// compressed tiles in an archive are vector tiles
		return "application/x-protobuf"
	}
	return http.DetectContentType(data)
}

func isGzip(data []byte) bool {
	return len(data) > 1 && data[0] == 0x1f && data[1] == 0x8b
}

// PrefetchRequest names a region to warm, bound as [west, south, east, north].
type PrefetchRequest struct {
	Bound   [4]float64 `json:"bound"`
	MinZoom int        `json:"minZoom"`
	MaxZoom int        `json:"maxZoom"`
}

// handlePrefetch queues every tile of a region for background fetching.
func (s *Server) handlePrefetch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.prefetch == nil {
		http.Error(w, "Prefetching disabled", http.StatusNotImplemented)
		return
	}

	var req PrefetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	b := orb.Bound{Min: orb.Point{req.Bound[0], req.Bound[1]}, Max: orb.Point{req.Bound[2], req.Bound[3]}}
	if req.MinZoom < 0 || req.MaxZoom < req.MinZoom || req.MaxZoom > 30 || b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] {
		http.Error(w, "Invalid region", http.StatusBadRequest)
		return
	}
	if n := seed.Count(b, req.MinZoom, req.MaxZoom); n > maxPrefetch {
		http.Error(w, fmt.Sprintf("Region has %d tiles, limit is %d", n, maxPrefetch), http.StatusRequestEntityTooLarge)
		return
	}

	queued := 0
	for z := req.MinZoom; z <= req.MaxZoom; z++ {
		queued += s.prefetch.Queue(seed.Cover(b, z))
	}
	log.WithField("queued", queued).Debug("prefetch queued")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{"status": "prefetching", "queued": queued})
}

// handleHealth provides a health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if c, ok := s.src.(interface{ Count() (int, error) }); ok {
		n, err := c.Count()
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]any{"status": "error", "error": err.Error()})
			return
		}
		resp["tiles"] = n
	}
	if s.prefetch != nil {
		fetched, failed := s.prefetch.Stats()
		resp["prefetched"] = fetched
		resp["prefetchFailed"] = failed
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
