package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	log "github.com/sirupsen/logrus"

	"vectormap/internal/config"
	"vectormap/internal/seed"
	"vectormap/internal/tilesource"
	"vectormap/internal/viewer"
)

func parseBound(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("bound %q: want west,south,east,north", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("bound %q: %w", s, err)
		}
		v[i] = f
	}
	if v[0] > v[2] || v[1] > v[3] {
		return orb.Bound{}, fmt.Errorf("bound %q: min exceeds max", s)
	}
	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}

func runSeed(ctx context.Context, args []string) error {
	var (
		c        common
		bound    string
		minZoom  int
		maxZoom  int
		workers  int
		output   string
		progress bool
	)
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	c.register(fs)
	fs.StringVar(&bound, "b", "-180,-85,180,85", "region `west,south,east,north` in degrees")
	fs.IntVar(&minZoom, "min", 0, "first zoom level")
	fs.IntVar(&maxZoom, "max", 4, "last zoom level")
	fs.IntVar(&workers, "w", 4, "concurrent fetches")
	fs.StringVar(&output, "o", "tiles.mbtiles", "output `file`")
	fs.BoolVar(&progress, "p", true, "show progress bars")
	fs.Parse(args)

	b, err := parseBound(bound)
	if err != nil {
		return err
	}
	cfg, ts, err := c.setup()
	if err != nil {
		return err
	}
	src, closer, err := viewer.OpenSource(ts, cfg.Fetch)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	out, err := tilesource.CreateMBTiles(output)
	if err != nil {
		return err
	}
	defer func() {
		if err := out.Close(); err != nil {
			log.Warnf("close %s: %v", output, err)
		}
	}()

	format := "pbf"
	if ts.Type == config.Raster {
		format = "png"
	}
	meta := map[string]string{
		"name":    ts.Name,
		"format":  format,
		"minzoom": strconv.Itoa(minZoom),
		"maxzoom": strconv.Itoa(maxZoom),
		"bounds":  fmt.Sprintf("%g,%g,%g,%g", b.Min[0], b.Min[1], b.Max[0], b.Max[1]),
	}
	for k, v := range meta {
		if err := out.SetMetadata(k, v); err != nil {
			return fmt.Errorf("metadata %s: %w", k, err)
		}
	}

	stats, err := seed.Run(ctx, seed.Options{
		Source:   src,
		Sink:     out,
		Bound:    b,
		MinZoom:  minZoom,
		MaxZoom:  maxZoom,
		Workers:  workers,
		Gzip:     ts.Type == config.Vector,
		Progress: progress,
	})
	if err != nil {
		return err
	}
	fmt.Printf("task %s: %d stored, %d missing, %d failed of %d\n", stats.ID, stats.Stored, stats.Missing, stats.Failed, stats.Total)
	return nil
}
