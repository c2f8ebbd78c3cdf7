package main

import (
	"context"
	"flag"
	"fmt"
	"sort"

	"github.com/paulmach/orb/encoding/mvt"

	"vectormap/internal/config"
	"vectormap/internal/layers"
	"vectormap/internal/style"
	"vectormap/internal/vectortile"
	"vectormap/internal/viewer"
	"vectormap/pkg/tiles"
)

func runInspect(ctx context.Context, args []string) error {
	var c common
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	c.register(fs)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: tiledump inspect [flags] z/x/y\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("expected one tile key")
	}
	id, err := tiles.ParseKey(fs.Arg(0))
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
	data, err := src.Fetch(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("tile %s from %s: %d bytes\n", id, ts.Name, len(data))

	if ts.Type == config.Raster {
		img, err := layers.DecodeRaster(data)
		if err != nil {
			return err
		}
		fmt.Printf("raster %dx%d\n", img.Rect.Dx(), img.Rect.Dy())
		return nil
	}
	return inspectVector(id, ts, cfg.Decode, data)
}

func inspectVector(id tiles.TileID, ts config.Tileset, opts config.Decode, data []byte) error {
	raw, err := mvt.UnmarshalGzipped(data)
	if err != nil {
		raw, err = mvt.Unmarshal(data)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", vectortile.ErrMalformed, err)
	}
	sort.Slice(raw, func(i, j int) bool { return raw[i].Name < raw[j].Name })
	fmt.Printf("\n%-24s %8s %8s\n", "layer", "features", "extent")
	for _, l := range raw {
		fmt.Printf("%-24s %8d %8d\n", l.Name, len(l.Features), l.Extent)
	}

	sheet := style.Default()
	if ts.Style != "" {
		if sheet, err = style.LoadFile(ts.Style); err != nil {
			return err
		}
	}
	tile, err := vectortile.NewDecoder(sheet, vectortile.Options{
		Language:                opts.Language,
		MaxTriangleLengthMeters: opts.MaxTriangleLengthMeters,
	}).Decode(id, data)
	if err != nil {
		return err
	}

	fmt.Printf("\ndecoded: %d geometry bytes, %d index bytes\n", len(tile.Geometry), len(tile.Index))
	for _, g := range tile.Lines {
		fmt.Printf("  lines     z=%-3d instances=%d\n", g.Z, g.InstanceCount)
	}
	for _, g := range tile.Polygons {
		fmt.Printf("  polygons  z=%-3d triangles=%d\n", g.Z, g.IndexCount/3)
	}
	for _, l := range tile.Labels {
		fmt.Printf("  label     z=%-3d %q zoom %d-%d\n", l.Z, l.Text(), l.MinZoom, l.MaxZoom)
	}
	return nil
}
