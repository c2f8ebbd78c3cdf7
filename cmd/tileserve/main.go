// Command tileserve serves one tileset of a viewer configuration, or an
// MBTiles archive, at /tile/{z}/{x}/{y}.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"vectormap/internal/config"
	"vectormap/internal/logging"
	"vectormap/internal/tileserver"
	"vectormap/internal/tilesource"
	"vectormap/internal/viewer"
)

var (
	hf         bool
	configPath string
	tileset    string
	mbtiles    string
	addr       string
	format     string
	prefetch   int
	logLevel   string
)

func initFlag() {
	flag.BoolVar(&hf, "h", false, "this help")
	flag.StringVar(&configPath, "c", "", "set config `file`")
	flag.StringVar(&tileset, "t", "", "serve the tileset `name` from the config")
	flag.StringVar(&mbtiles, "m", "", "serve an MBTiles `file` instead of a configured tileset")
	flag.StringVar(&addr, "a", ":8080", "listen `address`")
	flag.StringVar(&format, "f", "", "tile format (pbf, png, jpg, webp); empty sniffs")
	flag.IntVar(&prefetch, "p", 4, "prefetch workers, 0 disables POST /prefetch")
	flag.StringVar(&logLevel, "l", "info", "set log level")
	flag.Usage = usage
	flag.Parse()

	if hf {
		flag.Usage()
		os.Exit(0)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: tileserve [-h] [-c file] [-t name | -m file] [-a address]
`)
	flag.PrintDefaults()
}

func openSource() (tilesource.Source, func() error, error) {
	if mbtiles != "" {
		m, err := tilesource.OpenMBTiles(mbtiles)
		if err != nil {
			return nil, nil, err
		}
		if format == "" {
			if meta, err := m.Metadata(); err == nil {
				format = meta["format"]
			}
		}
		return m, m.Close, nil
	}

	cfg, err := config.Read(configPath)
	if err != nil {
		return nil, nil, err
	}
	for _, ts := range cfg.Tilesets {
		if tileset != "" && ts.Name != tileset {
			continue
		}
		if format == "" {
			format = strings.TrimPrefix(filepath.Ext(ts.URL), ".")
		}
		src, closer, err := viewer.OpenSource(ts, cfg.Fetch)
		if err != nil {
			return nil, nil, err
		}
		if closer == nil {
			return src, func() error { return nil }, nil
		}
		return src, closer.Close, nil
	}
	return nil, nil, fmt.Errorf("no tileset named %q", tileset)
}

func main() {
	initFlag()
	if _, err := logging.Init(logging.Options{Level: logLevel}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	src, closeSource, err := openSource()
	if err != nil {
		log.Fatalf("open source: %v", err)
	}
	defer closeSource()

	server := tileserver.NewServer(src, tileserver.Options{Addr: addr, Format: format, PrefetchWorkers: prefetch})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warnf("shutdown: %v", err)
		}
	}()

	if err := server.Start(); err != nil {
		log.Errorf("serve: %v", err)
		stop()
		closeSource()
		os.Exit(1)
	}
}
