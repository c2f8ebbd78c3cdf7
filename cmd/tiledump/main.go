// Command tiledump inspects single tiles and seeds MBTiles archives from the
// tilesets of a viewer configuration.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"vectormap/internal/config"
	"vectormap/internal/logging"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: tiledump <command> [flags]

Commands:
  inspect  fetch one tile and print its layers and decoded draw groups
  seed     copy a region of a tileset into an MBTiles archive

Run tiledump <command> -h for the flags of a command.
`)
}

// common flags shared by every command
type common struct {
	configPath string
	tileset    string
	logLevel   string
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "c", "", "set config `file`")
	fs.StringVar(&c.tileset, "t", "", "tileset `name` (default: the first)")
	fs.StringVar(&c.logLevel, "l", "info", "set log level")
}

func (c *common) setup() (*config.Config, config.Tileset, error) {
	if _, err := logging.Init(logging.Options{Level: c.logLevel}); err != nil {
		return nil, config.Tileset{}, err
	}
	cfg, err := config.Read(c.configPath)
	if err != nil {
		return nil, config.Tileset{}, err
	}
	if len(cfg.Tilesets) == 0 {
		return nil, config.Tileset{}, fmt.Errorf("no tilesets configured")
	}
	if c.tileset == "" {
		return cfg, cfg.Tilesets[0], nil
	}
	for _, ts := range cfg.Tilesets {
		if ts.Name == c.tileset {
			return cfg, ts, nil
		}
	}
	return nil, config.Tileset{}, fmt.Errorf("no tileset named %q", c.tileset)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "inspect":
		err = runInspect(ctx, os.Args[2:])
	case "seed":
		err = runSeed(ctx, os.Args[2:])
	case "-h", "--help", "help":
		usage()
		return
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Errorf("%s: %v", os.Args[1], err)
		os.Exit(1)
	}
}
