package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"vectormap/internal/app"
	"vectormap/internal/config"
	"vectormap/internal/logging"
)

var (
	hf         bool
	configPath string
	logLevel   string
)

func initFlag() {
	flag.BoolVar(&hf, "h", false, "this help")
	flag.StringVar(&configPath, "c", "", "set config `file`; the camera position is saved back to it")
	flag.StringVar(&logLevel, "l", "", "override the configured log level")
	flag.Usage = usage
	flag.Parse()

	if hf {
		flag.Usage()
		os.Exit(0)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: mapviewer [-h] [-c filename] [-l logLevel]

Controls:
  Mouse drag    : Pan
  Mouse wheel   : Zoom
  WASD / Arrows : Pan
  Shift / =     : Zoom in
  Space / -     : Zoom out
  Escape        : Exit

`)
	flag.PrintDefaults()
}

func main() {
	initFlag()

	if err := config.Load(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Get()
	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	logFile, err := logging.Init(logging.Options{Level: level, Dir: cfg.Log.Dir})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, configPath)
	if err != nil {
		log.Errorf("start: %v", err)
		os.Exit(1)
	}
	defer application.Cleanup()

	if err := application.Run(ctx); err != nil {
		log.Errorf("run: %v", err)
	}
}
