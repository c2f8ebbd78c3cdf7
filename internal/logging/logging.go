// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/shiena/ansicolor"
	log "github.com/sirupsen/logrus"
)

// Options selects where log lines go.
type Options struct {
	Level string
	// Dir receives a dated log file when set.
	Dir string
	// Quiet drops terminal output.
	Quiet bool
}

// Formatter is the line format shared by the terminal and the log file.
func Formatter() log.Formatter {
	return &nested.Formatter{
		HideKeys:        true,
		ShowFullLevel:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	}
}

// Init sets the standard logger's formatter, output and level. The returned
// closer releases the log file, if any. An unknown level falls back to info.
func Init(opts Options) (io.Closer, error) {
	log.SetFormatter(Formatter())

	var (
		writers []io.Writer
		file    *os.File
	)
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, os.ModePerm); err != nil {
			return nil, fmt.Errorf("log dir: %w", err)
		}
		name := filepath.Join(opts.Dir, time.Now().Format("2006-01-02.log"))
		f, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("log file: %w", err)
		}
		file = f
		writers = append(writers, f)
	}
	if !opts.Quiet {
		writers = append(writers, os.Stdout)
	}
	log.SetOutput(ansicolor.NewAnsiColorWriter(io.MultiWriter(writers...)))

	level, err := log.ParseLevel(opts.Level)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if file == nil {
		return nopCloser{}, nil
	}
	return file, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
