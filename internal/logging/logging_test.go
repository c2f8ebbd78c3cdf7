package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
)

func TestInitWritesDatedFile(t *testing.T) {
	dir := t.TempDir()
	closer, err := Init(Options{Level: "debug", Dir: dir, Quiet: true})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		log.SetOutput(os.Stderr)
		log.SetLevel(log.InfoLevel)
	})

	log.WithField("tile", "3/1/2").Debug("decoded")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, time.Now().Format("2006-01-02.log")))
	if err != nil {
		t.Fatal(err)
	}
	line := string(data)
	for _, want := range []string{"decoded", "3/1/2", "DEBUG"} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %q lacks %q", line, want)
		}
	}
}

func TestInitUnknownLevel(t *testing.T) {
	closer, err := Init(Options{Level: "loud", Quiet: true})
	if err != nil {
		t.Fatal(err)
	}
	defer closer.Close()
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	if log.GetLevel() != log.InfoLevel {
		t.Errorf("level = %v", log.GetLevel())
	}
}
