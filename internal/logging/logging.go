// Package logging routes the standard logger to stderr and an optional file.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
)

var (
	mu      sync.Mutex
	logFile *os.File
)

// Init points the standard logger at stderr and, when logPath is set, at
// logPath as well. quiet drops stderr, for full-screen interfaces that own
// the terminal.
func Init(logPath string, quiet bool) error {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	var writers []io.Writer
	if !quiet {
		writers = append(writers, os.Stderr)
	}

	if logPath != "" {
		if dir := filepath.Dir(logPath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		logFile = file
		writers = append(writers, logFile)
	}

	if len(writers) == 0 {
		log.SetOutput(io.Discard)
		return nil
	}
	log.SetOutput(io.MultiWriter(writers...))
	return nil
}

func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return nil
	}
	log.SetOutput(os.Stderr)
	err := logFile.Close()
	logFile = nil
	return err
}

// Event logs a formatted line with a component tag, e.g. "[ingest] doc1: 3 chunks".
func Event(component, format string, args ...any) {
	log.Printf("[%s] %s", component, fmt.Sprintf(format, args...))
}
