// Package logutil provides prefixed loggers whose output can be redirected
// after they are created.
package logutil

import (
	"io"
	"log"
	"os"
	"sync"
)

var (
	mu      sync.Mutex
	out     io.Writer = io.Discard
	outFile *os.File
	loggers []*log.Logger
)

// GetLogger returns a logger with the given prefix. Loggers are normally
// stored in package-level variables:
//
//	var logger = logutil.GetLogger("[modload] ")
func GetLogger(prefix string) *log.Logger {
	mu.Lock()
	defer mu.Unlock()
	l := log.New(out, prefix, log.LstdFlags|log.Lmicroseconds|log.Lmsgprefix)
	loggers = append(loggers, l)
	return l
}

// SetOutput redirects all loggers, existing and future, to w.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	closeOutFile()
	setOutput(w)
}

// SetOutputFile redirects all loggers to the named file, which is created or
// appended to. An empty name discards log output.
func SetOutputFile(name string) error {
	if name == "" {
		SetOutput(io.Discard)
		return nil
	}
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	closeOutFile()
	outFile = f
	setOutput(f)
	return nil
}

func setOutput(w io.Writer) {
	out = w
	for _, l := range loggers {
		l.SetOutput(w)
	}
}

func closeOutFile() {
	if outFile != nil {
		outFile.Close()
		outFile = nil
	}
}
