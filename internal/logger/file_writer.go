package logger

import (
	"bufio"
	"fmt"
	"os"
	"sync"
	"time"
)

const (
	// LogFilePermissions restricts log files to the owning user
	LogFilePermissions = 0o600

	defaultBufferSize    = 32 * 1024
	defaultFlushInterval = 5 * time.Second
)

// BufferedFileWriter is a goroutine-safe buffered appender with periodic
// flushing. Close flushes and fsyncs.
type BufferedFileWriter struct {
	mu        sync.Mutex
	file      *os.File
	writer    *bufio.Writer
	path      string
	stopFlush chan struct{}
	flushDone chan struct{}
	closed    bool
}

// NewBufferedFileWriter opens path in append mode and starts the flush loop.
func NewBufferedFileWriter(path string, flushInterval time.Duration) (*BufferedFileWriter, error) {
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, LogFilePermissions) //nolint:gosec // path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	w := &BufferedFileWriter{
		file:      file,
		writer:    bufio.NewWriterSize(file, defaultBufferSize),
		path:      path,
		stopFlush: make(chan struct{}),
		flushDone: make(chan struct{}),
	}
	go w.flushLoop(flushInterval)
	return w, nil
}

func (w *BufferedFileWriter) flushLoop(interval time.Duration) {
	defer close(w.flushDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = w.Flush()
		case <-w.stopFlush:
			return
		}
	}
}

// Write implements io.Writer
func (w *BufferedFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, os.ErrClosed
	}
	return w.writer.Write(p)
}

// Flush pushes buffered bytes to the OS
func (w *BufferedFileWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	return w.writer.Flush()
}

// Close stops the flush loop, flushes, syncs and closes the file.
func (w *BufferedFileWriter) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.stopFlush)
	err := w.writer.Flush()
	if syncErr := w.file.Sync(); err == nil {
		err = syncErr
	}
	if closeErr := w.file.Close(); err == nil {
		err = closeErr
	}
	w.mu.Unlock()

	<-w.flushDone
	return err
}

// Path returns the file path the writer appends to
func (w *BufferedFileWriter) Path() string {
	return w.path
}
