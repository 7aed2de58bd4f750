package log

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	mu    sync.Mutex
	files []*logFile
)

type logFile struct {
	mu sync.Mutex
	f  *os.File
	w  *bufio.Writer
}

func (lf *logFile) Write(p []byte) (int, error) {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	return lf.w.Write(p)
}

func (lf *logFile) flush() {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	_ = lf.w.Flush()
}

func (lf *logFile) close() {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	_ = lf.w.Flush()
	_ = lf.f.Close()
}

// NewLogger returns a logger writing to stdout and to a new file under
// logDir. name is used as file prefix, empty means the process log.
func NewLogger(debug bool, logDir, name string) (*slog.Logger, error) {
	if logDir == "" {
		logDir = "logs"
	}
	if err := os.MkdirAll(logDir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("error creating log directory: %w", err)
	}

	prefix := "farmbot"
	if name != "" {
		prefix = "agent-" + name
	}
	fileName := filepath.Join(logDir, fmt.Sprintf("%s-log-%s.txt", prefix, time.Now().Format("2006-01-02-15-04-05")))
	f, err := os.OpenFile(fileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("error opening log file: %w", err)
	}

	lf := &logFile{f: f, w: bufio.NewWriterSize(f, 64*1024)}
	mu.Lock()
	files = append(files, lf)
	mu.Unlock()

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.String(a.Key, a.Value.Time().Format("15:04:05"))
			}
			return a
		},
	}

	return slog.New(slog.NewTextHandler(io.MultiWriter(os.Stdout, lf), opts)), nil
}

// FlushLog writes buffered lines of every open log file to disk.
func FlushLog() {
	mu.Lock()
	defer mu.Unlock()
	for _, lf := range files {
		lf.flush()
	}
}

func FlushAndClose() {
	mu.Lock()
	defer mu.Unlock()
	for _, lf := range files {
		lf.close()
	}
	files = nil
}
