package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoggerWritesFileOnFlush(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(false, dir, "farmer1")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Info("Sell cycle finished")
	logger.Debug("hidden")
	FlushAndClose()

	matches, err := filepath.Glob(filepath.Join(dir, "agent-farmer1-log-*.txt"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected one log file, got %v (%v)", matches, err)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "Sell cycle finished") {
		t.Fatalf("log file missing info line: %q", data)
	}
	if strings.Contains(string(data), "hidden") {
		t.Fatalf("debug line written with debug disabled: %q", data)
	}
}
