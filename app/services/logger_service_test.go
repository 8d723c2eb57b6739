package services

import (
	"bytes"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoggerService_WriterLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerServiceWithWriter(&buf)

	logger.LogInfo("order created", "ORD-20260210-0001")
	logger.LogWarning("printer slow")
	logger.LogError("print failed", errors.New("connection refused"))
	logger.LogInfo("job printed", "job=KOT-1", "target=KITCHEN")

	out := buf.String()
	for _, want := range []string{
		"[INFO] order created | ORD-20260210-0001",
		"[WARNING] printer slow",
		"[ERROR] print failed | Error: connection refused",
		"[INFO] job printed | job=KOT-1 | target=KITCHEN",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestLoggerService_RecoverPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerServiceWithWriter(&buf)

	func() {
		defer logger.RecoverPanic()
		panic("boom")
	}()

	if !strings.Contains(buf.String(), "[PANIC] Recovered from panic: boom") {
		t.Errorf("panic not logged:\n%s", buf.String())
	}
}

func TestLoggerService_FileAndCleanup(t *testing.T) {
	dir := t.TempDir()
	stdOut := log.Writer()
	stdFlags := log.Flags()
	t.Cleanup(func() {
		log.SetOutput(stdOut)
		log.SetFlags(stdFlags)
	})

	logger := NewLoggerService(dir)
	defer logger.Close()

	today := filepath.Join(dir, time.Now().Format("2006-01-02")+".log")
	if _, err := os.Stat(today); err != nil {
		t.Fatalf("today's log file missing: %v", err)
	}

	old := filepath.Join(dir, "2000-01-01.log")
	if err := os.WriteFile(old, []byte("old\n"), 0644); err != nil {
		t.Fatal(err)
	}
	past := time.Now().AddDate(0, 0, -40)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatal(err)
	}

	if err := logger.CleanOldLogs(30); err != nil {
		t.Fatalf("CleanOldLogs() error = %v", err)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("old log file was not removed")
	}
	if _, err := os.Stat(today); err != nil {
		t.Error("today's log file was removed")
	}
}
