package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"sloppy/internal/logs"
)

func writeLog(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
}

func appendLog(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("append log: %v", err)
	}
}

func TestTailLastLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sloppyd.log")
	writeLog(t, path, "a\nb\nc\nd\n")

	result, err := logs.Tail(path, 2)
	if err != nil {
		t.Fatalf("Tail failed: %v", err)
	}
	if len(result.Lines) != 2 || result.Lines[0] != "c" || result.Lines[1] != "d" {
		t.Fatalf("unexpected lines: %#v", result.Lines)
	}
	if result.Offset != 8 {
		t.Fatalf("expected offset 8, got %d", result.Offset)
	}
}

func TestTailShortFileAndMissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sloppyd.log")
	writeLog(t, path, "only\n")

	result, err := logs.Tail(path, 10)
	if err != nil {
		t.Fatalf("Tail failed: %v", err)
	}
	if len(result.Lines) != 1 || result.Lines[0] != "only" {
		t.Fatalf("unexpected lines: %#v", result.Lines)
	}

	missing, err := logs.Tail(filepath.Join(dir, "absent.log"), 10)
	if err != nil {
		t.Fatalf("Tail on missing file failed: %v", err)
	}
	if len(missing.Lines) != 0 || missing.Offset != 0 {
		t.Fatalf("expected empty result, got %+v", missing)
	}
}

func TestReadFromHoldsPartialLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sloppyd.log")
	writeLog(t, path, "first\nsec")

	result, err := logs.ReadFrom(path, 0)
	if err != nil {
		t.Fatalf("ReadFrom failed: %v", err)
	}
	if len(result.Lines) != 1 || result.Offset != 6 {
		t.Fatalf("unexpected result: %+v", result)
	}

	appendLog(t, path, "ond\n")
	next, err := logs.ReadFrom(path, result.Offset)
	if err != nil {
		t.Fatalf("ReadFrom failed: %v", err)
	}
	if len(next.Lines) != 1 || next.Lines[0] != "second" {
		t.Fatalf("unexpected lines: %#v", next.Lines)
	}
}

func TestReadFromRestartsAfterTruncation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sloppyd.log")
	writeLog(t, path, "x\n")

	result, err := logs.ReadFrom(path, 100)
	if err != nil {
		t.Fatalf("ReadFrom failed: %v", err)
	}
	if len(result.Lines) != 1 || result.Lines[0] != "x" {
		t.Fatalf("expected reread after truncation, got %#v", result.Lines)
	}
}

func TestFollowStreamsAppendedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sloppyd.log")
	writeLog(t, path, "start\n")
	initial, err := logs.Tail(path, 1)
	if err != nil {
		t.Fatalf("Tail failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	var mu sync.Mutex
	var got []string
	done := make(chan error, 1)
	go func() {
		done <- logs.Follow(ctx, path, initial.Offset, 20*time.Millisecond, func(line string) {
			mu.Lock()
			got = append(got, line)
			mu.Unlock()
		})
	}()

	appendLog(t, path, "later\n")
	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for followed line")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Follow returned error: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != "later" {
		t.Fatalf("unexpected followed lines: %#v", got)
	}
}
