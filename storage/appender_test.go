package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func openTestFile(t *testing.T, dir, name string) fileHandle {
	t.Helper()
	f, err := openFile(filepath.Join(dir, name), os.O_RDWR|os.O_CREATE, 0644, testConfig(dir))
	if err != nil {
		t.Fatalf("open %s: %v", name, err)
	}
	return f
}

func TestAppenderAppendThenFlushPersists(t *testing.T) {
	dir := t.TempDir()
	file := openTestFile(t, dir, "seg.log")
	a, err := NewAppender(file, 1<<20, 0, nil)
	if err != nil {
		t.Fatalf("new appender: %v", err)
	}
	defer a.Close()

	if _, err := a.Append([]byte("hello")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if got := a.Size(); got != 5 {
		t.Fatalf("size before flush = %d, want 5", got)
	}
	if err := a.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "seg.log"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("file contents = %q, want %q", data, "hello")
	}
}

func TestAppenderOnFlushCallback(t *testing.T) {
	dir := t.TempDir()
	file := openTestFile(t, dir, "seg.log")
	var notified int64
	a, err := NewAppender(file, 1<<20, 0, func(size int64) { notified = size })
	if err != nil {
		t.Fatalf("new appender: %v", err)
	}
	defer a.Close()

	a.Append([]byte("abcd"))
	if err := a.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if notified != 4 {
		t.Fatalf("on_flush callback saw size %d, want 4", notified)
	}
}

func TestAppenderFlushWithNothingPendingIsANoop(t *testing.T) {
	dir := t.TempDir()
	file := openTestFile(t, dir, "seg.log")
	a, err := NewAppender(file, 1<<20, 0, nil)
	if err != nil {
		t.Fatalf("new appender: %v", err)
	}
	defer a.Close()
	if err := a.Flush(); err != nil {
		t.Fatalf("flush with nothing pending: %v", err)
	}
}

func TestAppenderCloseFlushesPendingBytes(t *testing.T) {
	dir := t.TempDir()
	file := openTestFile(t, dir, "seg.log")
	a, err := NewAppender(file, 1<<20, 0, nil)
	if err != nil {
		t.Fatalf("new appender: %v", err)
	}
	a.Append([]byte("tail"))
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "seg.log"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if string(data) != "tail" {
		t.Fatalf("file contents = %q, want %q", data, "tail")
	}
}

func TestAppenderRejectsAppendAfterClose(t *testing.T) {
	dir := t.TempDir()
	file := openTestFile(t, dir, "seg.log")
	a, err := NewAppender(file, 1<<20, 0, nil)
	if err != nil {
		t.Fatalf("new appender: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := a.Append([]byte("x")); err == nil {
		t.Fatalf("expected append after close to fail")
	}
}
