package logging

import (
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRotatingWriterBasic(t *testing.T) {
	t.Run("writes to file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "strand.log")

		rw, err := NewRotatingWriter(path, RotationConfig{MaxSizeMB: 1})
		if err != nil {
			t.Fatalf("NewRotatingWriter failed: %v", err)
		}
		defer rw.Close()

		msg := []byte("hello\n")
		n, err := rw.Write(msg)
		if err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		if n != len(msg) {
			t.Errorf("expected %d bytes written, got %d", len(msg), n)
		}

		content, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read log file: %v", err)
		}
		if !bytes.Equal(content, msg) {
			t.Errorf("file content = %q, want %q", content, msg)
		}
	})

	t.Run("creates parent directories", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "a", "b", "strand.log")

		rw, err := NewRotatingWriter(path, DefaultRotationConfig())
		if err != nil {
			t.Fatalf("NewRotatingWriter failed: %v", err)
		}
		rw.Close()

		if _, err := os.Stat(path); err != nil {
			t.Errorf("log file not created: %v", err)
		}
	})

	t.Run("resumes size from existing file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "strand.log")
		if err := os.WriteFile(path, []byte("previous run\n"), 0644); err != nil {
			t.Fatal(err)
		}

		rw, err := NewRotatingWriter(path, DefaultRotationConfig())
		if err != nil {
			t.Fatalf("NewRotatingWriter failed: %v", err)
		}
		defer rw.Close()

		if rw.CurrentSize() != int64(len("previous run\n")) {
			t.Errorf("CurrentSize = %d, want %d", rw.CurrentSize(), len("previous run\n"))
		}
	})

	t.Run("write after close fails", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "strand.log")

		rw, err := NewRotatingWriter(path, DefaultRotationConfig())
		if err != nil {
			t.Fatalf("NewRotatingWriter failed: %v", err)
		}
		rw.Close()

		if _, err := rw.Write([]byte("x")); err == nil {
			t.Error("expected write after close to fail")
		}
	})

	t.Run("close is idempotent", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "strand.log")

		rw, err := NewRotatingWriter(path, DefaultRotationConfig())
		if err != nil {
			t.Fatalf("NewRotatingWriter failed: %v", err)
		}
		if err := rw.Close(); err != nil {
			t.Errorf("first Close failed: %v", err)
		}
		if err := rw.Close(); err != nil {
			t.Errorf("second Close failed: %v", err)
		}
	})
}

// tinyRotatingWriter builds a writer with a 1MB limit whose size counter is
// primed so the next write of more than `slack` bytes triggers rotation.
func tinyRotatingWriter(t *testing.T, path string, config RotationConfig, slack int64) *RotatingWriter {
	t.Helper()

	config.MaxSizeMB = 1
	rw, err := NewRotatingWriter(path, config)
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	rw.mu.Lock()
	rw.size = rw.maxBytes - slack
	rw.mu.Unlock()
	return rw
}

func TestRotation(t *testing.T) {
	t.Run("rotates when size limit exceeded", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "strand.log")

		rw := tinyRotatingWriter(t, path, RotationConfig{MaxBackups: 3}, 1)
		defer rw.Close()

		if _, err := rw.Write([]byte("overflow\n")); err != nil {
			t.Fatalf("Write failed: %v", err)
		}

		if _, err := os.Stat(path + ".1"); err != nil {
			t.Errorf("expected backup file after rotation: %v", err)
		}
		if rw.CurrentSize() != int64(len("overflow\n")) {
			t.Errorf("CurrentSize = %d after rotation, want %d", rw.CurrentSize(), len("overflow\n"))
		}
	})

	t.Run("shifts old backups and drops the oldest", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "strand.log")

		// Pre-existing backups .1 and .2 with MaxBackups=2: .2 must be
		// dropped, .1 must become .2.
		if err := os.WriteFile(path+".1", []byte("newest"), 0644); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path+".2", []byte("oldest"), 0644); err != nil {
			t.Fatal(err)
		}

		rw := tinyRotatingWriter(t, path, RotationConfig{MaxBackups: 2}, 1)
		defer rw.Close()

		if _, err := rw.Write([]byte("overflow\n")); err != nil {
			t.Fatalf("Write failed: %v", err)
		}

		shifted, err := os.ReadFile(path + ".2")
		if err != nil {
			t.Fatalf("expected .2 backup: %v", err)
		}
		if string(shifted) != "newest" {
			t.Errorf(".2 content = %q, want %q", shifted, "newest")
		}
		if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
			t.Error("expected no .3 backup beyond MaxBackups")
		}
	})

	t.Run("zero MaxBackups keeps no backups", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "strand.log")

		rw := tinyRotatingWriter(t, path, RotationConfig{MaxBackups: 0}, 1)
		defer rw.Close()

		if _, err := rw.Write([]byte("first overflow\n")); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		if _, err := rw.Write(bytes.Repeat([]byte("x"), 2*1024*1024)); err != nil {
			t.Fatalf("Write failed: %v", err)
		}

		// The second rotation removes the .1 left by the first before
		// renaming, so exactly one backup can exist at a time.
		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatal(err)
		}
		backups := 0
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), "strand.log.") {
				backups++
			}
		}
		if backups > 1 {
			t.Errorf("expected at most 1 backup with MaxBackups=0, got %d", backups)
		}
	})

	t.Run("no rotation when MaxSizeMB is zero", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "strand.log")

		rw, err := NewRotatingWriter(path, RotationConfig{MaxSizeMB: 0})
		if err != nil {
			t.Fatalf("NewRotatingWriter failed: %v", err)
		}
		defer rw.Close()

		if _, err := rw.Write(bytes.Repeat([]byte("y"), 64*1024)); err != nil {
			t.Fatalf("Write failed: %v", err)
		}

		if _, err := os.Stat(path + ".1"); !os.IsNotExist(err) {
			t.Error("expected no rotation when MaxSizeMB is 0")
		}
	})
}

func TestCompression(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "strand.log")

	rw := tinyRotatingWriter(t, path, RotationConfig{MaxBackups: 2, Compress: true}, 1)
	defer rw.Close()

	if _, err := rw.Write([]byte("compressed backup\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// Compression runs in a goroutine; poll for the .gz file.
	gzPath := path + ".1.gz"
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(gzPath); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("compressed backup %s never appeared", gzPath)
		}
		time.Sleep(10 * time.Millisecond)
	}

	f, err := os.Open(gzPath)
	if err != nil {
		t.Fatalf("failed to open compressed backup: %v", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("backup is not valid gzip: %v", err)
	}
	if _, err := io.ReadAll(gz); err != nil {
		t.Fatalf("failed to decompress backup: %v", err)
	}

	// The uncompressed original is removed after compression.
	deadline = time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(path + ".1"); os.IsNotExist(err) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("uncompressed backup was not removed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDefaultRotationConfig(t *testing.T) {
	cfg := DefaultRotationConfig()
	if cfg.MaxSizeMB != 10 {
		t.Errorf("MaxSizeMB = %d, want 10", cfg.MaxSizeMB)
	}
	if cfg.MaxBackups != 3 {
		t.Errorf("MaxBackups = %d, want 3", cfg.MaxBackups)
	}
	if cfg.Compress {
		t.Error("Compress should default to false")
	}
}

func TestNewLoggerWithRotation(t *testing.T) {
	t.Run("writes through rotating writer", func(t *testing.T) {
		dir := t.TempDir()

		logger, err := NewLoggerWithRotation(dir, LevelDebug, DefaultRotationConfig())
		if err != nil {
			t.Fatalf("NewLoggerWithRotation failed: %v", err)
		}

		logger.Info("rotated hello", "n", 1)
		if err := logger.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}

		entries := readLogLines(t, dir)
		if len(entries) != 1 {
			t.Fatalf("expected 1 log line, got %d", len(entries))
		}
		if entries[0]["msg"] != "rotated hello" {
			t.Errorf("msg = %v, want %q", entries[0]["msg"], "rotated hello")
		}
	})

	t.Run("empty dir falls back to stderr", func(t *testing.T) {
		logger, err := NewLoggerWithRotation("", LevelInfo, DefaultRotationConfig())
		if err != nil {
			t.Fatalf("NewLoggerWithRotation failed: %v", err)
		}
		defer logger.Close()

		if logger.closer != nil {
			t.Error("expected no closer when dir is empty")
		}
	})
}
