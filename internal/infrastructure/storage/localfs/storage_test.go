package localfs

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

func writeString(t *testing.T, path, content string) {
	t.Helper()
	if err := WriteFile(path, func(w io.Writer) error {
		_, err := io.WriteString(w, content)
		return err
	}); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestPublishReplacesExistingDirectory(t *testing.T) {
	target := filepath.Join(t.TempDir(), "index")

	first, err := StageDir(target)
	if err != nil {
		t.Fatalf("StageDir() error = %v", err)
	}
	writeString(t, filepath.Join(first, "a.txt"), "v1")
	if err := Publish(first, target); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	second, err := StageDir(target)
	if err != nil {
		t.Fatalf("StageDir() error = %v", err)
	}
	writeString(t, filepath.Join(second, "a.txt"), "v2")
	if err := Publish(second, target); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(target, "a.txt"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(raw) != "v2" {
		t.Fatalf("expected v2, got %q", raw)
	}

	entries, _ := os.ReadDir(filepath.Dir(target))
	if len(entries) != 1 {
		t.Fatalf("expected only the published dir, got %d entries", len(entries))
	}
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	if Exists(path) {
		t.Fatalf("missing file reported as existing")
	}
	writeString(t, path, "x")
	if !Exists(path) {
		t.Fatalf("expected file to exist")
	}
	if Exists(dir) {
		t.Fatalf("directories are not artifacts")
	}
}
