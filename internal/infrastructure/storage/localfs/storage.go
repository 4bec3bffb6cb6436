// Package localfs manages index directories on the local filesystem. A new
// artifact set is written into a staging sibling and then swapped in.
package localfs

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// StageDir creates an empty staging directory next to target.
func StageDir(target string) (string, error) {
	parent := filepath.Dir(filepath.Clean(target))
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", fmt.Errorf("create index parent dir: %w", err)
	}
	staged, err := os.MkdirTemp(parent, "."+filepath.Base(target)+".staging-")
	if err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	return staged, nil
}

// Publish replaces target with staged. The previous target is moved aside
// first and restored if the final rename fails.
func Publish(staged, target string) error {
	target = filepath.Clean(target)
	backup := ""
	if _, err := os.Stat(target); err == nil {
		backup = fmt.Sprintf("%s.previous-%d", target, time.Now().UnixNano())
		if err := os.Rename(target, backup); err != nil {
			return fmt.Errorf("move previous index aside: %w", err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat index dir: %w", err)
	}

	if err := os.Rename(staged, target); err != nil {
		if backup != "" {
			_ = os.Rename(backup, target)
		}
		return fmt.Errorf("publish index dir: %w", err)
	}
	if backup != "" {
		if err := os.RemoveAll(backup); err != nil {
			return fmt.Errorf("remove previous index: %w", err)
		}
	}
	return nil
}

// Discard removes a staging directory after a failed build.
func Discard(staged string) {
	if staged != "" {
		_ = os.RemoveAll(staged)
	}
}

// WriteFile streams an artifact to path and fsyncs it.
func WriteFile(path string, write func(io.Writer) error) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	buf := bufio.NewWriter(f)
	if err := write(buf); err != nil {
		return err
	}
	if err := buf.Flush(); err != nil {
		return fmt.Errorf("flush file: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync file: %w", err)
	}
	return f.Close()
}

// Exists reports whether path names an existing regular file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
