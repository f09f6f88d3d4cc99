// Package testutil generates synthetic scenes and fixtures for tests and
// locates the repository's testdata tree.
package testutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

var (
	rootOnce sync.Once
	root     string
	rootErr  error
)

// GetProjectRoot returns the directory holding go.mod, searching upwards
// from this source file. The result is cached.
func GetProjectRoot() (string, error) {
	rootOnce.Do(func() {
		_, file, _, ok := runtime.Caller(0)
		if !ok {
			rootErr = errors.New("failed to get caller information")
			return
		}
		root, rootErr = findUp(filepath.Dir(file), "go.mod")
	})
	return root, rootErr
}

// findUp returns the first directory at or above start that contains name.
func findUp(start, name string) (string, error) {
	for dir := start; ; {
		if FileExists(filepath.Join(dir, name)) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("could not find %s above %s", name, start)
		}
		dir = parent
	}
}

// TestDataDir returns testdata/<kind> under the project root, e.g. "images"
// or "fixtures".
func TestDataDir(kind string) (string, error) {
	r, err := GetProjectRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(r, "testdata", kind), nil
}

// EnsureDir creates path and its parents.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o750)
}

// FileExists reports whether path exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// DirExists reports whether path is a directory.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
