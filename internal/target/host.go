// Package target abstracts the host being provisioned. Every stage talks
// to the machine through the Host interface, so the same workflow runs
// against the local system, a remote Alpine box over SSH, or a fake in
// tests.
package target

import (
	"context"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
)

// Host is the capability a provisioning stage gets: run a command and do
// a handful of file operations on the target machine.
type Host interface {
	// Run executes a command and returns its combined output.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
	WriteFile(path string, data []byte, perm fs.FileMode) error
	ReadFile(path string) ([]byte, error)
	Exists(path string) (bool, error)
	MkdirAll(path string, perm fs.FileMode) error
	// Glob returns the paths matching pattern, sorted ascending.
	Glob(pattern string) ([]string, error)
	Remove(path string) error
}

// Local is the Host implementation for the machine the tool runs on.
type Local struct{}

// NewLocal creates a Host backed by the local filesystem and os/exec.
func NewLocal() *Local {
	return &Local{}
}

func (l *Local) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}

func (l *Local) WriteFile(path string, data []byte, perm fs.FileMode) error {
	if err := os.WriteFile(path, data, perm); err != nil {
		return err
	}
	// os.WriteFile does not change the mode of an existing file.
	return os.Chmod(path, perm)
}

func (l *Local) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (l *Local) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (l *Local) MkdirAll(path string, perm fs.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (l *Local) Glob(pattern string) ([]string, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

func (l *Local) Remove(path string) error {
	return os.Remove(path)
}
