// Package targettest provides an in-memory target.Host for tests.
package targettest

import (
	"context"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
)

// Host records every command and keeps files in a map. Command behavior
// can be overridden per test via RunFunc.
type Host struct {
	Files    map[string][]byte
	Modes    map[string]fs.FileMode
	Dirs     []string
	Commands [][]string

	// RunFunc, when set, handles Run calls. The invocation is recorded
	// either way.
	RunFunc func(name string, args []string) ([]byte, error)
}

// New creates an empty fake host.
func New() *Host {
	return &Host{
		Files: make(map[string][]byte),
		Modes: make(map[string]fs.FileMode),
	}
}

func (h *Host) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	invocation := append([]string{name}, args...)
	h.Commands = append(h.Commands, invocation)

	if h.RunFunc != nil {
		return h.RunFunc(name, args)
	}
	if name == "id" {
		return []byte("0\n"), nil
	}
	if name == "iptables-save" {
		return []byte("# fake ruleset\n"), nil
	}
	return nil, nil
}

func (h *Host) WriteFile(p string, data []byte, perm fs.FileMode) error {
	h.Files[p] = append([]byte(nil), data...)
	h.Modes[p] = perm
	return nil
}

func (h *Host) ReadFile(p string) ([]byte, error) {
	data, ok := h.Files[p]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: p, Err: os.ErrNotExist}
	}
	return append([]byte(nil), data...), nil
}

func (h *Host) Exists(p string) (bool, error) {
	_, ok := h.Files[p]
	return ok, nil
}

func (h *Host) MkdirAll(p string, _ fs.FileMode) error {
	h.Dirs = append(h.Dirs, p)
	return nil
}

func (h *Host) Glob(pattern string) ([]string, error) {
	var matches []string
	for p := range h.Files {
		ok, err := path.Match(pattern, p)
		if err != nil {
			return nil, err
		}
		if ok {
			matches = append(matches, p)
		}
	}
	sort.Strings(matches)
	return matches, nil
}

func (h *Host) Remove(p string) error {
	if _, ok := h.Files[p]; !ok {
		return &fs.PathError{Op: "remove", Path: p, Err: os.ErrNotExist}
	}
	delete(h.Files, p)
	delete(h.Modes, p)
	return nil
}

// Ran reports whether a command starting with the given words was run.
func (h *Host) Ran(words ...string) bool {
	for _, cmd := range h.Commands {
		if len(cmd) < len(words) {
			continue
		}
		if strings.Join(cmd[:len(words)], " ") == strings.Join(words, " ") {
			return true
		}
	}
	return false
}

// Snapshot returns a copy of the current file contents.
func (h *Host) Snapshot() map[string][]byte {
	snap := make(map[string][]byte, len(h.Files))
	for p, data := range h.Files {
		snap[p] = append([]byte(nil), data...)
	}
	return snap
}
