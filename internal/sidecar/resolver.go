package sidecar

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// Resolver locates the on-disk sidecar binary.
type Resolver interface {
	Resolve(name string) (string, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(name string) (string, error)

func (f ResolverFunc) Resolve(name string) (string, error) { return f(name) }

// ResourceDirResolver maps name to <Dir>/binaries/<name>, adding ".exe" on
// Windows. An empty Dir uses DefaultResourceDir. Existence is not checked;
// a missing binary surfaces when the process is spawned.
type ResourceDirResolver struct {
	Dir string
}

func (r ResourceDirResolver) Resolve(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, `/\`) {
		return "", errors.New("invalid sidecar name " + strconv.Quote(name))
	}
	dir := r.Dir
	if dir == "" {
		d, err := DefaultResourceDir()
		if err != nil {
			return "", err
		}
		dir = d
	}
	if runtime.GOOS == "windows" && !strings.EqualFold(filepath.Ext(name), ".exe") {
		name += ".exe"
	}
	return filepath.Join(dir, "binaries", name), nil
}

// DefaultResourceDir is the directory holding bundled resources: the
// executable's directory, or Contents/Resources inside a macOS app bundle.
func DefaultResourceDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	dir := filepath.Dir(exe)
	if runtime.GOOS == "darwin" && filepath.Base(dir) == "MacOS" {
		return filepath.Join(filepath.Dir(dir), "Resources"), nil
	}
	return dir, nil
}
