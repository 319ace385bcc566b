// Package pathresolver chooses the on-disk storage root for a process: a
// project-local ".dexto" directory during development, or a user-global one
// otherwise, with explicit overrides taking precedence. It generalizes the
// same project-vs-global path-resolution pattern internal/config uses for
// its own bootstrap files into the storage root selection rules of the
// Core, instead of a fixed set of XDG subdirectories.
package pathresolver

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dexto-ai/dexto-core/internal/storage"
)

const markerDir = ".dexto"

// manifestFiles are project manifests whose presence marks a directory as a
// project root even without an existing .dexto marker. Only the file's
// presence is checked; its contents, including any dependencies it
// declares, are not read.
var manifestFiles = []string{"go.mod", "package.json"}

// Options configures a single resolution call. It is the mutable input
// consumed to produce a storage.Context.
type Options struct {
	// StartDir is where project-root detection begins walking upward from.
	// Defaults to the process working directory.
	StartDir string

	// IsDevelopment favors the project-local root over the user-global one.
	IsDevelopment bool

	// ForceGlobal pins resolution to the user-global root.
	ForceGlobal bool

	// CustomRoot, if set, is used verbatim.
	CustomRoot string
}

// Resolve applies the precedence rules above and returns a populated
// storage.Context with its StorageRoot directory created (idempotently).
// Resolve never falls back silently: if the chosen root cannot be created,
// it returns a clear error naming that root.
func Resolve(opts Options) (storage.Context, error) {
	ctx := storage.Context{
		IsDevelopment: opts.IsDevelopment,
		ForceGlobal:   opts.ForceGlobal,
		CustomRoot:    opts.CustomRoot,
	}

	startDir := opts.StartDir
	if startDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return storage.Context{}, fmt.Errorf("pathresolver: resolve working directory: %w", err)
		}
		startDir = wd
	}

	projectRoot := detectProjectRoot(startDir)
	ctx.ProjectRoot = projectRoot

	root, err := choose(ctx, startDir, projectRoot)
	if err != nil {
		return storage.Context{}, err
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return storage.Context{}, fmt.Errorf("pathresolver: create storage root %q: %w", root, err)
	}

	ctx.StorageRoot = root
	return ctx, nil
}

func choose(ctx storage.Context, startDir, projectRoot string) (string, error) {
	// 1. Explicit override.
	if ctx.CustomRoot != "" {
		return ctx.CustomRoot, nil
	}

	// 2. Forced global.
	if ctx.ForceGlobal {
		return globalRoot()
	}

	// 3. Project-local during development, or if it already exists and is
	// writable.
	if projectRoot != "" {
		local := filepath.Join(projectRoot, markerDir)
		if ctx.IsDevelopment || writableDir(local) {
			return local, nil
		}
	}

	// 4. Otherwise user-global.
	return globalRoot()
}

func globalRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("pathresolver: resolve home directory: %w", err)
	}
	return filepath.Join(home, markerDir), nil
}

// detectProjectRoot walks upward from dir looking for an existing .dexto
// marker directory or a manifest file, returning the first directory where
// either is found. Returns "" if neither is found before reaching the
// filesystem root.
func detectProjectRoot(dir string) string {
	for {
		if info, err := os.Stat(filepath.Join(dir, markerDir)); err == nil && info.IsDir() {
			return dir
		}
		for _, manifest := range manifestFiles {
			if _, err := os.Stat(filepath.Join(dir, manifest)); err == nil {
				return dir
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// writableDir reports whether path exists, is a directory, and accepts a new
// file (probed by creating and removing a temporary file in it).
func writableDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}
	probe, err := os.CreateTemp(path, ".write-probe-*")
	if err != nil {
		return false
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)
	return true
}
