// Package pathutil confines files written on behalf of MCP clients to known
// directories.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// OutsideError reports a path that falls outside every allowed root.
type OutsideError struct {
	Path string // redacted
}

func (e *OutsideError) Error() string {
	return fmt.Sprintf("path %q is outside allowed directories", e.Path)
}

// Redact shortens path to .../<parent>/<base> for error messages, so
// "/home/user/.autoscene/renders/a.html" becomes ".../renders/a.html".
func Redact(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	parent := filepath.Base(filepath.Dir(cleaned))
	if parent == "." || parent == string(filepath.Separator) {
		return filepath.Base(cleaned)
	}
	return ".../" + parent + "/" + filepath.Base(cleaned)
}

// Confine returns the absolute, symlink-resolved form of path after
// checking that it lies inside one of roots. The file itself need not
// exist.
func Confine(path string, roots []string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is empty")
	}
	if len(roots) == 0 {
		return "", fmt.Errorf("no allowed directories configured")
	}
	if strings.ContainsRune(path, '\x00') {
		return "", fmt.Errorf("path contains a null byte")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("cannot resolve %s: %w", Redact(path), err)
	}
	dir, err := resolve(filepath.Dir(abs))
	if err != nil {
		return "", err
	}
	resolved := filepath.Join(dir, filepath.Base(abs))

	for _, root := range roots {
		rootAbs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		rootResolved, err := resolve(rootAbs)
		if err != nil {
			continue
		}
		if within(resolved, rootResolved) {
			return resolved, nil
		}
	}
	return "", &OutsideError{Path: Redact(abs)}
}

// resolve evaluates symlinks in the deepest existing ancestor of dir and
// re-appends the missing tail.
func resolve(dir string) (string, error) {
	var tail []string
	for {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			for i := len(tail) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, tail[i])
			}
			return resolved, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("cannot resolve %s", Redact(dir))
		}
		tail = append(tail, filepath.Base(dir))
		dir = parent
	}
}

func within(path, root string) bool {
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(os.PathSeparator))
}

// RenderRoots returns where MCP clients may write rendered scenarios:
// ~/.autoscene/renders and the directory holding the served container.
func RenderRoots(containerPath string) ([]string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	roots := []string{filepath.Join(home, ".autoscene", "renders")}
	if containerPath != "" {
		roots = append(roots, filepath.Dir(containerPath))
	}
	return roots, nil
}
