package hls

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// ErrForbiddenPath is returned when a requested path resolves outside the root.
var ErrForbiddenPath = errors.New("path escapes media root")

// Resolve joins the slash-separated reqPath under root and returns the
// cleaned absolute path. Paths that normalize to root itself or to anything
// outside it are rejected without touching the filesystem.
func Resolve(root, reqPath string) (string, error) {
	if strings.ContainsRune(reqPath, 0) {
		return "", ErrForbiddenPath
	}
	resolved := filepath.Join(root, filepath.FromSlash(reqPath))
	if !within(resolved, root) || resolved == filepath.Clean(root) {
		return "", ErrForbiddenPath
	}
	return resolved, nil
}

// within reports whether p is root or lies below it. Both must be clean.
func within(p, root string) bool {
	root = filepath.Clean(root)
	if p == root {
		return true
	}
	return strings.HasPrefix(p, root+string(os.PathSeparator))
}
