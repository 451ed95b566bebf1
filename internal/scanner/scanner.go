package scanner

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrPathTraversal is returned when a relative path would leave the root
var ErrPathTraversal = errors.New("path traversal detected")

// Supported file extensions
const (
	ExtEML  = ".eml"
	ExtMbox = ".mbox"
)

// Scanner scans directories for .eml files and .mbox archives
type Scanner struct {
	rootPath string
}

// NewScanner creates a new scanner for the given root path
func NewScanner(rootPath string) *Scanner {
	return &Scanner{
		rootPath: rootPath,
	}
}

// GetRootPath returns the root path for resolving relative paths
func (s *Scanner) GetRootPath() string {
	return s.rootPath
}

// Resolve turns a path returned by Scan back into a filesystem path.
// Absolute paths and paths climbing out of the root are rejected.
func (s *Scanner) Resolve(relPath string) (string, error) {
	native := filepath.FromSlash(relPath)
	if filepath.IsAbs(native) || strings.HasPrefix(relPath, "/") {
		return "", fmt.Errorf("%w: absolute path %q", ErrPathTraversal, relPath)
	}

	clean := filepath.Clean(native)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, relPath)
	}

	return filepath.Join(s.rootPath, clean), nil
}

// MemberSource names the index-th message (zero based) of an mbox archive
func MemberSource(relPath string, index int) string {
	return relPath + "#" + strconv.Itoa(index)
}

// SplitSource reverses MemberSource. Plain .eml paths come back with index -1.
func SplitSource(source string) (string, int) {
	i := strings.LastIndexByte(source, '#')
	if i < 0 || !IsMbox(source[:i]) {
		return source, -1
	}
	n, err := strconv.Atoi(source[i+1:])
	if err != nil || n < 0 {
		return source, -1
	}
	return source[:i], n
}

// IsMbox reports whether path names an mbox archive
func IsMbox(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ExtMbox)
}

func supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ExtEML || ext == ExtMbox
}

// Scan recursively scans for supported files and returns paths relative to
// rootPath, using forward slashes on every platform.
func (s *Scanner) Scan() ([]string, error) {
	var files []string

	absRoot, err := filepath.Abs(s.rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute root path: %w", err)
	}

	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("error accessing path %s: %w", path, err)
		}
		if d.IsDir() || !supported(path) {
			return nil
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil {
			return fmt.Errorf("failed to get relative path for %s: %w", path, err)
		}
		files = append(files, filepath.ToSlash(relPath))

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan directory: %w", err)
	}

	return files, nil
}

// Count counts the supported files without collecting their paths
func (s *Scanner) Count() (int, error) {
	count := 0

	err := filepath.WalkDir(s.rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && supported(path) {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count files: %w", err)
	}

	return count, nil
}
