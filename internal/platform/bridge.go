// Package platform exposes the host-platform bridge used by desktop builds to
// resolve bundled resources. Browser-served builds run without one.
package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// ErrNoBridge is returned by callers that need a bridge when none is configured.
var ErrNoBridge = errors.New("host platform bridge not available")

// Bridge resolves and reads bundled resources. It is passed explicitly to the
// components that need it; none of them may assume it exists.
type Bridge interface {
	// ResourcePath returns the root directory of bundled public resources.
	ResourcePath() string
	// LocalPath maps an app-relative path such as "/data/playlist.json"
	// into the resource root.
	LocalPath(relative string) string
	ReadFile(path string) ([]byte, error)
	// ReadDirectory lists entry names in lexical order.
	ReadDirectory(path string) ([]string, error)
	FileExists(path string) bool
}

// Desktop is the filesystem-backed bridge. In development the resource root
// is <cwd>/public; packaged builds use <resourcesPath>/public.
type Desktop struct {
	root string
}

// NewDesktop creates a bridge rooted according to the packaging mode.
func NewDesktop(packaged bool, resourcesPath string) *Desktop {
	base := resourcesPath
	if !packaged || base == "" {
		cwd, err := os.Getwd()
		if err != nil {
			log.Warn().Err(err).Msg("Cannot determine working directory, using relative resource root")
			cwd = "."
		}
		base = cwd
	}
	return &Desktop{root: filepath.Join(base, "public")}
}

// NewDesktopAt creates a bridge with an explicit resource root.
func NewDesktopAt(root string) *Desktop {
	return &Desktop{root: root}
}

// ResourcePath returns the resource root.
func (d *Desktop) ResourcePath() string {
	return d.root
}

// LocalPath joins relative onto the resource root. Leading slashes are
// ignored and the result never escapes the root.
func (d *Desktop) LocalPath(relative string) string {
	rel := strings.TrimLeft(filepath.ToSlash(relative), "/")
	clean := filepath.Clean("/" + rel)
	return filepath.Join(d.root, filepath.FromSlash(clean))
}

// ReadFile reads a whole file.
func (d *Desktop) ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// ReadDirectory lists the names in a directory.
func (d *Desktop) ReadDirectory(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", path, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// FileExists reports whether path exists. Stat errors other than
// non-existence are logged and reported as missing.
func (d *Desktop) FileExists(path string) bool {
	_, err := os.Stat(path)
	if err == nil {
		return true
	}
	if !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("path", path).Msg("Failed to check file")
	}
	return false
}
