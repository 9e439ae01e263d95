// Package discovery enumerates the candidate files of a research directory
// in a deterministic order.
package discovery

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/errors"
)

// Options filter discovered files. Include and Exclude hold filepath.Match
// patterns tested against both the base name and the slash-separated path
// relative to the root. An excluded directory is not descended into.
type Options struct {
	Include       []string
	Exclude       []string
	Recursive     bool
	IncludeHidden bool
	MaxFiles      int
}

// OptionsFromConfig maps the discovery section of cfg. maxFiles caps the
// result; zero means no cap.
func OptionsFromConfig(cfg config.DiscoveryConfig, maxFiles int) Options {
	return Options{
		Include:       cfg.Include,
		Exclude:       cfg.Exclude,
		Recursive:     cfg.Recursive,
		IncludeHidden: cfg.IncludeHidden,
		MaxFiles:      maxFiles,
	}
}

// ValidateRoot returns the absolute form of root, or an error wrapping
// ErrInvalidDirectory when root is not an existing directory.
func ValidateRoot(root string) (string, error) {
	if strings.TrimSpace(root) == "" {
		return "", fmt.Errorf("%w: directory is empty", apperrors.ErrInvalidDirectory)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", apperrors.ErrInvalidDirectory, root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s does not exist", apperrors.ErrInvalidDirectory, root)
		}
		return "", fmt.Errorf("%w: %s: %v", apperrors.ErrInvalidDirectory, root, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", apperrors.ErrInvalidDirectory, root)
	}
	return abs, nil
}

// Discover returns the regular files under root that pass opts, as
// absolute paths in lexical order. Unreadable subdirectories are skipped
// with a warning.
func Discover(root string, opts Options) ([]string, error) {
	abs, err := ValidateRoot(root)
	if err != nil {
		return nil, err
	}
	logger := slog.Default().With("component", "discovery")

	var paths []string
	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == abs {
				return err
			}
			logger.Warn("skipping unreadable path", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == abs {
			return nil
		}
		rel, relErr := filepath.Rel(abs, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		name := d.Name()

		if d.IsDir() {
			if !opts.Recursive || (!opts.IncludeHidden && isHidden(name)) || matchAny(opts.Exclude, name, rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if !opts.IncludeHidden && isHidden(name) {
			return nil
		}
		if matchAny(opts.Exclude, name, rel) {
			return nil
		}
		if len(opts.Include) > 0 && !matchAny(opts.Include, name, rel) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: walking %s: %v", apperrors.ErrInvalidDirectory, root, err)
	}

	sort.Strings(paths)
	if opts.MaxFiles > 0 && len(paths) > opts.MaxFiles {
		logger.Warn("file limit reached, truncating discovery",
			"found", len(paths),
			"limit", opts.MaxFiles,
		)
		paths = paths[:opts.MaxFiles]
	}
	return paths, nil
}

// Stats summarises a set of files.
type Stats struct {
	TotalFiles        int            `json:"total_files"`
	TotalSize         int64          `json:"total_size"`
	CountsByExtension map[string]int `json:"counts_by_extension"`
}

// GetStats sums the sizes of paths and counts them by lower-cased
// extension. Files without an extension count under "(none)". Paths that
// cannot be stat'ed are left out.
func GetStats(paths []string) Stats {
	s := Stats{CountsByExtension: make(map[string]int)}
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || info.IsDir() {
			continue
		}
		s.TotalFiles++
		s.TotalSize += info.Size()
		ext := strings.ToLower(filepath.Ext(p))
		if ext == "" {
			ext = "(none)"
		}
		s.CountsByExtension[ext]++
	}
	return s
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

func matchAny(patterns []string, name, rel string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
		if ok, _ := filepath.Match(p, rel); ok {
			return true
		}
	}
	return false
}
