package gitignore

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"lsp-tester/src/internal/common"
	"lsp-tester/src/internal/registry"
)

// Directories never descended into, whatever .gitignore says
var defaultSkipDirs = map[string]bool{
	".git":         true,
	".svn":         true,
	".hg":          true,
	".bzr":         true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	".idea":        true,
	".vscode":      true,
	"target":       true,
}

// ShouldSkipDirectory reports whether a directory name is one of the default skips
func ShouldSkipDirectory(name string) bool {
	return defaultSkipDirs[name]
}

// Collector expands run arguments into files
type Collector struct {
	extensions map[string]bool
	cache      map[string]*GitIgnore
	logger     *common.SafeLogger
}

// NewCollector creates a collector keeping files with one of extensions.
// With no extensions every file of a registered language is kept.
func NewCollector(extensions []string) *Collector {
	c := &Collector{
		extensions: make(map[string]bool, len(extensions)),
		cache:      make(map[string]*GitIgnore),
		logger:     common.CLILogger,
	}
	for _, ext := range extensions {
		c.extensions[strings.ToLower(ext)] = true
	}
	return c
}

// Collect returns files as given and replaces each directory with the matching
// files below it, in lexical order. A path named twice is kept once.
func (c *Collector) Collect(paths []string) ([]string, error) {
	var files []string
	seen := make(map[string]bool)
	add := func(path string) {
		abs, err := common.AbsPath(path)
		if err != nil {
			abs = path
		}
		if !seen[abs] {
			seen[abs] = true
			files = append(files, path)
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil || !info.IsDir() {
			// missing files are reported by the run itself
			add(path)
			continue
		}

		found, err := c.walk(path)
		if err != nil {
			return nil, err
		}
		if len(found) == 0 {
			c.logger.Warn("No matching source files under %s", path)
		}
		for _, f := range found {
			add(f)
		}
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no source files found in %s", strings.Join(paths, ", "))
	}
	return files, nil
}

func (c *Collector) walk(top string) ([]string, error) {
	var found []string
	err := filepath.WalkDir(top, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("failed to walk %s: %w", path, err)
		}
		if path == top {
			return nil
		}

		if d.IsDir() {
			if defaultSkipDirs[d.Name()] || c.ignored(top, path, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && c.wanted(path) && !c.ignored(top, path, false) {
			found = append(found, path)
		}
		return nil
	})
	return found, err
}

func (c *Collector) wanted(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if len(c.extensions) > 0 {
		return c.extensions[ext]
	}
	_, ok := registry.GetLanguageByExtension(ext)
	return ok
}

// ignored applies the .gitignore of every directory from top down to path's
// parent; a deeper file overrides a shallower one.
func (c *Collector) ignored(top, path string, isDir bool) bool {
	rel, err := filepath.Rel(top, filepath.Dir(path))
	if err != nil {
		return false
	}

	dirs := []string{top}
	if rel != "." {
		dir := top
		for _, part := range strings.Split(rel, string(filepath.Separator)) {
			dir = filepath.Join(dir, part)
			dirs = append(dirs, dir)
		}
	}

	ignored := false
	for _, dir := range dirs {
		if ign, matched := c.load(dir).Match(path, isDir); matched {
			ignored = ign
		}
	}
	return ignored
}

func (c *Collector) load(dir string) *GitIgnore {
	if gi, ok := c.cache[dir]; ok {
		return gi
	}
	gi, err := ParseGitIgnoreFile(filepath.Join(dir, ".gitignore"))
	if err != nil {
		c.logger.Warn("Ignoring unreadable .gitignore in %s: %v", dir, err)
		gi = nil
	}
	c.cache[dir] = gi
	return gi
}
