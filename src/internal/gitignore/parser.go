// Package gitignore expands directory arguments into the source files a run should
// open, skipping what .gitignore files and common tool directories exclude.
package gitignore

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// Pattern is one line of a .gitignore file
type Pattern struct {
	pattern  string
	negation bool
	dirOnly  bool
	anchored bool
}

// GitIgnore holds the patterns of a single .gitignore, relative to its directory
type GitIgnore struct {
	patterns []Pattern
	baseDir  string
}

// ParseGitIgnoreFile reads filePath. A missing file yields an empty GitIgnore.
func ParseGitIgnoreFile(filePath string) (*GitIgnore, error) {
	gi := &GitIgnore{baseDir: filepath.Dir(filePath)}

	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return gi, nil
		}
		return nil, err
	}
	defer func() { _ = file.Close() }()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if p, ok := parsePattern(scanner.Text()); ok {
			gi.patterns = append(gi.patterns, p)
		}
	}
	return gi, scanner.Err()
}

// ParseGitIgnore builds a GitIgnore from in-memory lines
func ParseGitIgnore(baseDir string, lines []string) *GitIgnore {
	gi := &GitIgnore{baseDir: baseDir}
	for _, line := range lines {
		if p, ok := parsePattern(line); ok {
			gi.patterns = append(gi.patterns, p)
		}
	}
	return gi
}

func parsePattern(line string) (Pattern, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Pattern{}, false
	}

	var p Pattern
	if strings.HasPrefix(line, "!") {
		p.negation = true
		line = line[1:]
	}
	if strings.HasPrefix(line, "\\!") || strings.HasPrefix(line, "\\#") {
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		p.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}
	// a slash anywhere but the end ties the pattern to baseDir
	if strings.Contains(line, "/") && !strings.HasPrefix(line, "**/") {
		p.anchored = true
		line = strings.TrimPrefix(line, "/")
	}
	if line == "" {
		return Pattern{}, false
	}

	p.pattern = line
	return p, true
}

// Match reports whether path is ignored. The last matching pattern wins, so a
// negation re-includes what an earlier line excluded.
func (gi *GitIgnore) Match(path string, isDir bool) (ignored, matched bool) {
	if gi == nil || len(gi.patterns) == 0 {
		return false, false
	}

	relPath, err := filepath.Rel(gi.baseDir, path)
	if err != nil || strings.HasPrefix(relPath, "..") {
		return false, false
	}
	relPath = filepath.ToSlash(relPath)

	for _, p := range gi.patterns {
		if p.dirOnly && !isDir {
			continue
		}
		if p.matches(relPath) {
			ignored = !p.negation
			matched = true
		}
	}
	return ignored, matched
}

func (p Pattern) matches(relPath string) bool {
	if strings.Contains(p.pattern, "**") {
		return matchDoubleAsterisk(p.pattern, relPath)
	}
	if p.anchored {
		ok, _ := filepath.Match(p.pattern, relPath)
		return ok
	}

	// unanchored patterns match the name at any depth
	ok, _ := filepath.Match(p.pattern, relPath[strings.LastIndex(relPath, "/")+1:])
	return ok
}

// matchDoubleAsterisk handles "**/x", "a/**/x" and "a/**"
func matchDoubleAsterisk(pattern, path string) bool {
	if pattern == "**" {
		return true
	}

	if rest, ok := strings.CutPrefix(pattern, "**/"); ok {
		parts := strings.Split(path, "/")
		for i := range parts {
			if matchDoubleAsterisk(rest, strings.Join(parts[i:], "/")) {
				return true
			}
		}
		return false
	}

	if prefix, ok := strings.CutSuffix(pattern, "/**"); ok {
		return strings.HasPrefix(path, prefix+"/")
	}

	if i := strings.Index(pattern, "/**/"); i >= 0 {
		prefix, suffix := pattern[:i], pattern[i+4:]
		parts := strings.Split(path, "/")
		for j := 1; j <= len(parts); j++ {
			head := strings.Join(parts[:j], "/")
			if ok, _ := filepath.Match(prefix, head); !ok {
				continue
			}
			for k := j; k < len(parts); k++ {
				if matchDoubleAsterisk(suffix, strings.Join(parts[k:], "/")) {
					return true
				}
			}
		}
		return false
	}

	ok, _ := filepath.Match(pattern, path)
	return ok
}
