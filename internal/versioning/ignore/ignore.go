// Package ignore implements the ignore-list matching used when building
// a checkpoint tree (spec.md §4.4 "File filtering"): the union of a
// project's .gitignore patterns and the hardcoded default exclusions
// (spec.md GLOSSARY "Ignore list").
//
// No gitignore-pattern library appears anywhere in the example corpus
// (see DESIGN.md), so this is a small hand-rolled matcher supporting the
// common subset of gitignore syntax: comments, blank-line skipping,
// negation with "!", trailing-slash patterns ("foo/", which match a file
// named foo as well as a directory), anchored patterns ("/foo"), and
// "*"/"**" globs.
package ignore

import (
	"bufio"
	"os"
	"path"
	"strings"
)

// DefaultExcludes is the hardcoded minimum exclusion set named by
// spec.md §9 Open Question 3: version-control metadata, the tool's own
// state directory, and its RAG store, plus the common dependency/build
// artifacts every real project accumulates.
var DefaultExcludes = []string{
	".git/",
	".agentsmithy/",
	"node_modules/",
	"__pycache__/",
	".venv/",
	"venv/",
	"dist/",
	"build/",
	".DS_Store",
	"*.pyc",
}

type pattern struct {
	raw       string
	negate    bool
	dirOnly   bool
	anchored  bool
	segments  []string // pattern split on '/', used for glob matching
}

func compile(raw string) (pattern, bool) {
	line := strings.TrimRight(raw, "\r\n")
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return pattern{}, false
	}
	p := pattern{raw: trimmed}
	if strings.HasPrefix(trimmed, "!") {
		p.negate = true
		trimmed = trimmed[1:]
	}
	if strings.HasSuffix(trimmed, "/") {
		p.dirOnly = true
		trimmed = strings.TrimSuffix(trimmed, "/")
	}
	if strings.HasPrefix(trimmed, "/") {
		p.anchored = true
		trimmed = strings.TrimPrefix(trimmed, "/")
	}
	if strings.Contains(trimmed, "/") {
		p.anchored = true
	}
	p.segments = strings.Split(trimmed, "/")
	return p, true
}

// Matcher decides whether a project-relative path should be excluded
// from a checkpoint tree.
type Matcher struct {
	patterns []pattern
}

// New builds a Matcher from .gitignore content (may be nil) plus the
// hardcoded default exclusions.
func New(gitignore []byte) *Matcher {
	m := &Matcher{}
	if gitignore != nil {
		sc := bufio.NewScanner(strings.NewReader(string(gitignore)))
		for sc.Scan() {
			if p, ok := compile(sc.Text()); ok {
				m.patterns = append(m.patterns, p)
			}
		}
	}
	for _, raw := range DefaultExcludes {
		if p, ok := compile(raw); ok {
			m.patterns = append(m.patterns, p)
		}
	}
	return m
}

// Load reads .gitignore from projectRoot (if present) and builds a Matcher.
func Load(projectRoot string) (*Matcher, error) {
	data, err := os.ReadFile(path.Join(projectRoot, ".gitignore"))
	if err != nil {
		if os.IsNotExist(err) {
			return New(nil), nil
		}
		return nil, err
	}
	return New(data), nil
}

// Match reports whether relPath (slash-separated, relative to the
// project root) is excluded. isDir indicates whether relPath names a
// directory. Later patterns override earlier ones, and a "!" pattern
// re-includes a path matched by an earlier pattern, mirroring gitignore
// precedence.
func (m *Matcher) Match(relPath string, isDir bool) bool {
	_ = isDir // dir-only patterns still exclude files beneath the directory via prefix matching
	excluded := false
	segs := strings.Split(relPath, "/")
	for _, p := range m.patterns {
		if matchPattern(p, segs) {
			excluded = !p.negate
		}
	}
	return excluded
}

func matchPattern(p pattern, segs []string) bool {
	if p.anchored {
		return matchSegments(p.segments, segs)
	}
	// Unanchored: the pattern may match starting at any depth.
	for i := range segs {
		if matchSegments(p.segments, segs[i:]) {
			return true
		}
	}
	return false
}

// matchSegments reports whether pat matches as a prefix of segs (glob
// per segment), which mirrors gitignore semantics where a pattern that
// names a directory also excludes everything beneath it.
func matchSegments(pat, segs []string) bool {
	if len(pat) > len(segs) {
		return false
	}
	for i, ps := range pat {
		if ps == "**" {
			return true
		}
		if !globMatch(ps, segs[i]) {
			return false
		}
	}
	return true
}

func globMatch(pat, name string) bool {
	ok, err := path.Match(pat, name)
	return err == nil && ok
}
