// Package ignore implements the gitignore-style path filter consulted
// by the plan builder (C11) before including a node in a generation
// plan, so that paths under ignored directories (.git/, node_modules/)
// never get frames generated even when a plan is recursive. Patterns
// live in a single .contextignore file at the workspace root, using
// .gitignore glob syntax.
package ignore

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// builtinDefaults are always ignored regardless of what
// .contextignore says.
var builtinDefaults = []string{".git", ".hg", ".svn", "node_modules", "target"}

// rule is one compiled line from .contextignore.
type rule struct {
	pattern  string
	negate   bool
	dirOnly  bool
	anchored bool // pattern contained a "/" before the final segment
}

// Matcher answers whether a workspace-relative path should be excluded
// from generation. Safe for concurrent use (read-only after Load).
type Matcher struct {
	rules []rule
}

// Load reads .contextignore from workspaceRoot, if present, and
// returns a Matcher seeded with the built-in defaults plus whatever
// patterns the file adds. A missing file is not an error: the
// built-ins alone still apply.
func Load(workspaceRoot string) (*Matcher, error) {
	m := &Matcher{}
	for _, p := range builtinDefaults {
		m.rules = append(m.rules, compile(p))
	}

	f, err := os.Open(filepath.Join(workspaceRoot, ".contextignore"))
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m.rules = append(m.rules, compile(line))
	}
	return m, scanner.Err()
}

// New builds a Matcher directly from a list of pattern lines, useful
// for tests and for callers that already have ignore content in hand.
func New(patterns []string) *Matcher {
	m := &Matcher{}
	for _, p := range builtinDefaults {
		m.rules = append(m.rules, compile(p))
	}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}
		m.rules = append(m.rules, compile(p))
	}
	return m
}

func compile(line string) rule {
	r := rule{pattern: line}
	if strings.HasPrefix(r.pattern, "!") {
		r.negate = true
		r.pattern = r.pattern[1:]
	}
	if strings.HasSuffix(r.pattern, "/") {
		r.dirOnly = true
		r.pattern = strings.TrimSuffix(r.pattern, "/")
	}
	if strings.HasPrefix(r.pattern, "/") {
		r.anchored = true
		r.pattern = strings.TrimPrefix(r.pattern, "/")
	}
	if strings.Contains(r.pattern, "/") {
		r.anchored = true
	}
	return r
}

// Match reports whether path (workspace-relative, forward-slash
// separated, no leading "/") should be excluded. isDir indicates
// whether path names a directory; dirOnly rules only ever match
// directories.
func (m *Matcher) Match(path string, isDir bool) bool {
	if m == nil {
		return false
	}
	path = strings.TrimPrefix(filepath.ToSlash(path), "/")
	ignored := false
	for _, r := range m.rules {
		if r.dirOnly && !isDir {
			continue
		}
		if matchesRule(r, path) {
			ignored = !r.negate
		}
	}
	return ignored
}

// matchesRule reports whether pattern matches path or any ancestor
// segment of path, honoring "**" and anchoring.
func matchesRule(r rule, path string) bool {
	segments := strings.Split(path, "/")

	if r.anchored {
		return globMatch(r.pattern, path)
	}

	// Unanchored pattern: matches if it matches the full path or any
	// suffix starting at a path segment boundary (i.e. any directory
	// component or the basename), mirroring gitignore's "a pattern
	// without a slash matches at every level".
	for i := range segments {
		candidate := strings.Join(segments[i:], "/")
		if globMatch(r.pattern, candidate) {
			return true
		}
		if globMatch(r.pattern, segments[i]) {
			return true
		}
	}
	return false
}

// globMatch extends filepath.Match with gitignore's "**" (match any
// number of path segments, including zero).
func globMatch(pattern, name string) bool {
	if !strings.Contains(pattern, "**") {
		ok, err := filepath.Match(pattern, name)
		return err == nil && ok
	}

	parts := strings.Split(pattern, "**")
	// A pattern like "a/**/b" becomes segments ["a/", "/b"] after the
	// split on "**"; trim the adjoining slashes so each part matches
	// independently against a run of path segments.
	for i := range parts {
		parts[i] = strings.Trim(parts[i], "/")
	}

	rest := name
	for i, part := range parts {
		if part == "" {
			continue
		}
		idx := findGlobSegment(rest, part, i == len(parts)-1)
		if idx < 0 {
			return false
		}
		rest = rest[idx+len(part):]
		rest = strings.TrimPrefix(rest, "/")
	}
	return true
}

// findGlobSegment returns where part (a glob without "**") is found in
// rest: 0 when part glob-matches the whole of rest; for the last part,
// the start of a literal suffix match; otherwise the first literal
// occurrence of part anywhere in rest; -1 when none applies. Used only
// to give "**" reasonably useful matching semantics without a full
// glob engine.
func findGlobSegment(rest, part string, last bool) int {
	if ok, _ := filepath.Match(part, rest); ok {
		return 0
	}
	if last && strings.HasSuffix(rest, part) {
		return len(rest) - len(part)
	}
	if strings.Contains(rest, part) {
		return strings.Index(rest, part)
	}
	return -1
}
