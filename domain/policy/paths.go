package policy

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/reglet-dev/execsafety/domain/shell"
)

// valueFlags lists per-command flags whose separate argument is not a path.
var valueFlags = map[string]map[string]bool{
	"truncate": {"-s": true, "--size": true, "-r": true},
	"cp":       {"-S": true, "--suffix": true},
	"mv":       {"-S": true, "--suffix": true},
	"ln":       {"-S": true, "--suffix": true},
}

// chmodSymbolic matches mode arguments like -x or -rw that look like flags.
var chmodSymbolic = regexp.MustCompile(`^-[rwxXst]+$`)

// pathContext is the resolved location state for one evaluation.
type pathContext struct {
	cwd     string
	allowed []string
}

// isAllowed uses segment-boundary prefix matching so /etc2 is never under /etc.
func (c pathContext) isAllowed(p string) bool {
	for _, root := range c.allowed {
		if root == "/" || p == root || strings.HasPrefix(p, root+"/") {
			return true
		}
	}
	return false
}

// pathMatcher matches absolute paths against protected root patterns.
type pathMatcher struct {
	patterns []string
}

func newPathMatcher(roots []string) *pathMatcher {
	m := &pathMatcher{}
	for _, r := range roots {
		r = strings.TrimRight(r, "/")
		if r == "" || !doublestar.ValidatePattern(r) {
			continue
		}
		m.patterns = append(m.patterns, r, r+"/**")
	}
	return m
}

func (m *pathMatcher) match(p string) bool {
	for _, pattern := range m.patterns {
		if ok, _ := doublestar.Match(pattern, p); ok {
			return true
		}
	}
	return false
}

// expandHome expands ~, $HOME and ${HOME} at the start of p.
func (e *Engine) expandHome(p string) string {
	home := e.config.home
	if home == "" {
		return p
	}
	for _, prefix := range []string{"~", "$HOME", "${HOME}"} {
		rest, ok := strings.CutPrefix(p, prefix)
		if ok && (rest == "" || strings.HasPrefix(rest, "/")) {
			return home + rest
		}
	}
	return p
}

// resolve returns the cleaned absolute form of p relative to cwd.
func (e *Engine) resolve(p, cwd string) string {
	p = e.expandHome(p)
	if !filepath.IsAbs(p) {
		p = filepath.Join(cwd, p)
	}
	return filepath.Clean(p)
}

// protectedPaths denies destructive commands whose targets resolve to / or
// into a protected root outside every allowed root.
func (e *Engine) protectedPaths(command string, ctx pathContext, depth int) (reason, detail string, hit bool) {
	for _, seg := range shell.Analyze(command) {
		if depth < maxNestedDepth {
			for _, script := range nestedScripts(seg) {
				if reason, detail, hit := e.protectedPaths(script, ctx, depth+1); hit {
					return reason, detail, true
				}
			}
		}
		if !destructiveCommands[seg.Executable] {
			continue
		}

		for _, target := range pathArguments(seg) {
			if !e.resolvable(target) {
				continue
			}
			resolved := e.resolve(target, ctx.cwd)
			if ctx.isAllowed(resolved) {
				continue
			}
			if resolved == "/" {
				return "destructive operation on filesystem root",
					fmt.Sprintf("%s %s", seg.Executable, target), true
			}
			if e.protected.match(resolved) {
				return "destructive operation on protected path",
					fmt.Sprintf("%s %s (resolved to %s)", seg.Executable, target, resolved), true
			}
		}
	}
	return "", "", false
}

// resolvable reports whether target can be resolved without evaluating the shell.
func (e *Engine) resolvable(target string) bool {
	if target == "" || strings.Contains(target, "`") {
		return false
	}
	if !strings.Contains(target, "$") {
		return true
	}
	expanded := e.expandHome(target)
	return expanded != target && !strings.Contains(expanded, "$")
}

// pathArguments returns the tokens of a destructive segment that name paths.
func pathArguments(seg shell.Segment) []string {
	var paths []string
	flags := valueFlags[seg.Executable]
	modeSkipped := seg.Executable != "chmod" && seg.Executable != "chown"
	endOfFlags := false

	for i := 0; i < len(seg.Args); i++ {
		tok := seg.Args[i]

		if shell.IsRedirection(tok) {
			if shell.IsBareRedirection(tok) {
				i++
			}
			continue
		}

		if seg.Executable == "dd" {
			if v, ok := strings.CutPrefix(tok, "of="); ok {
				paths = append(paths, v)
			}
			continue
		}

		if !endOfFlags && tok == "--" {
			endOfFlags = true
			continue
		}

		if !endOfFlags && len(tok) > 1 && tok[0] == '-' {
			if seg.Executable == "chmod" && !modeSkipped && chmodSymbolic.MatchString(tok) {
				modeSkipped = true
				continue
			}
			if name, value, ok := strings.Cut(tok, "="); ok && strings.HasPrefix(name, "--") {
				if strings.Contains(value, "/") || strings.HasPrefix(value, "~") {
					paths = append(paths, value)
				}
				continue
			}
			if flags[tok] {
				i++
			}
			continue
		}

		if !modeSkipped {
			modeSkipped = true
			continue
		}
		paths = append(paths, tok)
	}
	return paths
}
