package policy

import (
	"path"
	"regexp"
	"strings"
	"unicode"

	"github.com/reglet-dev/execsafety/domain/shell"
)

// rewriteRule transforms one segment. command is the full original command,
// used to detect markers set in an earlier segment.
type rewriteRule struct {
	name  string
	apply func(segment, command string) (string, bool)
}

// Rules run in order on each segment, each seeing the previous rule's output.
var rewriteRules = []rewriteRule{
	{"sudo non-interactive", rewriteSudo},
	{"apt unattended", rewriteApt},
	{"yum/dnf assume yes", rewriteYum},
	{"pip via python3 -m pip", rewritePipInterpreter},
	{"pip no input", rewritePipInput},
	{"brew no auto update", rewriteBrew},
}

var (
	aptMutating = map[string]bool{
		"install": true, "upgrade": true, "dist-upgrade": true, "full-upgrade": true,
		"remove": true, "purge": true, "autoremove": true, "reinstall": true, "build-dep": true,
	}
	yumMutating = map[string]bool{
		"install": true, "update": true, "upgrade": true, "remove": true, "erase": true,
		"reinstall": true, "downgrade": true, "autoremove": true, "groupinstall": true,
	}
	brewMutating = map[string]bool{"install": true, "upgrade": true, "reinstall": true}

	sudoArgFlags = map[string]bool{
		"-u": true, "-g": true, "-p": true, "-C": true, "-h": true,
		"-D": true, "-r": true, "-t": true, "-U": true,
	}
	aptArgFlags = map[string]bool{"-o": true, "-c": true, "-t": true}
	yumArgFlags = map[string]bool{"-c": true, "-d": true, "-e": true, "--setopt": true}

	pythonExe = regexp.MustCompile(`^python[0-9.]*$`)
)

// rewriteCommand applies every rule to every top-level segment and splices
// the results back into the original text. Separators and spacing between
// segments are preserved.
func rewriteCommand(command string) (string, []string) {
	spans := shell.SegmentSpans(command)
	fired := make(map[string]bool)
	out := command

	// Splice back to front so earlier spans keep their offsets.
	for i := len(spans) - 1; i >= 0; i-- {
		sp := spans[i]
		text := command[sp.Start:sp.End]
		changed := false
		for _, rule := range rewriteRules {
			next, ok := rule.apply(text, command)
			if !ok {
				continue
			}
			text, changed = next, true
			fired[rule.name] = true
		}
		if changed {
			out = out[:sp.Start] + text + out[sp.End:]
		}
	}

	var applied []string
	for _, rule := range rewriteRules {
		if fired[rule.name] {
			applied = append(applied, rule.name)
		}
	}
	return out, applied
}

// rewriteSudo adds -n to a leading sudo that lacks it.
func rewriteSudo(segment, _ string) (string, bool) {
	tokens := shell.TokenizeSegment(strings.TrimSpace(segment))
	i := 0
	for i < len(tokens) && shell.IsAssignment(tokens[i]) {
		i++
	}
	if i >= len(tokens) || path.Base(tokens[i]) != "sudo" {
		return segment, false
	}
	for j := i + 1; j < len(tokens); j++ {
		tok := tokens[j]
		if tok == "--" || !strings.HasPrefix(tok, "-") {
			break
		}
		if tok == "--non-interactive" || (!strings.HasPrefix(tok, "--") && strings.ContainsRune(tok[1:], 'n')) {
			return segment, false
		}
		if sudoArgFlags[tok] {
			j++
		}
	}

	_, end, ok := tokenRange(segment, i)
	if !ok {
		return segment, false
	}
	return segment[:end] + " -n" + segment[end:], true
}

// rewriteApt prefixes DEBIAN_FRONTEND=noninteractive and adds -y to mutating apt calls.
func rewriteApt(segment, command string) (string, bool) {
	seg := shell.ParseSegment(segment)
	if seg.Executable != "apt-get" && seg.Executable != "apt" {
		return segment, false
	}
	sub, si, ok := subcommand(seg.Args, aptArgFlags)
	if !ok || !aptMutating[sub] {
		return segment, false
	}
	exe := executableIndex(seg)
	start, _, ok := tokenRange(segment, exe)
	if !ok {
		return segment, false
	}

	out, changed := segment, false
	if !hasShortFlag(seg.Args, 'y', "--yes", "--assume-yes") {
		if _, pos, ok := tokenRange(out, exe+1+si); ok {
			out = out[:pos] + " -y" + out[pos:]
			changed = true
		}
	}
	if !strings.Contains(command, "DEBIAN_FRONTEND=") {
		out = out[:start] + "DEBIAN_FRONTEND=noninteractive " + out[start:]
		changed = true
	}
	return out, changed
}

// rewriteYum adds -y to mutating yum and dnf calls.
func rewriteYum(segment, _ string) (string, bool) {
	seg := shell.ParseSegment(segment)
	switch seg.Executable {
	case "yum", "dnf", "microdnf":
	default:
		return segment, false
	}
	sub, si, ok := subcommand(seg.Args, yumArgFlags)
	if !ok || !yumMutating[sub] || hasShortFlag(seg.Args, 'y', "--assumeyes") {
		return segment, false
	}
	_, pos, ok := tokenRange(segment, executableIndex(seg)+1+si)
	if !ok {
		return segment, false
	}
	return segment[:pos] + " -y" + segment[pos:], true
}

// rewritePipInterpreter turns pip install into python3 -m pip install.
func rewritePipInterpreter(segment, _ string) (string, bool) {
	seg := shell.ParseSegment(segment)
	if seg.Executable != "pip" && seg.Executable != "pip3" {
		return segment, false
	}
	if sub, _, ok := subcommand(seg.Args, nil); !ok || sub != "install" {
		return segment, false
	}
	start, end, ok := tokenRange(segment, executableIndex(seg))
	if !ok {
		return segment, false
	}
	return segment[:start] + "python3 -m pip" + segment[end:], true
}

// rewritePipInput adds --no-input to python -m pip install.
func rewritePipInput(segment, _ string) (string, bool) {
	seg := shell.ParseSegment(segment)
	if !pythonExe.MatchString(seg.Executable) {
		return segment, false
	}
	rest, off, ok := afterModule(seg.Args, "pip", "pip3")
	if !ok {
		return segment, false
	}
	sub, si, ok := subcommand(rest, nil)
	if !ok || sub != "install" || containsArg(rest, "--no-input") {
		return segment, false
	}
	_, pos, ok := tokenRange(segment, executableIndex(seg)+1+off+si)
	if !ok {
		return segment, false
	}
	return segment[:pos] + " --no-input" + segment[pos:], true
}

// rewriteBrew disables Homebrew's auto-update for mutating calls.
func rewriteBrew(segment, command string) (string, bool) {
	seg := shell.ParseSegment(segment)
	if seg.Executable != "brew" || strings.Contains(command, "HOMEBREW_NO_AUTO_UPDATE=") {
		return segment, false
	}
	if sub, _, ok := subcommand(seg.Args, nil); !ok || !brewMutating[sub] {
		return segment, false
	}
	start, _, ok := tokenRange(segment, executableIndex(seg))
	if !ok {
		return segment, false
	}
	return segment[:start] + "HOMEBREW_NO_AUTO_UPDATE=1 " + segment[start:], true
}

// executableIndex is the token index of seg's executable, or -1.
func executableIndex(seg shell.Segment) int {
	if seg.Executable == "" {
		return -1
	}
	return len(seg.Tokens) - len(seg.Args) - 1
}

// tokenRange returns the byte range of token i of text, without the
// parentheses of a subshell.
func tokenRange(text string, i int) (start, end int, ok bool) {
	// Tokens are indexed over the trimmed text, as ParseSegment sees it.
	lead := len(text) - len(strings.TrimLeftFunc(text, unicode.IsSpace))
	spans := shell.TokenSpans(strings.TrimSpace(text))
	if i < 0 || i >= len(spans) {
		return 0, 0, false
	}
	start, end = lead+spans[i].Start, lead+spans[i].End
	for start < end && text[start] == '(' {
		start++
	}
	for end > start && text[end-1] == ')' {
		end--
	}
	return start, end, start < end
}

// subcommand returns the first operand and its index in args, skipping
// flags and their values.
func subcommand(args []string, argFlags map[string]bool) (string, int, bool) {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if strings.HasPrefix(a, "-") {
			if argFlags[a] {
				i++
			}
			continue
		}
		return a, i, true
	}
	return "", -1, false
}

// afterModule returns the arguments following -m <module>, and their offset
// in args, when module is one of names.
func afterModule(args []string, names ...string) ([]string, int, bool) {
	for i := 0; i+1 < len(args); i++ {
		if args[i] != "-m" {
			continue
		}
		for _, n := range names {
			if args[i+1] == n {
				return args[i+2:], i + 2, true
			}
		}
		return nil, 0, false
	}
	return nil, 0, false
}

// hasShortFlag reports a long flag in longs or a short cluster containing letter.
func hasShortFlag(args []string, letter byte, longs ...string) bool {
	for _, a := range args {
		for _, l := range longs {
			if a == l {
				return true
			}
		}
		if len(a) > 1 && a[0] == '-' && a[1] != '-' && strings.IndexByte(a[1:], letter) >= 0 {
			return true
		}
	}
	return false
}
