package policy

import (
	"path"
	"regexp"
	"strings"

	"github.com/reglet-dev/execsafety/domain/shell"
)

const catastrophicReason = "catastrophic command pattern"

var (
	// forkBomb matches name(){ name|name& } shapes. Go regexp has no
	// backreferences, so the three names are compared after matching.
	forkBomb = regexp.MustCompile(`([^\s(){};|&]+)\s*\(\s*\)\s*\{\s*([^\s|&;{}]+)\s*\|\s*([^\s|&;{}]+)\s*&\s*;?\s*\}`)

	// rawRootDelete catches rm of / or ~ hidden in substitutions or quoted scripts.
	rawRootDelete = regexp.MustCompile("(?:^|[\\s;&|(`\"'])rm\\s+((?:-{1,2}[A-Za-z-]+\\s+)+)(?:/\\*?|~/?\\*?|\\$\\{?HOME\\}?/?\\*?)(?:$|[\\s;&|)`\"'])")

	rawDeviceRedirect = regexp.MustCompile(`>\s*/dev/(?:sd|hd|vd|xvd|nvme|mmcblk|r?disk)`)

	rawDevice = regexp.MustCompile(`^/dev/(?:sd|hd|vd|xvd|nvme|mmcblk|r?disk|md|dm-|mapper/|loop)`)
)

var powerCommands = map[string]bool{"reboot": true, "halt": true, "poweroff": true}

var systemctlPower = map[string]bool{"reboot": true, "poweroff": true, "halt": true, "kexec": true}

// catastrophic reports the first unconditionally denied shape in command.
func (e *Engine) catastrophic(command string, depth int) (reason, detail string, hit bool) {
	for _, m := range forkBomb.FindAllStringSubmatch(command, -1) {
		if m[1] == m[2] && m[2] == m[3] {
			return catastrophicReason, "fork bomb", true
		}
	}
	for _, m := range rawRootDelete.FindAllStringSubmatch(command, -1) {
		if hasRecursiveFlag(strings.Fields(m[1]), 'r') || containsWord(m[1], "--no-preserve-root") {
			return catastrophicReason, "recursive delete of filesystem root or home directory", true
		}
	}
	if rawDeviceRedirect.MatchString(command) {
		return catastrophicReason, "redirect onto raw block device", true
	}

	for _, seg := range shell.Analyze(command) {
		if detail, hit := catastrophicSegment(seg); hit {
			return catastrophicReason, detail, true
		}
		if depth >= maxNestedDepth {
			continue
		}
		for _, script := range nestedScripts(seg) {
			if reason, detail, hit := e.catastrophic(script, depth+1); hit {
				return reason, detail, true
			}
		}
	}
	return "", "", false
}

func catastrophicSegment(seg shell.Segment) (string, bool) {
	exe := seg.Executable
	args := seg.Args

	switch {
	case exe == "rm":
		if !hasRecursiveFlag(args, 'r') && !containsArg(args, "--no-preserve-root") {
			return "", false
		}
		for _, a := range operands(args) {
			if isRootTarget(a) {
				return "recursive delete of filesystem root or home directory", true
			}
		}
	case exe == "chmod" || exe == "chown" || exe == "chgrp":
		if !hasRecursiveFlag(args, 'R') {
			return "", false
		}
		for _, a := range operands(args) {
			if strings.HasPrefix(a, "/") && path.Clean(strings.TrimSuffix(a, "*")) == "/" {
				return "recursive ownership or permission change on filesystem root", true
			}
		}
	case exe == "dd":
		for _, a := range args {
			if v, ok := strings.CutPrefix(a, "of="); ok && rawDevice.MatchString(v) {
				return "dd onto raw block device", true
			}
		}
	case exe == "shred":
		for _, a := range operands(args) {
			if rawDevice.MatchString(a) {
				return "shred of raw block device", true
			}
		}
	case exe == "mkfs" || strings.HasPrefix(exe, "mkfs.") || exe == "mke2fs" || exe == "wipefs":
		return "filesystem creation or signature wipe", true
	case exe == "shutdown":
		if !containsArg(args, "-c") {
			return "system shutdown", true
		}
	case powerCommands[exe]:
		return "system " + exe, true
	case exe == "init" || exe == "telinit":
		if ops := operands(args); len(ops) > 0 && (ops[0] == "0" || ops[0] == "6") {
			return "runlevel change to halt or reboot", true
		}
	case exe == "systemctl":
		if ops := operands(args); len(ops) > 0 && systemctlPower[ops[0]] {
			return "systemctl " + ops[0], true
		}
	}
	return "", false
}

// isRootTarget matches /, /*, ~, ~/*, $HOME and their trailing-slash forms.
func isRootTarget(arg string) bool {
	t := strings.TrimSuffix(arg, "*")
	if strings.HasPrefix(t, "/") && path.Clean(t) == "/" {
		return true
	}
	switch strings.TrimSuffix(t, "/") {
	case "~", "$HOME", "${HOME}":
		return true
	}
	return false
}

// hasRecursiveFlag looks for --recursive or a short flag cluster containing
// the recursive letter (rm accepts both r and R).
func hasRecursiveFlag(args []string, letter byte) bool {
	for _, a := range args {
		if a == "--" {
			return false
		}
		if a == "--recursive" {
			return true
		}
		if len(a) > 1 && a[0] == '-' && a[1] != '-' {
			flags := a[1:]
			if strings.IndexByte(flags, letter) >= 0 {
				return true
			}
			if letter == 'r' && strings.IndexByte(flags, 'R') >= 0 {
				return true
			}
		}
	}
	return false
}

// operands returns the non-flag arguments, honouring a -- terminator.
func operands(args []string) []string {
	var out []string
	for i, a := range args {
		if a == "--" {
			return append(out, args[i+1:]...)
		}
		if len(a) > 1 && a[0] == '-' {
			continue
		}
		out = append(out, a)
	}
	return out
}

func containsArg(args []string, want string) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}

func containsWord(s, want string) bool {
	return containsArg(strings.Fields(s), want)
}
