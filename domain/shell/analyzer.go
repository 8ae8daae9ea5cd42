// Package shell tokenizes shell command strings just far enough to find
// command boundaries and the leading executable of each segment.
// It is not a shell interpreter: expansions are never evaluated.
package shell

import (
	"path"
	"regexp"
	"strings"
)

// Segment is one logically sequential piece of a command line.
type Segment struct {
	// Text is the raw, trimmed segment.
	Text string
	// Tokens are the unquoted words of the segment.
	Tokens []string
	// Executable is the basename of the leading program, empty when none was found.
	Executable string
	// Args are the tokens after the executable.
	Args []string
}

var envAssignment = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*=`)

// builtins never name an external program.
var builtins = map[string]bool{
	"cd": true, "export": true, "echo": true, "test": true, "[": true, "[[": true,
	"true": true, "false": true, "set": true, "unset": true, "source": true, ".": true,
	"alias": true, "unalias": true, "exit": true, "return": true, "read": true,
	"printf": true, "pwd": true, "type": true, "eval": true, "shift": true, "trap": true,
	"wait": true, "umask": true, "ulimit": true, "local": true, "declare": true,
	"typeset": true, "readonly": true, "let": true, "hash": true, "history": true,
	"jobs": true, "fg": true, "bg": true, "builtin": true, ":": true,
	"fi": true, "done": true, "esac": true, "}": true, "for": true, "case": true,
	"function": true, "select": true,
}

// prefixWords introduce a command without being one.
var prefixWords = map[string]bool{
	"if": true, "then": true, "else": true, "elif": true, "do": true,
	"while": true, "until": true, "!": true, "{": true,
}

// wrappers run the next word as the real program. The value lists flags that take an argument.
var wrappers = map[string]map[string]bool{
	"sudo":    {"-u": true, "-g": true, "-p": true, "-C": true, "-h": true, "-D": true, "-r": true, "-t": true, "-U": true},
	"doas":    {"-u": true, "-C": true},
	"env":     {"-u": true, "-C": true, "-S": true},
	"nohup":   {},
	"time":    {"-f": true, "-o": true},
	"command": {},
	"exec":    {"-a": true},
	"nice":    {"-n": true},
	"stdbuf":  {"-i": true, "-o": true, "-e": true},
	"timeout": {"-s": true, "-k": true},
}

// Span is a byte range within a command or segment.
type Span struct {
	Start int
	End   int
}

// SplitSegments splits a command on top-level ;, |, &&, ||, & and newlines.
// Quotes, backslash escapes and $( ) or backtick substitutions suppress splitting
// until they close. Empty segments are dropped.
func SplitSegments(command string) []string {
	spans := SegmentSpans(command)
	segments := make([]string, 0, len(spans))
	for _, sp := range spans {
		segments = append(segments, command[sp.Start:sp.End])
	}
	return segments
}

// SegmentSpans returns the byte ranges of the segments SplitSegments would return.
// Operators and quotes are ASCII, so scanning bytes never splits a UTF-8 sequence.
func SegmentSpans(command string) []Span {
	var spans []Span
	var st scanState
	start := 0

	flush := func(end int) {
		seg := command[start:end]
		trimmedLeft := strings.TrimLeft(seg, " \t\r\n")
		trimmed := strings.TrimRight(trimmedLeft, " \t\r\n")
		if trimmed != "" {
			s := start + len(seg) - len(trimmedLeft)
			spans = append(spans, Span{Start: s, End: s + len(trimmed)})
		}
	}

	for i := 0; i < len(command); i++ {
		ch := command[i]

		if st.consume(command, i) {
			continue
		}

		switch ch {
		case ';', '\n':
			flush(i)
			start = i + 1
		case '|':
			flush(i)
			if i+1 < len(command) && command[i+1] == '|' {
				i++
			}
			start = i + 1
		case '&':
			if i+1 < len(command) && command[i+1] == '&' {
				flush(i)
				i++
				start = i + 1
				continue
			}
			// 2>&1 and &> are redirections, not control operators.
			prevRedirect := i > 0 && (command[i-1] == '>' || command[i-1] == '<')
			nextRedirect := i+1 < len(command) && command[i+1] == '>'
			if !prevRedirect && !nextRedirect {
				flush(i)
				start = i + 1
			}
		}
	}
	flush(len(command))

	return spans
}

// scanState tracks quoting, escaping and substitution nesting across a scan.
type scanState struct {
	single   bool
	double   bool
	escaped  bool
	backtick bool
	depth    int // $( nesting
}

// consume updates the state for command[i] and reports whether the byte is
// protected, meaning it must not be treated as an operator or separator.
func (s *scanState) consume(command string, i int) bool {
	ch := command[i]

	if s.escaped {
		s.escaped = false
		return true
	}
	if s.single {
		if ch == '\'' {
			s.single = false
		}
		return true
	}

	switch {
	case ch == '\\':
		s.escaped = true
		return true
	case ch == '\'' && !s.double:
		s.single = true
		return true
	case ch == '"':
		s.double = !s.double
		return true
	case ch == '`':
		s.backtick = !s.backtick
		return true
	case ch == '$' && i+1 < len(command) && command[i+1] == '(':
		s.depth++
		return true
	case ch == ')' && s.depth > 0:
		s.depth--
		return true
	}

	return s.double || s.backtick || s.depth > 0
}

// TokenizeSegment splits a segment into words on unquoted whitespace.
// Quotes are removed and backslash escapes resolved; substitutions are kept
// verbatim as a single token.
func TokenizeSegment(segment string) []string {
	tokens, _ := tokenize(segment)
	return tokens
}

// TokenSpans returns the raw byte range of each token TokenizeSegment would
// return for segment, quotes included.
func TokenSpans(segment string) []Span {
	_, spans := tokenize(segment)
	return spans
}

func tokenize(segment string) ([]string, []Span) {
	var tokens []string
	var spans []Span
	var current strings.Builder
	inToken := false
	single, double := false, false
	depth := 0
	backtick := false
	tokenStart := 0

	runes := []rune(segment)
	// offsets[i] is the byte offset of runes[i]; the extra entry is len(segment).
	offsets := make([]int, 0, len(runes)+1)
	for bi := range segment {
		offsets = append(offsets, bi)
	}
	offsets = append(offsets, len(segment))

	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		if !inToken {
			tokenStart = offsets[i]
		}

		// Substitutions are copied raw, including any quotes inside them.
		if depth > 0 || backtick {
			current.WriteRune(ch)
			switch {
			case ch == '`' && backtick && depth == 0:
				backtick = false
			case ch == '$' && i+1 < len(runes) && runes[i+1] == '(':
				current.WriteRune('(')
				i++
				depth++
			case ch == ')' && depth > 0:
				depth--
			}
			continue
		}

		switch {
		case single:
			if ch == '\'' {
				single = false
			} else {
				current.WriteRune(ch)
			}
		case ch == '\\' && i+1 < len(runes):
			next := runes[i+1]
			i++
			inToken = true
			// Inside double quotes a backslash only escapes a few characters.
			if double && !strings.ContainsRune("\"\\$`\n", next) {
				current.WriteRune(ch)
			}
			if next != '\n' {
				current.WriteRune(next)
			}
		case double:
			switch {
			case ch == '"':
				double = false
			case ch == '$' && i+1 < len(runes) && runes[i+1] == '(':
				current.WriteString("$(")
				i++
				depth++
			default:
				current.WriteRune(ch)
			}
		case ch == '\'':
			single, inToken = true, true
		case ch == '"':
			double, inToken = true, true
		case ch == '`':
			backtick, inToken = true, true
			current.WriteRune(ch)
		case ch == '$' && i+1 < len(runes) && runes[i+1] == '(':
			inToken = true
			current.WriteString("$(")
			i++
			depth++
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			if inToken {
				tokens = append(tokens, current.String())
				spans = append(spans, Span{Start: tokenStart, End: offsets[i]})
				current.Reset()
				inToken = false
			}
		default:
			inToken = true
			current.WriteRune(ch)
		}
	}
	if inToken {
		tokens = append(tokens, current.String())
		spans = append(spans, Span{Start: tokenStart, End: len(segment)})
	}

	return tokens, spans
}

// ExtractExecutable returns the basename of the program a segment runs.
// It skips env assignments, redirections, subshell markers, reserved words and
// wrappers like sudo or env. It returns false for builtins and for
// substitutions or variables in command position.
func ExtractExecutable(segment string) (string, bool) {
	seg := ParseSegment(segment)
	return seg.Executable, seg.Executable != ""
}

// ParseSegment tokenizes a segment and locates its executable and arguments.
func ParseSegment(segment string) Segment {
	text := strings.TrimSpace(segment)
	tokens := TokenizeSegment(text)
	seg := Segment{Text: text, Tokens: tokens}

	idx := locateExecutable(tokens)
	if idx < 0 {
		return seg
	}

	name := strings.TrimLeft(tokens[idx], "(")
	if name == "" || isSubstitution(name) {
		return seg
	}
	base := path.Base(strings.TrimRight(name, ")"))
	if builtins[base] {
		return seg
	}

	seg.Executable = base
	seg.Args = tokens[idx+1:]
	return seg
}

// locateExecutable returns the index of the command word, or -1.
func locateExecutable(tokens []string) int {
	i := 0
	for i < len(tokens) {
		tok := strings.TrimLeft(tokens[i], "(")

		switch {
		case tok == "":
			i++
		case IsAssignment(tok):
			i++
		case IsRedirection(tok):
			if IsBareRedirection(tok) {
				i++
			}
			i++
		case prefixWords[tok]:
			i++
		case wrappers[path.Base(tok)] != nil:
			i = skipWrapper(tokens, i)
		default:
			return i
		}
	}
	return -1
}

// skipWrapper steps over a wrapper word and its options.
func skipWrapper(tokens []string, i int) int {
	argFlags := wrappers[path.Base(strings.TrimLeft(tokens[i], "("))]
	name := path.Base(strings.TrimLeft(tokens[i], "("))
	i++
	for i < len(tokens) {
		tok := tokens[i]
		switch {
		case tok == "--":
			return i + 1
		case strings.HasPrefix(tok, "-") && len(tok) > 1:
			i++
			if argFlags[tok] {
				i++
			}
		case name == "env" && IsAssignment(tok):
			i++
		case name == "timeout" && isDurationWord(tok):
			i++
		case name == "nice" && strings.HasPrefix(tok, "+"):
			i++
		default:
			return i
		}
	}
	return i
}

func isDurationWord(tok string) bool {
	trimmed := strings.TrimRight(tok, "smhd")
	if trimmed == "" {
		return false
	}
	for _, r := range trimmed {
		if (r < '0' || r > '9') && r != '.' {
			return false
		}
	}
	return true
}

func isSubstitution(tok string) bool {
	return strings.HasPrefix(tok, "$") || strings.HasPrefix(tok, "`")
}

// IsAssignment reports whether tok is a KEY=value environment assignment.
func IsAssignment(tok string) bool {
	return envAssignment.MatchString(tok)
}

// IsRedirection matches <file, >file, 2>file, &>file, >>file and bare operators.
func IsRedirection(tok string) bool {
	t := strings.TrimLeft(tok, "0123456789")
	t = strings.TrimPrefix(t, "&")
	return strings.HasPrefix(t, "<") || strings.HasPrefix(t, ">")
}

// IsBareRedirection reports an operator whose target is the next token.
func IsBareRedirection(tok string) bool {
	t := strings.TrimLeft(tok, "0123456789&")
	t = strings.TrimLeft(t, "<>")
	return t == "" || t == "&" || t == "|"
}

// CollectExecutables returns the distinct executables across all segments,
// in first-seen order.
func CollectExecutables(command string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range SplitSegments(command) {
		exe, ok := ExtractExecutable(s)
		if !ok || seen[exe] {
			continue
		}
		seen[exe] = true
		out = append(out, exe)
	}
	return out
}

// Analyze splits and parses every segment of a command.
func Analyze(command string) []Segment {
	raw := SplitSegments(command)
	segs := make([]Segment, 0, len(raw))
	for _, s := range raw {
		segs = append(segs, ParseSegment(s))
	}
	return segs
}
