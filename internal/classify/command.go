package classify

import (
	"path"
	"regexp"
	"slices"
	"strings"
	"unicode"

	"mvdan.cc/sh/v3/syntax"
)

// maxInlineDepth bounds how many nested "sh -c" payloads are parsed.
const maxInlineDepth = 2

// Segment is one independently classifiable simple command.
type Segment struct {
	Raw        string
	Executable string            // base name, after sudo/env/xargs style wrappers
	Words      []string          // every word after the executable, unquoted
	Args       []string          // positional words
	Flags      map[string]string // short flags split per letter, long flags by name
	Op         string            // operator linking the segment to what ran before it
	Upstream   []string          // executables whose output feeds this segment
	Redirects  []Redirect
	Sudo       bool
	Func       string // enclosing shell function, if any
	Depth      int    // sh -c nesting level
	Opaque     bool   // carries inline shell code that was not inspected
	Unparsed   bool   // produced by the fallback splitter
}

// Redirect is one I/O redirection attached to a segment.
type Redirect struct {
	Op     string
	Target string
}

// DecomposeCommand splits a shell command line into segments. It descends
// into pipelines, lists, subshells, brace groups, control-flow bodies,
// function bodies, command and process substitutions, and sh -c payloads.
// Input the shell parser rejects is split on operators instead.
func DecomposeCommand(command string) []Segment {
	return decompose(command, 0)
}

func decompose(command string, depth int) []Segment {
	parser := syntax.NewParser(syntax.KeepComments(false), syntax.Variant(syntax.LangBash))
	file, err := parser.Parse(strings.NewReader(command), "")
	if err != nil {
		return fallbackSplit(command, depth)
	}
	d := &decomposer{depth: depth}
	d.stmts(file.Stmts, "", nil)
	return d.segs
}

type decomposer struct {
	depth int
	fn    string
	segs  []Segment
}

func (d *decomposer) stmts(list []*syntax.Stmt, op string, upstream []string) {
	for i, st := range list {
		if i > 0 {
			op = ";"
			if list[i-1].Background {
				op = "&"
			}
		}
		d.stmt(st, op, upstream)
	}
}

func (d *decomposer) stmt(st *syntax.Stmt, op string, upstream []string) {
	if st == nil {
		return
	}

	var redirs []Redirect
	var fed []string
	for _, r := range st.Redirs {
		rd := Redirect{Op: r.Op.String()}
		if r.Word != nil {
			rd.Target = wordValue(r.Word)
			fed = append(fed, d.substitutions(r.Word)...)
		}
		if r.Hdoc != nil {
			d.substitutions(r.Hdoc)
		}
		redirs = append(redirs, rd)
	}

	start := len(d.segs)
	switch cmd := st.Cmd.(type) {
	case nil:
	case *syntax.CallExpr:
		d.call(cmd, op, append(slices.Clone(upstream), fed...))
	case *syntax.BinaryCmd:
		d.stmt(cmd.X, op, upstream)
		switch cmd.Op {
		case syntax.Pipe, syntax.PipeAll:
			fromLeft := executables(d.segs[start:])
			d.stmt(cmd.Y, cmd.Op.String(), append(slices.Clone(upstream), fromLeft...))
		default:
			d.stmt(cmd.Y, cmd.Op.String(), upstream)
		}
	case *syntax.Subshell:
		d.stmts(cmd.Stmts, op, upstream)
	case *syntax.Block:
		d.stmts(cmd.Stmts, op, upstream)
	case *syntax.IfClause:
		d.ifClause(cmd, op, upstream)
	case *syntax.WhileClause:
		d.stmts(cmd.Cond, op, upstream)
		d.stmts(cmd.Do, ";", upstream)
	case *syntax.ForClause:
		if cmd.Loop != nil {
			d.substitutions(cmd.Loop)
		}
		d.stmts(cmd.Do, op, upstream)
	case *syntax.CaseClause:
		if cmd.Word != nil {
			d.substitutions(cmd.Word)
		}
		for _, item := range cmd.Items {
			d.stmts(item.Stmts, op, upstream)
		}
	case *syntax.FuncDecl:
		prev := d.fn
		if cmd.Name != nil {
			d.fn = cmd.Name.Value
		}
		d.stmt(cmd.Body, op, upstream)
		d.fn = prev
	case *syntax.TimeClause:
		d.stmt(cmd.Stmt, op, upstream)
	case *syntax.CoprocClause:
		d.stmt(cmd.Stmt, op, upstream)
	case *syntax.DeclClause:
		d.substitutions(cmd)
		if cmd.Variant != nil {
			d.segs = append(d.segs, Segment{
				Raw:        printNode(cmd),
				Executable: cmd.Variant.Value,
				Flags:      map[string]string{},
				Op:         op,
				Depth:      d.depth,
				Func:       d.fn,
			})
		}
	default:
		d.substitutions(cmd)
	}

	// A bare redirection such as "> file" still truncates its target.
	if len(redirs) > 0 && len(d.segs) == start {
		d.segs = append(d.segs, Segment{
			Raw:   printNode(st),
			Flags: map[string]string{},
			Op:    op,
			Depth: d.depth,
			Func:  d.fn,
		})
	}
	for i := start; i < len(d.segs); i++ {
		d.segs[i].Redirects = append(d.segs[i].Redirects, redirs...)
	}
}

func (d *decomposer) ifClause(cmd *syntax.IfClause, op string, upstream []string) {
	d.stmts(cmd.Cond, op, upstream)
	d.stmts(cmd.Then, "&&", upstream)
	if cmd.Else != nil {
		d.ifClause(cmd.Else, "||", upstream)
	}
}

func (d *decomposer) call(cmd *syntax.CallExpr, op string, upstream []string) {
	for _, a := range cmd.Assigns {
		upstream = append(upstream, d.substitutions(a)...)
	}
	words := make([]string, 0, len(cmd.Args))
	for _, w := range cmd.Args {
		upstream = append(upstream, d.substitutions(w)...)
		words = append(words, wordValue(w))
	}
	if len(words) == 0 {
		return
	}

	seg := newSegment(words)
	seg.Raw = printNode(cmd)
	seg.Op = op
	seg.Upstream = upstream
	seg.Depth = d.depth
	seg.Func = d.fn
	d.segs = append(d.segs, seg)

	code, ok := inlineShellCode(seg)
	if !ok {
		return
	}
	if d.depth+1 >= maxInlineDepth {
		d.segs[len(d.segs)-1].Opaque = true
		return
	}
	for _, inner := range decompose(code, d.depth+1) {
		if inner.Op == "" {
			inner.Op = "-c"
		}
		inner.Upstream = append(inner.Upstream, upstream...)
		if inner.Func == "" {
			inner.Func = d.fn
		}
		d.segs = append(d.segs, inner)
	}
}

// substitutions decomposes every command or process substitution inside node
// and returns the executables they run.
func (d *decomposer) substitutions(node syntax.Node) []string {
	start := len(d.segs)
	syntax.Walk(node, func(n syntax.Node) bool {
		switch n := n.(type) {
		case *syntax.CmdSubst:
			d.stmts(n.Stmts, "$()", nil)
			return false
		case *syntax.ProcSubst:
			d.stmts(n.Stmts, n.Op.String()+")", nil)
			return false
		}
		return true
	})
	return executables(d.segs[start:])
}

// wordValue returns the word with quoting removed. Expansions are kept in
// their printed form.
func wordValue(w *syntax.Word) string {
	var sb strings.Builder
	writeParts(&sb, w.Parts)
	return sb.String()
}

func writeParts(sb *strings.Builder, parts []syntax.WordPart) {
	for _, part := range parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			writeParts(sb, p.Parts)
		default:
			sb.WriteString(printNode(p))
		}
	}
}

func printNode(n syntax.Node) string {
	var sb strings.Builder
	if err := syntax.NewPrinter(syntax.SingleLine(true)).Print(&sb, n); err != nil {
		return ""
	}
	return strings.TrimSpace(sb.String())
}

func executables(segs []Segment) []string {
	out := make([]string, 0, len(segs))
	for _, s := range segs {
		if s.Executable != "" {
			out = append(out, s.Executable)
		}
	}
	return out
}

// newSegment builds a segment from already unquoted words.
func newSegment(words []string) Segment {
	seg := Segment{Flags: make(map[string]string)}
	words = unwrap(words, &seg)
	if len(words) == 0 {
		return seg
	}

	seg.Executable = words[0]
	if !strings.ContainsAny(words[0], "$`") {
		seg.Executable = path.Base(words[0])
	}
	seg.Words = words[1:]

	endOfFlags := false
	for _, w := range seg.Words {
		switch {
		case endOfFlags || w == "-" || !strings.HasPrefix(w, "-"):
			seg.Args = append(seg.Args, w)
		case w == "--":
			endOfFlags = true
		case strings.HasPrefix(w, "--"):
			name, value, _ := strings.Cut(w[2:], "=")
			seg.Flags[name] = value
		default:
			for _, ch := range w[1:] {
				seg.Flags[string(ch)] = ""
			}
		}
	}
	return seg
}

// wrappers maps commands that run another command to their flags that
// consume the following word.
var wrappers = map[string]map[string]bool{
	"sudo":    {"-u": true, "-g": true, "-C": true, "-D": true, "-h": true, "-p": true, "-r": true, "-t": true, "-U": true},
	"doas":    {"-u": true, "-C": true},
	"env":     {"-u": true, "-C": true, "-S": true},
	"nohup":   {},
	"nice":    {"-n": true},
	"ionice":  {"-c": true, "-n": true, "-p": true},
	"exec":    {"-a": true},
	"builtin": {},
	"setsid":  {},
	"stdbuf":  {"-i": true, "-o": true, "-e": true},
	"timeout": {"-s": true, "-k": true},
	"xargs":   {"-I": true, "-n": true, "-P": true, "-L": true, "-d": true, "-s": true, "-E": true, "-a": true},
	"watch":   {"-n": true},
	"command": {},
	"time":    {"-f": true, "-o": true},
}

// unwrap strips wrappers that run another command, recording sudo.
func unwrap(words []string, seg *Segment) []string {
	for len(words) > 1 {
		name := path.Base(words[0])
		valueFlags, ok := wrappers[name]
		if !ok {
			return words
		}
		if name == "command" && len(words) > 1 && (words[1] == "-v" || words[1] == "-V") {
			return words
		}

		rest := words[1:]
		for len(rest) > 0 && strings.HasPrefix(rest[0], "-") && rest[0] != "-" {
			flag := rest[0]
			rest = rest[1:]
			if flag == "--" {
				break
			}
			if valueFlags[flag] && len(rest) > 0 {
				rest = rest[1:]
			}
		}
		if name == "env" {
			for len(rest) > 0 && strings.Contains(rest[0], "=") {
				rest = rest[1:]
			}
		}
		if name == "timeout" && len(rest) > 0 {
			rest = rest[1:]
		}
		if len(rest) == 0 {
			return words
		}
		if name == "sudo" || name == "doas" {
			seg.Sudo = true
		}
		words = rest
	}
	return words
}

var shellInterpreters = map[string]bool{
	"sh": true, "bash": true, "zsh": true, "dash": true,
	"ksh": true, "fish": true, "csh": true, "tcsh": true, "ash": true,
}

var codeInterpreters = map[string]bool{
	"python": true, "python3": true, "python2": true,
	"node": true, "deno": true, "bun": true, "ruby": true,
	"perl": true, "lua": true, "php": true,
}

func isShellInterpreter(exe string) bool { return shellInterpreters[exe] }

// shellBuiltinsRunningCode execute their input in the current shell.
var shellBuiltinsRunningCode = map[string]bool{"source": true, ".": true, "eval": true}

func isShellOrInterpreter(exe string) bool {
	return shellInterpreters[exe] || codeInterpreters[exe] || shellBuiltinsRunningCode[exe]
}

// inlineShellCode returns the payload of "sh -c '<code>'".
func inlineShellCode(seg Segment) (string, bool) {
	if !isShellInterpreter(seg.Executable) || !hasFlag(seg.Flags, "c") || len(seg.Args) == 0 {
		return "", false
	}
	return seg.Args[0], true
}

func hasFlag(flags map[string]string, keys ...string) bool {
	for _, k := range keys {
		if _, ok := flags[k]; ok {
			return true
		}
	}
	return false
}

// fallbackSplit is a quote-aware operator split for input the shell parser
// rejects.
func fallbackSplit(command string, depth int) []Segment {
	var (
		segs     []Segment
		pipeline []string
		cur      strings.Builder
		op       string
		quote    rune
		escaped  bool
	)
	flush := func(next string) {
		part := strings.TrimSpace(cur.String())
		cur.Reset()
		if part != "" {
			words, redirs := extractRedirects(splitWords(part))
			seg := newSegment(words)
			seg.Raw = part
			seg.Op = op
			seg.Redirects = redirs
			seg.Depth = depth
			seg.Unparsed = true
			if op == "|" || op == "|&" {
				seg.Upstream = slices.Clone(pipeline)
			} else {
				pipeline = nil
			}
			if seg.Executable != "" {
				pipeline = append(pipeline, seg.Executable)
			}
			segs = append(segs, seg)
		}
		op = next
	}

	rs := []rune(command)
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		var next, prev rune
		if i+1 < len(rs) {
			next = rs[i+1]
		}
		if i > 0 {
			prev = rs[i-1]
		}
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\' && quote != '\'':
			cur.WriteRune(r)
			escaped = true
		case quote != 0:
			cur.WriteRune(r)
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"' || r == '`':
			quote = r
			cur.WriteRune(r)
		case r == '&' && next == '&':
			flush("&&")
			i++
		case r == '|' && next == '|':
			flush("||")
			i++
		case r == '|' && next == '&':
			flush("|&")
			i++
		case r == '|':
			flush("|")
		case r == ';' || r == '\n':
			flush(";")
		case r == '&' && (prev == '>' || prev == '<' || next == '>'):
			cur.WriteRune(r)
		case r == '&':
			flush("&")
		default:
			cur.WriteRune(r)
		}
	}
	flush("")
	return segs
}

// splitWords splits on unquoted whitespace and removes quoting.
func splitWords(s string) []string {
	var (
		words   []string
		cur     strings.Builder
		quote   rune
		inWord  bool
		escaped bool
	)
	for _, r := range s {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\' && quote != '\'':
			escaped = true
			inWord = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inWord = true
		case unicode.IsSpace(r):
			if inWord {
				words = append(words, cur.String())
				cur.Reset()
				inWord = false
			}
		default:
			cur.WriteRune(r)
			inWord = true
		}
	}
	if inWord {
		words = append(words, cur.String())
	}
	return words
}

var redirectToken = regexp.MustCompile(`^(?:\d*|&)(>>|>\||>&|>|<<<|<<-|<<|<>|<&|<)(.*)$`)

func extractRedirects(words []string) ([]string, []Redirect) {
	var (
		kept   []string
		redirs []Redirect
	)
	for i := 0; i < len(words); i++ {
		m := redirectToken.FindStringSubmatch(words[i])
		if m == nil {
			kept = append(kept, words[i])
			continue
		}
		rd := Redirect{Op: m[1], Target: m[2]}
		if rd.Target == "" && i+1 < len(words) {
			rd.Target = words[i+1]
			i++
		}
		redirs = append(redirs, rd)
	}
	return kept, redirs
}
