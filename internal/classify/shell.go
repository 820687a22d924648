package classify

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/ppiankov/warden/internal/model"
)

// ClassifyCommand classifies a shell command line. The level is the highest
// of its segments.
func ClassifyCommand(command string) model.Classification {
	if strings.TrimSpace(command) == "" {
		return model.Classification{Level: model.L0, Reason: "empty command", Deterministic: true}
	}
	if forkBomb.MatchString(command) {
		return model.Classification{Level: model.L3, Reason: "fork bomb", Deterministic: true}
	}

	segs := DecomposeCommand(command)
	if len(segs) == 0 {
		return model.Classification{Level: model.L0, Reason: "no command to run", Deterministic: true}
	}

	var (
		level    = model.L0
		reason   string
		unparsed bool
	)
	for i, seg := range segs {
		l, why := ClassifySegment(seg)
		if i == 0 || l > level {
			level = l
			reason = why
			if len(segs) > 1 {
				reason = fmt.Sprintf("%s: %s", quoteSegment(seg), why)
			}
		}
		unparsed = unparsed || seg.Unparsed
	}
	if unparsed && level < model.L1 {
		level = model.L1
		reason = "command could not be parsed"
	}
	return model.Classification{Level: level, Reason: reason, Deterministic: true}
}

func quoteSegment(seg Segment) string {
	raw := seg.Raw
	if len(raw) > 60 {
		raw = raw[:57] + "..."
	}
	return "`" + raw + "`"
}

var forkBomb = regexp.MustCompile(`:\s*\(\s*\)\s*\{\s*:\s*\|\s*:\s*&\s*\}`)

var destructiveSQL = regexp.MustCompile(`(?i)\b(drop\s+(table|database|schema|index|view|user)|truncate\s+table|delete\s+from|alter\s+table\s+\S+\s+drop)\b`)

// ClassifySegment classifies one simple command.
func ClassifySegment(seg Segment) (model.RiskLevel, string) {
	if why, ok := forbiddenSegment(seg); ok {
		return model.L3, why
	}

	level, why := baseSegment(seg)
	raise := func(l model.RiskLevel, r string) {
		if l > level {
			level, why = l, r
		}
	}
	if destructiveSQL.MatchString(seg.Raw) {
		raise(model.L2, "destructive SQL statement")
	}
	for _, a := range seg.Args {
		if IsSecretPath(a) {
			raise(model.L2, fmt.Sprintf("touches credential material at %s", a))
			break
		}
	}
	if seg.Sudo {
		raise(model.L2, "runs with elevated privileges")
	}
	if seg.Opaque {
		raise(model.L2, "nested shell code too deep to inspect")
	}
	if writeRedirect(seg) != "" {
		raise(model.L1, "redirects output into a file")
	}
	if t := climbingWriteTarget(seg); t != "" {
		raise(model.L2, fmt.Sprintf("writes %s, which climbs toward a security-critical path", t))
	}
	return level, why
}

// climbingWriteTarget returns a write target that reaches a critical path
// through "..", if any.
func climbingWriteTarget(seg Segment) string {
	for _, r := range seg.Redirects {
		if isWriteRedirect(r) && climbsToCriticalPath(r.Target) {
			return r.Target
		}
	}
	for _, t := range writeTargets(seg) {
		if climbsToCriticalPath(t) {
			return t
		}
	}
	return ""
}

// forbiddenSegment holds the L3 patterns.
func forbiddenSegment(seg Segment) (string, bool) {
	exe := seg.Executable

	if seg.Func != "" && exe == seg.Func && slices.Contains(seg.Upstream, exe) {
		return "fork bomb", true
	}
	if isShellOrInterpreter(exe) {
		for _, up := range seg.Upstream {
			if isDownloadCommand(up) {
				return fmt.Sprintf("pipes a remote download (%s) into %s", up, exe), true
			}
		}
	}
	for _, r := range seg.Redirects {
		if !isWriteRedirect(r) {
			continue
		}
		if IsCriticalPath(r.Target) {
			return fmt.Sprintf("redirects output onto security-critical path %s", r.Target), true
		}
		if isBlockDevice(r.Target) {
			return fmt.Sprintf("writes raw data to block device %s", r.Target), true
		}
	}

	switch exe {
	case "rm":
		if hasFlag(seg.Flags, "no-preserve-root") {
			return "rm with --no-preserve-root", true
		}
		if hasFlag(seg.Flags, "r", "R", "recursive") {
			for _, a := range seg.Args {
				if isDestructiveTarget(a) {
					return fmt.Sprintf("recursive delete of %s", a), true
				}
			}
		}
	case "dd":
		for _, a := range seg.Args {
			if of, ok := strings.CutPrefix(a, "of="); ok && (isBlockDevice(of) || IsCriticalPath(of)) {
				return fmt.Sprintf("dd writes onto %s", of), true
			}
		}
	case "mkfs", "mke2fs", "wipefs", "mkswap":
		return fmt.Sprintf("%s formats a filesystem", exe), true
	case "chmod", "chown", "chgrp":
		if hasFlag(seg.Flags, "R", "recursive") {
			for _, a := range seg.Args {
				if isRootTarget(a) || isSystemDir(a) {
					return fmt.Sprintf("recursive %s on %s", exe, a), true
				}
			}
		}
	case "su":
		if seg.Sudo || !hasFlag(seg.Flags, "c") {
			return "opens an interactive root shell", true
		}
	case "sudo", "doas":
		if hasFlag(seg.Flags, "i", "s", "login", "shell") {
			return "opens an interactive root shell", true
		}
	}
	if strings.HasPrefix(exe, "mkfs.") {
		return fmt.Sprintf("%s formats a filesystem", exe), true
	}
	if seg.Sudo && isShellInterpreter(exe) && !hasFlag(seg.Flags, "c") && len(seg.Args) == 0 {
		return "opens an interactive root shell", true
	}

	for _, target := range writeTargets(seg) {
		if IsCriticalPath(target) {
			return fmt.Sprintf("%s modifies security-critical path %s", exe, target), true
		}
		if isBlockDevice(target) {
			return fmt.Sprintf("%s writes to block device %s", exe, target), true
		}
	}
	return "", false
}

// writeTargets lists the paths a known file-modifying command writes to.
func writeTargets(seg Segment) []string {
	args := seg.Args
	switch seg.Executable {
	case "tee", "rm", "shred", "truncate", "chattr", "unlink", "mv":
		return args
	case "chmod", "chown", "chgrp":
		if len(args) > 1 {
			return args[1:]
		}
	case "cp", "install", "ln", "rsync", "scp":
		if len(args) > 1 {
			return args[len(args)-1:]
		}
	case "sed", "perl":
		if hasFlag(seg.Flags, "i", "in-place") {
			return args
		}
	case "curl", "wget":
		if hasFlag(seg.Flags, "o", "O", "output", "output-document") {
			return args
		}
	}
	return nil
}

func isDownloadCommand(exe string) bool {
	switch exe {
	case "curl", "wget", "fetch", "aria2c", "http", "https", "xh":
		return true
	}
	return false
}

// isWriteRedirect reports output redirections that land in a file.
func isWriteRedirect(r Redirect) bool {
	switch r.Op {
	case ">", ">>", ">|", "&>", "&>>", "<>":
	default:
		return false
	}
	switch r.Target {
	case "", "/dev/null", "/dev/stdout", "/dev/stderr", "/dev/tty":
		return false
	}
	return true
}

func writeRedirect(seg Segment) string {
	for _, r := range seg.Redirects {
		if isWriteRedirect(r) {
			return r.Target
		}
	}
	return ""
}

// baseSegment classifies by command name and shape, before the escalations
// that apply to every segment.
func baseSegment(seg Segment) (model.RiskLevel, string) {
	exe := seg.Executable
	switch {
	case exe == "":
		if writeRedirect(seg) != "" {
			return model.L1, "truncates a file by redirection"
		}
		return model.L0, "no command"
	case strings.ContainsAny(exe, "$`"):
		return model.L2, "command name is computed at runtime"
	}

	if check, ok := commandChecks[exe]; ok {
		return check(seg)
	}
	if readOnlyCommands[exe] {
		return model.L0, fmt.Sprintf("%s is read-only", exe)
	}
	if routineCommands[exe] {
		return model.L1, fmt.Sprintf("%s is a routine command", exe)
	}
	if seg.Sudo || writeRedirect(seg) != "" {
		return model.L2, fmt.Sprintf("unrecognized command %s writes output or runs elevated", exe)
	}
	return model.L1, fmt.Sprintf("unrecognized command %s", exe)
}

var readOnlyCommands = set(
	"ls", "ll", "cat", "pwd", "echo", "printf", "grep", "egrep", "fgrep", "rg", "ag",
	"head", "tail", "wc", "sort", "uniq", "cut", "tr", "stat", "file", "du", "df",
	"which", "whereis", "whoami", "id", "groups", "date", "cal", "uname", "hostname",
	"ps", "pgrep", "uptime", "free", "less", "more", "diff", "cmp", "comm", "tree",
	"basename", "dirname", "realpath", "readlink", "jq", "column", "nl", "fold",
	"md5sum", "sha1sum", "sha256sum", "shasum", "cksum", "base64", "xxd", "hexdump",
	"od", "strings", "type", "lsof", "netstat", "ss", "dig", "nslookup", "host",
	"true", "false", "test", "[", "sleep", "cd", "pushd", "popd", "export", "declare",
	"local", "readonly", "typeset", "set", "unset", "alias", "locale", "tty", "nproc",
	"lscpu", "lsblk", "lsusb", "lspci", "vmstat", "iostat", "w", "who", "last",
	"man", "help", "seq", "yes", "expr", "bc", "tac", "rev", "look", "zcat", "zgrep",
	"journalctl", "dmesg", "getent", "command",
)

var routineCommands = set(
	"mkdir", "touch", "cp", "mv", "ln", "rmdir", "tee", "tar", "zip", "unzip",
	"gzip", "gunzip", "bzip2", "xz", "7z", "make", "cmake", "ninja", "gcc", "g++",
	"clang", "javac", "java", "mvn", "gradle", "dotnet", "rustc", "tsc", "eslint",
	"prettier", "black", "ruff", "pytest", "jest", "awk", "gawk", "patch", "ssh",
	"scp", "rsync", "ping", "traceroute", "nc", "telnet", "open", "xdg-open",
	"code", "vim", "vi", "nano", "emacs", "source", ".", "hash", "wait", "jobs",
	"bg", "fg", "trap", "read", "exit", "return", "shift", "let",
	"top", "htop", "watch", "ip", "ifconfig", "brew", "sqlite3", "psql", "mysql",
	"redis-cli", "mongo", "mongosh", "gh", "helm", "ansible", "ansible-playbook",
	"uv", "poetry", "pipx", "virtualenv", "conda", "bundle", "rake",
)

func set(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, s := range items {
		m[s] = true
	}
	return m
}

type segmentCheck func(Segment) (model.RiskLevel, string)

var commandChecks map[string]segmentCheck

func init() {
	commandChecks = map[string]segmentCheck{
		"rm":        checkRemove,
		"shred":     fixed(model.L2, "shred destroys file contents"),
		"unlink":    fixed(model.L2, "unlink deletes a file"),
		"truncate":  fixed(model.L2, "truncate discards file contents"),
		"git":       checkGit,
		"dd":        fixed(model.L2, "dd writes raw data"),
		"kill":      checkKill,
		"killall":   fixed(model.L2, "killall terminates processes by name"),
		"pkill":     fixed(model.L2, "pkill terminates processes by pattern"),
		"shutdown":  fixed(model.L2, "shuts the host down"),
		"reboot":    fixed(model.L2, "reboots the host"),
		"halt":      fixed(model.L2, "halts the host"),
		"poweroff":  fixed(model.L2, "powers the host off"),
		"init":      checkInit,
		"systemctl": checkSystemctl,
		"service":   checkService,
		"chmod":     checkChmod,
		"chown":     checkChown,
		"chgrp":     checkChown,
		"find":      checkFind,
		"sed":       checkSed,
		"docker":    checkContainer,
		"podman":    checkContainer,
		"kubectl":   checkKubectl,
		"terraform": checkTerraform,
		"tofu":      checkTerraform,
		"crontab":   checkCrontab,
		"env":       fixed(model.L2, "prints environment secrets"),
		"eval":      fixed(model.L2, "eval runs dynamically built code"),
		"printenv":  fixed(model.L2, "prints environment secrets"),
		"history":   checkHistory,
		"curl":      checkDownload,
		"wget":      checkDownload,
		"rsync":     checkRsync,
		"su":        fixed(model.L2, "switches user"),
		"sudo":      fixed(model.L2, "runs with elevated privileges"),
		"doas":      fixed(model.L2, "runs with elevated privileges"),
		"mount":     fixed(model.L2, "changes mounted filesystems"),
		"umount":    fixed(model.L2, "changes mounted filesystems"),
		"fdisk":     fixed(model.L2, "edits partition tables"),
		"parted":    fixed(model.L2, "edits partition tables"),
		"iptables":  fixed(model.L2, "changes firewall rules"),
		"ip6tables": fixed(model.L2, "changes firewall rules"),
		"nft":       fixed(model.L2, "changes firewall rules"),
		"ufw":       fixed(model.L2, "changes firewall rules"),
		"useradd":   fixed(model.L2, "changes user accounts"),
		"userdel":   fixed(model.L2, "changes user accounts"),
		"usermod":   fixed(model.L2, "changes user accounts"),
		"passwd":    fixed(model.L2, "changes account passwords"),
		"chpasswd":  fixed(model.L2, "changes account passwords"),
		"visudo":    fixed(model.L2, "edits sudo policy"),
	}
	for _, pm := range []string{"apt", "apt-get", "yum", "dnf", "zypper", "pacman", "apk", "snap", "port"} {
		commandChecks[pm] = checkSystemPackages
	}
	for _, pm := range []string{"npm", "yarn", "pnpm", "pip", "pip3", "gem", "cargo", "go", "composer", "brew"} {
		commandChecks[pm] = checkLanguagePackages
	}
	for exe := range shellInterpreters {
		commandChecks[exe] = checkShell
	}
	for exe := range codeInterpreters {
		commandChecks[exe] = checkInterpreter
	}
}

func fixed(level model.RiskLevel, reason string) segmentCheck {
	return func(Segment) (model.RiskLevel, string) { return level, reason }
}

func subcommand(seg Segment) string {
	if len(seg.Args) == 0 {
		return ""
	}
	return seg.Args[0]
}

func checkRemove(seg Segment) (model.RiskLevel, string) {
	switch {
	case hasFlag(seg.Flags, "r", "R", "recursive") && hasFlag(seg.Flags, "f", "force"):
		return model.L2, "recursive force delete"
	case hasFlag(seg.Flags, "r", "R", "recursive"):
		return model.L2, "recursive delete"
	case hasFlag(seg.Flags, "f", "force"):
		return model.L2, "forced delete"
	}
	return model.L2, "deletes files"
}

var gitReadOnly = set(
	"status", "log", "diff", "show", "blame", "rev-parse", "ls-files", "ls-tree",
	"describe", "grep", "shortlog", "remote", "config", "reflog", "cat-file",
	"whatchanged", "version", "help",
)

func checkGit(seg Segment) (model.RiskLevel, string) {
	sub := subcommand(seg)
	rest := seg.Args
	if len(rest) > 0 {
		rest = rest[1:]
	}
	switch sub {
	case "push":
		if hasFlag(seg.Flags, "f", "force", "force-with-lease", "mirror", "delete") {
			return model.L2, "git push rewrites remote history"
		}
		for _, a := range rest {
			if strings.HasPrefix(a, "+") || strings.HasPrefix(a, ":") {
				return model.L2, "git push rewrites remote history"
			}
		}
		return model.L1, "git push"
	case "reset":
		if hasFlag(seg.Flags, "hard", "merge", "keep") {
			return model.L2, "git reset discards work"
		}
	case "clean":
		if hasFlag(seg.Flags, "f", "force") {
			return model.L2, "git clean deletes untracked files"
		}
	case "branch":
		if hasFlag(seg.Flags, "D", "d", "delete") {
			return model.L2, "deletes a branch"
		}
		return model.L0, "git branch listing"
	case "checkout", "restore", "switch":
		if hasFlag(seg.Flags, "f", "force", "discard-changes") || slices.Contains(rest, ".") {
			return model.L2, "discards working tree changes"
		}
	case "stash":
		if len(rest) > 0 && (rest[0] == "drop" || rest[0] == "clear") {
			return model.L2, "discards stashed work"
		}
	case "filter-branch", "filter-repo":
		return model.L2, "rewrites repository history"
	case "tag":
		if hasFlag(seg.Flags, "d", "delete") {
			return model.L2, "deletes a tag"
		}
		if len(rest) == 0 || hasFlag(seg.Flags, "l", "list") {
			return model.L0, "git tag listing"
		}
	}
	if gitReadOnly[sub] || sub == "" {
		return model.L0, "read-only git command"
	}
	return model.L1, fmt.Sprintf("git %s", sub)
}

func checkKill(seg Segment) (model.RiskLevel, string) {
	if hasFlag(seg.Flags, "9") || slices.Contains(seg.Words, "-KILL") || slices.Contains(seg.Words, "-SIGKILL") {
		return model.L2, "kill -9 terminates without cleanup"
	}
	if hasFlag(seg.Flags, "l") {
		return model.L0, "lists signals"
	}
	return model.L1, "sends a signal to a process"
}

func checkInit(seg Segment) (model.RiskLevel, string) {
	switch subcommand(seg) {
	case "0", "6":
		return model.L2, "changes runlevel to halt or reboot"
	}
	return model.L1, "init"
}

func checkSystemctl(seg Segment) (model.RiskLevel, string) {
	switch sub := subcommand(seg); sub {
	case "", "status", "is-active", "is-enabled", "is-failed", "list-units",
		"list-unit-files", "list-timers", "show", "cat":
		return model.L0, "read-only systemctl query"
	case "stop", "disable", "mask", "kill", "reboot", "poweroff", "halt",
		"kexec", "isolate", "rescue", "emergency":
		return model.L2, fmt.Sprintf("systemctl %s", sub)
	default:
		return model.L1, fmt.Sprintf("systemctl %s", sub)
	}
}

func checkService(seg Segment) (model.RiskLevel, string) {
	if len(seg.Args) > 1 && seg.Args[1] == "stop" {
		return model.L2, "stops a service"
	}
	if len(seg.Args) > 1 && seg.Args[1] == "status" {
		return model.L0, "service status"
	}
	return model.L1, "service control"
}

func isWorldWritable(mode string) bool {
	mode = strings.ToLower(mode)
	if mode == "777" || mode == "0777" || mode == "666" || mode == "0666" {
		return true
	}
	if strings.HasPrefix(mode, "+") && strings.Contains(mode, "w") {
		return true
	}
	for _, who := range []string{"a+", "o+"} {
		if i := strings.Index(mode, who); i >= 0 && strings.Contains(mode[i:], "w") {
			return true
		}
	}
	return false
}

func checkChmod(seg Segment) (model.RiskLevel, string) {
	if len(seg.Args) > 0 && isWorldWritable(seg.Args[0]) {
		return model.L2, "makes files world-writable"
	}
	if hasFlag(seg.Flags, "R", "recursive") {
		return model.L2, "recursive permission change"
	}
	return model.L1, "changes file permissions"
}

func checkChown(seg Segment) (model.RiskLevel, string) {
	if hasFlag(seg.Flags, "R", "recursive") {
		return model.L2, "recursive ownership change"
	}
	return model.L1, "changes file ownership"
}

func checkFind(seg Segment) (model.RiskLevel, string) {
	for _, w := range seg.Words {
		switch w {
		case "-delete":
			return model.L2, "find deletes matches"
		case "-exec", "-execdir", "-ok", "-okdir":
			return model.L2, "find runs a command on every match"
		case "-fprint", "-fprintf", "-fls":
			return model.L1, "find writes results to a file"
		}
	}
	return model.L0, "find is read-only"
}

func checkSed(seg Segment) (model.RiskLevel, string) {
	if hasFlag(seg.Flags, "i", "in-place") {
		return model.L1, "edits files in place"
	}
	return model.L0, "sed without -i is read-only"
}

func checkContainer(seg Segment) (model.RiskLevel, string) {
	sub := subcommand(seg)
	switch sub {
	case "ps", "images", "logs", "inspect", "version", "info", "stats", "top", "history", "search", "port", "diff":
		return model.L0, fmt.Sprintf("%s %s is read-only", seg.Executable, sub)
	case "rm", "rmi", "kill", "prune":
		return model.L2, fmt.Sprintf("%s %s removes resources", seg.Executable, sub)
	case "system", "volume", "network", "image", "container", "builder":
		if len(seg.Args) > 1 {
			switch seg.Args[1] {
			case "prune", "rm", "remove":
				return model.L2, fmt.Sprintf("%s %s %s removes resources", seg.Executable, sub, seg.Args[1])
			case "ls", "list", "inspect", "df":
				return model.L0, fmt.Sprintf("%s %s %s is read-only", seg.Executable, sub, seg.Args[1])
			}
		}
	}
	if hasFlag(seg.Flags, "privileged") {
		return model.L2, "runs a privileged container"
	}
	return model.L1, fmt.Sprintf("%s %s", seg.Executable, sub)
}

func checkKubectl(seg Segment) (model.RiskLevel, string) {
	switch sub := subcommand(seg); sub {
	case "get", "describe", "logs", "explain", "version", "api-resources", "top", "diff", "auth", "config":
		return model.L0, fmt.Sprintf("kubectl %s is read-only", sub)
	case "delete", "drain", "cordon", "replace":
		return model.L2, fmt.Sprintf("kubectl %s", sub)
	default:
		return model.L1, fmt.Sprintf("kubectl %s", sub)
	}
}

func checkTerraform(seg Segment) (model.RiskLevel, string) {
	switch sub := subcommand(seg); sub {
	case "destroy", "apply", "import", "taint", "state":
		return model.L2, fmt.Sprintf("%s %s changes infrastructure", seg.Executable, sub)
	case "plan", "validate", "fmt", "show", "output", "version", "providers", "graph":
		return model.L0, fmt.Sprintf("%s %s", seg.Executable, sub)
	default:
		return model.L1, fmt.Sprintf("%s %s", seg.Executable, sub)
	}
}

func checkCrontab(seg Segment) (model.RiskLevel, string) {
	if hasFlag(seg.Flags, "l") {
		return model.L0, "lists crontab"
	}
	return model.L2, "installs or removes scheduled jobs"
}

func checkHistory(seg Segment) (model.RiskLevel, string) {
	if hasFlag(seg.Flags, "c", "d", "w") {
		return model.L2, "rewrites shell history"
	}
	return model.L0, "history"
}

func checkDownload(seg Segment) (model.RiskLevel, string) {
	method := strings.ToUpper(seg.Flags["request"])
	if method == "" {
		method = strings.ToUpper(seg.Flags["method"])
	}
	for i, w := range seg.Words {
		if (w == "-X" || w == "--request") && i+1 < len(seg.Words) {
			method = strings.ToUpper(seg.Words[i+1])
		}
	}
	for _, a := range seg.Args {
		if private, sensitive, ok := urlRisk(a); ok {
			if private {
				return model.L2, fmt.Sprintf("%s targets a private or metadata address", seg.Executable)
			}
			if sensitive {
				return model.L2, fmt.Sprintf("%s targets a payment or credential endpoint", seg.Executable)
			}
		}
	}
	switch method {
	case "DELETE":
		return model.L2, fmt.Sprintf("%s sends a DELETE request", seg.Executable)
	}
	return model.L1, fmt.Sprintf("%s makes a network request", seg.Executable)
}

func checkRsync(seg Segment) (model.RiskLevel, string) {
	for name := range seg.Flags {
		if strings.HasPrefix(name, "delete") || name == "remove-source-files" {
			return model.L2, "rsync deletes files"
		}
	}
	return model.L1, "rsync copies files"
}

var packageRemoval = set("remove", "purge", "autoremove", "erase", "uninstall", "del", "rm")

func checkSystemPackages(seg Segment) (model.RiskLevel, string) {
	sub := subcommand(seg)
	switch {
	case packageRemoval[sub], seg.Executable == "pacman" && hasFlag(seg.Flags, "R"):
		return model.L2, fmt.Sprintf("%s removes packages", seg.Executable)
	case sub == "list" || sub == "search" || sub == "show" || sub == "info" || sub == "policy":
		return model.L0, fmt.Sprintf("%s %s is read-only", seg.Executable, sub)
	}
	return model.L1, fmt.Sprintf("%s %s", seg.Executable, sub)
}

var languageReadOnly = set(
	"list", "ls", "view", "info", "show", "search", "outdated", "version",
	"env", "doc", "vet", "freeze", "audit", "why", "help",
)

func checkLanguagePackages(seg Segment) (model.RiskLevel, string) {
	sub := subcommand(seg)
	switch {
	case packageRemoval[sub]:
		return model.L2, fmt.Sprintf("%s removes packages", seg.Executable)
	case sub == "" && hasFlag(seg.Flags, "version", "v", "V", "help", "h"):
		return model.L0, fmt.Sprintf("%s version", seg.Executable)
	case languageReadOnly[sub]:
		return model.L0, fmt.Sprintf("%s %s is read-only", seg.Executable, sub)
	case sub == "publish" || sub == "unpublish" || sub == "yank" || sub == "deprecate":
		return model.L2, fmt.Sprintf("%s %s changes a public registry", seg.Executable, sub)
	}
	return model.L1, strings.TrimSpace(fmt.Sprintf("%s %s", seg.Executable, sub))
}

func checkShell(seg Segment) (model.RiskLevel, string) {
	if hasFlag(seg.Flags, "c") {
		return model.L1, fmt.Sprintf("%s runs inline code", seg.Executable)
	}
	if len(seg.Args) == 0 && len(seg.Upstream) > 0 {
		return model.L2, fmt.Sprintf("%s executes commands read from a pipe", seg.Executable)
	}
	return model.L1, fmt.Sprintf("%s runs a script", seg.Executable)
}

var dangerousInlineCode = regexp.MustCompile(`(?i)(rmtree|os\.remove|os\.unlink|unlinksync|rmsync|fs\.rm|os\.system|subprocess|child_process|exec\(|system\(|` + "`" + `|rm\s+-[a-z]*[rf])`)

func checkInterpreter(seg Segment) (model.RiskLevel, string) {
	inline := hasFlag(seg.Flags, "c", "e", "eval", "r")
	if !inline {
		if len(seg.Args) == 0 && len(seg.Upstream) > 0 {
			return model.L2, fmt.Sprintf("%s executes code read from a pipe", seg.Executable)
		}
		return model.L1, fmt.Sprintf("%s runs a script", seg.Executable)
	}
	for _, a := range seg.Args {
		if dangerousInlineCode.MatchString(a) {
			return model.L2, fmt.Sprintf("%s inline code deletes files or spawns processes", seg.Executable)
		}
	}
	return model.L1, fmt.Sprintf("%s runs inline code", seg.Executable)
}
