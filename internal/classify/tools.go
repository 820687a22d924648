package classify

import (
	"fmt"
	"sort"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"github.com/ppiankov/warden/internal/model"
)

// toolRule is one row of the built-in table. classify may abstain.
type toolRule struct {
	name     string
	tools    map[string]bool
	classify func(tool string, args map[string]any) (model.Classification, bool)
}

var (
	shellTools = set("shell", "exec", "bash", "sh", "run_command", "run_shell",
		"execute_command", "terminal", "command")
	homeTools = set("call_service", "home_assistant", "ha_call_service", "hass_call_service")
	readTools = set("read_file", "view_file", "cat_file", "list_dir", "list_directory",
		"list_files", "stat_file", "search", "search_files", "grep", "glob", "find_files",
		"web_search", "get_state", "get_states", "list_entities", "get_time",
		"read_calendar", "read_memory", "recall")
	networkTools = set("http_get", "http_request", "http", "fetch", "web_fetch", "fetch_url")
	deleteTools  = set("delete_file", "remove_file", "remove_dir", "delete_dir",
		"delete_directory", "rmdir", "unlink")
	writeTools = set("write_file", "edit_file", "create_file", "append_file", "patch_file",
		"apply_patch", "create_dir", "create_directory", "mkdir", "move_file",
		"rename_file", "copy_file", "send_message", "send_email", "remember",
		"write_memory")
)

var builtinRules = []toolRule{
	{name: "shell", tools: shellTools, classify: classifyShellTool},
	{name: "home automation", tools: homeTools, classify: classifyHomeTool},
	{name: "read-only", tools: readTools, classify: classifyReadTool},
	{name: "network", tools: networkTools, classify: classifyNetworkTool},
	{name: "delete", tools: deleteTools, classify: classifyDeleteTool},
	{name: "write", tools: writeTools, classify: classifyWriteTool},
}

// ToolGroup names a set of tools the built-in table recognizes.
type ToolGroup struct {
	Name  string   `json:"name"`
	Tools []string `json:"tools"`
}

// BuiltinToolGroups lists the built-in table in evaluation order.
func BuiltinToolGroups() []ToolGroup {
	groups := make([]ToolGroup, 0, len(builtinRules))
	for _, r := range builtinRules {
		tools := make([]string, 0, len(r.tools))
		for t := range r.tools {
			tools = append(tools, t)
		}
		sort.Strings(tools)
		groups = append(groups, ToolGroup{Name: r.name, Tools: tools})
	}
	return groups
}

var pathKeys = []string{
	"path", "paths", "file", "file_path", "filepath", "filename", "files",
	"target", "dir", "directory", "source", "src", "destination", "dest", "to", "from",
}

// ClassifyDeterministic applies the built-in rule table. ok is false when no
// rule covers the call, which is an abstention rather than an error.
func ClassifyDeterministic(toolName string, args map[string]any) (model.Classification, bool) {
	tool := normalizeTool(toolName)
	for _, r := range builtinRules {
		if !r.tools[tool] {
			continue
		}
		c, ok := r.classify(tool, args)
		if !ok {
			return model.Classification{}, false
		}
		c.Deterministic = true
		return c, true
	}
	return model.Classification{}, false
}

func normalizeTool(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// IsShellTool reports whether toolName runs a shell command line.
func IsShellTool(toolName string) bool {
	return shellTools[normalizeTool(toolName)]
}

// ShellCommand extracts the command line from a shell tool's arguments. An
// argv list is quoted back into a single line.
func ShellCommand(args map[string]any) (string, bool) {
	if cmd, ok := model.ArgString(args, "command", "cmd", "script"); ok {
		return cmd, true
	}
	argv := model.ArgStrings(args, "argv", "command")
	if len(argv) == 0 {
		return "", false
	}
	quoted := make([]string, 0, len(argv))
	for _, a := range argv {
		q, err := syntax.Quote(a, syntax.LangBash)
		if err != nil {
			return "", false
		}
		quoted = append(quoted, q)
	}
	return strings.Join(quoted, " "), true
}

func classifyShellTool(_ string, args map[string]any) (model.Classification, bool) {
	cmd, ok := ShellCommand(args)
	if !ok {
		return model.Classification{}, false
	}
	return ClassifyCommand(cmd), true
}

func classifyReadTool(tool string, args map[string]any) (model.Classification, bool) {
	for _, p := range model.ArgStrings(args, pathKeys...) {
		if IsSecretPath(p) {
			return model.Classification{Level: model.L2, Reason: fmt.Sprintf("%s reads credential material at %s", tool, p)}, true
		}
	}
	return model.Classification{Level: model.L0, Reason: fmt.Sprintf("%s is read-only", tool)}, true
}

func classifyWriteTool(tool string, args map[string]any) (model.Classification, bool) {
	for _, p := range model.ArgStrings(args, pathKeys...) {
		if IsCriticalPath(p) {
			return model.Classification{Level: model.L3, Reason: fmt.Sprintf("%s writes security-critical path %s", tool, p)}, true
		}
	}
	for _, p := range model.ArgStrings(args, pathKeys...) {
		if climbsToCriticalPath(p) {
			return model.Classification{Level: model.L2, Reason: fmt.Sprintf("%s writes %s, which climbs toward a security-critical path", tool, p)}, true
		}
	}
	return model.Classification{Level: model.L1, Reason: fmt.Sprintf("%s modifies state", tool)}, true
}

func classifyDeleteTool(tool string, args map[string]any) (model.Classification, bool) {
	for _, p := range model.ArgStrings(args, pathKeys...) {
		if IsCriticalPath(p) || isDestructiveTarget(p) {
			return model.Classification{Level: model.L3, Reason: fmt.Sprintf("%s deletes %s", tool, p)}, true
		}
	}
	return model.Classification{Level: model.L2, Reason: fmt.Sprintf("%s deletes data", tool)}, true
}

func classifyNetworkTool(tool string, args map[string]any) (model.Classification, bool) {
	target, ok := model.ArgString(args, "url", "uri", "endpoint")
	if !ok {
		return model.Classification{}, false
	}
	method, _ := model.ArgString(args, "method")
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" || tool == "http_get" {
		method = "GET"
	}

	private, sensitive, parsed := urlRisk(target)
	switch {
	case !parsed:
		return model.Classification{}, false
	case private:
		return model.Classification{Level: model.L2, Reason: fmt.Sprintf("%s to private or metadata address %s", method, target)}, true
	case sensitive:
		return model.Classification{Level: model.L2, Reason: fmt.Sprintf("%s to payment or credential endpoint %s", method, target)}, true
	}
	switch method {
	case "GET", "HEAD", "OPTIONS":
		return model.Classification{Level: model.L0, Reason: fmt.Sprintf("%s request", method)}, true
	}
	return model.Classification{Level: model.L1, Reason: fmt.Sprintf("%s request to %s", method, target)}, true
}

// sensitiveDomains are home-automation domains that control physical access.
var sensitiveDomains = set("lock", "alarm_control_panel", "cover", "garage", "garage_door", "siren")

func classifyHomeTool(_ string, args map[string]any) (model.Classification, bool) {
	domain, _ := model.ArgString(args, "domain")
	service, _ := model.ArgString(args, "service")
	if d, s, ok := strings.Cut(service, "."); ok && domain == "" {
		domain, service = d, s
	}
	if sensitiveDomains[strings.ToLower(domain)] {
		return model.Classification{Level: model.L2, Reason: fmt.Sprintf("%s.%s controls physical access", domain, service)}, true
	}
	for _, e := range model.ArgStrings(args, "entity_id", "entity_ids", "entity", "target") {
		e = strings.ToLower(e)
		entityDomain, _, _ := strings.Cut(e, ".")
		if sensitiveDomains[entityDomain] || strings.Contains(e, "garage") {
			return model.Classification{Level: model.L2, Reason: fmt.Sprintf("service call targets %s", e)}, true
		}
	}
	what := strings.Trim(domain+"."+service, ".")
	if what == "" {
		what = "home automation service"
	}
	return model.Classification{Level: model.L1, Reason: fmt.Sprintf("%s is a routine home automation call", what)}, true
}
