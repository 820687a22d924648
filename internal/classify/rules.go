package classify

import (
	"fmt"
	"path"
	"regexp"

	"github.com/ppiankov/warden/internal/model"
)

// Rule is a user-supplied classification. Tool is a glob over tool names;
// Command, when set, is a regular expression matched against the shell
// command line, or against the rendered arguments for other tools.
type Rule struct {
	Tool    string          `yaml:"tool" json:"tool"`
	Command string          `yaml:"command,omitempty" json:"command,omitempty"`
	Level   model.RiskLevel `yaml:"level" json:"level"`
	Reason  string          `yaml:"reason,omitempty" json:"reason,omitempty"`
}

type compiledRule struct {
	Rule
	command *regexp.Regexp
}

// RuleSet evaluates user rules ahead of the built-in table. A nil RuleSet
// has no user rules.
type RuleSet struct {
	rules []compiledRule
}

// NewRuleSet validates and compiles rules, keeping their order.
func NewRuleSet(rules []Rule) (*RuleSet, error) {
	rs := &RuleSet{rules: make([]compiledRule, 0, len(rules))}
	for i, r := range rules {
		if r.Tool == "" {
			return nil, fmt.Errorf("rule %d: tool is required", i)
		}
		if _, err := path.Match(r.Tool, ""); err != nil {
			return nil, fmt.Errorf("rule %d: bad tool pattern %q: %w", i, r.Tool, err)
		}
		if !r.Level.Valid() {
			return nil, fmt.Errorf("rule %d: invalid level %d", i, int(r.Level))
		}
		cr := compiledRule{Rule: r}
		if r.Command != "" {
			re, err := regexp.Compile(r.Command)
			if err != nil {
				return nil, fmt.Errorf("rule %d: bad command pattern: %w", i, err)
			}
			cr.command = re
		}
		rs.rules = append(rs.rules, cr)
	}
	return rs, nil
}

// Rules returns the rules in evaluation order.
func (rs *RuleSet) Rules() []Rule {
	if rs == nil {
		return nil
	}
	out := make([]Rule, len(rs.rules))
	for i, r := range rs.rules {
		out[i] = r.Rule
	}
	return out
}

// Classify runs user rules first, then the built-in table. A user rule can
// raise or lower a level, but never below a built-in L3.
func (rs *RuleSet) Classify(toolName string, args map[string]any) (model.Classification, bool) {
	builtin, builtinOK := ClassifyDeterministic(toolName, args)
	if rs == nil {
		return builtin, builtinOK
	}

	for _, r := range rs.rules {
		if !r.matches(toolName, args) {
			continue
		}
		if builtinOK && model.Forbidden(builtin.Level) && !model.Forbidden(r.Level) {
			return builtin, true
		}
		return model.Classification{Level: r.Level, Reason: r.reason(), Deterministic: true}, true
	}
	return builtin, builtinOK
}

func (r compiledRule) matches(toolName string, args map[string]any) bool {
	if ok, _ := path.Match(r.Tool, normalizeTool(toolName)); !ok {
		return false
	}
	if r.command == nil {
		return true
	}
	subject := model.DescribeArgs(args)
	if IsShellTool(toolName) {
		if cmd, ok := ShellCommand(args); ok {
			subject = cmd
		}
	}
	return r.command.MatchString(subject)
}

func (r compiledRule) reason() string {
	if r.Reason != "" {
		return r.Reason
	}
	if r.Command != "" {
		return fmt.Sprintf("matched rule %s /%s/", r.Tool, r.Command)
	}
	return fmt.Sprintf("matched rule %s", r.Tool)
}
