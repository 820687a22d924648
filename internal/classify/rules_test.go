package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/warden/internal/model"
)

func TestNewRuleSetValidation(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
	}{
		{"missing tool", Rule{Level: model.L1}},
		{"bad glob", Rule{Tool: "[", Level: model.L1}},
		{"bad regexp", Rule{Tool: "shell", Command: "(", Level: model.L1}},
		{"bad level", Rule{Tool: "shell", Level: model.RiskLevel(7)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRuleSet([]Rule{tt.rule})
			assert.Error(t, err)
		})
	}
}

func TestRuleSetLowersBuiltin(t *testing.T) {
	rs, err := NewRuleSet([]Rule{
		{Tool: "shell", Command: `^rm -rf \./build$`, Level: model.L1, Reason: "build dir is disposable"},
	})
	require.NoError(t, err)

	c, ok := rs.Classify("shell", map[string]any{"command": "rm -rf ./build"})
	require.True(t, ok)
	assert.Equal(t, model.L1, c.Level)
	assert.Equal(t, "build dir is disposable", c.Reason)
	assert.True(t, c.Deterministic)

	c, _ = rs.Classify("shell", map[string]any{"command": "rm -rf ./src"})
	assert.Equal(t, model.L2, c.Level)
}

func TestRuleSetCannotLowerForbidden(t *testing.T) {
	rs, err := NewRuleSet([]Rule{{Tool: "shell", Command: "rm", Level: model.L0}})
	require.NoError(t, err)

	c, ok := rs.Classify("shell", map[string]any{"command": "rm -rf /"})
	require.True(t, ok)
	assert.Equal(t, model.L3, c.Level)
}

func TestRuleSetRaisesAndCoversUnknownTools(t *testing.T) {
	rs, err := NewRuleSet([]Rule{
		{Tool: "read_file", Command: "secret", Level: model.L2},
		{Tool: "github_*", Level: model.L1},
		{Tool: "*", Command: "launch_codes", Level: model.L3},
	})
	require.NoError(t, err)

	c, ok := rs.Classify("read_file", map[string]any{"path": "docs/secret-plan.md"})
	require.True(t, ok)
	assert.Equal(t, model.L2, c.Level)
	assert.Contains(t, c.Reason, "read_file")

	c, ok = rs.Classify("GitHub_Create_Issue", map[string]any{"title": "x"})
	require.True(t, ok)
	assert.Equal(t, model.L1, c.Level)

	c, ok = rs.Classify("anything", map[string]any{"payload": "launch_codes"})
	require.True(t, ok)
	assert.Equal(t, model.L3, c.Level)

	_, ok = rs.Classify("summon_dragon", nil)
	assert.False(t, ok)
}

func TestRuleSetFirstMatchWins(t *testing.T) {
	rs, err := NewRuleSet([]Rule{
		{Tool: "shell", Command: "deploy", Level: model.L2, Reason: "first"},
		{Tool: "shell", Level: model.L1, Reason: "second"},
	})
	require.NoError(t, err)

	c, _ := rs.Classify("shell", map[string]any{"command": "make deploy"})
	assert.Equal(t, "first", c.Reason)
	c, _ = rs.Classify("shell", map[string]any{"command": "make test"})
	assert.Equal(t, "second", c.Reason)
}

func TestNilRuleSetUsesBuiltins(t *testing.T) {
	var rs *RuleSet
	c, ok := rs.Classify("read_file", map[string]any{"path": "a.txt"})
	require.True(t, ok)
	assert.Equal(t, model.L0, c.Level)
	assert.Nil(t, rs.Rules())
}

func TestRulesFromYAML(t *testing.T) {
	var rules []Rule
	require.NoError(t, yaml.Unmarshal([]byte(`
- tool: shell
  command: '^terraform apply'
  level: L3
  reason: production infra is hands-off
- tool: jira_*
  level: l1
`), &rules))

	rs, err := NewRuleSet(rules)
	require.NoError(t, err)
	require.Len(t, rs.Rules(), 2)
	assert.Equal(t, model.L3, rs.Rules()[0].Level)
	assert.Equal(t, model.L1, rs.Rules()[1].Level)
}
