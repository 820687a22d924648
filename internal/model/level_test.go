package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLevelOrdering(t *testing.T) {
	assert.True(t, L0 < L1)
	assert.True(t, L1 < L2)
	assert.True(t, L2 < L3)
	assert.Equal(t, L3, MaxLevel(L1, L3, L0))
	assert.Equal(t, L0, MaxLevel())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    RiskLevel
		wantErr bool
	}{
		{"L0", L0, false},
		{"l2", L2, false},
		{" L3 ", L3, false},
		{"L4", 0, true},
		{"high", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLevelJSONAndYAML(t *testing.T) {
	c := Classification{Level: L2, Reason: "rm -r", Deterministic: true}
	b, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `{"level":"L2","reason":"rm -r","deterministic":true}`, string(b))

	var back Classification
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, c, back)

	var fromYAML struct {
		Level RiskLevel `yaml:"level"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("level: L3\n"), &fromYAML))
	assert.Equal(t, L3, fromYAML.Level)

	assert.Error(t, yaml.Unmarshal([]byte("level: L9\n"), &fromYAML))
}

func TestApprovalAndForbidden(t *testing.T) {
	assert.False(t, RequiresApproval(L1))
	assert.True(t, RequiresApproval(L2))
	assert.False(t, RequiresApproval(L3))
	assert.True(t, Forbidden(L3))
	assert.False(t, Forbidden(L2))
}

func TestDescribeArgsStable(t *testing.T) {
	got := DescribeArgs(map[string]any{"path": "/tmp/x", "count": 2, "flags": []any{"a"}})
	assert.Equal(t, `count=2 flags=["a"] path=/tmp/x`, got)
}
