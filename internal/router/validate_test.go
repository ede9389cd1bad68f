package router

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func schemaTool() mcp.Tool {
	return mcp.NewTool("docs_search",
		mcp.WithString("query", mcp.Required()),
		mcp.WithNumber("limit"),
		mcp.WithBoolean("exact"),
		mcp.WithString("scope", mcp.Enum("all", "code", "docs"), mcp.DefaultString("all")),
	)
}

func TestValidateParams_CoercesAndDefaults(t *testing.T) {
	got, err := ValidateParams(schemaTool(), map[string]any{
		"query":   42,
		"limit":   "5",
		"exact":   "true",
		"unknown": "dropped",
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"query": "42",
		"limit": 5.0,
		"exact": true,
		"scope": "all",
	}, got)
}

func TestValidateParams_Failures(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
		param  string
	}{
		{"missing required", map[string]any{"limit": 3}, "query"},
		{"bad number", map[string]any{"query": "q", "limit": "many"}, "limit"},
		{"enum violation", map[string]any{"query": "q", "scope": "everything"}, "scope"},
		{"bad bool", map[string]any{"query": "q", "exact": "perhaps"}, "exact"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateParams(schemaTool(), tt.params)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.param, ve.Param)
			assert.Equal(t, "docs_search", ve.Tool)
		})
	}
}

func TestValidateParams_NilParams(t *testing.T) {
	tool := mcp.NewTool("repo_list")
	got, err := ValidateParams(tool, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCoerce_Integers(t *testing.T) {
	v, err := coerce("integer", nil, "7")
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	_, err = coerce("integer", nil, 2.5)
	assert.Error(t, err)
}

func TestCoerce_ArrayItems(t *testing.T) {
	prop := map[string]any{"items": map[string]any{"type": "number"}}
	v, err := coerce("array", prop, []string{"1", "2.5"})
	require.NoError(t, err)
	assert.Equal(t, []any{1.0, 2.5}, v)

	_, err = coerce("array", prop, "not a list")
	assert.Error(t, err)
}
