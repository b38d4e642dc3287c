package mcp

import (
	"context"
	"io/fs"
	"path"
	"regexp"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadasto/openehr-assistant-mcp/internal/prompts"
	"github.com/cadasto/openehr-assistant-mcp/resources"
)

// TestPromptToolArguments calls each tool with the argument names the
// bundled prompts tell the model to use.
func TestPromptToolArguments(t *testing.T) {
	_, cs, _ := newTestSession(t)

	tests := []struct {
		tool string
		args map[string]any
	}{
		{"ckm_archetype_search", map[string]any{"keyword": "blood pressure"}},
		{"ckm_archetype_get", map[string]any{"identifier": "1013.1.200", "format": "adl"}},
		{"ckm_template_search", map[string]any{"keyword": "vital signs"}},
		{"ckm_template_get", map[string]any{"identifier": "1013.26.244", "format": "opt"}},
		{"guide_search", map[string]any{"query": "review", "category": "archetypes", "taskType": "review"}},
		{"guide_get", map[string]any{"uri": "openehr://guides/archetypes/checklist"}},
		{"guide_get", map[string]any{"category": "templates", "name": "oet-syntax"}},
		{"guide_adl_idiom_lookup", map[string]any{"pattern": "cardinality"}},
		{"terminology_resolve", map[string]any{"input": "433", "groupId": "composition_category"}},
		{"type_specification_search", map[string]any{"namePattern": "DV_*", "keyword": "magnitude"}},
		{"type_specification_get", map[string]any{"name": "COMPOSITION", "component": "RM"}},
	}

	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			res := callTool(t, cs, tt.tool, tt.args)
			assert.False(t, res.IsError, "tool %s failed: %s", tt.tool, resultText(t, res))
		})
	}
}

var backticked = regexp.MustCompile("`([a-z]+(?:_[a-z]+)+)`")

// TestPromptsUseToolArgumentNames rejects snake_case spellings of camelCase
// tool arguments in prompt bodies.
func TestPromptsUseToolArgumentNames(t *testing.T) {
	_, cs, _ := newTestSession(t)

	tools, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)

	camel := map[string]string{} // camelCase property -> tool
	for _, tool := range tools.Tools {
		for name := range schemaProperties(t, tool) {
			if strings.ToLower(name) != name {
				camel[name] = tool.Name
			}
		}
	}
	require.Contains(t, camel, "taskType")

	entries, err := fs.ReadDir(resources.FS, prompts.DefaultDir)
	require.NoError(t, err)
	for _, e := range entries {
		body, err := fs.ReadFile(resources.FS, path.Join(prompts.DefaultDir, e.Name()))
		require.NoError(t, err)
		for _, m := range backticked.FindAllStringSubmatch(string(body), -1) {
			if tool, ok := camel[snakeToCamel(m[1])]; ok {
				t.Errorf("%s: `%s` should be `%s` (argument of %s)", e.Name(), m[1], snakeToCamel(m[1]), tool)
			}
		}
	}
}

func schemaProperties(t *testing.T, tool *mcp.Tool) map[string]any {
	t.Helper()
	schema, ok := tool.InputSchema.(map[string]any)
	require.True(t, ok, "tool %s: unexpected schema type %T", tool.Name, tool.InputSchema)
	props, _ := schema["properties"].(map[string]any)
	return props
}

func snakeToCamel(s string) string {
	parts := strings.Split(s, "_")
	for i := 1; i < len(parts); i++ {
		parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
	}
	return strings.Join(parts, "")
}

func TestSnakeToCamel(t *testing.T) {
	assert.Equal(t, "taskType", snakeToCamel("task_type"))
	assert.Equal(t, "requireAllSearchWords", snakeToCamel("require_all_search_words"))
}
