package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/cadasto/openehr-assistant-mcp/internal/ckm"
	"github.com/cadasto/openehr-assistant-mcp/internal/guides"
	"github.com/cadasto/openehr-assistant-mcp/internal/logging"
	"github.com/cadasto/openehr-assistant-mcp/internal/prompts"
	"github.com/cadasto/openehr-assistant-mcp/internal/terminology"
	"github.com/cadasto/openehr-assistant-mcp/internal/typespec"
	"github.com/cadasto/openehr-assistant-mcp/resources"
)

const searchPayload = `[
  {"cid":"1013.1.100","resourceMainId":"openEHR-EHR-OBSERVATION.body_temperature.v2","resourceMainDisplayName":"Body temperature","projectName":"Other","status":"DRAFT"},
  {"cid":"1013.1.200","resourceMainId":"openEHR-EHR-OBSERVATION.blood_pressure.v2","resourceMainDisplayName":"Blood pressure","projectName":"Common Resources","status":"PUBLISHED"}
]`

// fakeCKM serves a small subset of the CKM REST API.
func fakeCKM(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/archetypes", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("search-text") == "fail" {
			http.Error(w, "boom", http.StatusBadGateway)
			return
		}
		w.Header().Set("X-Total-Count", "2")
		w.Header().Set("X-Require-All", r.URL.Query().Get("require-all-search-words"))
		_, _ = w.Write([]byte(searchPayload))
	})
	mux.HandleFunc("/v1/templates", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Total-Count", "1")
		_, _ = w.Write([]byte(`[{"cid":"1013.26.244","resourceMainDisplayName":"Vital signs","projectName":"Common Resources","status":"PUBLISHED","versionAsset":"3"}]`))
	})
	mux.HandleFunc("/v1/archetypes/1013.1.200/adl", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("archetype (adl_version=1.4)\n  openEHR-EHR-OBSERVATION.blood_pressure.v2\n"))
	})
	mux.HandleFunc("/v1/templates/1013.26.244/opt", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<template/>"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type testDeps struct {
	deps   Deps
	logger *logging.TestLogger
}

func newTestDeps(t *testing.T) testDeps {
	t.Helper()
	ctx := context.Background()
	tl := logging.NewTestLogger()

	client, err := ckm.NewClient(ckm.ClientConfig{BaseURL: fakeCKM(t).URL, SSLVerify: true}, tl.Logger)
	require.NoError(t, err)
	ckmSvc, err := ckm.NewService(client, tl.Logger)
	require.NoError(t, err)
	guideStore, err := guides.NewStore(resources.FS, tl.Logger)
	require.NoError(t, err)
	term, err := terminology.Load(resources.FS, terminology.DefaultPath, tl.Logger)
	require.NoError(t, err)
	specs, err := typespec.NewStore(resources.FS, tl.Logger)
	require.NoError(t, err)
	lib, err := prompts.Load(ctx, resources.FS, prompts.DefaultDir, tl.Logger)
	require.NoError(t, err)

	return testDeps{
		deps: Deps{
			CKM:         ckmSvc,
			Guides:      guideStore,
			Terminology: term,
			TypeSpecs:   specs,
			Prompts:     lib,
		},
		logger: tl,
	}
}

// connect starts s on an in-memory transport and returns a client session.
func connect(t *testing.T, s *Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	ss, err := s.MCPServer().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func newTestSession(t *testing.T) (*Server, *mcp.ClientSession, *logging.TestLogger) {
	t.Helper()
	td := newTestDeps(t)
	cfg := DefaultConfig()
	cfg.Logger = td.logger.Logger
	s, err := NewServer(cfg, td.deps)
	require.NoError(t, err)
	return s, connect(t, s), td.logger
}

func callTool(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	return res
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	return tc.Text
}

func TestNewServer(t *testing.T) {
	td := newTestDeps(t)

	t.Run("successful creation", func(t *testing.T) {
		s, err := NewServer(&Config{Name: "test", Version: "1.0.0", Logger: td.logger.Logger}, td.deps)
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.Equal(t, 10, s.Registry().Count())
	})

	t.Run("nil config uses defaults", func(t *testing.T) {
		s, err := NewServer(nil, td.deps)
		require.NoError(t, err)
		assert.Equal(t, DefaultSessionTimeout, s.sessionTimeout)
	})

	t.Run("prompts are optional", func(t *testing.T) {
		deps := td.deps
		deps.Prompts = nil
		_, err := NewServer(nil, deps)
		require.NoError(t, err)
	})

	tests := []struct {
		name    string
		mutate  func(*Deps)
		wantErr string
	}{
		{"missing CKM", func(d *Deps) { d.CKM = nil }, "CKM service is required"},
		{"missing guides", func(d *Deps) { d.Guides = nil }, "guide store is required"},
		{"missing terminology", func(d *Deps) { d.Terminology = nil }, "terminology is required"},
		{"missing type specs", func(d *Deps) { d.TypeSpecs = nil }, "type specification store is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := td.deps
			tt.mutate(&deps)
			_, err := NewServer(nil, deps)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestServer_Initialize(t *testing.T) {
	_, cs, _ := newTestSession(t)

	init := cs.InitializeResult()
	require.NotNil(t, init)
	assert.Equal(t, "openehr-assistant-mcp", init.ServerInfo.Name)
	assert.Contains(t, init.Instructions, "`ckm_archetype_search`")
	assert.Contains(t, init.Instructions, "`type_specification_get`")
}

func TestServer_ListTools(t *testing.T) {
	s, cs, _ := newTestSession(t)

	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
		require.NotNil(t, tool.Annotations, tool.Name)
		assert.True(t, tool.Annotations.ReadOnlyHint, tool.Name)
	}
	assert.ElementsMatch(t, s.Registry().ListNames(), names)
}

func TestTool_CKMArchetypeSearch(t *testing.T) {
	_, cs, _ := newTestSession(t)

	res := callTool(t, cs, "ckm_archetype_search", map[string]any{"keyword": "blood"})
	require.False(t, res.IsError, resultText(t, res))

	var result ckm.ArchetypeSearchResult
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &result))
	assert.Equal(t, 2, result.Total)
	require.Len(t, result.Items, 2)
	assert.Equal(t, "1013.1.200", result.Items[0].CID, "best match first")
	assert.Greater(t, result.Items[0].Score, result.Items[1].Score)
	assert.NotNil(t, res.StructuredContent)
}

func TestTool_CKMArchetypeSearch_UpstreamError(t *testing.T) {
	_, cs, tl := newTestSession(t)

	res := callTool(t, cs, "ckm_archetype_search", map[string]any{"keyword": "fail"})
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "Failed to search for CKM Archetypes")
	tl.AssertLogged(t, zapcore.ErrorLevel, "failed to search for CKM archetypes")
}

func TestTool_CKMArchetypeGet(t *testing.T) {
	_, cs, _ := newTestSession(t)

	res := callTool(t, cs, "ckm_archetype_get", map[string]any{"identifier": "1013.1.200"})
	require.False(t, res.IsError, resultText(t, res))
	text := resultText(t, res)
	assert.True(t, strings.HasPrefix(text, "```adl\n"), text)
	assert.Contains(t, text, "openEHR-EHR-OBSERVATION.blood_pressure.v2")

	res = callTool(t, cs, "ckm_archetype_get", map[string]any{"identifier": "1013.1.200", "format": "pdf"})
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "Invalid archetype format: pdf")
}

func TestTool_CKMTemplates(t *testing.T) {
	_, cs, _ := newTestSession(t)

	res := callTool(t, cs, "ckm_template_search", map[string]any{"keyword": "vital", "requireAllSearchWords": false})
	require.False(t, res.IsError, resultText(t, res))
	var result ckm.TemplateSearchResult
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &result))
	require.Len(t, result.Items, 1)
	assert.Equal(t, "3", result.Items[0].Version)

	res = callTool(t, cs, "ckm_template_get", map[string]any{"identifier": "1013.26.244"})
	require.False(t, res.IsError, resultText(t, res))
	assert.Equal(t, "```opt\n<template/>\n```", resultText(t, res))
}

func TestTool_GuideSearchAndGet(t *testing.T) {
	_, cs, _ := newTestSession(t)

	res := callTool(t, cs, "guide_search", map[string]any{"query": "occurrences", "category": "archetypes"})
	require.False(t, res.IsError, resultText(t, res))
	var found guideSearchOutput
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &found))
	require.NotEmpty(t, found.Items)
	for _, item := range found.Items {
		assert.Equal(t, "archetypes", item.Category)
	}

	res = callTool(t, cs, "guide_get", map[string]any{"uri": found.Items[0].ResourceURI})
	require.False(t, res.IsError)
	require.Len(t, res.Content, 1)
	embedded, ok := res.Content[0].(*mcp.EmbeddedResource)
	require.True(t, ok, "expected embedded resource, got %T", res.Content[0])
	assert.Equal(t, found.Items[0].ResourceURI, embedded.Resource.URI)
	assert.Equal(t, "text/markdown", embedded.Resource.MIMEType)
	assert.NotEmpty(t, embedded.Resource.Text)

	res = callTool(t, cs, "guide_get", map[string]any{"category": "archetypes", "name": "missing"})
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "Guide not found: archetypes/missing")
}

func TestTool_GuideADLIdiomLookup(t *testing.T) {
	_, cs, _ := newTestSession(t)

	res := callTool(t, cs, "guide_adl_idiom_lookup", map[string]any{"pattern": "cardinality"})
	require.False(t, res.IsError, resultText(t, res))
	var found idiomLookupOutput
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &found))
	require.NotEmpty(t, found.Items)
	assert.LessOrEqual(t, len(found.Items), guides.DefaultSectionLimit+2)
	assert.Equal(t, "openehr://guides/archetypes/adl-idioms-cheatsheet", found.Items[0].ResourceURI)
}

func TestTool_TerminologyResolve(t *testing.T) {
	_, cs, _ := newTestSession(t)

	res := callTool(t, cs, "terminology_resolve", map[string]any{"input": "433"})
	require.False(t, res.IsError, resultText(t, res))
	var r terminology.Resolution
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &r))
	assert.Equal(t, "event", r.Rubric)
	assert.Equal(t, "composition_category", r.GroupID)

	res = callTool(t, cs, "terminology_resolve", map[string]any{"input": "EVENT", "groupId": "composition_category"})
	require.False(t, res.IsError, resultText(t, res))
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &r))
	assert.Equal(t, "433", r.ID)

	res = callTool(t, cs, "terminology_resolve", map[string]any{"input": ""})
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "Input cannot be empty.")
}

func TestTool_TypeSpecification(t *testing.T) {
	_, cs, _ := newTestSession(t)

	res := callTool(t, cs, "type_specification_search", map[string]any{"namePattern": "DV_*"})
	require.False(t, res.IsError, resultText(t, res))
	var found typeSpecSearchOutput
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &found))
	require.NotEmpty(t, found.Items)
	for _, item := range found.Items {
		assert.True(t, strings.HasPrefix(item.Name, "DV_"), item.Name)
		assert.Equal(t, "RM", item.Component)
	}

	res = callTool(t, cs, "type_specification_get", map[string]any{"name": "COMPOSITION", "component": "RM"})
	require.False(t, res.IsError, resultText(t, res))
	var spec map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &spec))
	assert.Equal(t, "COMPOSITION", spec["name"])

	res = callTool(t, cs, "type_specification_get", map[string]any{"name": "NOPE_TYPE"})
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "Type 'NOPE_TYPE' not found")
}
