package mcp

import (
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// toolCatalog lists every tool the server registers. registerTools adds a
// handler for each entry.
func toolCatalog() []*ToolMetadata {
	return []*ToolMetadata{
		{
			Name:        "ckm_archetype_search",
			Description: "Search CKM for candidate archetypes by clinical keyword",
			Category:    CategoryCKM,
			Keywords:    []string{"archetype", "ckm", "discover"},
		},
		{
			Name:        "ckm_archetype_get",
			Description: "Retrieve an archetype definition from CKM as adl, xml or mindmap",
			Category:    CategoryCKM,
			Keywords:    []string{"archetype", "adl", "definition"},
		},
		{
			Name:        "ckm_template_search",
			Description: "Search CKM for candidate templates by keyword",
			Category:    CategoryCKM,
			Keywords:    []string{"template", "ckm", "discover"},
		},
		{
			Name:        "ckm_template_get",
			Description: "Retrieve a template definition from CKM as oet or opt",
			Category:    CategoryCKM,
			Keywords:    []string{"template", "opt", "oet"},
		},
		{
			Name:        "guide_search",
			Description: "Search the authoring guides for short task-relevant snippets",
			Category:    CategoryGuides,
			Keywords:    []string{"guide", "best practice", "snippet"},
		},
		{
			Name:        "guide_get",
			Description: "Retrieve the full markdown of a guide by URI or category and name",
			Category:    CategoryGuides,
			Keywords:    []string{"guide", "markdown"},
		},
		{
			Name:        "guide_adl_idiom_lookup",
			Description: "Look up ADL idiom snippets for a symptom or pattern",
			Category:    CategoryGuides,
			Keywords:    []string{"adl", "idiom", "cheatsheet"},
		},
		{
			Name:        "terminology_resolve",
			Description: "Resolve an openEHR terminology concept id to its rubric or back",
			Category:    CategoryTerminology,
			Keywords:    []string{"terminology", "rubric", "concept"},
		},
		{
			Name:        "type_specification_search",
			Description: "Search BMM type specifications by name pattern",
			Category:    CategoryTypeSpec,
			Keywords:    []string{"bmm", "type", "class"},
		},
		{
			Name:        "type_specification_get",
			Description: "Retrieve the BMM JSON definition of an openEHR type",
			Category:    CategoryTypeSpec,
			Keywords:    []string{"bmm", "type", "definition"},
		},
	}
}

// registerTools registers all MCP tools.
func (s *Server) registerTools() {
	s.registerCKMTools()
	s.registerGuideTools()
	s.registerTerminologyTools()
	s.registerTypeSpecTools()
}

// readOnly marks a tool as free of side effects.
func readOnly() *mcp.ToolAnnotations {
	return &mcp.ToolAnnotations{ReadOnlyHint: true}
}

// textResult wraps text in a tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// jsonResult renders v as indented JSON text.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return textResult(string(data)), nil
}
