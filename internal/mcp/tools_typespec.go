package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cadasto/openehr-assistant-mcp/internal/typespec"
)

// ===== TYPE SPECIFICATION TOOLS =====

type typeSpecSearchInput struct {
	NamePattern string `json:"namePattern" jsonschema:"Type name pattern of at least 3 characters; supports the * wildcard, e.g. ARCHETYPE_SLOT, ARCHETYPE_SL*, DV_*"`
	Keyword     string `json:"keyword,omitempty" jsonschema:"Optional case-insensitive substring filter applied to the raw JSON content"`
}

type typeSpecSearchOutput struct {
	Items []typespec.SearchItem `json:"items" jsonschema:"Matching openEHR type specifications"`
}

type typeSpecGetInput struct {
	Name      string `json:"name" jsonschema:"openEHR type name, e.g. DV_QUANTITY or COMPOSITION"`
	Component string `json:"component,omitempty" jsonschema:"Optional openEHR component, e.g. RM, AM or BASE; without it the first matching type is returned"`
}

func (s *Server) registerTypeSpecTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "type_specification_search",
		Description: "Search openEHR type specifications (BMM) by name pattern with an optional keyword filter. " +
			"Returns canonical definitions metadata and openehr://spec/type resource URIs; fetch the full " +
			"definition with `type_specification_get`.",
		Annotations: readOnly(),
	}, func(ctx context.Context, req *mcp.CallToolRequest, args typeSpecSearchInput) (*mcp.CallToolResult, typeSpecSearchOutput, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "type_specification_search")
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, "type_specification_search")
			s.metrics.RecordInvocation(ctx, "type_specification_search", time.Since(start), toolErr)
		}()
		s.logCall(ctx, "type_specification_search", args)

		items, err := s.typeSpecs.Search(ctx, args.NamePattern, args.Keyword)
		if err != nil {
			toolErr = fmt.Errorf("type specification search failed: %w", err)
			return nil, typeSpecSearchOutput{}, toolErr
		}

		output := typeSpecSearchOutput{Items: items}
		out, err := jsonResult(output)
		if err != nil {
			toolErr = fmt.Errorf("failed to render result: %w", err)
			return nil, typeSpecSearchOutput{}, toolErr
		}
		return out, output, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "type_specification_get",
		Description: "Retrieve the full specification of an openEHR type (class) as BMM JSON, including " +
			"properties, inheritance, constraints and documentation.",
		Annotations: readOnly(),
	}, func(ctx context.Context, req *mcp.CallToolRequest, args typeSpecGetInput) (*mcp.CallToolResult, map[string]any, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "type_specification_get")
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, "type_specification_get")
			s.metrics.RecordInvocation(ctx, "type_specification_get", time.Since(start), toolErr)
		}()
		s.logCall(ctx, "type_specification_get", args)

		spec, err := s.typeSpecs.Get(ctx, args.Name, args.Component)
		if err != nil {
			toolErr = err
			return nil, nil, toolErr
		}

		out, err := jsonResult(spec)
		if err != nil {
			toolErr = fmt.Errorf("failed to render result: %w", err)
			return nil, nil, toolErr
		}
		return out, spec, nil
	})
}
