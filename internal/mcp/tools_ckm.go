package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cadasto/openehr-assistant-mcp/internal/ckm"
)

// ===== CKM TOOLS =====

type ckmSearchInput struct {
	Keyword               string `json:"keyword" jsonschema:"Query search string (one or multiple words); wildcards * supported; prefer meaningful clinical terms, e.g. blood pressure, medication, body weight"`
	Limit                 int    `json:"limit,omitempty" jsonschema:"Maximum number of result items to return; defaults to 20"`
	Offset                int    `json:"offset,omitempty" jsonschema:"Offset into the result set, for paging; defaults to 0"`
	RequireAllSearchWords *bool  `json:"requireAllSearchWords,omitempty" jsonschema:"Match all provided keywords (true) or any of them (false); defaults to true"`
}

func (in ckmSearchInput) requireAll() bool {
	return in.RequireAllSearchWords == nil || *in.RequireAllSearchWords
}

type archetypeGetInput struct {
	Identifier string `json:"identifier" jsonschema:"Archetype CID (e.g. 1013.1.7850) or archetype-id (e.g. openEHR-EHR-OBSERVATION.blood_pressure.v1)"`
	Format     string `json:"format,omitempty" jsonschema:"Desired representation: adl, xml or mindmap (case-insensitive); defaults to adl"`
}

type templateGetInput struct {
	Identifier string `json:"identifier" jsonschema:"Template CID (e.g. 1013.26.244)"`
	Format     string `json:"format,omitempty" jsonschema:"Desired representation: oet (design-time template source) or opt (flattened operational template); defaults to opt"`
}

type definitionOutput struct {
	Identifier string `json:"identifier" jsonschema:"Requested identifier"`
	Format     string `json:"format" jsonschema:"Format of the definition"`
	Definition string `json:"definition" jsonschema:"Definition in a markdown code block"`
}

func (s *Server) registerCKMTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "ckm_archetype_search",
		Description: "Search and discover candidate openEHR Archetypes in the Clinical Knowledge Manager (CKM). " +
			"Typically the first step: search by a domain keyword (e.g. \"blood pressure\", \"problem list\"), " +
			"inspect the returned metadata, then pass the CKM identifier (cid) to `ckm_archetype_get`. " +
			"Results are ranked by a score favouring archetype-id and name matches, published status and common projects.",
		Annotations: readOnly(),
	}, func(ctx context.Context, req *mcp.CallToolRequest, args ckmSearchInput) (*mcp.CallToolResult, ckm.ArchetypeSearchResult, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "ckm_archetype_search")
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, "ckm_archetype_search")
			s.metrics.RecordInvocation(ctx, "ckm_archetype_search", time.Since(start), toolErr)
		}()
		s.logCall(ctx, "ckm_archetype_search", args)

		result, err := s.ckm.ArchetypeSearch(ctx, ckm.ArchetypeSearchRequest{
			Keyword:               args.Keyword,
			Limit:                 args.Limit,
			Offset:                args.Offset,
			RequireAllSearchWords: args.requireAll(),
		})
		if err != nil {
			toolErr = err
			return nil, ckm.ArchetypeSearchResult{}, toolErr
		}

		out, err := jsonResult(result)
		if err != nil {
			toolErr = fmt.Errorf("failed to render result: %w", err)
			return nil, ckm.ArchetypeSearchResult{}, toolErr
		}
		return out, *result, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "ckm_archetype_get",
		Description: "Retrieve the full definition of an openEHR Archetype from CKM in a given format. " +
			"Use it after `ckm_archetype_search`, or when the CID (e.g. \"1013.1.7850\") or archetype-id " +
			"(e.g. \"openEHR-EHR-OBSERVATION.blood_pressure.v1\") is already known. " +
			"Formats: \"adl\" (ADL source, best for semantics and constraints), \"xml\" and \"mindmap\". " +
			"Use `guide_search` to find guides applicable to the archetype.",
		Annotations: readOnly(),
	}, func(ctx context.Context, req *mcp.CallToolRequest, args archetypeGetInput) (*mcp.CallToolResult, definitionOutput, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "ckm_archetype_get")
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, "ckm_archetype_get")
			s.metrics.RecordInvocation(ctx, "ckm_archetype_get", time.Since(start), toolErr)
		}()
		s.logCall(ctx, "ckm_archetype_get", args)

		format := args.Format
		if format == "" {
			format = ckm.DefaultArchetypeFormat
		}
		definition, err := s.ckm.ArchetypeGet(ctx, args.Identifier, format)
		if err != nil {
			toolErr = err
			return nil, definitionOutput{}, toolErr
		}

		return textResult(definition), definitionOutput{
			Identifier: args.Identifier,
			Format:     format,
			Definition: definition,
		}, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "ckm_template_search",
		Description: "Search and discover candidate openEHR Templates (OET or OPT) in the Clinical Knowledge Manager (CKM). " +
			"Search by one or more domain keywords (e.g. \"vital signs\", \"discharge summary\"), inspect the " +
			"returned metadata, then pass the CKM identifier (cid) to `ckm_template_get`.",
		Annotations: readOnly(),
	}, func(ctx context.Context, req *mcp.CallToolRequest, args ckmSearchInput) (*mcp.CallToolResult, ckm.TemplateSearchResult, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "ckm_template_search")
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, "ckm_template_search")
			s.metrics.RecordInvocation(ctx, "ckm_template_search", time.Since(start), toolErr)
		}()
		s.logCall(ctx, "ckm_template_search", args)

		result, err := s.ckm.TemplateSearch(ctx, ckm.TemplateSearchRequest{
			Keyword:               args.Keyword,
			Limit:                 args.Limit,
			Offset:                args.Offset,
			RequireAllSearchWords: args.requireAll(),
		})
		if err != nil {
			toolErr = err
			return nil, ckm.TemplateSearchResult{}, toolErr
		}

		out, err := jsonResult(result)
		if err != nil {
			toolErr = fmt.Errorf("failed to render result: %w", err)
			return nil, ckm.TemplateSearchResult{}, toolErr
		}
		return out, *result, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "ckm_template_get",
		Description: "Retrieve the full definition of an openEHR Template from CKM by its CID (e.g. \"1013.26.244\"). " +
			"Formats: \"oet\" (design-time template source) and \"opt\" (flattened operational template " +
			"containing all archetype constraints). Use `guide_search` to find guides applicable to the template.",
		Annotations: readOnly(),
	}, func(ctx context.Context, req *mcp.CallToolRequest, args templateGetInput) (*mcp.CallToolResult, definitionOutput, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "ckm_template_get")
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, "ckm_template_get")
			s.metrics.RecordInvocation(ctx, "ckm_template_get", time.Since(start), toolErr)
		}()
		s.logCall(ctx, "ckm_template_get", args)

		format := args.Format
		if format == "" {
			format = ckm.DefaultTemplateFormat
		}
		definition, err := s.ckm.TemplateGet(ctx, args.Identifier, format)
		if err != nil {
			toolErr = err
			return nil, definitionOutput{}, toolErr
		}

		return textResult(definition), definitionOutput{
			Identifier: args.Identifier,
			Format:     format,
			Definition: definition,
		}, nil
	})
}
