package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cadasto/openehr-assistant-mcp/internal/guides"
)

// ===== GUIDE TOOLS =====

type guideSearchInput struct {
	Query    string `json:"query,omitempty" jsonschema:"What guidance you need (e.g. cardinality vs occurrences, slot constraints); leave empty to list all guides"`
	Category string `json:"category,omitempty" jsonschema:"Optional guide category filter, e.g. archetypes or templates"`
	TaskType string `json:"taskType,omitempty" jsonschema:"Optional task hint, e.g. lint, review, refactor, author; matches guides containing it"`
}

type guideSearchOutput struct {
	Items []guides.SearchItem `json:"items" jsonschema:"Matching guide snippets with canonical guide URIs"`
}

type guideGetInput struct {
	URI      string `json:"uri,omitempty" jsonschema:"Canonical guide URI (openehr://guides/{category}/{name}); optional when category and name are given"`
	Category string `json:"category,omitempty" jsonschema:"Guide category, e.g. archetypes or templates; optional when uri is given"`
	Name     string `json:"name,omitempty" jsonschema:"Guide file name without extension; optional when uri is given"`
}

type guideGetOutput struct {
	Title       string `json:"title" jsonschema:"Guide title"`
	Category    string `json:"category" jsonschema:"Guide category"`
	Name        string `json:"name" jsonschema:"Guide name"`
	ResourceURI string `json:"resourceUri" jsonschema:"Canonical guide URI"`
	Content     string `json:"content" jsonschema:"Guide markdown content"`
}

type idiomLookupInput struct {
	Pattern string `json:"pattern" jsonschema:"Symptom or pattern to look up, e.g. occurrences vs cardinality, coded text, slots"`
}

type idiomLookupOutput struct {
	Items []guides.IdiomItem `json:"items" jsonschema:"Matching ADL idiom snippets"`
}

func (s *Server) registerGuideTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "guide_search",
		Description: "Search openEHR guides metadata and content for small, model-ready snippets plus canonical " +
			"openehr://guides URIs. Use it to locate the right guidance on demand, then pull the full guide with `guide_get`.",
		Annotations: readOnly(),
	}, func(ctx context.Context, req *mcp.CallToolRequest, args guideSearchInput) (*mcp.CallToolResult, guideSearchOutput, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "guide_search")
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, "guide_search")
			s.metrics.RecordInvocation(ctx, "guide_search", time.Since(start), toolErr)
		}()
		s.logCall(ctx, "guide_search", args)

		items, err := s.guides.Search(ctx, args.Query, args.Category, args.TaskType)
		if err != nil {
			toolErr = fmt.Errorf("guide search failed: %w", err)
			return nil, guideSearchOutput{}, toolErr
		}

		output := guideSearchOutput{Items: items}
		out, err := jsonResult(output)
		if err != nil {
			toolErr = fmt.Errorf("failed to render result: %w", err)
			return nil, guideSearchOutput{}, toolErr
		}
		return out, output, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "guide_get",
		Description: "Retrieve a guide's full markdown content by URI or by category and name. Guides describe " +
			"modelling workflows, best practices, syntax checklists and anti-patterns.",
		Annotations: readOnly(),
	}, func(ctx context.Context, req *mcp.CallToolRequest, args guideGetInput) (*mcp.CallToolResult, guideGetOutput, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "guide_get")
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, "guide_get")
			s.metrics.RecordInvocation(ctx, "guide_get", time.Since(start), toolErr)
		}()
		s.logCall(ctx, "guide_get", args)

		guide, err := s.guides.Get(ctx, args.URI, args.Category, args.Name)
		if err != nil {
			toolErr = err
			return nil, guideGetOutput{}, toolErr
		}

		result := &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.EmbeddedResource{
					Resource: &mcp.ResourceContents{
						URI:      guide.URI,
						MIMEType: guides.MIMEType,
						Text:     guide.Content,
					},
				},
			},
		}
		return result, guideGetOutput{
			Title:       guide.Title,
			Category:    guide.Category,
			Name:        guide.Name,
			ResourceURI: guide.URI,
			Content:     guide.Content,
		}, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "guide_adl_idiom_lookup",
		Description: "Look up ADL idiom snippets for a symptom or pattern in the ADL idioms cheatsheet. " +
			"Provide the symptom or pattern (e.g. \"occurrences vs cardinality\", \"coded text\", \"slots\") to receive matching examples.",
		Annotations: readOnly(),
	}, func(ctx context.Context, req *mcp.CallToolRequest, args idiomLookupInput) (*mcp.CallToolResult, idiomLookupOutput, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "guide_adl_idiom_lookup")
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, "guide_adl_idiom_lookup")
			s.metrics.RecordInvocation(ctx, "guide_adl_idiom_lookup", time.Since(start), toolErr)
		}()
		s.logCall(ctx, "guide_adl_idiom_lookup", args)

		items, err := s.guides.ADLIdiomLookup(ctx, args.Pattern)
		if err != nil {
			toolErr = err
			return nil, idiomLookupOutput{}, toolErr
		}

		output := idiomLookupOutput{Items: items}
		out, err := jsonResult(output)
		if err != nil {
			toolErr = fmt.Errorf("failed to render result: %w", err)
			return nil, idiomLookupOutput{}, toolErr
		}
		return out, output, nil
	})
}
