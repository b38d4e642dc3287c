package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cadasto/openehr-assistant-mcp/internal/terminology"
)

// ===== TERMINOLOGY TOOLS =====

type terminologyResolveInput struct {
	Input   string `json:"input" jsonschema:"Concept id (e.g. 433) or concept rubric (e.g. event) to resolve"`
	GroupID string `json:"groupId,omitempty" jsonschema:"Optional openEHR terminology group id (e.g. composition_category) to restrict the search"`
}

func (s *Server) registerTerminologyTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "terminology_resolve",
		Description: "Resolve an openEHR terminology concept id to its rubric, or find the concept id for a rubric. " +
			"A numeric input is treated as a concept id; anything else is matched case-insensitively against rubrics. " +
			"An optional groupId restricts the search to one terminology group.",
		Annotations: readOnly(),
	}, func(ctx context.Context, req *mcp.CallToolRequest, args terminologyResolveInput) (*mcp.CallToolResult, terminology.Resolution, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "terminology_resolve")
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, "terminology_resolve")
			s.metrics.RecordInvocation(ctx, "terminology_resolve", time.Since(start), toolErr)
		}()
		s.logCall(ctx, "terminology_resolve", args)

		resolution, err := s.terminology.Resolve(ctx, args.Input, args.GroupID)
		if err != nil {
			toolErr = err
			return nil, terminology.Resolution{}, toolErr
		}

		out, err := jsonResult(resolution)
		if err != nil {
			toolErr = fmt.Errorf("failed to render result: %w", err)
			return nil, terminology.Resolution{}, toolErr
		}
		return out, *resolution, nil
	})
}
