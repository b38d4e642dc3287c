package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// registerPrompts registers every prompt in the library.
func (s *Server) registerPrompts() {
	if s.prompts == nil {
		s.logger.Warn(context.Background(), "prompt library not configured, skipping prompts")
		return
	}

	for _, p := range s.prompts.List() {
		args := make([]*mcp.PromptArgument, 0, len(p.Arguments))
		for _, a := range p.Arguments {
			args = append(args, &mcp.PromptArgument{
				Name:        a.Name,
				Description: a.Description,
				Required:    a.Required,
			})
		}
		s.mcp.AddPrompt(&mcp.Prompt{
			Name:        p.Name,
			Title:       p.Title,
			Description: p.Description,
			Arguments:   args,
		}, s.getPrompt)
	}
}

func (s *Server) getPrompt(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	name := req.Params.Name
	s.logger.Debug(ctx, "prompt requested", zap.String("prompt", name), zap.Any("args", req.Params.Arguments))

	p, err := s.prompts.Get(name)
	if err != nil {
		return nil, err
	}

	rendered := p.Render(req.Params.Arguments)
	messages := make([]*mcp.PromptMessage, 0, len(rendered))
	for _, m := range rendered {
		messages = append(messages, &mcp.PromptMessage{
			Role:    mcp.Role(m.Role),
			Content: &mcp.TextContent{Text: m.Text},
		})
	}
	return &mcp.GetPromptResult{
		Description: p.Description,
		Messages:    messages,
	}, nil
}
