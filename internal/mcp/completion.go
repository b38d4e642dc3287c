package mcp

import (
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/cadasto/openehr-assistant-mcp/internal/terminology"
)

// maxCompletionValues is the protocol limit on returned values.
const maxCompletionValues = 100

const (
	refPrompt   = "ref/prompt"
	refResource = "ref/resource"
)

// completer returns candidate values for a partially typed argument.
// args holds the already resolved arguments of the same reference.
type completer func(value string, args map[string]string) []string

// fixed completes from a static list.
func fixed(values ...string) completer {
	return func(value string, _ map[string]string) []string {
		return withPrefix(values, value)
	}
}

// resourceCompleters builds the completers of the resource templates, keyed
// by template and argument name.
func (s *Server) resourceCompleters() map[string]map[string]completer {
	return map[string]map[string]completer{
		"guidelines://{category}/{version}/{name}": {
			"category": fixed("archetypes"),
			"version":  fixed("v1"),
			"name": func(value string, _ map[string]string) []string {
				return s.guides.GuidelineNames(value)
			},
		},
		"openehr://terminology/{type}/{openehr_id}": {
			"type":       fixed(terminology.TypeGroup, terminology.TypeCodeset),
			"openehr_id": s.terminologyIDs,
		},
		"openehr://spec/type/{component}/{name}": {
			"component": func(value string, _ map[string]string) []string {
				return s.typeSpecs.Components(value)
			},
		},
		"openehr://guides/{category}/{name}": {
			"category": fixed("archetypes", "templates"),
			"name": func(value string, _ map[string]string) []string {
				return s.guides.GuideNames(value)
			},
		},
	}
}

var (
	audiences = fixed("clinician", "developer", "data-analyst", "mixed")

	// promptCompleters apply to the named argument of any prompt.
	promptCompleters = map[string]completer{
		"audience":           audiences,
		"adl_version":        fixed("1.4", "2"),
		"translation_intent": fixed("add-new-language", "improve-existing-translation", "correct-terminology-phrasing"),
	}

	// taskTypes are the task_type values per prompt.
	taskTypes = map[string]completer{
		"design_or_review_archetype": fixed("design-new", "review-existing", "specialise-existing"),
		"design_or_review_template":  fixed("design-new", "review-existing"),
	}
)

// complete handles completion/complete requests.
func (s *Server) complete(ctx context.Context, req *mcp.CompleteRequest) (*mcp.CompleteResult, error) {
	params := req.Params
	values := []string{}
	if params != nil && params.Ref != nil {
		var args map[string]string
		if params.Context != nil {
			args = params.Context.Arguments
		}
		if c := s.completerFor(params.Ref, params.Argument.Name); c != nil {
			if found := c(params.Argument.Value, args); found != nil {
				values = found
			}
		}
		s.logger.Debug(ctx, "completion",
			zap.String("ref", params.Ref.Type),
			zap.String("argument", params.Argument.Name),
			zap.Int("count", len(values)),
		)
	}

	total := len(values)
	if total > maxCompletionValues {
		values = values[:maxCompletionValues]
	}
	return &mcp.CompleteResult{
		Completion: mcp.CompletionResultDetails{
			Values:  values,
			Total:   total,
			HasMore: total > len(values),
		},
	}, nil
}

func (s *Server) completerFor(ref *mcp.CompleteReference, argument string) completer {
	switch ref.Type {
	case refResource:
		return s.resourceCompleters()[ref.URI][argument]
	case refPrompt:
		if argument == "task_type" {
			return taskTypes[ref.Name]
		}
		return promptCompleters[argument]
	}
	return nil
}

// terminologyIDs lists group and codeset ids, narrowed by an already
// chosen type.
func (s *Server) terminologyIDs(value string, args map[string]string) []string {
	typ := strings.ToLower(strings.TrimSpace(args["type"]))

	var ids []string
	if typ == "" || typ == terminology.TypeGroup {
		for _, g := range s.terminology.Groups() {
			ids = append(ids, g.OpenEHRID)
		}
	}
	if typ == "" || typ == terminology.TypeCodeset {
		for _, c := range s.terminology.Codesets() {
			ids = append(ids, c.OpenEHRID)
		}
	}
	return withPrefix(ids, value)
}

// withPrefix returns the values starting with prefix, ignoring case.
func withPrefix(values []string, prefix string) []string {
	prefix = strings.ToLower(prefix)
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.HasPrefix(strings.ToLower(v), prefix) {
			out = append(out, v)
		}
	}
	return out
}
