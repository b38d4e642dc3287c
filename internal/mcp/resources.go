package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/cadasto/openehr-assistant-mcp/internal/guides"
	"github.com/cadasto/openehr-assistant-mcp/internal/terminology"
	"github.com/cadasto/openehr-assistant-mcp/internal/typespec"
)

const (
	mimeJSON = "application/json"

	terminologyAllURI = "openehr://terminology/all"
)

var (
	terminologyURIPattern = regexp.MustCompile(`^openehr://terminology/([^/]+)/([^/]+)$`)
	guidelineURIPattern   = regexp.MustCompile(`^guidelines://([^/]+)/([^/]+)/([^/]+)$`)
	typeSpecURIPattern    = regexp.MustCompile(`^openehr://spec/type/([^/]+)/([^/]+)$`)
)

// registerResources registers the concrete resources and resource
// templates.
func (s *Server) registerResources(ctx context.Context) error {
	s.registerTerminologyResources()
	if err := s.registerGuideResources(ctx); err != nil {
		return err
	}
	if err := s.registerGuidelineResources(ctx); err != nil {
		return err
	}
	s.registerTypeSpecResources()
	return nil
}

// ===== TERMINOLOGY RESOURCES =====

func (s *Server) registerTerminologyResources() {
	s.mcp.AddResource(&mcp.Resource{
		URI:         terminologyAllURI,
		Name:        "terminology_all",
		Description: "The entire openEHR terminology",
		MIMEType:    mimeJSON,
	}, s.readTerminologyAll)

	s.mcp.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "openehr://terminology/{type}/{openehr_id}",
		Name:        "terminology",
		Description: "An openEHR terminology group or codeset",
		MIMEType:    mimeJSON,
	}, s.readTerminology)

	for _, g := range s.terminology.Groups() {
		s.mcp.AddResource(&mcp.Resource{
			URI:         fmt.Sprintf("openehr://terminology/%s/%s", terminology.TypeGroup, g.OpenEHRID),
			Name:        "terminology_group_" + g.OpenEHRID,
			Description: "Group: " + g.Name,
			MIMEType:    mimeJSON,
		}, s.readTerminology)
	}
	for _, c := range s.terminology.Codesets() {
		s.mcp.AddResource(&mcp.Resource{
			URI:         fmt.Sprintf("openehr://terminology/%s/%s", terminology.TypeCodeset, c.OpenEHRID),
			Name:        "terminology_codeset_" + c.OpenEHRID,
			Description: "Codeset: " + c.Name,
			MIMEType:    mimeJSON,
		}, s.readTerminology)
	}
}

func (s *Server) readTerminologyAll(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	s.logger.Debug(ctx, "resource read", zap.String("uri", req.Params.URI))
	return jsonContents(req.Params.URI, s.terminology.All())
}

func (s *Server) readTerminology(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := req.Params.URI
	s.logger.Debug(ctx, "resource read", zap.String("uri", uri))

	m := terminologyURIPattern.FindStringSubmatch(uri)
	if m == nil {
		return nil, mcp.ResourceNotFoundError(uri)
	}
	entry, err := s.terminology.Read(m[1], m[2])
	if err != nil {
		return nil, resourceError(uri, err)
	}
	return jsonContents(uri, entry)
}

// ===== GUIDE RESOURCES =====

func (s *Server) registerGuideResources(ctx context.Context) error {
	all, err := s.guides.Guides()
	if err != nil {
		return fmt.Errorf("failed to list guides: %w", err)
	}
	for _, g := range all {
		s.mcp.AddResource(&mcp.Resource{
			URI:         g.URI,
			Name:        fmt.Sprintf("guide_%s_%s", g.Category, g.Name),
			Title:       g.Title,
			Description: fmt.Sprintf("openEHR %s guide: %s", g.Category, g.Title),
			MIMEType:    guides.MIMEType,
			Size:        int64(len(g.Content)),
		}, s.readGuide)
	}
	s.logger.Debug(ctx, "registered guide resources", zap.Int("count", len(all)))

	s.mcp.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "openehr://guides/{category}/{name}",
		Name:        "guide",
		Description: "An openEHR authoring guide (markdown) identified by category and name",
		MIMEType:    guides.MIMEType,
	}, s.readGuide)
	return nil
}

func (s *Server) readGuide(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := req.Params.URI
	s.logger.Debug(ctx, "resource read", zap.String("uri", uri))

	guide, err := s.guides.Get(ctx, uri, "", "")
	if err != nil {
		return nil, resourceError(uri, err)
	}
	return textContents(uri, guides.MIMEType, guide.Content), nil
}

// ===== GUIDELINE RESOURCES =====

func (s *Server) registerGuidelineResources(ctx context.Context) error {
	all, err := s.guides.Guidelines(ctx)
	if err != nil {
		return err
	}
	for _, g := range all {
		s.mcp.AddResource(&mcp.Resource{
			URI:         g.URI,
			Name:        g.ResourceName,
			Description: g.Description,
			MIMEType:    guides.MIMEType,
			Size:        int64(len(g.Content)),
		}, s.readGuideline)
	}

	s.mcp.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "guidelines://{category}/{version}/{name}",
		Name:        "guideline",
		Description: "The openEHR Assistant guideline document (markdown) identified by category/version/name",
		MIMEType:    guides.MIMEType,
	}, s.readGuideline)
	return nil
}

func (s *Server) readGuideline(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := req.Params.URI
	s.logger.Debug(ctx, "resource read", zap.String("uri", uri))

	m := guidelineURIPattern.FindStringSubmatch(uri)
	if m == nil {
		return nil, mcp.ResourceNotFoundError(uri)
	}
	content, err := s.guides.ReadGuideline(m[1], m[2], m[3])
	if err != nil {
		return nil, resourceError(uri, err)
	}
	return textContents(uri, guides.MIMEType, content), nil
}

// ===== TYPE SPECIFICATION RESOURCES =====

func (s *Server) registerTypeSpecResources() {
	s.mcp.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "openehr://spec/type/{component}/{name}",
		Name:        "type_specification",
		Description: "An openEHR Type specification identified by component and type name, expressed in BMM JSON format",
		MIMEType:    mimeJSON,
	}, s.readTypeSpec)
}

func (s *Server) readTypeSpec(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := req.Params.URI
	s.logger.Debug(ctx, "resource read", zap.String("uri", uri))

	m := typeSpecURIPattern.FindStringSubmatch(uri)
	if m == nil {
		return nil, mcp.ResourceNotFoundError(uri)
	}
	spec, err := s.typeSpecs.Read(m[1], m[2])
	if err != nil {
		return nil, resourceError(uri, err)
	}
	return jsonContents(uri, spec)
}

// resourceError converts not-found errors into the protocol's
// resource-not-found error.
func resourceError(uri string, err error) error {
	if errors.Is(err, guides.ErrNotFound) ||
		errors.Is(err, terminology.ErrNotFound) ||
		errors.Is(err, typespec.ErrNotFound) {
		return mcp.ResourceNotFoundError(uri)
	}
	return err
}

func textContents(uri, mimeType, text string) *mcp.ReadResourceResult {
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{URI: uri, MIMEType: mimeType, Text: text},
		},
	}
}

func jsonContents(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", uri, err)
	}
	return textContents(uri, mimeJSON, string(data)), nil
}
