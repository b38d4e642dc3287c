package ckm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/cadasto/openehr-assistant-mcp/internal/logging"
)

// Search defaults.
const (
	DefaultSearchLimit     = 20
	DefaultArchetypeFormat = "adl"
	DefaultTemplateFormat  = "opt"
)

var nonCIDChars = regexp.MustCompile(`[^\d.]`)

// ArchetypeSearchRequest holds archetype search parameters.
type ArchetypeSearchRequest struct {
	Keyword               string
	Limit                 int
	Offset                int
	RequireAllSearchWords bool
}

// TemplateSearchRequest holds template search parameters.
type TemplateSearchRequest struct {
	Keyword               string
	Limit                 int
	Offset                int
	RequireAllSearchWords bool
}

// ArchetypeItem is a single archetype search hit.
type ArchetypeItem struct {
	CID              string `json:"cid"`
	ArchetypeID      string `json:"archetypeId"`
	Name             string `json:"name"`
	ProjectName      string `json:"projectName"`
	Status           string `json:"status"`
	Revision         string `json:"revision"`
	CreationTime     string `json:"creationTime"`
	ModificationTime string `json:"modificationTime"`
	Score            int    `json:"score"`
}

// TemplateItem is a single template search hit.
type TemplateItem struct {
	CID              string `json:"cid"`
	Name             string `json:"name"`
	ProjectName      string `json:"projectName"`
	Status           string `json:"status"`
	Version          string `json:"version"`
	CreationTime     string `json:"creationTime"`
	ModificationTime string `json:"modificationTime"`
	Score            int    `json:"score"`
}

// ArchetypeSearchResult holds ranked archetype hits and the upstream total.
type ArchetypeSearchResult struct {
	Items []ArchetypeItem `json:"items"`
	Total int             `json:"total"`
}

// TemplateSearchResult holds ranked template hits and the upstream total.
type TemplateSearchResult struct {
	Items []TemplateItem `json:"items"`
	Total int            `json:"total"`
}

// Service searches and retrieves archetypes and templates from CKM.
type Service struct {
	client Doer
	logger *logging.Logger
}

// NewService creates a CKM service.
func NewService(client Doer, logger *logging.Logger) (*Service, error) {
	if client == nil {
		return nil, fmt.Errorf("CKM client is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Service{client: client, logger: logger.Named("ckm")}, nil
}

// ArchetypeSearch lists archetypes matching the keyword, best match first.
func (s *Service) ArchetypeSearch(ctx context.Context, req ArchetypeSearchRequest) (*ArchetypeSearchResult, error) {
	s.logger.Debug(ctx, "archetype search",
		zap.String("keyword", req.Keyword),
		zap.Int("limit", req.Limit),
		zap.Int("offset", req.Offset),
		zap.Bool("require_all_search_words", req.RequireAllSearchWords),
	)

	query := searchQuery(req.Keyword, req.Limit, req.Offset, req.RequireAllSearchWords)
	resp, err := s.client.Get(ctx, "v1/archetypes", &RequestOptions{Query: query, Header: accept(ContentTypeJSON)})
	if err != nil {
		s.logger.Error(ctx, "failed to search for CKM archetypes", zap.Error(err))
		return nil, &opError{op: "Failed to search for CKM Archetypes", sentinel: ErrUpstream, err: err}
	}

	records, err := decodeRecords(resp.Body)
	if err != nil {
		s.logger.Error(ctx, "failed to decode CKM archetype response", zap.Error(err))
		return nil, &opError{op: "Failed to decode CKM Archetype response", sentinel: ErrDecode, err: err}
	}
	s.logger.Info(ctx, "found CKM archetypes", zap.String("keyword", req.Keyword), zap.Int("count", len(records)))

	items := make([]ArchetypeItem, 0, len(records))
	for _, r := range records {
		item := ArchetypeItem{
			CID:              r.str("cid"),
			ArchetypeID:      r.str("resourceMainId"),
			Name:             r.str("resourceMainDisplayName"),
			ProjectName:      r.str("projectName"),
			Status:           r.str("status"),
			Revision:         r.str("revision"),
			CreationTime:     r.str("creationTime"),
			ModificationTime: r.str("modificationTime"),
		}
		item.Score = archetypeScore(req.Keyword, r)
		items = append(items, item)
	}
	sortByScore(items, func(i ArchetypeItem) int { return i.Score })

	return &ArchetypeSearchResult{Items: items, Total: totalCount(resp.Header)}, nil
}

// TemplateSearch lists templates matching the keyword, best match first.
func (s *Service) TemplateSearch(ctx context.Context, req TemplateSearchRequest) (*TemplateSearchResult, error) {
	s.logger.Debug(ctx, "template search",
		zap.String("keyword", req.Keyword),
		zap.Int("limit", req.Limit),
		zap.Int("offset", req.Offset),
		zap.Bool("require_all_search_words", req.RequireAllSearchWords),
	)

	query := searchQuery(req.Keyword, req.Limit, req.Offset, req.RequireAllSearchWords)
	query.Set("template-type", "NORMAL")
	resp, err := s.client.Get(ctx, "v1/templates", &RequestOptions{Query: query, Header: accept(ContentTypeJSON)})
	if err != nil {
		s.logger.Error(ctx, "failed to search for CKM templates", zap.Error(err))
		return nil, &opError{op: "Failed to search for CKM Templates", sentinel: ErrUpstream, err: err}
	}

	records, err := decodeRecords(resp.Body)
	if err != nil {
		s.logger.Error(ctx, "failed to decode CKM template response", zap.Error(err))
		return nil, &opError{op: "Failed to decode CKM Template response", sentinel: ErrDecode, err: err}
	}
	s.logger.Info(ctx, "found CKM templates", zap.String("keyword", req.Keyword), zap.Int("count", len(records)))

	items := make([]TemplateItem, 0, len(records))
	for _, r := range records {
		item := TemplateItem{
			CID:              r.str("cid"),
			Name:             r.str("resourceMainDisplayName"),
			ProjectName:      r.str("projectName"),
			Status:           r.str("status"),
			Version:          r.str("versionAsset"),
			CreationTime:     r.str("creationTime"),
			ModificationTime: r.str("modificationTime"),
		}
		item.Score = templateScore(req.Keyword, r)
		items = append(items, item)
	}
	sortByScore(items, func(i TemplateItem) int { return i.Score })

	return &TemplateSearchResult{Items: items, Total: totalCount(resp.Header)}, nil
}

// ArchetypeGet retrieves an archetype definition by CID or archetype id
// and returns it wrapped in a markdown code fence.
func (s *Service) ArchetypeGet(ctx context.Context, identifier, format string) (string, error) {
	if format == "" {
		format = DefaultArchetypeFormat
	}
	archetypeFormat, err := ArchetypeFormat(format)
	if err != nil {
		return "", err
	}
	contentType, err := ContentType(archetypeFormat)
	if err != nil {
		return "", err
	}

	identifier = strings.TrimSpace(identifier)
	cid := s.resolveCID(ctx, identifier)

	path := fmt.Sprintf("v1/archetypes/%s/%s", url.PathEscape(cid), archetypeFormat)
	resp, err := s.client.Get(ctx, path, &RequestOptions{Header: accept(contentType)})
	if err != nil {
		s.logger.Error(ctx, "failed to retrieve the CKM archetype",
			zap.Error(err),
			zap.String("identifier", identifier),
			zap.String("cid", cid),
			zap.String("format", format),
		)
		return "", &opError{op: "Failed to retrieve the CKM Archetype", sentinel: ErrUpstream, err: err}
	}
	s.logger.Info(ctx, "CKM archetype retrieved",
		zap.String("cid", cid),
		zap.String("format", archetypeFormat),
		zap.Int("status", resp.StatusCode),
	)

	return codeFence(archetypeFormat, resp.Body), nil
}

// TemplateGet retrieves a template definition by CID and returns it
// wrapped in a markdown code fence.
func (s *Service) TemplateGet(ctx context.Context, identifier, format string) (string, error) {
	if format == "" {
		format = DefaultTemplateFormat
	}
	templateFormat, err := TemplateFormat(format)
	if err != nil {
		return "", err
	}
	contentType, err := ContentType(templateFormat)
	if err != nil {
		return "", err
	}

	cid := strings.TrimSpace(identifier)
	path := fmt.Sprintf("v1/templates/%s/%s", url.PathEscape(cid), templateFormat)
	resp, err := s.client.Get(ctx, path, &RequestOptions{Header: accept(contentType)})
	if err != nil {
		s.logger.Error(ctx, "failed to retrieve the CKM template",
			zap.Error(err),
			zap.String("identifier", identifier),
			zap.String("format", format),
		)
		return "", &opError{op: "Failed to retrieve the CKM Template", sentinel: ErrUpstream, err: err}
	}
	s.logger.Info(ctx, "CKM template retrieved",
		zap.String("cid", cid),
		zap.String("format", templateFormat),
		zap.Int("status", resp.StatusCode),
	)

	return codeFence(templateFormat, resp.Body), nil
}

// resolveCID maps an archetype id onto its CKM CID. Lookup failures fall
// back to sanitizing the identifier.
func (s *Service) resolveCID(ctx context.Context, identifier string) string {
	if strings.Contains(identifier, "openEHR-") {
		resp, err := s.client.Get(ctx, "v1/archetypes/citeable-identifier/"+url.PathEscape(identifier), nil)
		switch {
		case err != nil:
			s.logger.Error(ctx, "failed to resolve CID identifier", zap.Error(err), zap.String("identifier", identifier))
		case resp.StatusCode == http.StatusOK:
			if cid := strings.TrimSpace(string(resp.Body)); cid != "" {
				return cid
			}
		}
	}

	cid := nonCIDChars.ReplaceAllString(identifier, "-")
	if cid != identifier {
		s.logger.Warn(ctx, "identifier sanitized to CID", zap.String("identifier", identifier), zap.String("cid", cid))
	}
	return cid
}

func searchQuery(keyword string, limit, offset int, requireAll bool) url.Values {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if offset < 0 {
		offset = 0
	}
	q := url.Values{}
	q.Set("search-text", keyword)
	q.Set("size", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	q.Set("restrict-search-to-main-data", "true")
	q.Set("require-all-search-words", strconv.FormatBool(requireAll))
	return q
}

func accept(contentType string) http.Header {
	h := http.Header{}
	h.Set("Accept", contentType)
	return h
}

// totalCount reads the leading integer of X-Total-Count: optional
// whitespace and sign, then digits up to the first other character. A
// header without digits or with a negative total yields 0. Totals past
// the int range saturate.
func totalCount(h http.Header) int {
	v := strings.TrimLeft(h.Get("X-Total-Count"), " \t\n\r\v\f")
	end := 0
	if end < len(v) && (v[end] == '+' || v[end] == '-') {
		end++
	}
	start := end
	for end < len(v) && v[end] >= '0' && v[end] <= '9' {
		end++
	}
	if end == start || v[0] == '-' {
		return 0
	}
	n, err := strconv.Atoi(v[:end])
	if errors.Is(err, strconv.ErrRange) {
		return math.MaxInt
	}
	if err != nil {
		return 0
	}
	return n
}

func codeFence(format string, body []byte) string {
	return "```" + format + "\n" + string(bytes.TrimSpace(body)) + "\n```"
}

// record is a loosely typed CKM search record. CKM is inconsistent about
// scalar types, so fields are read as strings.
type record map[string]any

func (r record) str(key string) string {
	switch v := r[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func decodeRecords(body []byte) ([]record, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var records []record
	if err := dec.Decode(&records); err != nil {
		return nil, err
	}
	if records == nil {
		return nil, errors.New("response is not a JSON array")
	}
	return records, nil
}
