package ckm

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/cadasto/openehr-assistant-mcp/internal/logging"
)

type recordedCall struct {
	path string
	opts *RequestOptions
}

// fakeDoer answers by path prefix and records every call.
type fakeDoer struct {
	calls     []recordedCall
	responses map[string]*Response
	errs      map[string]error
}

func (f *fakeDoer) Get(_ context.Context, path string, opts *RequestOptions) (*Response, error) {
	f.calls = append(f.calls, recordedCall{path: path, opts: opts})
	for prefix, err := range f.errs {
		if strings.HasPrefix(path, prefix) {
			return nil, err
		}
	}
	for prefix, resp := range f.responses {
		if strings.HasPrefix(path, prefix) {
			return resp, nil
		}
	}
	return nil, &HTTPError{StatusCode: http.StatusNotFound, Status: "404 Not Found", URL: path}
}

func newTestService(t *testing.T, doer Doer) (*Service, *logging.TestLogger) {
	t.Helper()
	tl := logging.NewTestLogger()
	svc, err := NewService(doer, tl.Logger)
	require.NoError(t, err)
	return svc, tl
}

func TestNewService_RequiresDeps(t *testing.T) {
	_, err := NewService(nil, logging.NewNop())
	assert.Error(t, err)
	_, err = NewService(&fakeDoer{}, nil)
	assert.Error(t, err)
}

const archetypePayload = `[
  {"cid":"1013.1.100","resourceMainId":"openEHR-EHR-OBSERVATION.body_temperature.v2","resourceMainDisplayName":"Body temperature","projectName":"Other","status":"DRAFT","revision":"2.1.0","creationTime":"2020-01-01","modificationTime":"2021-01-01"},
  {"cid":"1013.1.200","resourceMainId":"openEHR-EHR-OBSERVATION.blood_pressure.v2","resourceMainDisplayName":"Blood pressure","projectName":"Common Resources","status":"PUBLISHED","revision":2,"creationTime":null}
]`

func TestArchetypeSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/archetypes", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "blood", q.Get("search-text"))
		assert.Equal(t, "20", q.Get("size"))
		assert.Equal(t, "0", q.Get("offset"))
		assert.Equal(t, "true", q.Get("restrict-search-to-main-data"))
		assert.Equal(t, "true", q.Get("require-all-search-words"))
		assert.Equal(t, ContentTypeJSON, r.Header.Get("Accept"))

		w.Header().Set("X-Total-Count", "42")
		_, _ = w.Write([]byte(archetypePayload))
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{BaseURL: srv.URL, SSLVerify: true}, logging.NewNop())
	require.NoError(t, err)
	svc, tl := newTestService(t, client)

	res, err := svc.ArchetypeSearch(context.Background(), ArchetypeSearchRequest{
		Keyword:               "blood",
		RequireAllSearchWords: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 42, res.Total)
	require.Len(t, res.Items, 2)

	top := res.Items[0]
	assert.Equal(t, "1013.1.200", top.CID)
	assert.Equal(t, "openEHR-EHR-OBSERVATION.blood_pressure.v2", top.ArchetypeID)
	assert.Equal(t, "Blood pressure", top.Name)
	assert.Equal(t, "2", top.Revision)
	assert.Equal(t, "", top.CreationTime)
	assert.Equal(t, 4+4+1, top.Score)

	assert.Equal(t, "1013.1.100", res.Items[1].CID)
	assert.Equal(t, -1, res.Items[1].Score)

	tl.AssertLogged(t, zapcore.InfoLevel, "found CKM archetypes")
}

func TestArchetypeSearch_MissingTotal(t *testing.T) {
	doer := &fakeDoer{responses: map[string]*Response{
		"v1/archetypes": {StatusCode: 200, Header: http.Header{"X-Total-Count": {"n/a"}}, Body: []byte(`[]`)},
	}}
	svc, _ := newTestService(t, doer)

	res, err := svc.ArchetypeSearch(context.Background(), ArchetypeSearchRequest{Keyword: "x", Limit: 5, Offset: 10})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Total)
	assert.Empty(t, res.Items)

	q := doer.calls[0].opts.Query
	assert.Equal(t, "5", q.Get("size"))
	assert.Equal(t, "10", q.Get("offset"))
	assert.Equal(t, "false", q.Get("require-all-search-words"))
}

func TestTotalCount(t *testing.T) {
	tests := []struct {
		header string
		want   int
	}{
		{"42", 42},
		{" 42 ", 42},
		{"+7", 7},
		{"12 items", 12},
		{"3.9", 3},
		{"0012", 12},
		{"n/a", 0},
		{"", 0},
		{"-5", 0},
		{"+", 0},
		{"99999999999999999999999", math.MaxInt},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			assert.Equal(t, tt.want, totalCount(http.Header{"X-Total-Count": {tt.header}}))
		})
	}
	assert.Equal(t, 0, totalCount(http.Header{}))
}

func TestArchetypeSearch_Errors(t *testing.T) {
	t.Run("decode", func(t *testing.T) {
		doer := &fakeDoer{responses: map[string]*Response{"v1/archetypes": {StatusCode: 200, Body: []byte(`{oops`)}}}
		svc, _ := newTestService(t, doer)

		_, err := svc.ArchetypeSearch(context.Background(), ArchetypeSearchRequest{Keyword: "x"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrDecode)
		assert.True(t, strings.HasPrefix(err.Error(), "Failed to decode CKM Archetype response: "))
	})

	t.Run("upstream", func(t *testing.T) {
		doer := &fakeDoer{}
		svc, tl := newTestService(t, doer)

		_, err := svc.ArchetypeSearch(context.Background(), ArchetypeSearchRequest{Keyword: "x"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUpstream)
		assert.True(t, strings.HasPrefix(err.Error(), "Failed to search for CKM Archetypes: "))

		var httpErr *HTTPError
		assert.True(t, errors.As(err, &httpErr))
		assert.NotEmpty(t, tl.FilterMessage("failed to search for CKM archetypes").All())
	})
}

func TestTemplateSearch(t *testing.T) {
	doer := &fakeDoer{responses: map[string]*Response{
		"v1/templates": {
			StatusCode: 200,
			Header:     http.Header{"X-Total-Count": {"2"}},
			Body: []byte(`[
				{"cid":"1013.26.1","resourceMainDisplayName":"Other thing","projectName":"Misc","status":"INITIAL","versionAsset":"1"},
				{"cid":"1013.26.2","resourceMainDisplayName":"Vital signs","projectName":"Misc","status":"TEAMREVIEW","versionAsset":"3"}
			]`),
		},
	}}
	svc, _ := newTestService(t, doer)

	res, err := svc.TemplateSearch(context.Background(), TemplateSearchRequest{Keyword: "vital", RequireAllSearchWords: true})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Total)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "1013.26.2", res.Items[0].CID)
	assert.Equal(t, "3", res.Items[0].Version)
	assert.Equal(t, 3+2, res.Items[0].Score)
	assert.Equal(t, -2, res.Items[1].Score)

	q := doer.calls[0].opts.Query
	assert.Equal(t, "NORMAL", q.Get("template-type"))
	assert.Equal(t, "true", q.Get("require-all-search-words"))
}

func TestTemplateSearch_Errors(t *testing.T) {
	svc, _ := newTestService(t, &fakeDoer{})
	_, err := svc.TemplateSearch(context.Background(), TemplateSearchRequest{Keyword: "x"})
	assert.ErrorIs(t, err, ErrUpstream)
	assert.True(t, strings.HasPrefix(err.Error(), "Failed to search for CKM Templates: "))

	doer := &fakeDoer{responses: map[string]*Response{"v1/templates": {StatusCode: 200, Body: []byte(`null`)}}}
	svc, _ = newTestService(t, doer)
	_, err = svc.TemplateSearch(context.Background(), TemplateSearchRequest{Keyword: "x"})
	assert.ErrorIs(t, err, ErrDecode)
	assert.True(t, strings.HasPrefix(err.Error(), "Failed to decode CKM Template response: "))
}

func TestArchetypeGet_FallbackCID(t *testing.T) {
	doer := &fakeDoer{responses: map[string]*Response{
		"v1/archetypes/123.45-/": {StatusCode: 200, Body: []byte("\n archetype (adl_version=1.4)\n ")},
	}}
	svc, tl := newTestService(t, doer)

	out, err := svc.ArchetypeGet(context.Background(), " 123.45a ", "")
	require.NoError(t, err)

	require.Len(t, doer.calls, 1)
	call := doer.calls[0]
	assert.True(t, strings.HasPrefix(call.path, "v1/archetypes/123.45-"))
	assert.True(t, strings.HasSuffix(call.path, "/adl"))
	assert.Equal(t, ContentTypeText, call.opts.Header.Get("Accept"))

	assert.Equal(t, "```adl\narchetype (adl_version=1.4)\n```", out)
	assert.NotEmpty(t, tl.FilterMessage("identifier sanitized to CID").All())
}

func TestArchetypeGet_CiteableIdentifier(t *testing.T) {
	doer := &fakeDoer{responses: map[string]*Response{
		"v1/archetypes/citeable-identifier/": {StatusCode: 200, Body: []byte(" 1013.1.7 \n")},
		"v1/archetypes/1013.1.7/xml":         {StatusCode: 200, Body: []byte("<archetype/>")},
	}}
	svc, _ := newTestService(t, doer)

	out, err := svc.ArchetypeGet(context.Background(), "openEHR-EHR-OBSERVATION.blood_pressure.v2", "XML")
	require.NoError(t, err)

	require.Len(t, doer.calls, 2)
	assert.Equal(t, "v1/archetypes/citeable-identifier/openEHR-EHR-OBSERVATION.blood_pressure.v2", doer.calls[0].path)
	assert.Equal(t, "v1/archetypes/1013.1.7/xml", doer.calls[1].path)
	assert.Equal(t, ContentTypeXML, doer.calls[1].opts.Header.Get("Accept"))
	assert.Equal(t, "```xml\n<archetype/>\n```", out)
}

func TestArchetypeGet_CiteableLookupFails(t *testing.T) {
	doer := &fakeDoer{
		errs:      map[string]error{"v1/archetypes/citeable-identifier/": ErrUpstream},
		responses: map[string]*Response{"v1/archetypes/": {StatusCode: 200, Body: []byte("adl")}},
	}
	svc, tl := newTestService(t, doer)

	_, err := svc.ArchetypeGet(context.Background(), "openEHR-EHR-CLUSTER.x.v1", "adl")
	require.NoError(t, err)

	require.Len(t, doer.calls, 2)
	assert.True(t, strings.HasPrefix(doer.calls[1].path, "v1/archetypes/------"))
	assert.NotEmpty(t, tl.FilterMessage("failed to resolve CID identifier").All())
}

func TestArchetypeGet_Errors(t *testing.T) {
	svc, _ := newTestService(t, &fakeDoer{})

	_, err := svc.ArchetypeGet(context.Background(), "1.2.3", "opt")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.EqualError(t, err, "Invalid archetype format: opt")

	_, err = svc.ArchetypeGet(context.Background(), "1.2.3", "adl")
	assert.ErrorIs(t, err, ErrUpstream)
	assert.True(t, strings.HasPrefix(err.Error(), "Failed to retrieve the CKM Archetype: "))
}

func TestTemplateGet(t *testing.T) {
	doer := &fakeDoer{responses: map[string]*Response{
		"v1/templates/1013.26.244/oet": {StatusCode: 200, Body: []byte("<template/>")},
	}}
	svc, _ := newTestService(t, doer)

	out, err := svc.TemplateGet(context.Background(), "1013.26.244", "oet")
	require.NoError(t, err)
	assert.Equal(t, "```oet\n<template/>\n```", out)
	assert.Equal(t, ContentTypeXML, doer.calls[0].opts.Header.Get("Accept"))

	_, err = svc.TemplateGet(context.Background(), "1013.26.244", "adl")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = svc.TemplateGet(context.Background(), "1013.26.999", "")
	assert.ErrorIs(t, err, ErrUpstream)
	assert.True(t, strings.HasPrefix(err.Error(), "Failed to retrieve the CKM Template: "))
	assert.True(t, strings.HasSuffix(doer.calls[len(doer.calls)-1].path, "/opt"))
}
