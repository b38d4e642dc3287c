package ckm

import "strings"

// Content types understood by the CKM REST API.
const (
	ContentTypeJSON           = "application/json"
	ContentTypeWebTemplate    = "application/openehr.wt+json"
	ContentTypeFlatSchema     = "application/openehr.wt.flat.schema+json"
	ContentTypeStructuredJSON = "application/openehr.wt.structured.schema+json"
	ContentTypeXML            = "application/xml"
	ContentTypeText           = "text/plain"
)

var contentTypes = map[string]string{
	"json":           ContentTypeJSON,
	"canonical json": ContentTypeJSON,
	"web template":   ContentTypeWebTemplate,
	"flat":           ContentTypeFlatSchema,
	"structured":     ContentTypeStructuredJSON,
	"xml":            ContentTypeXML,
	"canonical":      ContentTypeXML,
	"opt":            ContentTypeXML,
	"oet":            ContentTypeXML,
	"mindmap":        ContentTypeXML,
	"adl":            ContentTypeText,
	"adl2":           ContentTypeText,
	"text":           ContentTypeText,
	"aql":            ContentTypeText,

	// MIME types map onto themselves.
	ContentTypeJSON:           ContentTypeJSON,
	ContentTypeWebTemplate:    ContentTypeWebTemplate,
	ContentTypeFlatSchema:     ContentTypeFlatSchema,
	ContentTypeStructuredJSON: ContentTypeStructuredJSON,
	ContentTypeXML:            ContentTypeXML,
	ContentTypeText:           ContentTypeText,
}

// ContentType maps a user-facing format name or MIME type onto the
// content type sent as the Accept header.
func ContentType(format string) (string, error) {
	if ct, ok := contentTypes[strings.ToLower(format)]; ok {
		return ct, nil
	}
	return "", invalidArgf("Invalid format: %s", format)
}

// ADLVersion normalizes an ADL type to "adl2" or "adl1.4".
func ADLVersion(adlType string) (string, error) {
	switch strings.ToLower(adlType) {
	case "adl2":
		return "adl2", nil
	case "adl1.4", "adl":
		return "adl1.4", nil
	}
	return "", invalidArgf("Invalid ADL type: %s", adlType)
}

// ArchetypeFormat validates an archetype export format.
func ArchetypeFormat(format string) (string, error) {
	switch f := strings.ToLower(format); f {
	case "adl", "xml", "mindmap":
		return f, nil
	}
	return "", invalidArgf("Invalid archetype format: %s", format)
}

// TemplateFormat validates a template export format.
func TemplateFormat(format string) (string, error) {
	switch f := strings.ToLower(format); f {
	case "opt", "oet":
		return f, nil
	}
	return "", invalidArgf("Invalid template format: %s", format)
}
