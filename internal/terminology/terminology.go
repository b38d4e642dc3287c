// Package terminology exposes the openEHR support terminology: code sets
// and concept groups loaded from the bundled XML distribution.
package terminology

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/cadasto/openehr-assistant-mcp/internal/logging"
)

// DefaultPath is the location of the terminology file in the resources tree.
const DefaultPath = "terminology/openehr_terminology.xml"

// Terminology types accepted by Read.
const (
	TypeGroup   = "group"
	TypeCodeset = "codeset"
)

var (
	// ErrNotFound is matched by lookups that find nothing.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument is matched by malformed input.
	ErrInvalidArgument = errors.New("invalid argument")
)

var nonWord = regexp.MustCompile(`\W`)

type termError struct {
	msg  string
	kind error
}

func (e *termError) Error() string { return e.msg }

func (e *termError) Unwrap() error { return e.kind }

// Concept is a coded concept within a group.
type Concept struct {
	ID     string `xml:"id,attr"`
	Rubric string `xml:"rubric,attr"`
}

// Group is a named set of concepts, e.g. composition_category.
type Group struct {
	Name      string    `xml:"name,attr"`
	OpenEHRID string    `xml:"openehr_id,attr"`
	Concepts  []Concept `xml:"concept"`
}

// Codeset is an externally issued list of codes, e.g. ISO 3166-1 countries.
type Codeset struct {
	Name       string `xml:"name,attr"`
	Issuer     string `xml:"issuer,attr"`
	OpenEHRID  string `xml:"openehr_id,attr"`
	ExternalID string `xml:"external_id,attr"`
	Codes      []code `xml:"code"`
}

type code struct {
	Value string `xml:"value,attr"`
}

// Values returns the code values in document order.
func (c Codeset) Values() []string {
	values := make([]string, len(c.Codes))
	for i, v := range c.Codes {
		values[i] = v.Value
	}
	return values
}

type document struct {
	XMLName  xml.Name  `xml:"terminology"`
	Codesets []Codeset `xml:"codeset"`
	Groups   []Group   `xml:"group"`
}

// Terminology is the parsed terminology. It is read-only after Load.
type Terminology struct {
	codesets []Codeset
	groups   []Group
	logger   *logging.Logger
}

// Load reads and parses the terminology file at path in fsys.
func Load(fsys fs.FS, path string, logger *logging.Logger) (*Terminology, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("terminology file not found or not readable: %w", err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, err
	}
	t.logger = logger.Named("terminology")
	t.logger.Debug(context.Background(), "terminology loaded",
		zap.Int("groups", len(t.groups)),
		zap.Int("codesets", len(t.codesets)),
	)
	return t, nil
}

// Parse decodes a terminology XML document.
func Parse(data []byte) (*Terminology, error) {
	var doc document
	if err := xml.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("error parsing terminology XML: %w", err)
	}
	if len(doc.Groups) == 0 {
		return nil, errors.New("No terminology groups found.")
	}
	return &Terminology{codesets: doc.Codesets, groups: doc.Groups, logger: logging.NewNop()}, nil
}

// Groups returns all concept groups in document order.
func (t *Terminology) Groups() []Group { return t.groups }

// Codesets returns all code sets in document order.
func (t *Terminology) Codesets() []Codeset { return t.codesets }

// Resolution is a resolved concept.
type Resolution struct {
	ID        string `json:"id"`
	Rubric    string `json:"rubric"`
	GroupID   string `json:"groupId"`
	GroupName string `json:"groupName"`
}

// Resolve maps a concept id to its rubric or a rubric to its id. Numeric
// input is matched against ids, anything else case-insensitively against
// rubrics. groupID optionally restricts the search to one group.
func (t *Terminology) Resolve(ctx context.Context, input, groupID string) (*Resolution, error) {
	input = strings.TrimSpace(input)
	groupID = strings.TrimSpace(groupID)
	t.logger.Debug(ctx, "terminology resolve", zap.String("input", input), zap.String("group_id", groupID))

	if input == "" {
		return nil, &termError{msg: "Input cannot be empty.", kind: ErrInvalidArgument}
	}

	groups := t.groups
	if groupID != "" {
		if nonWord.MatchString(groupID) {
			return nil, &termError{msg: "Invalid terminology group ID: " + groupID, kind: ErrInvalidArgument}
		}
		groups = nil
		for _, g := range t.groups {
			if g.OpenEHRID == strings.ToLower(groupID) {
				groups = append(groups, g)
			}
		}
		if len(groups) == 0 {
			return nil, &termError{msg: fmt.Sprintf(`Terminology group "%s" not found.`, groupID), kind: ErrNotFound}
		}
	}

	byID := isNumeric(input)
	for _, g := range groups {
		for _, c := range g.Concepts {
			if (byID && c.ID == input) || (!byID && strings.EqualFold(c.Rubric, input)) {
				return &Resolution{ID: c.ID, Rubric: c.Rubric, GroupID: g.OpenEHRID, GroupName: g.Name}, nil
			}
		}
	}

	within := ""
	if groupID != "" {
		within = fmt.Sprintf(` within group "%s"`, groupID)
	}
	return nil, &termError{msg: fmt.Sprintf(`Could not resolve "%s"%s in openEHR terminology.`, input, within), kind: ErrNotFound}
}

func isNumeric(s string) bool {
	f, err := strconv.ParseFloat(s, 64)
	return err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
}

// ConceptMap is an id to rubric mapping that marshals as a JSON object in
// document order.
type ConceptMap []Concept

// MarshalJSON implements json.Marshaler.
func (m ConceptMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(c.ID)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(c.Rubric)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// CodesetEntry is the JSON form of a code set.
type CodesetEntry struct {
	Name       string   `json:"name"`
	Issuer     string   `json:"issuer"`
	OpenEHRID  string   `json:"openehr_id"`
	ExternalID string   `json:"external_id"`
	Codeset    []string `json:"codeset"`
}

// GroupEntry is the JSON form of a concept group.
type GroupEntry struct {
	Name      string     `json:"name"`
	OpenEHRID string     `json:"openehr_id"`
	Group     ConceptMap `json:"group"`
}

// Document is the JSON form of the whole terminology.
type Document struct {
	Codesets []CodesetEntry `json:"codesets"`
	Groups   []GroupEntry   `json:"groups"`
}

// All returns the whole terminology.
func (t *Terminology) All() *Document {
	doc := &Document{
		Codesets: make([]CodesetEntry, 0, len(t.codesets)),
		Groups:   make([]GroupEntry, 0, len(t.groups)),
	}
	for _, c := range t.codesets {
		doc.Codesets = append(doc.Codesets, CodesetEntry{
			Name:       c.Name,
			Issuer:     c.Issuer,
			OpenEHRID:  c.OpenEHRID,
			ExternalID: c.ExternalID,
			Codeset:    c.Values(),
		})
	}
	for _, g := range t.groups {
		doc.Groups = append(doc.Groups, GroupEntry{Name: g.Name, OpenEHRID: g.OpenEHRID, Group: ConceptMap(g.Concepts)})
	}
	return doc
}

// Entry is a single group or code set. Exactly one of Group and Codeset
// is set.
type Entry struct {
	OpenEHRID string     `json:"openehr_id"`
	Name      string     `json:"name"`
	Group     ConceptMap `json:"group,omitempty"`
	Codeset   []string   `json:"codeset,omitempty"`
}

// Read returns a group or code set by openEHR id.
func (t *Terminology) Read(typ, openEHRID string) (*Entry, error) {
	typ = strings.ToLower(strings.TrimSpace(typ))
	openEHRID = strings.TrimSpace(openEHRID)

	switch typ {
	case TypeGroup:
		for _, g := range t.groups {
			if g.OpenEHRID == openEHRID {
				return &Entry{OpenEHRID: g.OpenEHRID, Name: g.Name, Group: ConceptMap(g.Concepts)}, nil
			}
		}
	case TypeCodeset:
		for _, c := range t.codesets {
			if c.OpenEHRID == openEHRID {
				return &Entry{OpenEHRID: c.OpenEHRID, Name: c.Name, Codeset: c.Values()}, nil
			}
		}
	default:
		return nil, &termError{msg: "Invalid terminology type: " + typ, kind: ErrInvalidArgument}
	}
	return nil, &termError{msg: fmt.Sprintf("Terminology %s not found: %s", typ, openEHRID), kind: ErrNotFound}
}
