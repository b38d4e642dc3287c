// Package typespec serves openEHR type specifications expressed as BMM
// JSON, one file per type under bmm/{COMPONENT}/{TYPE}.bmm.json.
package typespec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/cadasto/openehr-assistant-mcp/internal/logging"
)

const (
	bmmDir     = "bmm"
	fileSuffix = ".bmm.json"

	// MinPatternLength is the shortest name pattern Search accepts.
	MinPatternLength = 3
)

var (
	// ErrNotFound is matched when no type specification matches.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument is matched by malformed names and components.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDecode is matched when a BMM file is not valid JSON.
	ErrDecode = errors.New("decode error")
)

var identifierPattern = regexp.MustCompile(`^[\w-]+$`)

type specError struct {
	msg  string
	kind error
}

func (e *specError) Error() string { return e.msg }

func (e *specError) Unwrap() error { return e.kind }

func newError(kind error, format string, args ...any) error {
	return &specError{msg: fmt.Sprintf(format, args...), kind: kind}
}

// ResourceURI builds the URI of a type specification resource.
func ResourceURI(component, name string) string {
	return fmt.Sprintf("openehr://spec/type/%s/%s", component, name)
}

// Store reads BMM type specifications from a resources tree.
type Store struct {
	fsys   fs.FS
	logger *logging.Logger
}

// NewStore creates a store over fsys, the resources root holding bmm/.
func NewStore(fsys fs.FS, logger *logging.Logger) (*Store, error) {
	if fsys == nil {
		return nil, fmt.Errorf("resources filesystem is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	s := &Store{fsys: fsys, logger: logger.Named("typespec")}
	if _, err := fs.Stat(fsys, bmmDir); err != nil {
		s.logger.Warn(context.Background(), "BMM base path not found", zap.String("dir", bmmDir), zap.Error(err))
	}
	return s, nil
}

// CompilePattern turns a glob-like type name pattern into a file name
// matcher. "*" matches any run of word characters or dashes, "?" exactly
// one. Dots and slashes are dropped.
func CompilePattern(pattern string) *regexp.Regexp {
	p := strings.ToUpper(strings.TrimSpace(pattern))
	p = strings.NewReplacer(".", "", "/", "").Replace(p)
	p = regexp.QuoteMeta(p)
	p = strings.NewReplacer(`\*`, `[\w-]*`, `\?`, `[\w-]`).Replace(p)
	return regexp.MustCompile(`(?i)^` + p + `\.bmm\.json$`)
}

// Candidate is a BMM file matching a name pattern.
type Candidate struct {
	Path      string
	Component string // directory basename as stored
}

// Candidates lists non-empty BMM files whose names match pattern, in
// lexical order.
func (s *Store) Candidates(pattern string) ([]Candidate, error) {
	re := CompilePattern(pattern)

	var out []Candidate
	err := fs.WalkDir(s.fsys, bmmDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == bmmDir && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || !strings.EqualFold(path.Ext(p), ".json") || !re.MatchString(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() == 0 {
			return nil
		}
		out = append(out, Candidate{Path: p, Component: path.Base(path.Dir(p))})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan BMM files: %w", err)
	}
	return out, nil
}

// SearchItem is a type specification search hit.
type SearchItem struct {
	Name          string `json:"name"`
	Documentation string `json:"documentation,omitempty"`
	ResourceURI   string `json:"resourceUri"`
	Component     string `json:"component"`
	Package       string `json:"package,omitempty"`
	SpecURL       string `json:"specUrl,omitempty"`
}

type summary struct {
	Name          string `json:"name"`
	Documentation any    `json:"documentation"`
	Package       any    `json:"package"`
	SpecURL       any    `json:"specUrl"`
}

// Search lists type specifications whose names match namePattern and,
// when keyword is set, whose raw JSON contains keyword case-insensitively.
func (s *Store) Search(ctx context.Context, namePattern, keyword string) ([]SearchItem, error) {
	namePattern = strings.TrimSpace(namePattern)
	keyword = strings.TrimSpace(keyword)
	s.logger.Debug(ctx, "type specification search", zap.String("name_pattern", namePattern), zap.String("keyword", keyword))

	items := []SearchItem{}
	if len(namePattern) < MinPatternLength {
		return items, nil
	}

	candidates, err := s.Candidates(namePattern)
	if err != nil {
		return nil, err
	}

	lowerKeyword := strings.ToLower(keyword)
	for _, c := range candidates {
		raw, err := fs.ReadFile(s.fsys, c.Path)
		if err != nil || len(raw) == 0 {
			continue
		}
		if keyword != "" && !strings.Contains(strings.ToLower(string(raw)), lowerKeyword) {
			continue
		}

		var sum summary
		if err := json.Unmarshal(raw, &sum); err != nil {
			s.logger.Error(ctx, "failed to read/parse BMM JSON", zap.String("file", c.Path), zap.Error(err))
			continue
		}

		name := sum.Name
		if name == "" {
			name = path.Base(c.Path)
		}
		component := strings.ToUpper(c.Component)
		items = append(items, SearchItem{
			Name:          name,
			Documentation: text(sum.Documentation),
			ResourceURI:   ResourceURI(component, name),
			Component:     component,
			Package:       text(sum.Package),
			SpecURL:       text(sum.SpecURL),
		})
	}

	s.logger.Info(ctx, "BMM list results",
		zap.Int("count", len(items)),
		zap.String("name_pattern", namePattern),
		zap.String("keyword", keyword),
	)
	return items, nil
}

func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// Get returns the decoded specification of a type. component optionally
// restricts the lookup to one component directory.
func (s *Store) Get(ctx context.Context, name, component string) (map[string]any, error) {
	s.logger.Debug(ctx, "type specification get", zap.String("name", name), zap.String("component", component))

	name = strings.TrimSpace(strings.NewReplacer(".", "", "*", "", "/", "", `\`, "").Replace(name))
	component = strings.TrimSpace(component)
	if name == "" {
		return nil, newError(ErrInvalidArgument, "Name cannot be empty")
	}

	candidates, err := s.Candidates(name)
	if err != nil {
		return nil, err
	}
	for _, c := range candidates {
		if component != "" && !strings.EqualFold(component, c.Component) {
			s.logger.Debug(ctx, "component not matching", zap.String("file", c.Path), zap.String("component", component))
			continue
		}

		raw, err := fs.ReadFile(s.fsys, c.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", c.Path, err)
		}
		var spec map[string]any
		if err := json.Unmarshal(raw, &spec); err != nil {
			s.logger.Error(ctx, "failed to decode BMM JSON", zap.String("file", c.Path), zap.Error(err))
			return nil, newError(ErrDecode, "Failed to decode BMM JSON for type: %s", name)
		}
		s.logger.Info(ctx, "found BMM", zap.String("file", c.Path))
		return spec, nil
	}

	s.logger.Info(ctx, "BMM not found", zap.String("name", name), zap.String("component", component))
	return nil, newError(ErrNotFound, "Type '%s' not found (in '%s' component).", name, component)
}

// Read returns the decoded specification at bmm/{component}/{name}.bmm.json.
func (s *Store) Read(component, name string) (map[string]any, error) {
	component = strings.ToUpper(strings.TrimSpace(component))
	if !identifierPattern.MatchString(component) {
		return nil, newError(ErrInvalidArgument, "Invalid component: %s", component)
	}
	name = strings.ToUpper(strings.TrimSpace(name))
	if !identifierPattern.MatchString(name) {
		return nil, newError(ErrInvalidArgument, "Invalid type specification name: %s", name)
	}

	raw, err := fs.ReadFile(s.fsys, path.Join(bmmDir, component, name+fileSuffix))
	if err != nil || len(raw) == 0 {
		return nil, newError(ErrNotFound, "Type specification not found: %s/%s", component, name)
	}
	var spec map[string]any
	if err := json.Unmarshal(raw, &spec); err != nil || spec == nil {
		return nil, newError(ErrDecode, "Unable to decode Type specification %s/%s content.", component, name)
	}
	return spec, nil
}

// Components lists the component directories starting with prefix,
// e.g. AM, BASE and RM.
func (s *Store) Components(prefix string) []string {
	entries, err := fs.ReadDir(s.fsys, bmmDir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(strings.ToUpper(e.Name()), strings.ToUpper(prefix)) {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out
}
