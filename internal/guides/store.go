package guides

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"go.uber.org/zap"

	"github.com/cadasto/openehr-assistant-mcp/internal/logging"
)

// Limits.
const (
	DefaultMaxResults   = 15
	DefaultSectionLimit = 5
	SnippetChars        = 350
)

const (
	guidesDir     = "guides"
	guidelinesDir = "guidelines"

	// MIMEType is the media type of guide and guideline documents.
	MIMEType = "text/markdown"
)

var segmentPattern = regexp.MustCompile(`^[\w-]+$`)

// Guide is a single markdown guide.
type Guide struct {
	Category string
	Name     string
	Title    string
	URI      string
	Content  string
}

// Store reads guides and guidelines from a resources tree.
type Store struct {
	fsys   fs.FS
	md     goldmark.Markdown
	logger *logging.Logger
}

// NewStore creates a store over fsys. fsys is the resources root holding
// the guides and guidelines directories.
func NewStore(fsys fs.FS, logger *logging.Logger) (*Store, error) {
	if fsys == nil {
		return nil, fmt.Errorf("resources filesystem is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	s := &Store{fsys: fsys, md: goldmark.New(), logger: logger.Named("guides")}
	if _, err := fs.Stat(fsys, guidesDir); err != nil {
		s.logger.Warn(context.Background(), "guides directory not found or not readable", zap.String("dir", guidesDir), zap.Error(err))
	}
	return s, nil
}

// GuideURI builds the canonical URI of a guide.
func GuideURI(category, name string) string {
	return fmt.Sprintf("openehr://guides/%s/%s", category, name)
}

// Guides lists every guide, ordered by path.
func (s *Store) Guides() ([]Guide, error) {
	var guides []Guide
	err := fs.WalkDir(s.fsys, guidesDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == guidesDir && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || !strings.EqualFold(path.Ext(p), ".md") {
			return nil
		}

		parts := strings.Split(strings.TrimPrefix(p, guidesDir+"/"), "/")
		if len(parts) < 2 {
			return nil
		}

		content, err := fs.ReadFile(s.fsys, p)
		if err != nil {
			s.logger.Warn(context.Background(), "failed to read guide", zap.String("path", p), zap.Error(err))
			return nil
		}

		category := parts[0]
		name := strings.TrimSuffix(path.Base(p), path.Ext(p))
		guides = append(guides, Guide{
			Category: category,
			Name:     name,
			Title:    s.title(content, name),
			URI:      GuideURI(category, name),
			Content:  string(content),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list guides: %w", err)
	}
	return guides, nil
}

// title returns the text of the first level-1 heading, or fallback.
func (s *Store) title(source []byte, fallback string) string {
	doc := s.md.Parser().Parse(text.NewReader(source))

	var title string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok || h.Level != 1 {
			return ast.WalkContinue, nil
		}
		var b strings.Builder
		lines := h.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			b.Write(seg.Value(source))
		}
		title = strings.TrimSpace(b.String())
		return ast.WalkStop, nil
	})

	if title == "" {
		return fallback
	}
	return title
}

func (s *Store) readGuide(category, name string) ([]byte, error) {
	if !segmentPattern.MatchString(category) || !segmentPattern.MatchString(name) {
		return nil, fs.ErrNotExist
	}
	return fs.ReadFile(s.fsys, path.Join(guidesDir, category, name+".md"))
}

// GuideNames lists archetype and template guide names starting with prefix.
func (s *Store) GuideNames(prefix string) []string {
	var names []string
	for _, category := range []string{"archetypes", "templates"} {
		names = append(names, s.namesIn(path.Join(guidesDir, category), prefix)...)
	}
	sort.Strings(names)
	return slices.Compact(names)
}

// GuidelineNames lists archetype guideline names starting with prefix.
func (s *Store) GuidelineNames(prefix string) []string {
	return s.namesIn(path.Join(guidelinesDir, "archetypes", "v1"), prefix)
}

func (s *Store) namesIn(dir, prefix string) []string {
	entries, err := fs.ReadDir(s.fsys, dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(path.Ext(e.Name()), ".md") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), path.Ext(e.Name()))
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	return names
}
