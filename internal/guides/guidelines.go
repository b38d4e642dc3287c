package guides

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"go.uber.org/zap"
)

// Guideline is a versioned guideline document.
type Guideline struct {
	Category     string
	Version      string
	Name         string
	URI          string
	ResourceName string
	Description  string
	Content      string
}

// GuidelineURI builds the URI of a guideline.
func GuidelineURI(category, version, name string) string {
	return fmt.Sprintf("guidelines://%s/%s/%s", category, version, name)
}

// ReadGuideline returns the markdown content of a guideline.
func (s *Store) ReadGuideline(category, version, name string) (string, error) {
	for _, seg := range []string{category, version, name} {
		if !segmentPattern.MatchString(seg) {
			return "", invalidf("Invalid guideline resource identifier: %s", seg)
		}
	}

	content, err := fs.ReadFile(s.fsys, path.Join(guidelinesDir, category, version, name+".md"))
	if err != nil {
		return "", notFoundf("Guideline not found: %s/%s/%s", category, version, name)
	}
	return string(content), nil
}

// Guidelines lists every non-empty guidelines/{category}/{version}/{name}.md.
func (s *Store) Guidelines(ctx context.Context) ([]Guideline, error) {
	var out []Guideline
	err := fs.WalkDir(s.fsys, guidelinesDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == guidelinesDir && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || !strings.EqualFold(path.Ext(p), ".md") {
			return nil
		}

		parts := strings.Split(strings.TrimPrefix(p, guidelinesDir+"/"), "/")
		if len(parts) < 3 {
			return nil
		}

		content, err := fs.ReadFile(s.fsys, p)
		if err != nil || len(content) == 0 {
			s.logger.Debug(ctx, "skipping guideline", zap.String("path", p), zap.Error(err))
			return nil
		}

		category, version := parts[0], parts[1]
		name := strings.TrimSuffix(path.Base(p), path.Ext(p))

		first, _, _ := strings.Cut(string(content), "\n")
		description := strings.Trim(first, " #")
		if description == "" {
			description = fmt.Sprintf("Guideline %s for %s", name, category)
		}

		out = append(out, Guideline{
			Category:     category,
			Version:      version,
			Name:         name,
			URI:          GuidelineURI(category, version, name),
			ResourceName: fmt.Sprintf("guideline_%s_%s", category, name),
			Description:  description,
			Content:      string(content),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list guidelines: %w", err)
	}
	return out, nil
}
