package guides

import (
	"context"
	"errors"
	"io/fs"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

var guideURIPattern = regexp.MustCompile(`^openehr://guides/([\w-]+)/([\w-]+)$`)

// ParseGuideURI splits a guide URI into category and name.
func ParseGuideURI(uri string) (category, name string, err error) {
	m := guideURIPattern.FindStringSubmatch(uri)
	if m == nil {
		return "", "", invalidf("Invalid guide URI: %s", uri)
	}
	return m[1], m[2], nil
}

// Get returns a guide by URI, or by category and name when uri is empty.
func (s *Store) Get(ctx context.Context, uri, category, name string) (*Guide, error) {
	uri = strings.TrimSpace(uri)
	category = strings.TrimSpace(category)
	name = strings.TrimSpace(name)
	s.logger.Debug(ctx, "guide get", zap.String("uri", uri), zap.String("category", category), zap.String("name", name))

	if uri != "" {
		var err error
		if category, name, err = ParseGuideURI(uri); err != nil {
			return nil, err
		}
	}
	if category == "" || name == "" {
		return nil, invalidf("Guide category and name are required when URI is not provided.")
	}

	content, err := s.readGuide(category, name)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn(ctx, "failed to read guide", zap.String("category", category), zap.String("name", name), zap.Error(err))
		}
		return nil, notFoundf("Guide not found: %s/%s", category, name)
	}
	if len(content) == 0 {
		return nil, invalidf("Guide content is empty: %s/%s", category, name)
	}

	return &Guide{
		Category: category,
		Name:     name,
		Title:    s.title(content, name),
		URI:      GuideURI(category, name),
		Content:  string(content),
	}, nil
}
