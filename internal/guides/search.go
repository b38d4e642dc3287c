package guides

import (
	"context"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// SearchItem is a guide search hit.
type SearchItem struct {
	Title       string `json:"title"`
	Category    string `json:"category"`
	Name        string `json:"name"`
	ResourceURI string `json:"resourceUri"`
	Snippet     string `json:"snippet"`
	Score       int    `json:"score"`
}

// Search ranks guides against query. category filters by exact match and
// taskType by case-insensitive substring of the guide content.
func (s *Store) Search(ctx context.Context, query, category, taskType string) ([]SearchItem, error) {
	query = strings.TrimSpace(query)
	category = strings.TrimSpace(category)
	taskType = strings.TrimSpace(taskType)
	s.logger.Debug(ctx, "guide search",
		zap.String("query", query),
		zap.String("category", category),
		zap.String("task_type", taskType),
	)

	guides, err := s.Guides()
	if err != nil {
		return nil, err
	}

	items := make([]SearchItem, 0, len(guides))
	for _, g := range guides {
		if category != "" && g.Category != category {
			continue
		}
		if taskType != "" && !strings.Contains(lowerASCII(g.Content), lowerASCII(taskType)) {
			continue
		}
		items = append(items, SearchItem{
			Title:       g.Title,
			Category:    g.Category,
			Name:        g.Name,
			ResourceURI: g.URI,
			Snippet:     Snippet(g.Content, query),
			Score:       Score(query, g.Title, g.Content, g.Category),
		})
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].Score > items[j].Score })
	if len(items) > DefaultMaxResults {
		items = items[:DefaultMaxResults]
	}
	return items, nil
}

// Score rates a document against the whitespace-separated keywords of
// query. A keyword in the title adds 4, in the category adds 3, and each
// occurrence in the content adds 1, capped at 6 per keyword.
func Score(query, title, content, category string) int {
	title = lowerASCII(title)
	content = lowerASCII(content)
	category = lowerASCII(category)

	score := 0
	for _, kw := range strings.Fields(lowerASCII(query)) {
		if strings.Contains(title, kw) {
			score += 4
		}
		if category != "" && strings.Contains(category, kw) {
			score += 3
		}
		score += min(strings.Count(content, kw), 6)
	}
	return score
}

// Snippet returns up to SnippetChars bytes of content around the first
// case-insensitive occurrence of query, or a bounded prefix when the
// query does not occur.
func Snippet(content, query string) string {
	pos := strings.Index(lowerASCII(content), lowerASCII(query))
	if pos < 0 {
		return limitText(content, SnippetChars)
	}

	start := max(0, pos-SnippetChars/2)
	end := min(len(content), start+SnippetChars)
	return strings.TrimSpace(sliceRunes(content, start, end))
}

func limitText(s string, maxBytes int) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxBytes {
		return s
	}
	return strings.TrimRightFunc(sliceRunes(s, 0, maxBytes-1), isSpace) + "…"
}

// sliceRunes returns s[start:end] with both bounds moved inward to rune
// boundaries.
func sliceRunes(s string, start, end int) string {
	for start < end && !utf8.RuneStart(s[start]) {
		start++
	}
	if end < len(s) {
		for end > start && !utf8.RuneStart(s[end]) {
			end--
		}
	}
	return s[start:end]
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == 0
}

// lowerASCII lowercases ASCII letters only, so byte offsets line up with
// the original string.
func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
