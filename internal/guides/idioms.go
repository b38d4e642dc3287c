package guides

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
)

const (
	idiomsCategory = "archetypes"
	idiomsName     = "adl-idioms-cheatsheet"
)

var sectionHeading = regexp.MustCompile(`^(#{2,3})\s+(.*)$`)

// IdiomItem is a matching section of the ADL idioms cheatsheet.
type IdiomItem struct {
	Title       string `json:"title"`
	Snippet     string `json:"snippet"`
	ResourceURI string `json:"resourceUri"`
	Section     string `json:"section"`
}

type section struct {
	title   string
	level   int
	content string
}

// ADLIdiomLookup returns the cheatsheet sections most relevant to pattern.
func (s *Store) ADLIdiomLookup(ctx context.Context, pattern string) ([]IdiomItem, error) {
	pattern = strings.TrimSpace(pattern)
	s.logger.Debug(ctx, "ADL idiom lookup", zap.String("pattern", pattern))
	if pattern == "" {
		return []IdiomItem{}, nil
	}

	content, err := s.readGuide(idiomsCategory, idiomsName)
	if err != nil {
		return nil, notFoundf("ADL idioms cheatsheet not found.")
	}
	title := s.title(content, idiomsName)

	type scored struct {
		item  IdiomItem
		score int
	}
	var matches []scored
	for _, sec := range parseSections(string(content)) {
		score := Score(pattern, sec.title, sec.content, "")
		if score == 0 {
			continue
		}
		matches = append(matches, scored{
			item: IdiomItem{
				Title:       title,
				Snippet:     Snippet(sec.content, pattern),
				ResourceURI: GuideURI(idiomsCategory, idiomsName),
				Section:     sec.title,
			},
			score: score,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].score > matches[j].score })
	if limit := DefaultSectionLimit + 2; len(matches) > limit {
		matches = matches[:limit]
	}

	items := make([]IdiomItem, len(matches))
	for i, m := range matches {
		items[i] = m.item
	}
	return items, nil
}

// parseSections splits markdown on level 2 and 3 headings. Text before
// the first heading becomes an "Introduction" section. Blank sections are
// dropped.
func parseSections(content string) []section {
	var sections []section
	current := section{title: "Introduction", level: 2}
	var body strings.Builder

	flush := func() {
		current.content = body.String()
		if strings.TrimSpace(current.content) != "" {
			sections = append(sections, current)
		}
		body.Reset()
	}

	for _, line := range strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n") {
		if m := sectionHeading.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			flush()
			current = section{title: strings.TrimSpace(m[2]), level: len(m[1])}
			continue
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}
	flush()

	return sections
}
