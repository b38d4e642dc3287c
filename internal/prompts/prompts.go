// Package prompts loads the bundled prompt templates.
//
// A prompt is a markdown file with YAML frontmatter naming the prompt and
// its arguments, followed by "## Role: assistant" and "## Role: user"
// sections that become the prompt messages. Message text may reference
// arguments as {{name}}.
package prompts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/adrg/frontmatter"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/cadasto/openehr-assistant-mcp/internal/logging"
)

// DefaultDir is the prompt directory in the resources tree.
const DefaultDir = "prompts"

// Roles.
const (
	RoleAssistant = "assistant"
	RoleUser      = "user"
)

// ErrNotFound is matched when a prompt does not exist.
var ErrNotFound = errors.New("prompt not found")

type notFoundError struct {
	name string
}

func (e *notFoundError) Error() string { return "Prompt file not found: " + e.name }

func (e *notFoundError) Unwrap() error { return ErrNotFound }

var (
	roleHeading = regexp.MustCompile(`(?im)^## Role: (assistant|user)\b`)
	placeholder = regexp.MustCompile(`\{\{\s*([\w-]+)\s*\}\}`)
)

var yamlFormat = frontmatter.NewFormat("---", "---", yaml.Unmarshal)

// Argument describes a prompt argument.
type Argument struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Required    bool   `yaml:"required"`
}

// Message is a single prompt message.
type Message struct {
	Role string
	Text string
}

// Prompt is a parsed prompt template.
type Prompt struct {
	Name        string     `yaml:"name"`
	Title       string     `yaml:"title"`
	Description string     `yaml:"description"`
	Arguments   []Argument `yaml:"arguments"`

	Messages []Message `yaml:"-"`
}

// Parse parses a prompt file. file names the source in error messages and
// provides the prompt name when the frontmatter has none.
func Parse(file string, data []byte) (*Prompt, error) {
	var p Prompt
	body, err := frontmatter.Parse(bytes.NewReader(data), &p, yamlFormat)
	if err != nil {
		return nil, fmt.Errorf("invalid prompt frontmatter in %s: %w", file, err)
	}
	if p.Name == "" {
		p.Name = strings.TrimSuffix(path.Base(file), path.Ext(file))
	}

	p.Messages = splitMessages(string(body))
	if len(p.Messages) == 0 {
		return nil, fmt.Errorf("Invalid prompt file format: %s", file)
	}
	return &p, nil
}

func splitMessages(body string) []Message {
	locs := roleHeading.FindAllStringSubmatchIndex(body, -1)
	messages := make([]Message, 0, len(locs))
	for i, loc := range locs {
		end := len(body)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		text := strings.TrimSpace(body[loc[1]:end])
		if text == "" {
			continue
		}
		messages = append(messages, Message{
			Role: strings.ToLower(body[loc[2]:loc[3]]),
			Text: text,
		})
	}
	return messages
}

// Render returns the messages with {{arg}} placeholders replaced by the
// supplied values. Placeholders without a value are left as they are.
func (p *Prompt) Render(args map[string]string) []Message {
	out := make([]Message, len(p.Messages))
	for i, m := range p.Messages {
		out[i] = Message{
			Role: m.Role,
			Text: placeholder.ReplaceAllStringFunc(m.Text, func(match string) string {
				name := placeholder.FindStringSubmatch(match)[1]
				if v, ok := args[name]; ok && v != "" {
					return v
				}
				return match
			}),
		}
	}
	return out
}

// Library holds the loaded prompts.
type Library struct {
	prompts []*Prompt
	byName  map[string]*Prompt
}

// Load parses every *.md file in dir.
func Load(ctx context.Context, fsys fs.FS, dir string, logger *logging.Logger) (*Library, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt directory: %w", err)
	}

	lib := &Library{byName: make(map[string]*Prompt)}
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(path.Ext(e.Name()), ".md") {
			continue
		}
		file := path.Join(dir, e.Name())
		data, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("could not read prompt file %s: %w", file, err)
		}
		p, err := Parse(file, data)
		if err != nil {
			return nil, err
		}
		if _, dup := lib.byName[p.Name]; dup {
			logger.Warn(ctx, "duplicate prompt ignored", zap.String("name", p.Name), zap.String("file", file))
			continue
		}
		lib.byName[p.Name] = p
		lib.prompts = append(lib.prompts, p)
	}

	sort.Slice(lib.prompts, func(i, j int) bool { return lib.prompts[i].Name < lib.prompts[j].Name })
	logger.Debug(ctx, "prompts loaded", zap.Int("count", len(lib.prompts)))
	return lib, nil
}

// List returns all prompts ordered by name.
func (l *Library) List() []*Prompt {
	return l.prompts
}

// Get returns a prompt by name.
func (l *Library) Get(name string) (*Prompt, error) {
	p, ok := l.byName[name]
	if !ok {
		return nil, &notFoundError{name: name}
	}
	return p, nil
}
