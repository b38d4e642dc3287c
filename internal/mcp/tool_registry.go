package mcp

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ToolCategory represents the functional category of a tool.
type ToolCategory string

const (
	// CategoryCKM is for Clinical Knowledge Manager tools.
	CategoryCKM ToolCategory = "ckm"
	// CategoryGuides is for guide search and retrieval tools.
	CategoryGuides ToolCategory = "guides"
	// CategoryTerminology is for openEHR terminology tools.
	CategoryTerminology ToolCategory = "terminology"
	// CategoryTypeSpec is for BMM type specification tools.
	CategoryTypeSpec ToolCategory = "typespec"
)

// categoryOrder fixes the order categories are presented in.
var categoryOrder = []ToolCategory{CategoryCKM, CategoryGuides, CategoryTerminology, CategoryTypeSpec}

// ToolMetadata contains metadata about a registered MCP tool.
type ToolMetadata struct {
	// Name is the unique tool name (e.g., "ckm_archetype_search").
	Name string `json:"name"`

	// Description is a short human-readable summary of the tool.
	Description string `json:"description"`

	// Category is the functional category of the tool.
	Category ToolCategory `json:"category"`

	// Keywords are additional terms describing the tool.
	Keywords []string `json:"keywords,omitempty"`
}

// ToolRegistry keeps metadata about the registered MCP tools.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]*ToolMetadata
}

// NewToolRegistry creates a new tool registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]*ToolMetadata),
	}
}

// Register adds a tool to the registry.
func (r *ToolRegistry) Register(tool *ToolMetadata) error {
	if tool == nil {
		return fmt.Errorf("tool metadata is required")
	}
	if tool.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if tool.Description == "" {
		return fmt.Errorf("tool description is required")
	}
	if tool.Category == "" {
		return fmt.Errorf("tool category is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("tool %q already registered", tool.Name)
	}
	r.tools[tool.Name] = tool
	return nil
}

// RegisterAll adds multiple tools to the registry, stopping at the first
// failure.
func (r *ToolRegistry) RegisterAll(tools []*ToolMetadata) error {
	for _, tool := range tools {
		if err := r.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the metadata for a specific tool.
func (r *ToolRegistry) Get(name string) (*ToolMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns all registered tool metadata sorted by name.
func (r *ToolRegistry) List() []*ToolMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*ToolMetadata, 0, len(r.tools))
	for _, tool := range r.tools {
		result = append(result, tool)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// ListNames returns all registered tool names, sorted.
func (r *ToolRegistry) ListNames() []string {
	tools := r.List()
	result := make([]string, 0, len(tools))
	for _, tool := range tools {
		result = append(result, tool.Name)
	}
	return result
}

// ListByCategory returns the tools in a specific category sorted by name.
func (r *ToolRegistry) ListByCategory(category ToolCategory) []*ToolMetadata {
	result := make([]*ToolMetadata, 0)
	for _, tool := range r.List() {
		if tool.Category == category {
			result = append(result, tool)
		}
	}
	return result
}

// Count returns the total number of registered tools.
func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Summary renders the registered tools as a markdown list grouped by
// category.
func (r *ToolRegistry) Summary() string {
	var b strings.Builder
	for _, category := range categoryOrder {
		tools := r.ListByCategory(category)
		if len(tools) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s:\n", category)
		for _, tool := range tools {
			fmt.Fprintf(&b, "- `%s`: %s\n", tool.Name, tool.Description)
		}
	}
	return b.String()
}
