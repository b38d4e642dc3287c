// Package resources bundles the static knowledge served by the MCP server:
// authoring guides, archetype guidelines, the openEHR terminology, BMM type
// specifications and prompt templates.
package resources

import "embed"

// FS holds the bundled resource tree. Top-level directories are guides,
// guidelines, terminology, bmm and prompts.
//
//go:embed guides guidelines terminology bmm prompts
var FS embed.FS
