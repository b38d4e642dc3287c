// Package guides serves the bundled openEHR modelling guides and
// guidelines.
//
// Guides live under guides/{category}/{name}.md and are searchable by
// keyword. Guidelines live under guidelines/{category}/{version}/{name}.md
// and are exposed as MCP resources. The ADL idioms cheatsheet can be
// queried section by section.
package guides
