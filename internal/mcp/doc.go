// Package mcp exposes the openEHR assistant over the Model Context Protocol.
//
// It uses the MCP SDK (github.com/modelcontextprotocol/go-sdk/mcp) and
// registers CKM, guide, terminology and type specification tools, the
// guide, guideline, terminology and type specification resources, the
// bundled prompts and argument completion. The server runs on stdio or is
// mounted as a streamable HTTP handler.
package mcp
