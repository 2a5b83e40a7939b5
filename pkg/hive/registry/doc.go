// Package registry provides the runtime's explicit name-to-value
// registries: a generic concurrent-safe Registry, and the ToolRegistry
// that merges local function tools with MCP-proxied tools behind one
// dispatch surface.
//
// Registries are constructed at startup and handed to the components
// that consume them; nothing in this package holds global state.
package registry
