// Package tools defines in-process tools and exposes them over the Model
// Context Protocol, so the conversation loop can reach them through the
// same session as any external tool server.
package tools
