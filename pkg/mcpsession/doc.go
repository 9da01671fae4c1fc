// Package mcpsession provides the client side of a Model Context Protocol
// tool server connection: tool listing and tool invocation over stdio,
// SSE or streamable HTTP transports.
package mcpsession
