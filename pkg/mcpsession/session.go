package mcpsession

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/pkg/toolcatalog"
)

//go:generate mockgen -source=session.go -destination=../../mocks/mocksession/session_mock.gen.go -package mocksession

// Session error categories are attached with cockroachdb errors.Mark,
// test them with github.com/cockroachdb/errors.Is.
var (
	// ErrSession is returned when the server is unreachable, the handshake
	// fails or the connection is lost. It is fatal for the conversation.
	ErrSession = errors.New("tool server session error")
	// ErrUnknownTool is returned when the tool is not advertised by the server.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrToolExecution is returned when the tool reports a failure.
	ErrToolExecution = errors.New("tool execution error")
	// ErrToolTimeout is returned when a call exceeds the per-call timeout.
	ErrToolTimeout = errors.New("tool call timed out")
)

// Session is a connection to a tool server.
type Session interface {
	// ListTools returns the descriptors advertised by the server.
	ListTools(ctx context.Context) ([]toolcatalog.RawDescriptor, error)
	// CallTool invokes the named tool with JSON object arguments and
	// returns the rendered output.
	// Errors are marked with ErrUnknownTool, ErrToolExecution,
	// ErrToolTimeout or ErrSession.
	CallTool(ctx context.Context, name string, args json.RawMessage) (string, error)
	// ConcurrencySafe returns true if all named tools may run concurrently.
	ConcurrencySafe(names ...string) bool
	// Close terminates the session.
	Close() error
}

// IsToolError returns true if err is a per-call failure that can be
// reported back to the model, as opposed to a session failure.
func IsToolError(err error) bool {
	if err == nil || errors.Is(err, ErrSession) {
		return false
	}
	return errors.Is(err, ErrUnknownTool) ||
		errors.Is(err, ErrToolExecution) ||
		errors.Is(err, ErrToolTimeout)
}
