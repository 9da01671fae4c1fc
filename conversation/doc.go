// Package conversation drives the tool-calling loop between a model backend
// and a tool server session.
//
// A Loop owns the conversation history. Each user turn is resolved fully,
// including all nested tool round trips, before the next one is accepted:
//
//	AwaitingUserInput -> ModelRequested -> { ToolDispatch -> ModelRequested }* -> ResponseReady
//
// Tool failures are folded into the history as error results and reported
// back to the model. Backend failures are retried when transient and abort
// the turn otherwise. A lost tool server session aborts the turn and every
// later one.
package conversation

import "github.com/effective-security/xlog"

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpbridge", "conversation")
