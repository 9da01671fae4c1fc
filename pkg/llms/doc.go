// Package llms provides the provider-neutral conversation model shared by the
// conversation loop and the backend adapters.
//
// A conversation is a sequence of Message values. Each message carries a role
// and a list of parts: plain text, a tool call requested by the model, or the
// result of a tool call. Adapters in the subpackages translate this model
// into the wire format of one backend and decode the backend response into a
// ModelTurn.
//
// The `llms.go` file contains the Adapter contract and provider capabilities.
//
// The `errors.go` file defines the backend error taxonomy shared by all adapters.
package llms
