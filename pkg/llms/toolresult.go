package llms

import (
	"github.com/cockroachdb/errors"
	"github.com/tidwall/sjson"
)

// Tool result status values of the encoded envelope
const (
	ToolStatusOK    = "ok"
	ToolStatusError = "error"
)

// ToolResultEnvelope renders a tool outcome as a structured JSON document:
// {"status":"ok","output":...} or {"status":"error","error":{"kind":...,"message":...}}.
//
// Backends without a native error flag receive the envelope so a failed
// call is never mistaken for an empty success.
func ToolResultEnvelope(res ToolCallResponse) (string, error) {
	var (
		doc = `{}`
		err error
	)
	if res.IsError {
		kind := res.ErrorKind
		if kind == "" {
			kind = ErrorKindExecution
		}
		doc, err = sjson.Set(doc, "status", ToolStatusError)
		if err == nil {
			doc, err = sjson.Set(doc, "error.kind", kind)
		}
		if err == nil {
			doc, err = sjson.Set(doc, "error.message", res.Content)
		}
	} else {
		doc, err = sjson.Set(doc, "status", ToolStatusOK)
		if err == nil {
			doc, err = sjson.Set(doc, "output", res.Content)
		}
	}
	if err != nil {
		return "", errors.Wrap(err, "unable to encode tool result")
	}
	return doc, nil
}

// ToolResultContent returns the content sent to a backend for a tool
// result: the raw output on success, the envelope on failure.
func ToolResultContent(res ToolCallResponse) (string, error) {
	if !res.IsError {
		if res.Content == "" {
			// some backends reject empty tool content
			return ToolResultEnvelope(res)
		}
		return res.Content, nil
	}
	return ToolResultEnvelope(res)
}
