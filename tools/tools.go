package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bububa/ljson"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/pkg/llmutils"
	"github.com/go-playground/validator/v10"
)

// ErrFailedUnmarshalInput is returned when the tool input does not match its schema.
var ErrFailedUnmarshalInput = errors.New("failed to unmarshal input: check the schema and try again")

// ITool is a tool for the llm agent to interact with different applications.
type ITool interface {
	// Name returns the name of the Tool.
	Name() string
	// Description returns the description of the tool, to be used in the prompt.
	// Should not exceed LLM model limit.
	Description() string
	// Parameters returns the JSON schema of the tool input, an object schema.
	Parameters() map[string]any

	// Call executes the tool with the given JSON input and returns the result.
	// If the tool fails to parse the input, it should return ErrFailedUnmarshalInput error.
	Call(context.Context, string) (string, error)
}

// ReadOnlyTool is implemented by tools without side effects,
// which may run concurrently with other read-only tools.
type ReadOnlyTool interface {
	ReadOnly() bool
}

// Tool is an ITool with typed input and output.
type Tool[I any, O any] interface {
	ITool
	Run(context.Context, *I) (*O, error)
}

// IsReadOnly returns true if the tool advertises no side effects.
func IsReadOnly(t ITool) bool {
	if ro, ok := t.(ReadOnlyTool); ok {
		return ro.ReadOnly()
	}
	return false
}

var validate = validator.New()

// DecodeInput parses a lenient JSON input into req and validates it.
// Empty input is treated as an empty object.
func DecodeInput(input string, req any) error {
	data := []byte(input)
	if len(data) == 0 {
		data = []byte("{}")
	}
	if err := ljson.Unmarshal(llmutils.CleanJSON(data), req); err != nil {
		return errors.WithStack(ErrFailedUnmarshalInput)
	}
	if err := validate.Struct(req); err != nil {
		return errors.Wrap(ErrFailedUnmarshalInput, err.Error())
	}
	return nil
}

// EncodeOutput renders a tool output as text: Stringer values as is,
// anything else as JSON.
func EncodeOutput(out any) (string, error) {
	if s, ok := out.(fmt.Stringer); ok {
		return s.String(), nil
	}
	if s, ok := out.(*string); ok && s != nil {
		return *s, nil
	}
	bs, err := json.Marshal(out)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal output")
	}
	return string(bs), nil
}

type toolDescription struct {
	Name        string `json:"Name" yaml:"Name"`
	Description string `json:"Description" yaml:"Description"`
	ReadOnly    bool   `json:"ReadOnly,omitempty" yaml:"ReadOnly,omitempty"`
}

type toolsDescription struct {
	Tools []toolDescription `json:"Tools" yaml:"Tools"`
}

// GetDescriptions returns a printable list of the tools.
func GetDescriptions(list ...ITool) string {
	var d toolsDescription
	for _, tool := range list {
		d.Tools = append(d.Tools, toolDescription{
			Name:        tool.Name(),
			Description: tool.Description(),
			ReadOnly:    IsReadOnly(tool),
		})
	}
	return llmutils.BackticksJSON(llmutils.ToJSONIndent(d))
}
