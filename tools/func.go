package tools

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/pkg/schema"
)

// RunFunc is the typed implementation of a tool.
type RunFunc[I any, O any] func(context.Context, *I) (*O, error)

// Func is a Tool backed by a typed function.
type Func[I any, O any] struct {
	name        string
	description string
	readOnly    bool
	params      map[string]any
	run         RunFunc[I, O]
}

var _ ReadOnlyTool = (*Func[struct{}, struct{}])(nil)

// FuncOption configures a Func.
type FuncOption func(*funcOptions)

type funcOptions struct {
	readOnly bool
}

// WithReadOnly marks the tool as free of side effects.
func WithReadOnly() FuncOption {
	return func(o *funcOptions) {
		o.readOnly = true
	}
}

// NewFunc returns a tool with the input schema reflected from I.
func NewFunc[I any, O any](name, description string, run RunFunc[I, O], opts ...FuncOption) (*Func[I, O], error) {
	if name == "" {
		return nil, errors.New("tool name is required")
	}
	if run == nil {
		return nil, errors.Errorf("tool %q: run function is required", name)
	}

	sc, err := schema.For[I]()
	if err != nil {
		return nil, errors.WithMessagef(err, "tool %q", name)
	}

	var o funcOptions
	for _, opt := range opts {
		opt(&o)
	}

	return &Func[I, O]{
		name:        name,
		description: description,
		readOnly:    o.readOnly,
		params:      sc.Map(),
		run:         run,
	}, nil
}

func (f *Func[I, O]) Name() string {
	return f.name
}

func (f *Func[I, O]) Description() string {
	return f.description
}

func (f *Func[I, O]) Parameters() map[string]any {
	return f.params
}

func (f *Func[I, O]) ReadOnly() bool {
	return f.readOnly
}

func (f *Func[I, O]) Run(ctx context.Context, req *I) (*O, error) {
	return f.run(ctx, req)
}

func (f *Func[I, O]) Call(ctx context.Context, input string) (string, error) {
	var req I
	if err := DecodeInput(input, &req); err != nil {
		return "", err
	}
	out, err := f.run(ctx, &req)
	if err != nil {
		return "", err
	}
	if out == nil {
		return "", nil
	}
	return EncodeOutput(out)
}
