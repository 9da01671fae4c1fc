package toolcatalog

import (
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/xeipuuv/gojsonschema"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpbridge/pkg", "toolcatalog")

var (
	// ErrSchema is returned when a descriptor is malformed or duplicated.
	ErrSchema = errors.New("invalid tool schema")
	// ErrUnsupportedSchemaFeature is returned by adapters that cannot
	// express a schema keyword used by a tool.
	ErrUnsupportedSchemaFeature = errors.New("unsupported schema feature")
	// ErrInvalidArguments is returned when call arguments do not validate
	// against the tool schema.
	ErrInvalidArguments = errors.New("invalid tool arguments")
	// ErrToolNotFound is returned when a tool is not in the catalog.
	ErrToolNotFound = errors.New("tool not found in catalog")
)

// RawDescriptor is a tool descriptor as listed by a tool server.
type RawDescriptor struct {
	Name        string
	Title       string
	Description string
	// InputSchema is any JSON-marshalable value, json.RawMessage, []byte or string.
	InputSchema any
	// ReadOnly is set when the server advertises the tool does not modify
	// its environment.
	ReadOnly bool
}

// ToolDescriptor is the normalized, immutable description of a tool.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
	ReadOnly    bool            `json:"read_only,omitempty"`
}

// Schema returns a decoded copy of the input schema.
func (d ToolDescriptor) Schema() map[string]any {
	m := map[string]any{}
	_ = json.Unmarshal(d.InputSchema, &m)
	return m
}

// Properties returns the top-level properties of the input schema.
func (d ToolDescriptor) Properties() map[string]any {
	props, _ := d.Schema()["properties"].(map[string]any)
	return props
}

// Required returns the top-level required properties of the input schema.
func (d ToolDescriptor) Required() []string {
	var req []string
	if list, ok := d.Schema()["required"].([]any); ok {
		for _, r := range list {
			if s, ok := r.(string); ok {
				req = append(req, s)
			}
		}
	}
	return req
}

// Catalog is an ordered, immutable collection of tool descriptors.
type Catalog struct {
	tools      []ToolDescriptor
	byName     map[string]int
	validators map[string]*gojsonschema.Schema
}

// Build normalizes raw descriptors into a catalog.
// It fails with ErrSchema if any descriptor lacks a name, has a duplicate
// name, or has an input schema that is not a JSON object schema.
func Build(raw []RawDescriptor) (*Catalog, error) {
	c := &Catalog{
		tools:      make([]ToolDescriptor, 0, len(raw)),
		byName:     make(map[string]int, len(raw)),
		validators: make(map[string]*gojsonschema.Schema, len(raw)),
	}

	for i, r := range raw {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			return nil, errors.Wrapf(ErrSchema, "tool at index %d has no name", i)
		}
		if _, dup := c.byName[name]; dup {
			return nil, errors.Wrapf(ErrSchema, "duplicate tool name %q", name)
		}

		schema, err := normalizeSchema(r.InputSchema)
		if err != nil {
			return nil, errors.Wrapf(ErrSchema, "tool %q: %s", name, err.Error())
		}

		c.byName[name] = len(c.tools)
		c.tools = append(c.tools, ToolDescriptor{
			Name:        name,
			Title:       r.Title,
			Description: r.Description,
			InputSchema: schema,
			ReadOnly:    r.ReadOnly,
		})

		if v, err := compileValidator(schema); err != nil {
			logger.KV(xlog.WARNING,
				"reason", "compile_schema",
				"tool", name,
				"err", err.Error())
		} else {
			c.validators[name] = v
		}
	}
	return c, nil
}

// Describe returns the descriptors in listing order.
func (c *Catalog) Describe() []ToolDescriptor {
	return append([]ToolDescriptor(nil), c.tools...)
}

// Lookup returns the descriptor by name.
func (c *Catalog) Lookup(name string) (ToolDescriptor, bool) {
	idx, ok := c.byName[name]
	if !ok {
		return ToolDescriptor{}, false
	}
	return c.tools[idx], true
}

// Names returns the tool names in listing order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.tools))
	for _, t := range c.tools {
		names = append(names, t.Name)
	}
	return names
}

// Len returns the number of tools.
func (c *Catalog) Len() int {
	return len(c.tools)
}

// ValidateArguments validates call arguments against the tool schema.
// Empty arguments are treated as an empty object.
func (c *Catalog) ValidateArguments(name string, args json.RawMessage) error {
	if _, ok := c.byName[name]; !ok {
		return errors.Wrapf(ErrToolNotFound, "%q", name)
	}
	v := c.validators[name]
	if v == nil {
		return nil
	}
	if len(strings.TrimSpace(string(args))) == 0 {
		args = json.RawMessage(`{}`)
	}

	result, err := v.Validate(gojsonschema.NewBytesLoader(args))
	if err != nil {
		return errors.Wrapf(ErrInvalidArguments, "%s: %s", name, err.Error())
	}
	if !result.Valid() {
		var list []string
		for _, e := range result.Errors() {
			list = append(list, e.String())
		}
		return errors.Wrapf(ErrInvalidArguments, "%s: %s", name, strings.Join(list, "; "))
	}
	return nil
}

// normalizeSchema decodes the schema and returns its canonical JSON.
// An empty schema becomes {"type":"object","properties":{}}, a missing
// properties keyword is added as an empty object.
func normalizeSchema(in any) (json.RawMessage, error) {
	var data []byte
	switch v := in.(type) {
	case nil:
		data = nil
	case json.RawMessage:
		data = v
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		js, err := json.Marshal(v)
		if err != nil {
			return nil, errors.Wrap(err, "unable to encode input schema")
		}
		data = js
	}

	m := map[string]any{}
	if s := strings.TrimSpace(string(data)); s != "" && s != "null" {
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, errors.New("input schema must be a JSON object")
		}
	}

	switch typ := m["type"].(type) {
	case nil:
		m["type"] = "object"
	case string:
		if typ != "object" {
			return nil, errors.Newf("input schema type must be \"object\", got %q", typ)
		}
	default:
		return nil, errors.Newf("input schema type must be \"object\", got %v", typ)
	}

	if props, ok := m["properties"]; ok {
		if _, ok := props.(map[string]any); !ok {
			return nil, errors.New("input schema properties must be an object")
		}
	} else {
		m["properties"] = map[string]any{}
	}

	js, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(err, "unable to encode input schema")
	}
	return js, nil
}

func compileValidator(schema json.RawMessage) (*gojsonschema.Schema, error) {
	m := map[string]any{}
	if err := json.Unmarshal(schema, &m); err != nil {
		return nil, errors.WithStack(err)
	}
	// draft identifiers newer than draft-07 are not known to the validator
	delete(m, "$schema")
	v, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(m))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return v, nil
}
