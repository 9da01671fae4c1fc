package toolcatalog

import (
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild(t *testing.T) {
	t.Parallel()

	c, err := Build([]RawDescriptor{
		{Name: "get_time", Description: "returns current time", InputSchema: map[string]any{}, ReadOnly: true},
		{
			Name:        "set_light",
			Description: "switches a light",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"room":{"type":"string"},"on":{"type":"boolean"}},"required":["room","on"],"additionalProperties":false}`),
		},
		{Name: "noop"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, []string{"get_time", "set_light", "noop"}, c.Names())

	d, ok := c.Lookup("get_time")
	require.True(t, ok)
	assert.True(t, d.ReadOnly)
	assert.JSONEq(t, `{"type":"object","properties":{}}`, string(d.InputSchema))
	assert.Empty(t, d.Properties())

	d, ok = c.Lookup("noop")
	require.True(t, ok)
	assert.JSONEq(t, `{"type":"object","properties":{}}`, string(d.InputSchema))
	assert.JSONEq(t, `{"type":"object","properties":{}}`, string(c.Describe()[2].InputSchema))

	d, ok = c.Lookup("set_light")
	require.True(t, ok)
	assert.False(t, d.ReadOnly)
	assert.Equal(t, []string{"room", "on"}, d.Required())
	assert.Len(t, d.Properties(), 2)
	// keywords are preserved
	assert.Equal(t, false, d.Schema()["additionalProperties"])

	_, ok = c.Lookup("missing")
	assert.False(t, ok)

	// describe returns a copy
	list := c.Describe()
	list[0].Name = "changed"
	assert.Equal(t, "get_time", c.Describe()[0].Name)
}

func TestBuildErrors(t *testing.T) {
	t.Parallel()

	tcs := []struct {
		name string
		raw  []RawDescriptor
		exp  string
	}{
		{
			name: "no name",
			raw:  []RawDescriptor{{Name: "a"}, {Name: " "}},
			exp:  "tool at index 1 has no name: invalid tool schema",
		},
		{
			name: "duplicate",
			raw:  []RawDescriptor{{Name: "a"}, {Name: "a"}},
			exp:  `duplicate tool name "a": invalid tool schema`,
		},
		{
			name: "not an object",
			raw:  []RawDescriptor{{Name: "a", InputSchema: "[1,2]"}},
			exp:  `tool "a": input schema must be a JSON object: invalid tool schema`,
		},
		{
			name: "wrong type",
			raw:  []RawDescriptor{{Name: "a", InputSchema: `{"type":"string"}`}},
			exp:  `tool "a": input schema type must be "object", got "string": invalid tool schema`,
		},
		{
			name: "bad properties",
			raw:  []RawDescriptor{{Name: "a", InputSchema: `{"properties":[]}`}},
			exp:  `tool "a": input schema properties must be an object: invalid tool schema`,
		},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Build(tc.raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrSchema))
			assert.EqualError(t, err, tc.exp)
		})
	}
}

func TestValidateArguments(t *testing.T) {
	t.Parallel()

	c, err := Build([]RawDescriptor{
		{Name: "get_time"},
		{
			Name:        "set_light",
			InputSchema: `{"$schema":"https://json-schema.org/draft/2020-12/schema","type":"object","properties":{"room":{"type":"string"},"on":{"type":"boolean"}},"required":["room"]}`,
		},
	})
	require.NoError(t, err)

	assert.NoError(t, c.ValidateArguments("get_time", nil))
	assert.NoError(t, c.ValidateArguments("get_time", json.RawMessage(`{}`)))
	assert.NoError(t, c.ValidateArguments("set_light", json.RawMessage(`{"room":"kitchen","on":true}`)))

	err = c.ValidateArguments("set_light", json.RawMessage(`{"on":"yes"}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidArguments))
	assert.Contains(t, err.Error(), "room")

	err = c.ValidateArguments("unknown", nil)
	assert.True(t, errors.Is(err, ErrToolNotFound))
}

func TestFeatures(t *testing.T) {
	t.Parallel()

	schema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"a/b": {"oneOf": [{"type": "string"}, {"type": "integer"}]},
			"list": {"type": "array", "items": {"type": "string", "minLength": 1}}
		},
		"anyOf": [{"required": ["list"]}]
	}`)
	list, err := Features(schema)
	require.NoError(t, err)

	has := func(kw, path string) bool {
		for _, f := range list {
			if f.Keyword == kw && f.Path == path {
				return true
			}
		}
		return false
	}
	assert.True(t, has("anyOf", ""))
	assert.True(t, has("oneOf", "/properties/a~1b"))
	assert.True(t, has("type", "/properties/a~1b/oneOf/1"))
	assert.True(t, has("minLength", "/properties/list/items"))
	assert.True(t, has("required", "/anyOf/0"))
	assert.False(t, has("a/b", ""))

	_, err = Features(json.RawMessage(`{`))
	assert.Error(t, err)
}

func TestUnsupported(t *testing.T) {
	t.Parallel()

	c, err := Build([]RawDescriptor{
		{Name: "plain", InputSchema: `{"type":"object","properties":{"x":{"type":"string"}}}`},
		{Name: "nested", InputSchema: `{"type":"object","properties":{"x":{"oneOf":[{"type":"string"},{"type":"null"}]}}}`},
		{Name: "rooted", InputSchema: `{"type":"object","anyOf":[{"required":["x"]},{"required":["y"]}]}`},
	})
	require.NoError(t, err)

	rootOnly := Unsupported{Root: []string{"anyOf", "oneOf"}}
	assert.NoError(t, rootOnly.Check(mustLookup(t, c, "plain")))
	assert.NoError(t, rootOnly.Check(mustLookup(t, c, "nested")))

	err = rootOnly.Check(mustLookup(t, c, "rooted"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedSchemaFeature))
	assert.EqualError(t, err, `tool "rooted": keyword "anyOf" at the schema root: unsupported schema feature`)

	anywhere := Unsupported{Anywhere: []string{"oneOf"}}
	err = anywhere.Check(mustLookup(t, c, "nested"))
	require.Error(t, err)
	assert.EqualError(t, err, `tool "nested": keyword "oneOf" at /properties/x: unsupported schema feature`)

	err = anywhere.CheckCatalog(c)
	assert.True(t, errors.Is(err, ErrUnsupportedSchemaFeature))
	assert.NoError(t, Unsupported{}.CheckCatalog(c))
}

func mustLookup(t *testing.T, c *Catalog, name string) ToolDescriptor {
	d, ok := c.Lookup(name)
	require.True(t, ok)
	return d
}
