package schema_test

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/effective-security/mcpbridge/pkg/llmutils"
	"github.com/effective-security/mcpbridge/pkg/schema"
	"github.com/invopop/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type SearchType string

// Search represents a search request with various parameters.
type Search struct {
	Query string     `json:"query" jsonschema:"title=Query,description=Query to search for relevant content"`
	Type  SearchType `json:"type,omitempty" jsonschema:"title=Type,description=Type of search,enum=web,enum=image"`
	Prov  *KVPair    `json:"prov,omitempty" jsonschema:"title=Prov,description=Provider for the search"`
}

// KVPair represents a key-value pair.
type KVPair struct {
	Key   string `json:"key" jsonschema:"title=Key,description=Key of the pair"`
	Value string `json:"value" jsonschema:"title=Value,description=Value of the pair"`
}

type timeArgs struct {
	Timezone string `json:"timezone,omitempty" jsonschema:"title=Timezone,description=IANA time zone name"`
}

func TestSchema(t *testing.T) {
	t.Parallel()

	t.Run("optional", func(t *testing.T) {
		t.Parallel()
		s, err := schema.For[timeArgs]()
		require.NoError(t, err)
		exp := `{
	"properties": {
		"timezone": {
			"type": "string",
			"title": "Timezone",
			"description": "IANA time zone name"
		}
	},
	"type": "object"
}`
		assert.Equal(t, exp, s.String())
		assert.Equal(t, exp, llmutils.ToJSONIndent(s.Parameters))
		assert.Equal(t, "object", s.Map()["type"])
	})

	t.Run("nested", func(t *testing.T) {
		t.Parallel()
		s, err := schema.New(reflect.TypeOf(&Search{}))
		require.NoError(t, err)

		m := s.Map()
		assert.Equal(t, []any{"query"}, m["required"])
		props := m["properties"].(map[string]any)
		require.Len(t, props, 3)
		prov := props["prov"].(map[string]any)
		assert.Equal(t, "object", prov["type"])
		assert.Contains(t, prov, "properties")
		assert.NotContains(t, prov, "$ref")

		// cached
		s2, err := schema.For[Search]()
		require.NoError(t, err)
		assert.Same(t, s, s2)

		var sc jsonschema.Schema
		require.NoError(t, json.Unmarshal([]byte(s.String()), &sc))
		assert.Equal(t, 3, sc.Properties.Len())
	})

	t.Run("not a struct", func(t *testing.T) {
		t.Parallel()
		_, err := schema.For[string]()
		assert.EqualError(t, err, "schema: string is not a struct")
	})
}
