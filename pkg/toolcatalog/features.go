package toolcatalog

import (
	"encoding/json"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// Feature is a schema keyword used at a location of a tool schema.
type Feature struct {
	Keyword string
	// Path is a JSON pointer to the schema object holding the keyword.
	Path string
}

// Root returns true if the keyword is used at the top level of the schema.
func (f Feature) Root() bool {
	return f.Path == ""
}

// keywords holding a map of sub-schemas keyed by name
var schemaMaps = map[string]bool{
	"properties":        true,
	"patternProperties": true,
	"$defs":             true,
	"definitions":       true,
	"dependentSchemas":  true,
}

// keywords holding a list of sub-schemas
var schemaLists = map[string]bool{
	"allOf":       true,
	"anyOf":       true,
	"oneOf":       true,
	"prefixItems": true,
}

// keywords holding a single sub-schema
var schemaSingles = map[string]bool{
	"items":                 true,
	"additionalProperties":  true,
	"not":                   true,
	"if":                    true,
	"then":                  true,
	"else":                  true,
	"contains":              true,
	"propertyNames":         true,
	"unevaluatedItems":      true,
	"unevaluatedProperties": true,
}

// Features returns every keyword used in the schema, sorted by path and keyword.
func Features(schema json.RawMessage) ([]Feature, error) {
	var root any
	if err := json.Unmarshal(schema, &root); err != nil {
		return nil, errors.WithStack(err)
	}
	var list []Feature
	walk(root, "", &list)
	sort.Slice(list, func(i, j int) bool {
		if list[i].Path == list[j].Path {
			return list[i].Keyword < list[j].Keyword
		}
		return list[i].Path < list[j].Path
	})
	return list, nil
}

func walk(node any, path string, list *[]Feature) {
	obj, ok := node.(map[string]any)
	if !ok {
		return
	}
	for kw, val := range obj {
		*list = append(*list, Feature{Keyword: kw, Path: path})

		switch {
		case schemaMaps[kw]:
			if m, ok := val.(map[string]any); ok {
				for name, sub := range m {
					walk(sub, path+"/"+kw+"/"+escapePointer(name), list)
				}
			}
		case schemaLists[kw]:
			if arr, ok := val.([]any); ok {
				for i, sub := range arr {
					walk(sub, path+"/"+kw+"/"+strconv.Itoa(i), list)
				}
			}
		case schemaSingles[kw]:
			switch sub := val.(type) {
			case map[string]any:
				walk(sub, path+"/"+kw, list)
			case []any:
				// draft-04 tuple items
				for i, s := range sub {
					walk(s, path+"/"+kw+"/"+strconv.Itoa(i), list)
				}
			}
		}
	}
}

// Unsupported lists the schema keywords a backend cannot express.
type Unsupported struct {
	// Root keywords are rejected at the top level of the schema only.
	Root []string
	// Anywhere keywords are rejected at any depth.
	Anywhere []string
}

// Check returns ErrUnsupportedSchemaFeature naming the first keyword of the
// descriptor schema the backend cannot express.
func (u Unsupported) Check(d ToolDescriptor) error {
	features, err := Features(d.InputSchema)
	if err != nil {
		return errors.Wrapf(ErrSchema, "tool %q: %s", d.Name, err.Error())
	}
	for _, f := range features {
		if f.Root() && slices.Contains(u.Root, f.Keyword) {
			return errors.Wrapf(ErrUnsupportedSchemaFeature, "tool %q: keyword %q at the schema root", d.Name, f.Keyword)
		}
		if slices.Contains(u.Anywhere, f.Keyword) {
			at := f.Path
			if at == "" {
				at = "/"
			}
			return errors.Wrapf(ErrUnsupportedSchemaFeature, "tool %q: keyword %q at %s", d.Name, f.Keyword, at)
		}
	}
	return nil
}

// CheckCatalog checks every descriptor of the catalog.
func (u Unsupported) CheckCatalog(c *Catalog) error {
	for _, d := range c.tools {
		if err := u.Check(d); err != nil {
			return err
		}
	}
	return nil
}

var pointerEscaper = strings.NewReplacer("~", "~0", "/", "~1")

func escapePointer(s string) string {
	return pointerEscaper.Replace(s)
}
