package router

import (
	"fmt"
	"math"
	"reflect"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cast"
)

// ValidationError reports params that do not satisfy a tool's input schema.
type ValidationError struct {
	Tool   string
	Param  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("router: invalid params for %s: %s", e.Tool, e.Reason)
	}
	return fmt.Sprintf("router: invalid params for %s: %s: %s", e.Tool, e.Param, e.Reason)
}

// ValidateParams checks params against the tool's declared input schema and
// returns the coerced params. Declared defaults fill absent values and keys
// the schema does not declare are dropped.
func ValidateParams(tool mcp.Tool, params map[string]any) (map[string]any, error) {
	schema := tool.InputSchema
	out := make(map[string]any, len(schema.Properties))

	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		prop, _ := schema.Properties[name].(map[string]any)
		raw, present := params[name]
		if !present || raw == nil {
			if def, ok := prop["default"]; ok {
				out[name] = def
			}
			continue
		}

		typ, _ := prop["type"].(string)
		v, err := coerce(typ, prop, raw)
		if err != nil {
			return nil, &ValidationError{Tool: tool.Name, Param: name, Reason: err.Error()}
		}
		if allowed := enumValues(prop["enum"]); len(allowed) > 0 && !containsString(allowed, cast.ToString(v)) {
			return nil, &ValidationError{Tool: tool.Name, Param: name,
				Reason: fmt.Sprintf("%v is not one of %v", v, allowed)}
		}
		out[name] = v
	}

	for _, req := range schema.Required {
		if _, ok := out[req]; !ok {
			return nil, &ValidationError{Tool: tool.Name, Param: req, Reason: "required parameter missing"}
		}
	}
	return out, nil
}

func coerce(typ string, prop map[string]any, v any) (any, error) {
	switch typ {
	case "string":
		return cast.ToStringE(v)
	case "number":
		return cast.ToFloat64E(v)
	case "integer":
		if f, ok := v.(float64); ok && f != math.Trunc(f) {
			return nil, fmt.Errorf("%v is not an integer", f)
		}
		return cast.ToInt64E(v)
	case "boolean":
		return cast.ToBoolE(v)
	case "object":
		return cast.ToStringMapE(v)
	case "array":
		items, err := toSlice(v)
		if err != nil {
			return nil, err
		}
		itemSchema, _ := prop["items"].(map[string]any)
		itemType, _ := itemSchema["type"].(string)
		if itemType == "" {
			return items, nil
		}
		for i, it := range items {
			c, err := coerce(itemType, itemSchema, it)
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			items[i] = c
		}
		return items, nil
	default:
		return v, nil
	}
}

func toSlice(v any) ([]any, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("expected an array, got %T", v)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

func enumValues(v any) []string {
	switch e := v.(type) {
	case []string:
		return e
	case []any:
		return cast.ToStringSlice(e)
	default:
		return nil
	}
}

func containsString(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
