// Package defaults derives a node's initial configuration from its type's
// configuration schema.
package defaults

import "github.com/rendis/flowcanvas/pkg/schema"

// Compute returns the default configuration for a configuration schema. For
// each property in declared order:
//   - enum: the first enumerated value
//   - number or integer with a minimum: the minimum
//   - string: ""
//   - boolean: false
//
// Any other property is omitted. A nil schema yields an empty map.
func Compute(desc *schema.Descriptor) map[string]any {
	out := make(map[string]any)
	if desc == nil || desc.Properties == nil {
		return out
	}
	for pair := desc.Properties.Oldest(); pair != nil; pair = pair.Next() {
		if v, ok := Value(pair.Value); ok {
			out[pair.Key] = v
		}
	}
	return out
}

// Value returns the default of a single property descriptor.
func Value(prop *schema.Descriptor) (any, bool) {
	switch {
	case prop == nil:
		return nil, false
	case len(prop.Enum) > 0:
		return schema.CloneValue(prop.Enum[0]), true
	case prop.IsNumeric() && prop.Minimum != nil:
		return *prop.Minimum, true
	case prop.Type == "string":
		return "", true
	case prop.Type == "boolean":
		return false, true
	default:
		return nil, false
	}
}
