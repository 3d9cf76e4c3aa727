package schema

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Properties holds a descriptor's child properties in declared order.
type Properties = orderedmap.OrderedMap[string, *Descriptor]

// Descriptor is a recursive JSON-Schema-like shape description used for
// port payloads, node configuration and workflow state variables.
type Descriptor struct {
	Type                 string      `json:"type"`
	Properties           *Properties `json:"properties,omitempty"`
	Required             []string    `json:"required,omitempty"`
	AdditionalProperties *bool       `json:"additionalProperties,omitempty"`
	Items                *Descriptor `json:"items,omitempty"`
	Enum                 []any       `json:"enum,omitempty"`
	Minimum              *float64    `json:"minimum,omitempty"`
	Maximum              *float64    `json:"maximum,omitempty"`
	MinLength            *int        `json:"minLength,omitempty"`
	MaxLength            *int        `json:"maxLength,omitempty"`
	Pattern              string      `json:"pattern,omitempty"`
	Format               string      `json:"format,omitempty"`
	Description          string      `json:"description,omitempty"`
}

// NewProperties returns an empty ordered property set.
func NewProperties() *Properties {
	return orderedmap.New[string, *Descriptor]()
}

// Property returns the named child descriptor, or nil.
func (d *Descriptor) Property(name string) *Descriptor {
	if d == nil || d.Properties == nil {
		return nil
	}
	p, _ := d.Properties.Get(name)
	return p
}

// HasProperty reports whether name is a declared property.
func (d *Descriptor) HasProperty(name string) bool {
	if d == nil || d.Properties == nil {
		return false
	}
	_, ok := d.Properties.Get(name)
	return ok
}

// PropertyNames returns the property names in declared order.
func (d *Descriptor) PropertyNames() []string {
	if d == nil || d.Properties == nil {
		return nil
	}
	names := make([]string, 0, d.Properties.Len())
	for pair := d.Properties.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// IsRequired reports whether name is listed in Required.
func (d *Descriptor) IsRequired(name string) bool {
	if d == nil {
		return false
	}
	for _, r := range d.Required {
		if r == name {
			return true
		}
	}
	return false
}

// IsNumeric reports whether the descriptor describes a number or integer.
func (d *Descriptor) IsNumeric() bool {
	return d != nil && (d.Type == "number" || d.Type == "integer")
}

// Clone returns a deep copy.
func (d *Descriptor) Clone() *Descriptor {
	if d == nil {
		return nil
	}
	c := *d
	if d.Properties != nil {
		c.Properties = NewProperties()
		for pair := d.Properties.Oldest(); pair != nil; pair = pair.Next() {
			c.Properties.Set(pair.Key, pair.Value.Clone())
		}
	}
	if d.Required != nil {
		c.Required = append([]string(nil), d.Required...)
	}
	if d.Enum != nil {
		c.Enum = append([]any(nil), d.Enum...)
	}
	c.Items = d.Items.Clone()
	c.AdditionalProperties = clonePtr(d.AdditionalProperties)
	c.Minimum = clonePtr(d.Minimum)
	c.Maximum = clonePtr(d.Maximum)
	c.MinLength = clonePtr(d.MinLength)
	c.MaxLength = clonePtr(d.MaxLength)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
