package registry

import (
	"fmt"
	"sort"

	"github.com/rendis/flowcanvas/pkg/schema"
)

// Registry is the immutable node type catalog. It is built once by Load and
// exposes no mutation path afterwards, so it is safe for concurrent reads.
type Registry struct {
	types map[string]schema.NodeType
	ids   []string
}

// CategoryGroup is one toolbar section: a category and its node types.
type CategoryGroup struct {
	Category schema.NodeCategory `json:"category"`
	Types    []schema.NodeType   `json:"types"`
}

// Load validates definitions and builds a Registry. Every violation is
// collected; any violation aborts the load with a DEFINITION_ERROR.
func Load(definitions map[string]schema.NodeType) (*Registry, error) {
	keys := make([]string, 0, len(definitions))
	for k := range definitions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := &schema.ValidationResult{}
	owner := make(map[string]string, len(definitions))
	for _, key := range keys {
		checkType(result, key, definitions[key], owner)
	}
	if err := result.ToError(schema.ErrCodeDefinition); err != nil {
		return nil, err
	}

	r := &Registry{
		types: make(map[string]schema.NodeType, len(definitions)),
		ids:   make([]string, 0, len(definitions)),
	}
	for _, key := range keys {
		nt := definitions[key].Clone()
		r.types[nt.ID] = nt
		r.ids = append(r.ids, nt.ID)
	}
	return r, nil
}

func checkType(result *schema.ValidationResult, key string, nt schema.NodeType, owner map[string]string) {
	path := fmt.Sprintf("[%s]", key)
	if nt.ID == "" {
		result.AddError(path+".id", schema.ErrCodeDefinition, "node type id is empty")
		return
	}
	if key != "" && key != nt.ID {
		result.AddError(path+".id", schema.ErrCodeDefinition,
			fmt.Sprintf("node type id %q does not match catalog key %q", nt.ID, key))
	}
	if prev, dup := owner[nt.ID]; dup {
		result.AddError(path+".id", schema.ErrCodeDefinition,
			fmt.Sprintf("duplicate node type id %q (already declared under %q)", nt.ID, prev))
	} else {
		owner[nt.ID] = key
	}
	checkPorts(result, path+".inputPorts", nt.InputPorts)
	checkPorts(result, path+".outputPorts", nt.OutputPorts)
}

func checkPorts(result *schema.ValidationResult, path string, ports []schema.PortDefinition) {
	seen := make(map[string]bool, len(ports))
	for i, p := range ports {
		pp := fmt.Sprintf("%s[%d].id", path, i)
		if p.ID == "" {
			result.AddError(pp, schema.ErrCodeDefinition, "port id is empty")
			continue
		}
		if seen[p.ID] {
			result.AddError(pp, schema.ErrCodeDefinition, fmt.Sprintf("duplicate port id %q", p.ID))
			continue
		}
		seen[p.ID] = true
	}
}

// Get returns a copy of the node type with the given id.
func (r *Registry) Get(typeID string) (schema.NodeType, error) {
	nt, ok := r.types[typeID]
	if !ok {
		return schema.NodeType{}, schema.NewErrorf(schema.ErrCodeUnknownType, "node type %q is not in the catalog", typeID).
			WithDetails(map[string]any{"type": typeID})
	}
	return nt.Clone(), nil
}

// Has reports whether typeID is in the catalog.
func (r *Registry) Has(typeID string) bool {
	_, ok := r.types[typeID]
	return ok
}

// ConfigSchema returns the configuration descriptor of a node type. The
// returned descriptor is shared and must be treated as read-only.
func (r *Registry) ConfigSchema(typeID string) (*schema.Descriptor, bool) {
	nt, ok := r.types[typeID]
	if !ok {
		return nil, false
	}
	return nt.ConfigSchema, true
}

// Port resolves a port of a node type in the given direction.
func (r *Registry) Port(typeID, portID string, dir schema.PortDirection) (schema.PortDefinition, bool) {
	nt, ok := r.types[typeID]
	if !ok {
		return schema.PortDefinition{}, false
	}
	return nt.Port(portID, dir)
}

// PortDirection resolves the direction carrying portID on typeID.
func (r *Registry) PortDirection(typeID, portID string) (schema.PortDirection, bool) {
	nt, ok := r.types[typeID]
	if !ok {
		return "", false
	}
	return nt.PortDirectionOf(portID)
}

// Len returns the number of node types.
func (r *Registry) Len() int { return len(r.ids) }

// List returns copies of all node types sorted by id.
func (r *Registry) List() []schema.NodeType {
	out := make([]schema.NodeType, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, r.types[id].Clone())
	}
	return out
}

// ByCategory returns the node types of one category sorted by id.
func (r *Registry) ByCategory(category schema.NodeCategory) []schema.NodeType {
	var out []schema.NodeType
	for _, id := range r.ids {
		if nt := r.types[id]; nt.Category == category {
			out = append(out, nt.Clone())
		}
	}
	return out
}

// Groups returns the non-empty categories in toolbar order. Types whose
// category is not a known one are grouped last under their own name.
func (r *Registry) Groups() []CategoryGroup {
	known := make(map[schema.NodeCategory]bool, len(schema.Categories))
	var groups []CategoryGroup
	for _, c := range schema.Categories {
		known[c] = true
		if types := r.ByCategory(c); len(types) > 0 {
			groups = append(groups, CategoryGroup{Category: c, Types: types})
		}
	}

	var extra []schema.NodeCategory
	seen := make(map[schema.NodeCategory]bool)
	for _, id := range r.ids {
		c := r.types[id].Category
		if !known[c] && !seen[c] {
			seen[c] = true
			extra = append(extra, c)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	for _, c := range extra {
		groups = append(groups, CategoryGroup{Category: c, Types: r.ByCategory(c)})
	}
	return groups
}
