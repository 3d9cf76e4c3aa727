package validation

import (
	"fmt"
	"sort"

	"github.com/rendis/flowcanvas/pkg/schema"
)

// validateSemantic checks node and connection references of a structurally
// valid document:
//   - node ids unique, types known to the catalog
//   - configuration keys not declared by the type's configuration schema
//     (warning only, since editors may set free-form keys)
//   - connection ids unique, endpoints resolvable
//   - connections run output -> input and respect target port capacity
func validateSemantic(doc *schema.Workflow, types TypeLookup) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	nodeTypes := make(map[string]string, len(doc.Nodes))
	for i, n := range doc.Nodes {
		path := fmt.Sprintf("nodes[%d]", i)
		if _, dup := nodeTypes[n.ID]; dup {
			result.AddError(path+".id", schema.ErrCodeValidation,
				fmt.Sprintf("duplicate node id %q", n.ID))
			continue
		}
		nodeTypes[n.ID] = n.Type

		if types == nil {
			continue
		}
		if !types.Has(n.Type) {
			result.AddError(path+".type", schema.ErrCodeUnknownType,
				fmt.Sprintf("node type %q is not in the catalog", n.Type))
			continue
		}
		cfgSchema, _ := types.ConfigSchema(n.Type)
		validateConfigKeys(result, path, n.Configuration, cfgSchema)
	}

	edgeIDs := make(map[string]bool, len(doc.Connections))
	occupied := make(map[string]string)
	for i, c := range doc.Connections {
		path := fmt.Sprintf("connections[%d]", i)
		if edgeIDs[c.ID] {
			result.AddError(path+".id", schema.ErrCodeValidation,
				fmt.Sprintf("duplicate connection id %q", c.ID))
		}
		edgeIDs[c.ID] = true

		srcType, srcOK := nodeTypes[c.SourceNode]
		if !srcOK {
			result.AddError(path+".sourceNode", schema.ErrCodeUnknownNode,
				fmt.Sprintf("source node %q does not exist", c.SourceNode))
		}
		dstType, dstOK := nodeTypes[c.TargetNode]
		if !dstOK {
			result.AddError(path+".targetNode", schema.ErrCodeUnknownNode,
				fmt.Sprintf("target node %q does not exist", c.TargetNode))
		}
		if types == nil || !srcOK || !dstOK || !types.Has(srcType) || !types.Has(dstType) {
			continue
		}

		if !checkEndpoint(result, path+".sourcePort", types, srcType, c.SourcePort, schema.DirectionOutput) {
			continue
		}
		if !checkEndpoint(result, path+".targetPort", types, dstType, c.TargetPort, schema.DirectionInput) {
			continue
		}

		port, _ := types.Port(dstType, c.TargetPort, schema.DirectionInput)
		key := c.TargetNode + "\x00" + c.TargetPort
		if prev, taken := occupied[key]; taken && !port.AllowMultiple {
			result.AddError(path+".targetPort", schema.ErrCodeValidation,
				fmt.Sprintf("input port %q of node %q accepts a single connection (already used by %q)",
					c.TargetPort, c.TargetNode, prev))
			continue
		}
		occupied[key] = c.ID
	}

	return result
}

// checkEndpoint reports a missing port as UNKNOWN_PORT and a port on the wrong
// side as a direction error. It returns true when the port resolves in want.
func checkEndpoint(result *schema.ValidationResult, path string, types TypeLookup, typeID, portID string, want schema.PortDirection) bool {
	if _, ok := types.Port(typeID, portID, want); ok {
		return true
	}
	if _, ok := types.Port(typeID, portID, want.Opposite()); ok {
		result.AddError(path, schema.ErrCodeValidation,
			fmt.Sprintf("port %q of type %q is an %s port, expected %s", portID, typeID, want.Opposite(), want))
		return false
	}
	result.AddError(path, schema.ErrCodeUnknownPort,
		fmt.Sprintf("type %q has no port %q", typeID, portID))
	return false
}

func validateConfigKeys(result *schema.ValidationResult, path string, cfg map[string]any, cfgSchema *schema.Descriptor) {
	if len(cfg) == 0 {
		return
	}
	if cfgSchema != nil && cfgSchema.AdditionalProperties != nil && *cfgSchema.AdditionalProperties {
		return
	}

	keys := make([]string, 0, len(cfg))
	for k := range cfg {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if !cfgSchema.HasProperty(k) {
			result.AddWarning(fmt.Sprintf("%s.configuration.%s", path, k), schema.ErrCodeValidation,
				fmt.Sprintf("configuration key %q is not declared by the node type", k))
		}
	}
}
