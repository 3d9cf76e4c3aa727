package schema

// NodeCategory groups node types in the catalog toolbar.
type NodeCategory string

const (
	CategoryAIService       NodeCategory = "AI_SERVICE"
	CategoryDataConnector   NodeCategory = "DATA_CONNECTOR"
	CategoryFlowControl     NodeCategory = "FLOW_CONTROL"
	CategoryStateManagement NodeCategory = "STATE_MANAGEMENT"
	CategoryTransformer     NodeCategory = "TRANSFORMER"
	CategoryInputOutput     NodeCategory = "INPUT_OUTPUT"
)

// Categories lists every category in toolbar order.
var Categories = []NodeCategory{
	CategoryAIService,
	CategoryDataConnector,
	CategoryFlowControl,
	CategoryStateManagement,
	CategoryTransformer,
	CategoryInputOutput,
}

// PortDirection tells whether a port consumes or produces data.
type PortDirection string

const (
	DirectionInput  PortDirection = "input"
	DirectionOutput PortDirection = "output"
)

// Opposite returns the direction a compatible peer port must have.
func (d PortDirection) Opposite() PortDirection {
	if d == DirectionInput {
		return DirectionOutput
	}
	return DirectionInput
}

// Valid reports whether d is a known direction.
func (d PortDirection) Valid() bool {
	return d == DirectionInput || d == DirectionOutput
}

// ValidationRule is an opaque port rule consumed outside the editor.
type ValidationRule struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params,omitempty"`
}

// PortDefinition describes one typed connection point of a node type.
type PortDefinition struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	DataSchema      *Descriptor      `json:"dataSchema,omitempty"`
	IsRequired      bool             `json:"isRequired"`
	AllowMultiple   bool             `json:"allowMultiple"`
	ValidationRules []ValidationRule `json:"validationRules"`
}

// NodeStyle is display metadata for the presentation layer.
type NodeStyle struct {
	BackgroundColor string `json:"backgroundColor,omitempty"`
	BorderColor     string `json:"borderColor,omitempty"`
	Icon            string `json:"icon,omitempty"`
}

// NodeType is the immutable template a graph node is instantiated from.
type NodeType struct {
	ID           string           `json:"id"`
	Category     NodeCategory     `json:"category"`
	Version      string           `json:"version"`
	Name         string           `json:"name"`
	Description  string           `json:"description"`
	InputPorts   []PortDefinition `json:"inputPorts"`
	OutputPorts  []PortDefinition `json:"outputPorts"`
	ConfigSchema *Descriptor      `json:"configSchema,omitempty"`
	Style        *NodeStyle       `json:"style,omitempty"`
}

// Port finds a port by id in the given direction.
func (nt *NodeType) Port(id string, dir PortDirection) (PortDefinition, bool) {
	ports := nt.InputPorts
	if dir == DirectionOutput {
		ports = nt.OutputPorts
	}
	for _, p := range ports {
		if p.ID == id {
			return p, true
		}
	}
	return PortDefinition{}, false
}

// PortDirectionOf resolves which direction carries port id. Input ports win
// when a type reuses the same id on both sides.
func (nt *NodeType) PortDirectionOf(id string) (PortDirection, bool) {
	if _, ok := nt.Port(id, DirectionInput); ok {
		return DirectionInput, true
	}
	if _, ok := nt.Port(id, DirectionOutput); ok {
		return DirectionOutput, true
	}
	return "", false
}

// Clone returns a deep copy so catalog entries cannot be mutated by callers.
func (nt NodeType) Clone() NodeType {
	c := nt
	c.InputPorts = clonePorts(nt.InputPorts)
	c.OutputPorts = clonePorts(nt.OutputPorts)
	c.ConfigSchema = nt.ConfigSchema.Clone()
	if nt.Style != nil {
		s := *nt.Style
		c.Style = &s
	}
	return c
}

func clonePorts(ports []PortDefinition) []PortDefinition {
	if ports == nil {
		return nil
	}
	out := make([]PortDefinition, len(ports))
	for i, p := range ports {
		out[i] = p
		out[i].DataSchema = p.DataSchema.Clone()
		if p.ValidationRules != nil {
			out[i].ValidationRules = make([]ValidationRule, len(p.ValidationRules))
			for j, r := range p.ValidationRules {
				out[i].ValidationRules[j] = ValidationRule{Type: r.Type, Params: CloneMap(r.Params)}
			}
		}
	}
	return out
}
