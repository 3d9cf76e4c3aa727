package schema

// Workflow is the persisted JSON document of an edited graph.
type Workflow struct {
	ID           string           `json:"id"`
	Version      string           `json:"version"`
	Nodes        []WorkflowNode   `json:"nodes"`
	Connections  []Connection     `json:"connections"`
	InputSchema  *Descriptor      `json:"inputSchema,omitempty"`
	OutputSchema *Descriptor      `json:"outputSchema,omitempty"`
	Metadata     WorkflowMetadata `json:"metadata"`
	GlobalState  StateDefinition  `json:"globalState"`
}

// Position is a point in canvas space.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// WorkflowNode is a placed instance of a node type.
type WorkflowNode struct {
	ID            string         `json:"id"`
	Type          string         `json:"type"`
	Configuration map[string]any `json:"configuration"`
	Position      Position       `json:"position"`
}

// TransformationRule reshapes the payload travelling along a connection.
// Rules of type jq, cel and expr read their program from Params["expression"].
type TransformationRule struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params,omitempty"`
}

// Expression returns the rule's expression parameter, or "".
func (r TransformationRule) Expression() string {
	s, _ := r.Params["expression"].(string)
	return s
}

// Connection links an output port to an input port.
type Connection struct {
	ID                  string               `json:"id"`
	Name                string               `json:"name,omitempty"`
	SourceNode          string               `json:"sourceNode"`
	SourcePort          string               `json:"sourcePort"`
	TargetNode          string               `json:"targetNode"`
	TargetPort          string               `json:"targetPort"`
	TransformationRules []TransformationRule `json:"transformationRules,omitempty"`
}

// WorkflowMetadata carries descriptive fields. Timestamps are RFC 3339 strings.
type WorkflowMetadata struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`
	Created     string `json:"created"`
	Modified    string `json:"modified"`
	Author      string `json:"author"`
}

// StateDefinition declares the workflow's global state variables.
type StateDefinition struct {
	Variables map[string]*Descriptor `json:"variables"`
}

// CloneMap deep-copies a JSON-like map.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies nested maps and slices of a JSON-like value.
func CloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = CloneValue(item)
		}
		return out
	default:
		return v
	}
}

// CloneRules deep-copies a transformation rule list.
func CloneRules(rules []TransformationRule) []TransformationRule {
	if rules == nil {
		return nil
	}
	out := make([]TransformationRule, len(rules))
	for i, r := range rules {
		out[i] = TransformationRule{Type: r.Type, Params: CloneMap(r.Params)}
	}
	return out
}
