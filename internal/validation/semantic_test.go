package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowcanvas/pkg/schema"
)

type mockTypeLookup struct {
	types map[string]schema.NodeType
}

func (m *mockTypeLookup) Has(typeID string) bool {
	_, ok := m.types[typeID]
	return ok
}

func (m *mockTypeLookup) ConfigSchema(typeID string) (*schema.Descriptor, bool) {
	nt, ok := m.types[typeID]
	return nt.ConfigSchema, ok
}

func (m *mockTypeLookup) Port(typeID, portID string, dir schema.PortDirection) (schema.PortDefinition, bool) {
	nt, ok := m.types[typeID]
	if !ok {
		return schema.PortDefinition{}, false
	}
	return nt.Port(portID, dir)
}

// newMockLookup returns a catalog with a single "llm" type: input "prompt"
// (single), output "text" (multiple), configuration {model, maxTokens}.
func newMockLookup() *mockTypeLookup {
	cfg := &schema.Descriptor{Type: "object", Properties: schema.NewProperties()}
	cfg.Properties.Set("model", &schema.Descriptor{Type: "string", Enum: []any{"a", "b"}})
	cfg.Properties.Set("maxTokens", &schema.Descriptor{Type: "number"})
	return &mockTypeLookup{types: map[string]schema.NodeType{
		"llm": {
			ID:           "llm",
			InputPorts:   []schema.PortDefinition{{ID: "prompt"}},
			OutputPorts:  []schema.PortDefinition{{ID: "text", AllowMultiple: true}},
			ConfigSchema: cfg,
		},
	}}
}

type mockRuleChecker struct{}

func (mockRuleChecker) CheckRule(rule schema.TransformationRule) (bool, error) {
	if rule.Type != "jq" {
		return false, nil
	}
	if rule.Expression() == "" {
		return true, errors.New("expression is empty")
	}
	return true, nil
}

func twoNodeDoc() *schema.Workflow {
	return &schema.Workflow{
		ID:      "wf-1",
		Version: "1.0.0",
		Nodes: []schema.WorkflowNode{
			{ID: "llm-1", Type: "llm", Configuration: map[string]any{"model": "a"}},
			{ID: "llm-2", Type: "llm", Configuration: map[string]any{}},
		},
		Connections: []schema.Connection{
			{ID: "e1", SourceNode: "llm-1", SourcePort: "text", TargetNode: "llm-2", TargetPort: "prompt"},
		},
	}
}

func TestSemantic_Valid(t *testing.T) {
	result := validateSemantic(twoNodeDoc(), newMockLookup())
	assert.True(t, result.Valid())
	assert.Empty(t, result.Errors)
}

func TestSemantic_NilLookupSkipsCatalogChecks(t *testing.T) {
	doc := twoNodeDoc()
	doc.Nodes[0].Type = "missing"
	doc.Connections[0].SourcePort = "nope"
	result := validateSemantic(doc, nil)
	assert.True(t, result.Valid())
}

func TestSemantic_DuplicateNodeID(t *testing.T) {
	doc := twoNodeDoc()
	doc.Nodes[1].ID = "llm-1"
	doc.Connections = nil
	result := validateSemantic(doc, newMockLookup())
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "nodes[1].id", result.Errors[0].Path)
}

func TestSemantic_UnknownType(t *testing.T) {
	doc := twoNodeDoc()
	doc.Nodes[1].Type = "ghost"
	result := validateSemantic(doc, newMockLookup())
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "nodes[1].type", result.Errors[0].Path)
	assert.Equal(t, schema.ErrCodeUnknownType, result.Errors[0].Code)
}

func TestSemantic_UndeclaredConfigKeys(t *testing.T) {
	doc := twoNodeDoc()
	doc.Nodes[0].Configuration["zeta"] = 1
	doc.Nodes[0].Configuration["alpha"] = 2
	result := validateSemantic(doc, newMockLookup())
	assert.True(t, result.Valid())
	require.Len(t, result.Warnings, 2)
	assert.Equal(t, "nodes[0].configuration.alpha", result.Warnings[0].Path)
	assert.Equal(t, "nodes[0].configuration.zeta", result.Warnings[1].Path)
	assert.Equal(t, schema.SeverityWarning, result.Warnings[0].Severity)
}

func TestSemantic_AdditionalPropertiesAllowsExtraKeys(t *testing.T) {
	lookup := newMockLookup()
	nt := lookup.types["llm"]
	open := true
	nt.ConfigSchema.AdditionalProperties = &open
	lookup.types["llm"] = nt

	doc := twoNodeDoc()
	doc.Nodes[0].Configuration["extra"] = true
	assert.True(t, validateSemantic(doc, lookup).Valid())
}

func TestSemantic_MissingEndpoints(t *testing.T) {
	doc := twoNodeDoc()
	doc.Connections[0].SourceNode = "nobody"
	doc.Connections[0].TargetNode = "noone"
	result := validateSemantic(doc, newMockLookup())
	assert.Equal(t, []string{"connections[0].sourceNode", "connections[0].targetNode"}, result.Paths())
	assert.Equal(t, schema.ErrCodeUnknownNode, result.Errors[0].Code)
}

func TestSemantic_UnknownPort(t *testing.T) {
	doc := twoNodeDoc()
	doc.Connections[0].TargetPort = "nope"
	result := validateSemantic(doc, newMockLookup())
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "connections[0].targetPort", result.Errors[0].Path)
	assert.Equal(t, schema.ErrCodeUnknownPort, result.Errors[0].Code)
}

func TestSemantic_WrongDirection(t *testing.T) {
	doc := twoNodeDoc()
	doc.Connections[0] = schema.Connection{
		ID: "e1", SourceNode: "llm-1", SourcePort: "prompt", TargetNode: "llm-2", TargetPort: "prompt",
	}
	result := validateSemantic(doc, newMockLookup())
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "connections[0].sourcePort", result.Errors[0].Path)
	assert.Contains(t, result.Errors[0].Message, "input port")
}

func TestSemantic_CapacityExceeded(t *testing.T) {
	doc := twoNodeDoc()
	doc.Nodes = append(doc.Nodes, schema.WorkflowNode{ID: "llm-3", Type: "llm"})
	doc.Connections = append(doc.Connections, schema.Connection{
		ID: "e2", SourceNode: "llm-3", SourcePort: "text", TargetNode: "llm-2", TargetPort: "prompt",
	})
	result := validateSemantic(doc, newMockLookup())
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "connections[1].targetPort", result.Errors[0].Path)
	assert.Contains(t, result.Errors[0].Message, "e1")
}

func TestSemantic_OutputFanOutAllowed(t *testing.T) {
	doc := twoNodeDoc()
	doc.Nodes = append(doc.Nodes, schema.WorkflowNode{ID: "llm-3", Type: "llm"})
	doc.Connections = append(doc.Connections, schema.Connection{
		ID: "e2", SourceNode: "llm-1", SourcePort: "text", TargetNode: "llm-3", TargetPort: "prompt",
	})
	assert.True(t, validateSemantic(doc, newMockLookup()).Valid())
}

func TestSemantic_DuplicateConnectionID(t *testing.T) {
	doc := twoNodeDoc()
	doc.Nodes = append(doc.Nodes, schema.WorkflowNode{ID: "llm-3", Type: "llm"})
	doc.Connections = append(doc.Connections, schema.Connection{
		ID: "e1", SourceNode: "llm-2", SourcePort: "text", TargetNode: "llm-3", TargetPort: "prompt",
	})
	result := validateSemantic(doc, newMockLookup())
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "connections[1].id", result.Errors[0].Path)
}

func TestRules_CompileErrorsAndUnknownTypes(t *testing.T) {
	doc := twoNodeDoc()
	doc.Connections[0].TransformationRules = []schema.TransformationRule{
		{Type: "jq", Params: map[string]any{"expression": ".text"}},
		{Type: "jq"},
		{Type: "mapping", Params: map[string]any{"from": "a"}},
	}
	result := validateRules(doc, mockRuleChecker{})
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "connections[0].transformationRules[1].params.expression", result.Errors[0].Path)
	assert.Equal(t, schema.ErrCodeExpression, result.Errors[0].Code)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "connections[0].transformationRules[2].type", result.Warnings[0].Path)
}

func TestRules_NilCheckerSkips(t *testing.T) {
	doc := twoNodeDoc()
	doc.Connections[0].TransformationRules = []schema.TransformationRule{{Type: "jq"}}
	result := validateRules(doc, nil)
	assert.True(t, result.Valid())
	assert.Empty(t, result.Warnings)
}
