package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowcanvas/pkg/schema"
)

func sampleType(id string, category schema.NodeCategory) schema.NodeType {
	return schema.NodeType{
		ID:          id,
		Category:    category,
		Version:     "1.0.0",
		Name:        id,
		InputPorts:  []schema.PortDefinition{{ID: "in", Name: "In"}},
		OutputPorts: []schema.PortDefinition{{ID: "out", Name: "Out", AllowMultiple: true}},
	}
}

func TestLoad_GetReturnsExactDefinitions(t *testing.T) {
	defs := map[string]schema.NodeType{
		"a": sampleType("a", schema.CategoryAIService),
		"b": sampleType("b", schema.CategoryTransformer),
	}
	r, err := Load(defs)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())

	for id, want := range defs {
		got, err := r.Get(id)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestLoad_EmptyID(t *testing.T) {
	nt := sampleType("", schema.CategoryAIService)
	_, err := Load(map[string]schema.NodeType{"x": nt})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeDefinition, schema.CodeOf(err))
}

func TestLoad_DuplicateIDUnderDifferentKeys(t *testing.T) {
	_, err := Load(map[string]schema.NodeType{
		"a":     sampleType("a", schema.CategoryAIService),
		"alias": sampleType("a", schema.CategoryAIService),
	})
	require.Error(t, err)
	fe := err.(*schema.FlowError)
	assert.Equal(t, schema.ErrCodeDefinition, fe.Code)
	// mismatched key and duplicate id are both reported
	assert.Equal(t, 2, fe.Details["error_count"])
}

func TestLoad_DuplicatePortWithinDirection(t *testing.T) {
	nt := sampleType("a", schema.CategoryAIService)
	nt.InputPorts = append(nt.InputPorts, schema.PortDefinition{ID: "in"})
	_, err := Load(map[string]schema.NodeType{"a": nt})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate port id")
}

func TestLoad_SamePortIDAcrossDirectionsIsAllowed(t *testing.T) {
	nt := sampleType("a", schema.CategoryAIService)
	nt.OutputPorts = []schema.PortDefinition{{ID: "in"}}
	_, err := Load(map[string]schema.NodeType{"a": nt})
	require.NoError(t, err)
}

func TestGet_UnknownType(t *testing.T) {
	r, err := Load(map[string]schema.NodeType{"a": sampleType("a", schema.CategoryAIService)})
	require.NoError(t, err)

	_, err = r.Get("nope")
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeUnknownType, schema.CodeOf(err))
	assert.False(t, r.Has("nope"))
}

func TestGet_ReturnsCopy(t *testing.T) {
	r, err := Load(map[string]schema.NodeType{"a": sampleType("a", schema.CategoryAIService)})
	require.NoError(t, err)

	nt, err := r.Get("a")
	require.NoError(t, err)
	nt.InputPorts[0].ID = "mutated"
	nt.Name = "mutated"

	again, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "in", again.InputPorts[0].ID)
	assert.Equal(t, "a", again.Name)
}

func TestPortResolution(t *testing.T) {
	r, err := Load(map[string]schema.NodeType{"a": sampleType("a", schema.CategoryAIService)})
	require.NoError(t, err)

	p, ok := r.Port("a", "out", schema.DirectionOutput)
	require.True(t, ok)
	assert.True(t, p.AllowMultiple)

	_, ok = r.Port("a", "out", schema.DirectionInput)
	assert.False(t, ok)

	dir, ok := r.PortDirection("a", "in")
	require.True(t, ok)
	assert.Equal(t, schema.DirectionInput, dir)
}

func TestGroups_ToolbarOrder(t *testing.T) {
	r, err := Load(map[string]schema.NodeType{
		"t": sampleType("t", schema.CategoryTransformer),
		"a": sampleType("a", schema.CategoryAIService),
		"z": sampleType("z", "CUSTOM"),
	})
	require.NoError(t, err)

	groups := r.Groups()
	require.Len(t, groups, 3)
	assert.Equal(t, schema.CategoryAIService, groups[0].Category)
	assert.Equal(t, schema.CategoryTransformer, groups[1].Category)
	assert.Equal(t, schema.NodeCategory("CUSTOM"), groups[2].Category)
}

func TestDefault_BuiltinCatalog(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)
	assert.Equal(t, 4, r.Len())

	tg, err := r.Get("textGeneration")
	require.NoError(t, err)
	assert.Equal(t, []string{"model", "maxTokens"}, tg.ConfigSchema.PropertyNames())
	assert.Equal(t, "🤖", tg.Style.Icon)

	p, ok := r.Port("textGeneration", "prompt", schema.DirectionInput)
	require.True(t, ok)
	assert.False(t, p.AllowMultiple)
}

func TestLoadJSON_StructuralErrors(t *testing.T) {
	_, err := LoadJSON([]byte(`{"a": {"id": "a", "inputPorts": "nope"}}`))
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeDefinition, schema.CodeOf(err))
}

func TestLoadFile_TOML(t *testing.T) {
	doc := `
[echo]
id = "echo"
name = "Echo"
category = "TRANSFORMER"
version = "1.0.0"
description = "Echoes its input"

[[echo.inputPorts]]
id = "in"
name = "In"
isRequired = true
allowMultiple = false

[[echo.outputPorts]]
id = "out"
name = "Out"
isRequired = true
allowMultiple = true

[echo.configSchema]
type = "object"

[echo.configSchema.properties.suffix]
type = "string"

[echo.configSchema.properties.repeat]
type = "number"
minimum = 1
`
	path := filepath.Join(t.TempDir(), "catalog.toml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	r, err := LoadFile(path)
	require.NoError(t, err)

	nt, err := r.Get("echo")
	require.NoError(t, err)
	assert.Equal(t, schema.CategoryTransformer, nt.Category)
	assert.Equal(t, []string{"repeat", "suffix"}, nt.ConfigSchema.PropertyNames())
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}
