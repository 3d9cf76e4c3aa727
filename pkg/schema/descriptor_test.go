package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescriptor_PreservesDeclaredOrder(t *testing.T) {
	raw := `{
		"type": "object",
		"properties": {
			"zeta":  {"type": "string"},
			"alpha": {"type": "number", "minimum": 1},
			"mid":   {"type": "boolean"}
		},
		"required": ["alpha"]
	}`

	var d Descriptor
	require.NoError(t, json.Unmarshal([]byte(raw), &d))

	assert.Equal(t, []string{"zeta", "alpha", "mid"}, d.PropertyNames())
	assert.True(t, d.HasProperty("mid"))
	assert.False(t, d.HasProperty("missing"))
	assert.True(t, d.IsRequired("alpha"))
	require.NotNil(t, d.Property("alpha").Minimum)
	assert.Equal(t, 1.0, *d.Property("alpha").Minimum)
	assert.True(t, d.Property("alpha").IsNumeric())
}

func TestDescriptor_MarshalKeepsOrder(t *testing.T) {
	d := &Descriptor{Type: "object", Properties: NewProperties()}
	d.Properties.Set("b", &Descriptor{Type: "string"})
	d.Properties.Set("a", &Descriptor{Type: "string"})

	out, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `{"type":"object","properties":{"b":{"type":"string"},"a":{"type":"string"}}}`, string(out))
}

func TestDescriptor_CloneIsDeep(t *testing.T) {
	min := 3.0
	d := &Descriptor{Type: "object", Properties: NewProperties(), Enum: []any{"x"}}
	d.Properties.Set("n", &Descriptor{Type: "number", Minimum: &min})

	c := d.Clone()
	*c.Property("n").Minimum = 10
	c.Enum[0] = "y"
	c.Properties.Set("extra", &Descriptor{Type: "string"})

	assert.Equal(t, 3.0, *d.Property("n").Minimum)
	assert.Equal(t, "x", d.Enum[0])
	assert.False(t, d.HasProperty("extra"))
}

func TestNodeType_PortLookup(t *testing.T) {
	nt := NodeType{
		ID:          "textGeneration",
		InputPorts:  []PortDefinition{{ID: "prompt"}},
		OutputPorts: []PortDefinition{{ID: "text", AllowMultiple: true}},
	}

	p, ok := nt.Port("text", DirectionOutput)
	require.True(t, ok)
	assert.True(t, p.AllowMultiple)

	_, ok = nt.Port("text", DirectionInput)
	assert.False(t, ok)

	dir, ok := nt.PortDirectionOf("prompt")
	require.True(t, ok)
	assert.Equal(t, DirectionInput, dir)
	assert.Equal(t, DirectionOutput, dir.Opposite())
}

func TestCloneValue_Nested(t *testing.T) {
	orig := map[string]any{"list": []any{map[string]any{"k": "v"}}}
	cp := CloneMap(orig)
	cp["list"].([]any)[0].(map[string]any)["k"] = "changed"
	assert.Equal(t, "v", orig["list"].([]any)[0].(map[string]any)["k"])
}
