package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/flowcanvas/pkg/schema"
)

const payloadSchemaBase = "https://flowcanvas.dev/schemas/payload/"

// PayloadValidator checks port payloads against the port's data schema.
// Compiled schemas are cached by key, so a key must always name the same
// descriptor (for example "textGeneration/input/prompt").
type PayloadValidator struct {
	mu       sync.Mutex
	compiled map[string]*jsonschema.Schema
}

// NewPayloadValidator creates an empty PayloadValidator.
func NewPayloadValidator() *PayloadValidator {
	return &PayloadValidator{compiled: make(map[string]*jsonschema.Schema)}
}

// Validate checks value against desc. A nil desc accepts anything. Issue
// paths are JSON pointers into value prefixed with key.
func (pv *PayloadValidator) Validate(key string, desc *schema.Descriptor, value any) *schema.ValidationResult {
	if desc == nil {
		return &schema.ValidationResult{}
	}
	s, err := pv.schemaFor(key, desc)
	if err != nil {
		r := &schema.ValidationResult{}
		r.AddError(key, schema.ErrCodeDefinition, err.Error())
		return r
	}
	raw, err := json.Marshal(value)
	if err != nil {
		r := &schema.ValidationResult{}
		r.AddError(key, schema.ErrCodeValidation, fmt.Sprintf("payload is not JSON: %v", err))
		return r
	}

	result := validateAgainst(s, raw)
	for i := range result.Errors {
		result.Errors[i].Path = key + strings.TrimSuffix(result.Errors[i].Path, "/")
	}
	return result
}

func (pv *PayloadValidator) schemaFor(key string, desc *schema.Descriptor) (*jsonschema.Schema, error) {
	pv.mu.Lock()
	defer pv.mu.Unlock()
	if s, ok := pv.compiled[key]; ok {
		return s, nil
	}

	raw, err := json.Marshal(desc)
	if err != nil {
		return nil, fmt.Errorf("marshal data schema %s: %w", key, err)
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("unmarshal data schema %s: %w", key, err)
	}
	url := payloadSchemaBase + key + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add data schema %s: %w", key, err)
	}
	s, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile data schema %s: %w", key, err)
	}
	pv.compiled[key] = s
	return s, nil
}
