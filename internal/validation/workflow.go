package validation

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/rendis/flowcanvas/pkg/schema"
)

// DocumentValidator runs the import pipeline on workflow documents:
//  1. Structural (JSON Schema)
//  2. Semantic (ids, node types, configuration keys, endpoints, capacity)
//  3. Rules (transformation rule compilation)
//  4. DAG (cycle and isolation warnings)
type DocumentValidator struct {
	jsonSchema *JSONSchemaValidator
	types      TypeLookup
	rules      RuleChecker
}

// NewDocumentValidator creates a DocumentValidator. types and rules may be nil
// to skip catalog and rule checks.
func NewDocumentValidator(types TypeLookup, rules RuleChecker) (*DocumentValidator, error) {
	jsv, err := sharedValidator()
	if err != nil {
		return nil, err
	}
	return &DocumentValidator{jsonSchema: jsv, types: types, rules: rules}, nil
}

// ValidateJSON checks a raw document and decodes it. The returned workflow is
// nil when the structural stage fails.
func (dv *DocumentValidator) ValidateJSON(raw []byte) (*schema.Workflow, *schema.ValidationResult) {
	result := dv.jsonSchema.ValidateWorkflowJSON(raw)
	if !result.Valid() {
		return nil, result
	}

	var doc schema.Workflow
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&doc); err != nil {
		result.AddError("/", schema.ErrCodeValidation, fmt.Sprintf("decode workflow: %v", err))
		return nil, result
	}

	result.Merge(dv.validateDecoded(&doc))
	return &doc, result
}

// ValidateWorkflow runs the full pipeline on an already decoded document.
// Structural errors short-circuit the later stages.
func (dv *DocumentValidator) ValidateWorkflow(doc *schema.Workflow) *schema.ValidationResult {
	if doc == nil {
		r := &schema.ValidationResult{}
		r.AddError("/", schema.ErrCodeValidation, "workflow document is nil")
		return r
	}

	raw, err := toJSON(doc)
	if err != nil {
		r := &schema.ValidationResult{}
		r.AddError("/", schema.ErrCodeValidation, fmt.Sprintf("encode workflow: %v", err))
		return r
	}
	result := dv.jsonSchema.ValidateWorkflowJSON(raw)
	if !result.Valid() {
		return result
	}
	result.Merge(dv.validateDecoded(doc))
	return result
}

func (dv *DocumentValidator) validateDecoded(doc *schema.Workflow) *schema.ValidationResult {
	result := validateSemantic(doc, dv.types)
	result.Merge(validateRules(doc, dv.rules))

	// Skip graph analysis when references are broken.
	if result.Valid() {
		result.Merge(validateDAG(doc))
	}
	return result
}

func nodePath(i int) string {
	return fmt.Sprintf("nodes[%d]", i)
}
