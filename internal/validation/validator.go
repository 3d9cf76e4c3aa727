package validation

import "github.com/rendis/flowcanvas/pkg/schema"

// TypeLookup resolves node types during semantic checks. Satisfied by
// *registry.Registry; nil skips catalog checks.
type TypeLookup interface {
	Has(typeID string) bool
	ConfigSchema(typeID string) (*schema.Descriptor, bool)
	Port(typeID, portID string, dir schema.PortDirection) (schema.PortDefinition, bool)
}

// RuleChecker compiles transformation rules. It reports handled=false for
// rule types it does not know.
type RuleChecker interface {
	CheckRule(rule schema.TransformationRule) (handled bool, err error)
}

// Validator checks persisted workflow documents before they are imported.
type Validator interface {
	ValidateJSON(raw []byte) (*schema.Workflow, *schema.ValidationResult)
	ValidateWorkflow(doc *schema.Workflow) *schema.ValidationResult
}
