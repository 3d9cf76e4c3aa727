package validation

import (
	"fmt"

	"github.com/rendis/flowcanvas/pkg/schema"
)

// validateRules compiles every transformation rule with checker. Rule types the
// checker does not handle are passed through with a warning.
func validateRules(doc *schema.Workflow, checker RuleChecker) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	if checker == nil {
		return result
	}

	for i, c := range doc.Connections {
		for j, rule := range c.TransformationRules {
			path := fmt.Sprintf("connections[%d].transformationRules[%d]", i, j)
			handled, err := checker.CheckRule(rule)
			if !handled {
				result.AddWarning(path+".type", schema.ErrCodeValidation,
					fmt.Sprintf("transformation rule type %q is not evaluated by the editor", rule.Type))
				continue
			}
			if err != nil {
				result.AddError(path+".params.expression", schema.ErrCodeExpression, err.Error())
			}
		}
	}
	return result
}
