package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/flowcanvas/pkg/schema"
)

const (
	workflowSchemaURL = "https://flowcanvas.dev/schemas/workflow.json"
	catalogSchemaURL  = "https://flowcanvas.dev/schemas/catalog.json"
	commonSchemaURL   = "https://flowcanvas.dev/schemas/common.json"
)

// commonSchemaJSON holds the definitions shared by documents and catalogs.
const commonSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://flowcanvas.dev/schemas/common.json",
  "$defs": {
    "descriptor": {
      "type": "object",
      "properties": {
        "type": { "type": "string" },
        "properties": {
          "type": "object",
          "additionalProperties": { "$ref": "#/$defs/descriptor" }
        },
        "required": { "type": "array", "items": { "type": "string" } },
        "additionalProperties": { "type": "boolean" },
        "items": { "$ref": "#/$defs/descriptor" },
        "enum": { "type": "array" },
        "minimum": { "type": "number" },
        "maximum": { "type": "number" },
        "minLength": { "type": "integer", "minimum": 0 },
        "maxLength": { "type": "integer", "minimum": 0 },
        "pattern": { "type": "string" },
        "format": { "type": "string" },
        "description": { "type": "string" }
      }
    },
    "rule": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": { "type": "string", "minLength": 1 },
        "params": { "type": ["object", "null"] }
      }
    }
  }
}`

// workflowSchemaJSON is the JSON Schema for persisted workflow documents.
const workflowSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://flowcanvas.dev/schemas/workflow.json",
  "type": "object",
  "required": ["id", "version", "nodes", "connections"],
  "properties": {
    "id": { "type": "string", "minLength": 1 },
    "version": { "type": "string" },
    "nodes": {
      "type": "array",
      "items": { "$ref": "#/$defs/node" }
    },
    "connections": {
      "type": "array",
      "items": { "$ref": "#/$defs/connection" }
    },
    "inputSchema": { "$ref": "common.json#/$defs/descriptor" },
    "outputSchema": { "$ref": "common.json#/$defs/descriptor" },
    "metadata": {
      "type": "object",
      "properties": {
        "name": { "type": "string" },
        "description": { "type": "string" },
        "version": { "type": "string" },
        "created": { "type": "string" },
        "modified": { "type": "string" },
        "author": { "type": "string" }
      }
    },
    "globalState": {
      "type": "object",
      "properties": {
        "variables": {
          "type": ["object", "null"],
          "additionalProperties": { "$ref": "common.json#/$defs/descriptor" }
        }
      }
    }
  },
  "$defs": {
    "node": {
      "type": "object",
      "required": ["id", "type", "position"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "type": { "type": "string", "minLength": 1 },
        "configuration": { "type": ["object", "null"] },
        "position": {
          "type": "object",
          "required": ["x", "y"],
          "properties": {
            "x": { "type": "number" },
            "y": { "type": "number" }
          }
        }
      }
    },
    "connection": {
      "type": "object",
      "required": ["id", "sourceNode", "sourcePort", "targetNode", "targetPort"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "name": { "type": "string" },
        "sourceNode": { "type": "string", "minLength": 1 },
        "sourcePort": { "type": "string", "minLength": 1 },
        "targetNode": { "type": "string", "minLength": 1 },
        "targetPort": { "type": "string", "minLength": 1 },
        "transformationRules": {
          "type": ["array", "null"],
          "items": { "$ref": "common.json#/$defs/rule" }
        }
      }
    }
  }
}`

// catalogSchemaJSON is the JSON Schema for node type catalog files.
const catalogSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://flowcanvas.dev/schemas/catalog.json",
  "type": "object",
  "additionalProperties": { "$ref": "#/$defs/nodeType" },
  "$defs": {
    "nodeType": {
      "type": "object",
      "required": ["id"],
      "properties": {
        "id": { "type": "string" },
        "category": { "type": "string" },
        "version": { "type": "string" },
        "name": { "type": "string" },
        "description": { "type": "string" },
        "inputPorts": { "type": ["array", "null"], "items": { "$ref": "#/$defs/port" } },
        "outputPorts": { "type": ["array", "null"], "items": { "$ref": "#/$defs/port" } },
        "configSchema": { "$ref": "common.json#/$defs/descriptor" },
        "style": {
          "type": "object",
          "properties": {
            "backgroundColor": { "type": "string" },
            "borderColor": { "type": "string" },
            "icon": { "type": "string" }
          }
        }
      }
    },
    "port": {
      "type": "object",
      "required": ["id"],
      "properties": {
        "id": { "type": "string" },
        "name": { "type": "string" },
        "dataSchema": { "$ref": "common.json#/$defs/descriptor" },
        "isRequired": { "type": "boolean" },
        "allowMultiple": { "type": "boolean" },
        "validationRules": {
          "type": ["array", "null"],
          "items": { "$ref": "common.json#/$defs/rule" }
        }
      }
    }
  }
}`

// JSONSchemaValidator checks raw documents against the embedded schemas.
// It is safe for concurrent use.
type JSONSchemaValidator struct {
	workflowSchema *jsonschema.Schema
	catalogSchema  *jsonschema.Schema
}

// NewJSONSchemaValidator compiles the workflow and catalog schemas.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	for url, src := range map[string]string{
		commonSchemaURL:   commonSchemaJSON,
		workflowSchemaURL: workflowSchemaJSON,
		catalogSchemaURL:  catalogSchemaJSON,
	} {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
		if err != nil {
			return nil, fmt.Errorf("unmarshal schema %s: %w", url, err)
		}
		if err := c.AddResource(url, doc); err != nil {
			return nil, fmt.Errorf("add schema resource %s: %w", url, err)
		}
	}

	wf, err := c.Compile(workflowSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile workflow schema: %w", err)
	}
	cat, err := c.Compile(catalogSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile catalog schema: %w", err)
	}

	return &JSONSchemaValidator{workflowSchema: wf, catalogSchema: cat}, nil
}

// ValidateWorkflowJSON checks a raw workflow document's structure.
func (v *JSONSchemaValidator) ValidateWorkflowJSON(raw []byte) *schema.ValidationResult {
	return validateAgainst(v.workflowSchema, raw)
}

// ValidateCatalogJSON checks a raw catalog's structure.
func (v *JSONSchemaValidator) ValidateCatalogJSON(raw []byte) *schema.ValidationResult {
	return validateAgainst(v.catalogSchema, raw)
}

var (
	sharedOnce sync.Once
	shared     *JSONSchemaValidator
	sharedErr  error
)

func sharedValidator() (*JSONSchemaValidator, error) {
	sharedOnce.Do(func() {
		shared, sharedErr = NewJSONSchemaValidator()
	})
	return shared, sharedErr
}

// ValidateCatalogJSON checks a raw catalog with the process-wide validator.
func ValidateCatalogJSON(raw []byte) *schema.ValidationResult {
	v, err := sharedValidator()
	if err != nil {
		r := &schema.ValidationResult{}
		r.AddError("/", schema.ErrCodeDefinition, err.Error())
		return r
	}
	return v.ValidateCatalogJSON(raw)
}

func validateAgainst(s *jsonschema.Schema, raw []byte) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		result.AddError("/", schema.ErrCodeValidation, fmt.Sprintf("invalid JSON: %v", err))
		return result
	}

	if err := s.Validate(doc); err != nil {
		verr, ok := err.(*jsonschema.ValidationError)
		if !ok {
			result.AddError("/", schema.ErrCodeValidation, err.Error())
			return result
		}
		for _, v := range collectViolations(verr) {
			result.AddError(v.path, schema.ErrCodeValidation, v.message)
		}
	}
	return result
}

type violation struct {
	path    string
	message string
}

// collectViolations walks a ValidationError tree and collects leaf errors
// with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []violation {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []violation{{path: loc, message: verr.Error()}}
	}

	var out []violation
	for _, cause := range verr.Causes {
		out = append(out, collectViolations(cause)...)
	}
	return out
}

// toJSON marshals a decoded document so it can go through the structural stage.
func toJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}
