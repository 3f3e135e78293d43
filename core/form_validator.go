package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const formSchemaURL = "formsync://schemas/form.json"

const formSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["title", "baseId", "tableId", "questions"],
  "properties": {
    "title": {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "baseId": {"type": "string", "minLength": 1},
    "tableId": {"type": "string", "minLength": 1},
    "questions": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["questionKey", "fieldId", "label", "type"],
        "properties": {
          "questionKey": {"type": "string", "minLength": 1},
          "fieldId": {"type": "string", "minLength": 1},
          "label": {"type": "string", "minLength": 1},
          "type": {"type": "string", "minLength": 1},
          "required": {"type": "boolean"},
          "options": {"type": ["array", "null"], "items": {"type": "string"}},
          "conditionalRules": {
            "type": ["object", "null"],
            "properties": {
              "logic": {"enum": ["and", "or", ""]},
              "rules": {
                "type": ["array", "null"],
                "items": {
                  "type": "object",
                  "required": ["dependsOn", "operator"],
                  "properties": {
                    "dependsOn": {"type": "string", "minLength": 1},
                    "operator": {"enum": ["equals", "not_equals", "contains", "greater_than", "less_than"]}
                  }
                }
              }
            }
          }
        }
      }
    }
  }
}`

// SchemaFormValidator validates form definitions against a JSON schema and
// checks that visibility rules only reference questions of the same form.
type SchemaFormValidator struct {
	schema *jsonschema.Schema
}

func NewSchemaFormValidator() (*SchemaFormValidator, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(formSchema))
	if err != nil {
		return nil, fmt.Errorf("core: decode form schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(formSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("core: register form schema: %w", err)
	}
	schema, err := compiler.Compile(formSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("core: compile form schema: %w", err)
	}
	return &SchemaFormValidator{schema: schema}, nil
}

func (v *SchemaFormValidator) ValidateForm(form Form) error {
	if v == nil || v.schema == nil {
		return InternalError("core: form validator is not configured", nil)
	}
	raw, err := json.Marshal(form)
	if err != nil {
		return BadInputError(fmt.Sprintf("core: encode form: %v", err))
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return BadInputError(fmt.Sprintf("core: decode form: %v", err))
	}
	if err := v.schema.Validate(instance); err != nil {
		var validationErr *jsonschema.ValidationError
		if errors.As(err, &validationErr) {
			return ValidationError("form", fmt.Sprintf("invalid form definition: %v", validationErr))
		}
		return ValidationError("form", fmt.Sprintf("invalid form definition: %v", err))
	}

	keys := make(map[string]struct{}, len(form.Questions))
	for _, question := range form.Questions {
		if _, dup := keys[question.QuestionKey]; dup {
			return ValidationError(question.Label, fmt.Sprintf("duplicate question key %q", question.QuestionKey))
		}
		keys[question.QuestionKey] = struct{}{}
	}
	for _, question := range form.Questions {
		if question.Visibility == nil {
			continue
		}
		for _, rule := range question.Visibility.Rules {
			if rule.DependsOn == question.QuestionKey {
				return ValidationError(question.Label, "a question cannot depend on itself")
			}
			if _, ok := keys[rule.DependsOn]; !ok {
				return ValidationError(question.Label, fmt.Sprintf("rule depends on unknown question %q", rule.DependsOn))
			}
		}
	}
	return nil
}
