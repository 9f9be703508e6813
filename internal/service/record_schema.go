package service

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"quiz-forge/internal/domain"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const questionRecordSchemaURL = "schema://question_record.json"

const questionRecordSchema = `{
  "type": "object",
  "required": ["question", "type", "correct_answer", "source_file"],
  "properties": {
    "question": {"type": "string", "minLength": 1},
    "type": {"enum": ["multiple_choice", "open_ended"]},
    "options": {"type": "array", "items": {"type": "string", "minLength": 1}},
    "correct_answer": {"type": "string", "minLength": 1},
    "explanation": {"type": "string"},
    "source_file": {"type": "string", "minLength": 1}
  },
  "allOf": [
    {
      "if": {"properties": {"type": {"const": "multiple_choice"}}},
      "then": {"required": ["options"], "properties": {"options": {"minItems": 2}}}
    },
    {
      "if": {"properties": {"type": {"const": "open_ended"}}},
      "then": {"not": {"required": ["options"]}}
    }
  ]
}`

var (
	compiledRecordSchema *jsonschema.Schema
	compileSchemaOnce    sync.Once
	compileSchemaErr     error
)

func recordSchema() (*jsonschema.Schema, error) {
	compileSchemaOnce.Do(func() {
		def, err := jsonschema.UnmarshalJSON(strings.NewReader(questionRecordSchema))
		if err != nil {
			compileSchemaErr = fmt.Errorf("parse question schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(questionRecordSchemaURL, def); err != nil {
			compileSchemaErr = fmt.Errorf("add question schema: %w", err)
			return
		}
		compiledRecordSchema, compileSchemaErr = c.Compile(questionRecordSchemaURL)
	})
	return compiledRecordSchema, compileSchemaErr
}

// validateRecord checks a normalized record against the question schema and the
// option-count limit of the request.
func validateRecord(rec domain.QuestionRecord, maxOptions int) error {
	if rec.Type == domain.TypeMultipleChoice && len(rec.Options) > maxOptions {
		return domain.NewMalformedOutputError(fmt.Sprintf("%d options exceed the maximum of %d", len(rec.Options), maxOptions), nil)
	}

	schema, err := recordSchema()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal question record: %w", err)
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return fmt.Errorf("unmarshal question record: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		return domain.NewMalformedOutputError("question record failed schema validation", err)
	}
	return nil
}
