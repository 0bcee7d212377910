package generate

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const multipleChoiceSchema = `{
  "type": "object",
  "required": ["question", "choices", "answer"],
  "properties": {
    "question": {"type": "string", "minLength": 1},
    "choices": {
      "type": "array",
      "minItems": 5,
      "maxItems": 5,
      "items": {"type": "string", "minLength": 1}
    },
    "answer": {"type": ["string", "integer"]},
    "solution": {"type": "string"}
  }
}`

const descriptiveSchema = `{
  "type": "object",
  "required": ["question", "answer"],
  "properties": {
    "question": {"type": "string", "minLength": 1},
    "answer": {"type": ["string", "number"]},
    "solution": {"type": "string"},
    "solution_steps": {"type": "array", "items": {"type": "string"}}
  },
  "anyOf": [
    {"required": ["solution"]},
    {"required": ["solution_steps"]}
  ]
}`

const conceptSchema = `{
  "type": "object",
  "required": ["concepts"],
  "properties": {
    "concepts": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "confidence": {"type": "number", "minimum": 0, "maximum": 1}
        }
      }
    }
  }
}`

var (
	mcSchema       = mustSchema(multipleChoiceSchema)
	descSchema     = mustSchema(descriptiveSchema)
	conceptsSchema = mustSchema(conceptSchema)
)

func mustSchema(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("compile schema: %v", err))
	}
	return s
}

// validate checks doc against schema and joins every violation into one
// error.
func validate(schema *gojsonschema.Schema, doc string) error {
	res, err := schema.Validate(gojsonschema.NewStringLoader(doc))
	if err != nil {
		return fmt.Errorf("validate reply: %w", err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("reply does not match schema: %s", strings.Join(msgs, "; "))
}
