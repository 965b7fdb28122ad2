package validate

import (
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const storySchemaURL = "https://storytrace.dev/schema/story.json"

// storySchemaJSON is the structural contract for one model-generated story.
// story_id is accepted but always replaced by the generator.
const storySchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["epic", "user_story", "acceptance_criteria", "priority"],
  "properties": {
    "epic": {"type": "string"},
    "story_id": {"type": ["string", "null"]},
    "user_story": {"type": "string", "minLength": 1},
    "acceptance_criteria": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["given", "when", "then"],
        "properties": {
          "given": {"type": "string"},
          "when": {"type": "string"},
          "then": {"type": "string"}
        }
      }
    },
    "priority": {"enum": ["Must", "Should", "Could", "Won't"]},
    "dependencies": {"$ref": "#/$defs/strings"},
    "non_functional": {"$ref": "#/$defs/strings"},
    "source_requirement_ids": {"$ref": "#/$defs/strings"},
    "assumptions": {"$ref": "#/$defs/strings"},
    "open_questions": {"$ref": "#/$defs/strings"},
    "citations": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["page", "snippet"],
        "properties": {
          "page": {"type": "integer"},
          "snippet": {"type": "string"}
        }
      }
    }
  },
  "$defs": {
    "strings": {"type": "array", "items": {"type": "string"}}
  }
}`

var storySchema = sync.OnceValue(func() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(storySchemaJSON))
	if err != nil {
		panic(fmt.Sprintf("story schema: %v", err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(storySchemaURL, doc); err != nil {
		panic(fmt.Sprintf("story schema: %v", err))
	}
	return c.MustCompile(storySchemaURL)
})
