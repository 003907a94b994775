package action

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const whenDefs = `"$defs": {
    "when": {
      "oneOf": [
        {
          "type": "object",
          "required": ["dateTime"],
          "properties": {"dateTime": {"type": "string", "minLength": 1}},
          "additionalProperties": false
        },
        {
          "type": "object",
          "required": ["date"],
          "properties": {"date": {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"}},
          "additionalProperties": false
        }
      ]
    }
  }`

const refSchema = `{
  "type": "object",
  "required": ["event-id", "calendar-id"],
  "properties": {
    "event-id": {"type": "string", "minLength": 1},
    "calendar-id": {"type": "string", "minLength": 1}
  },
  "additionalProperties": false
}`

// metadataSchemas holds the JSON Schema of each kind's metadata.
var metadataSchemas = map[Kind]string{
	KindShowEvent:   refSchema,
	KindDeleteEvent: refSchema,
	KindShowSchedule: `{
  "type": "object",
  "required": ["start-date", "end-date"],
  "properties": {
    "start-date": {"type": "string", "minLength": 1},
    "end-date": {"type": "string", "minLength": 1}
  },
  "additionalProperties": false
}`,
	KindCreateEvent: `{
  "type": "object",
  "required": ["summary", "calendar-id", "start", "end"],
  "properties": {
    "summary": {"type": "string", "minLength": 1},
    "calendar-id": {"type": "string", "minLength": 1},
    "start": {"$ref": "#/$defs/when"},
    "end": {"$ref": "#/$defs/when"},
    "description": {"type": "string"},
    "location": {"type": "string"}
  },
  "additionalProperties": false,
  ` + whenDefs + `
}`,
	KindUpdateEvent: `{
  "type": "object",
  "required": ["event-id", "calendar-id"],
  "minProperties": 3,
  "properties": {
    "event-id": {"type": "string", "minLength": 1},
    "calendar-id": {"type": "string", "minLength": 1},
    "summary": {"type": "string", "minLength": 1},
    "start": {"$ref": "#/$defs/when"},
    "end": {"$ref": "#/$defs/when"},
    "description": {"type": "string"},
    "location": {"type": "string"}
  },
  "additionalProperties": false,
  ` + whenDefs + `
}`,
	KindNoAction: `{
  "type": "object",
  "required": ["reason"],
  "properties": {"reason": {"type": "string", "minLength": 1}},
  "additionalProperties": false
}`,
}

var (
	compileOnce sync.Once
	compiled    map[Kind]*jsonschema.Schema
	compileErr  error
)

func compileSchemas() (map[Kind]*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		out := make(map[Kind]*jsonschema.Schema, len(metadataSchemas))
		for kind, schema := range metadataSchemas {
			c := jsonschema.NewCompiler()
			c.Draft = jsonschema.Draft2020
			url := fmt.Sprintf("https://noon.schemas.local/action/%s.schema.json", kind)
			if err := c.AddResource(url, strings.NewReader(schema)); err != nil {
				compileErr = fmt.Errorf("failed to load %s schema: %w", kind, err)
				return
			}
			s, err := c.Compile(url)
			if err != nil {
				compileErr = fmt.Errorf("failed to compile %s schema: %w", kind, err)
				return
			}
			out[kind] = s
		}
		compiled = out
	})
	return compiled, compileErr
}

// MetadataSchema returns the raw JSON Schema for a kind's metadata.
func MetadataSchema(k Kind) (string, bool) {
	s, ok := metadataSchemas[k]
	return s, ok
}

// Validate checks a record against its kind's metadata schema and the
// semantic rules the schema cannot express (start < end, consistent timing).
func Validate(r Record) error {
	if !r.Request.Valid() {
		return fmt.Errorf("invalid record: unknown kind %q", r.Request)
	}
	schemas, err := compileSchemas()
	if err != nil {
		return err
	}

	// The validator expects values shaped like decoded JSON.
	raw, err := json.Marshal(r.Metadata)
	if err != nil {
		return fmt.Errorf("invalid record: failed to encode metadata: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("invalid record: failed to decode metadata: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	if err := schemas[r.Request].Validate(doc); err != nil {
		return fmt.Errorf("invalid %s record: %w", r.Request, err)
	}

	switch r.Request {
	case KindShowSchedule:
		_, err = r.Window()
	case KindCreateEvent:
		_, err = r.Draft(nil)
	case KindUpdateEvent:
		_, err = r.Patch(nil)
	}
	if err != nil {
		return fmt.Errorf("invalid %s record: %w", r.Request, err)
	}
	return nil
}
