package outbox

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"example.com/runlog/internal/events"
)

const runSnapshotProperties = `
    "run_id": {"type": "string", "minLength": 1},
    "user_id": {"type": "string", "minLength": 1},
    "type": {"type": "string", "enum": ["Easy Run", "Long Run", "Tempo Run", "Interval", "Fartlek", "Recovery", "Race", "Trail", "Treadmill"]},
    "date": {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"},
    "avg_bpm": {"type": ["integer", "null"], "minimum": 0},
    "max_bpm": {"type": ["integer", "null"], "minimum": 0},
    "duration_seconds": {"type": ["number", "null"], "minimum": 0},
    "distance_km": {"type": ["number", "null"], "minimum": 0},
    "avg_spm": {"type": ["integer", "null"], "minimum": 0},
    "notes": {"type": ["string", "null"]},
    "created_at": {"type": "string", "format": "date-time"},
    "updated_at": {"type": "string", "format": "date-time"},
    "occurred_at": {"type": "string", "format": "date-time"}`

const runSnapshotRequired = `["run_id", "user_id", "type", "date", "created_at", "updated_at", "occurred_at"]`

var runCreatedSchema = `{
  "type": "object",
  "title": "RunCreated",
  "properties": {` + runSnapshotProperties + `
  },
  "required": ` + runSnapshotRequired + `,
  "additionalProperties": false
}`

var runUpdatedSchema = `{
  "type": "object",
  "title": "RunUpdated",
  "properties": {` + runSnapshotProperties + `
  },
  "required": ` + runSnapshotRequired + `,
  "additionalProperties": false
}`

const runDeletedSchema = `{
  "type": "object",
  "title": "RunDeleted",
  "properties": {
    "run_id": {"type": "string", "minLength": 1},
    "user_id": {"type": "string", "minLength": 1},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["run_id", "user_id", "occurred_at"],
  "additionalProperties": false
}`

// SchemaCatalogEntry maps an event type to its registered schema and local validator.
type SchemaCatalogEntry struct {
	Schema    string
	validator *jsonschema.Schema
}

var schemaCatalog = map[string]SchemaCatalogEntry{
	events.TypeRunCreated: mustEntry(events.TypeRunCreated, runCreatedSchema),
	events.TypeRunUpdated: mustEntry(events.TypeRunUpdated, runUpdatedSchema),
	events.TypeRunDeleted: mustEntry(events.TypeRunDeleted, runDeletedSchema),
}

func mustEntry(eventType, schema string) SchemaCatalogEntry {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	schemaURL := fmt.Sprintf("https://runlog.schemas.local/events/%s.schema.json", eventType)
	if err := c.AddResource(schemaURL, strings.NewReader(schema)); err != nil {
		panic(fmt.Sprintf("load %s schema: %v", eventType, err))
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		panic(fmt.Sprintf("compile %s schema: %v", eventType, err))
	}
	return SchemaCatalogEntry{Schema: schema, validator: compiled}
}

// ValidatePayload checks payload against the schema registered for eventType.
func ValidatePayload(eventType string, payload []byte) error {
	entry, ok := schemaCatalog[eventType]
	if !ok {
		return fmt.Errorf("no schema metadata for event_type=%s", eventType)
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("decode %s payload: %w", eventType, err)
	}
	if err := entry.validator.Validate(doc); err != nil {
		return fmt.Errorf("%s payload failed schema validation: %w", eventType, err)
	}
	return nil
}
