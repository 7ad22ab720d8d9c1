package detectionhistory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/qri-io/jsonschema"
	"github.com/tidwall/gjson"
)

// Schemas for the element types held in a detection store. Decoded
// records carry arbitrary additional fields, so the detection schema
// constrains only the fields every DetectionHistory file provides.
var schemas = map[string]string{ // nolint:gochecknoglobals
	"detection": `{
		"$schema": "https://json-schema.org/draft/2019-09/schema#",
		"$id": "detectionhistory:detection",
		"title": "detection",
		"type": "object",
		"required": ["id", "type", "name", "GUID"],
		"properties": {
			"id": {"type": "string", "pattern": "^detection--"},
			"type": {"const": "detection"},
			"name": {"type": "string"},
			"source_path": {"type": "string"},
			"original_path": {"type": "string"},
			"size": {"type": "integer"},
			"hashes": {"type": "object"},
			"GUID": {
				"type": "string",
				"pattern": "^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$"
			},
			"ThreatName": {"type": "string"},
			"ThreatStatusID": {"type": "integer"},
			"ThreatTrackingThreatId": {"type": "integer"},
			"ThreatTrackingSize": {"type": "integer"},
			"ThreatTrackingSigSeq": {"type": "string", "pattern": "^0x[0-9a-f]+$"},
			"User": {"type": "string"},
			"SpawningProcessName": {"type": "string"},
			"SecurityGroup": {"type": "string"}
		}
	}`,
	"run": `{
		"$schema": "https://json-schema.org/draft/2019-09/schema#",
		"$id": "detectionhistory:run",
		"title": "run",
		"type": "object",
		"required": ["id", "type", "tool"],
		"properties": {
			"id": {"type": "string", "pattern": "^run--"},
			"type": {"const": "run"},
			"tool": {"type": "string"},
			"version": {"type": "string"},
			"input": {"type": "string"},
			"output": {"type": "string"},
			"parsed": {"type": "integer"},
			"failed": {"type": "integer"},
			"total": {"type": "integer"},
			"elapsed": {"type": "string"},
			"errors": {"type": "array"}
		}
	}`,
}

func setupSchemaValidation() {
	registry := jsonschema.GetSchemaRegistry()
	for _, content := range schemas {
		schema := &jsonschema.Schema{}
		if err := json.Unmarshal([]byte(content), schema); err != nil {
			panic(err)
		}

		id := string(*schema.JSONProp("$id").(*jsonschema.ID))
		schema.Resolve(nil, id)
		registry.Register(schema)
	}
}

func validateSchema(element JSONRecord) (flaws []string, err error) {
	elementType := gjson.GetBytes(element, discriminator)
	if !elementType.Exists() {
		flaws = append(flaws, "element needs to have a type")
	}

	schema := jsonschema.GetSchemaRegistry().GetKnown("detectionhistory:" + elementType.String())
	if schema == nil {
		return nil, nil
	}

	errs, err := schema.ValidateBytes(context.Background(), element)
	if err != nil {
		return nil, err
	}
	for _, verr := range errs {
		flaws = append(flaws, fmt.Sprintf("failed to validate element: %s", verr))
	}
	return flaws, nil
}
