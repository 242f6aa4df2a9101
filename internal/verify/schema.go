package verify

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/opensaves/savesbench/internal/client"
)

// Response contracts per templated endpoint name. These pin the field
// names and envelope shapes the drivers depend on, so a server that
// renames a field fails loudly instead of silently defeating the
// verification checks.
const (
	storeSchema = `{
		"type": "object",
		"required": ["store_id"],
		"properties": {
			"store_id": {"type": "string", "minLength": 1},
			"name": {"type": "string"},
			"owner_id": {"type": "string"}
		}
	}`

	recordSchema = `{
		"type": "object",
		"required": ["record_id"],
		"properties": {
			"record_id": {"type": "string", "minLength": 1},
			"owner_id": {"type": "string"},
			"game_id": {"type": "string"},
			"tags": {"type": "array", "items": {"type": "string"}},
			"blob_keys": {"type": "array", "items": {"type": "string"}},
			"properties": {
				"type": "object",
				"additionalProperties": {
					"type": "object",
					"required": ["type"],
					"properties": {
						"type": {"enum": ["STRING", "INTEGER"]},
						"string_value": {"type": "string"},
						"integer_value": {"type": "integer"}
					}
				}
			}
		}
	}`

	storeListSchema = `{
		"type": "object",
		"required": ["stores"],
		"properties": {"stores": {"type": "array"}}
	}`

	recordListSchema = `{
		"type": "object",
		"required": ["records"],
		"properties": {"records": {"type": "array"}}
	}`

	blobListSchema = `{
		"type": "object",
		"required": ["blob_keys"],
		"properties": {"blob_keys": {"type": "array"}}
	}`
)

// SchemaValidator validates a random sample of response bodies against
// the endpoint contracts. Rate 0 disables sampling entirely.
type SchemaValidator struct {
	schemas map[string]*gojsonschema.Schema
	rate    float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSchemaValidator compiles the embedded schemas. rate is the
// fraction of responses checked, in [0,1].
func NewSchemaValidator(rate float64, seed int64) (*SchemaValidator, error) {
	sources := map[string]string{
		client.NameCreateStore:  storeSchema,
		client.NameGetStore:     storeSchema,
		client.NameCreateRecord: recordSchema,
		client.NameGetRecord:    recordSchema,
		client.NameUpdateRecord: recordSchema,
		client.NamePatchRecord:  recordSchema,
		client.NameListStores:   storeListSchema,
		client.NameListRecords:  recordListSchema,
		client.NameQueryByOwner: recordListSchema,
		client.NameQueryByGame:  recordListSchema,
		client.NameListBlobs:    blobListSchema,
	}

	v := &SchemaValidator{
		schemas: make(map[string]*gojsonschema.Schema, len(sources)),
		rate:    rate,
		rng:     rand.New(rand.NewSource(seed)),
	}
	for name, src := range sources {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
		if err != nil {
			return nil, fmt.Errorf("compile schema for %s: %w", name, err)
		}
		v.schemas[name] = schema
	}
	return v, nil
}

// Check validates body against the contract for name, subject to
// sampling. Unknown names and unsampled calls return nil.
func (v *SchemaValidator) Check(name string, body []byte) *Failure {
	if v.rate <= 0 {
		return nil
	}
	schema, ok := v.schemas[name]
	if !ok {
		return nil
	}

	v.mu.Lock()
	skip := v.rate < 1 && v.rng.Float64() >= v.rate
	v.mu.Unlock()
	if skip {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return &Failure{
			Check:   CheckSchema,
			Message: fmt.Sprintf("%s: response is not valid JSON: %v", name, err),
		}
	}
	if result.Valid() {
		return nil
	}

	msg := fmt.Sprintf("%s: response violates contract:", name)
	for _, desc := range result.Errors() {
		msg += "\n" + desc.String()
	}
	return &Failure{Check: CheckSchema, Message: msg}
}
