package client

// PropertyType is the wire type tag of a record property.
type PropertyType string

const (
	PropertyString  PropertyType = "STRING"
	PropertyInteger PropertyType = "INTEGER"
)

// Property is one typed record property. Exactly one of StringValue or
// IntegerValue is set, matching Type.
type Property struct {
	Type         PropertyType `json:"type"`
	StringValue  *string      `json:"string_value,omitempty"`
	IntegerValue *int64       `json:"integer_value,omitempty"`
}

// StringProperty builds a STRING property.
func StringProperty(v string) Property {
	return Property{Type: PropertyString, StringValue: &v}
}

// IntegerProperty builds an INTEGER property.
func IntegerProperty(v int64) Property {
	return Property{Type: PropertyInteger, IntegerValue: &v}
}

// Store is the Open Saves store resource.
type Store struct {
	StoreID string `json:"store_id"`
	Name    string `json:"name,omitempty"`
	OwnerID string `json:"owner_id,omitempty"`
}

// Record is the Open Saves record resource.
type Record struct {
	RecordID   string              `json:"record_id"`
	OwnerID    string              `json:"owner_id,omitempty"`
	GameID     string              `json:"game_id,omitempty"`
	Tags       []string            `json:"tags,omitempty"`
	Properties map[string]Property `json:"properties,omitempty"`
	BlobKeys   []string            `json:"blob_keys,omitempty"`
}

// RecordUpdate is the body of a record PUT or PATCH.
type RecordUpdate struct {
	Tags       []string            `json:"tags,omitempty"`
	Properties map[string]Property `json:"properties,omitempty"`
}

// Metadata is the free-form metadata resource keyed independently of
// stores. Property values are server-defined (string, bool, number).
type Metadata struct {
	Version    string         `json:"version,omitempty"`
	CreatedAt  string         `json:"created_at,omitempty"`
	UpdatedAt  string         `json:"updated_at,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

type storeList struct {
	Stores []Store `json:"stores"`
}

type recordList struct {
	Records []Record `json:"records"`
}

type blobList struct {
	BlobKeys []string `json:"blob_keys"`
}
