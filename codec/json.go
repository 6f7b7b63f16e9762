package codec

import (
	"encoding/json"
)

// JSON is the standard-library JSON codec.
//
// Model payloads are numeric slices and small metadata structs, which JSON
// round-trips portably. Use it when snapshots must stay readable by other
// tooling.
type JSON struct{}

// Marshal encodes the value to JSON.
func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal decodes the JSON data into v.
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Name returns the unique name of the codec ("json").
func (JSON) Name() string { return "json" }
