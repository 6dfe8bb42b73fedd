package datastore

import (
	"encoding/base64"
	"encoding/json"
	"math/big"
	"strings"
	"unicode"
)

// AbsentValue marks a column that is not present in a record. It is distinct
// from a present nil, which means the column was collected as null.
type AbsentValue struct{}

// Absent is the value DecodedRecord.Get returns for a missing column.
var Absent = AbsentValue{}

// IsAbsent reports whether v is the Absent marker.
func IsAbsent(v any) bool {
	_, ok := v.(AbsentValue)
	return ok
}

// Unknown is the sentinel produced for cells whose type is not understood or
// whose payload does not parse for its declared kind.
type Unknown struct {
	Type   string          `json:"type"`
	Raw    json.RawMessage `json:"raw,omitempty"`
	Reason string          `json:"reason"`
}

// IsUnknown reports whether v is an Unknown sentinel.
func IsUnknown(v any) bool {
	_, ok := v.(Unknown)
	return ok
}

// Blob is an opaque handle to a BYTES payload. The payload stays base64
// encoded until Bytes is called.
type Blob struct {
	encoded string
}

// NewBlob wraps an already base64-encoded payload. Line breaks and other
// whitespace, as found in MIME-wrapped base64, are dropped.
func NewBlob(encoded string) Blob {
	if strings.IndexFunc(encoded, unicode.IsSpace) >= 0 {
		encoded = strings.Map(func(r rune) rune {
			if unicode.IsSpace(r) {
				return -1
			}
			return r
		}, encoded)
	}
	return Blob{encoded: encoded}
}

// Len returns the decoded payload size without decoding it.
func (b Blob) Len() int {
	s := strings.TrimRight(b.encoded, "=")
	return len(s) * 6 / 8
}

// Bytes decodes and returns the payload.
func (b Blob) Bytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(b.encoded)
}

// Encoded returns the payload in its wire form without whitespace.
func (b Blob) Encoded() string { return b.encoded }

// ObjectRef is a decoded OBJECT_REF cell: either a reference by URI or a
// structured object with decoded attributes.
type ObjectRef struct {
	Class      string         `json:"class,omitempty"`
	URI        string         `json:"uri,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// DecodedRecord maps column names to native values.
type DecodedRecord struct {
	columns []string
	values  map[string]any
}

// Get returns the value of a column or Absent if the column is missing.
func (r DecodedRecord) Get(name string) any {
	v, ok := r.values[name]
	if !ok {
		return Absent
	}
	return v
}

// Lookup returns the value of a column and whether it is present.
func (r DecodedRecord) Lookup(name string) (any, bool) {
	v, ok := r.values[name]
	return v, ok
}

// Columns returns the column names in record order.
func (r DecodedRecord) Columns() []string {
	out := make([]string, len(r.columns))
	copy(out, r.columns)
	return out
}

// Len returns the number of columns.
func (r DecodedRecord) Len() int { return len(r.columns) }

// Plain returns a JSON-safe map for expression engines and API payloads:
// int64 becomes int, big integers become decimal strings, blobs become
// {"size": n}, object refs become maps and sentinels become nil.
func (r DecodedRecord) Plain() map[string]any {
	out := make(map[string]any, len(r.columns))
	for _, name := range r.columns {
		out[name] = PlainValue(r.values[name])
	}
	return out
}

// MarshalJSON writes the plain form of the record.
func (r DecodedRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Plain())
}

// PlainValue converts one decoded value to its JSON-safe form.
func PlainValue(v any) any {
	switch val := v.(type) {
	case int64:
		return int(val)
	case *big.Int:
		return val.String()
	case Blob:
		return map[string]any{"size": val.Len()}
	case ObjectRef:
		m := map[string]any{}
		if val.Class != "" {
			m["class"] = val.Class
		}
		if val.URI != "" {
			m["uri"] = val.URI
		}
		if val.Attributes != nil {
			m["attributes"] = PlainValue(val.Attributes)
		}
		return m
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = PlainValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = PlainValue(e)
		}
		return out
	case Unknown, AbsentValue:
		return nil
	default:
		return v
	}
}
