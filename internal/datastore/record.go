package datastore

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind is the canonical column kind of a datastore cell.
type Kind string

const (
	KindString    Kind = "STRING"
	KindInt       Kind = "INT"
	KindFloat     Kind = "FLOAT"
	KindBool      Kind = "BOOL"
	KindBytes     Kind = "BYTES"
	KindList      Kind = "LIST"
	KindMap       Kind = "MAP"
	KindObjectRef Kind = "OBJECT_REF"
	KindUnknown   Kind = "UNKNOWN"
)

// ParseKind normalizes a wire type name. Fixed-width platform aliases
// (INT8..INT64, FLOAT16..FLOAT64) report their bit width, which selects the
// hex encoding of string payloads; canonical kinds report width 0.
func ParseKind(wireType string) (Kind, int) {
	switch wireType {
	case "STRING":
		return KindString, 0
	case "INT":
		return KindInt, 0
	case "INT8":
		return KindInt, 8
	case "INT16":
		return KindInt, 16
	case "INT32":
		return KindInt, 32
	case "INT64":
		return KindInt, 64
	case "FLOAT":
		return KindFloat, 0
	case "FLOAT16":
		return KindFloat, 16
	case "FLOAT32":
		return KindFloat, 32
	case "FLOAT64":
		return KindFloat, 64
	case "BOOL":
		return KindBool, 0
	case "BYTES":
		return KindBytes, 0
	case "LIST", "TUPLE":
		return KindList, 0
	case "MAP":
		return KindMap, 0
	case "OBJECT_REF", "OBJECT":
		return KindObjectRef, 0
	default:
		return KindUnknown, 0
	}
}

// Cell is one column-tagged value as it arrives from the datastore.
type Cell struct {
	Type       string          `json:"type"`
	Value      json.RawMessage `json:"value,omitempty"`
	PythonType string          `json:"pythonType,omitempty"`
}

// Record is one row of column-tagged data. Column order follows insertion
// (or document) order; names are unique.
type Record struct {
	columns []string
	cells   map[string]Cell
}

// NewRecord builds a record from parallel column and cell slices.
func NewRecord(columns []string, cells []Cell) Record {
	var r Record
	for i, name := range columns {
		if i < len(cells) {
			r.Set(name, cells[i])
		}
	}
	return r
}

// Set adds or replaces a column. Replacing keeps the original position.
func (r *Record) Set(name string, c Cell) {
	if r.cells == nil {
		r.cells = make(map[string]Cell)
	}
	if _, exists := r.cells[name]; !exists {
		r.columns = append(r.columns, name)
	}
	r.cells[name] = c
}

// Cell returns the raw cell for a column.
func (r Record) Cell(name string) (Cell, bool) {
	c, ok := r.cells[name]
	return c, ok
}

// Columns returns the column names in insertion order.
func (r Record) Columns() []string {
	out := make([]string, len(r.columns))
	copy(out, r.columns)
	return out
}

// Len returns the number of columns.
func (r Record) Len() int { return len(r.columns) }

// UnmarshalJSON reads a JSON object of cells, keeping the key order.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("datastore: record must be a JSON object")
	}
	*r = Record{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("datastore: unexpected record key %v", keyTok)
		}
		var c Cell
		if err := dec.Decode(&c); err != nil {
			return fmt.Errorf("datastore: column %q: %w", name, err)
		}
		r.Set(name, c)
	}
	_, err = dec.Token()
	return err
}

// MarshalJSON writes the record as a JSON object in column order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range r.columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.cells[name])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ParseRecords reads either a JSON array of records or a scan response of
// the form {"records": [...]}.
func ParseRecords(data []byte) ([]Record, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var recs []Record
		if err := json.Unmarshal(trimmed, &recs); err != nil {
			return nil, fmt.Errorf("datastore: parse records: %w", err)
		}
		return recs, nil
	}
	var resp struct {
		Records []Record `json:"records"`
	}
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		return nil, fmt.Errorf("datastore: parse scan response: %w", err)
	}
	return resp.Records, nil
}
