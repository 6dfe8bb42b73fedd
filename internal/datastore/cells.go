package datastore

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
)

// Cell constructors in the canonical encoding. Used by fixtures, the CLI and
// callers that assemble records in-process.

func StringCell(s string) Cell {
	return Cell{Type: string(KindString), Value: mustRaw(s)}
}

func IntCell(n int64) Cell {
	return Cell{Type: string(KindInt), Value: json.RawMessage(strconv.Quote(strconv.FormatInt(n, 10)))}
}

func FloatCell(f float64) Cell {
	return Cell{Type: string(KindFloat), Value: json.RawMessage(strconv.Quote(strconv.FormatFloat(f, 'g', -1, 64)))}
}

func BoolCell(b bool) Cell {
	return Cell{Type: string(KindBool), Value: mustRaw(b)}
}

func BytesCell(b []byte) Cell {
	return Cell{Type: string(KindBytes), Value: mustRaw(base64.StdEncoding.EncodeToString(b))}
}

func NullCell(kind Kind) Cell {
	return Cell{Type: string(kind), Value: json.RawMessage("null")}
}

func ListCell(elems ...Cell) Cell {
	if elems == nil {
		elems = []Cell{}
	}
	return Cell{Type: string(KindList), Value: mustRaw(elems)}
}

// MapCell builds a MAP cell in entry-list form from parallel key and value cells.
func MapCell(keys, values []Cell) Cell {
	type entry struct {
		Key   Cell `json:"key"`
		Value Cell `json:"value"`
	}
	entries := make([]entry, 0, len(keys))
	for i := range keys {
		if i < len(values) {
			entries = append(entries, entry{Key: keys[i], Value: values[i]})
		}
	}
	return Cell{Type: string(KindMap), Value: mustRaw(entries)}
}

func ObjectCell(class string, attrs map[string]Cell) Cell {
	return Cell{Type: string(KindObjectRef), PythonType: class, Value: mustRaw(attrs)}
}

// mustRaw marshals values that cannot fail to encode (strings, bools, cells).
func mustRaw(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
