package datastore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// Decode converts a record into native values. It never fails: cells that
// cannot be interpreted become Unknown sentinels.
func Decode(rec Record) DecodedRecord {
	out := DecodedRecord{
		columns: rec.Columns(),
		values:  make(map[string]any, rec.Len()),
	}
	for _, name := range out.columns {
		out.values[name] = DecodeCell(rec.cells[name])
	}
	return out
}

// DecodeAll decodes every record in order.
func DecodeAll(recs []Record) []DecodedRecord {
	out := make([]DecodedRecord, len(recs))
	for i, r := range recs {
		out[i] = Decode(r)
	}
	return out
}

// DecodeCell applies the decoding rule of the cell's kind.
func DecodeCell(c Cell) any {
	raw := bytes.TrimSpace(c.Value)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	kind, width := ParseKind(strings.ToUpper(c.Type))
	switch kind {
	case KindString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return unknown(c, raw, "expected a JSON string")
		}
		return s
	case KindInt:
		return decodeInt(c, raw, width)
	case KindFloat:
		return decodeFloat(c, raw, width)
	case KindBool:
		return decodeBool(c, raw)
	case KindBytes:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return unknown(c, raw, "expected a base64 string")
		}
		return NewBlob(s)
	case KindList:
		var cells []Cell
		if err := json.Unmarshal(raw, &cells); err != nil {
			return unknown(c, raw, "expected an array of cells")
		}
		list := make([]any, len(cells))
		for i, e := range cells {
			list[i] = DecodeCell(e)
		}
		return list
	case KindMap:
		return decodeMap(c, raw)
	case KindObjectRef:
		return decodeObject(c, raw)
	default:
		return unknown(c, raw, "unrecognized column type")
	}
}

func unknown(c Cell, raw []byte, reason string) Unknown {
	cp := make(json.RawMessage, len(raw))
	copy(cp, raw)
	return Unknown{Type: c.Type, Raw: cp, Reason: reason}
}

// decodeInt reads decimal strings and JSON numbers exactly. Fixed-width
// aliases carry hex two's-complement strings.
func decodeInt(c Cell, raw []byte, width int) any {
	if raw[0] != '"' {
		return parseDecimalInt(c, raw, string(raw))
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return unknown(c, raw, "malformed string payload")
	}
	if width == 0 {
		return parseDecimalInt(c, raw, s)
	}

	v, ok := new(big.Int).SetString(s, 16)
	if !ok || v.Sign() < 0 {
		return unknown(c, raw, "expected a hex integer")
	}
	if v.BitLen() > width {
		return unknown(c, raw, fmt.Sprintf("value exceeds %d bits", width))
	}
	if v.Bit(width-1) == 1 {
		v.Sub(v, new(big.Int).Lsh(big.NewInt(1), uint(width)))
	}
	return v.Int64()
}

func parseDecimalInt(c Cell, raw []byte, s string) any {
	n, err := strconv.ParseInt(s, 10, 64)
	if err == nil {
		return n
	}
	if b, ok := new(big.Int).SetString(s, 10); ok {
		return b
	}
	return unknown(c, raw, "expected an integer")
}

// decodeFloat reads decimal strings and JSON numbers. Fixed-width aliases
// carry hex IEEE-754 bit patterns.
func decodeFloat(c Cell, raw []byte, width int) any {
	if raw[0] != '"' {
		f, err := strconv.ParseFloat(string(raw), 64)
		if err != nil {
			return unknown(c, raw, "expected a number")
		}
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return unknown(c, raw, "malformed string payload")
	}
	if width == 0 {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return unknown(c, raw, "expected a decimal number")
		}
		return f
	}

	bits, err := strconv.ParseUint(s, 16, width)
	if err != nil {
		return unknown(c, raw, "expected hex float bits")
	}
	switch width {
	case 16:
		return float64(halfToFloat32(uint16(bits)))
	case 32:
		return float64(math.Float32frombits(uint32(bits)))
	default:
		return math.Float64frombits(bits)
	}
}

func halfToFloat32(h uint16) float32 {
	sign := uint32(h>>15) & 1
	exp := uint32(h>>10) & 0x1f
	frac := uint32(h) & 0x3ff

	switch exp {
	case 0:
		// zero or subnormal
		f := float32(frac) / 1024 * float32(math.Ldexp(1, -14))
		if sign == 1 {
			f = -f
		}
		return f
	case 0x1f:
		if frac != 0 {
			return float32(math.NaN())
		}
		return math.Float32frombits(sign<<31 | 0xff<<23)
	}
	return math.Float32frombits(sign<<31 | (exp+112)<<23 | frac<<13)
}

func decodeBool(c Cell, raw []byte) any {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return unknown(c, raw, "malformed bool payload")
	}
	switch b := v.(type) {
	case bool:
		return b
	case float64:
		if b == 0 || b == 1 {
			return b == 1
		}
	case string:
		switch strings.ToLower(b) {
		case "1", "true":
			return true
		case "0", "false":
			return false
		}
	}
	return unknown(c, raw, "expected a bool")
}

// decodeMap accepts the entry-list form [{key, value}] and the object form.
//
// Entry keys are rendered as text: STRING keys verbatim, INT and FLOAT keys
// in decimal, BOOL keys as true or false, null keys as "null" and Unknown
// keys as their raw payload. A repeated key of the same kind keeps its first
// value. When keys of different kinds render to the same text, as INT 1 and
// STRING "1" do, the later one is stored as "KIND:text" (for example
// "STRING:1") so that neither entry is lost.
func decodeMap(c Cell, raw []byte) any {
	out := make(map[string]any)
	if raw[0] == '{' {
		var cells map[string]Cell
		if err := json.Unmarshal(raw, &cells); err != nil {
			return unknown(c, raw, "expected an object of cells")
		}
		for k, v := range cells {
			out[k] = DecodeCell(v)
		}
		return out
	}

	var entries []struct {
		Key   Cell `json:"key"`
		Value Cell `json:"value"`
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return unknown(c, raw, "expected a list of map entries")
	}
	owner := make(map[string]string, len(entries))
	for _, e := range entries {
		kind := keyKind(e.Key)
		k := mapKey(DecodeCell(e.Key))
		if prev, taken := owner[k]; taken {
			if prev == kind {
				continue
			}
			k = kind + ":" + k
			if _, taken := owner[k]; taken {
				continue
			}
		}
		owner[k] = kind
		out[k] = DecodeCell(e.Value)
	}
	return out
}

func keyKind(c Cell) string {
	kind, _ := ParseKind(strings.ToUpper(c.Type))
	if kind == KindUnknown && c.Type != "" {
		return strings.ToUpper(c.Type)
	}
	return string(kind)
}

func mapKey(v any) string {
	switch k := v.(type) {
	case string:
		return k
	case int64:
		return strconv.FormatInt(k, 10)
	case *big.Int:
		return k.String()
	case float64:
		return strconv.FormatFloat(k, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(k)
	case nil:
		return "null"
	case Unknown:
		if len(k.Raw) > 0 {
			return string(k.Raw)
		}
		return k.Type
	default:
		return fmt.Sprint(PlainValue(k))
	}
}

func decodeObject(c Cell, raw []byte) any {
	if raw[0] == '"' {
		var uri string
		if err := json.Unmarshal(raw, &uri); err != nil {
			return unknown(c, raw, "malformed object reference")
		}
		return ObjectRef{Class: c.PythonType, URI: uri}
	}
	var attrs map[string]Cell
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return unknown(c, raw, "expected an object of attribute cells")
	}
	ref := ObjectRef{Class: c.PythonType, Attributes: make(map[string]any, len(attrs))}
	for k, v := range attrs {
		ref.Attributes[k] = DecodeCell(v)
	}
	return ref
}
