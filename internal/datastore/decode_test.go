package datastore

import (
	"encoding/base64"
	"encoding/json"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cell(typ, raw string) Cell {
	return Cell{Type: typ, Value: json.RawMessage(raw)}
}

func decodeOne(c Cell) any {
	var r Record
	r.Set("v", c)
	return Decode(r).Get("v")
}

// --- Scalars ---

func TestDecode_String(t *testing.T) {
	assert.Equal(t, "cat", decodeOne(StringCell("cat")))
	assert.Equal(t, "", decodeOne(StringCell("")))
}

func TestDecode_IntDecimal(t *testing.T) {
	assert.Equal(t, int64(42), decodeOne(IntCell(42)))
	assert.Equal(t, int64(-7), decodeOne(cell("INT", `-7`)))
	assert.Equal(t, int64(9007199254740993), decodeOne(cell("INT", `"9007199254740993"`)),
		"integers beyond float64 precision must stay exact")
}

func TestDecode_IntBeyondInt64(t *testing.T) {
	v := decodeOne(cell("INT", `"123456789012345678901234567890"`))
	b, ok := v.(*big.Int)
	require.True(t, ok, "got %T", v)
	assert.Equal(t, "123456789012345678901234567890", b.String())
}

func TestDecode_IntFixedWidthHex(t *testing.T) {
	tests := []struct {
		typ  string
		raw  string
		want int64
	}{
		{"INT8", `"7f"`, 127},
		{"INT8", `"80"`, -128},
		{"INT16", `"ffff"`, -1},
		{"INT32", `"0000000a"`, 10},
		{"INT64", `"0000000000000003"`, 3},
		{"INT64", `"ffffffffffffffff"`, -1},
		{"INT64", `12`, 12},
	}
	for _, tc := range tests {
		t.Run(tc.typ+tc.raw, func(t *testing.T) {
			assert.Equal(t, tc.want, decodeOne(cell(tc.typ, tc.raw)))
		})
	}
}

func TestDecode_IntMalformed(t *testing.T) {
	for _, c := range []Cell{
		cell("INT", `"abc"`),
		cell("INT", `3.5`),
		cell("INT8", `"1ff"`),
		cell("INT32", `"-1"`),
		cell("INT", `true`),
	} {
		v := decodeOne(c)
		u, ok := v.(Unknown)
		require.True(t, ok, "cell %s %s decoded to %T", c.Type, c.Value, v)
		assert.Equal(t, c.Type, u.Type)
		assert.NotEmpty(t, u.Reason)
	}
}

func TestDecode_Float(t *testing.T) {
	assert.Equal(t, 0.1, decodeOne(FloatCell(0.1)))
	assert.Equal(t, 2.5, decodeOne(cell("FLOAT", `2.5`)))
	assert.Equal(t, 1.0, decodeOne(cell("FLOAT64", `"3ff0000000000000"`)))
	assert.Equal(t, 1.0, decodeOne(cell("FLOAT32", `"3f800000"`)))
	assert.Equal(t, 1.0, decodeOne(cell("FLOAT16", `"3c00"`)))
	assert.Equal(t, -2.0, decodeOne(cell("FLOAT16", `"c000"`)))
	assert.True(t, IsUnknown(decodeOne(cell("FLOAT", `"one"`))))
	assert.True(t, IsUnknown(decodeOne(cell("FLOAT32", `"zz"`))))
}

func TestDecode_Bool(t *testing.T) {
	assert.Equal(t, true, decodeOne(BoolCell(true)))
	assert.Equal(t, false, decodeOne(cell("BOOL", `"0"`)))
	assert.Equal(t, true, decodeOne(cell("BOOL", `"1"`)))
	assert.Equal(t, true, decodeOne(cell("BOOL", `"TRUE"`)))
	assert.Equal(t, false, decodeOne(cell("BOOL", `0`)))
	assert.True(t, IsUnknown(decodeOne(cell("BOOL", `"yes"`))))
	assert.True(t, IsUnknown(decodeOne(cell("BOOL", `2`))))
}

func TestDecode_BytesIsLazyHandle(t *testing.T) {
	v := decodeOne(BytesCell([]byte("hello")))
	b, ok := v.(Blob)
	require.True(t, ok)
	assert.Equal(t, 5, b.Len())
	assert.Equal(t, "aGVsbG8=", b.Encoded())

	payload, err := b.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), payload)
}

func TestDecode_BytesWrappedBase64(t *testing.T) {
	payload := []byte(strings.Repeat("starwhale-", 10))
	wire := base64.StdEncoding.EncodeToString(payload)
	wrapped := wire[:40] + "\r\n" + wire[40:80] + "\n  " + wire[80:] + "\t"

	raw, err := json.Marshal(wrapped)
	require.NoError(t, err)
	b, ok := decodeOne(cell("BYTES", string(raw))).(Blob)
	require.True(t, ok)
	assert.Equal(t, len(payload), b.Len())
	assert.Equal(t, wire, b.Encoded())

	got, err := b.Bytes()
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestDecode_BytesMalformedPayloadSurfacesOnRead(t *testing.T) {
	v := decodeOne(cell("BYTES", `"not base64!"`))
	b, ok := v.(Blob)
	require.True(t, ok)
	_, err := b.Bytes()
	assert.Error(t, err)
}

// --- Nested ---

func TestDecode_ListOfInts(t *testing.T) {
	v := decodeOne(ListCell(IntCell(3), IntCell(4)))
	assert.Equal(t, []any{int64(3), int64(4)}, v)
}

func TestDecode_TupleAlias(t *testing.T) {
	c := ListCell(StringCell("a"), BoolCell(true))
	c.Type = "TUPLE"
	assert.Equal(t, []any{"a", true}, decodeOne(c))
}

func TestDecode_ListWithBadElement(t *testing.T) {
	v := decodeOne(ListCell(IntCell(1), cell("INT", `"x"`), NullCell(KindInt)))
	list, ok := v.([]any)
	require.True(t, ok)
	require.Len(t, list, 3)
	assert.Equal(t, int64(1), list[0])
	assert.True(t, IsUnknown(list[1]))
	assert.Nil(t, list[2])
}

func TestDecode_MapEntriesFirstKeyWins(t *testing.T) {
	c := MapCell(
		[]Cell{StringCell("a"), IntCell(2), StringCell("a")},
		[]Cell{IntCell(1), StringCell("two"), IntCell(99)},
	)
	v := decodeOne(c)
	assert.Equal(t, map[string]any{"a": int64(1), "2": "two"}, v)
}

func TestDecode_MapKeysOfDifferentKindsDoNotCollapse(t *testing.T) {
	c := MapCell(
		[]Cell{IntCell(1), StringCell("1"), IntCell(1), StringCell("null"), NullCell(KindInt), BoolCell(true)},
		[]Cell{StringCell("int"), StringCell("string"), StringCell("int again"), IntCell(0), IntCell(1), IntCell(2)},
	)
	v := decodeOne(c)
	assert.Equal(t, map[string]any{
		"1":        "int",
		"STRING:1": "string",
		"null":     int64(0),
		"INT:null": int64(1),
		"true":     int64(2),
	}, v)
}

func TestDecode_MapUnknownKeysStayDistinct(t *testing.T) {
	c := MapCell(
		[]Cell{cell("DECIMAL", `"1.5"`), cell("DECIMAL", `"2.5"`), cell("DECIMAL", `"1.5"`)},
		[]Cell{IntCell(1), IntCell(2), IntCell(3)},
	)
	v := decodeOne(c)
	assert.Equal(t, map[string]any{`"1.5"`: int64(1), `"2.5"`: int64(2)}, v)
}

func TestDecode_MapObjectForm(t *testing.T) {
	v := decodeOne(cell("MAP", `{"x": {"type": "FLOAT", "value": 0.5}}`))
	assert.Equal(t, map[string]any{"x": 0.5}, v)
}

func TestDecode_ObjectRef(t *testing.T) {
	c := ObjectCell("starwhale.Image", map[string]Cell{
		"shape": ListCell(IntCell(28), IntCell(28)),
		"uri":   StringCell("s3://bucket/img.png"),
	})
	v := decodeOne(c)
	ref, ok := v.(ObjectRef)
	require.True(t, ok)
	assert.Equal(t, "starwhale.Image", ref.Class)
	assert.Equal(t, []any{int64(28), int64(28)}, ref.Attributes["shape"])
	assert.Equal(t, "s3://bucket/img.png", ref.Attributes["uri"])

	uriRef := decodeOne(Cell{Type: "OBJECT", PythonType: "Link", Value: json.RawMessage(`"https://x/y"`)})
	assert.Equal(t, ObjectRef{Class: "Link", URI: "https://x/y"}, uriRef)
}

// --- Sentinels ---

func TestDecode_UnknownType(t *testing.T) {
	v := decodeOne(cell("TENSOR", `{"shape":[2,2]}`))
	u, ok := v.(Unknown)
	require.True(t, ok)
	assert.Equal(t, "TENSOR", u.Type)
	assert.JSONEq(t, `{"shape":[2,2]}`, string(u.Raw))
}

func TestDecode_PresentNullVersusAbsent(t *testing.T) {
	var r Record
	r.Set("label", NullCell(KindString))
	r.Set("no_value", Cell{Type: "INT"})
	d := Decode(r)

	v, ok := d.Lookup("label")
	assert.True(t, ok)
	assert.Nil(t, v)
	assert.False(t, IsAbsent(d.Get("label")))

	assert.Nil(t, d.Get("no_value"))

	assert.True(t, IsAbsent(d.Get("missing")))
	_, ok = d.Lookup("missing")
	assert.False(t, ok)
}

func TestDecode_IsPure(t *testing.T) {
	rec := NewRecord([]string{"a", "b"}, []Cell{IntCell(1), ListCell(StringCell("x"))})
	first := Decode(rec)
	second := Decode(rec)
	assert.Equal(t, first, second)

	// Mutating a decoded list must not leak into a later decode.
	first.Get("b").([]any)[0] = "mutated"
	assert.Equal(t, []any{"x"}, Decode(rec).Get("b"))
}

// --- Records ---

func TestRecord_JSONKeepsColumnOrder(t *testing.T) {
	raw := `{"zeta": {"type": "INT", "value": "1"}, "alpha": {"type": "STRING", "value": "a"}, "mid": {"type": "BOOL", "value": true}}`
	var r Record
	require.NoError(t, json.Unmarshal([]byte(raw), &r))
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, r.Columns())

	out, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Equal(t, `{"zeta":{"type":"INT","value":"1"},"alpha":{"type":"STRING","value":"a"},"mid":{"type":"BOOL","value":true}}`, string(out))

	assert.Equal(t, []string{"zeta", "alpha", "mid"}, Decode(r).Columns())
}

func TestRecord_SetReplaceKeepsPosition(t *testing.T) {
	var r Record
	r.Set("a", IntCell(1))
	r.Set("b", IntCell(2))
	r.Set("a", IntCell(3))
	assert.Equal(t, []string{"a", "b"}, r.Columns())
	assert.Equal(t, int64(3), Decode(r).Get("a"))
}

func TestRecord_RejectsNonObject(t *testing.T) {
	var r Record
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &r))
}

func TestParseRecords(t *testing.T) {
	list := `[{"id": {"type": "INT64", "value": "0000000000000001"}}, {"id": {"type": "INT64", "value": "0000000000000002"}}]`
	recs, err := ParseRecords([]byte(list))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, int64(2), Decode(recs[1]).Get("id"))

	scan := `{"columnTypes": [], "records": [{"label": {"type": "STRING", "value": "dog"}}]}`
	recs, err = ParseRecords([]byte(scan))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "dog", Decode(recs[0]).Get("label"))

	recs, err = ParseRecords([]byte("  "))
	require.NoError(t, err)
	assert.Empty(t, recs)

	_, err = ParseRecords([]byte(`{"records": 3}`))
	assert.Error(t, err)
}

func TestDecodedRecord_Plain(t *testing.T) {
	rec := NewRecord(
		[]string{"n", "big", "blob", "bad", "obj", "nested"},
		[]Cell{
			IntCell(5),
			cell("INT", `"99999999999999999999"`),
			BytesCell([]byte{1, 2, 3}),
			cell("WHAT", `1`),
			Cell{Type: "OBJECT", PythonType: "Link", Value: json.RawMessage(`"u"`)},
			ListCell(IntCell(1), MapCell([]Cell{StringCell("k")}, []Cell{IntCell(2)})),
		},
	)
	plain := Decode(rec).Plain()
	assert.Equal(t, 5, plain["n"])
	assert.Equal(t, "99999999999999999999", plain["big"])
	assert.Equal(t, map[string]any{"size": 3}, plain["blob"])
	assert.Nil(t, plain["bad"])
	assert.Equal(t, map[string]any{"class": "Link", "uri": "u"}, plain["obj"])
	assert.Equal(t, []any{1, map[string]any{"k": 2}}, plain["nested"])

	out, err := json.Marshal(Decode(rec))
	require.NoError(t, err)
	assert.Contains(t, string(out), `"blob":{"size":3}`)
}

func TestParseKind(t *testing.T) {
	k, w := ParseKind("INT32")
	assert.Equal(t, KindInt, k)
	assert.Equal(t, 32, w)

	k, w = ParseKind("OBJECT")
	assert.Equal(t, KindObjectRef, k)
	assert.Equal(t, 0, w)

	k, _ = ParseKind("VECTOR")
	assert.Equal(t, KindUnknown, k)
}
