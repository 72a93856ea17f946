package writer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfcombine/ir/raw"
)

func serialize(t *testing.T, o raw.Object) string {
	t.Helper()
	w := (&WriterBuilder{}).Build()
	out, err := w.SerializeObject(raw.ObjectRef{Num: 7}, o)
	require.NoError(t, err)
	s := string(out)
	require.Equal(t, "7 0 obj\n", s[:8])
	require.Equal(t, "\nendobj\n", s[len(s)-8:])
	return s[8 : len(s)-8]
}

func TestSerializePrimitives(t *testing.T) {
	tests := []struct {
		name string
		in   raw.Object
		want string
	}{
		{"int", raw.NumberInt(-12), "-12"},
		{"real", raw.NumberFloat(0.25), "0.25"},
		{"integral real", raw.NumberFloat(612), "612.0"},
		{"bool", raw.Bool(true), "true"},
		{"null", raw.NullObj{}, "null"},
		{"nil", nil, "null"},
		{"name", raw.NameLiteral("Type"), "/Type"},
		{"name escapes", raw.NameLiteral("A B#(1)"), "/A#20B#23#281#29"},
		{"literal", raw.Str([]byte("a(b)\\c\n")), `(a\(b\)\\c\n)`},
		{"binary literal", raw.Str([]byte{0xFE, 0xFF}), `(\376\377)`},
		{"hex", raw.HexStr([]byte{0xAB, 0x01}), "<AB01>"},
		{"ref", raw.Ref(3, 0), "3 0 R"},
		{"array", raw.NewArray(raw.NumberInt(1), raw.NameLiteral("X"), raw.NewArray()), "[1 /X []]"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, serialize(t, tc.in))
		})
	}
}

func TestSerializeDictSortedKeys(t *testing.T) {
	d := raw.Dict()
	d.Set(raw.NameLiteral("Type"), raw.NameLiteral("Page"))
	d.Set(raw.NameLiteral("Annots"), raw.NewArray())
	d.Set(raw.NameLiteral("MediaBox"), raw.NewArray(raw.NumberInt(0)))
	assert.Equal(t, "<</Annots []/MediaBox [0]/Type /Page>>", serialize(t, d))
}

func TestSerializeStreamLengthFromPayload(t *testing.T) {
	d := raw.Dict()
	d.Set(raw.NameLiteral("Length"), raw.Ref(9, 0))
	d.Set(raw.NameLiteral("Filter"), raw.NameLiteral("FlateDecode"))
	got := serialize(t, raw.NewStream(d, []byte("abc")))
	assert.Equal(t, "<</Filter /FlateDecode/Length 3>>\nstream\nabc\nendstream", got)

	got = serialize(t, raw.NewStream(raw.Dict(), []byte("xy")))
	assert.Equal(t, "<</Length 2>>\nstream\nxy\nendstream", got)
}
