package writer

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"

	"github.com/wudi/pdfcombine/ir/raw"
)

func (w *impl) SerializeObject(ref raw.ObjectRef, obj raw.Object) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%d %d obj\n", ref.Num, ref.Gen)
	appendObject(&buf, obj)
	buf.WriteString("\nendobj\n")
	return buf.Bytes(), nil
}

// appendObject writes the PDF syntax for o. Dictionary keys are sorted so the
// output is reproducible; a stream's Length is taken from its payload.
func appendObject(b *bytes.Buffer, o raw.Object) {
	switch v := o.(type) {
	case nil:
		b.WriteString("null")
	case raw.NameObj:
		b.WriteString(nameLiteral(v.Val))
	case raw.NumberObj:
		b.WriteString(formatNumber(v))
	case raw.BoolObj:
		b.WriteString(strconv.FormatBool(v.V))
	case raw.NullObj:
		b.WriteString("null")
	case raw.StringObj:
		if v.Hex {
			b.WriteByte('<')
			dst := make([]byte, hex.EncodedLen(len(v.Bytes)))
			hex.Encode(dst, v.Bytes)
			b.Write(bytes.ToUpper(dst))
			b.WriteByte('>')
			return
		}
		b.Write(escapeLiteralString(v.Bytes))
	case raw.RefObj:
		fmt.Fprintf(b, "%d %d R", v.R.Num, v.R.Gen)
	case *raw.ArrayObj:
		b.WriteByte('[')
		for i, it := range v.Items {
			if i > 0 {
				b.WriteByte(' ')
			}
			appendObject(b, it)
		}
		b.WriteByte(']')
	case *raw.DictObj:
		appendDict(b, v, nil)
	case *raw.StreamObj:
		length := raw.NumberInt(int64(len(v.Data)))
		appendDict(b, v.Dict, &length)
		b.WriteString("\nstream\n")
		b.Write(v.Data)
		b.WriteString("\nendstream")
	default:
		b.WriteString("null")
	}
}

// appendDict writes d; a non-nil length replaces any Length entry.
func appendDict(b *bytes.Buffer, d *raw.DictObj, length *raw.NumberObj) {
	b.WriteString("<<")
	if d == nil {
		d = raw.Dict()
	}
	keys := d.SortedKeys()
	wroteLength := false
	for _, k := range keys {
		val := d.KV[k]
		if k == "Length" && length != nil {
			val, wroteLength = *length, true
		}
		b.WriteString(nameLiteral(k))
		b.WriteByte(' ')
		appendObject(b, val)
	}
	if length != nil && !wroteLength {
		b.WriteString("/Length ")
		appendObject(b, *length)
	}
	b.WriteString(">>")
}

func formatNumber(n raw.NumberObj) string {
	if n.IsInt {
		return strconv.FormatInt(n.I, 10)
	}
	f := n.F
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "0"
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatFloat(f, 'f', 1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// nameLiteral escapes bytes that may not appear in a name as #xx.
func nameLiteral(v string) string {
	var b bytes.Buffer
	b.WriteByte('/')
	for i := 0; i < len(v); i++ {
		ch := v[i]
		if ch < 0x21 || ch > 0x7E || ch == '#' || isDelimiter(ch) {
			fmt.Fprintf(&b, "#%02X", ch)
			continue
		}
		b.WriteByte(ch)
	}
	return b.String()
}

func isDelimiter(ch byte) bool {
	switch ch {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func escapeLiteralString(rawBytes []byte) []byte {
	var b bytes.Buffer
	b.WriteByte('(')
	for _, ch := range rawBytes {
		switch ch {
		case '\\', '(', ')':
			b.WriteByte('\\')
			b.WriteByte(ch)
		case '\n':
			b.WriteString("\\n")
		case '\r':
			b.WriteString("\\r")
		case '\t':
			b.WriteString("\\t")
		case '\b':
			b.WriteString("\\b")
		case '\f':
			b.WriteString("\\f")
		default:
			if ch < 0x20 || ch >= 0x80 {
				fmt.Fprintf(&b, "\\%03o", ch)
			} else {
				b.WriteByte(ch)
			}
		}
	}
	b.WriteByte(')')
	return b.Bytes()
}
