package xref

import (
	"context"
	"errors"
	"fmt"

	"github.com/wudi/pdfcombine/filters"
	"github.com/wudi/pdfcombine/ir/raw"
)

// decodeXRefStream unpacks the binary rows of a /Type /XRef stream. The
// stream dictionary doubles as the section's trailer.
func decodeXRefStream(ctx context.Context, pipeline *filters.Pipeline, st *raw.StreamObj) (*table, error) {
	w, err := fieldWidths(st.Dict)
	if err != nil {
		return nil, err
	}
	size, _ := raw.IntOf(st.Dict, "Size")
	index, err := subsections(st.Dict, size)
	if err != nil {
		return nil, err
	}
	data, err := pipeline.DecodeStream(ctx, st)
	if err != nil {
		return nil, fmt.Errorf("decode xref stream: %w", err)
	}

	t := newTable("xref-stream")
	t.trailer = st.Dict
	rowLen := w[0] + w[1] + w[2]
	pos := 0
	for _, sub := range index {
		for i := 0; i < sub[1]; i++ {
			if pos+rowLen > len(data) {
				// short payload: keep the rows that were complete
				return t, nil
			}
			row := data[pos : pos+rowLen]
			pos += rowLen
			typ := 1
			if w[0] > 0 {
				typ = int(readField(row[:w[0]]))
			}
			f2 := readField(row[w[0] : w[0]+w[1]])
			f3 := readField(row[w[0]+w[1]:])
			num := sub[0] + i
			switch typ {
			case 0:
				t.entries[num] = Entry{Kind: EntryFree, Gen: int(f3)}
			case 1:
				t.entries[num] = Entry{Kind: EntryInUse, Offset: f2, Gen: int(f3)}
			case 2:
				t.entries[num] = Entry{Kind: EntryCompressed, Stream: int(f2), Index: int(f3)}
			}
			// other types are reserved and read as references to null
		}
	}
	return t, nil
}

func fieldWidths(d *raw.DictObj) ([3]int, error) {
	var w [3]int
	arr, ok := d.KV["W"].(*raw.ArrayObj)
	if !ok || arr.Len() != 3 {
		return w, errors.New("xref stream W must be an array of three integers")
	}
	for i, item := range arr.Items {
		n, ok := item.(raw.NumberObj)
		if !ok || !n.IsInt || n.I < 0 || n.I > 8 {
			return w, errors.New("xref stream W entry out of range")
		}
		w[i] = int(n.I)
	}
	if w[1] == 0 {
		return w, errors.New("xref stream W has zero-width offset field")
	}
	return w, nil
}

func subsections(d *raw.DictObj, size int64) ([][2]int, error) {
	arr, ok := d.KV["Index"].(*raw.ArrayObj)
	if !ok {
		if size <= 0 {
			return nil, errors.New("xref stream missing Size")
		}
		return [][2]int{{0, int(size)}}, nil
	}
	if arr.Len()%2 != 0 {
		return nil, errors.New("xref stream Index has odd length")
	}
	out := make([][2]int, 0, arr.Len()/2)
	for i := 0; i < arr.Len(); i += 2 {
		start, ok1 := arr.Items[i].(raw.NumberObj)
		count, ok2 := arr.Items[i+1].(raw.NumberObj)
		if !ok1 || !ok2 || start.Int() < 0 || count.Int() < 0 {
			return nil, errors.New("xref stream Index entry invalid")
		}
		out = append(out, [2]int{int(start.Int()), int(count.Int())})
	}
	return out, nil
}

func readField(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}
