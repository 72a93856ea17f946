package xref

import (
	"sort"

	"github.com/wudi/pdfcombine/ir/raw"
)

type EntryKind int

const (
	EntryFree EntryKind = iota
	EntryInUse
	EntryCompressed
)

func (k EntryKind) String() string {
	switch k {
	case EntryFree:
		return "free"
	case EntryInUse:
		return "in-use"
	case EntryCompressed:
		return "compressed"
	}
	return "unknown"
}

// Entry locates one object. In-use entries carry a byte offset; compressed
// entries name the object stream and the index within it.
type Entry struct {
	Kind   EntryKind
	Offset int64
	Gen    int
	Stream int
	Index  int
}

// Table maps object numbers to their locations.
type Table interface {
	Lookup(objNum int) (offset int64, gen int, found bool)
	ObjStream(objNum int) (streamNum int, idx int, found bool)
	Entry(objNum int) (Entry, bool)
	Objects() []int
	Type() string
	Trailer() *raw.DictObj
}

type table struct {
	entries map[int]Entry
	trailer *raw.DictObj
	kind    string
}

func newTable(kind string) *table {
	return &table{entries: make(map[int]Entry), kind: kind}
}

func (t *table) Lookup(objNum int) (int64, int, bool) {
	e, ok := t.entries[objNum]
	if !ok || e.Kind != EntryInUse {
		return 0, 0, false
	}
	return e.Offset, e.Gen, true
}

func (t *table) ObjStream(objNum int) (int, int, bool) {
	e, ok := t.entries[objNum]
	if !ok || e.Kind != EntryCompressed {
		return 0, 0, false
	}
	return e.Stream, e.Index, true
}

func (t *table) Entry(objNum int) (Entry, bool) {
	e, ok := t.entries[objNum]
	return e, ok
}

// Objects lists in-use and compressed object numbers in ascending order.
func (t *table) Objects() []int {
	out := make([]int, 0, len(t.entries))
	for k, e := range t.entries {
		if e.Kind != EntryFree {
			out = append(out, k)
		}
	}
	sort.Ints(out)
	return out
}

func (t *table) Type() string          { return t.kind }
func (t *table) Trailer() *raw.DictObj { return t.trailer }

// fill copies entries of older into t for numbers t does not define.
func (t *table) fill(older *table) {
	for num, e := range older.entries {
		if _, ok := t.entries[num]; !ok {
			t.entries[num] = e
		}
	}
}

// mergeTrailers returns a trailer where keys of newer override older.
func mergeTrailers(newer, older *raw.DictObj) *raw.DictObj {
	out := raw.Dict()
	if older != nil {
		for k, v := range older.KV {
			out.KV[k] = v
		}
	}
	if newer != nil {
		for k, v := range newer.KV {
			out.KV[k] = v
		}
	}
	// chain bookkeeping and xref stream keys belong to individual sections
	for _, k := range []string{"Prev", "XRefStm", "Type", "W", "Index", "Length", "Filter", "DecodeParms"} {
		delete(out.KV, k)
	}
	return out
}
