package merge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfcombine/closure"
	"github.com/wudi/pdfcombine/ir/raw"
)

type objects map[int]raw.Object

func (o objects) Resolve(ref raw.ObjectRef) (raw.Object, error) { return o[ref.Num], nil }

func entry(k string, v raw.Object) *raw.DictObj {
	d := raw.Dict()
	d.Set(raw.NameLiteral(k), v)
	return d
}

func walk(t *testing.T, src objects, start raw.Object) *closure.Set {
	t.Helper()
	set, err := closure.Walk(context.Background(), src, start)
	require.NoError(t, err)
	return set
}

func TestRenumbererIsIdempotent(t *testing.T) {
	src := objects{
		7: entry("Next", raw.Ref(8, 0)),
		8: entry("Back", raw.Ref(7, 0)),
	}
	st := NewState()
	r := NewRenumberer(st)
	set := walk(t, src, raw.Ref(7, 0))

	first, err := r.Copy(0, 7, src[7], set)
	require.NoError(t, err)
	again, err := r.Copy(0, 7, src[7], set)
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Equal(t, 2, st.Len())
	assert.Empty(t, st.Unfilled())

	a, _ := st.Get(first.Num)
	next := a.(*raw.DictObj).KV["Next"].(raw.RefObj).R
	b, _ := st.Get(next.Num)
	assert.Equal(t, first, b.(*raw.DictObj).KV["Back"].(raw.RefObj).R)
}

func TestRenumbererKeysBySourceDocument(t *testing.T) {
	src := objects{5: entry("V", raw.NumberInt(1))}
	st := NewState()
	r := NewRenumberer(st)
	set := walk(t, src, raw.Ref(5, 0))

	a, err := r.Copy(0, 5, src[5], set)
	require.NoError(t, err)
	b, err := r.Copy(1, 5, src[5], set)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Equal(t, []int{1, 2}, st.Numbers())
}

func TestRenumbererDropsReferencesOutsideClosure(t *testing.T) {
	src := objects{
		1: entry("Type", raw.NameLiteral("Page")),
		2: raw.NewArray(raw.Ref(1, 0), raw.NumberInt(4)),
	}
	start := raw.Dict()
	start.Set(raw.NameLiteral("Page"), raw.Ref(1, 0))
	start.Set(raw.NameLiteral("Arr"), raw.Ref(2, 0))
	src[3] = start
	set := walk(t, src, start)

	st := NewState()
	ref, err := NewRenumberer(st).Copy(0, 3, start, set)
	require.NoError(t, err)
	out, _ := st.Get(ref.Num)
	d := out.(*raw.DictObj)
	assert.NotContains(t, d.KV, "Page")
	arrRef := d.KV["Arr"].(raw.RefObj).R
	arr, _ := st.Get(arrRef.Num)
	assert.Equal(t, raw.NullObj{}, arr.(*raw.ArrayObj).Items[0])
	assert.Equal(t, raw.NumberInt(4), arr.(*raw.ArrayObj).Items[1])
}

func TestRenumbererStreamLengthDirect(t *testing.T) {
	sd := raw.Dict()
	sd.Set(raw.NameLiteral("Length"), raw.Ref(9, 0))
	src := objects{4: raw.NewStream(sd, []byte("12345")), 9: raw.NumberInt(5)}
	set := walk(t, src, raw.Ref(4, 0))

	st := NewState()
	ref, err := NewRenumberer(st).Copy(0, 4, src[4], set)
	require.NoError(t, err)
	out, _ := st.Get(ref.Num)
	assert.Equal(t, raw.NumberInt(5), out.(*raw.StreamObj).Dict.KV["Length"])
	assert.Equal(t, 1, st.Len())
	assert.Same(t, &src[4].(*raw.StreamObj).Data[0], &out.(*raw.StreamObj).Data[0])
}

func TestStateAllocatesIncreasingNumbers(t *testing.T) {
	st := NewState()
	assert.Equal(t, 1, st.Allocate().Num)
	assert.Equal(t, 2, st.reserve(3, 10))
	n, ok := st.Lookup(3, 10)
	assert.True(t, ok)
	assert.Equal(t, 2, n)
	_, ok = st.Lookup(4, 10)
	assert.False(t, ok)
	assert.Equal(t, []int{1, 2}, st.Unfilled())
	assert.Equal(t, 2, st.Allocated())
}
