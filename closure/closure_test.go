package closure

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfcombine/ir/raw"
	"github.com/wudi/pdfcombine/pdferr"
)

type mapResolver struct {
	objs  map[int]raw.Object
	calls int
}

func (m *mapResolver) Resolve(ref raw.ObjectRef) (raw.Object, error) {
	m.calls++
	o, ok := m.objs[ref.Num]
	if !ok {
		return nil, &pdferr.DanglingReferenceError{Ref: ref}
	}
	return o, nil
}

func dict(kv ...any) *raw.DictObj {
	d := raw.Dict()
	for i := 0; i < len(kv); i += 2 {
		d.Set(raw.NameLiteral(kv[i].(string)), kv[i+1].(raw.Object))
	}
	return d
}

// pageGraph: page 10 (Parent 2) uses resources 11 -> font 12 -> descriptor 13,
// content 14, an annotation 15 whose /P points back at the page.
func pageGraph() *mapResolver {
	return &mapResolver{objs: map[int]raw.Object{
		2:  dict("Type", raw.NameLiteral("Pages"), "Kids", raw.NewArray(raw.Ref(10, 0))),
		10: dict("Type", raw.NameLiteral("Page"), "Parent", raw.Ref(2, 0)),
		11: dict("Font", dict("F1", raw.Ref(12, 0))),
		12: dict("Type", raw.NameLiteral("Font"), "FontDescriptor", raw.Ref(13, 0)),
		13: dict("Type", raw.NameLiteral("FontDescriptor"), "Font", raw.Ref(12, 0)),
		14: raw.NewStream(dict("Length", raw.NumberInt(3)), []byte("q Q")),
		15: dict("Type", raw.NameLiteral("Annot"), "P", raw.Ref(10, 0), "Rect", raw.NewArray()),
	}}
}

func flattenedPage() *raw.DictObj {
	return dict(
		"Type", raw.NameLiteral("Page"),
		"Resources", raw.Ref(11, 0),
		"Contents", raw.Ref(14, 0),
		"Annots", raw.NewArray(raw.Ref(15, 0)),
	)
}

func TestWalkCollectsReachableObjects(t *testing.T) {
	res := pageGraph()
	set, err := Walk(context.Background(), res, flattenedPage())
	require.NoError(t, err)

	assert.Equal(t, []int{15, 14, 11, 12, 13}, set.Numbers())
	assert.Equal(t, 5, set.Len())
	assert.True(t, set.Excluded(10))
	assert.False(t, set.Contains(10))
	assert.False(t, set.Contains(2))
	obj, ok := set.Get(14)
	require.True(t, ok)
	assert.IsType(t, &raw.StreamObj{}, obj)
}

func TestWalkResolvesEachObjectOnce(t *testing.T) {
	res := pageGraph()
	start := raw.NewArray(raw.Ref(12, 0), raw.Ref(12, 0), raw.Ref(13, 0), flattenedPage())
	_, err := Walk(context.Background(), res, start)
	require.NoError(t, err)
	// 12, 13, 15, 14, 11 and the excluded page 10
	assert.Equal(t, 6, res.calls)
}

func TestWalkParentChainExcluded(t *testing.T) {
	res := pageGraph()
	set, err := Walk(context.Background(), res, raw.Ref(15, 0))
	require.NoError(t, err)
	assert.Equal(t, []int{15}, set.Numbers())
	assert.ElementsMatch(t, []raw.ObjectRef{{Num: 10}}, set.ExcludedRefs())
}

func TestWalkSelfReference(t *testing.T) {
	res := &mapResolver{objs: map[int]raw.Object{
		1: dict("Self", raw.Ref(1, 0), "Next", raw.NewArray(raw.Ref(2, 0))),
		2: dict("Back", raw.Ref(1, 0)),
	}}
	set, err := Walk(context.Background(), res, raw.Ref(1, 0))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, set.Numbers())
}

func TestWalkDanglingReference(t *testing.T) {
	res := &mapResolver{objs: map[int]raw.Object{}}
	_, err := Walk(context.Background(), res, dict("X", raw.Ref(42, 0)))
	var de *pdferr.DanglingReferenceError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, 42, de.Ref.Num)
}

func TestWalkCustomExclusion(t *testing.T) {
	res := pageGraph()
	skipFonts := func(_ raw.ObjectRef, obj raw.Object) bool {
		d, ok := raw.DictOf(obj)
		if !ok {
			return false
		}
		typ, _ := raw.NameOf(d, "Type")
		return typ == "Font"
	}
	set, err := Walk(context.Background(), res, flattenedPage(), WithExclude(skipFonts))
	require.NoError(t, err)
	assert.False(t, set.Contains(12))
	assert.False(t, set.Contains(13))
	assert.True(t, set.Excluded(12))
}

func TestWalkMaxObjects(t *testing.T) {
	_, err := Walk(context.Background(), pageGraph(), flattenedPage(), WithMaxObjects(2))
	assert.True(t, errors.Is(err, ErrTooLarge))
}

func TestWalkCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Walk(ctx, pageGraph(), flattenedPage())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWalkSkipsIndirectStreamLength(t *testing.T) {
	res := &mapResolver{objs: map[int]raw.Object{
		1: raw.NewStream(dict("Length", raw.Ref(2, 0), "Font", raw.Ref(3, 0)), []byte("xyz")),
		2: raw.NumberInt(3),
		3: dict("Type", raw.NameLiteral("Font")),
	}}
	set, err := Walk(context.Background(), res, raw.Ref(1, 0))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, set.Numbers())
}
