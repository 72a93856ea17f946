package merge

import (
	"fmt"

	"github.com/wudi/pdfcombine/closure"
	"github.com/wudi/pdfcombine/ir/raw"
)

// Renumberer copies objects of one closure into a State, rewriting every
// reference to its destination number. A reference is kept when its target
// is already mapped or belongs to the closure; any other reference is
// dropped: a dictionary loses the entry and an array holds null instead.
type Renumberer struct {
	state *State
}

func NewRenumberer(s *State) *Renumberer { return &Renumberer{state: s} }

type pending struct {
	src, dst int
}

// Copy stores value as the destination object for (doc, num) and copies the
// closure members it reaches. Copying an object that is already present
// returns its existing reference.
func (r *Renumberer) Copy(doc, num int, value raw.Object, set *closure.Set) (raw.ObjectRef, error) {
	dst, ok := r.state.Lookup(doc, num)
	if ok && r.state.filled(dst) {
		return raw.ObjectRef{Num: dst}, nil
	}
	if !ok {
		dst = r.state.reserve(doc, num)
	}
	if err := r.fill(doc, dst, value, set); err != nil {
		return raw.ObjectRef{}, err
	}
	return raw.ObjectRef{Num: dst}, nil
}

// CopyAs stores value under a number allocated by the caller without
// recording a mapping. It is used for a page listed twice in one tree.
func (r *Renumberer) CopyAs(dst raw.ObjectRef, doc int, value raw.Object, set *closure.Set) error {
	return r.fill(doc, dst.Num, value, set)
}

// fill rewrites value into dst, then drains the objects it caused to be
// allocated. The work list replaces recursion so long reference chains do
// not grow the stack.
func (r *Renumberer) fill(doc, dst int, value raw.Object, set *closure.Set) error {
	var queue []pending
	r.state.Set(dst, r.rewrite(doc, value, set, &queue))
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		obj, ok := set.Get(p.src)
		if !ok {
			return fmt.Errorf("object %d allocated outside its closure", p.src)
		}
		r.state.Set(p.dst, r.rewrite(doc, obj, set, &queue))
	}
	return nil
}

// target maps a source reference, allocating closure members on first use.
func (r *Renumberer) target(doc int, ref raw.ObjectRef, set *closure.Set, queue *[]pending) (raw.ObjectRef, bool) {
	if n, ok := r.state.Lookup(doc, ref.Num); ok {
		return raw.ObjectRef{Num: n}, true
	}
	if !set.Contains(ref.Num) {
		return raw.ObjectRef{}, false
	}
	n := r.state.reserve(doc, ref.Num)
	*queue = append(*queue, pending{src: ref.Num, dst: n})
	return raw.ObjectRef{Num: n}, true
}

// rewrite deep-copies o. Stream payloads are shared, not copied.
func (r *Renumberer) rewrite(doc int, o raw.Object, set *closure.Set, queue *[]pending) raw.Object {
	switch v := o.(type) {
	case raw.RefObj:
		if ref, ok := r.target(doc, v.R, set, queue); ok {
			return raw.RefObj{R: ref}
		}
		return raw.NullObj{}
	case *raw.ArrayObj:
		out := &raw.ArrayObj{Items: make([]raw.Object, len(v.Items))}
		for i, it := range v.Items {
			out.Items[i] = r.rewrite(doc, it, set, queue)
		}
		return out
	case *raw.DictObj:
		return r.rewriteDict(doc, v, set, queue)
	case *raw.StreamObj:
		dict := raw.Dict()
		if v.Dict != nil {
			dict = r.rewriteDict(doc, v.Dict, set, queue)
		}
		dict.Set(raw.NameLiteral("Length"), raw.NumberInt(int64(len(v.Data))))
		return raw.NewStream(dict, v.Data)
	}
	return o
}

func (r *Renumberer) rewriteDict(doc int, d *raw.DictObj, set *closure.Set, queue *[]pending) *raw.DictObj {
	out := raw.Dict()
	for _, k := range d.SortedKeys() {
		val := r.rewrite(doc, d.KV[k], set, queue)
		if _, dropped := val.(raw.NullObj); dropped {
			continue
		}
		out.KV[k] = val
	}
	return out
}
