// Package closure computes the set of indirect objects reachable from a
// value, the unit that has to be copied together when a page moves between
// documents.
package closure

import (
	"context"

	"github.com/wudi/pdfcombine/ir/raw"
)

// Resolver looks up indirect objects. *document.Document satisfies it.
type Resolver interface {
	Resolve(ref raw.ObjectRef) (raw.Object, error)
}

// ExcludeFunc reports whether the object behind ref must stay out of the
// closure. Excluded objects are not traversed either.
type ExcludeFunc func(ref raw.ObjectRef, obj raw.Object) bool

// PageTreeNode excludes Page and Pages dictionaries. It cuts Parent chains
// and annotation /P back-pointers, which the merger rebuilds.
func PageTreeNode(_ raw.ObjectRef, obj raw.Object) bool {
	d, ok := raw.DictOf(obj)
	if !ok {
		return false
	}
	typ, _ := raw.NameOf(d, "Type")
	return typ == "Page" || typ == "Pages"
}

type options struct {
	exclude    []ExcludeFunc
	maxObjects int
}

type Option func(*options)

// WithExclude adds a predicate to the default PageTreeNode exclusion.
func WithExclude(fn ExcludeFunc) Option {
	return func(o *options) { o.exclude = append(o.exclude, fn) }
}

// WithMaxObjects stops the walk with ErrTooLarge after n objects.
func WithMaxObjects(n int) Option {
	return func(o *options) { o.maxObjects = n }
}

// Set is the result of Walk: reachable objects keyed by object number,
// plus the references that were cut off.
type Set struct {
	objects  map[int]raw.Object
	order    []int
	excluded map[int]raw.ObjectRef
}

func (s *Set) Contains(num int) bool { _, ok := s.objects[num]; return ok }

func (s *Set) Get(num int) (raw.Object, bool) {
	o, ok := s.objects[num]
	return o, ok
}

// Numbers lists the member object numbers in discovery order.
func (s *Set) Numbers() []int { return append([]int(nil), s.order...) }

func (s *Set) Len() int { return len(s.order) }

// Excluded reports whether a reference to num was seen and cut off.
func (s *Set) Excluded(num int) bool { _, ok := s.excluded[num]; return ok }

// ExcludedRefs returns the cut references in no particular order.
func (s *Set) ExcludedRefs() []raw.ObjectRef {
	out := make([]raw.ObjectRef, 0, len(s.excluded))
	for _, r := range s.excluded {
		out = append(out, r)
	}
	return out
}

// Walk collects every object reachable from start through arrays,
// dictionaries and stream dictionaries. The visited set is keyed by object
// number, so cyclic graphs terminate. Dictionary entries are visited in
// key order, making Numbers deterministic.
func Walk(ctx context.Context, res Resolver, start raw.Object, opts ...Option) (*Set, error) {
	o := options{exclude: []ExcludeFunc{PageTreeNode}}
	for _, opt := range opts {
		opt(&o)
	}
	set := &Set{
		objects:  make(map[int]raw.Object),
		excluded: make(map[int]raw.ObjectRef),
	}
	stack := []raw.Object{start}
	for steps := 0; len(stack) > 0; steps++ {
		if steps%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch v := cur.(type) {
		case raw.RefObj:
			num := v.R.Num
			if _, seen := set.objects[num]; seen {
				continue
			}
			if _, cut := set.excluded[num]; cut {
				continue
			}
			obj, err := res.Resolve(v.R)
			if err != nil {
				return nil, err
			}
			if o.excludes(v.R, obj) {
				set.excluded[num] = v.R
				continue
			}
			if o.maxObjects > 0 && len(set.order) >= o.maxObjects {
				return nil, ErrTooLarge
			}
			set.objects[num] = obj
			set.order = append(set.order, num)
			stack = append(stack, obj)
		case *raw.ArrayObj:
			for i := len(v.Items) - 1; i >= 0; i-- {
				stack = pushIfContainer(stack, v.Items[i])
			}
		case *raw.DictObj:
			stack = pushDict(stack, v, "")
		case *raw.StreamObj:
			// Length is rewritten from the payload on output, so an
			// indirect length object is not needed.
			if v.Dict != nil {
				stack = pushDict(stack, v.Dict, "Length")
			}
		}
	}
	return set, nil
}

func (o *options) excludes(ref raw.ObjectRef, obj raw.Object) bool {
	for _, fn := range o.exclude {
		if fn(ref, obj) {
			return true
		}
	}
	return false
}

// pushDict pushes values in reverse key order so they pop in key order.
func pushDict(stack []raw.Object, d *raw.DictObj, skip string) []raw.Object {
	keys := d.SortedKeys()
	for i := len(keys) - 1; i >= 0; i-- {
		if keys[i] == skip {
			continue
		}
		stack = pushIfContainer(stack, d.KV[keys[i]])
	}
	return stack
}

// pushIfContainer skips scalars, which cannot lead anywhere.
func pushIfContainer(stack []raw.Object, o raw.Object) []raw.Object {
	switch o.(type) {
	case raw.RefObj, *raw.ArrayObj, *raw.DictObj, *raw.StreamObj:
		return append(stack, o)
	}
	return stack
}
