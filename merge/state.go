package merge

import (
	"sort"

	"github.com/wudi/pdfcombine/ir/raw"
)

// sourceKey identifies an object of one input document.
type sourceKey struct {
	doc int
	num int
}

// State is the destination document under construction. It is owned by a
// single merge and must not be shared between goroutines.
type State struct {
	objects map[int]raw.Object
	mapping map[sourceKey]int
	next    int
	pages   []raw.ObjectRef
}

func NewState() *State {
	return &State{
		objects: make(map[int]raw.Object),
		mapping: make(map[sourceKey]int),
		next:    1,
	}
}

// Allocate hands out the next destination object number.
func (s *State) Allocate() raw.ObjectRef {
	n := s.next
	s.next++
	return raw.ObjectRef{Num: n}
}

// Lookup returns the destination number mapped to (doc, num).
func (s *State) Lookup(doc, num int) (int, bool) {
	n, ok := s.mapping[sourceKey{doc, num}]
	return n, ok
}

// reserve maps (doc, num) to a fresh destination number.
func (s *State) reserve(doc, num int) int {
	n := s.Allocate().Num
	s.mapping[sourceKey{doc, num}] = n
	return n
}

func (s *State) filled(num int) bool {
	_, ok := s.objects[num]
	return ok
}

// Set stores the destination object num.
func (s *State) Set(num int, obj raw.Object) { s.objects[num] = obj }

func (s *State) Get(num int) (raw.Object, bool) {
	o, ok := s.objects[num]
	return o, ok
}

func (s *State) AppendPage(ref raw.ObjectRef) { s.pages = append(s.pages, ref) }

// Pages returns destination page references in output order.
func (s *State) Pages() []raw.ObjectRef { return append([]raw.ObjectRef(nil), s.pages...) }

// Len is the number of destination objects stored so far.
func (s *State) Len() int { return len(s.objects) }

// Allocated is the highest number handed out.
func (s *State) Allocated() int { return s.next - 1 }

// Unfilled lists allocated numbers that have no object yet.
func (s *State) Unfilled() []int {
	var out []int
	for n := 1; n < s.next; n++ {
		if !s.filled(n) {
			out = append(out, n)
		}
	}
	return out
}

// Objects exposes the destination table for the writer.
func (s *State) Objects() map[int]raw.Object { return s.objects }

// Numbers returns the destination numbers in ascending order.
func (s *State) Numbers() []int {
	out := make([]int, 0, len(s.objects))
	for n := range s.objects {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}
