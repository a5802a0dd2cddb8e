package engine

import "sort"

// FlagSet tracks flagged question indices.
type FlagSet map[int]struct{}

func NewFlagSet(indices ...int) FlagSet {
	s := make(FlagSet, len(indices))
	for _, i := range indices {
		s.Add(i)
	}
	return s
}

func (s FlagSet) Add(index int)    { s[index] = struct{}{} }
func (s FlagSet) Remove(index int) { delete(s, index) }

func (s FlagSet) Contains(index int) bool {
	_, ok := s[index]
	return ok
}

// Toggle flips membership and reports the new state.
func (s FlagSet) Toggle(index int) bool {
	if s.Contains(index) {
		s.Remove(index)
		return false
	}
	s.Add(index)
	return true
}

// Sorted returns the members in ascending order.
func (s FlagSet) Sorted() []int {
	out := make([]int, 0, len(s))
	for i := range s {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}
