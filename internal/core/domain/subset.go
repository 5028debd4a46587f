package domain

import (
	"slices"
	"strconv"
	"strings"
)

// Subset is a set of dataset indices.
// Its identity is the sorted index sequence; construction order does not matter.
type Subset struct {
	indices []int
}

// NewSubset creates a Subset from the given indices, sorting them and dropping duplicates.
func NewSubset(indices ...int) Subset {
	if len(indices) == 0 {
		return Subset{}
	}
	sorted := slices.Clone(indices)
	slices.Sort(sorted)
	return Subset{indices: slices.Compact(sorted)}
}

// Len returns the number of indices in the subset.
func (s Subset) Len() int {
	return len(s.indices)
}

// IsEmpty reports whether the subset has no indices.
func (s Subset) IsEmpty() bool {
	return len(s.indices) == 0
}

// Indices returns a copy of the sorted indices.
func (s Subset) Indices() []int {
	return slices.Clone(s.indices)
}

// Contains reports whether idx is a member of the subset.
func (s Subset) Contains(idx int) bool {
	_, found := slices.BinarySearch(s.indices, idx)
	return found
}

// With returns a new subset that additionally contains idx.
func (s Subset) With(idx int) Subset {
	pos, found := slices.BinarySearch(s.indices, idx)
	if found {
		return s
	}
	out := make([]int, 0, len(s.indices)+1)
	out = append(out, s.indices[:pos]...)
	out = append(out, idx)
	out = append(out, s.indices[pos:]...)
	return Subset{indices: out}
}

// Equal reports whether both subsets contain the same indices.
func (s Subset) Equal(other Subset) bool {
	return slices.Equal(s.indices, other.indices)
}

// String renders the subset as {i,j,k}.
func (s Subset) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, idx := range s.indices {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(idx))
	}
	b.WriteByte('}')
	return b.String()
}
