package domain

import (
	"cmp"
	"slices"
)

func sortEstimates(values []ValueEstimate) {
	slices.SortFunc(values, func(a, b ValueEstimate) int {
		if c := cmp.Compare(b.Mean, a.Mean); c != 0 {
			return c
		}
		return cmp.Compare(a.Index, b.Index)
	})
}
