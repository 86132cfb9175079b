package validate

import (
	"fmt"
	"math/rand"

	mserrors "github.com/mscanner/mscanner/pkg/errors"
)

// SampleSubset chooses k items from pool without replacement, never
// choosing a member of exclude. The pool is scrambled in place: chosen
// items are swapped to the tail, which beats building an exclusion-filtered
// copy when the pool is the whole corpus. Identical seeds yield identical
// subsets.
func SampleSubset(k int, pool []uint32, exclude map[uint32]struct{}, rng *rand.Rand) ([]uint32, error) {
	n := len(pool)
	available := n
	for _, id := range pool {
		if _, ok := exclude[id]; ok {
			available--
		}
	}
	if k < 0 || k > available {
		return nil, fmt.Errorf("%w: cannot sample %d of %d available documents",
			mserrors.ErrArgument, k, available)
	}
	for i := 0; i < k; i++ {
		// Unselected items occupy 0 .. dest; selected occupy dest+1 .. n-1.
		dest := n - i - 1
		choice := rng.Intn(dest + 1)
		for {
			if _, ok := exclude[pool[choice]]; !ok {
				break
			}
			choice = rng.Intn(dest + 1)
		}
		pool[dest], pool[choice] = pool[choice], pool[dest]
	}
	out := make([]uint32, k)
	copy(out, pool[n-k:])
	return out, nil
}
