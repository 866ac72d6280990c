package domain

import "time"

// AsofBackward matches each target to the last key that is at or before it.
// Both slices must be sorted ascending. The result holds, per target, the
// index into keys, or -1 when every key is later than the target. When several
// keys are equal the last of them wins.
//
// The scan is a single merge pass over both slices.
func AsofBackward(targets, keys []time.Time) []int {
	out := make([]int, len(targets))
	j := -1
	for i, p := range targets {
		for j+1 < len(keys) && !keys[j+1].After(p) {
			j++
		}
		out[i] = j
	}
	return out
}
