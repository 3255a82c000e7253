// Package interval implements the second-based range algebra used to select
// which parts of an audio file get transcribed.
//
// All functions are pure: they never modify their inputs and always return
// a fresh slice sorted ascending by Start.
package interval

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Interval is a [Start, End] range in seconds.
type Interval struct {
	Start float64
	End   float64
}

// Set is an ordered sequence of intervals.
type Set []Interval

// Duration returns End - Start.
func (iv Interval) Duration() float64 {
	return iv.End - iv.Start
}

// MarshalJSON encodes the interval as a [start, end] pair.
func (iv Interval) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{iv.Start, iv.End})
}

// UnmarshalJSON accepts a [start, end] pair.
func (iv *Interval) UnmarshalJSON(data []byte) error {
	var pair []float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("interval must be a [start, end] pair: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("interval must have exactly 2 values, got %d", len(pair))
	}
	iv.Start, iv.End = pair[0], pair[1]
	return nil
}

// Validate rejects negative starts and empty or inverted ranges.
func Validate(set Set) error {
	for i, iv := range set {
		if iv.Start < 0 {
			return fmt.Errorf("interval %d: start %.3f is negative", i, iv.Start)
		}
		if iv.End <= iv.Start {
			return fmt.Errorf("interval %d: end %.3f must be greater than start %.3f", i, iv.End, iv.Start)
		}
	}
	return nil
}

// Sort returns a copy of set ordered by Start, then End.
func Sort(set Set) Set {
	out := make(Set, len(set))
	copy(out, set)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start == out[j].Start {
			return out[i].End < out[j].End
		}
		return out[i].Start < out[j].Start
	})
	return out
}

// Duration returns the summed length of every interval in set.
func Duration(set Set) float64 {
	var total float64
	for _, iv := range set {
		total += iv.Duration()
	}
	return total
}

// CombineClose merges intervals whose gap to the running interval is at most
// minGap. Overlapping intervals always merge.
func CombineClose(set Set, minGap float64) Set {
	if len(set) == 0 {
		return Set{}
	}

	sorted := Sort(set)
	out := make(Set, 0, len(sorted))
	current := sorted[0]
	for _, next := range sorted[1:] {
		if next.Start-current.End <= minGap {
			current.End = max(current.End, next.End)
			continue
		}
		out = append(out, current)
		current = next
	}
	return append(out, current)
}

// Intersect returns the overlap of every pair from a and b. An empty b
// leaves a unchanged, so "no requested intervals" means "everything in a".
func Intersect(a, b Set) Set {
	if len(b) == 0 {
		out := make(Set, len(a))
		copy(out, a)
		return out
	}

	sortedA, sortedB := Sort(a), Sort(b)
	out := Set{}
	for _, x := range sortedA {
		for _, y := range sortedB {
			if y.Start > x.End || y.End < x.Start {
				continue
			}
			iv := Interval{Start: max(x.Start, y.Start), End: min(x.End, y.End)}
			// touching ranges yield nothing to transcribe
			if iv.End > iv.Start {
				out = append(out, iv)
			}
		}
	}
	return Sort(out)
}

// Subtract removes every excluded range from base. Fully covered ranges are
// dropped, edge overlaps are trimmed and interior exclusions split the range
// in two. A boundary shared by both sides belongs to the excluded range.
func Subtract(base, excluded Set) Set {
	out := make(Set, len(base))
	copy(out, base)

	for _, ex := range excluded {
		next := make(Set, 0, len(out))
		for _, b := range out {
			if ex.End <= b.Start || ex.Start >= b.End {
				next = append(next, b)
				continue
			}
			if ex.Start > b.Start {
				next = append(next, Interval{Start: b.Start, End: ex.Start})
			}
			if ex.End < b.End {
				next = append(next, Interval{Start: ex.End, End: b.End})
			}
		}
		out = next
	}
	return Sort(out)
}
