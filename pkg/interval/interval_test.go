package interval

import (
	"encoding/json"
	"reflect"
	"testing"
)

// TestCombineClose covers merging behaviour for gaps around the threshold.
func TestCombineClose(t *testing.T) {
	tests := []struct {
		name   string
		in     Set
		minGap float64
		want   Set
	}{
		{name: "empty", in: nil, minGap: 3, want: Set{}},
		{name: "single", in: Set{{1, 2}}, minGap: 3, want: Set{{1, 2}}},
		{name: "vad spans within gap", in: Set{{1, 2}, {2.5, 3}}, minGap: 3, want: Set{{1, 3}}},
		{name: "gap exactly min gap merges", in: Set{{0, 1}, {4, 5}}, minGap: 3, want: Set{{0, 5}}},
		{name: "gap above min gap", in: Set{{0, 1}, {4.5, 5}}, minGap: 3, want: Set{{0, 1}, {4.5, 5}}},
		{name: "unsorted input", in: Set{{10, 12}, {0, 1}, {1.5, 2}}, minGap: 1, want: Set{{0, 2}, {10, 12}}},
		{name: "contained interval keeps outer end", in: Set{{0, 10}, {2, 3}}, minGap: 0, want: Set{{0, 10}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := CombineClose(tc.in, tc.minGap)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("CombineClose() = %v, want %v", got, tc.want)
			}
		})
	}
}

// TestCombineCloseIdempotent checks applying the merge twice is a no-op.
func TestCombineCloseIdempotent(t *testing.T) {
	inputs := []Set{
		{{0, 1}, {1.2, 4}, {9, 10}, {3, 3.5}},
		{{5, 6}, {0, 2}, {2.1, 2.2}},
		{{0, 100}},
	}
	for _, in := range inputs {
		once := CombineClose(in, 0.5)
		twice := CombineClose(once, 0.5)
		if !reflect.DeepEqual(once, twice) {
			t.Fatalf("not idempotent: once=%v twice=%v", once, twice)
		}
	}
}

// TestIntersect checks overlap extraction and the empty-b convenience.
func TestIntersect(t *testing.T) {
	a := Set{{0, 10}, {20, 30}}

	got := Intersect(a, nil)
	if !reflect.DeepEqual(got, a) {
		t.Fatalf("Intersect(a, nil) = %v, want %v", got, a)
	}

	got = Intersect(a, Set{{5, 25}})
	want := Set{{5, 10}, {20, 25}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Intersect() = %v, want %v", got, want)
	}

	got = Intersect(a, Set{{10, 20}})
	if len(got) != 0 {
		t.Fatalf("touching ranges should not intersect, got %v", got)
	}
}

// TestSubtract covers cover, trim and split cases.
func TestSubtract(t *testing.T) {
	tests := []struct {
		name     string
		base     Set
		excluded Set
		want     Set
	}{
		{name: "nothing excluded", base: Set{{0, 5}, {8, 9}}, excluded: nil, want: Set{{0, 5}, {8, 9}}},
		{name: "exact cover", base: Set{{0, 5}}, excluded: Set{{0, 5}}, want: Set{}},
		{name: "wider cover", base: Set{{2, 5}}, excluded: Set{{0, 10}}, want: Set{}},
		{name: "trim start", base: Set{{0, 10}}, excluded: Set{{0, 3}}, want: Set{{3, 10}}},
		{name: "trim end", base: Set{{0, 10}}, excluded: Set{{7, 12}}, want: Set{{0, 7}}},
		{name: "interior split", base: Set{{5, 15}}, excluded: Set{{8, 10}}, want: Set{{5, 8}, {10, 15}}},
		{name: "touching boundary", base: Set{{5, 10}}, excluded: Set{{10, 12}}, want: Set{{5, 10}}},
		{name: "several exclusions", base: Set{{0, 30}}, excluded: Set{{20, 25}, {5, 10}}, want: Set{{0, 5}, {10, 20}, {25, 30}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Subtract(tc.base, tc.excluded)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Subtract() = %v, want %v", got, tc.want)
			}
		})
	}
}

// TestSubtractSelfIsEmpty checks subtract(base, base) == [].
func TestSubtractSelfIsEmpty(t *testing.T) {
	base := Set{{0, 1}, {2, 5}, {7.5, 9}}
	if got := Subtract(base, base); len(got) != 0 {
		t.Fatalf("Subtract(base, base) = %v, want empty", got)
	}
}

// TestValidate rejects malformed intervals.
func TestValidate(t *testing.T) {
	if err := Validate(Set{{0, 1}, {2, 3}}); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if err := Validate(Set{{-1, 1}}); err == nil {
		t.Fatal("expected error for negative start")
	}
	if err := Validate(Set{{3, 3}}); err == nil {
		t.Fatal("expected error for empty interval")
	}
}

// TestIntervalJSON checks the [start, end] wire format.
func TestIntervalJSON(t *testing.T) {
	data, err := json.Marshal(Set{{1.5, 2}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != "[[1.5,2]]" {
		t.Fatalf("json = %s, want [[1.5,2]]", data)
	}

	var set Set
	if err := json.Unmarshal([]byte("[[3,4],[5,6.25]]"), &set); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := Set{{3, 4}, {5, 6.25}}
	if !reflect.DeepEqual(set, want) {
		t.Fatalf("set = %v, want %v", set, want)
	}

	if err := json.Unmarshal([]byte("[[1,2,3]]"), &set); err == nil {
		t.Fatal("expected error for 3-element interval")
	}
}
