package activekey

import (
	"sort"
	"testing"
)

func TestAggregateAndSplit(t *testing.T) {
	t.Parallel()
	truth := New(0, 2, 3)
	surr := New(0, 0, 0)
	agg := Aggregate(truth, surr, SingleReduction)

	if !agg.IsAggregated() || agg.Len() != 2 {
		t.Fatalf("expected aggregate key with 2 components, got %v", agg)
	}
	gotT, gotS := agg.Split()
	if gotT != truth {
		t.Errorf("Split truth = %v, want %v", gotT, truth)
	}
	if gotS != surr {
		t.Errorf("Split surrogate = %v, want %v", gotS, surr)
	}
}

func TestSplitSimpleKey(t *testing.T) {
	t.Parallel()
	k := New(1, 0, NoLevel)
	a, b := k.Split()
	if a != k || b != k {
		t.Errorf("simple key should split into itself, got %v, %v", a, b)
	}
}

func TestKeyAsMapKey(t *testing.T) {
	t.Parallel()
	m := map[Key]int{}
	m[Aggregate(New(0, 1, NoLevel), New(0, 0, NoLevel), SingleReduction)] = 7
	if m[Aggregate(New(0, 1, NoLevel), New(0, 0, NoLevel), SingleReduction)] != 7 {
		t.Error("equal aggregates must hash to the same map entry")
	}
	if _, ok := m[Aggregate(New(0, 1, NoLevel), New(0, 0, NoLevel), RawData)]; ok {
		t.Error("keys with different reductions must differ")
	}
}

func TestWithFormAndLevel(t *testing.T) {
	t.Parallel()
	base := Aggregate(New(0, 0, 0), New(0, 0, 0), SingleReduction)
	k := base.WithForm(0, 2).WithForm(1, 1).WithLevel(0, 4)
	if k.Component(0) != (Fidelity{Form: 2, Level: 4}) {
		t.Errorf("component 0 = %v", k.Component(0))
	}
	if k.Component(1) != (Fidelity{Form: 1, Level: 0}) {
		t.Errorf("component 1 = %v", k.Component(1))
	}
	if base.Component(0).Form != 0 {
		t.Error("WithForm must not mutate the receiver")
	}
	if got := k.WithForm(5, 9); got != k {
		t.Error("out of range component updates must be ignored")
	}
}

func TestLessIsTotalOrder(t *testing.T) {
	t.Parallel()
	keys := []Key{
		Aggregate(New(1, 1, 0), New(1, 0, 0), SingleReduction),
		New(0, 1, NoLevel),
		New(0, 0, NoLevel),
		{},
		Aggregate(New(0, 1, 0), New(0, 0, 0), SingleReduction),
		New(0, 0, 2),
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	for i := 1; i < len(keys); i++ {
		if keys[i].Less(keys[i-1]) {
			t.Errorf("keys not sorted at %d: %v before %v", i, keys[i-1], keys[i])
		}
		if keys[i] == keys[i-1] {
			continue
		}
		if !keys[i-1].Less(keys[i]) {
			t.Errorf("distinct keys %v and %v are not strictly ordered", keys[i-1], keys[i])
		}
	}
	if !keys[0].IsEmpty() {
		t.Errorf("empty key should sort first, got %v", keys[0])
	}
}

func TestString(t *testing.T) {
	t.Parallel()
	tests := []struct {
		key  Key
		want string
	}{
		{Key{}, "{}"},
		{New(0, 1, NoLevel), "{0:m1}"},
		{New(2, 0, 3), "{2:m0.l3}"},
		{Aggregate(New(0, 1, 1), New(0, 1, 0), SingleReduction), "{0:m1.l1,m1.l0|single}"},
	}
	for _, tt := range tests {
		if got := tt.key.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestSetFromActiveIsIdempotent(t *testing.T) {
	t.Parallel()
	s := NewSet(New(0, 1, NoLevel), New(0, 0, NoLevel))
	once := FromActive(s.Active)
	twice := FromActive(once.Active)
	if once != s || twice != s {
		t.Errorf("FromActive should reproduce the set: %+v / %+v / %+v", s, once, twice)
	}
	if s.SameConfiguration() {
		t.Error("distinct forms are not the same configuration")
	}
	if !NewSet(New(0, 0, 1), New(0, 0, 1)).SameConfiguration() {
		t.Error("identical components are the same configuration")
	}
}
