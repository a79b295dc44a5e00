package response

import (
	"testing"
)

func TestDataOrder(t *testing.T) {
	t.Parallel()
	tests := []struct {
		order int
		want  Request
	}{
		{-1, Value},
		{0, Value},
		{1, Value | Gradient},
		{2, Value | Gradient | Hessian},
		{5, Value | Gradient | Hessian},
	}
	for _, tt := range tests {
		if got := DataOrder(tt.order); got != tt.want {
			t.Errorf("DataOrder(%d) = %b, want %b", tt.order, got, tt.want)
		}
	}
}

func TestNewShapesDerivativeStorage(t *testing.T) {
	t.Parallel()
	set := ActiveSet{Requests: []Request{Value, Value | Gradient, Value | Gradient | Hessian, 0}, DerivVars: []int{0, 1}}
	r := New(set)

	if r.NumFunctions() != 4 {
		t.Fatalf("NumFunctions = %d, want 4", r.NumFunctions())
	}
	if r.HasGradient(0) || !r.HasGradient(1) || !r.HasGradient(2) || r.HasGradient(3) {
		t.Errorf("unexpected gradient layout: %v", r.Gradients)
	}
	if r.HasHessian(1) || !r.HasHessian(2) {
		t.Errorf("unexpected Hessian layout: %v", r.Hessians)
	}
	if len(r.Hessians[2]) != 2 || len(r.Hessians[2][1]) != 2 {
		t.Errorf("Hessian not 2x2: %v", r.Hessians[2])
	}
	if r.HasGradient(-1) || r.HasHessian(10) {
		t.Error("out of range index reported derivatives")
	}
	if r.Requested(3) != 0 || r.Requested(99) != 0 {
		t.Error("expected zero request for skipped or out of range output")
	}
}

func TestCopyIsDeep(t *testing.T) {
	t.Parallel()
	set := Uniform(2, Value|Gradient|Hessian, 1)
	r := New(set)
	r.Values[0] = 1
	r.Gradients[0][0] = 2
	r.Hessians[0][0][0] = 3

	c := r.Copy()
	c.Values[0] = 10
	c.Gradients[0][0] = 20
	c.Hessians[0][0][0] = 30
	c.Set.Requests[0] = 0

	if r.Values[0] != 1 || r.Gradients[0][0] != 2 || r.Hessians[0][0][0] != 3 {
		t.Errorf("original mutated through copy: %+v", r)
	}
	if r.Set.Requests[0] == 0 {
		t.Error("active set shared between copies")
	}
	var nilResp *Response
	if nilResp.Copy() != nil {
		t.Error("nil copy should be nil")
	}
}

func TestActiveSetEmpty(t *testing.T) {
	t.Parallel()
	if !(ActiveSet{Requests: []Request{0, 0}}).Empty() {
		t.Error("all-zero mask should be empty")
	}
	if (ActiveSet{Requests: []Request{0, Value}}).Empty() {
		t.Error("mask with a request should not be empty")
	}
	if !(ActiveSet{}).Empty() {
		t.Error("nil mask should be empty")
	}
}

func TestVariablesEqualAndCopy(t *testing.T) {
	t.Parallel()
	v := Variables{Continuous: []float64{0.5}, Inactive: []float64{1}}
	c := v.Copy()
	if !v.Equal(c) {
		t.Fatal("copy should be equal")
	}
	c.Inactive[0] = 2
	if v.Equal(c) {
		t.Error("changed inactive value should break equality")
	}
	if v.Inactive[0] != 1 {
		t.Error("copy shares storage")
	}
}

func TestParseMode(t *testing.T) {
	t.Parallel()
	for _, m := range Modes() {
		got, err := ParseMode(m.String())
		if err != nil || got != m {
			t.Errorf("ParseMode(%q) = %v, %v", m.String(), got, err)
		}
	}
	if m, err := ParseMode("AUTO_CORRECTED"); err != nil || m != AutoCorrectedSurrogate {
		t.Errorf("ParseMode(AUTO_CORRECTED) = %v, %v", m, err)
	}
	if _, err := ParseMode("tri-fidelity"); err == nil {
		t.Error("expected error for unknown mode")
	}
	if Mode(42).Valid() || Mode(42).String() != "mode(42)" {
		t.Error("out of range mode handled incorrectly")
	}
}
