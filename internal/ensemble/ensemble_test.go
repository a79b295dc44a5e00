package ensemble

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agbru/hiersurr/internal/activekey"
	apperrors "github.com/agbru/hiersurr/internal/errors"
	"github.com/agbru/hiersurr/internal/response"
)

// levelEcho returns the solution level it ran at as its single output.
func levelEcho(_ context.Context, level int, _ response.Variables, set response.ActiveSet) (*response.Response, error) {
	r := response.New(set)
	r.Values[0] = float64(level)
	return r, nil
}

func newLocal(name string, levels int, async bool) *LocalModel {
	return NewLocalModel(name, levelEcho, LocalOptions{NumFunctions: 1, Levels: levels, Concurrency: 2, Async: async})
}

func TestNewRejectsEmptyEnsemble(t *testing.T) {
	t.Parallel()
	_, err := New()
	var cfgErr apperrors.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("New() error = %v, want ConfigError", err)
	}
	if _, err := New(nil); !errors.As(err, &cfgErr) {
		t.Fatalf("New(nil) error = %v, want ConfigError", err)
	}
}

func TestDefaultKeys(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		models    []Model
		truth     activekey.Key
		surrogate activekey.Key
	}{
		{
			name:      "multilevel multifidelity",
			models:    []Model{newLocal("lo", 2, false), newLocal("hi", 3, false)},
			truth:     activekey.New(0, 1, 2),
			surrogate: activekey.New(0, 0, 0),
		},
		{
			name:      "multifidelity",
			models:    []Model{newLocal("lo", 1, false), newLocal("mid", 1, false), newLocal("hi", 1, false)},
			truth:     activekey.New(0, 2, activekey.NoLevel),
			surrogate: activekey.New(0, 0, activekey.NoLevel),
		},
		{
			name:      "multilevel",
			models:    []Model{newLocal("hi", 4, false)},
			truth:     activekey.New(0, 0, 3),
			surrogate: activekey.New(0, 0, 0),
		},
		{
			name:      "single model",
			models:    []Model{newLocal("only", 1, false)},
			truth:     activekey.New(0, 0, activekey.NoLevel),
			surrogate: activekey.New(0, 0, activekey.NoLevel),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e, err := New(tt.models...)
			if err != nil {
				t.Fatal(err)
			}
			keys := e.DefaultKeys()
			if keys.Truth != tt.truth || keys.Surrogate != tt.surrogate {
				t.Errorf("DefaultKeys() = %s/%s, want %s/%s", keys.Truth, keys.Surrogate, tt.truth, tt.surrogate)
			}
			if got := e.KeysFor(keys.Active); got != keys {
				t.Errorf("KeysFor(active) = %+v, want %+v", got, keys)
			}
		})
	}
}

func TestKeysForSimpleKey(t *testing.T) {
	t.Parallel()
	e, _ := New(newLocal("a", 1, false), newLocal("b", 1, false))
	k := activekey.New(3, 1, activekey.NoLevel)
	got := e.KeysFor(k)
	if got.Truth != k || got.Surrogate != k {
		t.Errorf("KeysFor(%s) = %+v", k, got)
	}
}

func TestAssignSetsLevelEveryTime(t *testing.T) {
	t.Parallel()
	m := newLocal("shared", 3, false)
	e, _ := New(m)

	for _, level := range []int{0, 2, 1, activekey.NoLevel} {
		got, err := e.Assign(activekey.New(0, 0, level))
		if err != nil {
			t.Fatalf("Assign(level %d): %v", level, err)
		}
		want := level
		if level == activekey.NoLevel {
			want = 2
		}
		if got.(*LocalModel).Level() != want {
			t.Errorf("after Assign(level %d) level = %d, want %d", level, m.Level(), want)
		}
	}
}

func TestAssignValidation(t *testing.T) {
	t.Parallel()
	e, _ := New(newLocal("a", 2, false))
	bad := []activekey.Key{
		{},
		activekey.New(0, 1, activekey.NoLevel),
		activekey.New(0, 0, 2),
		activekey.NewSet(activekey.New(0, 0, 1), activekey.New(0, 0, 0)).Active,
	}
	for _, k := range bad {
		if _, err := e.Assign(k); err == nil {
			t.Errorf("Assign(%s) succeeded, want error", k)
		}
	}
}

func TestSameInstance(t *testing.T) {
	t.Parallel()
	shared := newLocal("shared", 2, false)
	other := newLocal("other", 1, false)
	e, _ := New(shared, shared, other)

	if !e.SameInstance(activekey.New(0, 0, 0), activekey.New(0, 0, 1)) {
		t.Error("same form should be the same instance")
	}
	if !e.SameInstance(activekey.New(0, 0, 0), activekey.New(0, 1, 0)) {
		t.Error("forms backed by one model should be the same instance")
	}
	if e.SameInstance(activekey.New(0, 0, 0), activekey.New(0, 2, activekey.NoLevel)) {
		t.Error("distinct models reported as one instance")
	}
	if e.SameInstance(activekey.Key{}, activekey.New(0, 0, 0)) {
		t.Error("empty key resolved to an instance")
	}
}

func TestLocalModelCapturesLevelAtLaunch(t *testing.T) {
	t.Parallel()
	m := newLocal("ml", 2, true)
	ctx := context.Background()
	set := response.Uniform(1, response.Value, 0)

	_ = m.SetSolutionLevel(0)
	id0, _ := m.EvaluateAsync(ctx, response.Variables{}, set)
	_ = m.SetSolutionLevel(1)
	id1, _ := m.EvaluateAsync(ctx, response.Variables{}, set)

	if id1 != id0+1 {
		t.Errorf("ids not monotonic: %d then %d", id0, id1)
	}
	got, err := m.Synchronize(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[id0].Values[0] != 0 || got[id1].Values[0] != 1 {
		t.Errorf("Synchronize() = %v", got)
	}
	if m.Outstanding() != 0 {
		t.Errorf("Outstanding() = %d after blocking synchronize", m.Outstanding())
	}
}

func TestLocalModelSynchronousLaunch(t *testing.T) {
	t.Parallel()
	m := newLocal("sync", 1, false)
	id, err := m.EvaluateAsync(context.Background(), response.Variables{}, response.Uniform(1, response.Value, 0))
	if err != nil {
		t.Fatal(err)
	}
	got, err := m.Synchronize(context.Background(), false)
	if err != nil || got[id] == nil {
		t.Fatalf("nonblocking synchronize lost a synchronous launch: %v, %v", got, err)
	}
}

func TestLocalModelCanceledWaitKeepsResults(t *testing.T) {
	t.Parallel()
	m := NewLocalModel("slow", levelEcho, LocalOptions{NumFunctions: 1, Async: true, Latency: 50 * time.Millisecond})
	id, _ := m.EvaluateAsync(context.Background(), response.Variables{}, response.Uniform(1, response.Value, 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Synchronize(ctx, true); !errors.Is(err, context.Canceled) {
		t.Fatalf("Synchronize(canceled) error = %v", err)
	}
	got, err := m.Synchronize(context.Background(), true)
	if err != nil || got[id] == nil {
		t.Fatalf("result lost after canceled wait: %v, %v", got, err)
	}
}

func TestLocalModelFailureIsModelError(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	fail := func(context.Context, int, response.Variables, response.ActiveSet) (*response.Response, error) {
		return nil, boom
	}
	m := NewLocalModel("bad", fail, LocalOptions{NumFunctions: 1, Async: true})
	if _, err := m.Evaluate(context.Background(), response.Variables{}, response.Uniform(1, response.Value, 0)); !errors.Is(err, boom) {
		t.Errorf("Evaluate error = %v", err)
	}
	_, _ = m.EvaluateAsync(context.Background(), response.Variables{}, response.Uniform(1, response.Value, 0))
	_, err := m.Synchronize(context.Background(), true)
	var modelErr apperrors.ModelError
	if !errors.As(err, &modelErr) || modelErr.Model != "bad" || !errors.Is(err, boom) {
		t.Errorf("Synchronize error = %v, want ModelError wrapping boom", err)
	}
}

func TestLocalModelReportsFailedIDs(t *testing.T) {
	t.Parallel()
	fn := func(_ context.Context, _ int, vars response.Variables, set response.ActiveSet) (*response.Response, error) {
		if vars.Continuous[0] < 0 {
			return nil, errors.New("diverged")
		}
		return response.New(set), nil
	}
	m := NewLocalModel("m", fn, LocalOptions{NumFunctions: 1, Async: true, Concurrency: 2})
	set := response.Uniform(1, response.Value, 0)
	ctx := context.Background()
	for _, x := range []float64{1, -1, 2, -2} {
		if _, err := m.EvaluateAsync(ctx, response.Variables{Continuous: []float64{x}}, set); err != nil {
			t.Fatal(err)
		}
	}
	got, err := m.Synchronize(ctx, true)
	var failed *FailedError
	if !errors.As(err, &failed) {
		t.Fatalf("Synchronize error = %v, want FailedError", err)
	}
	if len(failed.IDs) != 2 || failed.IDs[0] != 2 || failed.IDs[1] != 4 {
		t.Errorf("failed ids = %v, want [2 4]", failed.IDs)
	}
	if len(got) != 2 || got[1] == nil || got[3] == nil {
		t.Errorf("successful completions = %v, want ids 1 and 3", got)
	}
	if m.Outstanding() != 0 {
		t.Errorf("Outstanding() = %d after a full wait", m.Outstanding())
	}
}
