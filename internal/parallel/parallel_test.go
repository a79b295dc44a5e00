package parallel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/agbru/hiersurr/internal/activekey"
	"github.com/agbru/hiersurr/internal/ensemble"
	apperrors "github.com/agbru/hiersurr/internal/errors"
	"github.com/agbru/hiersurr/internal/response"
)

type recorder struct{ got []Announcement }

func (r *recorder) Broadcast(_ context.Context, a Announcement) error {
	r.got = append(r.got, a)
	return nil
}

func constant(v float64) ensemble.Func {
	return func(_ context.Context, _ int, _ response.Variables, set response.ActiveSet) (*response.Response, error) {
		r := response.New(set)
		for i := range r.Values {
			r.Values[i] = v
		}
		return r, nil
	}
}

func twoModels(t *testing.T) *ensemble.Ensemble {
	t.Helper()
	e, err := ensemble.New(
		ensemble.NewLocalModel("lo", constant(1), ensemble.LocalOptions{NumFunctions: 1}),
		ensemble.NewLocalModel("hi", constant(2), ensemble.LocalOptions{NumFunctions: 1}),
	)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

var (
	loKey = activekey.New(0, 0, activekey.NoLevel)
	hiKey = activekey.New(0, 1, activekey.NoLevel)
)

func TestCoordinatorAnnouncesStopThenActivate(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	var transitions []State
	id := uuid.New()
	c := NewCoordinator(rec, WithRunID(id), WithTransitionHook(func(_, to State) { transitions = append(transitions, to) }))
	ctx := context.Background()

	if err := c.Activate(ctx, SurrogateActive, response.AutoCorrectedSurrogate, loKey); err != nil {
		t.Fatal(err)
	}
	// same state and key: nothing announced
	_ = c.Activate(ctx, SurrogateActive, response.AutoCorrectedSurrogate, loKey)
	if err := c.Activate(ctx, TruthActive, response.AutoCorrectedSurrogate, hiKey); err != nil {
		t.Fatal(err)
	}
	if err := c.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}

	want := []struct {
		stop  bool
		state State
		form  int
	}{
		{false, SurrogateActive, 0},
		{true, SurrogateActive, 0},
		{false, TruthActive, 1},
		{true, TruthActive, 1},
		{false, Idle, 0},
	}
	if len(rec.got) != len(want) {
		t.Fatalf("announced %v", rec.got)
	}
	for i, w := range want {
		a := rec.got[i]
		if a.Stop != w.stop || a.State != w.state || a.Form != w.form {
			t.Errorf("announcement %d = %s, want stop=%v %s m%d", i, a, w.stop, w.state, w.form)
		}
		if a.Seq != uint64(i+1) || a.RunID != id.String() {
			t.Errorf("announcement %d seq/run = %d/%s", i, a.Seq, a.RunID)
		}
	}
	if c.Transitions() != 2 || c.State() != Idle {
		t.Errorf("transitions %d state %s", c.Transitions(), c.State())
	}
	if len(transitions) != 3 || transitions[2] != Idle {
		t.Errorf("hook saw %v", transitions)
	}
}

func TestCoordinatorBroadcastFailure(t *testing.T) {
	t.Parallel()
	boom := errors.New("down")
	c := NewCoordinator(BroadcasterFunc(func(context.Context, Announcement) error { return boom }))
	if err := c.Activate(context.Background(), TruthActive, response.BypassSurrogate, hiKey); !errors.Is(err, boom) {
		t.Errorf("Activate() error = %v", err)
	}
	if c.State() != Idle {
		t.Error("state changed despite failed broadcast")
	}
}

func TestWorkerRoutesToDesignatedModel(t *testing.T) {
	t.Parallel()
	w := NewWorker("w0", twoModels(t), nil)
	ctx := context.Background()
	set := response.Uniform(1, response.Value, 0)

	if _, err := w.Evaluate(ctx, response.Variables{}, set); !errors.Is(err, ErrNoActiveModel) {
		t.Fatalf("Evaluate before activation error = %v", err)
	}
	if _, err := w.Handle(Announcement{Seq: 1, State: TruthActive, Mode: response.BypassSurrogate, Form: 1, Level: activekey.NoLevel}); err != nil {
		t.Fatal(err)
	}
	r, err := w.Evaluate(ctx, response.Variables{}, set)
	if err != nil || r.Values[0] != 2 {
		t.Fatalf("truth evaluation = %v, %v", r, err)
	}
	if _, err := w.Handle(Announcement{Seq: 2, Stop: true, State: TruthActive, Form: 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Evaluate(ctx, response.Variables{}, set); !errors.Is(err, ErrNoActiveModel) {
		t.Errorf("Evaluate after stop error = %v", err)
	}
	// a replayed announcement is ignored
	_, _ = w.Handle(Announcement{Seq: 1, State: TruthActive, Mode: response.BypassSurrogate, Form: 1, Level: activekey.NoLevel})
	if w.State() != TruthActive || w.Served() != 1 {
		t.Errorf("state %s served %d", w.State(), w.Served())
	}
}

func TestWorkerRejectsTruthUnderUncorrected(t *testing.T) {
	t.Parallel()
	w := NewWorker("w0", twoModels(t), nil)
	in := make(chan Announcement, 1)
	in <- Announcement{Seq: 1, State: TruthActive, Mode: response.UncorrectedSurrogate, Form: 1, Level: activekey.NoLevel}
	var cfgErr apperrors.ConfigError
	if err := w.Serve(context.Background(), in); !errors.As(err, &cfgErr) {
		t.Errorf("Serve() error = %v, want ConfigError", err)
	}
}

func TestRunWorkersEndToEnd(t *testing.T) {
	t.Parallel()
	b := NewChannelBroadcaster()
	workers := []*Worker{NewWorker("w0", twoModels(t), nil), NewWorker("w1", twoModels(t), nil)}
	subs := []<-chan Announcement{b.Subscribe(8), b.Subscribe(8)}
	c := NewCoordinator(b)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- RunWorkers(ctx, workers, subs) }()

	if err := c.Activate(ctx, SurrogateActive, response.UncorrectedSurrogate, loKey); err != nil {
		t.Fatal(err)
	}
	if err := c.Activate(ctx, TruthActive, response.ModelDiscrepancy, hiKey); err != nil {
		t.Fatal(err)
	}
	if err := c.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}
	if err := <-done; err != nil {
		t.Fatalf("RunWorkers() = %v", err)
	}
	for _, w := range workers {
		if w.State() != Idle {
			t.Errorf("worker left in %s", w.State())
		}
	}
	b.Close()
	if _, ok := <-b.Subscribe(1); ok {
		t.Error("subscription after Close should be closed")
	}
}

func TestRunWorkersMismatch(t *testing.T) {
	t.Parallel()
	if err := RunWorkers(context.Background(), []*Worker{NewWorker("w", twoModels(t), nil)}, nil); err == nil {
		t.Error("expected error for missing subscription")
	}
}
