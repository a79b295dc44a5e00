package parallel

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/agbru/hiersurr/internal/activekey"
	"github.com/agbru/hiersurr/internal/logging"
	"github.com/agbru/hiersurr/internal/response"
)

// TransitionFunc observes a coordinator state change.
type TransitionFunc func(from, to State)

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithLogger sets the coordinator logger.
func WithLogger(l logging.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.logger = l }
}

// WithTransitionHook registers a function called after every transition.
func WithTransitionHook(fn TransitionFunc) CoordinatorOption {
	return func(c *Coordinator) { c.onTransition = fn }
}

// WithRunID overrides the generated run id.
func WithRunID(id uuid.UUID) CoordinatorOption {
	return func(c *Coordinator) { c.runID = id }
}

// Coordinator tracks the live fidelity and announces changes. It is owned by
// the controlling goroutine.
type Coordinator struct {
	b            Broadcaster
	logger       logging.Logger
	onTransition TransitionFunc
	runID        uuid.UUID
	seq          uint64
	state        State
	mode         response.Mode
	key          activekey.Key
	transitions  int
}

// NewCoordinator creates an Idle coordinator announcing on b.
func NewCoordinator(b Broadcaster, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{b: b, logger: logging.Nop(), runID: uuid.New()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunID identifies the coordinator in every announcement.
func (c *Coordinator) RunID() uuid.UUID { return c.runID }

// State returns the live state.
func (c *Coordinator) State() State { return c.state }

// Key returns the key of the live model.
func (c *Coordinator) Key() activekey.Key { return c.key }

// Transitions returns the number of transitions announced so far.
func (c *Coordinator) Transitions() int { return c.transitions }

// Activate makes state the live fidelity for key under mode. Nothing is
// announced when neither the state nor the key changed. Otherwise the
// previous model is told to stop before the new state is announced.
//
// Parameters:
//   - ctx: bounds the broadcasts.
//   - state: the fidelity to serve.
//   - mode: the response mode of the session driving the change.
//   - key: the simple key of the model to serve.
//
// Returns:
//   - error: the first broadcast failure.
func (c *Coordinator) Activate(ctx context.Context, state State, mode response.Mode, key activekey.Key) error {
	if state == c.state && key == c.key {
		c.mode = mode
		return nil
	}
	if c.state != Idle {
		if err := c.announce(ctx, Announcement{Stop: true, State: c.state, Mode: c.mode, Form: c.key.Form(), Level: c.key.Level()}); err != nil {
			return fmt.Errorf("stop %s: %w", c.state, err)
		}
	}
	if err := c.announce(ctx, Announcement{State: state, Mode: mode, Form: key.Form(), Level: key.Level()}); err != nil {
		return fmt.Errorf("activate %s: %w", state, err)
	}
	from := c.state
	c.state, c.mode, c.key = state, mode, key
	c.transitions++
	c.logger.Debug("parallel mode transition",
		logging.Stringer("from", from), logging.Stringer("to", state), logging.Stringer("key", key))
	if c.onTransition != nil {
		c.onTransition(from, state)
	}
	return nil
}

// Shutdown stops the live model and announces the terminal Idle state.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	if c.state != Idle {
		if err := c.announce(ctx, Announcement{Stop: true, State: c.state, Mode: c.mode, Form: c.key.Form(), Level: c.key.Level()}); err != nil {
			return err
		}
	}
	if err := c.announce(ctx, Announcement{State: Idle, Mode: c.mode, Level: activekey.NoLevel}); err != nil {
		return err
	}
	from := c.state
	c.state, c.key = Idle, activekey.Key{}
	if c.onTransition != nil && from != Idle {
		c.onTransition(from, Idle)
	}
	return nil
}

func (c *Coordinator) announce(ctx context.Context, a Announcement) error {
	c.seq++
	a.Seq = c.seq
	a.RunID = c.runID.String()
	return c.b.Broadcast(ctx, a)
}
