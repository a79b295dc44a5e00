package dispatch

import (
	"fmt"
	"slices"

	"github.com/agbru/hiersurr/internal/activekey"
	"github.com/agbru/hiersurr/internal/ensemble"
	apperrors "github.com/agbru/hiersurr/internal/errors"
	"github.com/agbru/hiersurr/internal/logging"
	"github.com/agbru/hiersurr/internal/response"
)

// Session fixes the response mode and the active keys for a group of
// evaluations. Sessions are cheap values; every evaluation remembers the
// session it was issued under, so several sessions may have evaluations in
// flight at once.
type Session struct {
	id       int
	mode     response.Mode
	keys     activekey.Set
	handler  *modeHandler
	lf, hf   ensemble.Model
	size     int
	async    bool
	capacity int
	same     bool
	pairs    []activekey.Key
}

// SessionOption customizes a session.
type SessionOption func(*sessionConfig)

type sessionConfig struct {
	keys    activekey.Set
	hasKeys bool
}

// WithKeys selects explicit truth and surrogate keys.
func WithKeys(truth, surrogate activekey.Key) SessionOption {
	return func(c *sessionConfig) {
		c.keys = activekey.NewSet(truth, surrogate)
		c.hasKeys = true
	}
}

// WithActiveKey selects the keys derived from an active key. A simple key
// makes the truth and surrogate the same configuration.
func WithActiveKey(active activekey.Key) SessionOption {
	return func(c *sessionConfig) {
		c.keys = activekey.FromActive(active)
		c.hasKeys = true
	}
}

// ID identifies the session inside its dispatcher.
func (s *Session) ID() int { return s.id }

// Mode returns the response mode.
func (s *Session) Mode() response.Mode { return s.mode }

// Keys returns the active key set.
func (s *Session) Keys() activekey.Set { return s.keys }

// NumFunctions is the size of the responses the session returns.
func (s *Session) NumFunctions() int { return s.size }

// Asynchronous reports whether the models the mode can touch overlap
// launched evaluations.
func (s *Session) Asynchronous() bool { return s.async }

// Capacity is the evaluation concurrency the session can use.
func (s *Session) Capacity() int { return s.capacity }

// SameModelInstance reports whether truth and surrogate share one model.
func (s *Session) SameModelInstance() bool { return s.same }

// CorrectionPairs returns the pairs a surrogate result is corrected with.
func (s *Session) CorrectionPairs() []activekey.Key { return append([]activekey.Key(nil), s.pairs...) }

func (s *Session) String() string {
	return fmt.Sprintf("session %d (%s %s)", s.id, s.mode, s.keys.Active)
}

// Session opens a session for mode. All configuration errors a mode can
// hit are reported here, before anything is evaluated.
//
// Returns:
//   - *Session: the validated session.
//   - error: a ConfigError for an unknown mode, a key the ensemble cannot
//     serve, mismatched discrepancy sizes, an impossible correction sweep or
//     an uncorrected session that would need the truth model while a
//     coordinator is attached.
func (d *Dispatcher) Session(mode response.Mode, opts ...SessionOption) (*Session, error) {
	h, ok := handlerFor(mode)
	if !ok {
		return nil, apperrors.NewConfigError("unknown response mode %d", uint8(mode))
	}
	cfg := sessionConfig{keys: d.ens.DefaultKeys()}
	for _, opt := range opts {
		opt(&cfg)
	}
	keys := cfg.keys

	if err := d.ens.Validate(keys.Truth); err != nil {
		return nil, apperrors.WrapError(err, "truth key")
	}
	if err := d.ens.Validate(keys.Surrogate); err != nil {
		return nil, apperrors.WrapError(err, "surrogate key")
	}
	hf, _ := d.ens.Model(keys.Truth.Form())
	lf, _ := d.ens.Model(keys.Surrogate.Form())

	size, err := h.size(hf.NumFunctions(), lf.NumFunctions())
	if err != nil {
		return nil, err
	}
	if mode == response.UncorrectedSurrogate && d.coordinated {
		for i := 0; i < size; i++ {
			if d.surrogateIdx != nil && !slices.Contains(d.surrogateIdx, i) {
				return nil, apperrors.NewConfigError(
					"%s routes output %d to the truth model, which workers cannot serve in this mode", mode, i)
			}
		}
	}
	async, capacity := h.parallel(lf, hf)

	d.sessions++
	s := &Session{
		id:       d.sessions,
		mode:     mode,
		keys:     keys,
		handler:  h,
		lf:       lf,
		hf:       hf,
		size:     size,
		async:    async,
		capacity: max(capacity, 1),
		same:     d.ens.SameInstance(keys.Truth, keys.Surrogate),
	}
	if h.corrected {
		s.pairs, err = d.engine.Pairs(d.propagation, keys, d.ens.NumForms(), d.ens.NumLevels(keys.Surrogate.Form()))
		if err != nil {
			return nil, err
		}
	}
	d.logger.Debug("session opened",
		logging.Int("session", s.id), logging.Stringer("mode", mode), logging.Stringer("key", keys.Active),
		logging.Int("size", size), logging.Bool("async", async), logging.Int("capacity", s.capacity))
	return s, nil
}
