package activekey

// Set carries the three distinguished keys that are active together: the
// truth configuration, the surrogate configuration and their aggregate.
type Set struct {
	Truth     Key
	Surrogate Key
	Active    Key
}

// NewSet builds a Set whose Active key is the single-reduction aggregate of
// truth and surrogate.
func NewSet(truth, surrogate Key) Set {
	return Set{Truth: truth, Surrogate: surrogate, Active: Aggregate(truth, surrogate, SingleReduction)}
}

// FromActive re-derives truth and surrogate from an active key. It has no
// side effects and is idempotent: FromActive(s.Active) == s for any Set
// built by NewSet.
func FromActive(active Key) Set {
	truth, surrogate := active.Split()
	return Set{Truth: truth, Surrogate: surrogate, Active: active}
}

// SameConfiguration reports whether truth and surrogate name the same
// fidelity configuration.
func (s Set) SameConfiguration() bool {
	return s.Truth.Component(0) == s.Surrogate.Component(0)
}
