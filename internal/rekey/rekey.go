// Package rekey re-associates asynchronous completions with the top-level
// evaluations that requested them.
//
// Each fidelity slot keeps a pending map from model-local ids to top-level
// ids and a cache of top-level results that could not be returned yet.
// Once a result leaves the Rekeyer it is keyed by its top-level id.
//
// A Rekeyer is owned by a single goroutine and is not safe for concurrent use.
package rekey

import (
	"fmt"
	"sort"

	"github.com/agbru/hiersurr/internal/response"
)

// Slot selects a fidelity.
type Slot int

const (
	Surrogate Slot = iota
	Truth
	numSlots
)

func (s Slot) String() string {
	switch s {
	case Surrogate:
		return "surrogate"
	case Truth:
		return "truth"
	}
	return fmt.Sprintf("slot(%d)", int(s))
}

// Pairing is one top-level evaluation ready to be combined. Either side is
// nil when that fidelity was not part of the evaluation.
type Pairing struct {
	Top int
	Hi  *response.Response
	Lo  *response.Response
}

// Rekeyer holds the pending, cached and raw-variable maps.
type Rekeyer struct {
	pending  [numSlots]map[int]int
	inverse  [numSlots]map[int]int
	cached   [numSlots]map[int]*response.Response
	launched map[int]uint8
	vars     map[int]response.Variables
}

// New returns an empty Rekeyer.
func New() *Rekeyer {
	r := &Rekeyer{
		launched: make(map[int]uint8),
		vars:     make(map[int]response.Variables),
	}
	for s := range r.pending {
		r.pending[s] = make(map[int]int)
		r.inverse[s] = make(map[int]int)
		r.cached[s] = make(map[int]*response.Response)
	}
	return r
}

// Track records that model-local id sub in slot belongs to top.
func (r *Rekeyer) Track(slot Slot, sub, top int) {
	r.pending[slot][sub] = top
	r.inverse[slot][top] = sub
	r.launched[top] |= 1 << slot
}

// Cache stores a top-level result for a later synchronize pass.
func (r *Rekeyer) Cache(slot Slot, top int, resp *response.Response) {
	r.cached[slot][top] = resp
	r.launched[top] |= 1 << slot
}

// Rekey rewrites completions from model-local ids to top-level ids and
// forgets their pending entries. Completions for ids that were never
// tracked are returned separately and left out of the result.
func (r *Rekeyer) Rekey(slot Slot, completed map[int]*response.Response) (map[int]*response.Response, []int) {
	out := make(map[int]*response.Response, len(completed))
	var unknown []int
	for sub, resp := range completed {
		top, ok := r.pending[slot][sub]
		if !ok {
			unknown = append(unknown, sub)
			continue
		}
		delete(r.pending[slot], sub)
		delete(r.inverse[slot], top)
		out[top] = resp
	}
	sort.Ints(unknown)
	return out, unknown
}

// SlotOf returns the slot in which model-local id sub is pending.
func (r *Rekeyer) SlotOf(sub int) (Slot, bool) {
	for s := range r.pending {
		if _, ok := r.pending[s][sub]; ok {
			return Slot(s), true
		}
	}
	return 0, false
}

// TopOf returns the top-level id model-local id sub is pending for.
func (r *Rekeyer) TopOf(sub int) (int, bool) {
	for s := range r.pending {
		if top, ok := r.pending[s][sub]; ok {
			return top, true
		}
	}
	return 0, false
}

// Forget drops every trace of top: its pending entries in both slots, its
// cached results and its stored variables. It returns the model-local ids
// that were still pending for top, in ascending order.
func (r *Rekeyer) Forget(top int) []int {
	var subs []int
	for s := range r.pending {
		if sub, ok := r.inverse[s][top]; ok {
			delete(r.pending[s], sub)
			delete(r.inverse[s], top)
			subs = append(subs, sub)
		}
		delete(r.cached[s], top)
	}
	delete(r.launched, top)
	delete(r.vars, top)
	sort.Ints(subs)
	return subs
}

// TakeCached removes and returns every cached result of a slot.
func (r *Rekeyer) TakeCached(slot Slot) map[int]*response.Response {
	out := r.cached[slot]
	r.cached[slot] = make(map[int]*response.Response)
	return out
}

// PendingTop reports whether top still waits on a completion in slot.
func (r *Rekeyer) PendingTop(slot Slot, top int) bool {
	_, ok := r.inverse[slot][top]
	return ok
}

// Pending returns the number of outstanding completions in slot.
func (r *Rekeyer) Pending(slot Slot) int { return len(r.pending[slot]) }

// PendingIDs returns the pending top-level ids of slot in ascending order.
func (r *Rekeyer) PendingIDs(slot Slot) []int {
	ids := make([]int, 0, len(r.inverse[slot]))
	for top := range r.inverse[slot] {
		ids = append(ids, top)
	}
	sort.Ints(ids)
	return ids
}

// CachedCount returns the number of cached results in slot.
func (r *Rekeyer) CachedCount(slot Slot) int { return len(r.cached[slot]) }

// Outstanding returns the number of top-level ids launched but not emitted.
func (r *Rekeyer) Outstanding() int { return len(r.launched) }

// StoreVars keeps the variables of a surrogate evaluation awaiting correction.
func (r *Rekeyer) StoreVars(top int, vars response.Variables) { r.vars[top] = vars.Copy() }

// Vars returns the stored variables for top.
func (r *Rekeyer) Vars(top int) (response.Variables, bool) {
	v, ok := r.vars[top]
	return v, ok
}

// DropVars forgets the stored variables for top.
func (r *Rekeyer) DropVars(top int) { delete(r.vars, top) }

// FirstVars returns the stored variables with the lowest top-level id.
func (r *Rekeyer) FirstVars() (int, response.Variables, bool) {
	first, found := 0, false
	for top := range r.vars {
		if !found || top < first {
			first, found = top, true
		}
	}
	if !found {
		return 0, response.Variables{}, false
	}
	return first, r.vars[first], true
}

// VarsIDs returns the top-level ids with stored variables in ascending order.
func (r *Rekeyer) VarsIDs() []int {
	ids := make([]int, 0, len(r.vars))
	for top := range r.vars {
		ids = append(ids, top)
	}
	sort.Ints(ids)
	return ids
}

// VarsCount returns the number of stored variable sets.
func (r *Rekeyer) VarsCount() int { return len(r.vars) }

// Pair walks lo and hi in ascending top-level id and returns the
// evaluations that are complete. A one-sided result is cached in its slot
// while its partner is still pending, or, with requireBoth, whenever its
// partner was launched for the same id and is not in hand. Everything else
// is returned exactly once, in ascending id order.
func (r *Rekeyer) Pair(lo, hi map[int]*response.Response, requireBoth bool) []Pairing {
	ids := make([]int, 0, len(lo)+len(hi))
	for top := range lo {
		ids = append(ids, top)
	}
	for top := range hi {
		if _, dup := lo[top]; !dup {
			ids = append(ids, top)
		}
	}
	sort.Ints(ids)

	out := make([]Pairing, 0, len(ids))
	for _, top := range ids {
		l, hasLo := lo[top]
		h, hasHi := hi[top]
		switch {
		case hasLo && hasHi:
		case hasHi && r.waits(Surrogate, top, requireBoth):
			r.cached[Truth][top] = h
			continue
		case hasLo && r.waits(Truth, top, requireBoth):
			r.cached[Surrogate][top] = l
			continue
		}
		delete(r.launched, top)
		out = append(out, Pairing{Top: top, Hi: h, Lo: l})
	}
	return out
}

func (r *Rekeyer) waits(partner Slot, top int, requireBoth bool) bool {
	if r.PendingTop(partner, top) {
		return true
	}
	return requireBoth && r.launched[top]&(1<<partner) != 0
}
