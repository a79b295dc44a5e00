package dispatch

import (
	"context"
	"errors"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/agbru/hiersurr/internal/ensemble"
	apperrors "github.com/agbru/hiersurr/internal/errors"
	"github.com/agbru/hiersurr/internal/logging"
	"github.com/agbru/hiersurr/internal/rekey"
	"github.com/agbru/hiersurr/internal/response"
)

// Synchronize waits for every outstanding asynchronous evaluation and
// returns the combined responses keyed by handle. If ctx ends first the
// context error is returned and every completion gathered so far is kept
// for the next call.
func (d *Dispatcher) Synchronize(ctx context.Context) (map[Handle]*response.Response, error) {
	return d.synchronize(ctx, true)
}

// SynchronizeNowait returns the combined responses that are complete now.
// It never waits; an empty map is a normal result.
func (d *Dispatcher) SynchronizeNowait(ctx context.Context) (map[Handle]*response.Response, error) {
	return d.synchronize(ctx, false)
}

func (d *Dispatcher) synchronize(ctx context.Context, block bool) (map[Handle]*response.Response, error) {
	ctx, span := d.tracer.Start(ctx, "dispatch.Synchronize", trace.WithAttributes(
		attribute.Bool("block", block),
		attribute.Int("outstanding", len(d.owner)),
	))
	defer span.End()

	completed, firstErr, ctxErr := d.collect(ctx, block)

	hi, _ := d.rk.Rekey(rekey.Truth, completed[rekey.Truth])
	lo, _ := d.rk.Rekey(rekey.Surrogate, completed[rekey.Surrogate])
	if ctxErr != nil {
		for top, r := range hi {
			d.rk.Cache(rekey.Truth, top, r)
		}
		for top, r := range lo {
			d.rk.Cache(rekey.Surrogate, top, r)
		}
		span.RecordError(ctxErr)
		return nil, ctxErr
	}
	for top, r := range d.rk.TakeCached(rekey.Truth) {
		hi[top] = r
	}
	for top, r := range d.rk.TakeCached(rekey.Surrogate) {
		lo[top] = r
	}

	if err := d.computeApplyDelta(hi, lo); err != nil && firstErr == nil {
		firstErr = err
	}

	out := make(map[Handle]*response.Response, len(hi)+len(lo)+len(d.empty))
	for top, r := range d.empty {
		out[Handle(top)] = r
		delete(d.empty, top)
	}
	for _, p := range d.pair(lo, hi) {
		s, ok := d.owner[p.Top]
		if !ok {
			continue
		}
		resp, err := s.handler.combine(d, s, p.Hi, p.Lo)
		delete(d.owner, p.Top)
		if err != nil {
			if firstErr == nil {
				firstErr = apperrors.WrapError(err, "combine evaluation %d", p.Top)
			}
			continue
		}
		out[Handle(p.Top)] = resp
		d.recorder.ResponsesEmitted(s.mode, 1)
	}
	d.reportBacklog()
	if firstErr != nil {
		span.RecordError(firstErr)
		span.SetStatus(codes.Error, "synchronize failed")
	}
	span.SetAttributes(attribute.Int("returned", len(out)))
	return out, firstErr
}

// collect synchronizes every model with launches in flight and sorts the
// completions into slots keyed by launch id. A context error stops the
// collection without losing what was already gathered.
func (d *Dispatcher) collect(ctx context.Context, block bool) (completed [2]map[int]*response.Response, firstErr, ctxErr error) {
	completed[rekey.Surrogate] = make(map[int]*response.Response)
	completed[rekey.Truth] = make(map[int]*response.Response)

	seen := make(map[ensemble.Model]bool)
	for _, m := range d.ens.Models() {
		if seen[m] {
			continue
		}
		seen[m] = true
		ids := d.launches[m]
		if len(ids) == 0 {
			continue
		}
		res, err := m.Synchronize(ctx, block)
		if err != nil {
			if apperrors.IsContextError(err) {
				return completed, firstErr, err
			}
			d.logger.Error("synchronize failed", err, logging.String("model", m.Name()))
			if firstErr == nil {
				firstErr = modelError(m, err)
			}
			var failed *ensemble.FailedError
			if errors.As(err, &failed) {
				for _, sub := range failed.IDs {
					launch, ok := ids[sub]
					if !ok {
						continue
					}
					delete(ids, sub)
					if d.discarded[launch] {
						delete(d.discarded, launch)
						continue
					}
					d.abandon(completed, launch)
				}
			}
		}
		for sub, resp := range res {
			launch, ok := ids[sub]
			if !ok {
				if firstErr == nil {
					firstErr = apperrors.RekeyError{Slot: -1, SubID: sub}
				}
				continue
			}
			delete(ids, sub)
			if d.discarded[launch] {
				delete(d.discarded, launch)
				continue
			}
			slot, ok := d.rk.SlotOf(launch)
			if !ok {
				if firstErr == nil {
					firstErr = apperrors.RekeyError{Slot: -1, SubID: sub}
				}
				continue
			}
			completed[slot][launch] = resp
		}
	}
	return completed, firstErr, nil
}

// abandon drops the top-level evaluation a failed launch belonged to. Every
// trace of it goes: the owner entry, the pending and cached entries of both
// slots and the raw variables. A partner completion already collected in
// this pass is removed from completed; one still running is discarded when
// it arrives.
func (d *Dispatcher) abandon(completed [2]map[int]*response.Response, failed int) {
	top, ok := d.rk.TopOf(failed)
	if !ok {
		return
	}
	for _, launch := range d.rk.Forget(top) {
		if launch == failed {
			continue
		}
		if _, ok := completed[rekey.Surrogate][launch]; ok {
			delete(completed[rekey.Surrogate], launch)
			continue
		}
		if _, ok := completed[rekey.Truth][launch]; ok {
			delete(completed[rekey.Truth], launch)
			continue
		}
		d.discarded[launch] = true
	}
	delete(d.owner, top)
	d.logger.Warn("evaluation abandoned", logging.Int("eval_id", top), logging.Int("launch", failed))
}

// pair groups the completions by whether their session needs both
// fidelities and hands each group to the rekeyer.
func (d *Dispatcher) pair(lo, hi map[int]*response.Response) []rekey.Pairing {
	var group [2][2]map[int]*response.Response
	for b := range group {
		group[b][rekey.Surrogate] = make(map[int]*response.Response)
		group[b][rekey.Truth] = make(map[int]*response.Response)
	}
	place := func(slot rekey.Slot, m map[int]*response.Response) {
		for top, r := range m {
			b := 0
			if s, ok := d.owner[top]; ok && s.handler.requireBoth {
				b = 1
			}
			group[b][slot][top] = r
		}
	}
	place(rekey.Surrogate, lo)
	place(rekey.Truth, hi)

	out := d.rk.Pair(group[0][rekey.Surrogate], group[0][rekey.Truth], false)
	out = append(out, d.rk.Pair(group[1][rekey.Surrogate], group[1][rekey.Truth], true)...)
	sort.Slice(out, func(i, j int) bool { return out[i].Top < out[j].Top })
	return out
}

// computeApplyDelta corrects surrogate completions of corrected sessions.
// When a session's correction is not computed yet it is computed from the
// completion with the lowest id, and only once that completion is in hand;
// until then the other completions wait in the cache uncorrected, together
// with any truth data of the same evaluation, so the result never depends
// on completion order.
func (d *Dispatcher) computeApplyDelta(hi, lo map[int]*response.Response) error {
	bySession := make(map[*Session][]int)
	for top := range lo {
		if _, ok := d.rk.Vars(top); !ok {
			continue
		}
		if s, ok := d.owner[top]; ok && s.handler.corrected {
			bySession[s] = append(bySession[s], top)
		}
	}
	sessions := make([]*Session, 0, len(bySession))
	for s := range bySession {
		sessions = append(sessions, s)
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].id < sessions[j].id })

	for _, s := range sessions {
		tops := bySession[s]
		sort.Ints(tops)

		ready := d.correctionsComputed(s)
		if !ready {
			for _, first := range d.rk.VarsIDs() {
				if d.owner[first] != s {
					continue
				}
				if _, ok := lo[first]; ok {
					ready = true
				}
				break
			}
		}
		for _, top := range tops {
			if !ready {
				d.rk.Cache(rekey.Surrogate, top, lo[top])
				delete(lo, top)
				if h, ok := hi[top]; ok {
					d.rk.Cache(rekey.Truth, top, h)
					delete(hi, top)
				}
				continue
			}
			vars, _ := d.rk.Vars(top)
			r := lo[top].Copy()
			if err := d.correct(s, vars, r); err != nil {
				return err
			}
			lo[top] = r
			d.rk.DropVars(top)
		}
	}
	return nil
}

func (d *Dispatcher) correctionsComputed(s *Session) bool {
	for _, p := range s.pairs {
		if !d.engine.Computed(p) {
			return false
		}
	}
	return true
}
