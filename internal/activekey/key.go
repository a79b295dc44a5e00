// Package activekey identifies fidelity configurations. A Key names either a
// single model form / resolution level or an aggregate pair of them (truth
// first, surrogate second) under a reduction tag. Keys are comparable values
// and can be used directly as map keys.
package activekey

import (
	"fmt"
	"strings"
)

// NoLevel marks a key component that carries no resolution dimension.
const NoLevel = -1

// Reduction describes how the components of an aggregate key are combined.
type Reduction uint8

const (
	// RawData keeps the components' data separate.
	RawData Reduction = iota
	// SingleReduction collapses a pair into a single discrepancy.
	SingleReduction
)

func (r Reduction) String() string {
	switch r {
	case RawData:
		return "raw"
	case SingleReduction:
		return "single"
	}
	return fmt.Sprintf("reduction(%d)", uint8(r))
}

// Fidelity is one concrete model configuration: a model form index in the
// ordered ensemble and an optional resolution level within that form.
type Fidelity struct {
	Form  int
	Level int
}

// HasLevel reports whether the component carries a resolution level.
func (f Fidelity) HasLevel() bool { return f.Level != NoLevel }

func (f Fidelity) String() string {
	if !f.HasLevel() {
		return fmt.Sprintf("m%d", f.Form)
	}
	return fmt.Sprintf("m%d.l%d", f.Form, f.Level)
}

// maxComponents bounds the aggregate size; the hierarchy only ever pairs
// a truth and a surrogate configuration.
const maxComponents = 2

// Key is an immutable identifier for one fidelity configuration or an
// aggregate of two. The zero Key is empty.
type Key struct {
	Tag       int
	Reduction Reduction
	n         uint8
	data      [maxComponents]Fidelity
}

// New returns a simple key for a single fidelity configuration.
func New(tag, form, level int) Key {
	return Key{Tag: tag, Reduction: RawData, n: 1, data: [maxComponents]Fidelity{{Form: form, Level: level}}}
}

// Aggregate pairs a truth key and a surrogate key. Both must be simple keys;
// the tag is taken from the truth key.
func Aggregate(truth, surrogate Key, r Reduction) Key {
	return Key{
		Tag:       truth.Tag,
		Reduction: r,
		n:         maxComponents,
		data:      [maxComponents]Fidelity{truth.Component(0), surrogate.Component(0)},
	}
}

// IsEmpty reports whether the key names nothing.
func (k Key) IsEmpty() bool { return k.n == 0 }

// IsAggregated reports whether the key pairs two configurations.
func (k Key) IsAggregated() bool { return k.n == maxComponents }

// Len returns the number of components.
func (k Key) Len() int { return int(k.n) }

// Component returns the i-th component. Out of range components are
// reported as form 0 without a level.
func (k Key) Component(i int) Fidelity {
	if i < 0 || i >= int(k.n) {
		return Fidelity{Form: 0, Level: NoLevel}
	}
	return k.data[i]
}

// Form returns the model form of the leading component.
func (k Key) Form() int { return k.Component(0).Form }

// Level returns the resolution level of the leading component, or NoLevel.
func (k Key) Level() int { return k.Component(0).Level }

// Split separates an aggregate into its truth and surrogate keys. A simple
// key is returned as both.
func (k Key) Split() (truth, surrogate Key) {
	if !k.IsAggregated() {
		return k, k
	}
	truth = Key{Tag: k.Tag, Reduction: RawData, n: 1, data: [maxComponents]Fidelity{k.data[0]}}
	surrogate = Key{Tag: k.Tag, Reduction: RawData, n: 1, data: [maxComponents]Fidelity{k.data[1]}}
	return truth, surrogate
}

// WithTag returns a copy with a different tag.
func (k Key) WithTag(tag int) Key {
	k.Tag = tag
	return k
}

// WithForm returns a copy whose i-th component uses the given model form.
func (k Key) WithForm(i, form int) Key {
	if i >= 0 && i < int(k.n) {
		k.data[i].Form = form
	}
	return k
}

// WithLevel returns a copy whose i-th component uses the given level.
func (k Key) WithLevel(i, level int) Key {
	if i >= 0 && i < int(k.n) {
		k.data[i].Level = level
	}
	return k
}

// Less defines a total order over keys: by tag, then component count,
// then component forms and levels, then reduction.
func (k Key) Less(o Key) bool {
	if k.Tag != o.Tag {
		return k.Tag < o.Tag
	}
	if k.n != o.n {
		return k.n < o.n
	}
	for i := 0; i < int(k.n); i++ {
		a, b := k.data[i], o.data[i]
		if a.Form != b.Form {
			return a.Form < b.Form
		}
		if a.Level != b.Level {
			return a.Level < b.Level
		}
	}
	return k.Reduction < o.Reduction
}

func (k Key) String() string {
	if k.IsEmpty() {
		return "{}"
	}
	parts := make([]string, 0, k.n)
	for i := 0; i < int(k.n); i++ {
		parts = append(parts, k.data[i].String())
	}
	if k.IsAggregated() {
		return fmt.Sprintf("{%d:%s|%s}", k.Tag, strings.Join(parts, ","), k.Reduction)
	}
	return fmt.Sprintf("{%d:%s}", k.Tag, parts[0])
}
