// Package diff provides deep equality and deep merge over loosely-typed
// record values, with configurable scalar normalization.
//
// Records coming off the wire are map[string]any trees; the editor needs to
// know whether an in-progress edit actually changed anything before it pays
// for a write. Equality here is structural: maps against maps, slices against
// slices, instants by their (seconds, nanos) pair, everything else by ==.
package diff

import (
	"fmt"
	"reflect"
)

// Instant is implemented by point-in-time values that compare by their
// seconds/nanoseconds pair regardless of any other state they carry.
// Which values are instants is decided once, where records are decoded,
// never re-inferred per comparison.
type Instant interface {
	InstantParts() (seconds, nanos int64)
}

type undefined struct{}

// Undefined is the "value not set" marker, distinct from nil: a field edited
// to Undefined is cleared, a field set to nil holds an explicit null.
var Undefined = undefined{}

// Normalization selects scalar rewrites applied to both sides before
// comparing. The zero value applies none.
type Normalization struct {
	// FalseIsUndefined treats boolean false as Undefined.
	FalseIsUndefined bool

	// EmptyStringIsNil treats "" as null. Mutually exclusive with
	// EmptyStringIsUndefined.
	EmptyStringIsNil bool

	// EmptyStringIsUndefined treats "" as Undefined. Mutually exclusive
	// with EmptyStringIsNil.
	EmptyStringIsUndefined bool

	// NilIsUndefined treats null as Undefined. Mutually exclusive with
	// UndefinedIsNil.
	NilIsUndefined bool

	// UndefinedIsNil treats Undefined as null. Mutually exclusive with
	// NilIsUndefined.
	UndefinedIsNil bool
}

func (n Normalization) validate() error {
	if n.EmptyStringIsNil && n.EmptyStringIsUndefined {
		return fmt.Errorf("diff: EmptyStringIsNil and EmptyStringIsUndefined are mutually exclusive")
	}
	if n.NilIsUndefined && n.UndefinedIsNil {
		return fmt.Errorf("diff: NilIsUndefined and UndefinedIsNil are mutually exclusive")
	}
	return nil
}

// apply rewrites a scalar in a fixed order: false first, then empty string,
// then the nil/Undefined pair.
func (n Normalization) apply(v any) any {
	if n.FalseIsUndefined {
		if b, ok := v.(bool); ok && !b {
			v = Undefined
		}
	}
	if s, ok := v.(string); ok && s == "" {
		switch {
		case n.EmptyStringIsNil:
			v = nil
		case n.EmptyStringIsUndefined:
			v = Undefined
		}
	}
	if n.NilIsUndefined && v == nil {
		v = any(Undefined)
	}
	if n.UndefinedIsNil && v == any(Undefined) {
		v = nil
	}
	return v
}

// Equal reports whether a and b are deeply equal with no normalization.
// In strict mode map comparisons additionally require identical key sets;
// non-strict comparison ignores keys present on only one side.
func Equal(a, b any, strict bool) bool {
	ok, _ := EqualWith(a, b, strict, Normalization{})
	return ok
}

// EqualWith is Equal with scalar normalization. Conflicting normalization
// toggles are a usage error, reported immediately.
func EqualWith(a, b any, strict bool, norm Normalization) (bool, error) {
	if err := norm.validate(); err != nil {
		return false, err
	}
	return equal(a, b, strict, norm), nil
}

func equal(a, b any, strict bool, norm Normalization) bool {
	// Instants compare by parts only; extra state on either side is ignored.
	ia, aok := a.(Instant)
	ib, bok := b.(Instant)
	if aok || bok {
		if !aok || !bok {
			return false
		}
		asec, anano := ia.InstantParts()
		bsec, bnano := ib.InstantParts()
		return asec == bsec && anano == bnano
	}

	am, aIsMap := a.(map[string]any)
	bm, bIsMap := b.(map[string]any)
	al, aIsList := a.([]any)
	bl, bIsList := b.([]any)

	switch {
	case aIsMap || bIsMap:
		if !aIsMap || !bIsMap {
			return false
		}
		return equalMaps(am, bm, strict, norm)
	case aIsList || bIsList:
		if !aIsList || !bIsList {
			return false
		}
		if len(al) != len(bl) {
			return false
		}
		for i := range al {
			if !equal(al[i], bl[i], strict, norm) {
				return false
			}
		}
		return true
	}

	return scalarEqual(a, b, norm)
}

func equalMaps(a, b map[string]any, strict bool, norm Normalization) bool {
	if strict {
		if len(a) != len(b) {
			return false
		}
		for k := range a {
			if _, ok := b[k]; !ok {
				return false
			}
		}
		for k := range b {
			if _, ok := a[k]; !ok {
				return false
			}
		}
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok {
			continue // one-sided keys are ignored outside strict mode
		}
		if !equal(av, bv, strict, norm) {
			return false
		}
	}
	return true
}

func scalarEqual(a, b any, norm Normalization) bool {
	a = norm.apply(a)
	b = norm.apply(b)
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if !reflect.TypeOf(a).Comparable() || !reflect.TypeOf(b).Comparable() {
		// Maps and slices are handled before the scalar path; this catches
		// the likes of funcs smuggled into a record.
		return false
	}
	return a == b
}
