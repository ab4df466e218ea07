package mars

import "fmt"

// Type is the per-key behavior descriptor spec.md §4.7 requires: every
// MARS key (class, date, step, levtype, ...) is backed by exactly one Type,
// shared by reference across every Parameter that uses it. Types are built
// once from a language definition and are immutable afterwards — see the
// "shared mutable defaults" hazard noted in DESIGN.md.
type Type interface {
	Name() string
	Category() string

	// Flatten reports whether this key participates in cartesian
	// expansion (the Range row of spec.md §4.7).
	Flatten() bool
	// Multiple reports whether this key admits more than one value.
	Multiple() bool
	// Duplicates reports whether Expand should keep repeated values
	// rather than deduplicating them.
	Duplicates() bool
	// Defaults returns the key's default values, or nil if it has none.
	Defaults() []string
	// Only and Never are the cross-key activation/exclusion constraint
	// maps: keyed by another parameter's name, valued by the set of that
	// parameter's values under which this Type is allowed (Only) or
	// forbidden (Never).
	Only() map[string][]string
	Never() map[string][]string

	// Expand normalizes raw values into the Type's canonical form. It may
	// change the number of values (e.g. IntegerRange enumeration) and
	// must be idempotent when reapplied to its own output.
	Expand(values []string) ([]string, error)
	// Tidy canonicalizes a single value without validating it.
	Tidy(value string) string
	// Check validates already-expanded values, independent of any other
	// parameter in the request.
	Check(values []string) error
	// Pass2 runs after every parameter's first-pass Expand/Check has
	// completed and may read sibling parameters of req via key.
	Pass2(req *Request, key string) error
	// Finalise runs last and returns any remaining problem as an error; the
	// expansion engine treats that error as fatal in strict mode and logs it
	// as a warning otherwise.
	Finalise(req *Request, key string, strict bool) error

	// Filter mutates values to their intersection with filterValues per
	// this Type's equality semantics, returning false if that
	// intersection is empty.
	Filter(filterValues, values []string) (bool, []string)
	// Matches is the pure-predicate form of Filter.
	Matches(filterValues, values []string) bool
	// Count returns the cartesian cardinality values contributes.
	Count(values []string) int
}

// baseType implements every Type method with the common, Type-independent
// behavior (constraint maps, generic set-intersection filtering, a no-op
// Pass2, and a Finalise that enforces the only/never maps). Concrete Types
// embed it and override Expand and
// whichever other methods need real logic.
type baseType struct {
	name       string
	category   string
	flatten    bool
	multiple   bool
	duplicates bool
	defaults   []string
	only       map[string][]string
	never      map[string][]string
}

func (t *baseType) Name() string                { return t.name }
func (t *baseType) Category() string            { return t.category }
func (t *baseType) Flatten() bool               { return t.flatten }
func (t *baseType) Multiple() bool              { return t.multiple }
func (t *baseType) Duplicates() bool            { return t.duplicates }
func (t *baseType) Defaults() []string          { return t.defaults }
func (t *baseType) Only() map[string][]string   { return t.only }
func (t *baseType) Never() map[string][]string  { return t.never }

func (t *baseType) Tidy(value string) string { return value }

func (t *baseType) Check(values []string) error { return nil }

func (t *baseType) Pass2(req *Request, key string) error { return nil }

// Finalise enforces this Type's only/never cross-key constraints against
// req's current state. A sibling key absent from req does not constrain —
// only keys actually present (e.g. via a default) participate.
func (t *baseType) Finalise(req *Request, key string, strict bool) error {
	for otherKey, allowed := range t.only {
		sp := req.parameter(otherKey)
		if sp == nil {
			continue
		}
		if !intersects(sp.values, allowed) {
			return fmt.Errorf("%w: %q requires %q to be one of %v, got %v", ErrConstraintViolated, key, otherKey, allowed, sp.values)
		}
	}
	for otherKey, forbidden := range t.never {
		sp := req.parameter(otherKey)
		if sp == nil {
			continue
		}
		if intersects(sp.values, forbidden) {
			return fmt.Errorf("%w: %q is forbidden when %q is one of %v, got %v", ErrConstraintViolated, key, otherKey, forbidden, sp.values)
		}
	}
	return nil
}

func intersects(values, set []string) bool {
	for _, v := range values {
		for _, s := range set {
			if v == s {
				return true
			}
		}
	}
	return false
}

func (t *baseType) Count(values []string) int { return len(values) }

// Filter and Matches share the generic set-intersection semantics most
// Types use; Enum overrides neither since aliases are already resolved by
// the time values reach here.
func (t *baseType) Filter(filterValues, values []string) (bool, []string) {
	if len(filterValues) == 0 {
		return true, values
	}
	wanted := make(map[string]bool, len(filterValues))
	for _, v := range filterValues {
		wanted[v] = true
	}
	kept := values[:0:0]
	for _, v := range values {
		if wanted[v] {
			kept = append(kept, v)
		}
	}
	return len(kept) > 0, kept
}

func (t *baseType) Matches(filterValues, values []string) bool {
	ok, _ := t.Filter(filterValues, values)
	return ok
}

func dedup(values []string, keep bool) []string {
	if keep {
		return values
	}
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
