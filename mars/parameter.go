package mars

// Parameter is a named, typed, ordered list of values — one key of a
// Request (spec.md §3, C5). Equality and ordering are lexicographic on
// (name, values).
type Parameter struct {
	name   string
	typ    Type
	values []string
}

// NewParameter returns a Parameter bound to typ, with values taken as-is
// (the caller is expected to have already run them through typ.Expand if
// they come from anywhere other than the parser).
func NewParameter(name string, typ Type, values []string) *Parameter {
	return &Parameter{name: name, typ: typ, values: append([]string(nil), values...)}
}

func (p *Parameter) Name() string   { return p.name }
func (p *Parameter) Type() Type     { return p.typ }
func (p *Parameter) Values() []string {
	return append([]string(nil), p.values...)
}

// Filter intersects this parameter's values with filterValues in place,
// per its Type's equality semantics, returning false if the intersection
// is empty (spec.md §4.5).
func (p *Parameter) Filter(filterValues []string) bool {
	ok, kept := p.typ.Filter(filterValues, p.values)
	p.values = kept
	return ok
}

// Matches is the pure-predicate counterpart of Filter.
func (p *Parameter) Matches(filterValues []string) bool {
	return p.typ.Matches(filterValues, p.values)
}

// Merge unions other's values into p under the Type's multiplicity rules:
// values are deduplicated unless the Type allows duplicates.
func (p *Parameter) Merge(other *Parameter) {
	merged := append(append([]string(nil), p.values...), other.values...)
	p.values = dedup(merged, p.typ.Duplicates())
}

// Count delegates cardinality to the Type.
func (p *Parameter) Count() int { return p.typ.Count(p.values) }

// Compare implements the lexicographic (name, values) ordering spec.md
// §4.5 names.
func (p *Parameter) Compare(other *Parameter) int {
	if p.name != other.name {
		if p.name < other.name {
			return -1
		}
		return 1
	}
	for i := 0; i < len(p.values) && i < len(other.values); i++ {
		if p.values[i] != other.values[i] {
			if p.values[i] < other.values[i] {
				return -1
			}
			return 1
		}
	}
	return len(p.values) - len(other.values)
}

func (p *Parameter) clone() *Parameter {
	return &Parameter{name: p.name, typ: p.typ, values: append([]string(nil), p.values...)}
}
