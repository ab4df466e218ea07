package mars

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Request is a named verb plus an ordered, name-unique list of parameters
// (spec.md §3, C6). Lookup is by name; storage preserves insertion order.
type Request struct {
	verb   string
	params []*Parameter
	index  map[string]int
}

// NewRequest returns an empty Request for the given verb.
func NewRequest(verb string) *Request {
	return &Request{verb: strings.ToLower(verb), index: map[string]int{}}
}

func (r *Request) Verb() string { return r.verb }

// Set replaces (or appends, preserving order) the named parameter with the
// given values, using AnyType if the key is new. Expansion engines that
// already know the Type should use SetTyped instead.
func (r *Request) Set(name string, values []string) {
	r.SetTyped(name, NewAnyType(name, ""), values)
}

// SetTyped is Set with an explicit Type, used by the parser and expansion
// engine once a key's real Type is known.
func (r *Request) SetTyped(name string, typ Type, values []string) {
	if i, ok := r.index[name]; ok {
		r.params[i].values = append([]string(nil), values...)
		if typ != nil {
			r.params[i].typ = typ
		}
		return
	}
	r.params = append(r.params, &Parameter{name: name, typ: typ, values: append([]string(nil), values...)})
	r.index[name] = len(r.params) - 1
}

// Unset removes the named parameter, if present.
func (r *Request) Unset(name string) {
	i, ok := r.index[name]
	if !ok {
		return
	}
	r.params = append(r.params[:i], r.params[i+1:]...)
	delete(r.index, name)
	for k, idx := range r.index {
		if idx > i {
			r.index[k] = idx - 1
		}
	}
}

// Get returns the named parameter's values, or nil if absent.
func (r *Request) Get(name string) []string {
	p := r.parameter(name)
	if p == nil {
		return nil
	}
	return p.Values()
}

// Has reports whether name is present on this request.
func (r *Request) Has(name string) bool {
	_, ok := r.index[name]
	return ok
}

// Is is the single-value shortcut: true iff name is present with exactly
// one value equal to value.
func (r *Request) Is(name, value string) bool {
	p := r.parameter(name)
	return p != nil && len(p.values) == 1 && p.values[0] == value
}

// CountCombinations is the product of Type.Count(values) across every
// parameter.
func (r *Request) CountCombinations() int {
	total := 1
	for _, p := range r.params {
		n := p.Count()
		if n == 0 {
			return 0
		}
		total *= n
	}
	return total
}

// Merge unions other into r: shared keys merge their values under the
// Type's multiplicity rules; keys unknown to r are appended at the end, in
// other's order.
func (r *Request) Merge(other *Request) *Request {
	out := r.clone()
	for _, op := range other.params {
		if i, ok := out.index[op.name]; ok {
			out.params[i].Merge(op)
			continue
		}
		out.params = append(out.params, op.clone())
		out.index[op.name] = len(out.params) - 1
	}
	return out
}

// Subset returns a new Request carrying only the named keys, preserving
// their order of appearance in r.
func (r *Request) Subset(keys []string) *Request {
	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}
	out := NewRequest(r.verb)
	for _, p := range r.params {
		if want[p.name] {
			out.params = append(out.params, p.clone())
			out.index[p.name] = len(out.params) - 1
		}
	}
	return out
}

// Extract returns a new Request carrying only the keys whose Type belongs
// to category.
func (r *Request) Extract(category string) *Request {
	out := NewRequest(r.verb)
	for _, p := range r.params {
		if p.typ != nil && p.typ.Category() == category {
			out.params = append(out.params, p.clone())
			out.index[p.name] = len(out.params) - 1
		}
	}
	return out
}

// Filter mutates r in place, intersecting every parameter other names with
// other's values; it returns false (leaving r unchanged in spirit, but its
// filtered parameters already mutated — callers needing rollback should
// clone first) as soon as any intersection goes empty.
func (r *Request) Filter(other *Request) bool {
	for _, op := range other.params {
		sp := r.parameter(op.name)
		if sp == nil {
			continue
		}
		if !sp.Filter(op.values) {
			return false
		}
	}
	return true
}

// Matches is the pure-predicate counterpart of Filter.
func (r *Request) Matches(other *Request) bool {
	for _, op := range other.params {
		sp := r.parameter(op.name)
		if sp == nil {
			continue
		}
		if !sp.Matches(op.values) {
			return false
		}
	}
	return true
}

// Split enumerates the cartesian product of keys' values, returning one
// clone of r per combination with those keys replaced by a single value
// each. Empty keys returns [r.clone()]. Output order is lexicographic in
// the order keys are given, with later keys varying fastest (spec.md §5,
// Scenario D).
func (r *Request) Split(keys []string) []*Request {
	if len(keys) == 0 {
		return []*Request{r.clone()}
	}
	valueLists := make([][]string, len(keys))
	total := 1
	for i, k := range keys {
		p := r.parameter(k)
		if p == nil || len(p.values) == 0 {
			valueLists[i] = []string{""}
		} else {
			valueLists[i] = p.values
		}
		total *= len(valueLists[i])
	}

	results := make([]*Request, 0, total)
	idx := make([]int, len(keys))
	for c := 0; c < total; c++ {
		next := r.clone()
		for i, k := range keys {
			next.Set(k, []string{valueLists[i][idx[i]]})
		}
		results = append(results, next)
		for i := len(keys) - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(valueLists[i]) {
				break
			}
			idx[i] = 0
		}
	}
	return results
}

// Fingerprint is a stable digest of the expanded request — verb plus
// ordered parameter names/values — via xxhash, mirroring the original's
// use of a request's textual form as a cache/index key.
func (r *Request) Fingerprint() uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(r.verb)
	_, _ = h.Write([]byte{0})
	for _, p := range r.params {
		_, _ = h.WriteString(p.name)
		_, _ = h.Write([]byte{0})
		for _, v := range p.values {
			_, _ = h.WriteString(v)
			_, _ = h.Write([]byte{0})
		}
		_, _ = h.Write([]byte{1})
	}
	return h.Sum64()
}

// String renders the textual "verb,k=v/v2,k2=v" form (spec.md §4.6/§6),
// quoting values that contain a delimiter.
func (r *Request) String() string {
	var b strings.Builder
	b.WriteString(r.verb)
	for _, p := range r.params {
		b.WriteByte(',')
		b.WriteString(p.name)
		b.WriteByte('=')
		for i, v := range p.values {
			if i > 0 {
				b.WriteByte('/')
			}
			b.WriteString(quoteIfNeeded(v))
		}
	}
	return b.String()
}

func quoteIfNeeded(v string) string {
	if strings.ContainsAny(v, "/,=;\"\n") || v == "" {
		escaped := strings.ReplaceAll(v, `\`, `\\`)
		escaped = strings.ReplaceAll(escaped, `"`, `\"`)
		return `"` + escaped + `"`
	}
	return v
}

// MarshalJSON emits {"_verb": verb, key: value|[values...], ...}, with a
// list form when the parameter has more than one value or its Type
// declares Multiple (spec.md §4.6, §9).
func (r *Request) MarshalJSON() ([]byte, error) {
	m := make(map[string]interface{}, len(r.params)+1)
	m["_verb"] = r.verb
	for _, p := range r.params {
		multi := len(p.values) != 1 || (p.typ != nil && p.typ.Multiple())
		if multi {
			m[p.name] = p.values
		} else {
			m[p.name] = p.values[0]
		}
	}
	return json.Marshal(m)
}

// UnmarshalJSON populates r from the form MarshalJSON emits. Parameters
// get an AnyType placeholder — encoding/json does not preserve object key
// order, so the resulting parameter order is sorted by name rather than
// the original insertion order; run the result through the expansion
// engine to recover real Types and, if order matters, re-derive it from a
// language definition's canonical key order.
func (r *Request) UnmarshalJSON(data []byte) error {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	verb, _ := m["_verb"].(string)
	delete(m, "_verb")

	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)

	r.verb = verb
	r.params = nil
	r.index = map[string]int{}
	for _, name := range names {
		var values []string
		switch v := m[name].(type) {
		case string:
			values = []string{v}
		case []interface{}:
			for _, e := range v {
				values = append(values, fmt.Sprint(e))
			}
		default:
			values = []string{fmt.Sprint(v)}
		}
		r.SetTyped(name, NewAnyType(name, ""), values)
	}
	return nil
}

// EncodeStream writes the binary stream form: (verb, n_params, {name,
// n_values, values...}), each string length-prefixed (spec.md §4.6).
func (r *Request) EncodeStream(w io.Writer) error {
	if err := writeString(w, r.verb); err != nil {
		return err
	}
	if err := writeU32(w, uint32(len(r.params))); err != nil {
		return err
	}
	for _, p := range r.params {
		if err := writeString(w, p.name); err != nil {
			return err
		}
		if err := writeU32(w, uint32(len(p.values))); err != nil {
			return err
		}
		for _, v := range p.values {
			if err := writeString(w, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// DecodeStream reads the form EncodeStream writes, returning a Request
// with AnyType placeholders. If lowercase is true, verb and key names are
// lower-cased on read.
func DecodeStream(r io.Reader, lowercase bool) (*Request, error) {
	verb, err := readString(r)
	if err != nil {
		return nil, fmt.Errorf("mars: decoding stream verb: %w", err)
	}
	if lowercase {
		verb = strings.ToLower(verb)
	}
	req := NewRequest(verb)
	nParams, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("mars: decoding stream param count: %w", err)
	}
	for i := uint32(0); i < nParams; i++ {
		name, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("mars: decoding stream param name: %w", err)
		}
		if lowercase {
			name = strings.ToLower(name)
		}
		nValues, err := readU32(r)
		if err != nil {
			return nil, fmt.Errorf("mars: decoding stream value count: %w", err)
		}
		values := make([]string, nValues)
		for j := uint32(0); j < nValues; j++ {
			v, err := readString(r)
			if err != nil {
				return nil, fmt.Errorf("mars: decoding stream value: %w", err)
			}
			values[j] = v
		}
		req.SetTyped(name, NewAnyType(name, ""), values)
	}
	return req, nil
}

func writeU32(w io.Writer, n uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], n)
	_, err := w.Write(buf[:])
	return err
}

func readU32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func writeString(w io.Writer, s string) error {
	if err := writeU32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

func readString(r io.Reader) (string, error) {
	n, err := readU32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func (r *Request) parameter(name string) *Parameter {
	i, ok := r.index[name]
	if !ok {
		return nil
	}
	return r.params[i]
}

func (r *Request) clone() *Request {
	out := NewRequest(r.verb)
	for _, p := range r.params {
		c := p.clone()
		out.params = append(out.params, c)
		out.index[c.name] = len(out.params) - 1
	}
	return out
}

// Equal reports whether r and other have the same verb and the same
// parameters (by (name, values)), in the same order.
func (r *Request) Equal(other *Request) bool {
	if r.verb != other.verb || len(r.params) != len(other.params) {
		return false
	}
	for i := range r.params {
		if r.params[i].Compare(other.params[i]) != 0 {
			return false
		}
	}
	return true
}

// Keys returns the parameter names in declaration order.
func (r *Request) Keys() []string {
	keys := make([]string, len(r.params))
	for i, p := range r.params {
		keys[i] = p.name
	}
	return keys
}
