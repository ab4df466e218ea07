package mars

import (
	"fmt"
	"strconv"
	"strings"
)

// IntegerRangeType expands "a/to/b[/by/step]" tokens into an enumerated
// integer sequence (spec.md §4.7, Scenario F), or, absent a "to" token,
// behaves like a plain integer list.
type IntegerRangeType struct{ baseType }

func NewIntegerRangeType(name, category string) *IntegerRangeType {
	return &IntegerRangeType{baseType{name: name, category: category, flatten: true}}
}

func (t *IntegerRangeType) Expand(values []string) ([]string, error) {
	toIdx := -1
	for i, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), "to") {
			toIdx = i
			break
		}
	}
	if toIdx == -1 {
		out := make([]string, 0, len(values))
		for _, v := range values {
			n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %q is not an integer (key %q)", ErrInvalidValue, v, t.name)
			}
			out = append(out, strconv.FormatInt(n, 10))
		}
		return dedup(out, t.duplicates), nil
	}

	if toIdx == 0 || toIdx == len(values)-1 {
		return nil, fmt.Errorf("%w: malformed range %v (key %q)", ErrInvalidValue, values, t.name)
	}
	start, err := strconv.ParseInt(strings.TrimSpace(values[toIdx-1]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: range start %q (key %q)", ErrInvalidValue, values[toIdx-1], t.name)
	}
	end, err := strconv.ParseInt(strings.TrimSpace(values[toIdx+1]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: range end %q (key %q)", ErrInvalidValue, values[toIdx+1], t.name)
	}

	step := int64(1)
	if toIdx+2 < len(values) && strings.EqualFold(strings.TrimSpace(values[toIdx+2]), "by") {
		if toIdx+3 >= len(values) {
			return nil, fmt.Errorf("%w: range %v has \"by\" with no step value (key %q)", ErrInvalidValue, values, t.name)
		}
		step, err = strconv.ParseInt(strings.TrimSpace(values[toIdx+3]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: range step %q (key %q)", ErrInvalidValue, values[toIdx+3], t.name)
		}
	}
	if step == 0 {
		return nil, fmt.Errorf("%w: range step of 0 (key %q)", ErrInvalidValue, t.name)
	}

	var out []string
	if step > 0 {
		for n := start; n <= end; n += step {
			out = append(out, strconv.FormatInt(n, 10))
		}
	} else {
		for n := start; n >= end; n += step {
			out = append(out, strconv.FormatInt(n, 10))
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: range %d to %d by %d is empty (key %q)", ErrInvalidValue, start, end, step, t.name)
	}
	return out, nil
}

// RangeType marks a key as participating in cartesian flattening without
// any further value-level semantics (spec.md §4.7's Range row).
type RangeType struct{ baseType }

func NewRangeType(name, category string) *RangeType {
	return &RangeType{baseType{name: name, category: category, flatten: true}}
}

func (t *RangeType) Expand(values []string) ([]string, error) {
	return dedup(values, t.duplicates), nil
}
