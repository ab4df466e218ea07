package mars

import (
	"fmt"
	"strconv"
	"strings"
)

// ParamEntry is one row of a parameter table: a numeric id, conventionally
// in a particular table, with a short mnemonic name (spec.md §4.7 Param
// row, grounded on the original's ParamID.cc).
type ParamEntry struct {
	ID        string
	Table     string
	ShortName string
}

// ParamTable resolves between numeric id[.table] forms and short names.
type ParamTable struct {
	byShortName map[string]ParamEntry
	byID        map[string]ParamEntry // keyed by "id" or "id.table"
}

// NewParamTable builds a ParamTable from entries.
func NewParamTable(entries []ParamEntry) *ParamTable {
	t := &ParamTable{byShortName: map[string]ParamEntry{}, byID: map[string]ParamEntry{}}
	for _, e := range entries {
		t.byShortName[strings.ToLower(e.ShortName)] = e
		t.byID[e.ID] = e
		if e.Table != "" {
			t.byID[e.ID+"."+e.Table] = e
		}
	}
	return t
}

// defaultParamTable is a small embedded table covering common surface
// meteorological parameters; callers needing the full ECMWF parameter
// database should build their own ParamTable and a Registry around it.
var defaultParamTable = NewParamTable([]ParamEntry{
	{ID: "167", Table: "128", ShortName: "2t"},
	{ID: "151", Table: "128", ShortName: "msl"},
	{ID: "165", Table: "128", ShortName: "10u"},
	{ID: "166", Table: "128", ShortName: "10v"},
	{ID: "228", Table: "128", ShortName: "tp"},
	{ID: "129", Table: "128", ShortName: "z"},
	{ID: "130", Table: "128", ShortName: "t"},
	{ID: "131", Table: "128", ShortName: "u"},
	{ID: "132", Table: "128", ShortName: "v"},
	{ID: "133", Table: "128", ShortName: "q"},
})

// ParamType resolves a value by numeric id, short name, or "id.table",
// canonicalizing to "id.table" (spec.md §4.7 Param row).
type ParamType struct {
	baseType
	table *ParamTable
}

func NewParamType(name, category string, table *ParamTable) *ParamType {
	return &ParamType{baseType{name: name, category: category, flatten: true}, table}
}

func (t *ParamType) Tidy(value string) string {
	v := strings.TrimSpace(value)
	if entry, ok := t.table.byShortName[strings.ToLower(v)]; ok {
		if entry.Table != "" {
			return entry.ID + "." + entry.Table
		}
		return entry.ID
	}
	if entry, ok := t.table.byID[v]; ok {
		if entry.Table != "" {
			return entry.ID + "." + entry.Table
		}
		return entry.ID
	}
	return v
}

func (t *ParamType) Expand(values []string) ([]string, error) {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, t.Tidy(v))
	}
	return dedup(out, t.duplicates), nil
}

func (t *ParamType) Check(values []string) error {
	for _, v := range values {
		id := v
		if i := strings.IndexByte(v, '.'); i >= 0 {
			id = v[:i]
		}
		if _, err := strconv.Atoi(id); err != nil {
			return fmt.Errorf("%w: param %q is not a recognized id or short name", ErrInvalidValue, v)
		}
	}
	return nil
}

// GridType accepts the common grid shorthands: a reduced/regular Gaussian
// designator (letter prefix + number, e.g. "N320", "O1280", "F640") or an
// explicit lat/lon resolution pair ("0.25/0.25").
type GridType struct{ baseType }

func NewGridType(name, category string) *GridType {
	return &GridType{baseType{name: name, category: category, flatten: true}}
}

func (t *GridType) Tidy(value string) string {
	v := strings.TrimSpace(value)
	if len(v) > 0 && isGaussianPrefix(v[0]) {
		return strings.ToUpper(v[:1]) + v[1:]
	}
	return v
}

func isGaussianPrefix(c byte) bool {
	switch c {
	case 'n', 'N', 'o', 'O', 'f', 'F':
		return true
	}
	return false
}

func (t *GridType) Expand(values []string) ([]string, error) {
	out := make([]string, 0, len(values))
	for _, v := range values {
		norm := t.Tidy(v)
		if len(norm) > 1 && isGaussianPrefix(norm[0]) {
			if _, err := strconv.Atoi(norm[1:]); err != nil {
				return nil, fmt.Errorf("%w: grid %q has a non-numeric resolution", ErrInvalidValue, v)
			}
		} else {
			for _, part := range strings.Split(norm, "/") {
				if _, err := strconv.ParseFloat(part, 64); err != nil {
					return nil, fmt.Errorf("%w: grid %q is not a recognized shorthand or resolution", ErrInvalidValue, v)
				}
			}
		}
		out = append(out, norm)
	}
	return dedup(out, t.duplicates), nil
}
