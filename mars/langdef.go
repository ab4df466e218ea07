package mars

import (
	"embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed langdef/default.yaml
var embeddedLanguageDefinition embed.FS

// LanguageDefinition is the structured document spec.md §1/§4.7 describes:
// MARS keys, their categories, allowed values, defaults, aliases, and
// multiplicity rules, loaded from YAML (A3).
type LanguageDefinition struct {
	Keys []KeyDef `yaml:"keys"`
}

// KeyDef is one key's entry in a LanguageDefinition.
type KeyDef struct {
	Name       string              `yaml:"name"`
	Category   string              `yaml:"category"`
	Kind       string              `yaml:"kind"` // any, enum, integer, integerrange, float, date, time, expver, param, grid, range
	Values     []string            `yaml:"values,omitempty"`
	Aliases    map[string][]string `yaml:"aliases,omitempty"`
	Defaults   []string            `yaml:"defaults,omitempty"`
	Flatten    bool                `yaml:"flatten"`
	Multiple   bool                `yaml:"multiple"`
	Duplicates bool                `yaml:"duplicates"`
	Only       map[string][]string `yaml:"only,omitempty"`
	Never      map[string][]string `yaml:"never,omitempty"`
	DateRefKey string              `yaml:"dateRefKey,omitempty"`
}

// ParseLanguageDefinition decodes a YAML document in the format KeyDef
// describes.
func ParseLanguageDefinition(doc []byte) (*LanguageDefinition, error) {
	var def LanguageDefinition
	if err := yaml.Unmarshal(doc, &def); err != nil {
		return nil, fmt.Errorf("mars: parsing language definition: %w", err)
	}
	return &def, nil
}

// Registry is the Type registry (C7): built once from a LanguageDefinition
// and read-only afterwards. Types are immutable once constructed — see
// DESIGN.md on why defaults must never be mutated on a live Type.
type Registry struct {
	types map[string]Type
	order []string // key names in the language definition's declared order
}

// BuildRegistry constructs a Registry from def; unknown Kind values are
// rejected so a malformed language definition fails at load time rather
// than silently behaving like Any.
func BuildRegistry(def *LanguageDefinition) (*Registry, error) {
	r := &Registry{types: make(map[string]Type, len(def.Keys)), order: make([]string, 0, len(def.Keys))}
	for _, k := range def.Keys {
		t, err := buildType(k)
		if err != nil {
			return nil, err
		}
		r.types[k.Name] = t
		r.order = append(r.order, k.Name)
	}
	return r, nil
}

// Names returns every registered key name in the language definition's
// declared order — the stable iteration order the expansion engine uses so
// default injection does not depend on Go's randomized map order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

func buildType(k KeyDef) (Type, error) {
	base := baseType{
		name: k.Name, category: k.Category, flatten: k.Flatten,
		multiple: k.Multiple, duplicates: k.Duplicates, defaults: k.Defaults,
		only: k.Only, never: k.Never,
	}
	switch k.Kind {
	case "", "any":
		return &AnyType{base}, nil
	case "enum":
		t := NewEnumType(k.Name, k.Category, k.Values, k.Aliases)
		t.baseType = base
		return t, nil
	case "integer":
		t := NewIntegerType(k.Name, k.Category)
		t.baseType = base
		return t, nil
	case "integerrange":
		t := NewIntegerRangeType(k.Name, k.Category)
		t.baseType = base
		return t, nil
	case "float":
		t := NewFloatType(k.Name, k.Category)
		t.baseType = base
		return t, nil
	case "date":
		t := NewDateType(k.Name, k.Category)
		t.baseType = base
		t.RefKey = k.DateRefKey
		return t, nil
	case "time":
		t := NewTimeType(k.Name, k.Category)
		t.baseType = base
		return t, nil
	case "expver":
		t := NewExpverType(k.Name, k.Category)
		t.baseType = base
		return t, nil
	case "param":
		t := NewParamType(k.Name, k.Category, defaultParamTable)
		t.baseType = base
		return t, nil
	case "grid":
		t := NewGridType(k.Name, k.Category)
		t.baseType = base
		return t, nil
	case "range":
		t := NewRangeType(k.Name, k.Category)
		t.baseType = base
		return t, nil
	default:
		return nil, fmt.Errorf("mars: language definition key %q has unknown kind %q", k.Name, k.Kind)
	}
}

// Lookup returns the Type bound to name, or (nil, false) if absent.
func (r *Registry) Lookup(name string) (Type, bool) {
	t, ok := r.types[name]
	return t, ok
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
	defaultRegistryErr  error
)

// DefaultRegistry lazily builds, once per process, the Registry from the
// module's embedded default language definition (spec.md §5: "a one-time
// initializer").
func DefaultRegistry() (*Registry, error) {
	defaultRegistryOnce.Do(func() {
		doc, err := embeddedLanguageDefinition.ReadFile("langdef/default.yaml")
		if err != nil {
			defaultRegistryErr = fmt.Errorf("mars: reading embedded language definition: %w", err)
			return
		}
		def, err := ParseLanguageDefinition(doc)
		if err != nil {
			defaultRegistryErr = err
			return
		}
		defaultRegistry, defaultRegistryErr = BuildRegistry(def)
	})
	return defaultRegistry, defaultRegistryErr
}
