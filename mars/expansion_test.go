package mars

import (
	"errors"
	"testing"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	def := &LanguageDefinition{Keys: []KeyDef{
		{Name: "class", Kind: "enum", Values: []string{"od", "rd"}, Defaults: []string{"od"}, Flatten: true},
		{Name: "levtype", Kind: "enum", Values: []string{"sfc", "pl", "ml"}, Defaults: []string{"sfc"}, Flatten: true},
		{Name: "levelist", Kind: "integerrange", Multiple: true, Flatten: true, Only: map[string][]string{"levtype": {"pl", "ml"}}},
		{Name: "step", Kind: "integerrange", Multiple: true, Flatten: true},
	}}
	reg, err := BuildRegistry(def)
	if err != nil {
		t.Fatalf("BuildRegistry: %v", err)
	}
	return reg
}

// TestExpandScenarioE is spec.md's Scenario E: enum validation, strict vs
// non-strict.
func TestExpandScenarioEStrictRejectsUnknownEnumValue(t *testing.T) {
	reg := testRegistry(t)
	ctx := NewExpansionContext(reg, false, true)
	req := NewRequest("retrieve")
	req.Set("levtype", []string{"xx"})
	if _, err := ctx.Expand(req); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("got %v, want ErrInvalidValue", err)
	}
}

func TestExpandScenarioENonStrictPassesThroughUnknownEnumValue(t *testing.T) {
	reg := testRegistry(t)
	ctx := NewExpansionContext(reg, false, false)
	req := NewRequest("retrieve")
	req.Set("levtype", []string{"xx"})
	out, err := ctx.Expand(req)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if got := out.Get("levtype"); len(got) != 1 || got[0] != "xx" {
		t.Errorf("got %v, want [xx] passed through", got)
	}
}

func TestExpandScenarioECanonicalizesCase(t *testing.T) {
	reg := testRegistry(t)
	ctx := NewExpansionContext(reg, false, true)
	req := NewRequest("retrieve")
	req.Set("levtype", []string{"SFC"})
	out, err := ctx.Expand(req)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if got := out.Get("levtype"); got[0] != "sfc" {
		t.Errorf("got %q, want sfc", got[0])
	}
}

// TestExpandScenarioF is spec.md's Scenario F.
func TestExpandScenarioFRangeExpansion(t *testing.T) {
	reg := testRegistry(t)
	ctx := NewExpansionContext(reg, false, true)
	req := NewRequest("retrieve")
	req.Set("step", []string{"0", "to", "12", "by", "3"})
	out, err := ctx.Expand(req)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	got := out.Get("step")
	want := []string{"0", "3", "6", "9", "12"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %s, want %s", i, got[i], want[i])
		}
	}
	if n := out.CountCombinations(); n != 5 {
		t.Errorf("CountCombinations = %d, want 5", n)
	}
}

func TestExpandStrictRejectsUnknownKey(t *testing.T) {
	reg := testRegistry(t)
	ctx := NewExpansionContext(reg, false, true)
	req := NewRequest("retrieve")
	req.Set("bogus", []string{"1"})
	if _, err := ctx.Expand(req); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("got %v, want ErrUnknownKey", err)
	}
}

func TestExpandNonStrictDefaultsUnknownKeyToAny(t *testing.T) {
	reg := testRegistry(t)
	ctx := NewExpansionContext(reg, false, false)
	req := NewRequest("retrieve")
	req.Set("bogus", []string{"1"})
	out, err := ctx.Expand(req)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if got := out.Get("bogus"); len(got) != 1 || got[0] != "1" {
		t.Errorf("got %v", got)
	}
}

func TestExpandInjectsDefaultsWhenInherit(t *testing.T) {
	reg := testRegistry(t)
	ctx := NewExpansionContext(reg, true, true)
	req := NewRequest("retrieve")
	req.Set("step", []string{"0"})
	out, err := ctx.Expand(req)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if got := out.Get("class"); len(got) != 1 || got[0] != "od" {
		t.Errorf("class default not injected: %v", got)
	}
	if got := out.Get("levtype"); len(got) != 1 || got[0] != "sfc" {
		t.Errorf("levtype default not injected: %v", got)
	}
}

func TestExpandFinaliseRejectsLevelistWithoutMatchingLevtype(t *testing.T) {
	reg := testRegistry(t)
	ctx := NewExpansionContext(reg, true, true)
	req := NewRequest("retrieve")
	req.Set("levelist", []string{"500"})
	if _, err := ctx.Expand(req); !errors.Is(err, ErrConstraintViolated) {
		t.Errorf("got %v, want ErrConstraintViolated", err)
	}
}

func TestExpandFinaliseAcceptsLevelistWithMatchingLevtype(t *testing.T) {
	reg := testRegistry(t)
	ctx := NewExpansionContext(reg, true, true)
	req := NewRequest("retrieve")
	req.Set("levtype", []string{"pl"})
	req.Set("levelist", []string{"500", "850"})
	out, err := ctx.Expand(req)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if got := out.Get("levelist"); len(got) != 2 {
		t.Errorf("got %v", got)
	}
}

func TestExpandBatchInheritThreadsDefaultsSequentially(t *testing.T) {
	reg := testRegistry(t)
	ctx := NewExpansionContext(reg, true, true)

	first := NewRequest("retrieve")
	first.Set("class", []string{"rd"})
	first.Set("step", []string{"0"})

	second := NewRequest("retrieve")
	second.Set("step", []string{"6"})

	out, err := ctx.ExpandBatch([]*Request{first, second})
	if err != nil {
		t.Fatalf("ExpandBatch: %v", err)
	}
	if got := out[1].Get("class"); len(got) != 1 || got[0] != "rd" {
		t.Errorf("second request did not inherit class=rd from first: %v", got)
	}
}

func TestExpandBatchNonInheritRunsIndependently(t *testing.T) {
	reg := testRegistry(t)
	ctx := NewExpansionContext(reg, false, true)

	first := NewRequest("retrieve")
	first.Set("class", []string{"rd"})
	first.Set("step", []string{"0"})

	second := NewRequest("retrieve")
	second.Set("step", []string{"6"})

	out, err := ctx.ExpandBatch([]*Request{first, second})
	if err != nil {
		t.Fatalf("ExpandBatch: %v", err)
	}
	if out[1].Has("class") {
		t.Errorf("second request should not have inherited class without inherit=true: %v", out[1].Get("class"))
	}
}
