package mars

import "testing"

func TestParseLanguageDefinition(t *testing.T) {
	doc := []byte(`
keys:
  - name: class
    category: general
    kind: enum
    values: [od, rd]
    flatten: true
  - name: levelist
    category: vertical
    kind: integerrange
    multiple: true
    only:
      levtype: [pl, ml]
`)
	def, err := ParseLanguageDefinition(doc)
	if err != nil {
		t.Fatalf("ParseLanguageDefinition: %v", err)
	}
	if len(def.Keys) != 2 {
		t.Fatalf("got %d keys, want 2", len(def.Keys))
	}
	if def.Keys[1].Only["levtype"][0] != "pl" {
		t.Errorf("got %v", def.Keys[1].Only)
	}
}

func TestBuildRegistryRejectsUnknownKind(t *testing.T) {
	def := &LanguageDefinition{Keys: []KeyDef{{Name: "x", Kind: "nonsense"}}}
	if _, err := BuildRegistry(def); err == nil {
		t.Fatal("expected an error for unknown kind")
	}
}

func TestBuildRegistryConstructsConcreteTypes(t *testing.T) {
	def := &LanguageDefinition{Keys: []KeyDef{
		{Name: "class", Kind: "enum", Values: []string{"od", "rd"}, Flatten: true},
		{Name: "step", Kind: "integerrange", Multiple: true, Flatten: true},
	}}
	reg, err := BuildRegistry(def)
	if err != nil {
		t.Fatalf("BuildRegistry: %v", err)
	}
	cls, ok := reg.Lookup("class")
	if !ok {
		t.Fatal("class not found")
	}
	if _, ok := cls.(*EnumType); !ok {
		t.Errorf("class is %T, want *EnumType", cls)
	}
	if err := cls.Check([]string{"xx"}); err == nil {
		t.Errorf("expected Check to reject xx")
	}
}

func TestDefaultRegistryBuildsOnce(t *testing.T) {
	r1, err := DefaultRegistry()
	if err != nil {
		t.Fatalf("DefaultRegistry: %v", err)
	}
	r2, err := DefaultRegistry()
	if err != nil {
		t.Fatalf("DefaultRegistry (2nd call): %v", err)
	}
	if r1 != r2 {
		t.Errorf("DefaultRegistry returned different instances across calls")
	}
	if _, ok := r1.Lookup("expver"); !ok {
		t.Errorf("expected embedded default language definition to define expver")
	}
}
