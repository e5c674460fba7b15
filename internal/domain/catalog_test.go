package domain

import "testing"

func TestLabel(t *testing.T) {
	tests := map[string]string{
		"south-asian":  "South Asian",
		"body-builder": "Body Builder",
		"full-thick":   "Full / Thick",
		"70s-plus":     "70s+",
		"30s":          "30s",
		"romantic":     "Romantic Friend",
	}
	for id, want := range tests {
		if got := Label(id); got != want {
			t.Fatalf("Label(%q) = %q, want %q", id, got, want)
		}
	}
}

func TestCatalogGenderFiltering(t *testing.T) {
	c := DefaultCatalog()

	if c.Allowed(CategoryEthnicity, "latina", GenderMale) {
		t.Fatalf("latina must not be offered for male companions")
	}
	if !c.Allowed(CategoryEthnicity, "latina", GenderFemale) {
		t.Fatalf("latina must be offered for female companions")
	}
	for _, style := range []string{"pixie-cut", "high-ponytail"} {
		if c.Allowed(CategoryHairStyle, style, GenderMale) {
			t.Fatalf("%s must not be offered for male companions", style)
		}
	}
	if got := len(c.Options(CategoryHairStyle, GenderMale)); got != 6 {
		t.Fatalf("male hair styles = %d, want 6", got)
	}
	if got := len(c.Options(CategoryHairStyle, GenderFemale)); got != 8 {
		t.Fatalf("female hair styles = %d, want 8", got)
	}
	if got := len(c.Options(CategoryBreastSize, GenderMale)); got != 0 {
		t.Fatalf("breast sizes for male = %d, want 0", got)
	}
}

func TestCatalogUnavailableTypes(t *testing.T) {
	c := DefaultCatalog()
	if !c.Allowed(CategoryType, "romantic", "") {
		t.Fatalf("romantic should be available")
	}
	if c.Allowed(CategoryType, "study", "") {
		t.Fatalf("study is listed but not available")
	}
	if _, ok := c.Lookup(CategoryType, "study"); !ok {
		t.Fatalf("study should still be listed")
	}
	if c.Allowed(CategoryAge, "teen", "") {
		t.Fatalf("unknown ids must be rejected")
	}
}

func TestGenerationResultVariants(t *testing.T) {
	r := GenerationResult{ImageURL: "a"}
	if v := r.Variants(); len(v) != 1 || v[0] != "a" {
		t.Fatalf("Variants() = %#v", v)
	}
	r = GenerationResult{ImageURLs: []string{"", "b", "c"}}
	if !r.HasImage() || r.PrimaryURL() != "b" {
		t.Fatalf("unexpected result view: has=%v primary=%q", r.HasImage(), r.PrimaryURL())
	}
	if (GenerationResult{ImageURLs: []string{""}}).HasImage() {
		t.Fatalf("empty strings are not images")
	}
}
