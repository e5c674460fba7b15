package domain

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Option is a selectable catalog entry.
type Option struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Available bool   `json:"available"`
	// Genders limits the option to the listed genders; empty means any.
	Genders []string `json:"genders,omitempty"`
}

// AllowsGender reports whether the option may be offered for gender.
func (o Option) AllowsGender(gender string) bool {
	if len(o.Genders) == 0 || strings.TrimSpace(gender) == "" {
		return true
	}
	for _, g := range o.Genders {
		if strings.EqualFold(g, gender) {
			return true
		}
	}
	return false
}

// Category names the attribute groups exposed by the catalog.
type Category string

const (
	CategoryType        Category = "type"
	CategoryGender      Category = "gender"
	CategoryAge         Category = "age"
	CategoryEthnicity   Category = "ethnicity"
	CategoryEyeColor    Category = "eyeColor"
	CategoryHairColor   Category = "hairColor"
	CategoryHairStyle   Category = "hairStyle"
	CategoryBodyShape   Category = "bodyShape"
	CategoryBreastSize  Category = "breastSize"
	CategoryButtSize    Category = "buttSize"
	CategoryPersonality Category = "personality"
)

// MaxPersonalityTraits caps how many traits a companion can carry.
const MaxPersonalityTraits = 3

// MaxNameLength bounds the companion's display name in characters.
const MaxNameLength = 40

var labelOverrides = map[string]string{
	"romantic":     "Romantic Friend",
	"supportive":   "Supportive Friend",
	"study":        "Study Partner",
	"fitness":      "Fitness Coach",
	"30s":          "30s",
	"40s":          "40s",
	"50s":          "50s",
	"60s":          "60s",
	"70s-plus":     "70s+",
	"full-thick":   "Full / Thick",
	"psychologist": "Psychologist",
}

var titleCaser = cases.Title(language.English)

// Label renders a catalog id for display.
func Label(id string) string {
	if v, ok := labelOverrides[id]; ok {
		return v
	}
	return titleCaser.String(strings.ReplaceAll(id, "-", " "))
}

func options(ids ...string) []Option {
	out := make([]Option, 0, len(ids))
	for _, id := range ids {
		out = append(out, Option{ID: id, Label: Label(id), Available: true})
	}
	return out
}

func restrict(opts []Option, genders map[string][]string) []Option {
	for i := range opts {
		if g, ok := genders[opts[i].ID]; ok {
			opts[i].Genders = g
		}
	}
	return opts
}

// Catalog holds every option list offered by the wizard.
type Catalog struct {
	lists map[Category][]Option
}

// DefaultCatalog returns the built-in option lists.
func DefaultCatalog() *Catalog {
	types := options("romantic", "supportive", "study", "fitness", "psychologist")
	for i := range types {
		types[i].Available = types[i].ID == "romantic" || types[i].ID == "supportive"
	}
	return &Catalog{lists: map[Category][]Option{
		CategoryType:   types,
		CategoryGender: options(GenderMale, GenderFemale),
		CategoryAge:    options("late-teen", "early-twenties", "late-twenties", "30s", "40s", "50s", "60s", "70s-plus"),
		CategoryEthnicity: restrict(
			options("south-asian", "russian", "middle-eastern", "african", "european", "east-asian", "latina", "native-american"),
			map[string][]string{"latina": {GenderFemale}},
		),
		CategoryEyeColor:  options("brown", "hazel", "blue", "grey", "green", "silver"),
		CategoryHairColor: options("black", "brown", "light-brown", "blonde", "red", "white"),
		CategoryHairStyle: restrict(
			options("straight", "curly", "afro", "pixie-cut", "short-bob", "braid", "dreadlock", "high-ponytail"),
			map[string][]string{"pixie-cut": {GenderFemale}, "high-ponytail": {GenderFemale}},
		),
		CategoryBodyShape: options("slim", "athlete", "body-builder", "full-thick", "plus"),
		CategoryBreastSize: restrict(
			options("small", "average", "medium", "large"),
			map[string][]string{"small": {GenderFemale}, "average": {GenderFemale}, "medium": {GenderFemale}, "large": {GenderFemale}},
		),
		CategoryButtSize:    options("small", "average", "medium", "large"),
		CategoryPersonality: options("caring", "funny", "intelligent", "outgoing", "shy", "confident"),
	}}
}

// Options returns the list for a category filtered by gender.
func (c *Catalog) Options(cat Category, gender string) []Option {
	all := c.lists[cat]
	out := make([]Option, 0, len(all))
	for _, o := range all {
		if o.AllowsGender(gender) {
			out = append(out, o)
		}
	}
	return out
}

// Categories lists categories in wizard order.
func (c *Catalog) Categories() []Category {
	return []Category{
		CategoryType, CategoryGender, CategoryAge, CategoryEthnicity,
		CategoryEyeColor, CategoryHairColor, CategoryHairStyle,
		CategoryBodyShape, CategoryBreastSize, CategoryButtSize, CategoryPersonality,
	}
}

// Lookup finds an option by id within a category.
func (c *Catalog) Lookup(cat Category, id string) (Option, bool) {
	for _, o := range c.lists[cat] {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

// Allowed reports whether id is a known, available option of cat for gender.
func (c *Catalog) Allowed(cat Category, id, gender string) bool {
	o, ok := c.Lookup(cat, id)
	return ok && o.Available && o.AllowsGender(gender)
}
