package domain

import "strings"

// Gender ids understood by the prompt builder.
const (
	GenderMale   = "male"
	GenderFemale = "female"
)

// Attributes are the physical traits collected by the creation wizard. Values
// are catalog ids and are treated as opaque strings; empty means unset.
type Attributes struct {
	Gender     string `json:"gender" bson:"gender"`
	Age        string `json:"age" bson:"age"`
	Ethnicity  string `json:"ethnicity" bson:"ethnicity"`
	EyeColor   string `json:"eyeColor,omitempty" bson:"eye_color,omitempty"`
	HairColor  string `json:"hairColor,omitempty" bson:"hair_color,omitempty"`
	HairStyle  string `json:"hairStyle,omitempty" bson:"hair_style,omitempty"`
	BodyShape  string `json:"bodyShape,omitempty" bson:"body_shape,omitempty"`
	BreastSize string `json:"breastSize,omitempty" bson:"breast_size,omitempty"`
	ButtSize   string `json:"buttSize,omitempty" bson:"butt_size,omitempty"`
}

// IsFemale compares the gender id case-insensitively.
func (a Attributes) IsFemale() bool {
	return strings.EqualFold(strings.TrimSpace(a.Gender), GenderFemale)
}

// Trimmed returns a copy with surrounding whitespace removed from every field.
func (a Attributes) Trimmed() Attributes {
	return Attributes{
		Gender:     strings.TrimSpace(a.Gender),
		Age:        strings.TrimSpace(a.Age),
		Ethnicity:  strings.TrimSpace(a.Ethnicity),
		EyeColor:   strings.TrimSpace(a.EyeColor),
		HairColor:  strings.TrimSpace(a.HairColor),
		HairStyle:  strings.TrimSpace(a.HairStyle),
		BodyShape:  strings.TrimSpace(a.BodyShape),
		BreastSize: strings.TrimSpace(a.BreastSize),
		ButtSize:   strings.TrimSpace(a.ButtSize),
	}
}
