package image

import (
	"fmt"
	"strings"

	"companion/internal/domain"
)

// QualitySuffix is appended to every prompt.
const QualitySuffix = ", high quality, detailed, 4k, intricate, highly detailed"

// BuildFacePrompt renders the portrait prompt for the face stage.
func BuildFacePrompt(attrs domain.Attributes) string {
	a := attrs.Trimmed()
	base := fmt.Sprintf("A realistic portrait of a %s year old %s %s", a.Age, a.Ethnicity, a.Gender)

	var clauses []string
	if a.EyeColor != "" {
		clauses = append(clauses, a.EyeColor+" eyes")
	}
	if hair := hairClause(a.HairColor, a.HairStyle); hair != "" {
		clauses = append(clauses, hair)
	}
	return base + joinClauses(clauses) + QualitySuffix
}

// BuildBodyPrompt renders the full body prompt for the body stage. Breast and
// butt size are only used for female companions.
func BuildBodyPrompt(attrs domain.Attributes) string {
	a := attrs.Trimmed()
	base := fmt.Sprintf("A realistic full body image of a %s year old %s %s. ", a.Age, a.Ethnicity, a.Gender)

	clothing := "wearing a nice suit."
	if a.IsFemale() {
		clothing = "wearing a nice dress."
	}

	var clauses []string
	if a.BodyShape != "" {
		clauses = append(clauses, a.BodyShape+" body shape")
	}
	if a.IsFemale() {
		if a.BreastSize != "" {
			clauses = append(clauses, a.BreastSize+" breast size")
		}
		if a.ButtSize != "" {
			clauses = append(clauses, a.ButtSize+" butt size")
		}
	}
	return base + clothing + joinClauses(clauses) + QualitySuffix
}

func hairClause(color, style string) string {
	switch {
	case color != "" && style != "":
		return color + " " + style + " hair"
	case color != "":
		return color + " hair"
	case style != "":
		return style + " hair"
	default:
		return ""
	}
}

// joinClauses attaches the first clause with " with " and the rest with ", ".
func joinClauses(clauses []string) string {
	if len(clauses) == 0 {
		return ""
	}
	return " with " + strings.Join(clauses, ", ")
}
