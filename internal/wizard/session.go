package wizard

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"companion/internal/domain"
	"companion/internal/imagegen"
)

// Step numbers of the creation wizard.
const (
	StepTypeGender   = 1
	StepAgeEthnicity = 2
	StepFace         = 3
	StepBody         = 4
	StepName         = 5
	StepPersonality  = 6

	TotalSteps = StepPersonality
)

var (
	ErrGenerationInProgress = errors.New("wizard: generation already in progress")
	ErrSessionClosed        = errors.New("wizard: session is already completed")
	ErrVariantOutOfRange    = errors.New("wizard: variant index out of range")
	ErrNoSelection          = errors.New("wizard: face and body images must be selected")
	ErrUnknownVariantKind   = errors.New("wizard: unknown variant kind")
)

// StepNames label the steps for clients.
var StepNames = map[int]string{
	StepTypeGender:   "Type & Gender",
	StepAgeEthnicity: "Age & Ethnicity",
	StepFace:         "Face",
	StepBody:         "Body",
	StepName:         "Name",
	StepPersonality:  "Personality",
}

// ValidationError names the step and field that blocked progress.
type ValidationError struct {
	Step   int    `json:"step"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("wizard: step %d: %s %s", e.Step, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return domain.ErrInvalidAttribute }

// GenerationFailure is the last failed generation, kept for display.
type GenerationFailure struct {
	Kind   imagegen.Kind  `json:"kind"`
	Stage  imagegen.Stage `json:"stage,omitempty"`
	Detail string         `json:"detail,omitempty"`
}

// Session is one user's walk through the wizard.
type Session struct {
	ID          string            `json:"id"`
	UserID      string            `json:"userId"`
	Step        int               `json:"step"`
	Type        string            `json:"type,omitempty"`
	Name        string            `json:"name,omitempty"`
	Attributes  domain.Attributes `json:"attributes"`
	Personality []string          `json:"personality"`

	GenerationState imagegen.State     `json:"generationState"`
	LastError       *GenerationFailure `json:"lastError,omitempty"`
	FacePrompt      string             `json:"facePrompt,omitempty"`
	BodyPrompt      string             `json:"bodyPrompt,omitempty"`
	FaceVariants    []string           `json:"faceVariants"`
	BodyVariants    []string           `json:"bodyVariants"`
	SelectedFace    int                `json:"selectedFace"`
	SelectedBody    int                `json:"selectedBody"`
	Balance         *int               `json:"balance,omitempty"`

	CompanionID string    `json:"companionId,omitempty"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	busy bool
}

func newSession(id, userID string, now time.Time) *Session {
	return &Session{
		ID:              id,
		UserID:          userID,
		Step:            StepTypeGender,
		GenerationState: imagegen.StateIdle,
		Personality:     []string{},
		FaceVariants:    []string{},
		BodyVariants:    []string{},
		SelectedFace:    -1,
		SelectedBody:    -1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (s *Session) clone() Session {
	out := *s
	out.Personality = append([]string{}, s.Personality...)
	out.FaceVariants = append([]string{}, s.FaceVariants...)
	out.BodyVariants = append([]string{}, s.BodyVariants...)
	if s.LastError != nil {
		e := *s.LastError
		out.LastError = &e
	}
	if s.Balance != nil {
		b := *s.Balance
		out.Balance = &b
	}
	return out
}

// Mode is the generation mode for the current step: face only before the
// body step, face and body from it on.
func (s *Session) Mode() imagegen.Mode {
	if s.Step >= StepBody {
		return imagegen.ModeFaceBody
	}
	return imagegen.ModeFace
}

// SelectedFaceURL returns the chosen face variant or "".
func (s *Session) SelectedFaceURL() string {
	if s.SelectedFace < 0 || s.SelectedFace >= len(s.FaceVariants) {
		return ""
	}
	return s.FaceVariants[s.SelectedFace]
}

// SelectedBodyURL returns the chosen body variant or "".
func (s *Session) SelectedBodyURL() string {
	if s.SelectedBody < 0 || s.SelectedBody >= len(s.BodyVariants) {
		return ""
	}
	return s.BodyVariants[s.SelectedBody]
}

func (s *Session) resetVariants() {
	s.FaceVariants = []string{}
	s.BodyVariants = []string{}
	s.SelectedFace = -1
	s.SelectedBody = -1
	s.FacePrompt = ""
	s.BodyPrompt = ""
}

// Patch carries optional updates; nil fields are left alone.
type Patch struct {
	Type        *string   `json:"type"`
	Name        *string   `json:"name"`
	Gender      *string   `json:"gender"`
	Age         *string   `json:"age"`
	Ethnicity   *string   `json:"ethnicity"`
	EyeColor    *string   `json:"eyeColor"`
	HairColor   *string   `json:"hairColor"`
	HairStyle   *string   `json:"hairStyle"`
	BodyShape   *string   `json:"bodyShape"`
	BreastSize  *string   `json:"breastSize"`
	ButtSize    *string   `json:"buttSize"`
	Personality *[]string `json:"personality"`
}

func (p Patch) apply(s *Session) {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	set(&s.Type, p.Type)
	set(&s.Name, p.Name)
	set(&s.Attributes.Gender, p.Gender)
	set(&s.Attributes.Age, p.Age)
	set(&s.Attributes.Ethnicity, p.Ethnicity)
	set(&s.Attributes.EyeColor, p.EyeColor)
	set(&s.Attributes.HairColor, p.HairColor)
	set(&s.Attributes.HairStyle, p.HairStyle)
	set(&s.Attributes.BodyShape, p.BodyShape)
	set(&s.Attributes.BreastSize, p.BreastSize)
	set(&s.Attributes.ButtSize, p.ButtSize)
	if p.Personality != nil {
		traits := make([]string, 0, len(*p.Personality))
		for _, t := range *p.Personality {
			if t = strings.TrimSpace(t); t != "" {
				traits = append(traits, t)
			}
		}
		s.Personality = traits
	}
	if !s.Attributes.IsFemale() {
		s.Attributes.BreastSize = ""
	}
}

// Validate checks the selections owned by step.
func Validate(c *domain.Catalog, s *Session, step int) error {
	a := s.Attributes
	gender := a.Gender
	need := func(field string, cat domain.Category, value string) error {
		if value == "" {
			return &ValidationError{Step: step, Field: field, Reason: "is required"}
		}
		if !c.Allowed(cat, value, gender) {
			return &ValidationError{Step: step, Field: field, Reason: fmt.Sprintf("%q is not available", value)}
		}
		return nil
	}
	first := func(errs ...error) error {
		for _, err := range errs {
			if err != nil {
				return err
			}
		}
		return nil
	}

	switch step {
	case StepTypeGender:
		return first(need("type", domain.CategoryType, s.Type), need("gender", domain.CategoryGender, gender))
	case StepAgeEthnicity:
		return first(need("age", domain.CategoryAge, a.Age), need("ethnicity", domain.CategoryEthnicity, a.Ethnicity))
	case StepFace:
		return first(
			need("eyeColor", domain.CategoryEyeColor, a.EyeColor),
			need("hairColor", domain.CategoryHairColor, a.HairColor),
			need("hairStyle", domain.CategoryHairStyle, a.HairStyle),
		)
	case StepBody:
		errs := []error{need("bodyShape", domain.CategoryBodyShape, a.BodyShape)}
		if a.IsFemale() {
			errs = append(errs, need("breastSize", domain.CategoryBreastSize, a.BreastSize))
		}
		errs = append(errs, need("buttSize", domain.CategoryButtSize, a.ButtSize))
		return first(errs...)
	case StepName:
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return &ValidationError{Step: step, Field: "name", Reason: "is required"}
		}
		if utf8.RuneCountInString(name) > domain.MaxNameLength {
			return &ValidationError{Step: step, Field: "name", Reason: fmt.Sprintf("must be at most %d characters", domain.MaxNameLength)}
		}
		return nil
	case StepPersonality:
		if len(s.Personality) > domain.MaxPersonalityTraits {
			return &ValidationError{Step: step, Field: "personality", Reason: fmt.Sprintf("allows at most %d traits", domain.MaxPersonalityTraits)}
		}
		seen := make(map[string]struct{}, len(s.Personality))
		for _, t := range s.Personality {
			if _, ok := c.Lookup(domain.CategoryPersonality, t); !ok {
				return &ValidationError{Step: step, Field: "personality", Reason: fmt.Sprintf("%q is not a known trait", t)}
			}
			if _, dup := seen[t]; dup {
				return &ValidationError{Step: step, Field: "personality", Reason: fmt.Sprintf("%q is selected twice", t)}
			}
			seen[t] = struct{}{}
		}
		return nil
	default:
		return fmt.Errorf("wizard: unknown step %d", step)
	}
}

// validateAll checks every step in order and returns the first failure.
func validateAll(c *domain.Catalog, s *Session, steps ...int) error {
	for _, step := range steps {
		if err := Validate(c, s, step); err != nil {
			return err
		}
	}
	return nil
}
