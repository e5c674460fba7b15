package wizard

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"companion/internal/companion"
	"companion/internal/domain"
	"companion/internal/imagegen"
	"companion/internal/infra"
)

// Generator runs image generation.
type Generator interface {
	Generate(ctx context.Context, in imagegen.Input) (*imagegen.Result, error)
}

// Saver persists the finished companion.
type Saver interface {
	SaveCompanion(ctx context.Context, in companion.SaveInput) (*domain.Companion, error)
}

// Variant kinds accepted by Select.
const (
	VariantFace = "face"
	VariantBody = "body"
)

// Service drives wizard sessions: step navigation, generation and the final
// save.
type Service struct {
	store     *Store
	catalog   *domain.Catalog
	generator Generator
	saver     Saver
	logger    infra.Logger
	now       func() time.Time
}

func NewService(store *Store, catalog *domain.Catalog, generator Generator, saver Saver, logger infra.Logger) *Service {
	if store == nil {
		store = NewStore()
	}
	if catalog == nil {
		catalog = domain.DefaultCatalog()
	}
	return &Service{
		store:     store,
		catalog:   catalog,
		generator: generator,
		saver:     saver,
		logger:    infra.Component(logger, "wizard"),
		now:       time.Now,
	}
}

// Start opens a new session at step one.
func (s *Service) Start(userID string) (Session, error) {
	if strings.TrimSpace(userID) == "" {
		return Session{}, domain.ErrUnauthorized
	}
	return s.store.create(newSession(uuid.NewString(), userID, s.now().UTC())), nil
}

func (s *Service) Get(id, userID string) (Session, error) {
	return s.store.Get(id, userID)
}

// Update applies selections without validating them; validation happens
// when the user moves forward.
func (s *Service) Update(id, userID string, p Patch) (Session, error) {
	return s.store.Update(id, userID, func(sess *Session) error {
		if err := writable(sess); err != nil {
			return err
		}
		p.apply(sess)
		return nil
	})
}

// Next validates the current step and advances. The last step stays put.
func (s *Service) Next(id, userID string) (Session, error) {
	return s.store.Update(id, userID, func(sess *Session) error {
		if err := writable(sess); err != nil {
			return err
		}
		if err := Validate(s.catalog, sess, sess.Step); err != nil {
			return err
		}
		if sess.Step < TotalSteps {
			sess.Step++
		}
		return nil
	})
}

// Back moves one step back without validation.
func (s *Service) Back(id, userID string) (Session, error) {
	return s.store.Update(id, userID, func(sess *Session) error {
		if err := writable(sess); err != nil {
			return err
		}
		if sess.Step > StepTypeGender {
			sess.Step--
		}
		return nil
	})
}

// Select marks a previously returned variant as the active one. It never
// triggers generation.
func (s *Service) Select(id, userID, kind string, index int) (Session, error) {
	return s.store.Update(id, userID, func(sess *Session) error {
		if sess.Completed {
			return ErrSessionClosed
		}
		switch kind {
		case VariantFace:
			if index < 0 || index >= len(sess.FaceVariants) {
				return ErrVariantOutOfRange
			}
			sess.SelectedFace = index
		case VariantBody:
			if index < 0 || index >= len(sess.BodyVariants) {
				return ErrVariantOutOfRange
			}
			sess.SelectedBody = index
		default:
			return ErrUnknownVariantKind
		}
		return nil
	})
}

// requiredForGeneration lists the steps whose selections feed the prompt for
// a session at step with the given mode.
func requiredForGeneration(step int, mode imagegen.Mode) []int {
	steps := []int{StepTypeGender, StepAgeEthnicity}
	for st := StepFace; st < step && st <= StepBody; st++ {
		steps = append(steps, st)
	}
	if mode == imagegen.ModeFaceBody && step <= StepBody {
		steps = append(steps, StepBody)
	}
	return steps
}

// Generate runs face generation before the body step and face plus body from
// it on. Previous variants are discarded first. Only one generation per
// session runs at a time.
func (s *Service) Generate(ctx context.Context, id, userID string) (Session, error) {
	var (
		attrs domain.Attributes
		mode  imagegen.Mode
	)
	_, err := s.store.Update(id, userID, func(sess *Session) error {
		if err := writable(sess); err != nil {
			return err
		}
		mode = sess.Mode()
		if err := validateAll(s.catalog, sess, requiredForGeneration(sess.Step, mode)...); err != nil {
			return err
		}
		sess.busy = true
		sess.resetVariants()
		sess.LastError = nil
		sess.GenerationState = imagegen.StateIdle
		attrs = sess.Attributes
		return nil
	})
	if err != nil {
		return Session{}, err
	}

	res, genErr := s.generator.Generate(ctx, imagegen.Input{
		UserID:     userID,
		Mode:       mode,
		Attributes: attrs,
		OnState: func(st imagegen.State) {
			_, _ = s.store.Update(id, userID, func(sess *Session) error {
				sess.GenerationState = st
				return nil
			})
		},
	})

	out, err := s.store.Update(id, userID, func(sess *Session) error {
		sess.busy = false
		if genErr != nil {
			sess.GenerationState = imagegen.StateFailed
			failure := &GenerationFailure{Kind: "error", Detail: genErr.Error()}
			var ge *imagegen.Error
			if errors.As(genErr, &ge) {
				failure = &GenerationFailure{Kind: ge.Kind, Stage: ge.Stage, Detail: ge.Detail}
			}
			sess.LastError = failure
			return nil
		}
		sess.GenerationState = imagegen.StateSucceeded
		sess.FaceVariants = res.Face.Variants()
		sess.FacePrompt = res.Face.Prompt
		sess.SelectedFace = 0
		if res.Body != nil {
			sess.BodyVariants = res.Body.Variants()
			sess.BodyPrompt = res.Body.Prompt
			sess.SelectedBody = 0
		}
		balance := res.Balance
		sess.Balance = &balance
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	if genErr != nil {
		s.logger.Warn().Err(genErr).Str("session_id", id).Str("user_id", userID).Msg("wizard generation failed")
		return out, genErr
	}
	return out, nil
}

// Complete validates every step, requires a face and a body selection and
// saves the companion. The session is closed afterwards.
func (s *Service) Complete(ctx context.Context, id, userID string) (Session, *domain.Companion, error) {
	var in companion.SaveInput
	_, err := s.store.Update(id, userID, func(sess *Session) error {
		if err := writable(sess); err != nil {
			return err
		}
		if err := validateAll(s.catalog, sess, StepTypeGender, StepAgeEthnicity, StepFace, StepBody, StepName, StepPersonality); err != nil {
			return err
		}
		face, body := sess.SelectedFaceURL(), sess.SelectedBodyURL()
		if face == "" || body == "" {
			return ErrNoSelection
		}
		sess.busy = true
		in = companion.SaveInput{
			UserID: userID,
			Draft: domain.CompanionDraft{
				Name:        sess.Name,
				Type:        sess.Type,
				Attributes:  sess.Attributes,
				Personality: append([]string(nil), sess.Personality...),
			},
			FacePrompt: sess.FacePrompt,
			BodyPrompt: sess.BodyPrompt,
			FaceImage:  face,
			BodyImage:  body,
		}
		return nil
	})
	if err != nil {
		return Session{}, nil, err
	}

	saved, saveErr := s.saver.SaveCompanion(ctx, in)

	out, err := s.store.Update(id, userID, func(sess *Session) error {
		sess.busy = false
		if saveErr == nil {
			sess.Completed = true
			sess.CompanionID = saved.ID
		}
		return nil
	})
	if err != nil {
		return Session{}, nil, err
	}
	if saveErr != nil {
		return out, nil, saveErr
	}
	s.logger.Info().Str("session_id", id).Str("user_id", userID).Str("companion_id", saved.ID).Msg("wizard completed")
	return out, saved, nil
}

// Prune drops sessions idle for longer than idle.
func (s *Service) Prune(idle time.Duration) int {
	return s.store.Prune(idle)
}

func writable(sess *Session) error {
	if sess.Completed {
		return ErrSessionClosed
	}
	if sess.busy {
		return ErrGenerationInProgress
	}
	return nil
}
