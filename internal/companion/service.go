package companion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"companion/internal/domain"
	"companion/internal/infra"
	"companion/internal/storage"
	"companion/pkg/zip"
)

// ImageLoader resolves a generated image reference into bytes.
type ImageLoader interface {
	Load(ctx context.Context, source string) (storage.Image, error)
}

// Recorder counts save outcomes. A nil Recorder is allowed.
type Recorder interface {
	CompanionSaved(outcome string)
}

type Options struct {
	Repo    domain.CompanionRepository
	Store   domain.ObjectStore
	Loader  ImageLoader
	Catalog *domain.Catalog
	Metrics Recorder
	Logger  *infra.Logger
}

// Service rehosts the selected images and writes companion records.
type Service struct {
	repo    domain.CompanionRepository
	store   domain.ObjectStore
	loader  ImageLoader
	catalog *domain.Catalog
	metrics Recorder
	logger  infra.Logger

	now   func() time.Time
	newID func() string
}

func NewService(opts Options) (*Service, error) {
	if opts.Repo == nil || opts.Store == nil || opts.Loader == nil {
		return nil, errors.New("companion: repo, store and loader are required")
	}
	catalog := opts.Catalog
	if catalog == nil {
		catalog = domain.DefaultCatalog()
	}
	logger := infra.NopLogger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Service{
		repo:    opts.Repo,
		store:   opts.Store,
		loader:  opts.Loader,
		catalog: catalog,
		metrics: opts.Metrics,
		logger:  infra.Component(logger, "companion"),
		now:     time.Now,
		newID:   uuid.NewString,
	}, nil
}

// SaveInput is everything the wizard collected for one companion.
type SaveInput struct {
	UserID     string
	Draft      domain.CompanionDraft
	FacePrompt string
	BodyPrompt string
	// FaceImage and BodyImage are the selected variants: remote URLs or
	// data: URLs.
	FaceImage string
	BodyImage string
}

// ObjectKey is where a companion image lives in object storage.
func ObjectKey(userID, companionID, kind string) string {
	return fmt.Sprintf("companions/%s/%s/%s.jpg", userID, companionID, kind)
}

// SaveCompanion uploads both images and then writes the document. Either
// everything is stored or nothing is: uploads from a failed save are removed.
func (s *Service) SaveCompanion(ctx context.Context, in SaveInput) (*domain.Companion, error) {
	if err := s.validate(in); err != nil {
		s.observe("invalid")
		return nil, err
	}

	id := s.newID()
	now := s.now().UTC().Truncate(time.Millisecond)
	c := &domain.Companion{
		ID:           id,
		UserID:       in.UserID,
		Name:         strings.TrimSpace(in.Draft.Name),
		Type:         in.Draft.Type,
		Attributes:   in.Draft.Attributes.Trimmed(),
		Personality:  append([]string(nil), in.Draft.Personality...),
		FacePrompt:   in.FacePrompt,
		BodyPrompt:   in.BodyPrompt,
		FaceImageKey: ObjectKey(in.UserID, id, "face"),
		BodyImageKey: ObjectKey(in.UserID, id, "body"),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if !c.Attributes.IsFemale() {
		c.Attributes.BreastSize = ""
	}
	log := s.logger.With().Str("user_id", in.UserID).Str("companion_id", id).Logger()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		url, err := s.rehost(gctx, in.FaceImage, c.FaceImageKey)
		if err != nil {
			return &PersistenceError{Stage: StageFaceUpload, Err: err}
		}
		c.FaceImageURL = url
		return nil
	})
	g.Go(func() error {
		url, err := s.rehost(gctx, in.BodyImage, c.BodyImageKey)
		if err != nil {
			return &PersistenceError{Stage: StageBodyUpload, Err: err}
		}
		c.BodyImageURL = url
		return nil
	})
	if err := g.Wait(); err != nil {
		s.cleanup(ctx, &log, c.FaceImageKey, c.BodyImageKey)
		s.fail(&log, err)
		return nil, err
	}

	if err := s.repo.Insert(ctx, c); err != nil {
		s.cleanup(ctx, &log, c.FaceImageKey, c.BodyImageKey)
		perr := &PersistenceError{Stage: StageDocumentWrite, Err: err}
		s.fail(&log, perr)
		return nil, perr
	}

	s.observe("succeeded")
	log.Info().Msg("companion saved")
	return c, nil
}

func (s *Service) validate(in SaveInput) error {
	if strings.TrimSpace(in.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	name := strings.TrimSpace(in.Draft.Name)
	if name == "" || utf8.RuneCountInString(name) > domain.MaxNameLength {
		return fmt.Errorf("%w: name must be 1-%d characters", ErrInvalidInput, domain.MaxNameLength)
	}
	if strings.TrimSpace(in.FaceImage) == "" || strings.TrimSpace(in.BodyImage) == "" {
		return fmt.Errorf("%w: face and body images are required", ErrInvalidInput)
	}
	if len(in.Draft.Personality) > domain.MaxPersonalityTraits {
		return fmt.Errorf("%w: at most %d personality traits", ErrInvalidInput, domain.MaxPersonalityTraits)
	}
	seen := make(map[string]struct{}, len(in.Draft.Personality))
	for _, trait := range in.Draft.Personality {
		if _, ok := s.catalog.Lookup(domain.CategoryPersonality, trait); !ok {
			return fmt.Errorf("%w: unknown personality trait %q", ErrInvalidInput, trait)
		}
		if _, dup := seen[trait]; dup {
			return fmt.Errorf("%w: duplicate personality trait %q", ErrInvalidInput, trait)
		}
		seen[trait] = struct{}{}
	}
	return nil
}

func (s *Service) rehost(ctx context.Context, source, key string) (string, error) {
	img, err := s.loader.Load(ctx, source)
	if err != nil {
		return "", err
	}
	return s.store.Put(ctx, key, bytes.NewReader(img.Data), int64(len(img.Data)), img.ContentType)
}

// cleanup removes objects a failed save may have written. It runs even when
// ctx is already cancelled.
func (s *Service) cleanup(ctx context.Context, log *infra.Logger, keys ...string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	for _, key := range keys {
		if err := s.store.Delete(cctx, key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("cleanup of partial upload failed")
		}
	}
}

func (s *Service) fail(log *infra.Logger, err error) {
	var perr *PersistenceError
	outcome := "failed"
	if errors.As(err, &perr) {
		outcome = string(perr.Stage)
	}
	s.observe(outcome)
	log.Error().Err(err).Str("stage", outcome).Msg("companion save failed")
}

func (s *Service) observe(outcome string) {
	if s.metrics != nil {
		s.metrics.CompanionSaved(outcome)
	}
}

// List returns the user's companions, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]domain.Companion, error) {
	return s.repo.ListByUser(ctx, userID)
}

// Get returns a companion owned by userID. Companions of other users are
// reported as not found.
func (s *Service) Get(ctx context.Context, userID, id string) (*domain.Companion, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

// Archive bundles the companion's stored images into a zip.
func (s *Service) Archive(ctx context.Context, userID, id string) (*domain.Companion, []byte, error) {
	c, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, nil, err
	}
	var assets []zip.Asset
	for _, part := range []struct{ name, key string }{{"face.jpg", c.FaceImageKey}, {"body.jpg", c.BodyImageKey}} {
		if part.key == "" {
			continue
		}
		data, err := s.store.Get(ctx, part.key)
		if err != nil {
			return nil, nil, fmt.Errorf("companion.Archive: %s: %w", part.name, err)
		}
		assets = append(assets, zip.Asset{Filename: part.name, MIME: "image/jpeg", Data: data, Modified: c.CreatedAt})
	}
	archive, err := zip.ArchiveAssets(assets)
	if err != nil {
		return nil, nil, fmt.Errorf("companion.Archive: %w", err)
	}
	return c, archive, nil
}
