package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"companion/internal/companion"
	"companion/internal/domain"
	"companion/internal/imagegen"
	"companion/internal/infra"
	"companion/internal/infra/google"
	"companion/internal/middleware"
	"companion/internal/wizard"
)

const maxBodyBytes = 1 << 20

type IdentityVerifier interface {
	VerifyIDToken(ctx context.Context, token string) (*google.Identity, error)
}

type TokenIssuer interface {
	Issue(userID, email, locale string) (string, time.Time, error)
}

type Wallets interface {
	Provision(ctx context.Context, userID, email string) (*domain.Wallet, error)
	Wallet(ctx context.Context, userID string) (*domain.Wallet, error)
}

type Generator interface {
	Generate(ctx context.Context, in imagegen.Input) (*imagegen.Result, error)
}

type Companions interface {
	List(ctx context.Context, userID string) ([]domain.Companion, error)
	Get(ctx context.Context, userID, id string) (*domain.Companion, error)
	Archive(ctx context.Context, userID, id string) (*domain.Companion, []byte, error)
}

type Wizard interface {
	Start(userID string) (wizard.Session, error)
	Get(id, userID string) (wizard.Session, error)
	Update(id, userID string, p wizard.Patch) (wizard.Session, error)
	Next(id, userID string) (wizard.Session, error)
	Back(id, userID string) (wizard.Session, error)
	Select(id, userID, kind string, index int) (wizard.Session, error)
	Generate(ctx context.Context, id, userID string) (wizard.Session, error)
	Complete(ctx context.Context, id, userID string) (wizard.Session, *domain.Companion, error)
}

// Pinger reports the health of a dependency.
type Pinger func(ctx context.Context) error

// App carries the services used by the HTTP handlers.
type App struct {
	Logger     infra.Logger
	Verifier   IdentityVerifier
	Tokens     TokenIssuer
	Wallets    Wallets
	Generator  Generator
	Companions Companions
	Wizard     Wizard
	Catalog    *domain.Catalog
	Checks     map[string]Pinger
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, r *http.Request, code int, errCode, message string) {
	middleware.WriteError(w, r, code, errCode, message)
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

// decode reads a JSON body into dst. An empty body leaves dst untouched.
func (a *App) decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// fail maps service errors onto HTTP statuses.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := classify(err)
	if status >= http.StatusInternalServerError {
		a.Logger.Error().Err(err).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
	}
	a.error(w, r, status, code, message)
}

// StatusClientClosedRequest is the nginx convention for a request abandoned
// by the caller.
const StatusClientClosedRequest = 499

func classify(err error) (int, string, string) {
	var (
		genErr  *imagegen.Error
		valErr  *wizard.ValidationError
		persist *companion.PersistenceError
	)
	switch {
	case errors.As(err, &genErr):
		msg := genErr.Detail
		if msg == "" {
			msg = string(genErr.Kind)
		}
		switch genErr.Kind {
		case imagegen.KindInsufficientBalance:
			return http.StatusPaymentRequired, string(genErr.Kind), msg
		case imagegen.KindCancelled:
			return StatusClientClosedRequest, string(genErr.Kind), "request cancelled"
		case imagegen.KindUpstream, imagegen.KindInvalidResponse, imagegen.KindNetwork:
			return http.StatusBadGateway, string(genErr.Kind), msg
		default:
			return http.StatusInternalServerError, string(genErr.Kind), "coin ledger unavailable"
		}
	case errors.As(err, &valErr):
		return http.StatusBadRequest, "invalid_input", valErr.Error()
	case errors.As(err, &persist):
		if errors.Is(persist.Err, context.Canceled) {
			return StatusClientClosedRequest, "cancelled", "request cancelled"
		}
		return http.StatusInternalServerError, "persistence_failed", "failed to save companion at " + string(persist.Stage)
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found", "not found"
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized", "unauthorized"
	case errors.Is(err, domain.ErrInsufficientBalance):
		return http.StatusPaymentRequired, "insufficient_balance", "insufficient balance"
	case errors.Is(err, wizard.ErrGenerationInProgress), errors.Is(err, wizard.ErrSessionClosed):
		return http.StatusConflict, "conflict", err.Error()
	case errors.Is(err, wizard.ErrVariantOutOfRange), errors.Is(err, wizard.ErrUnknownVariantKind),
		errors.Is(err, wizard.ErrNoSelection), errors.Is(err, companion.ErrInvalidInput),
		errors.Is(err, domain.ErrInvalidAttribute):
		return http.StatusBadRequest, "invalid_input", err.Error()
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest, "cancelled", "request cancelled"
	default:
		return http.StatusInternalServerError, "internal", "internal error"
	}
}
