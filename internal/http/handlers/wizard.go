package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"companion/internal/domain"
	"companion/internal/imagegen"
	"companion/internal/middleware"
	"companion/internal/wizard"
)

type wizardFailureResponse struct {
	Error   middleware.ErrorDetail `json:"error"`
	Session wizard.Session         `json:"session"`
}

type wizardCompleteResponse struct {
	Session   wizard.Session    `json:"session"`
	Companion *domain.Companion `json:"companion"`
}

// wizardCall resolves the user and session id, then runs fn and writes the
// resulting session.
func (a *App) wizardCall(w http.ResponseWriter, r *http.Request, fn func(id, userID string) (wizard.Session, error)) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, r, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	sess, err := fn(chi.URLParam(r, "id"), userID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, sess)
}

func (a *App) WizardStart(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, r, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	sess, err := a.Wizard.Start(userID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, sess)
}

func (a *App) WizardGet(w http.ResponseWriter, r *http.Request) {
	a.wizardCall(w, r, a.Wizard.Get)
}

func (a *App) WizardUpdate(w http.ResponseWriter, r *http.Request) {
	var p wizard.Patch
	if err := a.decode(r, &p); err != nil {
		a.error(w, r, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	a.wizardCall(w, r, func(id, userID string) (wizard.Session, error) {
		return a.Wizard.Update(id, userID, p)
	})
}

func (a *App) WizardNext(w http.ResponseWriter, r *http.Request) {
	a.wizardCall(w, r, a.Wizard.Next)
}

func (a *App) WizardBack(w http.ResponseWriter, r *http.Request) {
	a.wizardCall(w, r, a.Wizard.Back)
}

func (a *App) WizardSelect(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		a.error(w, r, http.StatusBadRequest, "bad_request", "index must be a number")
		return
	}
	kind := chi.URLParam(r, "kind")
	a.wizardCall(w, r, func(id, userID string) (wizard.Session, error) {
		return a.Wizard.Select(id, userID, kind, index)
	})
}

// WizardGenerate runs generation for the session. A failed generation is
// reported with the session attached so the client can show the last error.
func (a *App) WizardGenerate(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, r, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	sess, err := a.Wizard.Generate(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		var genErr *imagegen.Error
		if !errors.As(err, &genErr) || sess.ID == "" {
			a.fail(w, r, err)
			return
		}
		status, code, message := classify(err)
		a.json(w, status, wizardFailureResponse{
			Error: middleware.ErrorDetail{
				Code:      code,
				Message:   message,
				RequestID: middleware.RequestIDFromContext(r.Context()),
			},
			Session: sess,
		})
		return
	}
	a.json(w, http.StatusOK, sess)
}

func (a *App) WizardComplete(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, r, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	sess, saved, err := a.Wizard.Complete(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, wizardCompleteResponse{Session: sess, Companion: saved})
}
