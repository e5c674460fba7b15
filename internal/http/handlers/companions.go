package handlers

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	"github.com/go-chi/chi/v5"

	"companion/internal/domain"
)

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

type companionListResponse struct {
	Items []domain.Companion `json:"items"`
}

func (a *App) ListCompanions(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, r, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	items, err := a.Companions.List(r.Context(), userID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if items == nil {
		items = []domain.Companion{}
	}
	a.json(w, http.StatusOK, companionListResponse{Items: items})
}

func (a *App) GetCompanion(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, r, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	c, err := a.Companions.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, c)
}

// ArchiveCompanion streams a zip with the companion's face and body images.
func (a *App) ArchiveCompanion(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, r, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	c, data, err := a.Companions.Archive(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	name := unsafeFilename.ReplaceAllString(c.Name, "_")
	if name == "" || name == "_" {
		name = c.ID
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.zip"`, name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
