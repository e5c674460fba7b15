package handlers

import (
	"net/http"
	"strings"

	"companion/internal/domain"
	"companion/internal/wizard"
)

type stepDTO struct {
	Number int    `json:"number"`
	Name   string `json:"name"`
}

type catalogResponse struct {
	Steps      []stepDTO                           `json:"steps"`
	Options    map[domain.Category][]domain.Option `json:"options"`
	MaxTraits  int                                 `json:"maxPersonalityTraits"`
	MaxNameLen int                                 `json:"maxNameLength"`
}

// ListCatalog lists the wizard steps and option lists, filtered by ?gender=.
func (a *App) ListCatalog(w http.ResponseWriter, r *http.Request) {
	gender := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("gender")))
	resp := catalogResponse{
		Steps:      make([]stepDTO, 0, wizard.TotalSteps),
		Options:    make(map[domain.Category][]domain.Option),
		MaxTraits:  domain.MaxPersonalityTraits,
		MaxNameLen: domain.MaxNameLength,
	}
	for n := 1; n <= wizard.TotalSteps; n++ {
		resp.Steps = append(resp.Steps, stepDTO{Number: n, Name: wizard.StepNames[n]})
	}
	for _, cat := range a.Catalog.Categories() {
		if cat == domain.CategoryBreastSize && gender != "" && gender != domain.GenderFemale {
			resp.Options[cat] = []domain.Option{}
			continue
		}
		resp.Options[cat] = a.Catalog.Options(cat, gender)
	}
	a.json(w, http.StatusOK, resp)
}
