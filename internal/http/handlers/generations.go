package handlers

import (
	"net/http"
	"strings"

	"companion/internal/domain"
	"companion/internal/imagegen"
)

type generationRequest struct {
	Mode       string            `json:"mode"`
	Attributes domain.Attributes `json:"attributes"`
}

type generationResponse struct {
	Mode         imagegen.Mode `json:"mode"`
	FacePrompt   string        `json:"facePrompt"`
	FaceVariants []string      `json:"faceVariants"`
	BodyPrompt   string        `json:"bodyPrompt,omitempty"`
	BodyVariants []string      `json:"bodyVariants,omitempty"`
	Cost         int           `json:"cost"`
	Balance      int           `json:"balance"`
}

// parseMode accepts "face" and "body"; "face_body" is an alias of "body".
func parseMode(v string) (imagegen.Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "face":
		return imagegen.ModeFace, true
	case "body", "face_body":
		return imagegen.ModeFaceBody, true
	}
	return "", false
}

// CreateGeneration runs a generation outside of a wizard session.
func (a *App) CreateGeneration(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, r, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req generationRequest
	if err := a.decode(r, &req); err != nil {
		a.error(w, r, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	mode, ok := parseMode(req.Mode)
	if !ok {
		a.error(w, r, http.StatusBadRequest, "bad_request", "mode must be face or body")
		return
	}
	attrs := req.Attributes.Trimmed()
	if attrs.Gender == "" {
		a.error(w, r, http.StatusBadRequest, "invalid_input", "attributes.gender is required")
		return
	}
	if !attrs.IsFemale() {
		attrs.BreastSize = ""
	}

	res, err := a.Generator.Generate(r.Context(), imagegen.Input{UserID: userID, Mode: mode, Attributes: attrs})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out := generationResponse{
		Mode:         res.Mode,
		FacePrompt:   res.Face.Prompt,
		FaceVariants: res.Face.Variants(),
		Cost:         res.Cost,
		Balance:      res.Balance,
	}
	if res.Body != nil {
		out.BodyPrompt = res.Body.Prompt
		out.BodyVariants = res.Body.Variants()
	}
	a.json(w, http.StatusOK, out)
}
