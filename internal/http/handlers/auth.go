package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"companion/internal/domain"
	"companion/internal/middleware"
)

type googleVerifyRequest struct {
	IDToken string `json:"idToken"`
}

type googleVerifyResponse struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expiresAt"`
	User      userProfileDTO `json:"user"`
}

type userProfileDTO struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
	Locale string `json:"locale"`
	Coins  int    `json:"coins"`
}

// AuthGoogleVerify exchanges a Google ID token for a session token. The first
// sign-in provisions the wallet with the starting coins.
func (a *App) AuthGoogleVerify(w http.ResponseWriter, r *http.Request) {
	var req googleVerifyRequest
	if err := a.decode(r, &req); err != nil {
		a.error(w, r, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if strings.TrimSpace(req.IDToken) == "" {
		a.error(w, r, http.StatusBadRequest, "bad_request", "idToken required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	identity, err := a.Verifier.VerifyIDToken(ctx, req.IDToken)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("google verify failed")
		a.error(w, r, http.StatusUnauthorized, "unauthorized", "invalid google token")
		return
	}

	wallet, err := a.Wallets.Provision(r.Context(), identity.Subject, identity.Email)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	locale := middleware.LocaleFromContext(r.Context())
	if identity.Locale != "" && r.Header.Get("X-Locale") == "" && r.Header.Get("Accept-Language") == "" {
		locale = identity.Locale
	}
	token, exp, err := a.Tokens.Issue(identity.Subject, identity.Email, locale)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, googleVerifyResponse{
		Token:     token,
		ExpiresAt: exp,
		User:      profile(wallet, identity.Name, locale),
	})
}

func (a *App) Me(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, r, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	wallet, err := a.Wallets.Wallet(r.Context(), userID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, profile(wallet, "", middleware.LocaleFromContext(r.Context())))
}

func profile(wallet *domain.Wallet, name, locale string) userProfileDTO {
	return userProfileDTO{
		ID:     wallet.UserID,
		Email:  wallet.Email,
		Name:   name,
		Locale: locale,
		Coins:  wallet.Coins,
	}
}
