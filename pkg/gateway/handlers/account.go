package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/vango-go/nava/pkg/core"
	"github.com/vango-go/nava/pkg/core/types"
	"github.com/vango-go/nava/pkg/gateway/auth"
	"github.com/vango-go/nava/pkg/store"
)

// Identity is the account service. *identity.Service implements it.
type Identity interface {
	SignUp(ctx context.Context, email, password, name string) (types.Account, error)
	SignIn(ctx context.Context, email, password string) (string, types.Account, error)
	SignOut(ctx context.Context, token string) error
	Authenticate(ctx context.Context, token string) (types.Account, error)
	VerifyEmail(ctx context.Context, email, code string) error
	ResendVerification(ctx context.Context, email string) error
	RequestPasswordReset(ctx context.Context, email string)
	ResetPassword(ctx context.Context, email, code, password string) error
}

// Profiles persists profiles and project history. *store.Store implements it.
type Profiles interface {
	GetProfile(ctx context.Context, accountID string) (*types.UserProfile, error)
	SaveProfile(ctx context.Context, accountID string, update types.UserProfile) (types.UserProfile, error)
	AddHistory(ctx context.Context, accountID string, h types.ProjectHistory) (types.ProjectHistory, error)
	ListHistory(ctx context.Context, accountID string) ([]types.ProjectHistory, error)
	CompleteHistory(ctx context.Context, accountID, id string) error
}

// AccountHandler serves /v1/auth, /v1/profile and /v1/history. With a nil
// Identity every route answers config_error.
type AccountHandler struct {
	Identity Identity
	Profiles Profiles
	Logger   *slog.Logger
}

func (h AccountHandler) configured(w http.ResponseWriter, r *http.Request) bool {
	if h.Identity != nil && h.Profiles != nil {
		return true
	}
	writeError(w, r, core.NewAuthError(core.AuthConfig, "accounts are not configured"))
	return false
}

// session resolves the X-Nava-Session header to an account.
func (h AccountHandler) session(w http.ResponseWriter, r *http.Request) (types.Account, bool) {
	if !h.configured(w, r) {
		return types.Account{}, false
	}
	token, ok := auth.ParseSession(r)
	if !ok {
		err := core.NewAuthError(core.AuthSessionExpired, "missing session token")
		err.Param = auth.SessionHeader
		writeError(w, r, err)
		return types.Account{}, false
	}
	acct, err := h.Identity.Authenticate(r.Context(), token)
	if err != nil {
		writeError(w, r, err)
		return types.Account{}, false
	}
	return acct, true
}

func (h AccountHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) || !h.configured(w, r) {
		return
	}
	req, ok := decodeBody[types.SignUpRequest](w, r)
	if !ok {
		return
	}
	acct, err := h.Identity.SignUp(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.AccountResponse{User: acct})
}

func (h AccountHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) || !h.configured(w, r) {
		return
	}
	req, ok := decodeBody[types.SignInRequest](w, r)
	if !ok {
		return
	}
	token, acct, err := h.Identity.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.SignInResponse{Token: token, User: acct})
}

func (h AccountHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) || !h.configured(w, r) {
		return
	}
	token, _ := auth.ParseSession(r)
	if err := h.Identity.SignOut(r.Context(), token); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h AccountHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) || !h.configured(w, r) {
		return
	}
	req, ok := decodeBody[types.VerifyEmailRequest](w, r)
	if !ok {
		return
	}
	if err := h.Identity.VerifyEmail(r.Context(), req.Email, req.Code); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h AccountHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) || !h.configured(w, r) {
		return
	}
	req, ok := decodeBody[types.EmailRequest](w, r)
	if !ok {
		return
	}
	if err := h.Identity.ResendVerification(r.Context(), req.Email); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// RequestPasswordReset always answers 202 so callers cannot test for
// accounts.
func (h AccountHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) || !h.configured(w, r) {
		return
	}
	req, ok := decodeBody[types.EmailRequest](w, r)
	if !ok {
		return
	}
	h.Identity.RequestPasswordReset(r.Context(), req.Email)
	w.WriteHeader(http.StatusAccepted)
}

func (h AccountHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) || !h.configured(w, r) {
		return
	}
	req, ok := decodeBody[types.ResetPasswordRequest](w, r)
	if !ok {
		return
	}
	if err := h.Identity.ResetPassword(r.Context(), req.Email, req.Code, req.Password); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Profile serves GET and PUT /v1/profile.
func (h AccountHandler) Profile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPut {
		allowMethod(w, r, http.MethodGet)
		return
	}
	acct, ok := h.session(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodGet {
		p, err := h.Profiles.GetProfile(r.Context(), acct.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, types.ProfileResponse{Profile: p})
		return
	}

	req, ok := decodeBody[types.ProfileUpdate](w, r)
	if !ok {
		return
	}
	update := req.Profile()
	update.Email = acct.Email
	if update.Name == "" && acct.Name != "" {
		update.Name = acct.Name
	}
	p, err := h.Profiles.SaveProfile(r.Context(), acct.ID, update)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.ProfileResponse{Profile: &p})
}

// History serves GET and POST /v1/history.
func (h AccountHandler) History(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		allowMethod(w, r, http.MethodGet)
		return
	}
	acct, ok := h.session(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodGet {
		projects, err := h.Profiles.ListHistory(r.Context(), acct.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, types.HistoryResponse{Projects: projects})
		return
	}

	req, ok := decodeBody[types.HistoryRequest](w, r)
	if !ok {
		return
	}
	entry, err := h.Profiles.AddHistory(r.Context(), acct.ID, types.ProjectHistory{
		Title:      strings.TrimSpace(req.Title),
		Difficulty: req.Difficulty,
		Thumbnail:  strings.TrimSpace(req.Thumbnail),
		Status:     types.ProjectInProgress,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if h.Logger != nil {
		h.Logger.Info("project started", "account_id", acct.ID, "project_id", entry.ID)
	}
	writeJSON(w, http.StatusCreated, entry)
}

// CompleteHistory serves POST /v1/history/{id}/complete.
func (h AccountHandler) CompleteHistory(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	acct, ok := h.session(w, r)
	if !ok {
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, r, core.NewInvalidRequestErrorWithParam("project id is required", "id"))
		return
	}
	err := h.Profiles.CompleteHistory(r.Context(), acct.ID, id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, core.NewNotFoundError("project not found"))
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
