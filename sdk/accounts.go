package nava

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/vango-go/nava/pkg/core"
	"github.com/vango-go/nava/pkg/core/types"
)

// AccountsService covers /v1/auth, /v1/profile and /v1/history. SignIn
// stores the session token on the Client; the profile and history calls send
// it back.
type AccountsService struct {
	client *Client
}

func (s *AccountsService) SignUp(ctx context.Context, email, password, name string) (types.Account, error) {
	var resp types.AccountResponse
	err := s.client.do(ctx, call{
		method:  http.MethodPost,
		path:    "/v1/auth/signup",
		payload: types.SignUpRequest{Email: email, Password: password, Name: name},
		out:     &resp,
	})
	return resp.User, err
}

// SignIn authenticates and keeps the returned session token.
func (s *AccountsService) SignIn(ctx context.Context, email, password string) (types.Account, error) {
	var resp types.SignInResponse
	err := s.client.do(ctx, call{
		method:  http.MethodPost,
		path:    "/v1/auth/signin",
		payload: types.SignInRequest{Email: email, Password: password},
		out:     &resp,
	})
	if err != nil {
		return types.Account{}, err
	}
	s.client.SetSession(resp.Token)
	return resp.User, nil
}

// SignOut revokes the session. The local token is dropped even when the
// gateway call fails.
func (s *AccountsService) SignOut(ctx context.Context) error {
	if s.client.Session() == "" {
		return nil
	}
	err := s.client.do(ctx, call{method: http.MethodPost, path: "/v1/auth/signout", session: true})
	s.client.SetSession("")
	return err
}

func (s *AccountsService) VerifyEmail(ctx context.Context, email, code string) error {
	return s.client.do(ctx, call{
		method:  http.MethodPost,
		path:    "/v1/auth/verify",
		payload: types.VerifyEmailRequest{Email: email, Code: code},
	})
}

func (s *AccountsService) ResendVerification(ctx context.Context, email string) error {
	return s.client.do(ctx, call{
		method:  http.MethodPost,
		path:    "/v1/auth/resend",
		payload: types.EmailRequest{Email: email},
	})
}

func (s *AccountsService) RequestPasswordReset(ctx context.Context, email string) error {
	return s.client.do(ctx, call{
		method:  http.MethodPost,
		path:    "/v1/auth/reset",
		payload: types.EmailRequest{Email: email},
	})
}

func (s *AccountsService) ResetPassword(ctx context.Context, email, code, password string) error {
	return s.client.do(ctx, call{
		method:  http.MethodPost,
		path:    "/v1/auth/reset/confirm",
		payload: types.ResetPasswordRequest{Email: email, Code: code, Password: password},
	})
}

// Profile returns the signed-in user's profile, or nil when none is saved.
func (s *AccountsService) Profile(ctx context.Context) (*types.UserProfile, error) {
	if err := s.requireSession(); err != nil {
		return nil, err
	}
	var resp types.ProfileResponse
	if err := s.client.do(ctx, call{method: http.MethodGet, path: "/v1/profile", out: &resp, session: true}); err != nil {
		return nil, err
	}
	return resp.Profile, nil
}

func (s *AccountsService) SaveProfile(ctx context.Context, update types.ProfileUpdate) (types.UserProfile, error) {
	if err := s.requireSession(); err != nil {
		return types.UserProfile{}, err
	}
	var resp types.ProfileResponse
	err := s.client.do(ctx, call{method: http.MethodPut, path: "/v1/profile", payload: update, out: &resp, session: true})
	if err != nil {
		return types.UserProfile{}, err
	}
	if resp.Profile == nil {
		return types.UserProfile{}, core.NewAPIError("gateway returned no profile")
	}
	return *resp.Profile, nil
}

// History lists the signed-in user's projects, newest first.
func (s *AccountsService) History(ctx context.Context) ([]types.ProjectHistory, error) {
	if err := s.requireSession(); err != nil {
		return nil, err
	}
	var resp types.HistoryResponse
	if err := s.client.do(ctx, call{method: http.MethodGet, path: "/v1/history", out: &resp, session: true}); err != nil {
		return nil, err
	}
	return resp.Projects, nil
}

func (s *AccountsService) AddHistory(ctx context.Context, req types.HistoryRequest) (types.ProjectHistory, error) {
	if err := s.requireSession(); err != nil {
		return types.ProjectHistory{}, err
	}
	var entry types.ProjectHistory
	err := s.client.do(ctx, call{method: http.MethodPost, path: "/v1/history", payload: req, out: &entry, session: true})
	return entry, err
}

func (s *AccountsService) CompleteHistory(ctx context.Context, id string) error {
	if err := s.requireSession(); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.NewInvalidRequestErrorWithParam("project id is required", "id")
	}
	return s.client.do(ctx, call{
		method:  http.MethodPost,
		path:    "/v1/history/" + url.PathEscape(id) + "/complete",
		session: true,
	})
}

func (s *AccountsService) requireSession() error {
	if s.client.Session() == "" {
		err := core.NewAuthError(core.AuthSessionExpired, "not signed in")
		err.Param = sessionHeader
		return err
	}
	return nil
}
