package types

import "strings"

// Account is the public view of a signed-up user.
type Account struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Verified bool   `json:"verified"`
}

// SignUpRequest is the body of POST /v1/auth/signup.
type SignUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (r *SignUpRequest) Validate() error {
	if err := requireText("email", r.Email); err != nil {
		return err
	}
	return requireText("password", r.Password)
}

// SignInRequest is the body of POST /v1/auth/signin.
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *SignInRequest) Validate() error {
	if err := requireText("email", r.Email); err != nil {
		return err
	}
	return requireText("password", r.Password)
}

// SignInResponse carries the session token. Send it back in the
// X-Nava-Session header.
type SignInResponse struct {
	Token string  `json:"token"`
	User  Account `json:"user"`
}

// EmailRequest is the body of resend and reset requests.
type EmailRequest struct {
	Email string `json:"email"`
}

func (r *EmailRequest) Validate() error {
	return requireText("email", r.Email)
}

// VerifyEmailRequest is the body of POST /v1/auth/verify.
type VerifyEmailRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (r *VerifyEmailRequest) Validate() error {
	if err := requireText("email", r.Email); err != nil {
		return err
	}
	return requireText("code", r.Code)
}

// ResetPasswordRequest is the body of POST /v1/auth/reset/confirm.
type ResetPasswordRequest struct {
	Email    string `json:"email"`
	Code     string `json:"code"`
	Password string `json:"password"`
}

func (r *ResetPasswordRequest) Validate() error {
	if err := requireText("email", r.Email); err != nil {
		return err
	}
	if err := requireText("code", r.Code); err != nil {
		return err
	}
	return requireText("password", r.Password)
}

// ProfileUpdate is the body of PUT /v1/profile. Empty fields are left
// unchanged.
type ProfileUpdate struct {
	Name       string     `json:"name,omitempty"`
	Country    string     `json:"country,omitempty"`
	SkillLevel SkillLevel `json:"skillLevel,omitempty"`
	Color      string     `json:"color,omitempty"`
}

func (r *ProfileUpdate) Validate() error {
	if r.SkillLevel != "" && !r.SkillLevel.Valid() {
		return strictErr("skillLevel", "skillLevel must be Beginner, Student or Maker")
	}
	return nil
}

// Profile converts the update into a mergeable profile.
func (r ProfileUpdate) Profile() UserProfile {
	return UserProfile{Name: r.Name, Country: r.Country, SkillLevel: r.SkillLevel, Color: r.Color}
}

// HistoryRequest is the body of POST /v1/history.
type HistoryRequest struct {
	Title      string     `json:"title"`
	Difficulty Difficulty `json:"difficulty"`
	Thumbnail  string     `json:"thumbnail,omitempty"`
}

func (r *HistoryRequest) Validate() error {
	if err := requireText("title", r.Title); err != nil {
		return err
	}
	if r.Difficulty != "" && !r.Difficulty.Valid() {
		return strictErr("difficulty", "difficulty must be Easy, Medium or Hard")
	}
	if t := strings.TrimSpace(r.Thumbnail); t != "" && !strings.HasPrefix(t, "data:image/") {
		return strictErr("thumbnail", "thumbnail must be an image data URI")
	}
	return nil
}

// HistoryResponse is the body returned by GET /v1/history.
type HistoryResponse struct {
	Projects []ProjectHistory `json:"projects"`
}

// AccountResponse is the body returned by POST /v1/auth/signup.
type AccountResponse struct {
	User Account `json:"user"`
}

// ProfileResponse is the body returned by the profile endpoints. Profile is
// null until one has been saved.
type ProfileResponse struct {
	Profile *UserProfile `json:"profile"`
}
