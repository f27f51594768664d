package types

import "strings"

// MinGoalLength is the trimmed goal length a plan request must exceed.
const MinGoalLength = 3

// IdentifyRequest is the body of POST /v1/identify.
type IdentifyRequest struct {
	Image Image `json:"image"`
}

func (r *IdentifyRequest) Validate() error {
	return requireImage("image", r.Image)
}

// IdentifyResponse is the body returned by POST /v1/identify.
type IdentifyResponse struct {
	ObjectName string `json:"object_name"`
}

// SuggestionsRequest is the body of POST /v1/suggestions.
type SuggestionsRequest struct {
	ObjectName     string `json:"object_name"`
	Image          Image  `json:"image"`
	ReferenceImage *Image `json:"reference_image,omitempty"`
}

func (r *SuggestionsRequest) Validate() error {
	if err := requireText("object_name", r.ObjectName); err != nil {
		return err
	}
	if err := requireImage("image", r.Image); err != nil {
		return err
	}
	return optionalImage("reference_image", r.ReferenceImage)
}

// SuggestionsResponse is the body returned by POST /v1/suggestions.
type SuggestionsResponse struct {
	Suggestions []string `json:"suggestions"`
}

// PlanRequest is the body of POST /v1/plan.
type PlanRequest struct {
	Image          Image  `json:"image"`
	Goal           string `json:"goal"`
	ReferenceImage *Image `json:"reference_image,omitempty"`
}

func (r *PlanRequest) Validate() error {
	if err := requireImage("image", r.Image); err != nil {
		return err
	}
	if !ValidGoal(r.Goal) {
		return strictErr("goal", "goal must be longer than 3 characters")
	}
	return optionalImage("reference_image", r.ReferenceImage)
}

// ValidGoal reports whether a user goal is long enough to plan from.
func ValidGoal(goal string) bool {
	return len(strings.TrimSpace(goal)) > MinGoalLength
}

// PlanResponse is the body returned by POST /v1/plan.
type PlanResponse struct {
	Plan *Plan `json:"plan"`
}

// VerifyRequest is the body of POST /v1/verify.
type VerifyRequest struct {
	StepTitle       string `json:"step_title"`
	StepInstruction string `json:"step_instruction"`
	Image           Image  `json:"image"`
}

func (r *VerifyRequest) Validate() error {
	if err := requireText("step_title", r.StepTitle); err != nil {
		return err
	}
	return requireImage("image", r.Image)
}

// TranslateRequest is the body of POST /v1/translate.
type TranslateRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

func (r *TranslateRequest) Validate() error {
	if err := requireText("text", r.Text); err != nil {
		return err
	}
	return requireText("language", r.Language)
}

// TranslateResponse is the body returned by POST /v1/translate.
type TranslateResponse struct {
	Text string `json:"text"`
}

// AskRequest is the body of POST /v1/ask.
type AskRequest struct {
	Project         string `json:"project"`
	StepTitle       string `json:"step_title"`
	StepInstruction string `json:"step_instruction"`
	Question        string `json:"question"`
}

func (r *AskRequest) Validate() error {
	if err := requireText("step_title", r.StepTitle); err != nil {
		return err
	}
	return requireText("question", r.Question)
}

// AskResponse is the body returned by POST /v1/ask.
type AskResponse struct {
	Answer string `json:"answer"`
}

// TranscribeRequest is the body of POST /v1/transcribe. Audio is 16kHz mono
// pcm_s16le, base64 encoded on the wire.
type TranscribeRequest struct {
	Audio    []byte `json:"audio"`
	Language string `json:"language,omitempty"`
}

func (r *TranscribeRequest) Validate() error {
	if len(r.Audio) == 0 {
		return strictErr("audio", "audio is required")
	}
	if len(r.Audio)%2 != 0 {
		return strictErr("audio", "audio must be 16-bit PCM")
	}
	return nil
}

// TranscribeResponse is the body returned by POST /v1/transcribe.
type TranscribeResponse struct {
	Text string `json:"text"`
}
