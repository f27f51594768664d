// Package ai defines the request/response contract with the generative backend
// and the fallback content shared by every implementation of it.
package ai

import (
	"context"
	"regexp"
	"strings"

	"github.com/vango-go/nava/pkg/core/types"
)

// Client is the stateless AI façade. Implementations: the Gemini-backed client
// in pkg/core/providers/gemini and the gateway HTTP client in sdk.
type Client interface {
	IdentifyObject(ctx context.Context, img types.Image) (string, error)
	GenerateSuggestions(ctx context.Context, objectName string, img types.Image, ref *types.Image) ([]string, error)
	GenerateCustomPlan(ctx context.Context, img types.Image, goal string, ref *types.Image) (*types.Plan, error)
	VerifyStepCompletion(ctx context.Context, stepTitle, stepInstruction string, img types.Image) (types.VerificationResult, error)
	TranslateContent(ctx context.Context, text, language string) (string, error)
	AskStepQuestion(ctx context.Context, project, stepTitle, stepInstruction, question string) (string, error)
	Transcribe(ctx context.Context, pcm16k []byte, languageCode string) (string, error)
}

// SuggestionCount is how many project ideas are shown for an object.
const SuggestionCount = 4

// Fallback content.
const (
	FallbackObjectName    = "Object"
	FallbackAnswer        = "I'm not sure, but try following the instructions carefully."
	AskFailedAnswer       = "I couldn't get an answer right now. Please try again."
	VerifyUnclearFeedback = "I could not see the work clearly. Please try again."
	VerifyFailedFeedback  = "Error connecting to AI auditor."
)

var (
	// ParseFailureSuggestions replaces a suggestion list that could not be read.
	ParseFailureSuggestions = []string{"Quick Fix", "Improvement", "New Project", "Complex Build"}
	// EmptySuggestions replaces an empty suggestion list.
	EmptySuggestions = []string{"Quick Start", "Skill Builder", "Advanced Build", "Expert Project"}
)

// NormalizeSuggestions trims entries, drops blanks and caps the list at
// SuggestionCount. An empty result yields EmptySuggestions.
func NormalizeSuggestions(in []string) []string {
	out := make([]string, 0, SuggestionCount)
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
		if len(out) == SuggestionCount {
			break
		}
	}
	if len(out) == 0 {
		return append([]string(nil), EmptySuggestions...)
	}
	return out
}

var fenceRE = regexp.MustCompile("```json\\s*|\\s*```")

// CleanJSON strips Markdown code fences from a model reply. An empty reply
// becomes fallback.
func CleanJSON(text, fallback string) string {
	if strings.TrimSpace(text) == "" {
		return fallback
	}
	return strings.TrimSpace(fenceRE.ReplaceAllString(text, ""))
}

// IsDefaultLanguage reports whether language names the authoring language, in
// which case translation is skipped.
func IsDefaultLanguage(language string) bool {
	l := strings.TrimSpace(language)
	return l == "" || strings.EqualFold(l, types.DefaultLanguage.Code) || strings.EqualFold(l, types.DefaultLanguage.Name)
}
