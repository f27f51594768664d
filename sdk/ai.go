package nava

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/vango-go/nava/pkg/core"
	"github.com/vango-go/nava/pkg/core/ai"
	"github.com/vango-go/nava/pkg/core/imaging"
	"github.com/vango-go/nava/pkg/core/types"
)

// IdentifyObject names the main object in img.
func (c *Client) IdentifyObject(ctx context.Context, img types.Image) (string, error) {
	norm, err := normalize("image", img)
	if err != nil {
		return "", err
	}
	var resp types.IdentifyResponse
	if err := c.post(ctx, "/v1/identify", types.IdentifyRequest{Image: norm}, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.ObjectName) == "" {
		return ai.FallbackObjectName, nil
	}
	return resp.ObjectName, nil
}

func (c *Client) GenerateSuggestions(ctx context.Context, objectName string, img types.Image, ref *types.Image) ([]string, error) {
	norm, err := normalize("image", img)
	if err != nil {
		return nil, err
	}
	normRef, err := normalizeOptional("reference_image", ref)
	if err != nil {
		return nil, err
	}
	var resp types.SuggestionsResponse
	req := types.SuggestionsRequest{ObjectName: objectName, Image: norm, ReferenceImage: normRef}
	if err := c.post(ctx, "/v1/suggestions", req, &resp); err != nil {
		return nil, err
	}
	return ai.NormalizeSuggestions(resp.Suggestions), nil
}

func (c *Client) GenerateCustomPlan(ctx context.Context, img types.Image, goal string, ref *types.Image) (*types.Plan, error) {
	norm, err := normalize("image", img)
	if err != nil {
		return nil, err
	}
	normRef, err := normalizeOptional("reference_image", ref)
	if err != nil {
		return nil, err
	}
	var resp types.PlanResponse
	if err := c.post(ctx, "/v1/plan", types.PlanRequest{Image: norm, Goal: goal, ReferenceImage: normRef}, &resp); err != nil {
		return nil, err
	}
	if resp.Plan == nil {
		return nil, core.NewGatewayError("plan", fmt.Errorf("gateway returned no plan"))
	}
	return resp.Plan, nil
}

func (c *Client) VerifyStepCompletion(ctx context.Context, stepTitle, stepInstruction string, img types.Image) (types.VerificationResult, error) {
	norm, err := normalize("image", img)
	if err != nil {
		return types.VerificationResult{}, err
	}
	var resp types.VerificationResult
	req := types.VerifyRequest{StepTitle: stepTitle, StepInstruction: stepInstruction, Image: norm}
	if err := c.post(ctx, "/v1/verify", req, &resp); err != nil {
		return types.VerificationResult{}, err
	}
	return resp, nil
}

// TranslateContent returns text unchanged for the authoring language without
// a round trip.
func (c *Client) TranslateContent(ctx context.Context, text, language string) (string, error) {
	if ai.IsDefaultLanguage(language) || strings.TrimSpace(text) == "" {
		return text, nil
	}
	var resp types.TranslateResponse
	if err := c.post(ctx, "/v1/translate", types.TranslateRequest{Text: text, Language: language}, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Text) == "" {
		return text, nil
	}
	return resp.Text, nil
}

func (c *Client) AskStepQuestion(ctx context.Context, project, stepTitle, stepInstruction, question string) (string, error) {
	var resp types.AskResponse
	req := types.AskRequest{Project: project, StepTitle: stepTitle, StepInstruction: stepInstruction, Question: question}
	if err := c.post(ctx, "/v1/ask", req, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Answer) == "" {
		return ai.FallbackAnswer, nil
	}
	return resp.Answer, nil
}

func (c *Client) Transcribe(ctx context.Context, pcm16k []byte, languageCode string) (string, error) {
	var resp types.TranscribeResponse
	if err := c.post(ctx, "/v1/transcribe", types.TranscribeRequest{Audio: pcm16k, Language: languageCode}, &resp); err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}

// post runs a retryable AI operation.
func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	return c.do(ctx, call{method: http.MethodPost, path: path, payload: payload, out: out, retry: true})
}

func normalize(param string, img types.Image) (types.Image, error) {
	if img.IsZero() {
		return types.Image{}, core.NewInvalidRequestErrorWithParam(param+" is required", param)
	}
	norm, err := imaging.Normalize(img, imaging.Options{})
	if err != nil {
		return types.Image{}, core.NewInvalidRequestErrorWithParam(fmt.Sprintf("%s could not be decoded: %v", param, err), param)
	}
	return norm, nil
}

func normalizeOptional(param string, img *types.Image) (*types.Image, error) {
	if img == nil || img.IsZero() {
		return nil, nil
	}
	norm, err := normalize(param, *img)
	if err != nil {
		return nil, err
	}
	return &norm, nil
}
