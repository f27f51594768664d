package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/vango-go/nava/pkg/core"
	"github.com/vango-go/nava/pkg/core/ai"
	"github.com/vango-go/nava/pkg/core/imaging"
	"github.com/vango-go/nava/pkg/core/live"
	"github.com/vango-go/nava/pkg/core/types"
)

const identifyPrompt = `Look at this image. Identify the main object.

RULES:
1. Use SIMPLE, EVERYDAY English. (e.g., say "Cardboard Box" instead of "Corrugated Container").
2. Avoid technical model numbers or scientific names.
3. Return ONLY the name. Nothing else.`

const suggestPrompt = `You are a creative, fun workshop buddy.
Goal: Suggest 4 cool, distinct project ideas for this item.

DIFFICULTY LEVELS:
1. Easy (15 mins)
2. Medium (1 hour)
3. Hard (Weekend project)
4. Expert (Tech-integrated)

LANGUAGE RULES:
- Use extremely SIMPLE, EXCITING English.
- No complicated words.
- Max 5 words per title.
- Return purely a JSON array of 4 strings.`

const suggestFromReferencePrompt = `You are a helpful maker.
The user has a Source Material (first image) and a Target Goal (second image).

1. Look at the Target Goal. What is it?
2. Suggest 4 creative names for this project using the user's material.

RULES:
- Use Noun Phrases only (e.g., "Fast Glider").
- No verbs or instructions in the title.
- Simple English only.
- JSON Array of 4 strings.`

const planPrompt = `My Goal: %q

You are a Master Teacher for beginners.
Create a step-by-step build plan.

CRITICAL INSTRUCTIONS:
1. LANGUAGE: Use Simple English (Grade 5 level). Short sentences. No jargon.
2. SAFETY: If the user asks for something dangerous (e.g., modifying mains voltage, weapons), politely refuse in the 'analysis' section and suggest a safe version.
3. CLARITY: Break complex tasks into tiny, easy steps.
4. VERIFICATION: Describe exactly what to look for to know a step is done.

Plan the physical constraints before generating the JSON.`

const verifyPrompt = `Act as a friendly, encouraging teacher.

Goal Step: %q
Instruction: %q

Look at the photo. Did the user complete this step?

Output Rules:
1. Use Very Simple English.
2. Be kind and helpful.
3. If not done, explain clearly what is missing in one sentence.`

const askPrompt = `You are a helper for a DIY project %q.
Current Step: %q - %q.
User Question: %q

Answer in Simple English. Keep it short (max 2 sentences). Be encouraging.`

const translatePrompt = `Translate to %s. Keep it simple and natural. Text: %q`

const transcribePrompt = `Transcribe this short spoken question exactly as said. The speaker's language code is %q. Return only the transcript, or an empty string if nothing was said.`

// imagePart bounds img and wraps it as inline data.
func imagePart(param string, img types.Image) (*genai.Part, error) {
	norm, err := imaging.Normalize(img, imaging.Options{})
	if err != nil {
		return nil, core.NewInvalidRequestErrorWithParam(err.Error(), param)
	}
	return genai.NewPartFromBytes(norm.Data, norm.MIMEType), nil
}

func jsonConfig(schema *genai.Schema) *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	}
}

// IdentifyObject names the main object in img in plain words.
func (c *Client) IdentifyObject(ctx context.Context, img types.Image) (string, error) {
	part, err := imagePart("image", img)
	if err != nil {
		return "", err
	}
	text, err := c.generate(ctx, "identify", c.opts.model, userContent(part, genai.NewPartFromText(identifyPrompt)), nil)
	if err != nil {
		return "", err
	}
	if name := strings.TrimSpace(text); name != "" {
		return name, nil
	}
	return ai.FallbackObjectName, nil
}

// GenerateSuggestions proposes project ideas for objectName. With ref, the
// ideas aim at the pictured target.
func (c *Client) GenerateSuggestions(ctx context.Context, objectName string, img types.Image, ref *types.Image) ([]string, error) {
	scanned, err := imagePart("image", img)
	if err != nil {
		return nil, err
	}
	parts := []*genai.Part{
		genai.NewPartFromText(fmt.Sprintf("I have this item: %q.", objectName)),
		scanned,
	}
	instruction := suggestPrompt
	if ref != nil && !ref.IsZero() {
		target, err := imagePart("reference_image", *ref)
		if err != nil {
			return nil, err
		}
		parts = append(parts, genai.NewPartFromText("I want to make something like this:"), target)
		instruction = suggestFromReferencePrompt
	}

	cfg := jsonConfig(suggestionsSchema)
	cfg.SystemInstruction = genai.NewContentFromText(instruction, genai.RoleUser)
	text, err := c.generate(ctx, "suggestions", c.opts.model, userContent(parts...), cfg)
	if err != nil {
		return nil, err
	}

	var out []string
	if err := json.Unmarshal([]byte(ai.CleanJSON(text, "[]")), &out); err != nil {
		c.log.Warn("gemini: unreadable suggestions", "error", err)
		return append([]string(nil), ai.ParseFailureSuggestions...), nil
	}
	return ai.NormalizeSuggestions(out), nil
}

// GenerateCustomPlan builds a step-by-step plan for goal. A reply that does
// not decode or validate is a gateway error; nothing partial is returned.
func (c *Client) GenerateCustomPlan(ctx context.Context, img types.Image, goal string, ref *types.Image) (*types.Plan, error) {
	scanned, err := imagePart("image", img)
	if err != nil {
		return nil, err
	}
	parts := []*genai.Part{
		genai.NewPartFromText("Here is what I have (Source Material):"),
		scanned,
	}
	if ref != nil && !ref.IsZero() {
		target, err := imagePart("reference_image", *ref)
		if err != nil {
			return nil, err
		}
		parts = append(parts, genai.NewPartFromText("Here is what I want to make (Target Goal):"), target)
	}
	parts = append(parts, genai.NewPartFromText(fmt.Sprintf(planPrompt, strings.TrimSpace(goal))))

	cfg := jsonConfig(planSchema)
	cfg.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: genai.Ptr[int32](PlanThinkingBudget)}
	text, err := c.generate(ctx, "plan", c.opts.planModel, userContent(parts...), cfg)
	if err != nil {
		return nil, err
	}

	var plan types.Plan
	if err := json.Unmarshal([]byte(ai.CleanJSON(text, "{}")), &plan); err != nil {
		return nil, core.NewGatewayError("plan", fmt.Errorf("decode plan: %w", err))
	}
	if err := plan.Validate(); err != nil {
		return nil, core.NewGatewayError("plan", err)
	}
	return &plan, nil
}

// VerifyStepCompletion judges from img whether the step is done. An empty or
// unreadable reply yields a not-done result asking for another photo.
func (c *Client) VerifyStepCompletion(ctx context.Context, stepTitle, stepInstruction string, img types.Image) (types.VerificationResult, error) {
	photo, err := imagePart("image", img)
	if err != nil {
		return types.VerificationResult{}, err
	}
	prompt := genai.NewPartFromText(fmt.Sprintf(verifyPrompt, stepTitle, stepInstruction))
	text, err := c.generate(ctx, "verify", c.opts.model, userContent(prompt, photo), jsonConfig(verifySchema))
	if err != nil {
		return types.VerificationResult{}, err
	}

	unclear := types.VerificationResult{Success: false, Feedback: ai.VerifyUnclearFeedback}
	if strings.TrimSpace(text) == "" {
		return unclear, nil
	}
	var res types.VerificationResult
	if err := json.Unmarshal([]byte(ai.CleanJSON(text, "")), &res); err != nil {
		c.log.Warn("gemini: unreadable verification", "error", err)
		return unclear, nil
	}
	if strings.TrimSpace(res.Feedback) == "" && !res.Success {
		res.Feedback = ai.VerifyUnclearFeedback
	}
	return res, nil
}

// TranslateContent renders text in language. The authoring language is a
// pass-through.
func (c *Client) TranslateContent(ctx context.Context, text, language string) (string, error) {
	if ai.IsDefaultLanguage(language) || strings.TrimSpace(text) == "" {
		return text, nil
	}
	prompt := fmt.Sprintf(translatePrompt, language, text)
	out, err := c.generate(ctx, "translate", c.opts.model, genai.Text(prompt), nil)
	if err != nil {
		return "", err
	}
	if out = strings.TrimSpace(out); out != "" {
		return out, nil
	}
	return text, nil
}

// AskStepQuestion answers a free-text question about the current step.
func (c *Client) AskStepQuestion(ctx context.Context, project, stepTitle, stepInstruction, question string) (string, error) {
	prompt := fmt.Sprintf(askPrompt, project, stepTitle, stepInstruction, question)
	out, err := c.generate(ctx, "ask", c.opts.model, genai.Text(prompt), nil)
	if err != nil {
		return "", err
	}
	if out = strings.TrimSpace(out); out != "" {
		return out, nil
	}
	return ai.FallbackAnswer, nil
}

// Transcribe converts a 16kHz mono utterance to text.
func (c *Client) Transcribe(ctx context.Context, pcm16k []byte, languageCode string) (string, error) {
	if len(pcm16k) == 0 {
		return "", nil
	}
	audio := genai.NewPartFromBytes(live.EncodeWAV(pcm16k, live.InputFormat), "audio/wav")
	prompt := genai.NewPartFromText(fmt.Sprintf(transcribePrompt, languageCode))
	out, err := c.generate(ctx, "transcribe", c.opts.model, userContent(audio, prompt), nil)
	if err != nil {
		return "", err
	}
	return strings.Trim(strings.TrimSpace(out), `"`), nil
}
