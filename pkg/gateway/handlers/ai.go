package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/vango-go/nava/pkg/core"
	"github.com/vango-go/nava/pkg/core/ai"
	"github.com/vango-go/nava/pkg/core/types"
	"github.com/vango-go/nava/pkg/gateway/apierror"
	"github.com/vango-go/nava/pkg/gateway/metrics"
)

// AIHandler serves the stateless AI operations over a backend ai.Client.
type AIHandler struct {
	Client  ai.Client
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	// Timeout bounds each backend call. Zero leaves only the request context.
	Timeout time.Duration
}

func (h AIHandler) Identify() http.Handler {
	return aiOperation(h, "identify", func(ctx context.Context, req *types.IdentifyRequest) (any, error) {
		name, err := h.Client.IdentifyObject(ctx, req.Image)
		if err != nil {
			return nil, err
		}
		return types.IdentifyResponse{ObjectName: name}, nil
	})
}

func (h AIHandler) Suggestions() http.Handler {
	return aiOperation(h, "suggestions", func(ctx context.Context, req *types.SuggestionsRequest) (any, error) {
		out, err := h.Client.GenerateSuggestions(ctx, req.ObjectName, req.Image, req.ReferenceImage)
		if err != nil {
			return nil, err
		}
		return types.SuggestionsResponse{Suggestions: out}, nil
	})
}

func (h AIHandler) Plan() http.Handler {
	return aiOperation(h, "plan", func(ctx context.Context, req *types.PlanRequest) (any, error) {
		plan, err := h.Client.GenerateCustomPlan(ctx, req.Image, req.Goal, req.ReferenceImage)
		if err != nil {
			return nil, err
		}
		return types.PlanResponse{Plan: plan}, nil
	})
}

func (h AIHandler) Verify() http.Handler {
	return aiOperation(h, "verify", func(ctx context.Context, req *types.VerifyRequest) (any, error) {
		return h.Client.VerifyStepCompletion(ctx, req.StepTitle, req.StepInstruction, req.Image)
	})
}

func (h AIHandler) Translate() http.Handler {
	return aiOperation(h, "translate", func(ctx context.Context, req *types.TranslateRequest) (any, error) {
		text, err := h.Client.TranslateContent(ctx, req.Text, req.Language)
		if err != nil {
			return nil, err
		}
		return types.TranslateResponse{Text: text}, nil
	})
}

func (h AIHandler) Ask() http.Handler {
	return aiOperation(h, "ask", func(ctx context.Context, req *types.AskRequest) (any, error) {
		answer, err := h.Client.AskStepQuestion(ctx, req.Project, req.StepTitle, req.StepInstruction, req.Question)
		if err != nil {
			return nil, err
		}
		return types.AskResponse{Answer: answer}, nil
	})
}

func (h AIHandler) Transcribe() http.Handler {
	return aiOperation(h, "transcribe", func(ctx context.Context, req *types.TranscribeRequest) (any, error) {
		text, err := h.Client.Transcribe(ctx, req.Audio, req.Language)
		if err != nil {
			return nil, err
		}
		return types.TranscribeResponse{Text: text}, nil
	})
}

func aiOperation[Req any, PReq interface {
	*Req
	types.Validator
}](h AIHandler, op string, call func(ctx context.Context, req *Req) (any, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodPost) {
			return
		}
		if h.Client == nil {
			writeCoreErrorJSON(w, requestIDFromContext(r), core.NewAPIError("ai backend is not configured"), http.StatusServiceUnavailable)
			return
		}
		req, ok := decodeBody[Req, PReq](w, r)
		if !ok {
			return
		}

		ctx := r.Context()
		if h.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, h.Timeout)
			defer cancel()
		}

		start := time.Now()
		resp, err := call(ctx, req)
		if err != nil {
			reqID := requestIDFromContext(r)
			coreErr, status := apierror.FromError(err, reqID)
			h.Metrics.RecordAIOperation(op, string(coreErr.Type), time.Since(start))
			if h.Logger != nil {
				h.Logger.Warn("ai operation failed", "request_id", reqID, "op", op, "status", status, "error", err)
			}
			writeCoreErrorJSON(w, reqID, coreErr, status)
			return
		}
		h.Metrics.RecordAIOperation(op, "ok", time.Since(start))
		writeJSON(w, http.StatusOK, resp)
	})
}
