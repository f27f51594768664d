package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vango-go/nava/pkg/core"
	"github.com/vango-go/nava/pkg/core/types"
	"github.com/vango-go/nava/pkg/gateway/metrics"
)

const jpegURI = `"data:image/jpeg;base64,/9j/AA=="`

type fakeAI struct {
	gotGoal     string
	gotLanguage string
	gotAudio    []byte
	err         error
	block       bool
}

func (f *fakeAI) IdentifyObject(ctx context.Context, img types.Image) (string, error) {
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return "Plastic Bottle", f.err
}

func (f *fakeAI) GenerateSuggestions(_ context.Context, objectName string, _ types.Image, ref *types.Image) ([]string, error) {
	out := []string{"Planter", "Bird Feeder"}
	if ref != nil {
		out = append(out, "Like the reference")
	}
	return out, f.err
}

func (f *fakeAI) GenerateCustomPlan(_ context.Context, _ types.Image, goal string, _ *types.Image) (*types.Plan, error) {
	f.gotGoal = goal
	if f.err != nil {
		return nil, f.err
	}
	return &types.Plan{Title: "Pencil Holder", Difficulty: types.DifficultyEasy}, nil
}

func (f *fakeAI) VerifyStepCompletion(context.Context, string, string, types.Image) (types.VerificationResult, error) {
	return types.VerificationResult{Success: true, Feedback: "Nice cut."}, f.err
}

func (f *fakeAI) TranslateContent(_ context.Context, text, language string) (string, error) {
	f.gotLanguage = language
	return "[" + language + "] " + text, f.err
}

func (f *fakeAI) AskStepQuestion(context.Context, string, string, string, string) (string, error) {
	return "Use scissors.", f.err
}

func (f *fakeAI) Transcribe(_ context.Context, pcm []byte, _ string) (string, error) {
	f.gotAudio = pcm
	return "what now", f.err
}

func serveAI(t *testing.T, h http.Handler, method, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, "/v1/op", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestAIHandler_Operations(t *testing.T) {
	client := &fakeAI{}
	h := AIHandler{Client: client}

	cases := []struct {
		name    string
		handler http.Handler
		body    string
		want    string
	}{
		{"identify", h.Identify(), `{"image":` + jpegURI + `}`, `{"object_name":"Plastic Bottle"}`},
		{"suggestions with reference", h.Suggestions(), `{"object_name":"Bottle","image":` + jpegURI + `,"reference_image":{"mime_type":"image/png","data":"iVBO"}}`, `{"suggestions":["Planter","Bird Feeder","Like the reference"]}`},
		{"verify", h.Verify(), `{"step_title":"Cut","step_instruction":"Cut it","image":` + jpegURI + `}`, `{"success":true,"feedback":"Nice cut."}`},
		{"translate", h.Translate(), `{"text":"Cut","language":"es"}`, `{"text":"[es] Cut"}`},
		{"ask", h.Ask(), `{"project":"Holder","step_title":"Cut","question":"How?"}`, `{"answer":"Use scissors."}`},
		{"transcribe", h.Transcribe(), `{"audio":"AAABAA=="}`, `{"text":"what now"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := serveAI(t, tc.handler, http.MethodPost, tc.body)
			if rr.Code != http.StatusOK {
				t.Fatalf("status = %d body = %s", rr.Code, rr.Body.String())
			}
			var got, want any
			if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			_ = json.Unmarshal([]byte(tc.want), &want)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("body mismatch (-want +got):\n%s", diff)
			}
		})
	}
	if diff := cmp.Diff([]byte{0, 0, 1, 0}, client.gotAudio); diff != "" {
		t.Fatalf("transcribe audio (-want +got):\n%s", diff)
	}
}

func TestAIHandler_Plan(t *testing.T) {
	client := &fakeAI{}
	rr := serveAI(t, AIHandler{Client: client}.Plan(), http.MethodPost, `{"image":`+jpegURI+`,"goal":"make a pencil holder"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rr.Code, rr.Body.String())
	}
	var resp types.PlanResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Plan == nil || resp.Plan.Title != "Pencil Holder" || client.gotGoal != "make a pencil holder" {
		t.Fatalf("plan = %+v goal = %q", resp.Plan, client.gotGoal)
	}
}

func TestAIHandler_RequestErrors(t *testing.T) {
	h := AIHandler{Client: &fakeAI{}}
	cases := []struct {
		name      string
		method    string
		body      string
		status    int
		wantParam string
	}{
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed, ""},
		{"empty body", http.MethodPost, "", http.StatusBadRequest, ""},
		{"unknown field", http.MethodPost, `{"image":` + jpegURI + `,"extra":1}`, http.StatusBadRequest, "extra"},
		{"missing image", http.MethodPost, `{}`, http.StatusBadRequest, "image"},
		{"short goal", http.MethodPost, `{"image":` + jpegURI + `,"goal":"abc"}`, http.StatusBadRequest, "goal"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := h.Identify()
			if tc.name == "short goal" {
				handler = h.Plan()
			}
			rr := serveAI(t, handler, tc.method, tc.body)
			if rr.Code != tc.status {
				t.Fatalf("status = %d, want %d (body %s)", rr.Code, tc.status, rr.Body.String())
			}
			var env struct {
				Error core.Error `json:"error"`
			}
			if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if env.Error.Type != core.ErrInvalidRequest || env.Error.Param != tc.wantParam {
				t.Fatalf("error = %+v, want invalid_request_error param %q", env.Error, tc.wantParam)
			}
		})
	}
}

func TestAIHandler_BackendErrorsAndMetrics(t *testing.T) {
	m := metrics.New("test")
	h := AIHandler{Client: &fakeAI{err: core.NewOverloadedError("busy")}, Metrics: m}

	rr := serveAI(t, h.Ask(), http.MethodPost, `{"step_title":"Cut","question":"How?"}`)
	if rr.Code != 529 {
		t.Fatalf("status = %d, want 529", rr.Code)
	}
	if got := testutil.ToFloat64(m.AIOperationsTotal.WithLabelValues("ask", string(core.ErrOverloaded))); got != 1 {
		t.Fatalf("ask overloaded count = %v, want 1", got)
	}

	slow := AIHandler{Client: &fakeAI{block: true}, Timeout: 10 * time.Millisecond}
	rr = serveAI(t, slow.Identify(), http.MethodPost, `{"image":`+jpegURI+`}`)
	if rr.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want 504", rr.Code)
	}
}
