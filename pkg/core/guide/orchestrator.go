// Package guide runs the step-by-step build walkthrough: step sequencing,
// per-step translation, photo verification with auto-advance, and questions.
//
// All state lives behind one mutex. Backend calls run on goroutines and their
// results are applied only if the request token still matches; moving to a
// different step, changing language, clearing a photo or closing the guide
// bumps the relevant token so late results are dropped.
package guide

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vango-go/nava/pkg/core"
	"github.com/vango-go/nava/pkg/core/ai"
	"github.com/vango-go/nava/pkg/core/live"
	"github.com/vango-go/nava/pkg/core/types"
)

// AutoAdvanceDelay is how long positive verification feedback stays on screen
// before the guide moves on.
const AutoAdvanceDelay = 2 * time.Second

// LiveStopper is the part of the live assistant the guide controls. Stop must
// not call back into the Orchestrator.
type LiveStopper interface {
	Stop()
}

// AfterFunc schedules f after d and returns a function that cancels it.
type AfterFunc func(d time.Duration, f func()) (stop func() bool)

func timeAfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Config wires an Orchestrator to its collaborators. AI is required.
type Config struct {
	AI         ai.Client
	Recognizer live.SpeechRecognizer
	Live       LiveStopper

	AutoAdvanceDelay time.Duration
	AfterFunc        AfterFunc
	Logger           *slog.Logger
}

// Session is the guide's position.
type Session struct {
	Guide        types.Guide
	CurrentIndex int
	Completed    bool
}

type cacheKey struct {
	index int
	lang  string
}

type translation struct {
	title       string
	instruction string
}

// Orchestrator owns one guide session.
type Orchestrator struct {
	cfg   Config
	log   *slog.Logger
	after AfterFunc
	delay time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	guide     types.Guide
	index     int
	completed bool
	closed    bool
	lang      types.Language

	// stepGen changes with the displayed step; stepCancel aborts its requests.
	stepGen    uint64
	stepCtx    context.Context
	stepCancel context.CancelFunc

	trGen       uint64
	translating bool
	cache       map[cacheKey]translation

	verifyGen    uint64
	verifyImage  *types.Image
	verifying    bool
	verification *types.VerificationResult
	stopTimer    func() bool

	question  string
	answer    string
	asking    bool
	listening bool

	updates chan struct{}
}

// Start derives a guide from plan and positions it at the first step.
func Start(plan *types.Plan, cfg Config) (*Orchestrator, error) {
	if cfg.AI == nil {
		return nil, errors.New("guide: AI client is required")
	}
	g := types.NewGuide(plan)
	if g == nil || len(g.Steps) == 0 {
		return nil, core.NewInvalidRequestErrorWithParam("plan has no steps", "plan")
	}

	o := &Orchestrator{
		cfg:     cfg,
		log:     cfg.Logger,
		after:   cfg.AfterFunc,
		delay:   cfg.AutoAdvanceDelay,
		guide:   *g,
		lang:    types.DefaultLanguage,
		cache:   make(map[cacheKey]translation),
		updates: make(chan struct{}, 1),
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	if o.after == nil {
		o.after = timeAfterFunc
	}
	if o.delay <= 0 {
		o.delay = AutoAdvanceDelay
	}
	o.ctx, o.cancel = context.WithCancel(context.Background())
	o.stepCtx, o.stepCancel = context.WithCancel(o.ctx)
	return o, nil
}

// Updates signals after any state change. Signals coalesce; call View to read
// the new state.
func (o *Orchestrator) Updates() <-chan struct{} {
	return o.updates
}

func (o *Orchestrator) notify() {
	select {
	case o.updates <- struct{}{}:
	default:
	}
}

// Session returns the current position.
func (o *Orchestrator) Session() Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Session{Guide: o.guide, CurrentIndex: o.index, Completed: o.completed}
}

// Advance moves to the next step, or completes the guide on the last step.
// It is a no-op once completed.
func (o *Orchestrator) Advance() {
	o.mu.Lock()
	moved := o.advanceLocked()
	o.mu.Unlock()
	if moved {
		o.stopLive()
	}
}

// advanceLocked reports whether the guide moved. The caller stops the live
// assistant after releasing o.mu.
func (o *Orchestrator) advanceLocked() bool {
	if o.completed || o.closed {
		return false
	}
	if o.index == len(o.guide.Steps)-1 {
		o.completed = true
		o.resetStepLocked()
		o.log.Info("guide: completed", "project", o.guide.ProjectName, "steps", len(o.guide.Steps))
		o.notify()
		return true
	}
	o.index++
	o.resetStepLocked()
	o.translateLocked()
	o.notify()
	return true
}

// Retreat moves to the previous step. It is a no-op on the first step and once
// completed.
func (o *Orchestrator) Retreat() {
	o.mu.Lock()
	if o.completed || o.closed || o.index == 0 {
		o.mu.Unlock()
		return
	}
	o.index--
	o.resetStepLocked()
	o.translateLocked()
	o.notify()
	o.mu.Unlock()
	o.stopLive()
}

// resetStepLocked drops everything tied to the previous step and cancels its
// in-flight requests.
func (o *Orchestrator) resetStepLocked() {
	o.stepGen++
	o.stepCancel()
	o.stepCtx, o.stepCancel = context.WithCancel(o.ctx)

	o.trGen++
	o.translating = false

	o.cancelVerificationLocked()
	o.verifyImage = nil
	o.verification = nil
	o.verifying = false

	o.question, o.answer = "", ""
	o.asking, o.listening = false, false
}

// stopLive is called without o.mu held; stopping can block on the transport.
func (o *Orchestrator) stopLive() {
	if o.cfg.Live != nil {
		o.cfg.Live.Stop()
	}
}

// SetLanguage switches the display language. The default language shows the
// original text without a backend call.
func (o *Orchestrator) SetLanguage(lang types.Language) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.completed || o.closed {
		return
	}
	if lang.Code == "" {
		lang = types.DefaultLanguage
	}
	o.lang = lang
	o.translateLocked()
	o.notify()
}

// translateLocked requests the current step in the current language unless it
// is cached or the language is the default.
func (o *Orchestrator) translateLocked() {
	o.trGen++
	token := o.trGen
	o.translating = false
	if o.lang.IsDefault() {
		return
	}
	key := cacheKey{index: o.index, lang: o.lang.Code}
	if _, ok := o.cache[key]; ok {
		return
	}

	o.translating = true
	step := o.guide.Steps[o.index]
	lang := o.lang
	ctx := o.stepCtx
	o.wg.Go(func() {
		tr, ok := o.translate(ctx, step, lang)

		o.mu.Lock()
		defer o.mu.Unlock()
		if o.trGen != token {
			return
		}
		o.translating = false
		if ok {
			o.cache[key] = tr
		}
		o.notify()
	})
}

// translate fetches title and instruction in parallel. Any failure reports
// !ok and the original text stays on screen.
func (o *Orchestrator) translate(ctx context.Context, step types.GuideStep, lang types.Language) (translation, bool) {
	var tr translation
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := o.cfg.AI.TranslateContent(gctx, step.Title, lang.Name)
		tr.title = t
		return err
	})
	g.Go(func() error {
		t, err := o.cfg.AI.TranslateContent(gctx, step.Instruction, lang.Name)
		tr.instruction = t
		return err
	})
	if err := g.Wait(); err != nil {
		if ctx.Err() == nil {
			o.log.Warn("guide: translation failed", "step", step.StepNumber, "language", lang.Code, "error", err)
		}
		return translation{}, false
	}
	if strings.TrimSpace(tr.title) == "" {
		tr.title = step.Title
	}
	if strings.TrimSpace(tr.instruction) == "" {
		tr.instruction = step.Instruction
	}
	return tr, true
}

// SubmitVerificationPhoto stores img and asks the backend whether the current
// step is done. A new photo supersedes any pending check. On success the guide
// advances once after the auto-advance delay unless the user moves first.
func (o *Orchestrator) SubmitVerificationPhoto(img types.Image) error {
	if img.IsZero() {
		return core.NewInvalidRequestErrorWithParam("verification photo is empty", "image")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.completed || o.closed {
		return core.NewInvalidRequestError("guide is not in progress")
	}

	o.cancelVerificationLocked()
	token := o.verifyGen
	o.verifyImage = &img
	o.verification = nil
	o.verifying = true

	step := o.guide.Steps[o.index]
	ctx := o.stepCtx
	o.wg.Go(func() {
		res, err := o.cfg.AI.VerifyStepCompletion(ctx, step.Title, step.Instruction, img)
		if err != nil {
			if ctx.Err() == nil {
				o.log.Warn("guide: verification failed", "step", step.StepNumber, "error", err)
			}
			res = types.VerificationResult{Success: false, Feedback: ai.VerifyFailedFeedback}
		}
		o.completeVerification(token, res)
	})
	o.notify()
	return nil
}

func (o *Orchestrator) completeVerification(token uint64, res types.VerificationResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.verifyGen != token || o.completed || o.closed {
		return
	}
	o.verifying = false
	o.verification = &res
	if res.Success {
		o.stopTimer = o.after(o.delay, func() { o.autoAdvance(token) })
	}
	o.notify()
}

func (o *Orchestrator) autoAdvance(token uint64) {
	o.mu.Lock()
	moved := o.verifyGen == token && o.advanceLocked()
	o.mu.Unlock()
	if moved {
		o.stopLive()
	}
}

// ClearVerification discards the photo and result for the current step and
// cancels a pending auto-advance.
func (o *Orchestrator) ClearVerification() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.cancelVerificationLocked()
	o.verifyImage = nil
	o.verification = nil
	o.verifying = false
	o.notify()
}

// cancelVerificationLocked invalidates the pending check and auto-advance.
func (o *Orchestrator) cancelVerificationLocked() {
	o.verifyGen++
	if o.stopTimer != nil {
		o.stopTimer()
		o.stopTimer = nil
	}
}

// SetQuestion replaces the question draft.
func (o *Orchestrator) SetQuestion(q string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.question = q
	o.notify()
}

// Ask sends question about the current step, asking for an answer in the
// display language. Backend failures become a retry hint. The answer is shown
// only if the user is still on the same step.
func (o *Orchestrator) Ask(ctx context.Context, question string) string {
	question = strings.TrimSpace(question)
	if question == "" {
		return ""
	}

	o.mu.Lock()
	if o.completed || o.closed {
		o.mu.Unlock()
		return ""
	}
	gen := o.stepGen
	step := o.guide.Steps[o.index]
	project := o.guide.ProjectName
	lang := o.lang
	o.question = question
	o.asking = true
	o.notify()
	o.mu.Unlock()

	answer, err := o.cfg.AI.AskStepQuestion(ctx, project, step.Title, step.Instruction, question+" (Please answer in "+lang.Name+")")
	if err != nil {
		o.log.Warn("guide: question failed", "step", step.StepNumber, "error", err)
		answer = ai.AskFailedAnswer
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stepGen == gen && !o.closed {
		o.answer = answer
		o.asking = false
		o.notify()
	}
	return answer
}

// Listen records one spoken question in the display language and puts the
// transcript in the question draft.
func (o *Orchestrator) Listen(ctx context.Context) (string, error) {
	if o.cfg.Recognizer == nil {
		return "", core.NewMediaAccessError("microphone", errors.New("voice input is not supported"))
	}

	o.mu.Lock()
	if o.completed || o.closed {
		o.mu.Unlock()
		return "", core.NewInvalidRequestError("guide is not in progress")
	}
	gen := o.stepGen
	lang := o.lang
	o.listening = true
	o.notify()
	o.mu.Unlock()

	text, err := o.cfg.Recognizer.Recognize(ctx, lang)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stepGen == gen {
		o.listening = false
		if err == nil {
			o.question = text
		}
		o.notify()
	}
	return text, err
}

// Close stops the live assistant, cancels outstanding requests and waits for
// them. It reports whether the guide was completed.
func (o *Orchestrator) Close() bool {
	o.mu.Lock()
	if o.closed {
		done := o.completed
		o.mu.Unlock()
		return done
	}
	o.closed = true
	o.cancelVerificationLocked()
	o.trGen++
	o.cancel()
	done := o.completed
	o.mu.Unlock()

	o.stopLive()

	o.wg.Wait()
	return done
}

// View is the displayed state of the current step.
type View struct {
	ProjectName string
	Index       int
	Total       int
	Step        types.GuideStep
	Language    types.Language

	// Title and Instruction are in Language. They are empty while Loading.
	Title       string
	Instruction string
	Loading     bool

	VerificationImage *types.Image
	Verifying         bool
	Verification      *types.VerificationResult
	// AutoAdvancing is set while positive feedback is shown before moving on.
	AutoAdvancing bool

	Question  string
	Answer    string
	Asking    bool
	Listening bool

	VideoURL  string
	Completed bool
}

// View returns the displayed state.
func (o *Orchestrator) View() View {
	o.mu.Lock()
	defer o.mu.Unlock()

	step := o.guide.Steps[o.index]
	v := View{
		ProjectName:       o.guide.ProjectName,
		Index:             o.index,
		Total:             len(o.guide.Steps),
		Step:              step,
		Language:          o.lang,
		VerificationImage: o.verifyImage,
		Verifying:         o.verifying,
		Verification:      o.verification,
		AutoAdvancing:     o.verification != nil && o.verification.Success && !o.completed,
		Question:          o.question,
		Answer:            o.answer,
		Asking:            o.asking,
		Listening:         o.listening,
		VideoURL:          VideoSearchURL(step.YouTubeQuery),
		Completed:         o.completed,
	}
	switch tr, ok := o.cache[cacheKey{index: o.index, lang: o.lang.Code}]; {
	case o.translating:
		v.Loading = true
	case ok && !o.lang.IsDefault():
		v.Title, v.Instruction = tr.title, tr.instruction
	default:
		v.Title, v.Instruction = step.Title, step.Instruction
	}
	return v
}

// VideoSearchURL returns a video search link for a step's tutorial query.
func VideoSearchURL(query string) string {
	return "https://www.youtube.com/results?search_query=" + url.QueryEscape(query)
}
