package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vango-go/nava/pkg/core/flow"
	"github.com/vango-go/nava/pkg/core/guide"
	"github.com/vango-go/nava/pkg/core/imaging"
	"github.com/vango-go/nava/pkg/core/live"
	"github.com/vango-go/nava/pkg/core/types"
	"github.com/vango-go/nava/pkg/localstore"
)

type buildOptions struct {
	goal      string
	reference string
	lang      string
	camera    string
	yes       bool
}

func newBuildCmd(a *app) *cobra.Command {
	var bo buildOptions
	cmd := &cobra.Command{
		Use:   "build PHOTO",
		Short: "Identify the object in PHOTO, plan a build and guide you through it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBuild(cmd.Context(), args[0], bo)
		},
	}
	f := cmd.Flags()
	f.StringVar(&bo.goal, "goal", "", "what to make; skips the suggestion prompt")
	f.StringVar(&bo.reference, "reference", "", "inspiration photo for the suggestions and plan")
	f.StringVar(&bo.lang, "lang", "", "guide language code (see nava languages)")
	f.StringVar(&bo.camera, "camera", "", "image file or directory used as the live camera and for verify")
	f.BoolVarP(&bo.yes, "yes", "y", false, "start the guide without asking")
	return cmd
}

// await blocks until done holds for the controller state.
func await(ctx context.Context, ctrl *flow.Controller, done func(flow.State) bool) (flow.State, error) {
	for {
		st := ctrl.State()
		if done(st) {
			return st, nil
		}
		select {
		case <-ctrl.Updates():
		case <-ctx.Done():
			return st, ctx.Err()
		}
	}
}

func idle(st flow.State) bool { return st.Pending == flow.OpNone }

func (a *app) runBuild(ctx context.Context, photo string, bo buildOptions) error {
	var lang types.Language
	if bo.lang != "" {
		l, ok := types.LookupLanguage(bo.lang)
		if !ok {
			return fmt.Errorf("unknown language %q (see nava languages)", bo.lang)
		}
		lang = l
	}
	img, err := loadPhoto(photo)
	if err != nil {
		return err
	}
	var ref *types.Image
	if bo.reference != "" {
		r, err := loadPhoto(bo.reference)
		if err != nil {
			return fmt.Errorf("reference: %w", err)
		}
		ref = &r
	}

	be, err := a.connect(ctx, a.opts, a.log)
	if err != nil {
		return err
	}
	st, err := a.openStore(a.opts.home)
	if err != nil {
		return fmt.Errorf("open local store: %w", err)
	}
	defer st.Close()
	history, err := a.recorder(ctx, be, st)
	if err != nil {
		return err
	}

	ctrl, err := flow.NewController(flow.Config{AI: be.ai, History: history, Logger: a.log})
	if err != nil {
		return err
	}
	defer ctrl.Close()

	ctrl.Dispatch(flow.OpenCamera{})
	ctrl.Dispatch(flow.Capture{Image: img})
	fmt.Fprintln(a.out, flow.IdentifyingMessage)
	s, err := await(ctx, ctrl, idle)
	if err != nil {
		return err
	}
	if s.View != flow.ViewIntentSelect {
		return errors.New(s.Error)
	}
	fmt.Fprintf(a.out, "I see: %s\n", s.ObjectName)
	if ref != nil {
		ctrl.Dispatch(flow.SetReference{Image: ref})
	}

	plan, err := a.choosePlan(ctx, ctrl, bo.goal)
	if err != nil {
		return err
	}
	printPlan(a.out, plan)

	if !bo.yes {
		answer, err := a.prompt("Start building? [Y/n] ")
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		if errors.Is(err, io.EOF) || strings.HasPrefix(strings.ToLower(answer), "n") {
			return nil
		}
	}

	ctrl.Dispatch(flow.StartGuide{})
	assistant := newLiveAssistant(a, be.dialer, bo.camera)
	defer assistant.Close()
	orch, err := guide.Start(plan, guide.Config{
		AI:               be.ai,
		Recognizer:       lazyRecognizer{media: a.mediaDevices, transcribe: be.ai.Transcribe},
		Live:             assistant,
		AutoAdvanceDelay: a.autoAdvance,
		Logger:           a.log,
	})
	if err != nil {
		return err
	}
	if lang.Code != "" {
		orch.SetLanguage(lang)
	}

	replErr := a.guideREPL(ctx, orch, assistant, guideContext{goal: ctrl.State().Goal, camera: bo.camera})
	completed := orch.Close()
	// The project id arrives asynchronously; it must be known before closing.
	ctrl.Wait()
	ctrl.Dispatch(flow.CloseGuide{Completed: completed})
	ctrl.Wait()
	if completed {
		fmt.Fprintf(a.out, "Finished %s. Nice work!\n", plan.Title)
	}
	return replErr
}

// recorder picks where started projects are recorded: the gateway account
// when signed in there, otherwise the local store.
func (a *app) recorder(ctx context.Context, be *backend, st *localstore.Store) (flow.HistoryRecorder, error) {
	if be.gateway == nil {
		return st, nil
	}
	user, err := st.GetUser(ctx)
	if err != nil {
		return nil, err
	}
	if user == nil || user.Token == "" {
		return st, nil
	}
	be.gateway.SetSession(user.Token)
	return be.gateway.History(), nil
}

// choosePlan asks for a goal until a plan is produced. With goal preset the
// first failure is returned instead.
func (a *app) choosePlan(ctx context.Context, ctrl *flow.Controller, goal string) (*types.Plan, error) {
	preset := goal != ""
	for {
		s, err := await(ctx, ctrl, func(st flow.State) bool { return !st.SuggestionsLoading })
		if err != nil {
			return nil, err
		}
		if goal == "" {
			goal, err = a.askGoal(ctrl, s)
			if err != nil {
				return nil, err
			}
			if goal == "" {
				continue
			}
		}

		ctrl.Dispatch(flow.RequestPlan{Goal: goal})
		s = ctrl.State()
		if s.Pending == flow.OpPlan {
			fmt.Fprintln(a.out, flow.PlanningMessage)
			if s, err = await(ctx, ctrl, idle); err != nil {
				return nil, err
			}
		}
		if s.View == flow.ViewBuildOverview && s.Plan != nil {
			return s.Plan, nil
		}
		msg := s.Error
		if msg == "" {
			msg = flow.PlanFailedMessage
		}
		if preset {
			return nil, errors.New(msg)
		}
		fmt.Fprintln(a.out, msg)
		ctrl.Dispatch(flow.DismissError{})
		goal = ""
	}
}

// askGoal shows the suggestions and reads a choice. "rename NAME" corrects
// the identified object and returns an empty goal so suggestions reload.
func (a *app) askGoal(ctrl *flow.Controller, s flow.State) (string, error) {
	if len(s.Suggestions) > 0 {
		fmt.Fprintf(a.out, "Ideas for your %s:\n", s.ObjectName)
		for i, sug := range s.Suggestions {
			fmt.Fprintf(a.out, "  %d. %s\n", i+1, sug)
		}
	}
	line, err := a.prompt("What do you want to make? (number, your own idea, or rename NAME) ")
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", errors.New("no goal given")
		}
		return "", err
	}
	if name, ok := strings.CutPrefix(line, "rename "); ok {
		ctrl.Dispatch(flow.RenameObject{Name: strings.TrimSpace(name)})
		return "", nil
	}
	if n, err := strconv.Atoi(line); err == nil && n >= 1 && n <= len(s.Suggestions) {
		return s.Suggestions[n-1], nil
	}
	return line, nil
}

func printPlan(w io.Writer, p *types.Plan) {
	fmt.Fprintf(w, "\n%s\n%s\n\n", p.Title, strings.Repeat("=", len([]rune(p.Title))))
	if p.Description != "" {
		fmt.Fprintf(w, "%s\n\n", p.Description)
	}
	fmt.Fprintf(w, "Difficulty: %s    Time: %s\n", p.Difficulty, p.EstimatedTime)
	fmt.Fprintf(w, "Feasible: %s", p.Feasibility.Status)
	if p.Feasibility.Explanation != "" {
		fmt.Fprintf(w, " (%s)", p.Feasibility.Explanation)
	}
	fmt.Fprintln(w)
	printList(w, "Add", p.Changes.Add)
	printList(w, "Remove", p.Changes.Remove)
	printList(w, "Modify", p.Changes.Modify)
	printList(w, "Safety", p.SafetyWarnings)
	fmt.Fprintln(w, "\nSteps:")
	for i, s := range p.Steps {
		fmt.Fprintf(w, "  %d. %s\n", i+1, s.Title)
	}
	printList(w, "Alternatives", p.Alternatives)
	fmt.Fprintln(w)
}

func printList(w io.Writer, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "%s:\n", label)
	for _, it := range items {
		fmt.Fprintf(w, "  - %s\n", it)
	}
}

type guideContext struct {
	goal   string
	camera string
}

const guideHelp = `Commands:
  next | back        move between steps
  verify [PHOTO]     check your work (defaults to the --camera image)
  ask QUESTION       ask about the current step
  listen             ask by voice
  lang CODE          switch language
  live               start or stop the live voice assistant
  video              tutorial search link
  quit               leave the guide
`

// guideREPL runs the step-by-step guide until it completes or the user quits.
func (a *app) guideREPL(ctx context.Context, orch *guide.Orchestrator, assistant *liveAssistant, gc guideContext) error {
	v, err := awaitGuide(ctx, orch, func(v guide.View) bool { return !v.Loading })
	if err != nil {
		return err
	}
	printStep(a.out, v)
	fmt.Fprintln(a.out, `Type "help" for commands.`)

	for {
		line, err := a.prompt("> ")
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		cmd, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)
		before := orch.View()

		switch strings.ToLower(cmd) {
		case "":
			continue
		case "help", "?":
			fmt.Fprint(a.out, guideHelp)
			continue
		case "quit", "exit", "q":
			return nil
		case "next", "n":
			orch.Advance()
		case "back", "b":
			orch.Retreat()
		case "lang":
			l, ok := types.LookupLanguage(arg)
			if !ok {
				fmt.Fprintf(a.out, "Unknown language %q.\n", arg)
				continue
			}
			orch.SetLanguage(l)
		case "verify":
			if err := a.verify(ctx, orch, arg, gc.camera); err != nil {
				fmt.Fprintln(a.out, err)
				continue
			}
		case "ask":
			if arg == "" {
				fmt.Fprintln(a.out, "Usage: ask QUESTION")
				continue
			}
			fmt.Fprintln(a.out, orch.Ask(ctx, arg))
			continue
		case "listen":
			fmt.Fprintln(a.out, "Listening...")
			q, err := orch.Listen(ctx)
			if err != nil {
				fmt.Fprintf(a.out, "Could not hear you: %v\n", err)
				continue
			}
			if q == "" {
				fmt.Fprintln(a.out, "I didn't catch that.")
				continue
			}
			fmt.Fprintf(a.out, "You asked: %s\n", q)
			fmt.Fprintln(a.out, orch.Ask(ctx, q))
			continue
		case "live":
			step := before.Step
			err := assistant.Toggle(ctx, live.Context{
				ProjectGoal:     gc.goal,
				StepTitle:       step.Title,
				StepInstruction: step.Instruction,
			})
			if err != nil {
				fmt.Fprintf(a.out, "Live assistant unavailable: %v\n", err)
			}
			continue
		case "video":
			fmt.Fprintln(a.out, before.VideoURL)
			continue
		default:
			fmt.Fprintf(a.out, "Unknown command %q. Type \"help\".\n", cmd)
			continue
		}

		v, err := awaitGuide(ctx, orch, func(v guide.View) bool { return !v.Loading })
		if err != nil {
			return err
		}
		if v.Completed {
			return nil
		}
		if v.Index != before.Index || v.Language != before.Language {
			printStep(a.out, v)
		}
	}
}

// verify submits a photo and waits for the verdict. On success it also waits
// for the automatic move to the next step.
func (a *app) verify(ctx context.Context, orch *guide.Orchestrator, path, camera string) error {
	img, err := a.stepPhoto(ctx, path, camera)
	if err != nil {
		return err
	}
	if err := orch.SubmitVerificationPhoto(img); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Checking your work...")
	v, err := awaitGuide(ctx, orch, func(v guide.View) bool { return !v.Verifying })
	if err != nil {
		return err
	}
	if v.Verification == nil {
		return nil
	}
	fmt.Fprintln(a.out, v.Verification.Feedback)
	if !v.Verification.Success {
		return nil
	}
	from := v.Index
	_, err = awaitGuide(ctx, orch, func(v guide.View) bool {
		return v.Completed || v.Index != from || !v.AutoAdvancing
	})
	return err
}

func (a *app) stepPhoto(ctx context.Context, path, camera string) (types.Image, error) {
	if path != "" {
		return loadPhoto(path)
	}
	if camera == "" {
		return types.Image{}, errors.New("usage: verify PHOTO (or start with --camera)")
	}
	frame, err := fileCamera{path: camera}.Snapshot(ctx)
	if err != nil {
		return types.Image{}, err
	}
	return imaging.Encode(frame, imaging.CaptureMaxDimension, imaging.CaptureQuality)
}

func awaitGuide(ctx context.Context, orch *guide.Orchestrator, done func(guide.View) bool) (guide.View, error) {
	for {
		v := orch.View()
		if done(v) {
			return v, nil
		}
		select {
		case <-orch.Updates():
		case <-ctx.Done():
			return v, ctx.Err()
		}
	}
}

func printStep(w io.Writer, v guide.View) {
	fmt.Fprintf(w, "\nStep %d of %d: %s\n", v.Index+1, v.Total, v.Title)
	fmt.Fprintf(w, "%s\n", v.Instruction)
	if d := v.Step.VisualDescription; d != "" {
		fmt.Fprintf(w, "Check: %s\n", d)
	}
}
