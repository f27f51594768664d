// Package flow is the application view controller: which screen is shown, which
// artifacts (photo, object name, plan, guide) are held, and which backend
// operation is pending.
//
// Reduce is a pure function over State. Controller runs the effects it returns
// and feeds their results back as events.
package flow

import (
	"github.com/vango-go/nava/pkg/core/ai"
	"github.com/vango-go/nava/pkg/core/types"
)

// View is a screen.
type View int

const (
	ViewLanding View = iota
	ViewAuth
	ViewProfile
	ViewCamera
	ViewAnalyzing
	ViewIntentSelect
	ViewBuildOverview
	ViewGuide
)

var viewNames = [...]string{
	ViewLanding:       "landing",
	ViewAuth:          "auth",
	ViewProfile:       "profile",
	ViewCamera:        "camera",
	ViewAnalyzing:     "analyzing",
	ViewIntentSelect:  "intent_select",
	ViewBuildOverview: "build_overview",
	ViewGuide:         "guide",
}

func (v View) String() string {
	if v >= 0 && int(v) < len(viewNames) {
		return viewNames[v]
	}
	return "unknown"
}

// Op is the backend operation an Analyzing screen waits on.
type Op int

const (
	OpNone Op = iota
	OpIdentify
	OpPlan
	OpSignIn
)

// User-visible messages.
const (
	IdentifyingMessage    = "Looking at your object..."
	PlanningMessage       = "Creating your plan..."
	IdentifyFailedMessage = "Something went wrong. Please try again."
	PlanFailedMessage     = "Could not create plan. Please try a different goal."
	GoalTooShortMessage   = "Tell me a bit more about what you want to make."
)

// State is everything the controller knows. Treat it as a value: Reduce
// returns a new State and never mutates slices or pointers it was given.
type State struct {
	View View

	// Pending is the single outstanding operation, tagged with PendingSeq.
	// Origin is where a failed operation returns to.
	Pending    Op
	PendingSeq uint64
	Origin     View
	Loading    string
	Error      string

	// staged holds a photo under identification; it becomes CapturedImage
	// only when identification succeeds.
	staged *types.Image

	CapturedImage  *types.Image
	ObjectName     string
	ReferenceImage *types.Image

	Suggestions        []string
	SuggestionsLoading bool
	SuggestSeq         uint64

	Goal  string
	Plan  *types.Plan
	Guide *types.Guide

	// ProjectID is the history record of the guide being worked on.
	ProjectID string
	recordSeq uint64

	UserID  string
	Profile *types.UserProfile

	seq uint64
}

func (s *State) nextSeq() uint64 {
	s.seq++
	return s.seq
}

// Event is an input to Reduce. The set is closed.
type Event interface {
	event()
}

type (
	// OpenCamera starts a scan from the landing screen.
	OpenCamera struct{}
	// CancelCamera leaves the camera for the landing screen.
	CancelCamera struct{}
	// Capture submits a photo from the camera, or an upload from landing.
	Capture struct{ Image types.Image }
	// Identified resolves an OpIdentify.
	Identified struct {
		Seq        uint64
		ObjectName string
		Err        error
	}
	// RenameObject corrects the identified name; suggestions reload.
	RenameObject struct{ Name string }
	// SetReference attaches or clears a picture of the target; suggestions reload.
	SetReference struct{ Image *types.Image }
	// SuggestionsLoaded resolves a Suggest effect.
	SuggestionsLoaded struct {
		Seq         uint64
		Suggestions []string
		Err         error
	}
	// RequestPlan asks for a plan for Goal.
	RequestPlan struct{ Goal string }
	// Planned resolves an OpPlan.
	Planned struct {
		Seq  uint64
		Plan *types.Plan
		Err  error
	}
	// Back goes to the previous screen where one exists.
	Back struct{}
	// StartGuide opens the walkthrough for the current plan.
	StartGuide struct{}
	// ProjectRecorded carries the history id of the started guide.
	ProjectRecorded struct {
		Seq uint64
		ID  string
		Err error
	}
	// CloseGuide leaves the walkthrough. Completed marks the project done.
	CloseGuide struct{ Completed bool }
	// OpenAuth shows the sign-in screen.
	OpenAuth struct{}
	// SignedIn reports a successful sign-in; the profile is loaded next.
	SignedIn struct{ UserID string }
	// ProfileLoaded resolves a LoadProfile effect. A nil Profile means the
	// user has not created one yet.
	ProfileLoaded struct {
		Seq     uint64
		Profile *types.UserProfile
		Err     error
	}
	// OpenProfile shows the profile screen.
	OpenProfile struct{}
	// ProfileSaved returns to landing with the saved profile.
	ProfileSaved struct{ Profile types.UserProfile }
	// SignOut clears everything and returns to landing.
	SignOut struct{}
	// DismissError clears the error banner.
	DismissError struct{}
)

func (OpenCamera) event()        {}
func (CancelCamera) event()      {}
func (Capture) event()           {}
func (Identified) event()        {}
func (RenameObject) event()      {}
func (SetReference) event()      {}
func (SuggestionsLoaded) event() {}
func (RequestPlan) event()       {}
func (Planned) event()           {}
func (Back) event()              {}
func (StartGuide) event()        {}
func (ProjectRecorded) event()   {}
func (CloseGuide) event()        {}
func (OpenAuth) event()          {}
func (SignedIn) event()          {}
func (ProfileLoaded) event()     {}
func (OpenProfile) event()       {}
func (ProfileSaved) event()      {}
func (SignOut) event()           {}
func (DismissError) event()      {}

// Effect is a command Reduce asks the runner to perform. The set is closed.
type Effect interface {
	effect()
}

type (
	// Identify names the object in Image and answers with Identified.
	Identify struct {
		Seq   uint64
		Image types.Image
	}
	// Suggest loads project ideas and answers with SuggestionsLoaded.
	Suggest struct {
		Seq        uint64
		ObjectName string
		Image      types.Image
		Reference  *types.Image
	}
	// Plan builds a plan and answers with Planned.
	Plan struct {
		Seq       uint64
		Image     types.Image
		Goal      string
		Reference *types.Image
	}
	// RecordProject stores an in-progress history entry and answers with
	// ProjectRecorded.
	RecordProject struct {
		Seq       uint64
		Plan      *types.Plan
		Thumbnail *types.Image
	}
	// CompleteProject marks a history entry completed. It has no answer.
	CompleteProject struct{ ID string }
	// LoadProfile fetches the signed-in user's profile and answers with
	// ProfileLoaded.
	LoadProfile struct {
		Seq    uint64
		UserID string
	}
)

func (Identify) effect()        {}
func (Suggest) effect()         {}
func (Plan) effect()            {}
func (RecordProject) effect()   {}
func (CompleteProject) effect() {}
func (LoadProfile) effect()     {}

// Initial is the state at launch.
func Initial() State {
	return State{View: ViewLanding}
}

// Reduce applies ev to s. Events that do not apply to the current screen, and
// results whose sequence number is no longer pending, leave s unchanged.
func Reduce(s State, ev Event) (State, []Effect) {
	switch e := ev.(type) {
	case OpenCamera:
		if s.View != ViewLanding {
			return s, nil
		}
		s.View = ViewCamera
		s.Error = ""
		return s, nil

	case CancelCamera:
		if s.View != ViewCamera {
			return s, nil
		}
		s.View = ViewLanding
		return s, nil

	case Capture:
		if s.Pending != OpNone || e.Image.IsZero() {
			return s, nil
		}
		if s.View != ViewCamera && s.View != ViewLanding {
			return s, nil
		}
		img := e.Image
		s.staged = &img
		return s.begin(OpIdentify, ViewCamera, IdentifyingMessage, func(seq uint64) Effect {
			return Identify{Seq: seq, Image: img}
		})

	case Identified:
		if !s.resolves(OpIdentify, e.Seq) {
			return s, nil
		}
		s = s.settle()
		if e.Err != nil {
			s.staged = nil
			s.View = ViewCamera
			s.Error = IdentifyFailedMessage
			return s, nil
		}
		name := e.ObjectName
		if name == "" {
			name = ai.FallbackObjectName
		}
		s.CapturedImage, s.staged = s.staged, nil
		s.ObjectName = name
		s.ReferenceImage = nil
		s.Plan, s.Guide, s.Goal = nil, nil, ""
		s.View = ViewIntentSelect
		return s.suggest()

	case RenameObject:
		if s.View != ViewIntentSelect || e.Name == "" || e.Name == s.ObjectName {
			return s, nil
		}
		s.ObjectName = e.Name
		return s.suggest()

	case SetReference:
		if s.View != ViewIntentSelect {
			return s, nil
		}
		if e.Image != nil && !e.Image.IsZero() {
			ref := *e.Image
			s.ReferenceImage = &ref
		} else {
			s.ReferenceImage = nil
		}
		return s.suggest()

	case SuggestionsLoaded:
		if !s.SuggestionsLoading || e.Seq != s.SuggestSeq {
			return s, nil
		}
		s.SuggestionsLoading = false
		if e.Err == nil {
			s.Suggestions = ai.NormalizeSuggestions(e.Suggestions)
		}
		return s, nil

	case RequestPlan:
		if s.View != ViewIntentSelect || s.Pending != OpNone || s.CapturedImage == nil {
			return s, nil
		}
		if !types.ValidGoal(e.Goal) {
			s.Error = GoalTooShortMessage
			return s, nil
		}
		img, ref := *s.CapturedImage, s.ReferenceImage
		s.Goal = e.Goal
		return s.begin(OpPlan, ViewIntentSelect, PlanningMessage, func(seq uint64) Effect {
			return Plan{Seq: seq, Image: img, Goal: e.Goal, Reference: ref}
		})

	case Planned:
		if !s.resolves(OpPlan, e.Seq) {
			return s, nil
		}
		s = s.settle()
		if e.Err != nil || e.Plan == nil {
			s.View = ViewIntentSelect
			s.Error = PlanFailedMessage
			return s, nil
		}
		s.Plan = e.Plan
		s.View = ViewBuildOverview
		return s, nil

	case Back:
		switch s.View {
		case ViewIntentSelect:
			s.View = ViewCamera
			s.Plan, s.Guide, s.Goal = nil, nil, ""
			s.Suggestions, s.SuggestionsLoading = nil, false
		case ViewBuildOverview:
			s.View = ViewIntentSelect
		case ViewAuth, ViewProfile:
			s.View = ViewLanding
		}
		return s, nil

	case StartGuide:
		if s.View != ViewBuildOverview || s.Plan == nil {
			return s, nil
		}
		s.Guide = types.NewGuide(s.Plan)
		s.View = ViewGuide
		s.ProjectID = ""
		s.recordSeq = s.nextSeq()
		return s, []Effect{RecordProject{Seq: s.recordSeq, Plan: s.Plan, Thumbnail: s.CapturedImage}}

	case ProjectRecorded:
		if s.View != ViewGuide || e.Seq != s.recordSeq || e.Err != nil {
			return s, nil
		}
		s.ProjectID = e.ID
		return s, nil

	case CloseGuide:
		if s.View != ViewGuide {
			return s, nil
		}
		var effects []Effect
		if e.Completed && s.ProjectID != "" {
			effects = append(effects, CompleteProject{ID: s.ProjectID})
		}
		s.Guide = nil
		s.ProjectID = ""
		s.View = ViewBuildOverview
		return s, effects

	case OpenAuth:
		if s.View != ViewLanding {
			return s, nil
		}
		s.View = ViewAuth
		return s, nil

	case SignedIn:
		if s.View != ViewAuth || s.Pending != OpNone || e.UserID == "" {
			return s, nil
		}
		s.UserID = e.UserID
		seq := s.nextSeq()
		s.Pending, s.PendingSeq, s.Origin = OpSignIn, seq, ViewAuth
		return s, []Effect{LoadProfile{Seq: seq, UserID: e.UserID}}

	case ProfileLoaded:
		if !s.resolves(OpSignIn, e.Seq) {
			return s, nil
		}
		s = s.settle()
		if e.Err == nil && e.Profile != nil {
			p := *e.Profile
			s.Profile = &p
			s.View = ViewLanding
			return s, nil
		}
		s.View = ViewProfile
		return s, nil

	case OpenProfile:
		if s.View != ViewLanding {
			return s, nil
		}
		s.View = ViewProfile
		return s, nil

	case ProfileSaved:
		if s.View != ViewProfile {
			return s, nil
		}
		p := e.Profile
		s.Profile = &p
		s.View = ViewLanding
		return s, nil

	case SignOut:
		next := Initial()
		next.seq = s.seq
		return next, nil

	case DismissError:
		s.Error = ""
		return s, nil

	default:
		return s, nil
	}
}

// begin enters Analyzing for op and returns its effect.
func (s State) begin(op Op, origin View, msg string, mk func(seq uint64) Effect) (State, []Effect) {
	seq := s.nextSeq()
	s.Pending, s.PendingSeq, s.Origin = op, seq, origin
	s.Loading = msg
	s.Error = ""
	s.View = ViewAnalyzing
	return s, []Effect{mk(seq)}
}

func (s State) resolves(op Op, seq uint64) bool {
	return s.Pending == op && s.PendingSeq == seq
}

func (s State) settle() State {
	s.Pending, s.PendingSeq = OpNone, 0
	s.Loading = ""
	return s
}

// suggest starts a fresh suggestion load, superseding any in flight.
func (s State) suggest() (State, []Effect) {
	if s.CapturedImage == nil {
		return s, nil
	}
	seq := s.nextSeq()
	s.SuggestSeq = seq
	s.SuggestionsLoading = true
	s.Suggestions = nil
	return s, []Effect{Suggest{Seq: seq, ObjectName: s.ObjectName, Image: *s.CapturedImage, Reference: s.ReferenceImage}}
}
