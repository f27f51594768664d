package flow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/vango-go/nava/pkg/core/ai"
	"github.com/vango-go/nava/pkg/core/types"
)

// HistoryRecorder persists build history. It is optional.
type HistoryRecorder interface {
	SaveProject(ctx context.Context, plan *types.Plan, thumbnail *types.Image) (types.ProjectHistory, error)
	MarkComplete(ctx context.Context, id string) error
}

// ProfileLoader fetches a signed-in user's profile. A nil profile with a nil
// error means none exists yet.
type ProfileLoader interface {
	GetProfile(ctx context.Context, userID string) (*types.UserProfile, error)
}

// Config wires a Controller.
type Config struct {
	AI       ai.Client
	History  HistoryRecorder
	Profiles ProfileLoader
	Logger   *slog.Logger
}

// Controller owns a State, runs the effects Reduce produces, and feeds their
// results back in. It is safe for concurrent use.
type Controller struct {
	cfg Config
	log *slog.Logger

	mu     sync.Mutex
	state  State
	closed bool

	updates chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewController returns a controller on the landing screen.
func NewController(cfg Config) (*Controller, error) {
	if cfg.AI == nil {
		return nil, errors.New("flow: AI client is required")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		cfg:     cfg,
		log:     log,
		state:   Initial(),
		updates: make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Updates signals (coalesced) after every state change.
func (c *Controller) Updates() <-chan struct{} {
	return c.updates
}

// Dispatch applies ev and starts any resulting effects.
func (c *Controller) Dispatch(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	prev := c.state.View
	next, effects := Reduce(c.state, ev)
	c.state = next
	if next.View != prev {
		c.log.Debug("view changed", "from", prev.String(), "to", next.View.String())
	}
	for _, eff := range effects {
		c.wg.Go(func() { c.run(eff) })
	}
	select {
	case c.updates <- struct{}{}:
	default:
	}
}

func (c *Controller) run(eff Effect) {
	ctx := c.ctx
	start := time.Now()
	var result Event
	switch e := eff.(type) {
	case Identify:
		name, err := c.cfg.AI.IdentifyObject(ctx, e.Image)
		result = Identified{Seq: e.Seq, ObjectName: name, Err: err}
	case Suggest:
		list, err := c.cfg.AI.GenerateSuggestions(ctx, e.ObjectName, e.Image, e.Reference)
		result = SuggestionsLoaded{Seq: e.Seq, Suggestions: list, Err: err}
	case Plan:
		plan, err := c.cfg.AI.GenerateCustomPlan(ctx, e.Image, e.Goal, e.Reference)
		result = Planned{Seq: e.Seq, Plan: plan, Err: err}
	case RecordProject:
		if c.cfg.History == nil {
			return
		}
		entry, err := c.cfg.History.SaveProject(ctx, e.Plan, e.Thumbnail)
		result = ProjectRecorded{Seq: e.Seq, ID: entry.ID, Err: err}
	case CompleteProject:
		if c.cfg.History == nil {
			return
		}
		if err := c.cfg.History.MarkComplete(ctx, e.ID); err != nil {
			c.log.Warn("mark project complete failed", "project_id", e.ID, "error", err)
		}
		return
	case LoadProfile:
		if c.cfg.Profiles == nil {
			result = ProfileLoaded{Seq: e.Seq}
			break
		}
		p, err := c.cfg.Profiles.GetProfile(ctx, e.UserID)
		result = ProfileLoaded{Seq: e.Seq, Profile: p, Err: err}
	default:
		c.log.Error("unknown effect", "type", fmt.Sprintf("%T", eff))
		return
	}
	if err := resultErr(result); err != nil {
		c.log.Warn("operation failed", "effect", effectName(eff), "duration", time.Since(start), "error", err)
	}
	c.Dispatch(result)
}

func resultErr(ev Event) error {
	switch e := ev.(type) {
	case Identified:
		return e.Err
	case SuggestionsLoaded:
		return e.Err
	case Planned:
		return e.Err
	case ProjectRecorded:
		return e.Err
	case ProfileLoaded:
		return e.Err
	}
	return nil
}

func effectName(eff Effect) string {
	switch eff.(type) {
	case Identify:
		return "identify"
	case Suggest:
		return "suggest"
	case Plan:
		return "plan"
	case RecordProject:
		return "record_project"
	case CompleteProject:
		return "complete_project"
	case LoadProfile:
		return "load_profile"
	}
	return "unknown"
}

// Close cancels running effects and waits for them. Later dispatches are
// ignored.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()
}

// Wait blocks until all running effects have finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}
