package types

import (
	"fmt"
	"strings"
)

// FeasibilityStatus is the backend's judgment of whether a goal can be built.
type FeasibilityStatus string

const (
	FeasibilityYes       FeasibilityStatus = "Yes"
	FeasibilityPartially FeasibilityStatus = "Partially"
	FeasibilityNotSafe   FeasibilityStatus = "Not Safe"
	FeasibilityNo        FeasibilityStatus = "No"
)

// Valid reports whether s is one of the known statuses.
func (s FeasibilityStatus) Valid() bool {
	switch s {
	case FeasibilityYes, FeasibilityPartially, FeasibilityNotSafe, FeasibilityNo:
		return true
	}
	return false
}

// Difficulty of a plan.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

// Valid reports whether d is one of the known difficulties.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// Feasibility pairs a status with its explanation.
type Feasibility struct {
	Status      FeasibilityStatus `json:"status"`
	Explanation string            `json:"explanation"`
}

// Changes lists what the build adds, removes and modifies on the object.
type Changes struct {
	Add    []string `json:"add"`
	Remove []string `json:"remove"`
	Modify []string `json:"modify"`
}

// PlanStep is one build step as produced by the backend.
type PlanStep struct {
	Title                string `json:"title"`
	Description          string `json:"description"`
	VerificationCriteria string `json:"verificationCriteria"`
}

// Plan is an AI-generated build specification. A plan is created once per
// build session and never mutated afterwards.
type Plan struct {
	Title          string      `json:"title"`
	Description    string      `json:"description"`
	Analysis       string      `json:"analysis"`
	Feasibility    Feasibility `json:"feasibility"`
	Changes        Changes     `json:"changes"`
	Steps          []PlanStep  `json:"steps"`
	SafetyWarnings []string    `json:"safetyWarning"`
	Alternatives   []string    `json:"alternatives"`
	EstimatedTime  string      `json:"estimatedTime"`
	Difficulty     Difficulty  `json:"difficulty"`
}

// Validate checks the fields the rest of the system depends on.
func (p *Plan) Validate() error {
	if p == nil {
		return fmt.Errorf("plan is nil")
	}
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("plan title is empty")
	}
	if len(p.Steps) == 0 {
		return fmt.Errorf("plan has no steps")
	}
	for i, s := range p.Steps {
		if strings.TrimSpace(s.Title) == "" {
			return fmt.Errorf("steps[%d].title is empty", i)
		}
	}
	if !p.Difficulty.Valid() {
		return fmt.Errorf("unknown difficulty %q", p.Difficulty)
	}
	if !p.Feasibility.Status.Valid() {
		return fmt.Errorf("unknown feasibility status %q", p.Feasibility.Status)
	}
	return nil
}

// VerificationResult is the backend's judgment of a step photo.
type VerificationResult struct {
	Success  bool   `json:"success"`
	Feedback string `json:"feedback"`
}
