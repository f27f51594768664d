package types

import "strings"

// DefaultVisualDescription is used when a plan step has no verification criteria.
const DefaultVisualDescription = "Check your work before continuing."

// GuideStep is the read-only, display-ready form of a plan step.
type GuideStep struct {
	StepNumber        int    `json:"stepNumber"`
	Title             string `json:"title"`
	Instruction       string `json:"instruction"`
	VisualDescription string `json:"visualDescription"`
	YouTubeQuery      string `json:"youtubeQuery"`
}

// Guide is the walkthrough derived from a plan.
type Guide struct {
	ProjectName string      `json:"projectName"`
	Steps       []GuideStep `json:"steps"`
}

// NewGuide derives a guide 1:1 from the plan's steps, numbering from 1.
func NewGuide(p *Plan) *Guide {
	if p == nil {
		return nil
	}
	g := &Guide{
		ProjectName: p.Title,
		Steps:       make([]GuideStep, len(p.Steps)),
	}
	for i, s := range p.Steps {
		visual := s.VerificationCriteria
		if strings.TrimSpace(visual) == "" {
			visual = DefaultVisualDescription
		}
		g.Steps[i] = GuideStep{
			StepNumber:        i + 1,
			Title:             s.Title,
			Instruction:       s.Description,
			VisualDescription: visual,
			YouTubeQuery:      p.Title + " " + s.Title + " how to tutorial",
		}
	}
	return g
}
