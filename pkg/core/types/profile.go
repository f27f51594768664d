package types

import (
	"strings"
	"time"
)

// SkillLevel is the builder's self-reported experience.
type SkillLevel string

const (
	SkillBeginner SkillLevel = "Beginner"
	SkillStudent  SkillLevel = "Student"
	SkillMaker    SkillLevel = "Maker"
)

// Valid reports whether s is a known skill level.
func (s SkillLevel) Valid() bool {
	switch s {
	case SkillBeginner, SkillStudent, SkillMaker:
		return true
	}
	return false
}

// Profile defaults.
const (
	DefaultProfileName    = "Builder"
	DefaultProfileCountry = "Unknown"
	DefaultProfileColor   = "bg-blue-600"
)

// UserProfile is the identity collaborator's user record.
type UserProfile struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	Country    string     `json:"country"`
	SkillLevel SkillLevel `json:"skillLevel"`
	JoinedDate time.Time  `json:"joinedDate"`
	Color      string     `json:"color"`
}

// Merge overlays non-empty fields of update onto p and fills defaults for
// anything still missing. ID and JoinedDate are kept from p when set.
func (p UserProfile) Merge(update UserProfile) UserProfile {
	out := p
	if update.ID != "" && out.ID == "" {
		out.ID = update.ID
	}
	if s := strings.TrimSpace(update.Name); s != "" {
		out.Name = s
	}
	if s := strings.TrimSpace(update.Email); s != "" {
		out.Email = s
	}
	if s := strings.TrimSpace(update.Country); s != "" {
		out.Country = s
	}
	if update.SkillLevel.Valid() {
		out.SkillLevel = update.SkillLevel
	}
	if s := strings.TrimSpace(update.Color); s != "" {
		out.Color = s
	}
	if out.JoinedDate.IsZero() {
		out.JoinedDate = update.JoinedDate
	}
	return out.WithDefaults()
}

// WithDefaults fills any empty field with its default.
func (p UserProfile) WithDefaults() UserProfile {
	if p.Name == "" {
		p.Name = DefaultProfileName
	}
	if p.Country == "" {
		p.Country = DefaultProfileCountry
	}
	if !p.SkillLevel.Valid() {
		p.SkillLevel = SkillBeginner
	}
	if p.Color == "" {
		p.Color = DefaultProfileColor
	}
	return p
}

// ProjectStatus is the lifecycle state of a history entry.
type ProjectStatus string

const (
	ProjectInProgress ProjectStatus = "In Progress"
	ProjectCompleted  ProjectStatus = "Completed"
)

// ProjectHistory is one entry in a user's build history.
type ProjectHistory struct {
	ID         string        `json:"id"`
	Title      string        `json:"title"`
	Date       time.Time     `json:"date"`
	Status     ProjectStatus `json:"status"`
	Difficulty Difficulty    `json:"difficulty"`
	Thumbnail  string        `json:"thumbnail,omitempty"`
}
