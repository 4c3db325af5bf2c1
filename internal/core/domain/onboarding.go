package domain

import (
	"errors"
	"time"
)

// StepID identifies one step of the vendor onboarding wizard.
type StepID string

const (
	StepPersonal StepID = "personal"
	StepBusiness StepID = "business"
	StepSkills   StepID = "skills"
	StepDocs     StepID = "docs"
	StepBanking  StepID = "banking"
)

var ErrUnknownStep = errors.New("unknown onboarding step")

// stepOrder is the closed, total order of the wizard.
var stepOrder = []StepID{StepPersonal, StepBusiness, StepSkills, StepDocs, StepBanking}

// Steps returns the wizard steps in order.
func Steps() []StepID {
	out := make([]StepID, len(stepOrder))
	copy(out, stepOrder)
	return out
}

// FirstStep is where every onboarding starts.
func FirstStep() StepID { return stepOrder[0] }

// Index returns the position of s in the wizard, or -1 for an unknown step.
func (s StepID) Index() int {
	for i, id := range stepOrder {
		if id == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a declared step.
func (s StepID) Valid() bool { return s.Index() >= 0 }

// IsLast reports whether s is the terminal step.
func (s StepID) IsLast() bool { return s.Index() == len(stepOrder)-1 }

// Next returns the successor of s. ok is false for the last step.
func (s StepID) Next() (next StepID, ok bool) {
	i := s.Index()
	if i < 0 || i == len(stepOrder)-1 {
		return s, false
	}
	return stepOrder[i+1], true
}

// Prev returns the predecessor of s. ok is false for the first step.
func (s StepID) Prev() (prev StepID, ok bool) {
	i := s.Index()
	if i <= 0 {
		return s, false
	}
	return stepOrder[i-1], true
}

// OnboardingProgress is the wizard position. Every step before Current is
// committed; once Submitted, Current stays frozen on the last step.
type OnboardingProgress struct {
	Current   StepID `json:"currentStepId"`
	Submitted bool   `json:"isSubmitted"`
}

// Committed lists the steps implied committed by the current position.
func (p OnboardingProgress) Committed() []StepID {
	n := p.Current.Index()
	if p.Submitted {
		n = len(stepOrder)
	}
	if n <= 0 {
		return nil
	}
	return Steps()[:n]
}

// StepCommitted is emitted after a step commit has been acknowledged.
type StepCommitted struct {
	UserID    string
	Step      StepID
	Submitted bool
	At        time.Time
}
