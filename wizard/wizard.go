// Package wizard tracks which section of the inspection questionnaire
// is active and gates forward navigation on completeness. Positions
// are restored from the draft payload; Preview and Submitted are
// transient render states and never persisted.
package wizard

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/mailmeimmu/echeck-sub000/model"
)

// Condition declares a question conditional on another question's
// answer. While the referenced answer differs from Value, the
// dependent question is exempt from every completeness check.
type Condition struct {
	QuestionID string
	Value      model.Answer
}

type Question struct {
	ID            string
	Text          string
	Kind          model.AnswerKind
	PhotoRequired bool
	// NoteRequired demands an explanation when a boolean check fails.
	NoteRequired bool
	DependsOn    *Condition
}

type Section struct {
	ID        string
	Title     string
	Questions []Question
}

type Phase int

const (
	PhaseSection Phase = iota
	PhasePreview
	PhaseSubmitted
)

// ValidationError names the offending question so the form can point
// at it.
type ValidationError struct {
	SectionID    string
	QuestionID   string
	QuestionText string
	Reason       string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("question %q: %s", e.QuestionText, e.Reason)
}

type Wizard struct {
	sections []Section
	pos      int
	phase    Phase
}

func New(sections []Section) *Wizard {
	return &Wizard{sections: sections}
}

// Restore positions the wizard from a hydrated draft, clamping
// out-of-range values from older section configurations.
func (w *Wizard) Restore(pos int) {
	if pos > len(w.sections)-1 {
		pos = len(w.sections) - 1
	}
	if pos < 0 {
		pos = 0
	}
	w.pos = pos
	w.phase = PhaseSection
}

func (w *Wizard) Position() int { return w.pos }
func (w *Wizard) Phase() Phase  { return w.phase }

func (w *Wizard) Section() (Section, bool) {
	if w.phase != PhaseSection || w.pos >= len(w.sections) {
		return Section{}, false
	}
	return w.sections[w.pos], true
}

// applies reports whether q's completeness rules are in force given
// the current answers of its section.
func applies(q Question, sectionID string, p model.DraftPayload) bool {
	if q.DependsOn == nil {
		return true
	}
	a, ok := p.Answer(sectionID, q.DependsOn.QuestionID)
	return ok && a.Equal(q.DependsOn.Value)
}

func validateSection(s Section, p model.DraftPayload) error {
	for _, q := range s.Questions {
		if !applies(q, s.ID, p) {
			continue
		}

		a, ok := p.Answer(s.ID, q.ID)
		if !ok {
			return &ValidationError{s.ID, q.ID, q.Text, "answer required"}
		}
		if err := a.Validate(); err != nil {
			return &ValidationError{s.ID, q.ID, q.Text, err.Error()}
		}
		if q.PhotoRequired && len(p.PhotoRefs[model.FieldKey(s.ID, q.ID)]) == 0 {
			return &ValidationError{s.ID, q.ID, q.Text, "photo required"}
		}
		if q.NoteRequired && a.Kind == model.AnswerBool && !a.Bool {
			if p.Notes[model.FieldKey(s.ID, q.ID)] == "" {
				return &ValidationError{s.ID, q.ID, q.Text, "note required"}
			}
		}
	}
	return nil
}

// Next validates the active section against the payload and advances;
// the last section leads to Preview. On violation the position does
// not change.
func (w *Wizard) Next(p model.DraftPayload) error {
	if w.phase != PhaseSection {
		return fmt.Errorf("cannot advance from phase %d", w.phase)
	}
	if err := validateSection(w.sections[w.pos], p); err != nil {
		return err
	}
	if w.pos < len(w.sections)-1 {
		w.pos++
	} else {
		w.phase = PhasePreview
	}
	return nil
}

// Previous steps back one section. From the first section it returns
// false: leaving the wizard entirely is the caller's move.
func (w *Wizard) Previous() bool {
	if w.phase == PhasePreview {
		w.phase = PhaseSection
		return true
	}
	if w.phase != PhaseSection || w.pos == 0 {
		return false
	}
	w.pos--
	return true
}

// Submit re-validates every section, not just the last, collecting all
// violations; only a fully complete questionnaire reaches the
// submission call. On failure the wizard stays in Preview.
func (w *Wizard) Submit(ctx context.Context, p model.DraftPayload, submit func(ctx context.Context) error) error {
	if w.phase != PhasePreview {
		return fmt.Errorf("submit is only allowed from preview")
	}

	var errs *multierror.Error
	for _, s := range w.sections {
		if err := validateSection(s, p); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return err
	}

	if err := submit(ctx); err != nil {
		return err
	}
	w.phase = PhaseSubmitted
	return nil
}
