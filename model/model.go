package model

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofrs/uuid"
)

// DraftKey identifies the single live draft of one engineer on one
// inspection session. The store enforces uniqueness on this pair.
type DraftKey struct {
	SessionID uuid.UUID `json:"session_id"`
	AuthorID  uuid.UUID `json:"author_id"`
}

func (k DraftKey) String() string {
	return k.SessionID.String() + "/" + k.AuthorID.String()
}

type AnswerKind string

const (
	AnswerBool   AnswerKind = "bool"
	AnswerChoice AnswerKind = "choice"
	AnswerRating AnswerKind = "rating"
	AnswerText   AnswerKind = "text"
)

// Answer is a tagged variant: only the field selected by Kind is
// meaningful. Kept a plain struct so payload maps stay copyable by
// value.
type Answer struct {
	Kind   AnswerKind
	Bool   bool
	Choice string
	Rating int
	Text   string
}

func BoolAnswer(v bool) Answer     { return Answer{Kind: AnswerBool, Bool: v} }
func ChoiceAnswer(v string) Answer { return Answer{Kind: AnswerChoice, Choice: v} }
func RatingAnswer(v int) Answer    { return Answer{Kind: AnswerRating, Rating: v} }
func TextAnswer(v string) Answer   { return Answer{Kind: AnswerText, Text: v} }

func (a Answer) Validate() error {
	switch a.Kind {
	case AnswerBool:
		return nil
	case AnswerChoice:
		if a.Choice == "" {
			return fmt.Errorf("empty choice answer")
		}
	case AnswerRating:
		if a.Rating < 1 || a.Rating > 10 {
			return fmt.Errorf("rating out of range: %d", a.Rating)
		}
	case AnswerText:
		if a.Text == "" {
			return fmt.Errorf("empty text answer")
		}
	default:
		return fmt.Errorf("unknown answer kind %q", a.Kind)
	}
	return nil
}

func (a Answer) Equal(b Answer) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case AnswerBool:
		return a.Bool == b.Bool
	case AnswerChoice:
		return a.Choice == b.Choice
	case AnswerRating:
		return a.Rating == b.Rating
	case AnswerText:
		return a.Text == b.Text
	}
	return false
}

type answerJSON struct {
	Kind  AnswerKind      `json:"kind"`
	Value json.RawMessage `json:"value"`
}

func (a Answer) MarshalJSON() ([]byte, error) {
	var v any
	switch a.Kind {
	case AnswerBool:
		v = a.Bool
	case AnswerChoice:
		v = a.Choice
	case AnswerRating:
		v = a.Rating
	case AnswerText:
		v = a.Text
	default:
		return nil, fmt.Errorf("unknown answer kind %q", a.Kind)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(answerJSON{Kind: a.Kind, Value: raw})
}

func (a *Answer) UnmarshalJSON(data []byte) error {
	var aux answerJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	*a = Answer{Kind: aux.Kind}
	switch aux.Kind {
	case AnswerBool:
		return json.Unmarshal(aux.Value, &a.Bool)
	case AnswerChoice:
		return json.Unmarshal(aux.Value, &a.Choice)
	case AnswerRating:
		return json.Unmarshal(aux.Value, &a.Rating)
	case AnswerText:
		return json.Unmarshal(aux.Value, &a.Text)
	}
	return fmt.Errorf("unknown answer kind %q", aux.Kind)
}

// FieldKey is the composite key for photo and note lookups.
func FieldKey(sectionID, questionID string) string {
	return sectionID + "." + questionID
}

// DraftPayload is everything the form needs to resume: answers by
// section and question, photo references and notes by composite key,
// and the wizard position.
type DraftPayload struct {
	Answers        map[string]map[string]Answer `json:"answers,omitempty"`
	PhotoRefs      map[string][]string          `json:"photo_refs,omitempty"`
	Notes          map[string]string            `json:"notes,omitempty"`
	WizardPosition int                          `json:"wizard_position"`
}

// Empty reports whether the payload carries no real input yet. An
// empty payload must never create a draft row.
func (p DraftPayload) Empty() bool {
	return len(p.Answers) == 0 &&
		len(p.PhotoRefs) == 0 &&
		len(p.Notes) == 0 &&
		p.WizardPosition == 0
}

func (p DraftPayload) Answer(sectionID, questionID string) (Answer, bool) {
	a, ok := p.Answers[sectionID][questionID]
	return a, ok
}

// Clone deep-copies the payload so a flush snapshot cannot observe
// later mutations.
func (p DraftPayload) Clone() DraftPayload {
	out := DraftPayload{WizardPosition: p.WizardPosition}
	if p.Answers != nil {
		out.Answers = make(map[string]map[string]Answer, len(p.Answers))
		for sec, qs := range p.Answers {
			m := make(map[string]Answer, len(qs))
			for q, a := range qs {
				m[q] = a
			}
			out.Answers[sec] = m
		}
	}
	if p.PhotoRefs != nil {
		out.PhotoRefs = make(map[string][]string, len(p.PhotoRefs))
		for k, refs := range p.PhotoRefs {
			out.PhotoRefs[k] = append([]string(nil), refs...)
		}
	}
	if p.Notes != nil {
		out.Notes = make(map[string]string, len(p.Notes))
		for k, n := range p.Notes {
			out.Notes[k] = n
		}
	}
	return out
}

// Draft is the unit of persistence. UpdatedAt is assigned by the store
// on every successful upsert.
type Draft struct {
	DraftKey
	Payload   DraftPayload `json:"payload"`
	UpdatedAt time.Time    `json:"updated_at,omitempty"`
}
