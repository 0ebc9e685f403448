package model

import (
	"testing"

	"github.com/goccy/go-json"
)

func TestAnswerValidate(t *testing.T) {
	tests := []struct {
		name   string
		answer Answer
		ok     bool
	}{
		{"bool", BoolAnswer(false), true},
		{"choice", ChoiceAnswer("good"), true},
		{"empty choice", ChoiceAnswer(""), false},
		{"rating in range", RatingAnswer(10), true},
		{"rating too low", RatingAnswer(0), false},
		{"rating too high", RatingAnswer(11), false},
		{"text", TextAnswer("ok"), true},
		{"empty text", TextAnswer(""), false},
		{"unknown kind", Answer{Kind: "maybe"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.answer.Validate()
			if (err == nil) != tt.ok {
				t.Errorf("Validate() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestAnswerEqual(t *testing.T) {
	if !BoolAnswer(true).Equal(BoolAnswer(true)) {
		t.Error("equal bools")
	}
	if BoolAnswer(true).Equal(BoolAnswer(false)) {
		t.Error("unequal bools")
	}
	if ChoiceAnswer("a").Equal(TextAnswer("a")) {
		t.Error("kind mismatch must not compare equal")
	}
}

func TestAnswerJSONKeepsKind(t *testing.T) {
	p := DraftPayload{
		Answers: map[string]map[string]Answer{
			"s1": {
				"q1": BoolAnswer(true),
				"q2": RatingAnswer(9),
				"q3": ChoiceAnswer("needs repair"),
			},
		},
	}
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}

	decoded := DraftPayload{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	for q, want := range p.Answers["s1"] {
		got, ok := decoded.Answer("s1", q)
		if !ok || !got.Equal(want) {
			t.Errorf("answer %s = %+v, want %+v", q, got, want)
		}
	}
}

func TestAnswerJSONRejectsUnknownKind(t *testing.T) {
	a := Answer{}
	err := json.Unmarshal([]byte(`{"kind":"maybe","value":1}`), &a)
	if err == nil {
		t.Error("unknown kind should fail to decode")
	}
}

func TestPayloadEmpty(t *testing.T) {
	if !(DraftPayload{}).Empty() {
		t.Error("zero payload is empty")
	}
	if (DraftPayload{WizardPosition: 2}).Empty() {
		t.Error("a resumed position counts as input")
	}
	p := DraftPayload{Notes: map[string]string{"s.q": "n"}}
	if p.Empty() {
		t.Error("notes count as input")
	}
}

func TestPayloadCloneIsIndependent(t *testing.T) {
	p := DraftPayload{
		Answers:   map[string]map[string]Answer{"s1": {"q1": BoolAnswer(true)}},
		PhotoRefs: map[string][]string{"s1.q1": {"a.jpg"}},
		Notes:     map[string]string{"s1.q1": "note"},
	}
	clone := p.Clone()

	p.Answers["s1"]["q1"] = BoolAnswer(false)
	p.PhotoRefs["s1.q1"] = append(p.PhotoRefs["s1.q1"], "b.jpg")
	p.Notes["s1.q1"] = "changed"

	if got, _ := clone.Answer("s1", "q1"); !got.Equal(BoolAnswer(true)) {
		t.Error("clone answers shared with source")
	}
	if len(clone.PhotoRefs["s1.q1"]) != 1 {
		t.Error("clone photo refs shared with source")
	}
	if clone.Notes["s1.q1"] != "note" {
		t.Error("clone notes shared with source")
	}
}

func TestFieldKey(t *testing.T) {
	if got := FieldKey("electrical", "panel_ok"); got != "electrical.panel_ok" {
		t.Errorf("FieldKey = %q", got)
	}
}
