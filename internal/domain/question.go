package domain

import (
	"encoding/json"
	"fmt"
)

// QuestionType is the wire discriminator of a question.
type QuestionType string

const (
	TypeMultipleChoice QuestionType = "multiple-choice"
	TypeTrueFalse      QuestionType = "true-false"
	TypeTextInput      QuestionType = "text-input"
)

// QuestionKind is the closed set of question variants. Only the types in this
// package implement it.
type QuestionKind interface {
	Type() QuestionType
	isQuestionKind()
}

// Option is a selectable choice of a multiple-choice question.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// MultipleChoice carries ordered options and the id of the correct one.
type MultipleChoice struct {
	Options       []Option
	CorrectOption string
}

// TrueFalse carries the correct boolean.
type TrueFalse struct {
	Correct bool
}

// TextInput is a free-text question. It has no gradable answer; SampleAnswer
// is shown during review only.
type TextInput struct {
	SampleAnswer string
}

func (MultipleChoice) Type() QuestionType { return TypeMultipleChoice }
func (TrueFalse) Type() QuestionType { return TypeTrueFalse }
func (TextInput) Type() QuestionType { return TypeTextInput }

func (MultipleChoice) isQuestionKind() {}
func (TrueFalse) isQuestionKind() {}
func (TextInput) isQuestionKind() {}

// Question is immutable once loaded.
type Question struct {
	ID          string
	Prompt      string
	Difficulty  string
	Points      int // defaults to 1 if zero
	Explanation string
	Kind        QuestionKind
}

// PointValue returns the configured points, defaulting to 1.
func (q Question) PointValue() int {
	if q.Points <= 0 {
		return 1
	}
	return q.Points
}

type questionWire struct {
	ID            string          `json:"id"`
	Type          QuestionType    `json:"type"`
	Prompt        string          `json:"prompt"`
	Options       []Option        `json:"options,omitempty"`
	CorrectAnswer json.RawMessage `json:"correctAnswer,omitempty"`
	SampleAnswer  string          `json:"sampleAnswer,omitempty"`
	Difficulty    string          `json:"difficulty,omitempty"`
	Points        int             `json:"points,omitempty"`
	Explanation   string          `json:"explanation,omitempty"`
}

func (q Question) MarshalJSON() ([]byte, error) {
	w := questionWire{
		ID:          q.ID,
		Prompt:      q.Prompt,
		Difficulty:  q.Difficulty,
		Points:      q.Points,
		Explanation: q.Explanation,
	}
	switch k := q.Kind.(type) {
	case MultipleChoice:
		w.Type = TypeMultipleChoice
		w.Options = k.Options
		raw, err := json.Marshal(k.CorrectOption)
		if err != nil {
			return nil, err
		}
		w.CorrectAnswer = raw
	case TrueFalse:
		w.Type = TypeTrueFalse
		raw, err := json.Marshal(k.Correct)
		if err != nil {
			return nil, err
		}
		w.CorrectAnswer = raw
	case TextInput:
		w.Type = TypeTextInput
		w.SampleAnswer = k.SampleAnswer
	default:
		return nil, fmt.Errorf("question %s: %w", q.ID, ErrUnknownQuestionType)
	}
	return json.Marshal(w)
}

func (q *Question) UnmarshalJSON(data []byte) error {
	var w questionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	q.ID = w.ID
	q.Prompt = w.Prompt
	q.Difficulty = w.Difficulty
	q.Points = w.Points
	q.Explanation = w.Explanation

	switch w.Type {
	case TypeMultipleChoice:
		var correct string
		if len(w.CorrectAnswer) > 0 {
			if err := json.Unmarshal(w.CorrectAnswer, &correct); err != nil {
				return fmt.Errorf("question %s correctAnswer: %w", w.ID, err)
			}
		}
		q.Kind = MultipleChoice{Options: w.Options, CorrectOption: correct}
	case TypeTrueFalse:
		var correct bool
		if len(w.CorrectAnswer) > 0 {
			if err := json.Unmarshal(w.CorrectAnswer, &correct); err != nil {
				return fmt.Errorf("question %s correctAnswer: %w", w.ID, err)
			}
		}
		q.Kind = TrueFalse{Correct: correct}
	case TypeTextInput:
		q.Kind = TextInput{SampleAnswer: w.SampleAnswer}
	default:
		return fmt.Errorf("question %s type %q: %w", w.ID, w.Type, ErrUnknownQuestionType)
	}
	return nil
}

// AnswerKind tags what a submitted answer holds.
type AnswerKind string

const (
	AnswerOption AnswerKind = "option"
	AnswerBool   AnswerKind = "bool"
	AnswerText   AnswerKind = "text"
)

// Answer is a submitted value: an option id, a boolean or free text.
type Answer struct {
	Kind   AnswerKind `json:"kind"`
	Option string     `json:"option,omitempty"`
	Bool   bool       `json:"bool,omitempty"`
	Text   string     `json:"text,omitempty"`
}

func OptionAnswer(id string) Answer { return Answer{Kind: AnswerOption, Option: id} }
func BoolAnswer(v bool) Answer { return Answer{Kind: AnswerBool, Bool: v} }
func TextAnswer(text string) Answer { return Answer{Kind: AnswerText, Text: text} }

// Quiz is a timed collection of questions.
type Quiz struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Subject          string     `json:"subject,omitempty"`
	TimeLimitSeconds int        `json:"timeLimit"`
	PassingScore     int        `json:"passingScore,omitempty"`
	Questions        []Question `json:"questions"`
}
