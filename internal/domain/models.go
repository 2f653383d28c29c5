package domain

import (
	"fmt"
	"time"
)

// Option labels a question may be answered with.
const (
	LabelA = "A"
	LabelB = "B"
	LabelC = "C"
)

// Account is a pre-seeded quiz taker. Score is non-nil iff Attempted is true.
type Account struct {
	ID           int64
	Username     string
	PasswordHash string
	Attempted    bool
	Score        *int
}

// Question models an MCQ entry with three options and exactly one correct label.
type Question struct {
	ID            int64  `json:"id" yaml:"id"`
	Text          string `json:"text" yaml:"text"`
	OptionA       string `json:"optionA" yaml:"option_a"`
	OptionB       string `json:"optionB" yaml:"option_b"`
	OptionC       string `json:"optionC" yaml:"option_c"`
	CorrectAnswer string `json:"correctAnswer,omitempty" yaml:"correct_answer"`
}

// Option is a labelled answer choice as shown to a quiz taker.
type Option struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// Options returns the three choices in label order.
func (q Question) Options() []Option {
	return []Option{
		{Label: LabelA, Text: q.OptionA},
		{Label: LabelB, Text: q.OptionB},
		{Label: LabelC, Text: q.OptionC},
	}
}

// Validate checks that the question can be graded.
func (q Question) Validate() error {
	if q.Text == "" {
		return fmt.Errorf("%w: question %d has no text", ErrInvalidQuestion, q.ID)
	}
	switch q.CorrectAnswer {
	case LabelA, LabelB, LabelC:
		return nil
	default:
		return fmt.Errorf("%w: question %d has correct answer %q", ErrInvalidQuestion, q.ID, q.CorrectAnswer)
	}
}

// Public strips the answer key so the question can be sent to a quiz taker.
func (q Question) Public() Question {
	q.CorrectAnswer = ""
	return q
}

// Catalog is the fixed, id-ordered questionnaire every attempt is graded against.
type Catalog struct {
	Questions []Question `json:"questions"`
}

// Len reports the number of scoring questions.
func (c Catalog) Len() int {
	return len(c.Questions)
}

// AttemptResult is what a quiz taker sees after grading.
type AttemptResult struct {
	Score int `json:"score"`
	Total int `json:"total"`
}

// SelectedAnswer is one catalog question and the label chosen for it.
// Answered is false when the quiz taker left the question blank.
type SelectedAnswer struct {
	QuestionID int64  `json:"questionId"`
	Label      string `json:"label"`
	Answered   bool   `json:"answered"`
}

// SubmissionRecord is the export row for one graded attempt.
type SubmissionRecord struct {
	Timestamp time.Time        `json:"timestamp"`
	Username  string           `json:"username"`
	Answers   []SelectedAnswer `json:"answers"`
	Score     int              `json:"score"`
	Total     int              `json:"total"`
}
