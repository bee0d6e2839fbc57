// Package question holds the immutable quiz content. Questions are
// validated once at load time; the rest of the server never has to
// re-interpret loosely-typed fields.
package question

import "fmt"

const (
	MinOptions = 2
	MaxOptions = 6

	DefaultAnswerSeconds = 30
	DefaultImageSeconds  = 20
)

type Question struct {
	Text          string
	Options       []string
	CorrectIndex  int
	ImageRef      string // URL path of the photo, empty when there is none
	ImageSeconds  int
	AnswerSeconds int
}

func (q Question) HasImage() bool {
	return q.ImageRef != ""
}

// CorrectOption returns the text of the correct answer.
func (q Question) CorrectOption() string {
	return q.Options[q.CorrectIndex]
}

// Validate checks the structural invariants every loaded question must
// satisfy, in particular that CorrectIndex survived option shuffling.
func (q Question) Validate() error {
	if q.Text == "" {
		return fmt.Errorf("question has no text")
	}
	if len(q.Options) < MinOptions || len(q.Options) > MaxOptions {
		return fmt.Errorf("question %q has %d options, want %d..%d",
			q.Text, len(q.Options), MinOptions, MaxOptions)
	}
	if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
		return fmt.Errorf("question %q has correct index %d out of range",
			q.Text, q.CorrectIndex)
	}
	if q.AnswerSeconds <= 0 || q.ImageSeconds <= 0 {
		return fmt.Errorf("question %q has non-positive durations", q.Text)
	}
	return nil
}
