package domain

import "fmt"

// Question returns the question with the given id.
func (q Quiz) Question(id string) (Question, bool) {
	for _, question := range q.Questions {
		if question.ID == id {
			return question, true
		}
	}
	return Question{}, false
}

// Answer returns the answer with the given id.
func (q Question) Answer(id string) (Answer, bool) {
	for _, answer := range q.Answers {
		if answer.ID == id {
			return answer, true
		}
	}
	return Answer{}, false
}

// EffectivePoints applies the default of one point per question.
func (q Question) EffectivePoints() int {
	if q.Points <= 0 {
		return 1
	}
	return q.Points
}

// Validate checks that every question has exactly one correct answer.
func (q Quiz) Validate() error {
	for _, question := range q.Questions {
		correct := 0
		for _, answer := range question.Answers {
			if answer.IsCorrect {
				correct++
			}
		}
		if correct != 1 {
			return fmt.Errorf("%w: question %s has %d correct answers", ErrInvalidQuiz, question.ID, correct)
		}
	}
	return nil
}
