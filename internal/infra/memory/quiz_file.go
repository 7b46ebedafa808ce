package memory

import (
	"encoding/json"
	"fmt"
	"os"

	"golekquiz-service/internal/domain"
)

// ReadQuizFile decodes one quiz from a JSON file and validates it.
func ReadQuizFile(path string) (domain.Quiz, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Quiz{}, err
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(data, &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("decode %s: %w", path, err)
	}
	if quiz.ID == "" {
		return domain.Quiz{}, fmt.Errorf("%s: %w: missing id", path, domain.ErrInvalidQuiz)
	}
	for i := range quiz.Questions {
		if quiz.Questions[i].QuizID == "" {
			quiz.Questions[i].QuizID = quiz.ID
		}
		for j := range quiz.Questions[i].Answers {
			if quiz.Questions[i].Answers[j].QuestionID == "" {
				quiz.Questions[i].Answers[j].QuestionID = quiz.Questions[i].ID
			}
		}
	}
	if err := quiz.Validate(); err != nil {
		return domain.Quiz{}, err
	}
	return quiz, nil
}
