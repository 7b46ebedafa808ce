package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"golekquiz-service/internal/domain"
)

// QuizLoader reads quizzes from the quizzes/questions/answers tables.
type QuizLoader struct {
	pool *pgxpool.Pool
}

func NewQuizLoader(pool *pgxpool.Pool) *QuizLoader {
	return &QuizLoader{pool: pool}
}

func (l *QuizLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	quiz := domain.Quiz{ID: quizID}
	err := l.pool.QueryRow(ctx, `SELECT title FROM quizzes WHERE id = $1`, quizID).Scan(&quiz.Title)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}

	rows, err := l.pool.Query(ctx, `
		SELECT q.id, q.text, q.time_limit, q.points, q.order_index, COALESCE(q.image_url, ''),
		       a.id, a.text, a.is_correct, a.order_index, COALESCE(a.image_url, '')
		FROM questions q
		JOIN answers a ON a.question_id = q.id
		WHERE q.quiz_id = $1
		ORDER BY q.order_index, q.id, a.order_index, a.id`, quizID)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			question domain.Question
			answer   domain.Answer
		)
		err := rows.Scan(
			&question.ID, &question.Text, &question.TimeLimit, &question.Points, &question.OrderIndex, &question.ImageURL,
			&answer.ID, &answer.Text, &answer.IsCorrect, &answer.OrderIndex, &answer.ImageURL,
		)
		if err != nil {
			return domain.Quiz{}, fmt.Errorf("scan question: %w", err)
		}
		answer.QuestionID = question.ID
		if n := len(quiz.Questions); n == 0 || quiz.Questions[n-1].ID != question.ID {
			question.QuizID = quizID
			quiz.Questions = append(quiz.Questions, question)
		}
		last := &quiz.Questions[len(quiz.Questions)-1]
		last.Answers = append(last.Answers, answer)
	}
	if err := rows.Err(); err != nil {
		return domain.Quiz{}, fmt.Errorf("load questions: %w", err)
	}
	return quiz, nil
}

// SaveQuiz replaces a quiz and all of its questions and answers.
func (l *QuizLoader) SaveQuiz(ctx context.Context, quiz domain.Quiz) error {
	if err := quiz.Validate(); err != nil {
		return err
	}
	return l.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM quizzes WHERE id = $1`, quiz.ID); err != nil {
			return fmt.Errorf("clear quiz: %w", err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO quizzes (id, title) VALUES ($1, $2)`, quiz.ID, quiz.Title); err != nil {
			return fmt.Errorf("insert quiz: %w", err)
		}
		batch := &pgx.Batch{}
		for qi, question := range quiz.Questions {
			order := question.OrderIndex
			if order == 0 {
				order = qi
			}
			batch.Queue(`INSERT INTO questions (id, quiz_id, text, time_limit, points, order_index, image_url)
				VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))`,
				question.ID, quiz.ID, question.Text, question.TimeLimit, question.EffectivePoints(), order, question.ImageURL)
			for ai, answer := range question.Answers {
				aorder := answer.OrderIndex
				if aorder == 0 {
					aorder = ai
				}
				batch.Queue(`INSERT INTO answers (id, question_id, text, is_correct, order_index, image_url)
					VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))`,
					answer.ID, question.ID, answer.Text, answer.IsCorrect, aorder, answer.ImageURL)
			}
		}
		results := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return fmt.Errorf("insert quiz content: %w", err)
			}
		}
		return results.Close()
	})
}
