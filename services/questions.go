package services

import (
	"context"
	"fmt"
	"math/rand"

	"triviarena/models"

	"gorm.io/gorm"
)

// Question is the immutable in-memory form a room plays with. The question
// set is fixed at game start and never mutated afterwards.
type Question struct {
	ID         uint      `json:"id"`
	Text       string    `json:"text"`
	Options    [4]string `json:"options"`
	Correct    int       `json:"-"`
	Difficulty string    `json:"difficulty"`
}

// QuestionSource supplies an ordered question set for (topic, difficulty,
// count). A failure must prevent game start; the runtime never starts a game
// with an empty set.
type QuestionSource interface {
	Fetch(ctx context.Context, topic, difficulty string, count int) ([]Question, error)
}

// CatalogQuestionSource reads from the stored catalog and tops the set up
// with generated arithmetic questions when the catalog runs short.
type CatalogQuestionSource struct {
	db *gorm.DB
}

func NewCatalogQuestionSource(db *gorm.DB) *CatalogQuestionSource {
	return &CatalogQuestionSource{db: db}
}

func (s *CatalogQuestionSource) Fetch(ctx context.Context, topic, difficulty string, count int) ([]Question, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: requested %d questions", ErrQuestionSource, count)
	}

	var rows []models.CatalogQuestion
	err := s.db.WithContext(ctx).
		Where("topic = ? AND difficulty = ?", topic, difficulty).
		Preload("Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("catalog_options.order ASC")
		}).
		Order("RANDOM()").
		Limit(count).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuestionSource, err)
	}

	questions := make([]Question, 0, count)
	for _, row := range rows {
		q, ok := toRuntimeQuestion(row)
		if !ok {
			continue // malformed catalog row, skip rather than fail the set
		}
		questions = append(questions, q)
	}

	// Generative fallback keeps short catalogs playable.
	for len(questions) < count {
		questions = append(questions, generateArithmeticQuestion(difficulty))
	}

	return questions, nil
}

func toRuntimeQuestion(row models.CatalogQuestion) (Question, bool) {
	if len(row.Options) != 4 {
		return Question{}, false
	}
	q := Question{
		ID:         row.ID,
		Text:       row.Text,
		Correct:    -1,
		Difficulty: row.Difficulty,
	}
	for i, opt := range row.Options {
		q.Options[i] = opt.Text
		if opt.IsCorrect {
			q.Correct = i
		}
	}
	if q.Correct < 0 {
		return Question{}, false
	}
	return q, true
}

// generateArithmeticQuestion builds a simple sum question with three wrong
// neighbouring options. Difficulty widens the operand range.
func generateArithmeticQuestion(difficulty string) Question {
	limit := 20
	switch difficulty {
	case "medium":
		limit = 100
	case "hard":
		limit = 500
	}
	a := rand.Intn(limit) + 1
	b := rand.Intn(limit) + 1
	answer := a + b

	correct := rand.Intn(4)
	q := Question{
		Text:       fmt.Sprintf("What is %d + %d?", a, b),
		Correct:    correct,
		Difficulty: difficulty,
	}
	offset := 1
	for i := range q.Options {
		if i == correct {
			q.Options[i] = fmt.Sprintf("%d", answer)
			continue
		}
		q.Options[i] = fmt.Sprintf("%d", answer+offset)
		offset = -offset
		if offset > 0 {
			offset++
		}
	}
	return q
}
