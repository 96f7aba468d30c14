package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hanyue-dev/ai-essay-grader/internal/domain"
)

// seedQuestion is the YAML shape of one seeded question and its rubric.
type seedQuestion struct {
	ID              string      `yaml:"id"`
	Prompt          string      `yaml:"prompt"`
	MaxScore        float64     `yaml:"max_score"`
	WordLimit       int         `yaml:"word_limit"`
	Type            string      `yaml:"type"`
	ExamLevel       string      `yaml:"exam_level"`
	ReferenceAnswer string      `yaml:"reference_answer"`
	Points          []seedPoint `yaml:"points"`
}

type seedPoint struct {
	Order             int      `yaml:"order"`
	Content           string   `yaml:"content"`
	MaxScore          float64  `yaml:"max_score"`
	Keywords          []string `yaml:"keywords"`
	Synonyms          []string `yaml:"synonyms"`
	MustContain       []string `yaml:"must_contain"`
	SemanticThreshold float64  `yaml:"semantic_threshold"`
}

type seedFile struct {
	Questions []seedQuestion `yaml:"questions"`
}

// seedFromFile upserts the question bank from a YAML file. Idempotent:
// reseeding the same file updates rows in place.
func seedFromFile(ctx context.Context, path string, questions domain.QuestionRepository, rubrics domain.RubricRepository) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	var sf seedFile
	if err := yaml.Unmarshal(b, &sf); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}
	for _, sq := range sf.Questions {
		if sq.ID == "" || sq.Prompt == "" {
			return fmt.Errorf("%w: seed question needs id and prompt", domain.ErrInvalidArgument)
		}
		qID, err := questions.Create(ctx, domain.Question{
			ID:        sq.ID,
			Prompt:    sq.Prompt,
			MaxScore:  sq.MaxScore,
			WordLimit: sq.WordLimit,
			Type:      sq.Type,
			ExamLevel: sq.ExamLevel,
		})
		if err != nil {
			return fmt.Errorf("seed question %s: %w", sq.ID, err)
		}
		points := make([]domain.ScoringPoint, 0, len(sq.Points))
		for i, sp := range sq.Points {
			order := sp.Order
			if order == 0 {
				order = i + 1
			}
			points = append(points, domain.ScoringPoint{
				Order:             order,
				Content:           sp.Content,
				MaxScore:          sp.MaxScore,
				Keywords:          sp.Keywords,
				Synonyms:          sp.Synonyms,
				MustContain:       sp.MustContain,
				SemanticThreshold: sp.SemanticThreshold,
			})
		}
		if _, err := rubrics.Create(ctx, domain.Rubric{
			QuestionID:      qID,
			ReferenceAnswer: sq.ReferenceAnswer,
			Points:          points,
			Source:          "seed",
		}); err != nil {
			return fmt.Errorf("seed rubric for %s: %w", sq.ID, err)
		}
	}
	slog.Info("question bank seeded", slog.Int("questions", len(sf.Questions)), slog.String("file", path))
	return nil
}
