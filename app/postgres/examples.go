package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/draiimon/PanicSense-Final-sub000/app/models"
	"github.com/draiimon/PanicSense-Final-sub000/app/worker"
)

// minSubstringLen mirrors the in-memory cache: short keys only match exactly.
const minSubstringLen = 12

type ExampleStore struct {
	db *sql.DB
}

func NewExampleStore(db *sql.DB) *ExampleStore {
	return &ExampleStore{db: db}
}

var _ worker.ExampleStore = (*ExampleStore)(nil)

func textKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// FindExample prefers an exact match, then the newest substring match.
func (s *ExampleStore) FindExample(ctx context.Context, text string) (*models.TrainingExample, error) {
	key := textKey(text)
	if key == "" {
		return nil, nil
	}
	var ex models.TrainingExample
	err := s.db.QueryRowContext(ctx, `
		SELECT text, sentiment, language, disaster_type, location, confidence, created_at
		FROM training_examples
		WHERE text_key = $1
		   OR (
				char_length($1) >= $2
			AND char_length(text_key) >= $2
			AND (strpos($1, text_key) > 0 OR strpos(text_key, $1) > 0)
		   )
		ORDER BY (text_key = $1) DESC, created_at DESC
		LIMIT 1;
	`, key, minSubstringLen).Scan(
		&ex.Text,
		&ex.Sentiment,
		&ex.Language,
		&ex.DisasterType,
		&ex.Location,
		&ex.Confidence,
		&ex.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ex, nil
}

func (s *ExampleStore) SaveExample(ctx context.Context, ex models.TrainingExample) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO training_examples (
			text, text_key, sentiment, language, disaster_type, location, confidence, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (text_key) DO UPDATE
		SET sentiment = EXCLUDED.sentiment,
		    language = EXCLUDED.language,
		    disaster_type = EXCLUDED.disaster_type,
		    location = EXCLUDED.location,
		    confidence = EXCLUDED.confidence,
		    created_at = EXCLUDED.created_at;
	`, ex.Text, textKey(ex.Text), ex.Sentiment, ex.Language, ex.DisasterType, ex.Location, ex.Confidence, ex.CreatedAt)
	return err
}
