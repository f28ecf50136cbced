package postgres

import (
	"context"
	"database/sql"

	"github.com/draiimon/PanicSense-Final-sub000/app/batches"
	"github.com/draiimon/PanicSense-Final-sub000/app/models"
	"github.com/lib/pq"
)

type ResultWriter struct {
	db *sql.DB
}

func NewResultWriter(db *sql.DB) *ResultWriter {
	return &ResultWriter{db: db}
}

var _ batches.ResultWriter = (*ResultWriter)(nil)

// WriteBatch copies the rows into a staging table and inserts them with
// ON CONFLICT DO NOTHING, so a repeated batch is a no-op.
func (w *ResultWriter) WriteBatch(ctx context.Context, sessionID string, batchNumber int, rows []models.ProcessResult) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := w.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// 1) Temp staging table
	_, err = tx.ExecContext(ctx, `
		CREATE TEMP TABLE tmp_batch_results (
			session_id    TEXT,
			batch_number  INT,
			row_index     INT,
			text          TEXT,
			timestamp     TEXT,
			source        TEXT,
			language      TEXT,
			sentiment     TEXT,
			confidence    DOUBLE PRECISION,
			explanation   TEXT,
			disaster_type TEXT,
			location      TEXT
		) ON COMMIT DROP;
	`)
	if err != nil {
		return err
	}

	// 2) COPY into tmp_batch_results
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(
		"tmp_batch_results",
		"session_id", "batch_number", "row_index",
		"text", "timestamp", "source", "language",
		"sentiment", "confidence", "explanation", "disaster_type", "location",
	))
	if err != nil {
		return err
	}
	for i, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			sessionID, batchNumber, i,
			r.Text, r.Timestamp, r.Source, r.Language,
			r.Sentiment, r.Confidence, r.Explanation, r.DisasterType, r.Location,
		); err != nil {
			stmt.Close()
			return err
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return err
	}
	if err := stmt.Close(); err != nil {
		return err
	}

	// 3) Insert into the real table, skipping rows already stored
	_, err = tx.ExecContext(ctx, `
		INSERT INTO batch_results (
			session_id, batch_number, row_index,
			text, timestamp, source, language,
			sentiment, confidence, explanation, disaster_type, location
		)
		SELECT
			session_id, batch_number, row_index,
			text, timestamp, source, language,
			sentiment, confidence, explanation, disaster_type, location
		FROM tmp_batch_results
		ON CONFLICT (session_id, batch_number, row_index) DO NOTHING;
	`)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// LoadResults reads the stored rows of a session in batch then row order.
func (w *ResultWriter) LoadResults(ctx context.Context, sessionID string) ([]models.ProcessResult, error) {
	rows, err := w.db.QueryContext(ctx, `
		SELECT
			text,
			COALESCE(timestamp, ''),
			COALESCE(source, ''),
			COALESCE(language, ''),
			COALESCE(sentiment, ''),
			COALESCE(confidence, 0),
			COALESCE(explanation, ''),
			COALESCE(disaster_type, ''),
			COALESCE(location, '')
		FROM batch_results
		WHERE session_id = $1
		ORDER BY batch_number, row_index;
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ProcessResult
	for rows.Next() {
		var r models.ProcessResult
		if err := rows.Scan(
			&r.Text,
			&r.Timestamp,
			&r.Source,
			&r.Language,
			&r.Sentiment,
			&r.Confidence,
			&r.Explanation,
			&r.DisasterType,
			&r.Location,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
