package queries

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/OldStager01/droplet-predictor/pkg/models"
)

type PredictionRepository struct {
	db *sql.DB
}

func NewPredictionRepository(db *sql.DB) *PredictionRepository {
	return &PredictionRepository{db: db}
}

// Insert stores rec and fills in its id and creation time.
func (r *PredictionRepository) Insert(ctx context.Context, rec *models.PredictionRecord) error {
	input, err := json.Marshal(rec.InputData)
	if err != nil {
		return fmt.Errorf("failed to encode input data: %w", err)
	}

	query := `
		INSERT INTO prediction_history (user_id, data_type, input_data, prediction, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err = r.db.QueryRowContext(ctx, query,
		rec.UserID, rec.DataType, input, rec.Prediction, rec.CreatedAt,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert prediction: %w", err)
	}
	return nil
}

// ListByUser returns the user's most recent predictions, newest first.
func (r *PredictionRepository) ListByUser(ctx context.Context, userID, limit int) ([]*models.PredictionRecord, error) {
	query := `
		SELECT id, user_id, data_type, input_data, prediction, created_at
		FROM prediction_history
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer rows.Close()

	var records []*models.PredictionRecord
	for rows.Next() {
		var (
			rec   models.PredictionRecord
			input []byte
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.DataType, &input, &rec.Prediction, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		if err := json.Unmarshal(input, &rec.InputData); err != nil {
			return nil, fmt.Errorf("failed to decode input data of prediction %d: %w", rec.ID, err)
		}
		records = append(records, &rec)
	}

	return records, rows.Err()
}

// CountByUser is used to report totals next to a paged history listing.
func (r *PredictionRepository) CountByUser(ctx context.Context, userID int) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM prediction_history WHERE user_id = $1`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count predictions: %w", err)
	}
	return n, nil
}
