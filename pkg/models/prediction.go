package models

import "time"

// PredictionRecord is one entry of a user's prediction history.
type PredictionRecord struct {
	ID         int       `json:"id,omitempty"`
	UserID     int       `json:"user_id"`
	DataType   string    `json:"data_type"`
	InputData  []float64 `json:"input_data"`
	Prediction float64   `json:"prediction"`
	CreatedAt  time.Time `json:"created_at"`
}

func NewPredictionRecord(userID int, dataType string, input []float64, prediction float64) *PredictionRecord {
	return &PredictionRecord{
		UserID:     userID,
		DataType:   dataType,
		InputData:  append([]float64(nil), input...),
		Prediction: prediction,
		CreatedAt:  time.Now().UTC(),
	}
}
