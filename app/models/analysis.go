package models

import "time"

// Analysis is the result of classifying a single piece of text.
type Analysis struct {
	Sentiment    string  `json:"sentiment"`
	Confidence   float64 `json:"confidence"`
	Explanation  string  `json:"explanation"`
	Language     string  `json:"language"`
	DisasterType string  `json:"disasterType"`
	Location     string  `json:"location"`

	// Fallback marks a neutral result produced because the worker failed.
	Fallback bool `json:"fallback,omitempty"`
	// Override marks a result synthesized from a stored training example.
	Override bool `json:"override,omitempty"`
}

// Feedback is a user correction of an earlier classification.
type Feedback struct {
	OriginalText          string `json:"originalText"`
	OriginalSentiment     string `json:"originalSentiment"`
	CorrectedSentiment    string `json:"correctedSentiment,omitempty"`
	CorrectedLocation     string `json:"correctedLocation,omitempty"`
	CorrectedDisasterType string `json:"correctedDisasterType,omitempty"`
}

// HasCorrection reports whether the feedback carries anything to learn from.
func (f Feedback) HasCorrection() bool {
	if f.OriginalText == "" || f.OriginalSentiment == "" {
		return false
	}
	return f.CorrectedSentiment != "" || f.CorrectedLocation != "" || f.CorrectedDisasterType != ""
}

// FeedbackResult is the worker's reply in feedback mode.
type FeedbackResult struct {
	Status      string         `json:"status"`
	Message     string         `json:"message"`
	Performance map[string]any `json:"performance,omitempty"`
}

// TrainingExample is a stored correction that overrides worker output for
// matching text.
type TrainingExample struct {
	Text         string    `json:"text"`
	Sentiment    string    `json:"sentiment"`
	Language     string    `json:"language"`
	DisasterType string    `json:"disasterType,omitempty"`
	Location     string    `json:"location,omitempty"`
	Confidence   float64   `json:"confidence"`
	CreatedAt    time.Time `json:"createdAt"`
}
