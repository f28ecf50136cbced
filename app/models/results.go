package models

// ProcessResult is one analyzed row emitted by the worker.
type ProcessResult struct {
	Text         string  `json:"text"`
	Timestamp    string  `json:"timestamp"`
	Source       string  `json:"source"`
	Language     string  `json:"language"`
	Sentiment    string  `json:"sentiment"`
	Confidence   float64 `json:"confidence"`
	Explanation  string  `json:"explanation,omitempty"`
	DisasterType string  `json:"disasterType,omitempty"`
	Location     string  `json:"location,omitempty"`
}

// Metrics are the quality figures the worker reports for a file. Estimated is
// set whenever the numbers were not produced by the worker itself.
type Metrics struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1Score   float64 `json:"f1Score"`
	Estimated bool    `json:"estimated,omitempty"`
}

// WorkerProgress is the body of a PROGRESS marker.
type WorkerProgress struct {
	Processed int    `json:"processed"`
	Stage     string `json:"stage"`
	Total     *int   `json:"total,omitempty"`
}

// BatchEvent is the body of a BATCH_COMPLETE marker.
type BatchEvent struct {
	BatchNumber  int             `json:"batchNumber"`
	TotalBatches int             `json:"totalBatches"`
	Results      []ProcessResult `json:"results"`
}

// WorkerPayload is the final JSON document a batch worker prints on exit.
type WorkerPayload struct {
	Results []ProcessResult `json:"results"`
	Metrics *Metrics        `json:"metrics,omitempty"`
	Error   string          `json:"error,omitempty"`
}
