package worker

import (
	"encoding/json"
	"strings"

	"github.com/draiimon/PanicSense-Final-sub000/app/models"
)

// PayloadSource records where a job's final results came from.
type PayloadSource string

const (
	// SourceWorker is a clean exit with a parseable final payload.
	SourceWorker PayloadSource = "worker"
	// SourceSalvaged is a payload recovered from the output of a failed run.
	SourceSalvaged PayloadSource = "salvaged"
	// SourceBatches is built from the results streamed in BATCH_COMPLETE markers.
	SourceBatches PayloadSource = "batches"
	// SourceFabricated is an empty result set so the session can still finish.
	SourceFabricated PayloadSource = "fabricated"
)

// Degraded reports whether the outcome needs to be flagged to the user.
func (s PayloadSource) Degraded() bool {
	return s != SourceWorker
}

// resolvePayload applies the recovery order: clean payload, salvaged JSON
// from stdout, accumulated batch results, then an empty fabricated result.
// Anything that was not reported by the worker itself carries estimated metrics.
func resolvePayload(stdout string, exitErr error, streamed []models.ProcessResult) (models.WorkerPayload, PayloadSource) {
	trimmed := strings.TrimSpace(stdout)

	if exitErr == nil {
		var p models.WorkerPayload
		if err := json.Unmarshal([]byte(trimmed), &p); err == nil && p.Error == "" && p.Results != nil {
			return p, SourceWorker
		}
	}

	if p, ok := salvageJSON(trimmed); ok {
		p.Metrics = estimated(p.Metrics)
		p.Error = ""
		return p, SourceSalvaged
	}

	if len(streamed) > 0 {
		results := make([]models.ProcessResult, len(streamed))
		copy(results, streamed)
		return models.WorkerPayload{Results: results, Metrics: estimated(nil)}, SourceBatches
	}

	return models.WorkerPayload{Results: []models.ProcessResult{}, Metrics: estimated(nil)}, SourceFabricated
}

// salvageJSON looks for the last JSON object in the output that still carries results.
func salvageJSON(out string) (models.WorkerPayload, bool) {
	if out == "" {
		return models.WorkerPayload{}, false
	}
	var whole models.WorkerPayload
	if err := json.Unmarshal([]byte(out), &whole); err == nil && len(whole.Results) > 0 {
		return whole, true
	}

	lines := strings.Split(out, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var p models.WorkerPayload
		if err := json.Unmarshal([]byte(line), &p); err == nil && len(p.Results) > 0 {
			return p, true
		}
	}
	return models.WorkerPayload{}, false
}

func estimated(m *models.Metrics) *models.Metrics {
	if m == nil {
		return &models.Metrics{Estimated: true}
	}
	cp := *m
	cp.Estimated = true
	return &cp
}
