package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/draiimon/PanicSense-Final-sub000/app/apperrors"
	"github.com/draiimon/PanicSense-Final-sub000/app/models"
)

const (
	confidenceJitter   = 0.03
	defaultCeiling     = 0.97
	exampleConfidence  = 0.92
	fallbackConfidence = 0.5
)

// AnalyzeOne classifies a single text. A stored correction wins over the
// worker, and a worker failure degrades to a neutral fallback result.
func (m *Manager) AnalyzeOne(ctx context.Context, text string) (models.Analysis, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Analysis{}, fmt.Errorf("%w: empty text", apperrors.ErrMalformedInput)
	}

	if ex := m.lookupExample(ctx, text); ex != nil {
		m.logger.Debug("analysis served from training example", "text_len", len(text))
		return m.fromExample(*ex), nil
	}

	run, err := m.runOnce(ctx, "--text", text)
	if err != nil {
		return models.Analysis{}, err
	}
	analysis, ok := parseAnalysis(run.stdout)
	if !ok {
		m.logger.Warn("worker returned no analysis, using fallback", "exit_error", run.exitErr)
		analysis = fallbackAnalysis()
	} else {
		analysis.Confidence = m.jitter(analysis.Confidence)
	}

	m.quota.IncrementRowCount(1)
	return analysis, nil
}

func (m *Manager) lookupExample(ctx context.Context, text string) *models.TrainingExample {
	if ex, ok := m.cache.Get(ctx, text); ok {
		return ex
	}
	if m.examples == nil {
		return nil
	}
	ex, err := m.examples.FindExample(ctx, text)
	if err != nil {
		m.logger.Warn("training example lookup failed", "error", err)
		return nil
	}
	if ex != nil {
		m.cache.Put(ctx, *ex)
	}
	return ex
}

func (m *Manager) fromExample(ex models.TrainingExample) models.Analysis {
	base := ex.Confidence
	if base <= 0 {
		base = exampleConfidence
	}
	a := models.Analysis{
		Sentiment:    ex.Sentiment,
		Confidence:   m.jitter(base),
		Explanation:  "Matched a previously corrected example.",
		Language:     ex.Language,
		DisasterType: ex.DisasterType,
		Location:     ex.Location,
		Override:     true,
	}
	if a.Language == "" {
		a.Language = "English"
	}
	if a.DisasterType == "" {
		a.DisasterType = "Not Specified"
	}
	return a
}

// jitter perturbs a confidence by a small random amount and keeps it below
// the configured ceiling.
func (m *Manager) jitter(c float64) float64 {
	ceiling := m.cfg.ConfidenceCeiling
	if ceiling <= 0 {
		ceiling = defaultCeiling
	}
	c += (m.rand()*2 - 1) * confidenceJitter
	c = math.Min(c, ceiling)
	c = math.Max(c, 0)
	return math.Round(c*100) / 100
}

func fallbackAnalysis() models.Analysis {
	return models.Analysis{
		Sentiment:    "Neutral",
		Confidence:   fallbackConfidence,
		Explanation:  "Analysis unavailable, returned a neutral result.",
		Language:     "Unknown",
		DisasterType: "Not Specified",
		Fallback:     true,
	}
}

func parseAnalysis(out []byte) (models.Analysis, bool) {
	var resp struct {
		models.Analysis
		Error string `json:"error"`
	}
	if !lastJSONLine(out, &resp) || resp.Error != "" || resp.Sentiment == "" {
		return models.Analysis{}, false
	}
	return resp.Analysis, true
}

// SubmitFeedback sends a correction to the worker and, when it is accepted,
// stores it so later analyses of the same text use it.
func (m *Manager) SubmitFeedback(ctx context.Context, fb models.Feedback) (models.FeedbackResult, error) {
	if !fb.HasCorrection() {
		return models.FeedbackResult{}, fmt.Errorf("%w: no correction provided", apperrors.ErrMalformedInput)
	}

	arg, err := json.Marshal(struct {
		IsFeedback bool `json:"feedback"`
		models.Feedback
	}{IsFeedback: true, Feedback: fb})
	if err != nil {
		return models.FeedbackResult{}, err
	}

	run, err := m.runOnce(ctx, "--text", string(arg))
	if err != nil {
		return models.FeedbackResult{}, err
	}

	var result models.FeedbackResult
	if !lastJSONLine(run.stdout, &result) || result.Status == "" {
		m.logger.Warn("worker returned no feedback result", "exit_error", run.exitErr)
		return models.FeedbackResult{Status: "error", Message: "Feedback could not be processed."}, nil
	}
	if result.Status == "success" {
		m.rememberExample(ctx, fb)
	}
	return result, nil
}

func (m *Manager) rememberExample(ctx context.Context, fb models.Feedback) {
	ex := models.TrainingExample{
		Text:         fb.OriginalText,
		Sentiment:    fb.OriginalSentiment,
		DisasterType: fb.CorrectedDisasterType,
		Location:     fb.CorrectedLocation,
		CreatedAt:    time.Now().UTC(),
	}
	if fb.CorrectedSentiment != "" {
		ex.Sentiment = fb.CorrectedSentiment
	}
	m.cache.Put(ctx, ex)
	if m.examples == nil {
		return
	}
	if err := m.examples.SaveExample(ctx, ex); err != nil {
		m.logger.Warn("failed to save training example", "error", err)
	}
}

type runResult struct {
	stdout  []byte
	exitErr error
}

// runOnce runs a short-lived worker invocation and collects its stdout. An
// error return means the worker never started.
func (m *Manager) runOnce(ctx context.Context, args ...string) (runResult, error) {
	runCtx, cancel := m.jobContext(ctx)
	defer cancel()

	cmd := m.command(runCtx, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return runResult{}, fmt.Errorf("%w: %v", apperrors.ErrWorkerSpawnFailed, err)
	}
	waitErr := cmd.Wait()
	if waitErr != nil {
		m.logger.Warn("worker exited with error", "error", waitErr, "stderr", tail(stderr.String(), 512))
	}
	return runResult{stdout: stdout.Bytes(), exitErr: waitErr}, nil
}

func lastJSONLine(out []byte, v any) bool {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") {
			continue
		}
		if err := json.Unmarshal([]byte(line), v); err == nil {
			return true
		}
	}
	return false
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
