package worker

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/draiimon/PanicSense-Final-sub000/app/models"
)

// Marker framing used by the analysis worker. A marker may appear anywhere in
// a line; everything between the prefix and the suffix is a JSON document.
const (
	progressPrefix = "PROGRESS:"
	progressSuffix = "::END_PROGRESS"
	batchPrefix    = "BATCH_COMPLETE:"
	batchSuffix    = "::END_BATCH"
)

var ErrMalformedMarker = errors.New("malformed worker marker")

type EventKind int

const (
	EventNone EventKind = iota
	EventProgress
	EventBatch
)

// Event is one decoded worker line. Lines without a marker decode to EventNone.
type Event struct {
	Kind     EventKind
	Progress *models.WorkerProgress
	Batch    *models.BatchEvent
}

// DecodeLine extracts at most one marker from line. An opened marker that is
// never closed, or whose body is not valid JSON, is reported as
// ErrMalformedMarker so the caller can skip just that line.
func DecodeLine(line string) (Event, error) {
	pi := strings.Index(line, progressPrefix)
	bi := strings.Index(line, batchPrefix)

	switch {
	case bi >= 0 && (pi < 0 || bi < pi):
		body, err := markerBody(line[bi+len(batchPrefix):], batchSuffix)
		if err != nil {
			return Event{}, err
		}
		var b models.BatchEvent
		if err := json.Unmarshal([]byte(body), &b); err != nil {
			return Event{}, fmt.Errorf("%w: batch: %v", ErrMalformedMarker, err)
		}
		return Event{Kind: EventBatch, Batch: &b}, nil

	case pi >= 0:
		body, err := markerBody(line[pi+len(progressPrefix):], progressSuffix)
		if err != nil {
			return Event{}, err
		}
		var p models.WorkerProgress
		if err := json.Unmarshal([]byte(body), &p); err != nil {
			return Event{}, fmt.Errorf("%w: progress: %v", ErrMalformedMarker, err)
		}
		return Event{Kind: EventProgress, Progress: &p}, nil
	}
	return Event{Kind: EventNone}, nil
}

// markerBody uses the last suffix on the line so row text that happens to
// contain the suffix does not cut the JSON short.
func markerBody(rest, suffix string) (string, error) {
	end := strings.LastIndex(rest, suffix)
	if end < 0 {
		return "", fmt.Errorf("%w: missing %s", ErrMalformedMarker, suffix)
	}
	return strings.TrimSpace(rest[:end]), nil
}
