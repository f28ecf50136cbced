package worker

import (
	"errors"
	"testing"
)

func TestDecodeLineProgress(t *testing.T) {
	ev, err := DecodeLine(`PROGRESS:{"processed":10,"stage":"Analyzing","total":40}::END_PROGRESS`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Kind != EventProgress || ev.Progress.Processed != 10 || ev.Progress.Stage != "Analyzing" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.Progress.Total == nil || *ev.Progress.Total != 40 {
		t.Fatalf("total not decoded: %+v", ev.Progress)
	}
}

func TestDecodeLineBatchWithPrefixNoise(t *testing.T) {
	line := `INFO worker: BATCH_COMPLETE:{"batchNumber":2,"totalBatches":3,"results":[{"text":"flood ::END_BATCH near river","sentiment":"Fear/Anxiety"}]}::END_BATCH`
	ev, err := DecodeLine(line)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Kind != EventBatch || ev.Batch.BatchNumber != 2 || len(ev.Batch.Results) != 1 {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.Batch.Results[0].Text != "flood ::END_BATCH near river" {
		t.Fatalf("row text was cut: %q", ev.Batch.Results[0].Text)
	}
}

func TestDecodeLineMalformed(t *testing.T) {
	for _, line := range []string{
		`PROGRESS:{"processed":1`,
		`PROGRESS:{not json}::END_PROGRESS`,
		`BATCH_COMPLETE:[]::END_BATCH`,
	} {
		if _, err := DecodeLine(line); !errors.Is(err, ErrMalformedMarker) {
			t.Fatalf("DecodeLine(%q) err = %v, want ErrMalformedMarker", line, err)
		}
	}
}

func TestDecodeLinePlainOutput(t *testing.T) {
	ev, err := DecodeLine(`{"results":[]}`)
	if err != nil || ev.Kind != EventNone {
		t.Fatalf("plain line should decode to EventNone, got %+v %v", ev, err)
	}
}
