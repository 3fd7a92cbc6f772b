package domain

import (
	"encoding/json"
	"testing"
)

func TestRunSummaryJSON(t *testing.T) {
	run := Run{ID: "r1", Status: RunStatusCompleted, Summary: RunSummary(`{"assets":2}`)}
	raw, err := json.Marshal(run)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Run
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if string(back.Summary) != `{"assets":2}` {
		t.Fatalf("summary not preserved: %s", back.Summary)
	}

	empty, _ := json.Marshal(Run{ID: "r2"})
	var doc map[string]any
	_ = json.Unmarshal(empty, &doc)
	if v, ok := doc["summary"]; ok && v != nil {
		t.Fatalf("empty summary must render as null, got %v", v)
	}
}

func TestRunSummaryScanCopiesBytes(t *testing.T) {
	src := []byte(`{"a":1}`)
	var s RunSummary
	if err := s.Scan(src); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	src[2] = 'X'
	if string(s) != `{"a":1}` {
		t.Fatalf("summary must not alias driver bytes: %s", s)
	}
	if err := s.Scan(42); err == nil {
		t.Fatal("expected error for unsupported type")
	}
	if v, _ := RunSummary(nil).Value(); v != nil {
		t.Fatalf("empty summary must be stored as NULL, got %v", v)
	}
}

func TestRunStatusFinished(t *testing.T) {
	if RunStatusPending.Finished() || RunStatusRunning.Finished() {
		t.Fatal("pending and running are not finished")
	}
	for _, s := range []RunStatus{RunStatusCompleted, RunStatusFailed, RunStatusNoImages, RunStatusNoSupportedImages} {
		if !s.Finished() {
			t.Fatalf("%s must be finished", s)
		}
	}
}

func TestMergeOptions(t *testing.T) {
	merged := MergeOptions(DefaultProcessingOptions(), ProcessingOptions{"dsm": false, "fast-orthophoto": true})
	if merged["dsm"] != false || merged["fast-orthophoto"] != true || merged["pc-quality"] != "medium" {
		t.Fatalf("unexpected merge %v", merged)
	}
	keys := merged.SortedKeys()
	for i := 1; i < len(keys); i++ {
		if keys[i-1] > keys[i] {
			t.Fatalf("keys not sorted: %v", keys)
		}
	}
}
