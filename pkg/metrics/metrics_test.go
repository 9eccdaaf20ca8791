package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"taskforge/pkg/agent/llm"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.ObserveRun("completed")
	r.ObserveRun("completed")
	r.ObserveRun("aborted")
	r.ObserveStep("APPROVED")
	r.IncFixAttempt()
	r.IncJSONRepair("planner")
	r.ObserveExecution(2 * time.Second)

	if got := testutil.ToFloat64(r.runsTotal.WithLabelValues("completed")); got != 2 {
		t.Errorf("completed runs = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.runsTotal.WithLabelValues("aborted")); got != 1 {
		t.Errorf("aborted runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.stepsTotal.WithLabelValues("APPROVED")); got != 1 {
		t.Errorf("steps = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.fixAttemptsTotal); got != 1 {
		t.Errorf("fix attempts = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.jsonRepairsTotal.WithLabelValues("planner")); got != 1 {
		t.Errorf("json repairs = %v, want 1", got)
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	r.ObserveRun("completed")
	r.ObserveStep("APPROVED")
	r.IncFixAttempt()
	r.IncJSONRepair("planner")
	r.ObserveExecution(time.Second)
	r.ObserveLLMRequest("m", "planner", true, time.Second)
}

type staticClient struct{}

func (staticClient) Complete(context.Context, llm.CompletionRequest) (llm.CompletionResponse, error) {
	return llm.CompletionResponse{Content: "ok"}, nil
}

func (staticClient) Stream(context.Context, llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk)
	close(ch)
	return ch, nil
}

func (staticClient) GetModelName() string { return "static" }

func TestInstrumentedClientRecordsRequests(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	client := Instrument(staticClient{}, r, "executor")
	if _, err := client.Complete(context.Background(), llm.CompletionRequest{}); err != nil {
		t.Fatal(err)
	}

	if got := testutil.ToFloat64(r.llmRequestsTotal.WithLabelValues("static", "executor", "success")); got != 1 {
		t.Errorf("llm requests = %v, want 1", got)
	}
}
