package api

import (
	"encoding/json"
	"testing"
	"time"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  *ErrorInfo
		want ExecutionStatus
	}{
		{"no error", nil, StatusSuccess},
		{"timeout", &ErrorInfo{Kind: ErrorKindTimeout}, StatusTimeout},
		{"runtime", &ErrorInfo{Kind: ErrorKindRuntime}, StatusError},
		{"transport", &ErrorInfo{Kind: ErrorKindTransport}, StatusError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusFor(tt.err); got != tt.want {
				t.Errorf("StatusFor() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewErrorObservation(t *testing.T) {
	obs := NewErrorObservation("s1", ErrorKindParseFailure, "could not parse")
	if !obs.Failed() {
		t.Fatal("expected Failed() to be true")
	}
	if obs.Status != StatusError {
		t.Errorf("Status = %q, want %q", obs.Status, StatusError)
	}
	if obs.Artifacts == nil {
		t.Error("Artifacts should be an empty slice, not nil")
	}

	var nilObs *Observation
	if nilObs.Failed() {
		t.Error("nil observation should not report failure")
	}
}

func TestExecuteRequestTimeout(t *testing.T) {
	tests := []struct {
		seconds float64
		want    time.Duration
	}{
		{0, 0},
		{-3, 0},
		{1, time.Second},
		{0.25, 250 * time.Millisecond},
	}
	for _, tt := range tests {
		got := ExecuteRequest{TimeoutSeconds: tt.seconds}.Timeout()
		if got != tt.want {
			t.Errorf("Timeout(%v) = %v, want %v", tt.seconds, got, tt.want)
		}
	}
}

func TestObservationJSONShape(t *testing.T) {
	obs := &Observation{
		SessionID: "s1",
		Status:    StatusError,
		Error:     &ErrorInfo{Kind: ErrorKindRuntime, Message: "panic: boom"},
		Artifacts: []string{"plot.png"},
		Truncated: true,
	}
	data, err := json.Marshal(obs)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for _, key := range []string{"session_id", "status", "stdout", "stderr", "error", "artifacts", "truncated", "execution_time_ms"} {
		if _, ok := m[key]; !ok {
			t.Errorf("missing key %q in %s", key, data)
		}
	}
	if _, ok := m["result"]; ok {
		t.Error("empty result should be omitted")
	}
	errObj := m["error"].(map[string]any)
	if errObj["kind"] != "runtime_error" {
		t.Errorf("error.kind = %v, want runtime_error", errObj["kind"])
	}
}
