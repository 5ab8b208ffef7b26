package agent

import (
	"strconv"
	"strings"
	"testing"

	"github.com/rhuss/datasci/pkg/action"
	"github.com/rhuss/datasci/pkg/api"
)

func TestSummarize(t *testing.T) {
	tests := []struct {
		name string
		obs  *api.Observation
		want string
	}{
		{
			name: "nil observation",
			obs:  nil,
			want: "Execution status: error\nErrors:\nExecution failed - no result returned",
		},
		{
			name: "silent success",
			obs:  &api.Observation{Status: api.StatusSuccess},
			want: "Execution status: success\nCode executed successfully (no explicit output generated)",
		},
		{
			name: "stdout and result",
			obs:  &api.Observation{Status: api.StatusSuccess, Stdout: "hello\n", Result: "42"},
			want: "Execution status: success\nText output:\nhello\nResult: 42",
		},
		{
			name: "artifacts",
			obs:  &api.Observation{Status: api.StatusSuccess, Artifacts: []string{"plot.svg", "out.csv"}},
			want: "Execution status: success\nArtifacts:\n- plot.svg\n- out.csv",
		},
		{
			name: "error with partial output",
			obs: &api.Observation{
				Status: api.StatusError,
				Stdout: "step 1\n",
				Stderr: "warning\n",
				Error:  &api.ErrorInfo{Kind: api.ErrorKindRuntime, Message: "panic: boom"},
			},
			want: "Execution status: error\nText output:\nstep 1\nErrors:\nwarning\nruntime_error: panic: boom",
		},
		{
			name: "silent failure gets no success note",
			obs:  &api.Observation{Status: api.StatusTimeout, Error: &api.ErrorInfo{Kind: api.ErrorKindTimeout, Message: "took too long"}},
			want: "Execution status: timeout\nErrors:\ntimeout: took too long",
		},
		{
			name: "truncated output",
			obs:  &api.Observation{Status: api.StatusSuccess, Stdout: "aaa", Truncated: true},
			want: "Execution status: success\nText output:\naaa\n(output was truncated by the interpreter)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Summarize(tt.obs, 0); got != tt.want {
				t.Errorf("Summarize() =\n%s\nwant\n%s", got, tt.want)
			}
		})
	}
}

func TestSummarizeTruncatesMiddle(t *testing.T) {
	obs := &api.Observation{Status: api.StatusSuccess, Stdout: strings.Repeat("x", 500) + "TAIL"}
	full := Summarize(obs, 0)

	got := Summarize(obs, 100)
	if !strings.HasPrefix(got, "Execution status: success") {
		t.Errorf("head lost: %q", got[:40])
	}
	if !strings.HasSuffix(got, "TAIL") {
		t.Errorf("tail lost: %q", got[len(got)-20:])
	}
	removed := len(full) - 100
	marker := "... " + strconv.Itoa(removed) + " characters truncated ..."
	if !strings.Contains(got, marker) {
		t.Errorf("marker %q missing in %q", marker, got)
	}
}

func TestTruncateMiddle(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		limit int
		want  string
	}{
		{"no limit", "abcdef", 0, "abcdef"},
		{"fits", "abcdef", 6, "abcdef"},
		{"cut", "abcdefghij", 4, "ab\n... 6 characters truncated ...\nij"},
		{"runes", "äöüßäöü", 2, "ä\n... 5 characters truncated ...\nü"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncateMiddle(tt.in, tt.limit); got != tt.want {
				t.Errorf("truncateMiddle(%q, %d) = %q, want %q", tt.in, tt.limit, got, tt.want)
			}
		})
	}
}

func TestAssistantMessage(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "code drops invented observation",
			in:   "Thought: count rows\nAction Input:\n```go\nlen(rows)\n```\nObservation: 12",
			want: "Thought: count rows\nAction Input:\n```go\nlen(rows)\n```",
		},
		{
			name: "final answer",
			in:   "Final Answer: 12 rows",
			want: "Final Answer:\n12 rows",
		},
		{
			name: "parse failure keeps raw text",
			in:   "hmm, not sure",
			want: "hmm, not sure",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := assistantMessage(action.Parse(tt.in)); got != tt.want {
				t.Errorf("assistantMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConversationMessagesSkipModelTurns(t *testing.T) {
	c := newConversation("sys", "task")
	c.add(api.Turn{Kind: api.TurnModel, Content: "raw reply"})
	c.add(api.Turn{Kind: api.TurnAction, Role: "assistant", Content: "Final Answer:\nx"})

	msgs := c.messages()
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	if msgs[2].Content != "Final Answer:\nx" {
		t.Errorf("last message = %q", msgs[2].Content)
	}
	if len(c.snapshot()) != 4 {
		t.Errorf("snapshot has %d turns, want 4", len(c.snapshot()))
	}
}
