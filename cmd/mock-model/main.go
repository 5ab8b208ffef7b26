// Command mock-model runs a deterministic Chat Completions server that
// answers in the ReAct format the agent expects. It is meant for local
// demos and end-to-end tests of datasci without a real model.
//
// The reply depends only on the last user message:
//
//   - a task containing a ```go block gets an Action Input running that code
//   - an observation gets a Final Answer quoting the observation
//   - anything else gets a Final Answer saying there is nothing to run
//
// Configuration:
//
//	MOCK_PORT - Listen port (default: 9090)
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"
	"time"
)

const defaultModel = "mock-model"

func main() {
	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "9090"
	}

	srv := &http.Server{Addr: ":" + port, Handler: newHandler()}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock model starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("mock model failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock model shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

func newHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", handleChatCompletions)
	mux.HandleFunc("GET /v1/models", handleModels)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	return mux
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stop     []string      `json:"stop,omitempty"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if req.Stream {
		writeError(w, http.StatusBadRequest, "streaming is not supported by the mock model")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages must not be empty")
		return
	}

	text := reply(lastUserMessage(req.Messages))
	model := req.Model
	if model == "" {
		model = defaultModel
	}

	resp := chatResponse{
		ID:     "chatcmpl-mock",
		Object: "chat.completion",
		Model:  model,
		Choices: []chatChoice{{
			Message:      chatMessage{Role: "assistant", Content: text},
			FinishReason: "stop",
		}},
		Usage: chatUsage{
			PromptTokens:     len(req.Messages) * 10,
			CompletionTokens: len(strings.Fields(text)),
			TotalTokens:      len(req.Messages)*10 + len(strings.Fields(text)),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func handleModels(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"object": "list",
		"data": []map[string]any{
			{"id": defaultModel, "object": "model", "owned_by": "datasci-mock"},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"message": msg, "type": "invalid_request_error"},
	})
}

var codeBlock = regexp.MustCompile("(?s)```(?:go|golang)?[ \t]*\n(.*?)```")

// reply scripts the next assistant message for the last user message.
func reply(last string) string {
	if obs, ok := strings.CutPrefix(last, "Observation:"); ok {
		return "Thought: The code ran, I can report what it produced.\n" +
			"Final Answer: " + strings.TrimSpace(obs)
	}
	if m := codeBlock.FindStringSubmatch(last); m != nil {
		return "Thought: I will run the code from the task.\n" +
			"Action Input:\n```go\n" + strings.TrimSpace(m[1]) + "\n```"
	}
	return "Thought: There is no Go code to run.\n" +
		"Final Answer: Nothing to execute. Put the code in a ```go block."
}

func lastUserMessage(msgs []chatMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			return msgs[i].Content
		}
	}
	return ""
}
