// Package main implements mocknode, a stand-in inference backend for running
// the balancer on a laptop without GPUs or real models.
//
// mocknode speaks the subset of the Ollama HTTP API the balancer relies on:
//   - GET  /api/tags       - Model listing (health probe target)
//   - GET  /api/version    - Version string
//   - POST /api/generate   - Text generation
//   - POST /api/chat       - Chat completion
//   - POST /api/embeddings - Single embedding
//   - POST /api/embed      - Batch embedding
//
// plus a control endpoint for exercising failure handling:
//   - POST /mock/fail?on=true|false - Answer every request with 500
//
// Configuration:
//   - MOCKNODE_ID: Identifier echoed in responses (required)
//   - MOCKNODE_LISTEN: Listen address (default: ":11434")
//   - MOCKNODE_MODELS: Comma separated model names (default: "llama3:8b")
//   - MOCKNODE_LATENCY: Artificial delay per inference call (default: "0s")
//
// Example usage:
//
//	MOCKNODE_ID=mock-a MOCKNODE_LISTEN=:11501 MOCKNODE_MODELS=llama3:8b,phi3 ./mocknode &
//	MOCKNODE_ID=mock-b MOCKNODE_LISTEN=:11502 MOCKNODE_MODELS=mistral ./mocknode &
//
// and point a balancer config at http://127.0.0.1:11501 and :11502.
package main

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
)

// logFatal is a variable to allow mocking logrus.Fatalf in tests.
var logFatal = logrus.Fatalf

const version = "0.0.0-mock"

const embeddingDims = 8

// MockNode holds the fake backend's configuration and counters.
// Thread-safe: all mutable fields are atomics.
type MockNode struct {
	ID      string
	Models  []string
	Latency time.Duration

	failing atomic.Bool
	served  atomic.Int64
}

// NewMockNode creates a backend serving models.
func NewMockNode(id string, models []string, latency time.Duration) *MockNode {
	return &MockNode{ID: id, Models: models, Latency: latency}
}

// Handler returns the node's routes.
func (n *MockNode) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tags", n.handleTags)
	mux.HandleFunc("GET /api/version", n.handleVersion)
	mux.HandleFunc("POST /api/generate", n.handleGenerate)
	mux.HandleFunc("POST /api/chat", n.handleChat)
	mux.HandleFunc("POST /api/embeddings", n.handleEmbeddings)
	mux.HandleFunc("POST /api/embed", n.handleEmbed)
	mux.HandleFunc("POST /mock/fail", n.handleFail)
	return n.failure(mux)
}

// failure short-circuits everything but the control endpoint while failing.
func (n *MockNode) failure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if n.failing.Load() && !strings.HasPrefix(r.URL.Path, "/mock/") {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "mock failure"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (n *MockNode) handleTags(w http.ResponseWriter, _ *http.Request) {
	type model struct {
		Name       string    `json:"name"`
		Model      string    `json:"model"`
		ModifiedAt time.Time `json:"modified_at"`
		Size       int64     `json:"size"`
	}
	models := make([]model, 0, len(n.Models))
	for _, m := range n.Models {
		models = append(models, model{Name: m, Model: m, ModifiedAt: time.Unix(0, 0).UTC(), Size: int64(len(m)) << 20})
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": models})
}

func (n *MockNode) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": version})
}

type inferenceRequest struct {
	Model    string `json:"model"`
	Prompt   string `json:"prompt"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	Input json.RawMessage `json:"input"`
}

// begin decodes the request, checks the model and applies the configured
// latency. It writes the error response itself and returns false on failure.
func (n *MockNode) begin(w http.ResponseWriter, r *http.Request) (inferenceRequest, bool) {
	var req inferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return req, false
	}
	if req.Model == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "model is required"})
		return req, false
	}
	if !slices.Contains(n.Models, req.Model) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "model '" + req.Model + "' not found"})
		return req, false
	}
	if n.Latency > 0 {
		select {
		case <-time.After(n.Latency):
		case <-r.Context().Done():
			return req, false
		}
	}
	n.served.Add(1)
	return req, true
}

func (n *MockNode) handleGenerate(w http.ResponseWriter, r *http.Request) {
	req, ok := n.begin(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"model":      req.Model,
		"created_at": time.Now().UTC(),
		"response":   n.reply(req.Prompt),
		"done":       true,
	})
}

func (n *MockNode) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := n.begin(w, r)
	if !ok {
		return
	}
	last := ""
	if len(req.Messages) > 0 {
		last = req.Messages[len(req.Messages)-1].Content
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"model":      req.Model,
		"created_at": time.Now().UTC(),
		"message":    map[string]string{"role": "assistant", "content": n.reply(last)},
		"done":       true,
	})
}

func (n *MockNode) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	req, ok := n.begin(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"embedding": embed(req.Prompt)})
}

// handleEmbed accepts "input" as either a string or a list of strings.
func (n *MockNode) handleEmbed(w http.ResponseWriter, r *http.Request) {
	req, ok := n.begin(w, r)
	if !ok {
		return
	}
	var inputs []string
	if err := json.Unmarshal(req.Input, &inputs); err != nil {
		var one string
		if err := json.Unmarshal(req.Input, &one); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "input must be a string or list of strings"})
			return
		}
		inputs = []string{one}
	}
	out := make([][]float64, 0, len(inputs))
	for _, in := range inputs {
		out = append(out, embed(in))
	}
	writeJSON(w, http.StatusOK, map[string]any{"model": req.Model, "embeddings": out})
}

func (n *MockNode) handleFail(w http.ResponseWriter, r *http.Request) {
	on, err := strconv.ParseBool(r.URL.Query().Get("on"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "on must be true or false"})
		return
	}
	n.failing.Store(on)
	logrus.Warnf("mocknode[%s] failing=%v", n.ID, on)
	w.WriteHeader(http.StatusNoContent)
}

func (n *MockNode) reply(prompt string) string {
	return "[" + n.ID + "] echo: " + prompt
}

// embed derives a deterministic vector from s.
func embed(s string) []float64 {
	v := make([]float64, embeddingDims)
	for i := range v {
		h := fnv.New32a()
		h.Write([]byte{byte(i)})
		h.Write([]byte(s))
		v[i] = float64(h.Sum32()%2000)/1000 - 1
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseModels(s string) []string {
	var models []string
	for _, m := range strings.Split(s, ",") {
		if m = strings.TrimSpace(m); m != "" && !slices.Contains(models, m) {
			models = append(models, m)
		}
	}
	return models
}

func main() {
	id := mustGetenv("MOCKNODE_ID")
	listen := getenv("MOCKNODE_LISTEN", ":11434")
	models := parseModels(getenv("MOCKNODE_MODELS", "llama3:8b"))
	latency, err := time.ParseDuration(getenv("MOCKNODE_LATENCY", "0s"))
	if err != nil {
		logFatal("MOCKNODE_LATENCY: %v", err)
		return
	}

	node := NewMockNode(id, models, latency)
	s := &http.Server{
		Addr:              listen,
		Handler:           node.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logrus.Infof("mocknode[%s] listening on %s with models %v", id, listen, models)
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logFatal("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		logrus.Errorf("shutdown: %v", err)
	}
	logrus.Infof("mocknode[%s] stopped after %d requests", id, node.served.Load())
}

// getenv returns the environment variable k, or def when unset or empty.
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// mustGetenv returns the environment variable k or terminates the program.
func mustGetenv(k string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	logFatal("missing env %s", k)
	return ""
}
