// Package gateway is the balancer's externally reachable HTTP surface:
// aggregated health and model listings, pass-through inference endpoints,
// the status dashboard and the authenticated administrative endpoint.
package gateway

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/dreamware/llmbalancer/internal/admin"
	"github.com/dreamware/llmbalancer/internal/cluster"
	"github.com/dreamware/llmbalancer/internal/config"
	"github.com/dreamware/llmbalancer/internal/coordinator"
)

// HeaderConfirmNode must name the target node on shutdown requests.
const HeaderConfirmNode = "X-Confirm-Node"

const maxRequestBytes = 32 * 1024 * 1024

// inferenceRoutes maps front-end paths to the node path they are relayed to.
// The /api/* entries keep Ollama clients working unchanged.
var inferenceRoutes = []struct {
	front string
	node  string
}{
	{"/generate", "/api/generate"},
	{"/chat", "/api/chat"},
	{"/embeddings", "/api/embeddings"},
	{"/api/generate", "/api/generate"},
	{"/api/chat", "/api/chat"},
	{"/api/embeddings", "/api/embeddings"},
	{"/api/embed", "/api/embed"},
}

// Options wires a Server.
type Options struct {
	State      *cluster.State
	Dispatcher *coordinator.Dispatcher
	Admin      *admin.Channel
	AdminToken string
	RateLimit  config.RateLimit
	ListenAddr string
}

// Server serves the front end. Create with NewServer.
type Server struct {
	state      *cluster.State
	dispatcher *coordinator.Dispatcher
	admin      *admin.Channel
	adminToken string
	limiter    *rate.Limiter
	listenAddr string
	startedAt  time.Time
	now        func() time.Time
	maxBody    int64
}

// NewServer builds a Server from opts. A non-positive RateLimit.RPS leaves
// inference routes unlimited.
func NewServer(opts Options) *Server {
	s := &Server{
		state:      opts.State,
		dispatcher: opts.Dispatcher,
		admin:      opts.Admin,
		adminToken: opts.AdminToken,
		listenAddr: opts.ListenAddr,
		now:        time.Now,
		maxBody:    maxRequestBytes,
	}
	if opts.RateLimit.RPS > 0 {
		burst := opts.RateLimit.Burst
		if burst <= 0 {
			burst = int(opts.RateLimit.RPS) + 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit.RPS), burst)
	}
	s.startedAt = s.now()
	return s
}

// Handler returns the routed, middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /models", s.handleModels)
	mux.HandleFunc("GET /api/tags", s.handleTags)
	mux.HandleFunc("GET /dashboard", s.handleDashboard)
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/dashboard", http.StatusFound)
	})
	for _, route := range inferenceRoutes {
		mux.Handle("POST "+route.front, RateLimit(s.limiter)(s.inference(route.node)))
	}
	mux.HandleFunc("POST /admin/shutdown/{nodeId}", s.handleShutdown)

	return Chain(RequestID(), Logging())(mux)
}

// NodeHealth is one node's entry in HealthResponse.
type NodeHealth struct {
	Name            string    `json:"name"`
	URL             string    `json:"url"`
	Status          string    `json:"status"`
	Requests        uint64    `json:"requests"`
	Errors          uint64    `json:"errors"`
	AvgResponseTime float64   `json:"avgResponseTime"`
	Models          []string  `json:"models"`
	Administrable   bool      `json:"administrable"`
	LastProbe       time.Time `json:"lastProbe"`
}

// ClusterTotals aggregates all nodes.
type ClusterTotals struct {
	Requests uint64 `json:"requests"`
	Errors   uint64 `json:"errors"`
	Online   int    `json:"online"`
	Nodes    int    `json:"nodes"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string                `json:"status"`
	Uptime        string                `json:"uptime"`
	UptimeSeconds float64               `json:"uptimeSeconds"`
	StartedAt     time.Time             `json:"startedAt"`
	Timestamp     time.Time             `json:"timestamp"`
	Nodes         map[string]NodeHealth `json:"nodes"`
	Totals        ClusterTotals         `json:"totals"`
}

func (s *Server) health() HealthResponse {
	return s.healthFrom(s.state.CurrentSnapshot())
}

// healthFrom builds the health body from one snapshot so nodes and totals agree.
func (s *Server) healthFrom(snap cluster.ClusterSnapshot) HealthResponse {
	now := s.now()
	uptime := now.Sub(s.startedAt)

	resp := HealthResponse{
		Status:        "degraded",
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: uptime.Seconds(),
		StartedAt:     s.startedAt,
		Timestamp:     now,
		Nodes:         make(map[string]NodeHealth, len(snap.Nodes)),
	}
	for _, v := range snap.Nodes {
		models := v.Models
		if models == nil {
			models = []string{}
		}
		resp.Nodes[v.Node.ID] = NodeHealth{
			Name:            v.Node.Name,
			URL:             v.Node.URL,
			Status:          string(v.Status),
			Requests:        v.Metrics.RequestsTotal,
			Errors:          v.Metrics.ErrorsTotal,
			AvgResponseTime: coordinator.ResponseTimeMs(v.Metrics.AverageLatency()),
			Models:          models,
			Administrable:   v.Node.Administrable,
			LastProbe:       v.LastProbe,
		}
		if v.Online() {
			resp.Totals.Online++
		}
	}
	resp.Totals.Requests, resp.Totals.Errors = snap.Totals()
	resp.Totals.Nodes = len(snap.Nodes)
	if resp.Totals.Online > 0 {
		resp.Status = "healthy"
	}
	return resp
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.health())
}

// onlineModels is the de-duplicated union of online nodes' models, in
// registry order and then each node's reported order.
func (s *Server) onlineModels() []string {
	seen := make(map[string]bool)
	models := []string{}
	for _, v := range s.state.CurrentSnapshot().Online() {
		for _, m := range v.Models {
			if !seen[m] {
				seen[m] = true
				models = append(models, m)
			}
		}
	}
	return models
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"models": s.onlineModels()})
}

// handleTags answers in the node listing format without a backend call.
func (s *Server) handleTags(w http.ResponseWriter, r *http.Request) {
	type tag struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	}
	models := s.onlineModels()
	tags := make([]tag, 0, len(models))
	for _, m := range models {
		tags = append(tags, tag{Name: m, Model: m})
	}
	writeJSON(w, http.StatusOK, map[string][]tag{"models": tags})
}

func (s *Server) inference(nodePath string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		case err != nil:
			writeError(w, http.StatusBadRequest, "failed to read body")
			return
		}

		res, err := s.dispatcher.Dispatch(r.Context(), coordinator.Request{
			Method:    http.MethodPost,
			Path:      nodePath,
			Body:      body,
			Header:    r.Header,
			RequestID: RequestIDFrom(r.Context()),
		})
		var fe *coordinator.ForwardError
		switch {
		case errors.Is(err, coordinator.ErrNoNodesAvailable):
			writeError(w, http.StatusServiceUnavailable, "no nodes available")
			return
		case errors.As(err, &fe):
			status := http.StatusInternalServerError
			if errors.Is(err, coordinator.ErrResponseTooLarge) {
				status = http.StatusBadGateway
			}
			writeJSON(w, status, map[string]string{
				"error":                   fe.Err.Error(),
				coordinator.FieldServedBy: fe.Node.ID,
			})
			return
		case err != nil:
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		contentType := res.ContentType
		if contentType == "" {
			contentType = "application/json"
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("X-Served-By", res.Node.ID)
		w.WriteHeader(res.StatusCode)
		w.Write(res.Body)
	})
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	nodeID := r.PathValue("nodeId")

	if !s.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, admin.Result{Message: "unauthorized"})
		return
	}
	node, ok := s.state.Node(nodeID)
	if !ok {
		writeJSON(w, http.StatusNotFound, admin.Result{Message: "unknown node " + nodeID})
		return
	}
	if !confirmed(r, nodeID) {
		writeJSON(w, http.StatusBadRequest, admin.Result{
			Message: "confirmation required: set " + HeaderConfirmNode + " or {\"confirm\":\"<nodeId>\"}",
		})
		return
	}
	if s.admin == nil {
		writeJSON(w, http.StatusOK, admin.Result{Message: "administrative channel is not configured"})
		return
	}

	logrus.WithFields(logrus.Fields{
		"node":       nodeID,
		"remote":     r.RemoteAddr,
		"request_id": RequestIDFrom(r.Context()),
	}).Warn("administrative shutdown requested")
	writeJSON(w, http.StatusOK, s.admin.Shutdown(r.Context(), node))
}

// authorized checks the bearer token against the configured admin token.
// Without a configured token the write surface is closed.
func (s *Server) authorized(r *http.Request) bool {
	if s.adminToken == "" {
		return false
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) == 1
}

func confirmed(r *http.Request, nodeID string) bool {
	if r.Header.Get(HeaderConfirmNode) == nodeID {
		return true
	}
	var body struct {
		Confirm string `json:"confirm"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&body); err != nil {
		return false
	}
	return body.Confirm == nodeID
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Debugf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
