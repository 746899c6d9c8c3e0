package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/exp/slices"
)

// NodeStatus is the probe-derived health of a node.
type NodeStatus string

const (
	StatusOnline  NodeStatus = "ONLINE"
	StatusOffline NodeStatus = "OFFLINE"
	// StatusError means the node answered the listing call with a non-success status.
	StatusError NodeStatus = "ERROR"
)

// Node is one configured backend inference server. Immutable after startup.
type Node struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	URL           string `json:"url"`
	Administrable bool   `json:"administrable"`
	AdminHost     string `json:"-"`
}

// NodeMetrics holds the per-node performance counters.
type NodeMetrics struct {
	RequestsTotal     uint64        `json:"requests"`
	ErrorsTotal       uint64        `json:"errors"`
	CumulativeLatency time.Duration `json:"-"`
}

// AverageLatency is CumulativeLatency/RequestsTotal, or zero before the first request.
func (m NodeMetrics) AverageLatency() time.Duration {
	if m.RequestsTotal == 0 {
		return 0
	}
	return m.CumulativeLatency / time.Duration(m.RequestsTotal)
}

// ProbeResult is the outcome of probing a single node.
type ProbeResult struct {
	NodeID   string
	Status   NodeStatus
	Models   []string
	ProbedAt time.Time
	Err      error
}

// NodeView is a node as seen in a ClusterSnapshot.
type NodeView struct {
	Node      Node
	Status    NodeStatus
	Models    []string
	Metrics   NodeMetrics
	LastProbe time.Time
}

// Online reports whether routing may select this node.
func (v NodeView) Online() bool { return v.Status == StatusOnline }

// HasModel reports whether the node's last probe listed model.
func (v NodeView) HasModel(model string) bool {
	return slices.Contains(v.Models, model)
}

// ClusterSnapshot is a read-only, point-in-time view of every node in
// registry order. Each configured node appears exactly once.
type ClusterSnapshot struct {
	Nodes    []NodeView
	ProbedAt time.Time
}

// Online returns the online nodes in registry order.
func (s ClusterSnapshot) Online() []NodeView {
	out := make([]NodeView, 0, len(s.Nodes))
	for _, v := range s.Nodes {
		if v.Online() {
			out = append(out, v)
		}
	}
	return out
}

// Totals sums requests and errors over all nodes.
func (s ClusterSnapshot) Totals() (requests, errors uint64) {
	for _, v := range s.Nodes {
		requests += v.Metrics.RequestsTotal
		errors += v.Metrics.ErrorsTotal
	}
	return requests, errors
}

// HTTPStatusError is returned by GetJSON when the peer answers with a status
// code of 300 or above.
type HTTPStatusError struct {
	URL  string
	Code int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("http %s: %d", e.URL, e.Code)
}

var httpClient = &http.Client{Timeout: 5 * time.Second}

// GetJSON GETs url and decodes the JSON body into out.
func GetJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return &HTTPStatusError{URL: url, Code: resp.StatusCode}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
