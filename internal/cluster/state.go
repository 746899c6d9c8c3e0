package cluster

import (
	"sync"
	"time"

	"golang.org/x/exp/slices"
)

type nodeEntry struct {
	node    Node
	metrics NodeMetrics
	probe   ProbeResult
}

// State owns every node's metrics and the latest probe results. It is the
// only place counters are mutated; all methods are safe for concurrent use.
// Nodes are fixed at construction and kept in registry order.
type State struct {
	entries  []*nodeEntry
	index    map[string]*nodeEntry
	probedAt time.Time
	mu       sync.RWMutex
}

// NewState creates a State for nodes, in the given order. Every node starts
// OFFLINE with zeroed counters until the first probe is published.
func NewState(nodes []Node) *State {
	s := &State{
		entries: make([]*nodeEntry, 0, len(nodes)),
		index:   make(map[string]*nodeEntry, len(nodes)),
	}
	for _, n := range nodes {
		e := &nodeEntry{
			node:  n,
			probe: ProbeResult{NodeID: n.ID, Status: StatusOffline},
		}
		s.entries = append(s.entries, e)
		s.index[n.ID] = e
	}
	return s
}

// RecordSuccess counts one completed request against the node and adds
// elapsed to its cumulative latency. Returns false for unknown nodes.
func (s *State) RecordSuccess(nodeID string, elapsed time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.index[nodeID]
	if !ok {
		return false
	}
	e.metrics.RequestsTotal++
	e.metrics.CumulativeLatency += elapsed
	return true
}

// RecordError counts one failed forward against the node.
func (s *State) RecordError(nodeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.index[nodeID]
	if !ok {
		return false
	}
	e.metrics.ErrorsTotal++
	return true
}

// Publish replaces the probe results for the nodes in results. Results for
// unknown nodes are dropped. Metrics are not touched.
func (s *State) Publish(results []ProbeResult, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range results {
		e, ok := s.index[r.NodeID]
		if !ok {
			continue
		}
		r.Models = slices.Clone(r.Models)
		e.probe = r
	}
	s.probedAt = at
}

// CurrentSnapshot merges the latest probe results with the live counters.
// The returned snapshot shares no memory with the State.
func (s *State) CurrentSnapshot() ClusterSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := ClusterSnapshot{
		Nodes:    make([]NodeView, 0, len(s.entries)),
		ProbedAt: s.probedAt,
	}
	for _, e := range s.entries {
		snap.Nodes = append(snap.Nodes, NodeView{
			Node:      e.node,
			Status:    e.probe.Status,
			Models:    slices.Clone(e.probe.Models),
			Metrics:   e.metrics,
			LastProbe: e.probe.ProbedAt,
		})
	}
	return snap
}

// Metrics returns a copy of the node's counters.
func (s *State) Metrics(nodeID string) (NodeMetrics, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.index[nodeID]
	if !ok {
		return NodeMetrics{}, false
	}
	return e.metrics, true
}

// Node looks up a configured node by ID.
func (s *State) Node(nodeID string) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.index[nodeID]
	if !ok {
		return Node{}, false
	}
	return e.node, true
}

// Nodes returns the configured nodes in registry order.
func (s *State) Nodes() []Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Node, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.node
	}
	return out
}
