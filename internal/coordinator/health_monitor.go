// Package coordinator provides the balancer's control plane.
// This file implements health probing of the configured inference nodes.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/llmbalancer/internal/cluster"
)

// ListFunc asks a node which models it currently serves.
type ListFunc func(ctx context.Context, node cluster.Node) ([]string, error)

// ProbeError describes a failed probe. StatusCode is non-zero when the node
// answered with a non-success status.
type ProbeError struct {
	NodeID     string
	StatusCode int
	Err        error
}

func (e *ProbeError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("probe %s: status %d", e.NodeID, e.StatusCode)
	}
	return fmt.Sprintf("probe %s: %v", e.NodeID, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// Prober periodically queries every node's model listing and publishes the
// results to the cluster State. Each node is probed in its own goroutine, so
// a slow or dead node never delays another node's result.
// Thread-safe: Start, ProbeAll and Stop may be called from any goroutine.
type Prober struct {
	state        *cluster.State
	listFunc     ListFunc                                             // Listing call, swappable for tests
	onTransition func(node cluster.Node, from, to cluster.NodeStatus) // Status change callback
	last         map[string]cluster.NodeStatus                        // Status from the previous cycle
	ctx          context.Context                                      // Internal cancellation
	cancel       context.CancelFunc
	interval     time.Duration  // Time between probe cycles
	timeout      time.Duration  // Per-node probe timeout
	mu           sync.Mutex     // Protects last and serializes cycles
	wg           sync.WaitGroup // Tracks the Start loop
}

// NewProber creates a prober for every node known to state. The prober does
// nothing until Start or ProbeAll is called.
//
// Example:
//
//	prober := NewProber(state, 5*time.Second, 2*time.Second)
//	prober.Start(ctx)
//	defer prober.Stop()
func NewProber(state *cluster.State, interval, timeout time.Duration) *Prober {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Prober{
		state:    state,
		interval: interval,
		timeout:  timeout,
		last:     make(map[string]cluster.NodeStatus),
		ctx:      ctx,
		cancel:   cancel,
	}
	p.listFunc = ListModels
	return p
}

// SetListFunc replaces the listing call. Must be called before Start.
func (p *Prober) SetListFunc(f ListFunc) {
	p.listFunc = f
}

// SetOnTransition registers a callback invoked, after publishing, for each
// node whose status changed since the previous cycle.
func (p *Prober) SetOnTransition(f func(node cluster.Node, from, to cluster.NodeStatus)) {
	p.onTransition = f
}

// Start launches the probe loop in its own goroutine and returns. The loop
// probes immediately and then every interval until ctx is cancelled or Stop
// is called.
func (p *Prober) Start(ctx context.Context) {
	p.wg.Add(1)
	go p.run(ctx)
}

func (p *Prober) run(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	logrus.Infof("health prober started with interval %v", p.interval)
	select {
	case <-p.ctx.Done():
		return
	default:
	}
	p.ProbeAll(ctx)

	for {
		select {
		case <-ticker.C:
			p.ProbeAll(ctx)
		case <-ctx.Done():
			logrus.Info("health prober stopping due to context cancellation")
			return
		case <-p.ctx.Done():
			logrus.Info("health prober stopping due to internal cancellation")
			return
		}
	}
}

// Stop cancels a running probe loop and waits for it to return. No probe
// cycle starts after Stop returns.
func (p *Prober) Stop() {
	p.cancel()
	p.wg.Wait()
}

// ProbeAll probes every node once, publishes the results and returns the
// resulting snapshot. NodeMetrics are never modified.
func (p *Prober) ProbeAll(ctx context.Context) cluster.ClusterSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	nodes := p.state.Nodes()
	results := make([]cluster.ProbeResult, len(nodes))

	// Goroutines never return an error; each outcome lands in its own slot.
	var g errgroup.Group
	for i, node := range nodes {
		g.Go(func() error {
			results[i] = p.probeNode(ctx, node)
			return nil
		})
	}
	_ = g.Wait()

	p.state.Publish(results, time.Now())

	for i, r := range results {
		prev, seen := p.last[r.NodeID]
		p.last[r.NodeID] = r.Status
		if !seen {
			prev = cluster.StatusOffline
		}
		if prev == r.Status {
			continue
		}
		if r.Status == cluster.StatusOnline {
			logrus.Infof("node %s is %s (%d models)", r.NodeID, r.Status, len(r.Models))
		} else {
			logrus.Warnf("node %s is %s: %v", r.NodeID, r.Status, r.Err)
		}
		if p.onTransition != nil {
			p.onTransition(nodes[i], prev, r.Status)
		}
	}

	return p.state.CurrentSnapshot()
}

func (p *Prober) probeNode(ctx context.Context, node cluster.Node) cluster.ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	models, err := p.listFunc(ctx, node)
	res := cluster.ProbeResult{NodeID: node.ID, ProbedAt: time.Now()}
	if err == nil {
		res.Status = cluster.StatusOnline
		res.Models = models
		return res
	}

	res.Err = err
	res.Status = cluster.StatusOffline
	var pe *ProbeError
	if errors.As(err, &pe) && pe.StatusCode != 0 {
		res.Status = cluster.StatusError
	}
	logrus.Debugf("probe failed for node %s: %v", node.ID, err)
	return res
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels is the default ListFunc: GET {url}/api/tags.
func ListModels(ctx context.Context, node cluster.Node) ([]string, error) {
	url := strings.TrimRight(node.URL, "/") + "/api/tags"

	var out tagsResponse
	if err := cluster.GetJSON(ctx, url, &out); err != nil {
		pe := &ProbeError{NodeID: node.ID, Err: err}
		var se *cluster.HTTPStatusError
		if errors.As(err, &se) {
			pe.StatusCode = se.Code
		}
		return nil, pe
	}

	models := make([]string, 0, len(out.Models))
	for _, m := range out.Models {
		if m.Name != "" {
			models = append(models, m.Name)
		}
	}
	return models, nil
}
