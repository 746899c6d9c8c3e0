package coordinator

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/dreamware/llmbalancer/internal/cluster"
)

// Dispatcher routes a request against the current snapshot and forwards it
// to the chosen node. It never retries on another node: a node that passed
// its last probe but fails the forward surfaces as a *ForwardError.
type Dispatcher struct {
	state     *cluster.State
	router    *Router
	forwarder *Forwarder
}

// NewDispatcher wires routing and forwarding over state.
func NewDispatcher(state *cluster.State, router *Router, forwarder *Forwarder) *Dispatcher {
	return &Dispatcher{state: state, router: router, forwarder: forwarder}
}

// Dispatch selects a node for req and forwards it. When no node is online it
// returns ErrNoNodesAvailable without touching any metrics.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Result, error) {
	model := ModelHint(req.Body)
	node, err := d.router.SelectNode(d.state.CurrentSnapshot(), model)
	if err != nil {
		logrus.WithFields(logrus.Fields{"path": req.Path, "model": model}).Warn("no nodes available")
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"path":  req.Path,
		"model": model,
		"node":  node.ID,
	}).Debug("routed")
	return d.forwarder.Forward(ctx, node, req)
}

// ModelHint returns the top-level "model" string of a JSON body, or "" when
// the body is not a JSON object or names no model. The body is not modified.
func ModelHint(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var peek struct {
		Model json.RawMessage `json:"model"`
	}
	if err := json.Unmarshal(body, &peek); err != nil || len(peek.Model) == 0 {
		return ""
	}
	var model string
	if err := json.Unmarshal(peek.Model, &model); err != nil {
		return ""
	}
	return model
}
