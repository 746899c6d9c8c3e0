package coordinator

import (
	"errors"

	"golang.org/x/exp/slices"

	"github.com/dreamware/llmbalancer/internal/cluster"
)

// ErrNoNodesAvailable is returned when no configured node is ONLINE.
var ErrNoNodesAvailable = errors.New("no nodes available")

// Router selects the node that serves a request. It is stateless: every
// decision is a pure function of the snapshot and the requested model, so a
// single Router is safe for concurrent use.
//
// Selection order:
//  1. Only ONLINE nodes are candidates.
//  2. If a model is requested and some candidate lists it, the first such
//     node in registry order wins. Affinity beats load.
//  3. Otherwise the candidate with the fewest dispatched requests wins.
//     Ties go to the node that appears first in registry order.
type Router struct{}

// NewRouter returns the model-affinity / least-dispatched router.
func NewRouter() *Router { return &Router{} }

// Name identifies the routing policy in logs.
func (r *Router) Name() string { return "affinity-least-dispatched" }

// SelectNode picks one online node from snap. An empty model means no hint.
func (r *Router) SelectNode(snap cluster.ClusterSnapshot, model string) (cluster.Node, error) {
	online := snap.Online()
	if len(online) == 0 {
		return cluster.Node{}, ErrNoNodesAvailable
	}

	if model != "" {
		idx := slices.IndexFunc(online, func(v cluster.NodeView) bool { return v.HasModel(model) })
		if idx >= 0 {
			return online[idx].Node, nil
		}
	}

	// Strict less-than keeps the earliest node on ties.
	best := online[0]
	for _, v := range online[1:] {
		if v.Metrics.RequestsTotal < best.Metrics.RequestsTotal {
			best = v
		}
	}
	return best.Node, nil
}
