// Package coordinator implements the balancer's control plane: probing node
// health, choosing a node for each request, and relaying the request to it.
//
// # Overview
//
//	          inbound request
//	                 │
//	         ┌───────▼────────┐      CurrentSnapshot()   ┌───────────────┐
//	         │   Dispatcher   │ ─────────────────────────▶│ cluster.State │
//	         └───────┬────────┘                          └───────▲───────┘
//	                 │ SelectNode                Publish()       │ RecordSuccess/Error
//	         ┌───────▼────────┐              ┌────────────┐      │
//	         │     Router     │              │   Prober   │──────┤
//	         └───────┬────────┘              └────────────┘      │
//	                 │ Forward                                   │
//	         ┌───────▼────────┐                                  │
//	         │   Forwarder    │──────────────────────────────────┘
//	         └───────┬────────┘
//	                 ▼
//	           backend node
//
// # Core Components
//
// Prober: runs on its own ticker (default every 5s). Each cycle probes every
// node concurrently with a short timeout by listing its models
// (GET /api/tags). The results replace the previous cycle's in State. A
// single failed probe flips a node to OFFLINE (or ERROR if the node answered
// with a failure status); there is no hysteresis. Request handling never
// waits on a probe.
//
// Router: stateless selection over a snapshot. Model affinity first, then
// least-dispatched, ties broken by registry order.
//
// Forwarder: relays method, path and body verbatim. GET and read-only paths
// use the short timeout (default 5s); generation paths use the long one
// (default 300s). Outbound requests are detached from the caller's context,
// so a disconnecting client does not abort an in-flight generation.
//
// Dispatcher: glues the three together for a single request and extracts
// the model hint from the request body.
//
// # Failure Handling
//
//   - No online node: ErrNoNodesAvailable, nothing recorded
//   - Node unreachable at forward time: *ForwardError, error counter bumped
//   - Node answered with an error status: relayed as-is, counted as served
//
// A single node's failure never blocks routing to the others.
package coordinator
