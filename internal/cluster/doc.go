// Package cluster holds the balancer's shared view of its backend inference
// nodes: the static node registry, probe-derived health, per-node performance
// counters, and the point-in-time snapshots routing decisions are made from.
//
// # Overview
//
// A balancer process is configured with a small, fixed set of nodes. Nodes are
// never added or removed at runtime. For each node the package tracks:
//
//   - Status: ONLINE, OFFLINE or ERROR, as reported by the most recent probe
//   - Models: the model names the node listed on its last successful probe
//   - Metrics: requests served, forwards failed, cumulative latency
//
// # State
//
// State is the single synchronization boundary. Counter mutations go through
// RecordSuccess and RecordError; probe results through Publish. Readers take a
// ClusterSnapshot with CurrentSnapshot, which copies everything it returns:
//
//	state := cluster.NewState(nodes)
//	state.Publish(results, time.Now())
//	state.RecordSuccess("node-a", 420*time.Millisecond)
//
//	snap := state.CurrentSnapshot()
//	for _, v := range snap.Online() {
//	    fmt.Println(v.Node.ID, v.Metrics.RequestsTotal, v.Metrics.AverageLatency())
//	}
//
// Snapshots combine the latest probe with live counters, so the probe half may
// lag behind by up to one probe interval while counters are always current.
//
// # Concurrency Model
//
//   - One sync.RWMutex guards all entries
//   - Every increment happens under the write lock, so concurrent forwards to
//     the same node never lose updates
//   - No method performs I/O while holding the lock
//
// # HTTP helpers
//
// GetJSON is a small JSON-over-HTTP helper shared by the prober and the
// terminal status view. Non-2xx answers surface as *HTTPStatusError.
package cluster
