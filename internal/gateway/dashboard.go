package gateway

import (
	"html/template"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

type dashboardNode struct {
	ID            string
	Name          string
	URL           string
	Status        string
	Online        bool
	Requests      uint64
	Errors        uint64
	AvgMs         float64
	Models        []string
	Administrable bool
}

type dashboardData struct {
	Nodes     []dashboardNode
	Requests  uint64
	Errors    uint64
	Online    int
	StartedAt string
	Uptime    string
	Listen    string
	Endpoints []string
}

var dashboardTmpl = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html>
<head>
<title>Inference Cluster Dashboard</title>
<meta http-equiv="refresh" content="5">
<style>
body { font-family: 'Courier New', monospace; background: #0a0a0a; color: #00ff00; padding: 20px; }
.container { max-width: 900px; margin: 0 auto; }
.header { text-align: center; border-bottom: 2px solid #00ff00; padding-bottom: 20px; margin-bottom: 20px; }
.node { background: #1a1a1a; margin: 20px 0; padding: 20px; border: 1px solid #00ff00; border-radius: 5px; }
.node.down { border-color: #ff0000; }
.title { font-size: 22px; font-weight: bold; margin-bottom: 15px; }
.label { color: #ffff00; }
.online { color: #00ff00; }
.offline { color: #ff0000; }
.stats { display: grid; grid-template-columns: 1fr 1fr; gap: 10px; }
button { background: #330000; color: #ff6666; border: 1px solid #ff0000; padding: 6px 12px; cursor: pointer; font-family: inherit; }
</style>
<script>
function shutdownNode(id, name) {
  const token = window.prompt("Admin token to power down " + name);
  if (!token) { return; }
  if (!window.confirm("Power down " + name + "? It will not come back on its own.")) { return; }
  fetch("/admin/shutdown/" + encodeURIComponent(id), {
    method: "POST",
    headers: { "Authorization": "Bearer " + token, "X-Confirm-Node": id }
  }).then(function (r) { return r.json(); })
    .then(function (d) { window.alert(d.message); })
    .catch(function (e) { window.alert("request failed: " + e); });
}
</script>
</head>
<body>
<div class="container">
  <div class="header">
    <h1>INFERENCE CLUSTER</h1>
    <p>Load Balancer | {{len .Nodes}} nodes, {{.Online}} online | Auto-refresh: 5s</p>
  </div>
  {{range .Nodes}}
  <div class="node{{if not .Online}} down{{end}}">
    <div class="title">{{.Name}} <small>({{.ID}} @ {{.URL}})</small></div>
    <div class="stats">
      <div><span class="label">Status:</span> <span class="{{if .Online}}online{{else}}offline{{end}}">{{.Status}}</span></div>
      <div><span class="label">Requests:</span> {{.Requests}}</div>
      <div><span class="label">Avg Response:</span> {{printf "%.0f" .AvgMs}}ms</div>
      <div><span class="label">Errors:</span> {{.Errors}}</div>
      <div><span class="label">Models:</span> {{len .Models}}</div>
      <div>{{range $i, $m := .Models}}{{if $i}}, {{end}}{{$m}}{{end}}</div>
    </div>
    {{if .Administrable}}
    <p><button onclick="shutdownNode({{.ID}}, {{.Name}})">Power down</button></p>
    {{end}}
  </div>
  {{end}}
  <div class="node">
    <div class="title">CLUSTER TOTALS</div>
    <div class="stats">
      <div><span class="label">Total Requests:</span> {{.Requests}}</div>
      <div><span class="label">Total Errors:</span> {{.Errors}}</div>
      <div><span class="label">Online Since:</span> {{.StartedAt}}</div>
      <div><span class="label">Uptime:</span> {{.Uptime}}</div>
      <div><span class="label">API:</span> {{.Listen}}</div>
    </div>
  </div>
  <div class="node" style="border-color: #ffff00;">
    <div class="title" style="color: #ffff00;">API ENDPOINTS</div>
    {{range .Endpoints}}<div>{{.}}</div>{{end}}
  </div>
</div>
</body>
</html>
`))

var dashboardEndpoints = []string{
	"POST /chat - Chat completions",
	"POST /generate - Text generation",
	"POST /embeddings - Vector embeddings",
	"GET /models - Models across online nodes",
	"GET /health - Cluster health",
	"POST /api/* - Ollama-compatible pass-through",
}

func (s *Server) dashboard() dashboardData {
	snap := s.state.CurrentSnapshot()
	h := s.healthFrom(snap)
	data := dashboardData{
		Requests:  h.Totals.Requests,
		Errors:    h.Totals.Errors,
		Online:    h.Totals.Online,
		StartedAt: s.startedAt.Format(time.DateTime),
		Uptime:    h.Uptime,
		Listen:    s.listenAddr,
		Endpoints: dashboardEndpoints,
	}
	// Iterate the snapshot, not the map, to keep registry order.
	for _, v := range snap.Nodes {
		n, ok := h.Nodes[v.Node.ID]
		if !ok {
			continue
		}
		data.Nodes = append(data.Nodes, dashboardNode{
			ID:            v.Node.ID,
			Name:          n.Name,
			URL:           n.URL,
			Status:        n.Status,
			Online:        n.Status == "ONLINE",
			Requests:      n.Requests,
			Errors:        n.Errors,
			AvgMs:         n.AvgResponseTime,
			Models:        n.Models,
			Administrable: n.Administrable,
		})
	}
	return data
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTmpl.Execute(w, s.dashboard()); err != nil {
		logrus.Errorf("render dashboard: %v", err)
	}
}
