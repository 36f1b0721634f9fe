package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/molding-monitor/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"when": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.UTC().Format("2006-01-02T15:04:05Z")
	},
	"ms": func(v int64) string {
		if v <= 0 {
			return "disabled"
		}
		return (time.Duration(v) * time.Millisecond).String()
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Molding Monitor</title>
<style>
body { font-family: monospace; max-width: 700px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.running { color: green; font-weight: bold; }
.stoppage { color: red; font-weight: bold; }
.stopped_yet_producing { color: orange; }
.inactive { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Molding Monitor</h1>

<h2>Machines</h2>
<table id="machines">
{{range .Machines}}<tr id="m-{{.ID}}"><th>{{.ID}}</th><td class="{{.Status}}">{{.Status}}</td><td><a href="/api/machines/{{.ID}}/stats">stats</a> <a href="/api/machines/{{.ID}}/timeline">timeline</a> <a href="/api/machines/{{.ID}}/timeline.xlsx">xlsx</a></td></tr>
{{else}}<tr><td>no machines</td></tr>
{{end}}</table>

<h2>Ingest</h2>
<table>
<tr><th>Snapshots accepted</th><td>{{.Counts.SnapshotsAccepted}}</td></tr>
<tr><th>Snapshots rejected</th><td>{{.Counts.SnapshotsRejected}}</td></tr>
<tr><th>Last snapshot</th><td>{{when .LastSnapshot}}</td></tr>
<tr><th>Last tick</th><td>{{when .LastTick}}</td></tr>
<tr><th>Production updates</th><td>{{.Counts.ProductionUpdates}}</td></tr>
<tr><th>Stoppages detected</th><td>{{.Counts.StoppagesDetected}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Topic prefix</th><td>{{.Config.TopicPrefix}}</td></tr>
<tr><th>Event stream clients</th><td>{{.SSEClients}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{when .StartTime}}</td></tr>
<tr><th>Tick</th><td>{{ms .Config.TickMs}}</td></tr>
<tr><th>Heartbeat</th><td>{{ms .Config.HeartbeatMs}}</td></tr>
<tr><th>Power timeout</th><td>{{ms .Config.PowerTimeoutMs}}</td></tr>
<tr><th>Cycle timeout</th><td>{{ms .Config.CycleTimeoutMs}}</td></tr>
<tr><th>Timezone</th><td>{{.Config.Timezone}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> <a href="/metrics">metrics</a></p>
<script>
(function() {
  if (!window.EventSource) return;
  var es = new EventSource("/api/events");
  es.addEventListener("machine", function(e) {
    try {
      var msg = JSON.parse(e.data);
      if (msg.event !== "machine-state-update") return;
      var row = document.getElementById("m-" + msg.machineId);
      if (!row) return;
      var cell = row.getElementsByTagName("td")[0];
      cell.textContent = msg.status;
      cell.className = msg.status;
    } catch (err) {}
  });
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
