package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/press-logger/internal/status"
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
	"orNone": func(s string) string {
		if s == "" {
			return "none"
		}
		return s
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Press Logger</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.count { font-size: 2em; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
.unsynced { color: orange; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Press Logger<span id="live-dot" class="live-dot pending" title="connecting"></span></h1>

<h2>Presses</h2>
<table>
<tr><th>Count</th><td id="press-count" class="count">{{.Count}}</td></tr>
<tr><th>Last press</th><td id="last-press">{{orNone .LastPress}}</td></tr>
<tr><th>Stored records</th><td>{{.Stored}}</td></tr>
<tr><th>Clock</th><td class="{{if .ClockSynced}}connected{{else}}unsynced{{end}}">{{if .ClockSynced}}synced{{else}}not synced{{end}}</td></tr>
</table>

<h2>Recent</h2>
<table id="recent">
<tr><th>#</th><th>Time</th></tr>
</table>

<h2>Pipeline</h2>
<table>
<tr><th>Debounce rejected</th><td>{{.DebounceRejected}}</td></tr>
<tr><th>Queue dropped</th><td>{{.QueueDropped}}</td></tr>
<tr><th>Append failures</th><td>{{.AppendFailures}}</td></tr>
<tr><th>Untimed presses</th><td>{{.Untimed}}</td></tr>
<tr><th>Observers</th><td>{{.Observers}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
{{if .Config.Broker}}<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Buffered</th><td>{{.MQTTBuffered}}</td></tr>{{else}}<tr><th>MQTT</th><td>disabled</td></tr>{{end}}
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Pin</th><td>{{.Config.Pin}}</td></tr>
<tr><th>Debounce</th><td>{{.Config.DebounceMs}}ms</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>Queue capacity</th><td>{{.Config.QueueCapacity}}</td></tr>
<tr><th>Log</th><td>{{.Config.LogPath}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/metrics">metrics</a></p>
<script>
(function() {
  var maxRows = 20;
  var dot = document.getElementById("live-dot");
  var countEl = document.getElementById("press-count");
  var lastEl = document.getElementById("last-press");
  var table = document.getElementById("recent");

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  function addRow(rec) {
    var row = table.insertRow(1);
    row.insertCell(0).textContent = rec.buttonPressCount;
    row.insertCell(1).textContent = rec.buttonPressTimestamp || "unknown";
    while (table.rows.length > maxRows + 1) {
      table.deleteRow(table.rows.length - 1);
    }
  }

  function connect() {
    var proto = location.protocol === "https:" ? "wss://" : "ws://";
    var ws = new WebSocket(proto + location.host + "/ws");

    ws.onopen = function() {
      setDot("ok", "live");
      while (table.rows.length > 1) {
        table.deleteRow(1);
      }
    };

    ws.onmessage = function(e) {
      try {
        var rec = JSON.parse(e.data);
        countEl.textContent = rec.buttonPressCount;
        lastEl.textContent = rec.buttonPressTimestamp || "unknown";
        addRow(rec);
      } catch (err) {}
    };

    ws.onclose = function() {
      setDot("pending", "reconnecting");
      setTimeout(connect, 5000);
    };

    ws.onerror = function() {
      setDot("err", "error");
    };
  }

  connect();
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
