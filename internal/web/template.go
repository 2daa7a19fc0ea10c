package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/temp-logger/internal/status"
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
	"temp": func(s status.Sensor) string {
		if !s.LastOK {
			return "null"
		}
		return fmt.Sprintf("%.2f °C", s.LastValue)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="30">
<title>Temp Logger {{.Config.DeviceID}}</title>
<style>
body { font-family: monospace; max-width: 700px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.ok { color: green; }
.err { color: red; }
.warn { color: orange; }
</style>
</head>
<body>
<h1>Temp Logger {{.Config.SiteID}}/{{.Config.DeviceID}}{{if .Paused}} <span class="warn">(paused)</span>{{end}}</h1>

<h2>Sensors</h2>
<table>
<tr><th>Name</th><th>Bus</th><th>ROM</th><th>Last</th></tr>
{{range .Sensors}}<tr><td>{{.Name}}</td><td>{{.Bus}}/{{.Pin}}</td><td>{{.ROM}}</td><td class="{{if .LastOK}}ok{{else}}err{{end}}">{{temp .}}</td></tr>
{{else}}<tr><td colspan="4" class="err">no sensors</td></tr>
{{end}}</table>

<h2>Upload</h2>
<table>
<tr><th>Transport</th><td class="{{if .TransportConnected}}ok{{end}}">{{.Config.Transport}}</td></tr>
<tr><th>Queue</th><td class="{{if eq .QueueDepth .Config.QueueCapacity}}warn{{end}}">{{.QueueDepth}} / {{.Config.QueueCapacity}}</td></tr>
<tr><th>Phase</th><td>{{.RetryPhase}}</td></tr>
<tr><th>Backoff</th><td>{{.Backoff}}</td></tr>
<tr><th>Delivered</th><td>{{.Counters.Delivered}}</td></tr>
<tr><th>Failures</th><td>{{.Counters.DeliveryFailures}}</td></tr>
<tr><th>Evicted</th><td>{{.Counters.Evictions}}</td></tr>
<tr><th>Dead-lettered</th><td>{{.Counters.DeadLettered}}</td></tr>
<tr><th>Lost</th><td class="{{if .Counters.DeadLetterLost}}err{{end}}">{{.Counters.DeadLetterLost}}</td></tr>
</table>

<h2>Storage</h2>
<table>
<tr><th>Log</th><td class="{{if .LogEnabled}}ok{{else}}err{{end}}">{{if .LogEnabled}}{{.LogFile}} ({{.LogSize}} bytes){{else}}disabled{{end}}</td></tr>
<tr><th>Overflow records</th><td>{{.OverflowRecords}}</td></tr>
<tr><th>Log errors</th><td>{{.Counters.LogErrors}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Clock</th><td class="{{if .ClockSynced}}ok{{else}}warn{{end}}">{{if .ClockSynced}}synced{{else}}uptime only{{end}}</td></tr>
<tr><th>Last batch</th><td>{{.LastBatch}}</td></tr>
<tr><th>Cycles</th><td>{{.Counters.Cycles}}</td></tr>
<tr><th>Interval</th><td>{{.Config.IntervalMs}}ms</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/metrics">metrics</a></p>
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
