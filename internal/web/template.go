package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/pid-loop/internal/status"
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
	"f2": func(v float64) string {
		return fmt.Sprintf("%.2f", v)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>PID Loop</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.fault { color: red; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>PID Loop</h1>

<h2>Controller</h2>
<table>
<tr><th>State</th><td class="{{if .Loop.ErrorState}}fault{{else if .Loop.Enabled}}on{{else}}off{{end}}">{{if .Loop.ErrorState}}FAULT{{if .Loop.Fault}} ({{.Loop.Fault}}){{end}}{{else if .Loop.Enabled}}RUNNING{{else}}STOPPED{{end}}</td></tr>
<tr><th>Process value</th><td>{{f2 .Loop.PV}}</td></tr>
<tr><th>Setpoint</th><td>{{f2 .Loop.Setpoint}}</td></tr>
<tr><th>Output</th><td>{{f2 .Loop.Output}}</td></tr>
<tr><th>P / I / D</th><td>{{f2 .Loop.P}} / {{f2 .Loop.I}} / {{f2 .Loop.D}}</td></tr>
<tr><th>Gains</th><td>Kp={{f2 .Loop.Kp}} Ki={{f2 .Loop.Ki}} Kd={{f2 .Loop.Kd}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Config.SerialPort}}<tr><th>Tuning port</th><td>{{.Config.SerialPort}}</td></tr>{{end}}
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Counters</h2>
<table>
<tr><th>Loop ticks</th><td>{{.Counts.Ticks}}</td></tr>
<tr><th>Faults</th><td>{{.Counts.Faults}}</td></tr>
<tr><th>Sensor errors</th><td>{{.Counts.SensorErrors}}</td></tr>
<tr><th>Tuning commands</th><td>{{.Counts.Commands}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Sample time</th><td>{{.Config.SampleTimeMs}}ms</td></tr>
<tr><th>Telemetry</th><td>{{if eq .Config.TelemetryMs 0}}disabled{{else}}{{.Config.TelemetryMs}}ms{{end}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
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
