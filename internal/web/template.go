package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/treadmill-sensor/internal/logic"
	"github.com/sweeney/treadmill-sensor/internal/status"
)

func duration(d time.Duration) string {
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
}

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"duration": duration,
	"stateOrUnknown": func(s logic.State) string {
		if s == "" {
			return "UNKNOWN"
		}
		return string(s)
	},
	"cm": func(d float64) string {
		return fmt.Sprintf("%.1f cm", d)
	},
	"ts": func(t time.Time) string {
		return t.UTC().Format("2006-01-02T15:04:05Z")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>Treadmill Sensor</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.occupied { color: green; font-weight: bold; }
.idle { color: #888; }
.unknown { color: orange; }
.fault { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Treadmill Sensor</h1>

<h2>State</h2>
<table>
{{$state := stateOrUnknown .State}}<tr><th>Treadmill</th><td id="state" class="{{if eq $state "OCCUPIED"}}occupied{{else if eq $state "IDLE"}}idle{{else}}unknown{{end}}">{{$state}}</td></tr>
{{if .Session}}<tr><th>Session</th><td>{{duration .Session}}</td></tr>{{end}}
<tr><th>Pending</th><td>{{.Pending}} / {{.Config.Confirmations}}</td></tr>
{{with .Reading}}{{if not .Time.IsZero}}<tr><th>Last reading</th><td>{{if .Valid}}{{cm .DistanceCM}}{{else}}none{{end}} ({{.Presence}}){{if .Fault}} <span class="fault">{{.Fault}}</span>{{end}}</td></tr>{{end}}{{end}}
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>InfluxDB</th><td>{{.Config.InfluxURL}} ({{.Config.InfluxBucket}})</td></tr>
{{range $sink, $s := .Sinks}}<tr><th>{{$sink}} errors</th><td>{{$s.Errors}}{{if $s.LastError}} ({{$s.LastError}}){{end}}</td></tr>
{{end}}{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Event Counts</h2>
<table>
<tr><th>OCCUPIED</th><td>{{.Counts.Occupied}}</td></tr>
<tr><th>IDLE</th><td>{{.Counts.Idle}}</td></tr>
</table>

{{if .Events}}<h2>Recent Events</h2>
<table>
{{range .Events}}<tr><th>{{ts .Timestamp}}</th><td>{{.State}}{{if .Session}} after {{duration .Session}}{{end}}</td></tr>
{{end}}</table>
{{end}}
<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{duration .Uptime}}</td></tr>
<tr><th>Started</th><td>{{ts .StartTime}}</td></tr>
<tr><th>Ticks</th><td>{{.Ticks}}</td></tr>
<tr><th>Interval</th><td>{{.Config.IntervalMs}}ms</td></tr>
<tr><th>Max range</th><td>{{cm .Config.MaxRangeCM}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/events.json">Events</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot, events []logic.Event) error {
	// Snapshot has Uptime() and Session() methods but the template needs fields.
	data := struct {
		status.Snapshot
		Uptime  time.Duration
		Session time.Duration
		Events  []logic.Event
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Session:  snap.Session(),
		Events:   events,
	}
	return indexTmpl.Execute(w, data)
}
