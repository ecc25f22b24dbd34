package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/irrigation-relay/internal/status"
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
	"stateOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
	"ms": func(v uint32) string {
		return (time.Duration(v) * time.Millisecond).String()
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Irrigation Relay</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Irrigation Relay{{if .Config.ThingName}} ({{.Config.ThingName}}){{end}}</h1>

<h2>Valve</h2>
<table>
{{$state := stateOrUnknown (printf "%s" .Relay)}}<tr><th>Relay</th><td id="relay-state" class="{{if eq $state "ON"}}on{{else if eq $state "OFF"}}off{{else}}unknown{{end}}">{{$state}}</td></tr>
<tr><th>Timer</th><td>{{if .RemainingMs}}{{ms .RemainingMs}} remaining{{else}}none{{end}}</td></tr>
<tr><th>Turned on</th><td>{{.Counts.On}}</td></tr>
<tr><th>Turned off</th><td>{{.Counts.Off}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .Session}}{{.Session}}{{else}}DISCONNECTED{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Topic</th><td>{{.Config.Topic}}</td></tr>
<tr><th>Publishes</th><td>{{.Publishes}}{{if not .LastPublish.IsZero}} (last {{.LastPublish.UTC.Format "2006-01-02T15:04:05Z"}}){{end}}</td></tr>
<tr><th>Connect failures</th><td>{{.ConnectFailures}}</td></tr>
{{if .LastError}}<tr><th>Last error</th><td>{{.LastError}}</td></tr>{{end}}
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Firmware</h2>
<table>
{{if .Firmware}}<tr><th>Staged</th><td>{{.Firmware.Path}} ({{.Firmware.Size}} bytes)</td></tr>
<tr><th>SHA-256</th><td>{{.Firmware.SHA256}}</td></tr>
<tr><th>Uploaded by</th><td>{{.Firmware.Subject}} at {{.Firmware.StagedAt.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
{{else}}<tr><th>Staged</th><td>none</td></tr>{{end}}
<tr><th>Upload</th><td>POST /update</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>Retry</th><td>{{.Config.RetryMs}}ms</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
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
