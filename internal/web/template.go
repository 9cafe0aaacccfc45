package web

import (
	"fmt"
	"html/template"
	"io"
	"log"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sweeney/ph-doser/internal/status"
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
	"ago": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return humanize.Time(t)
	},
	"orUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
	"seconds": func(d time.Duration) string {
		return fmt.Sprintf("%ds", int64(d/time.Second))
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="30">
<title>pH Doser</title>
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
<h1>pH Doser {{.Config.SensorID}}</h1>

<h2>Reading</h2>
<table>
{{if .HasReading}}<tr><th>pH</th><td id="ph">{{printf "%.3f" .LastReading.PH}}</td></tr>
<tr><th>Voltage</th><td>{{printf "%.4f" .LastReading.Voltage}} V</td></tr>
<tr><th>Taken</th><td>{{ago .LastReading.Timestamp}}</td></tr>
{{else}}<tr><th>pH</th><td id="ph" class="unknown">no reading yet</td></tr>{{end}}
{{if .Counts.ReadingsRejected}}<tr><th>Last rejected</th><td>{{printf "%.3f" .LastRejected}} ({{ago .LastRejectAt}})</td></tr>{{end}}
</table>

<h2>Pump</h2>
<table>
<tr><th>Pump</th><td id="pump-state" class="{{if eq (orUnknown (printf "%s" .Pump)) "ON"}}on{{else if eq (orUnknown (printf "%s" .Pump)) "OFF"}}off{{else}}unknown{{end}}">{{orUnknown (printf "%s" .Pump)}}</td></tr>
<tr><th>Regime</th><td>{{orUnknown (printf "%s" .Regime)}}</td></tr>
<tr><th>Changed</th><td>{{ago .PumpChangedAt}}</td></tr>
</table>

<h2>Settings</h2>
<table>
{{if .HasSettings}}<tr><th>Day</th><td>from {{.Settings.DayStart}}, pump {{seconds .Settings.DayPump}} / break {{seconds .Settings.DayBreak}}</td></tr>
<tr><th>Night</th><td>from {{.Settings.NightStart}}, pump {{seconds .Settings.NightPump}} / break {{seconds .Settings.NightBreak}}</td></tr>
<tr><th>Measure every</th><td>{{seconds .Settings.MeasurementInterval}}</td></tr>
<tr><th>Fetched</th><td>{{ago .SettingsUpdated}}</td></tr>
{{else}}<tr><th>Settings</th><td class="unknown">not fetched yet</td></tr>{{end}}
{{if .LastPollError}}<tr><th>Last poll error</th><td>{{.LastPollError}}</td></tr>{{end}}
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Counts</h2>
<table>
<tr><th>Readings reported</th><td>{{.Counts.ReadingsReported}}</td></tr>
<tr><th>Readings rejected</th><td>{{.Counts.ReadingsRejected}}</td></tr>
<tr><th>Report errors</th><td>{{.Counts.ReportErrors}}</td></tr>
<tr><th>Sample errors</th><td>{{.Counts.SampleErrors}}</td></tr>
<tr><th>Skipped cycles</th><td>{{.Counts.SkippedCycles}}</td></tr>
<tr><th>Polls ok / failed</th><td>{{.Counts.PollOK}} / {{.Counts.PollErrors}}</td></tr>
<tr><th>Pump cycles</th><td>{{.Counts.PumpCycles}}</td></tr>
<tr><th>Actuator errors</th><td>{{.Counts.ActuatorErrors}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Timezone</th><td>{{.Config.Timezone}}</td></tr>
<tr><th>Settings poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/metrics">metrics</a></p>
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
	if err := indexTmpl.Execute(w, data); err != nil {
		log.Printf("web: render index: %v", err)
	}
}
