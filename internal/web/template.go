package web

import (
	"fmt"
	"html/template"
	"io"
	"log"
	"time"

	"github.com/sweeney/posture-coach/internal/status"
	"github.com/sweeney/posture-coach/internal/store"
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
	"percent": func(f float64) string {
		return fmt.Sprintf("%.0f%%", f*100)
	},
	"ear": func(v *float64) string {
		if v == nil {
			return "-"
		}
		return fmt.Sprintf("%.3f", *v)
	},
	"when": func(t time.Time) string {
		return t.UTC().Format("2006-01-02 15:04:05Z")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Posture Coach</title>
<style>
body { font-family: monospace; max-width: 640px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.ok { color: green; font-weight: bold; }
.alert { color: red; font-weight: bold; }
.info { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
.error { color: red; }
</style>
</head>
<body>
<h1>Posture Coach <span id="state">{{.Session.State}}</span></h1>
{{with .Session.Error}}<p class="error">{{.}}</p>{{end}}

<form method="post" action="/session/start" style="display:inline"><button>Start</button></form>
<form method="post" action="/session/stop" style="display:inline"><button>Stop</button></form>

<h2>Posture</h2>
<table>
<tr><th>Status</th><td id="posture-status" class="{{.Session.Posture.Level}}">{{.Session.Posture.Status}}</td></tr>
<tr><th>Calibration</th><td id="calibration">{{percent .Session.Posture.CalibrationProgress}}</td></tr>
<tr><th>Neck drop</th><td>{{printf "%.1f" .Session.Posture.NeckDropPercent}}%</td></tr>
<tr><th>Shoulder tilt</th><td>{{printf "%.1f" .Session.Posture.ShoulderTiltDeg}}&deg;</td></tr>
<tr><th>Head tilt</th><td>{{printf "%.1f" .Session.Posture.HeadTiltDeg}}&deg;</td></tr>
<tr><th>Alerts</th><td id="posture-alerts">{{range $i, $a := .Session.Posture.Alerts}}{{if $i}}, {{end}}{{$a}}{{end}}</td></tr>
</table>

<h2>Eyes</h2>
<table>
<tr><th>EAR</th><td id="ear">{{ear .Session.Eye.EAR}}</td></tr>
<tr><th>Blinks (this minute)</th><td>{{.Session.Eye.BlinkCountCurrentMinute}}</td></tr>
<tr><th>Blinks (total)</th><td>{{.Session.Eye.TotalBlinks}}</td></tr>
<tr><th>Blink average</th><td>{{printf "%.1f" .Session.Eye.RecentBlinkAverage}}/min</td></tr>
<tr><th>Warnings</th><td id="eye-warnings">{{range $i, $w := .Session.Eye.Warnings}}{{if $i}}, {{end}}{{$w}}{{end}}</td></tr>
<tr><th>Duration</th><td id="duration">{{.Session.FormattedDuration}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Detector</th><td>{{.Config.Detector}}</td></tr>
<tr><th>Device</th><td>{{.Config.Device}}</td></tr>
<tr><th>Calibration frames</th><td>{{.Config.CalibrationFrames}}</td></tr>
<tr><th>Snapshot</th><td>{{.Config.SnapshotMs}}ms</td></tr>
<tr><th>Alert cooldown</th><td>{{.Config.CooldownMs}}ms</td></tr>
<tr><th>MQTT</th><td>{{if .Config.Broker}}{{if .MQTTConnected}}<span class="connected">connected</span>{{else}}<span class="disconnected">disconnected</span>{{end}} {{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
<tr><th>Sessions</th><td>{{.Completed}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

{{if .Recent}}
<h2>Recent sessions</h2>
<table>
<tr><th>Started</th><th>Bad posture</th><th>Samples</th></tr>
{{range .Recent}}<tr><td>{{when .TimestampStart}}</td><td class="{{if .TriggerAlert}}alert{{end}}">{{percent .BadRatio}}</td><td>{{.TotalFrames}}</td></tr>
{{end}}</table>
{{end}}

<p><a href="/index.json">JSON</a></p>
<script>
(function() {
  var proto = location.protocol === "https:" ? "wss://" : "ws://";
  var ws = new WebSocket(proto + location.host + "/ws");
  function text(id, v) { var el = document.getElementById(id); if (el) el.textContent = v; }
  ws.onmessage = function(ev) {
    try {
      var s = JSON.parse(ev.data);
      text("state", s.state);
      text("posture-status", s.posture.status);
      document.getElementById("posture-status").className = s.posture.level;
      text("calibration", Math.round(s.posture.calibrationProgress * 100) + "%");
      text("posture-alerts", (s.posture.alerts || []).join(", "));
      text("ear", s.eye.ear === null ? "-" : s.eye.ear.toFixed(3));
      text("eye-warnings", (s.eye.warnings || []).join(", "));
      text("duration", s.formattedDuration);
    } catch (e) {}
  };
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot, recent []store.PostureRecord) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
		Recent []store.PostureRecord
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Recent:   recent,
	}
	if err := indexTmpl.Execute(w, data); err != nil {
		log.Printf("web: render status page: %v", err)
	}
}
