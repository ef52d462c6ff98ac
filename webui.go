package main

import (
	"html/template"
	"net/http"
	"sync"
)

var statusTmpl = template.Must(template.New("").Parse(`<!doctype html>
<meta charset="utf-8">
<meta http-equiv="refresh" content="2">
<title>SatPC32 rig bridge</title>
<h2>SatPC32 rig bridge</h2>
{{with .Record}}
<table>
<tr><td>Satellite</td><td>{{.SatelliteName}}</td></tr>
<tr><td>Az / El</td><td>{{printf "%.1f" .Azimuth}} / {{printf "%.1f" .Elevation}}</td></tr>
<tr><td>Downlink</td><td>{{.DownlinkHz}} Hz {{.DownlinkMode}}</td></tr>
<tr><td>Uplink</td><td>{{.UplinkHz}} Hz {{.UplinkMode}}</td></tr>
</table>
{{else}}
<p>No satellite above the horizon.</p>
{{end}}
{{if .RigEnabled}}
<h3>Rig</h3>
<p>{{if .RigFreq}}{{.RigFreq}} Hz {{.RigMode}}{{else}}waiting for first reading{{end}}</p>
{{end}}
<p>Live events: <code>/ws</code>, metrics: <a href="/metrics">/metrics</a></p>
`))

// statusPage renders the last record and rig reading as a self-refreshing page.
type statusPage struct {
	rig *Rig

	mu     sync.Mutex
	record *TelemetryRecord
}

func newStatusPage(rig *Rig) *statusPage {
	return &statusPage{rig: rig}
}

func (p *statusPage) setRecord(rec TelemetryRecord) {
	p.mu.Lock()
	p.record = &rec
	p.mu.Unlock()
}

func (p *statusPage) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	data := struct {
		Record     *TelemetryRecord
		RigEnabled bool
		RigFreq    int64
		RigMode    Mode
	}{}

	p.mu.Lock()
	data.Record = p.record
	p.mu.Unlock()

	if p.rig != nil {
		data.RigEnabled = true
		data.RigFreq = p.rig.FrequencyHz()
		data.RigMode = p.rig.Mode()
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = statusTmpl.Execute(w, data)
}
