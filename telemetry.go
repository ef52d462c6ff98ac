package main

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	defaultTelemetryInterval = time.Second
	defaultRequestTimeout    = 60 * time.Second

	// SatPC32 answers this item with one status line.
	telemetryItem = "SatPcDdeItem"

	noSatelliteMarker = "** NO SATELLITE **"
)

// TelemetryRecord is one parsed tracker status line.
type TelemetryRecord struct {
	SatelliteName string
	Azimuth       float64
	Elevation     float64
	UplinkHz      int64
	UplinkMode    string
	DownlinkHz    int64
	DownlinkMode  string
}

// AboveHorizon is the tracker's "satellite selected and tracked" signal: it reports
// AZ0 EL0 until a pass is under way.
func (r TelemetryRecord) AboveHorizon() bool {
	return r.Azimuth != 0 && r.Elevation != 0
}

type TelemetryConfig struct {
	Source         string        `yaml:"source"`
	Interval       time.Duration `yaml:"interval"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// TelemetryPoller asks the tracker for its status line once per interval and hands
// every usable record to its subscribers.
type TelemetryPoller struct {
	src            TelemetrySource
	interval       time.Duration
	requestTimeout time.Duration
	metrics        *metrics

	records notifier[TelemetryRecord]

	reachable *bool
}

func NewTelemetryPoller(src TelemetrySource, cfg TelemetryConfig, m *metrics) *TelemetryPoller {
	p := &TelemetryPoller{
		src:            src,
		interval:       cfg.Interval,
		requestTimeout: cfg.RequestTimeout,
		metrics:        m,
	}
	if p.interval <= 0 {
		p.interval = defaultTelemetryInterval
	}
	if p.requestTimeout <= 0 {
		p.requestTimeout = defaultRequestTimeout
	}
	return p
}

// OnRecord registers fn for records above the horizon. fn runs on the Run
// goroutine; time spent in it comes out of the same one second cycle.
func (p *TelemetryPoller) OnRecord(fn func(TelemetryRecord)) {
	p.records.subscribe(fn)
}

// Run polls until ctx is cancelled, then closes the source and returns nil.
func (p *TelemetryPoller) Run(ctx context.Context) error {
	log.Printf("[SAT] polling %s every %v", telemetryItem, p.interval)

	for {
		if ctx.Err() != nil {
			log.Print("[SAT] stopped")
			return p.src.Close()
		}

		start := time.Now()
		p.cycle(ctx)

		// Sleep only what is left of the interval so request time doesn't drift the cadence.
		if left := p.interval - time.Since(start); left > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(left):
			}
		}
	}
}

func (p *TelemetryPoller) cycle(ctx context.Context) {
	reqCtx, cancel := context.WithTimeout(ctx, p.requestTimeout)
	line, err := p.src.Request(reqCtx, telemetryItem)
	cancel()

	switch {
	case errors.Is(err, ErrProducerUnavailable):
		p.metrics.telemetryCycle(cycleUnavailable)
		if p.setReachable(false) {
			log.Printf("[SAT] waiting for tracker: %v", err)
		}
		return
	case err != nil:
		if ctx.Err() != nil {
			return
		}
		p.metrics.telemetryCycle(cycleError)
		log.Warnf("[SAT] request: %v", err)
		return
	}
	if p.setReachable(true) {
		log.Print("[SAT] tracker connected")
	}

	if strings.TrimSpace(line) == "" || strings.Contains(line, noSatelliteMarker) {
		p.metrics.telemetryCycle(cycleNoSatellite)
		return
	}

	rec := ParseTelemetryLine(line)
	if !rec.AboveHorizon() {
		p.metrics.telemetryCycle(cycleBelowHorizon)
		return
	}

	p.metrics.telemetryCycle(cycleRecord)
	p.records.emit(rec)
}

// setReachable records the tracker state and reports whether it changed.
func (p *TelemetryPoller) setReachable(up bool) bool {
	if p.reachable != nil && *p.reachable == up {
		return false
	}
	p.reachable = &up
	return true
}

// ParseTelemetryLine reads a line such as
//
//	SNFO-29 AZ56.7 EL6.8 UP145951275 UMLSB DN435853062 DMUSB MA52.6
//
// Fields are two letter prefixes glued to their value, in any order. Unknown
// prefixes are skipped and numbers that don't parse stay zero.
func ParseTelemetryLine(line string) TelemetryRecord {
	var rec TelemetryRecord

	for _, word := range strings.Fields(line) {
		if len(word) < 2 {
			continue
		}
		prefix, value := word[:2], word[2:]

		switch prefix {
		case "SN":
			rec.SatelliteName = value
		case "AZ":
			rec.Azimuth = parseFloat(value)
		case "EL":
			rec.Elevation = parseFloat(value)
		case "UP":
			rec.UplinkHz = parseInt(value)
		case "UM":
			rec.UplinkMode = value
		case "DN":
			rec.DownlinkHz = parseInt(value)
		case "DM":
			rec.DownlinkMode = value
		}
	}
	return rec
}

// parseFloat also takes a decimal comma, which SatPC32 writes under some locales.
func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func parseInt(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
