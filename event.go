package main

import "sync"

// notifier is a subscription list. emit calls every subscriber in registration
// order on the caller's goroutine; a slow subscriber delays the emitter.
type notifier[T any] struct {
	mu   sync.RWMutex
	subs []func(T)
}

func (n *notifier[T]) subscribe(fn func(T)) {
	n.mu.Lock()
	n.subs = append(n.subs, fn)
	n.mu.Unlock()
}

func (n *notifier[T]) emit(v T) {
	n.mu.RLock()
	subs := n.subs
	n.mu.RUnlock()

	for _, fn := range subs {
		fn(v)
	}
}

// Events pushed to status feed clients.

type TelemetryEvent struct {
	Type         string  `json:"type"` // "telemetry"
	Satellite    string  `json:"satellite"`
	Azimuth      float64 `json:"az"`
	Elevation    float64 `json:"el"`
	UplinkHz     int64   `json:"uplink_hz,omitempty"`
	UplinkMode   string  `json:"uplink_mode,omitempty"`
	DownlinkHz   int64   `json:"downlink_hz,omitempty"`
	DownlinkMode string  `json:"downlink_mode,omitempty"`
}

type RigEvent struct {
	Type string `json:"type"` // "rig"
	Rig  string `json:"rig"`  // TS-2000
	Freq int64  `json:"freq,omitempty"`
	Mode string `json:"mode,omitempty"`
}

func newTelemetryEvent(rec TelemetryRecord) TelemetryEvent {
	return TelemetryEvent{
		Type:         "telemetry",
		Satellite:    rec.SatelliteName,
		Azimuth:      rec.Azimuth,
		Elevation:    rec.Elevation,
		UplinkHz:     rec.UplinkHz,
		UplinkMode:   rec.UplinkMode,
		DownlinkHz:   rec.DownlinkHz,
		DownlinkMode: rec.DownlinkMode,
	}
}

func newRigEvent(freq int64, mode Mode) RigEvent {
	ev := RigEvent{Type: "rig", Rig: "TS-2000", Freq: freq}
	if mode != ModeUndefined {
		ev.Mode = mode.String()
	}
	return ev
}
