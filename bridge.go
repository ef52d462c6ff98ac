package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// bridge wires the telemetry poller to the rig, the UDP consumer and the status
// feed. Every record handler runs on the telemetry goroutine.
type bridge struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    Config

	rig     *Rig         // nil without --rig-control
	udp     *udpReporter // nil without --udp
	feed    *statusFeed  // nil without --http
	status  *statusPage
	console *console
	metrics *metrics
}

// runBridge runs until ctx is cancelled or the UDP consumer becomes unreachable.
// Failing to open the rig or the telemetry source is returned immediately.
func runBridge(ctx context.Context, cfg Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	b := &bridge{
		ctx:     ctx,
		cancel:  cancel,
		cfg:     cfg,
		console: newConsole(),
		metrics: newMetrics(),
	}

	if cfg.UseRig {
		rig, err := OpenRig(cfg.Rig, b.metrics)
		if err != nil {
			return fmt.Errorf("rig: %w", err)
		}
		defer rig.Close()
		b.rig = rig
	}

	src, err := openTelemetrySource(cfg.Telemetry.Source)
	if err != nil {
		return err
	}

	if cfg.UDP != "" {
		udp, err := newUDPReporter(cfg.UDP, b.metrics)
		if err != nil {
			_ = src.Close()
			return fmt.Errorf("udp: %w", err)
		}
		defer udp.Close()
		b.udp = udp
	}

	b.status = newStatusPage(b.rig)
	if cfg.HTTPListen != "" {
		b.feed = newStatusFeed()
		go b.feed.run()
		defer b.feed.stop()

		srv := b.startHTTP(cfg.HTTPListen)
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	poller := NewTelemetryPoller(src, cfg.Telemetry, b.metrics)
	poller.OnRecord(b.onRecord)

	if b.rig != nil {
		b.rig.OnFrequencyChanged(b.onRigFrequency)
		b.rig.OnModeChanged(b.onRigMode)
		b.rig.StartPolling(ctx)
	}

	b.console.banner()
	return poller.Run(ctx)
}

func (b *bridge) startHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/", b.status)
	mux.Handle("/ws", b.feed)
	mux.Handle("/metrics", b.metrics.handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Printf("[WS] status feed: ws://%s/ws, metrics: http://%s/metrics", addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("[WS] http: %v", err)
		}
	}()
	return srv
}

func (b *bridge) onRecord(rec TelemetryRecord) {
	b.console.record(rec)
	b.status.setRecord(rec)

	if b.rig != nil {
		b.tuneRig(rec)
	}

	if b.udp != nil {
		if err := b.udp.Send(rec); err != nil {
			log.Errorf("[UDP] %v, aborting", err)
			b.cancel()
		}
	}

	b.feed.publish(newTelemetryEvent(rec))
}

// tuneRig puts the rig on the Doppler corrected downlink. Each set gets its own
// deadline just under the telemetry interval; a miss is logged and the next
// record tries again.
func (b *bridge) tuneRig(rec TelemetryRecord) {
	if rec.DownlinkHz > 0 && rec.DownlinkHz != b.rig.FrequencyHz() {
		ctx, cancel := context.WithTimeout(b.ctx, b.cfg.Rig.SetTimeout)
		err := b.rig.SetFrequencyHz(ctx, rec.DownlinkHz)
		cancel()
		if err != nil {
			log.Warnf("[RIG] could not set rig frequency, continuing: %v", err)
		}
	}

	if !b.cfg.Rig.FollowMode {
		return
	}
	if m := ParseMode(rec.DownlinkMode); m != ModeUndefined && m != b.rig.Mode() {
		ctx, cancel := context.WithTimeout(b.ctx, b.cfg.Rig.SetTimeout)
		err := b.rig.SetMode(ctx, m)
		cancel()
		if err != nil {
			log.Warnf("[RIG] could not set rig mode, continuing: %v", err)
		}
	}
}

func (b *bridge) onRigFrequency(hz int64) {
	b.feed.publish(newRigEvent(hz, b.rig.Mode()))
}

func (b *bridge) onRigMode(m Mode) {
	b.feed.publish(newRigEvent(b.rig.FrequencyHz(), m))
}
