package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogLevel(t *testing.T) {
	assert.Equal(t, zapcore.InfoLevel, logLevel(false, false))
	assert.Equal(t, zapcore.DebugLevel, logLevel(true, false))
	assert.Equal(t, zapcore.WarnLevel, logLevel(false, true))
}

func TestRigSilenceIsLoggedOnce(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	prev := log.logger
	log.logger = zap.New(core).Sugar()
	defer func() { log.logger = prev }()

	port := newMemPort(func(string) string { return "" })
	rig := NewRig(port, RigConfig{PollInterval: time.Millisecond, ReadTimeout: 5 * time.Millisecond}, nil)
	rig.StartPolling(context.Background())
	require.Eventually(t, func() bool { return port.count("FA;") >= 6 }, time.Second, time.Millisecond)
	require.NoError(t, rig.Close())

	assert.Equal(t, 1, countAt(logs, zapcore.WarnLevel, "no answer from the rig"))
}

func TestStatusFeedStopLogsAtDebug(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	prev := log.logger
	log.logger = zap.New(core).Sugar()
	defer func() { log.logger = prev }()

	f := newStatusFeed()
	done := make(chan struct{})
	go func() {
		f.run()
		close(done)
	}()
	f.stop()
	<-done

	assert.Equal(t, 1, countAt(logs, zapcore.DebugLevel, "status feed stopped"))
}

func countAt(logs *observer.ObservedLogs, level zapcore.Level, snippet string) int {
	n := 0
	for _, e := range logs.FilterMessageSnippet(snippet).All() {
		if e.Level == level {
			n++
		}
	}
	return n
}

func TestTrackerReachabilityLoggedOnTransitions(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	prev := log.logger
	log.logger = zap.New(core).Sugar()
	defer func() { log.logger = prev }()

	src := &fakeSource{answers: []fakeAnswer{
		{err: ErrProducerUnavailable},
		{err: ErrProducerUnavailable},
		{line: noSatelliteMarker},
		{line: sampleLine},
		{err: ErrProducerUnavailable},
		{err: ErrProducerUnavailable},
	}}
	p := NewTelemetryPoller(src, TelemetryConfig{Interval: time.Millisecond}, nil)
	runPoller(t, p, func() bool { return src.requestCount() >= 8 })

	assert.Equal(t, 2, countAt(logs, zapcore.InfoLevel, "waiting for tracker"))
	assert.Equal(t, 1, countAt(logs, zapcore.InfoLevel, "tracker connected"))
	assert.Zero(t, logs.FilterMessageSnippet("request:").Len())
}
