package main

import (
	"bufio"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

const sampleLine = "SNFO-29 AZ56.7 EL6.8 UP145951275 UMLSB DN435853062 DMUSB MA52.6"

func TestParseTelemetryLine(t *testing.T) {
	rec := ParseTelemetryLine(sampleLine)
	assert.Equal(t, TelemetryRecord{
		SatelliteName: "FO-29",
		Azimuth:       56.7,
		Elevation:     6.8,
		UplinkHz:      145_951_275,
		UplinkMode:    "LSB",
		DownlinkHz:    435_853_062,
		DownlinkMode:  "USB",
	}, rec)
	assert.True(t, rec.AboveHorizon())
}

func TestParseTelemetryLineOrderAndJunk(t *testing.T) {
	rec := ParseTelemetryLine("  DMFM   ELx AZ12,5 SNISS UPabc DN437800000 X ZZtop ")
	assert.Equal(t, "ISS", rec.SatelliteName)
	assert.Equal(t, 12.5, rec.Azimuth)
	assert.Zero(t, rec.Elevation)
	assert.Zero(t, rec.UplinkHz)
	assert.Equal(t, int64(437_800_000), rec.DownlinkHz)
	assert.Equal(t, "FM", rec.DownlinkMode)
	assert.False(t, rec.AboveHorizon())

	assert.Zero(t, ParseTelemetryLine("AZNaN ELInf").Azimuth)
	assert.Equal(t, TelemetryRecord{}, ParseTelemetryLine(""))
}

func TestParseTelemetryLineFieldsAnyOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		want := TelemetryRecord{
			SatelliteName: rapid.StringMatching(`[A-Z0-9-]{1,10}`).Draw(t, "sn"),
			Azimuth:       float64(rapid.IntRange(1, 3599).Draw(t, "az")) / 10,
			Elevation:     float64(rapid.IntRange(1, 900).Draw(t, "el")) / 10,
			UplinkHz:      rapid.Int64Range(1, maxFrequency).Draw(t, "up"),
			UplinkMode:    rapid.SampledFrom([]string{"LSB", "USB", "FM", "CW"}).Draw(t, "um"),
			DownlinkHz:    rapid.Int64Range(1, maxFrequency).Draw(t, "dn"),
			DownlinkMode:  rapid.SampledFrom([]string{"LSB", "USB", "FM", "CW"}).Draw(t, "dm"),
		}
		words := []string{
			"SN" + want.SatelliteName,
			"AZ" + formatTenths(want.Azimuth),
			"EL" + formatTenths(want.Elevation),
			"UP" + itoa(want.UplinkHz),
			"UM" + want.UplinkMode,
			"DN" + itoa(want.DownlinkHz),
			"DM" + want.DownlinkMode,
			"MA" + formatTenths(want.Azimuth),
		}
		perm := rapid.Permutation(words).Draw(t, "order")

		assert.Equal(t, want, ParseTelemetryLine(strings.Join(perm, " ")))
	})
}

func formatTenths(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}

// fakeSource replays scripted answers, then keeps answering with the last one.
type fakeSource struct {
	mu       sync.Mutex
	answers  []fakeAnswer
	requests []time.Time
	delay    time.Duration
	closed   bool
}

type fakeAnswer struct {
	line string
	err  error
}

func (s *fakeSource) Request(ctx context.Context, item string) (string, error) {
	s.mu.Lock()
	s.requests = append(s.requests, time.Now())
	a := s.answers[0]
	if len(s.answers) > 1 {
		s.answers = s.answers[1:]
	}
	delay := s.delay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}
	return a.line, a.err
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSource) requestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func runPoller(t *testing.T, p *TelemetryPoller, until func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, until, 3*time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestPollerEmitsOnlyUsableRecords(t *testing.T) {
	src := &fakeSource{answers: []fakeAnswer{
		{err: ErrProducerUnavailable},
		{line: ""},
		{line: "   "},
		{line: noSatelliteMarker},
		{line: "SNAO-91 AZ0 EL0 UP435250000 UMFM DN145960000 DMFM"},
		{line: "SNAO-91 AZ120.5 EL0 UP435250000 UMFM DN145960000 DMFM"},
		{err: errors.New("relay hiccup")},
		{line: sampleLine},
		{line: noSatelliteMarker},
	}}
	m := newMetrics()
	p := NewTelemetryPoller(src, TelemetryConfig{Interval: time.Millisecond}, m)

	var mu sync.Mutex
	var got []TelemetryRecord
	p.OnRecord(func(rec TelemetryRecord) {
		mu.Lock()
		got = append(got, rec)
		mu.Unlock()
	})

	runPoller(t, p, func() bool { return src.requestCount() >= 12 })

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, "FO-29", got[0].SatelliteName)
	assert.True(t, src.closed)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.telemetryCycles.WithLabelValues(cycleRecord)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.telemetryCycles.WithLabelValues(cycleUnavailable)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.telemetryCycles.WithLabelValues(cycleBelowHorizon)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.telemetryCycles.WithLabelValues(cycleError)))
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.telemetryCycles.WithLabelValues(cycleNoSatellite)), 4.0)
}

func TestPollerKeepsCadence(t *testing.T) {
	const interval = 100 * time.Millisecond
	src := &fakeSource{
		answers: []fakeAnswer{{line: sampleLine}},
		delay:   40 * time.Millisecond,
	}
	p := NewTelemetryPoller(src, TelemetryConfig{Interval: interval}, nil)

	runPoller(t, p, func() bool { return src.requestCount() >= 4 })

	src.mu.Lock()
	defer src.mu.Unlock()
	span := src.requests[3].Sub(src.requests[0])
	assert.GreaterOrEqual(t, span, 3*interval-5*time.Millisecond)
	assert.Less(t, span, 3*interval+60*time.Millisecond)
}

func TestPollerRequestTimeout(t *testing.T) {
	src := &fakeSource{
		answers: []fakeAnswer{{line: sampleLine}},
		delay:   time.Hour,
	}
	m := newMetrics()
	p := NewTelemetryPoller(src, TelemetryConfig{Interval: time.Millisecond, RequestTimeout: 20 * time.Millisecond}, m)

	runPoller(t, p, func() bool {
		return testutil.ToFloat64(m.telemetryCycles.WithLabelValues(cycleError)) >= 2
	})
}

func TestPollerStopsDuringRequest(t *testing.T) {
	src := &fakeSource{
		answers: []fakeAnswer{{line: sampleLine}},
		delay:   time.Hour,
	}
	p := NewTelemetryPoller(src, TelemetryConfig{}, nil)

	runPoller(t, p, func() bool { return src.requestCount() == 1 })
	assert.True(t, src.closed)
}

func TestOpenTelemetrySource(t *testing.T) {
	src, err := openTelemetrySource("tcp://127.0.0.1:7300")
	require.NoError(t, err)
	assert.IsType(t, &tcpTelemetrySource{}, src)

	src, err = openTelemetrySource("file:/tmp/satpc.txt")
	require.NoError(t, err)
	assert.IsType(t, &fileTelemetrySource{}, src)

	_, err = openTelemetrySource("dde://SatPC32")
	assert.Error(t, err)
}

func TestFileTelemetrySource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.txt")
	src := &fileTelemetrySource{path: path}

	_, err := src.Request(context.Background(), telemetryItem)
	assert.ErrorIs(t, err, ErrProducerUnavailable)

	require.NoError(t, os.WriteFile(path, []byte(sampleLine+"\r\nsecond line\r\n"), 0o644))
	line, err := src.Request(context.Background(), telemetryItem)
	require.NoError(t, err)
	assert.Equal(t, sampleLine, line)
}

// startRelay serves status lines the way a tracker relay does: one line per
// request line.
func startRelay(t *testing.T, answer func(item string) string) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				r := bufio.NewReader(conn)
				for {
					item, err := r.ReadString('\n')
					if err != nil {
						return
					}
					reply := answer(strings.TrimSpace(item))
					if reply == "" {
						return
					}
					if _, err := conn.Write([]byte(reply + "\r\n")); err != nil {
						return
					}
				}
			}(conn)
		}
	}()
	return ln
}

func TestTCPTelemetrySource(t *testing.T) {
	ln := startRelay(t, func(item string) string {
		if item == telemetryItem {
			return sampleLine
		}
		return "?"
	})
	src := &tcpTelemetrySource{addr: ln.Addr().String()}
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for i := 0; i < 3; i++ {
		line, err := src.Request(ctx, telemetryItem)
		require.NoError(t, err)
		assert.Equal(t, sampleLine, line)
	}
}

func TestTCPTelemetrySourceRelayHangsUp(t *testing.T) {
	ln := startRelay(t, func(string) string { return "" })
	src := &tcpTelemetrySource{addr: ln.Addr().String()}
	defer src.Close()

	_, err := src.Request(context.Background(), telemetryItem)
	assert.ErrorIs(t, err, ErrProducerUnavailable)
	assert.Nil(t, src.conn)
}

func TestTCPTelemetrySourceNotRunning(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	src := &tcpTelemetrySource{addr: addr}
	_, err = src.Request(context.Background(), telemetryItem)
	assert.ErrorIs(t, err, ErrProducerUnavailable)
}

func TestTCPTelemetrySourceCancel(t *testing.T) {
	// Accepts but never answers.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			defer conn.Close()
			_, _ = bufio.NewReader(conn).ReadString(0)
		}
	}()

	src := &tcpTelemetrySource{addr: ln.Addr().String()}
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	_, err = src.Request(ctx, telemetryItem)
	assert.ErrorIs(t, err, context.Canceled)
}
