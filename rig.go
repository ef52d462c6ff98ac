package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	defaultRigPollInterval = time.Second
	defaultRigReadTimeout  = 500 * time.Millisecond
	minByteTimeout         = time.Millisecond
)

var (
	ErrNotConverged = errors.New("rig did not report the requested value")
	ErrRigClosed    = errors.New("rig closed")
)

type RigConfig struct {
	Port         string        `yaml:"port"`
	Baud         int           `yaml:"baud"`
	PollInterval time.Duration `yaml:"poll_interval"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	SetTimeout   time.Duration `yaml:"set_timeout"`
	FollowMode   bool          `yaml:"follow_mode"`
}

// Rig is a TS-2000 CAT client. Every request/response exchange with the radio
// happens while holding the device slot (ioSem), so frames from the poll loop and
// from set callers never interleave on the wire. Waiting for the slot honours the
// caller's context. The last known frequency and mode are written only by the Rig
// itself, while the slot is held, and can be read at any time.
type Rig struct {
	port         Port
	pollInterval time.Duration
	readTimeout  time.Duration
	metrics      *metrics

	ioSem  chan struct{}
	closed bool // guarded by ioSem

	stateMu sync.RWMutex
	freqHz  int64
	mode    Mode

	silent bool // poll goroutine only

	freqChanged notifier[int64]
	modeChanged notifier[Mode]

	lifeMu     sync.Mutex
	pollCancel context.CancelFunc
	pollDone   chan struct{}
	closeOnce  sync.Once
	closeErr   error
}

// OpenRig opens the configured port. Failing to open it is the one fatal rig error.
func OpenRig(cfg RigConfig, m *metrics) (*Rig, error) {
	port, err := openPort(cfg.Port, cfg.Baud)
	if err != nil {
		return nil, err
	}
	log.Printf("[RIG] open: %s @ %d baud", cfg.Port, cfg.Baud)
	return NewRig(port, cfg, m), nil
}

// NewRig wraps an already open port.
func NewRig(port Port, cfg RigConfig, m *metrics) *Rig {
	r := &Rig{
		port:         port,
		ioSem:        make(chan struct{}, 1),
		pollInterval: cfg.PollInterval,
		readTimeout:  cfg.ReadTimeout,
		metrics:      m,
	}
	if r.pollInterval <= 0 {
		r.pollInterval = defaultRigPollInterval
	}
	if r.readTimeout <= 0 {
		r.readTimeout = defaultRigReadTimeout
	}
	return r
}

// FrequencyHz returns the last frequency read from the radio, 0 if none yet.
func (r *Rig) FrequencyHz() int64 {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.freqHz
}

// Mode returns the last mode read from the radio, ModeUndefined if none yet.
func (r *Rig) Mode() Mode {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.mode
}

// OnFrequencyChanged registers fn for frequency transitions seen by the poll loop.
// fn runs on the poll goroutine without the device slot held, so it may call the
// set operations; the next poll cycle waits for it to return.
func (r *Rig) OnFrequencyChanged(fn func(hz int64)) {
	r.freqChanged.subscribe(fn)
}

// OnModeChanged is OnFrequencyChanged for the operating mode.
func (r *Rig) OnModeChanged(fn func(m Mode)) {
	r.modeChanged.subscribe(fn)
}

// SetFrequencyHz tunes VFO A to hz and waits until the radio reads back exactly hz.
// It returns an error wrapping ErrNotConverged when ctx ends first.
func (r *Rig) SetFrequencyHz(ctx context.Context, hz int64) error {
	set, err := EncodeSetFrequency(hz)
	if err != nil {
		return err
	}

	if err := r.acquire(ctx); err != nil {
		return r.setFailed(cmdFrequency, err)
	}
	defer r.release()
	if r.closed {
		return ErrRigClosed
	}

	r.stateMu.Lock()
	r.freqHz = hz
	r.stateMu.Unlock()

	err = r.converge(ctx, cmdFrequency, set, func() (bool, bool, error) {
		got, ok, err := r.queryFrequency(ctx)
		return ok && got == hz, ok, err
	})
	r.recordSet(cmdFrequency, err)
	if err == nil {
		r.metrics.rigFrequencyHz(hz)
	}
	return err
}

// SetMode is SetFrequencyHz for the operating mode. Modes without a CAT code are
// rejected before anything is sent.
func (r *Rig) SetMode(ctx context.Context, m Mode) error {
	set, err := EncodeSetMode(m)
	if err != nil {
		return err
	}

	if err := r.acquire(ctx); err != nil {
		return r.setFailed(cmdMode, err)
	}
	defer r.release()
	if r.closed {
		return ErrRigClosed
	}

	r.stateMu.Lock()
	r.mode = m
	r.stateMu.Unlock()

	err = r.converge(ctx, cmdMode, set, func() (bool, bool, error) {
		got, err := r.queryMode(ctx)
		return got == m, got != ModeUndefined, err
	})
	r.recordSet(cmdMode, err)
	return err
}

// acquire takes the device slot, giving up when ctx ends first.
func (r *Rig) acquire(ctx context.Context) error {
	select {
	case r.ioSem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Rig) release() {
	<-r.ioSem
}

// setFailed reports a set whose deadline passed before the device slot freed up.
func (r *Rig) setFailed(cmd string, err error) error {
	err = fmt.Errorf("%w: %s: waiting for rig: %w", ErrNotConverged, cmd, err)
	r.recordSet(cmd, err)
	return err
}

// converge writes set, then polls readback until it reports a match. A readback
// that parsed but disagrees resends set. Caller holds the device slot.
func (r *Rig) converge(ctx context.Context, cmd string, set []byte, readback func() (matched, valid bool, err error)) error {
	log.Debugf("[RIG] set %s", set)
	if _, err := r.port.Write(set); err != nil {
		return fmt.Errorf("write %s: %w", set, err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrNotConverged, cmd, err)
		}

		matched, valid, err := readback()
		if err != nil {
			if isContextErr(err) {
				return fmt.Errorf("%w: %s: %w", ErrNotConverged, cmd, err)
			}
			return err
		}
		if matched {
			return nil
		}
		if valid {
			if _, err := r.port.Write(set); err != nil {
				return fmt.Errorf("write %s: %w", set, err)
			}
		}
	}
}

func (r *Rig) recordSet(cmd string, err error) {
	switch {
	case err == nil:
		r.metrics.rigSet(cmd, resultConverged)
	case errors.Is(err, ErrNotConverged):
		r.metrics.rigSet(cmd, resultNotConverged)
	default:
		r.metrics.rigSet(cmd, resultError)
	}
}

// StartPolling runs the poll loop in its own goroutine until ctx is cancelled or
// the rig is closed. Calling it again is a no-op.
func (r *Rig) StartPolling(ctx context.Context) {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()
	if r.pollDone != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	r.pollCancel = cancel
	r.pollDone = make(chan struct{})
	go r.poll(ctx, r.pollDone)
}

func (r *Rig) poll(ctx context.Context, done chan struct{}) {
	defer close(done)
	log.Printf("[RIG] polling every %v", r.pollInterval)

	for {
		if ctx.Err() != nil {
			return
		}

		err := r.pollOnce(ctx)
		switch {
		case errors.Is(err, ErrRigClosed), ctx.Err() != nil:
			return
		case errors.Is(err, context.DeadlineExceeded):
			r.metrics.rigPollError()
			if !r.silent {
				r.silent = true
				log.Warn("[RIG] no answer from the rig, still polling")
			}
		case err != nil:
			r.metrics.rigPollError()
			log.Errorf("[RIG] poll: %v", err)
		case r.silent:
			r.silent = false
			log.Print("[RIG] rig answering again")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(r.pollInterval):
		}
	}
}

func (r *Rig) pollOnce(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("poll panic: %v", p)
		}
	}()

	if err := r.pollFrequency(ctx); err != nil {
		return err
	}
	return r.pollMode(ctx)
}

// pollQuery holds the device slot for one bounded query, so a silent radio costs
// a set caller at most pollQueryTimeout before the slot frees up.
func (r *Rig) pollQuery(ctx context.Context, query func(ctx context.Context)) error {
	if err := r.acquire(ctx); err != nil {
		return err
	}
	defer r.release()
	if r.closed {
		return ErrRigClosed
	}

	qctx, cancel := context.WithTimeout(ctx, r.pollQueryTimeout())
	defer cancel()
	query(qctx)
	return nil
}

// pollQueryTimeout allows one resend after a read timeout.
func (r *Rig) pollQueryTimeout() time.Duration {
	return 2 * r.readTimeout
}

func (r *Rig) pollFrequency(ctx context.Context) error {
	var (
		hz      int64
		ok      bool
		err     error
		changed bool
	)
	if lerr := r.pollQuery(ctx, func(qctx context.Context) {
		hz, ok, err = r.queryFrequency(qctx)
		if err == nil && ok && hz != 0 {
			changed = r.observeFrequency(hz)
		}
	}); lerr != nil {
		return lerr
	}

	if err != nil {
		return err
	}
	if changed {
		log.Printf("[RIG] frequency changed: %d Hz", hz)
		r.freqChanged.emit(hz)
	}
	return nil
}

func (r *Rig) pollMode(ctx context.Context) error {
	var (
		m       Mode
		err     error
		changed bool
	)
	if lerr := r.pollQuery(ctx, func(qctx context.Context) {
		m, err = r.queryMode(qctx)
		if err == nil && m != ModeUndefined {
			changed = r.observeMode(m)
		}
	}); lerr != nil {
		return lerr
	}

	if err != nil {
		return err
	}
	if changed {
		log.Printf("[RIG] mode changed: %v", m)
		r.modeChanged.emit(m)
	}
	return nil
}

// observeFrequency stores hz and reports whether it replaced a different, already
// known value. The first value ever read is not a change. Caller holds the device slot.
func (r *Rig) observeFrequency(hz int64) bool {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()

	prev := r.freqHz
	r.freqHz = hz
	r.metrics.rigFrequencyHz(hz)
	return prev != 0 && prev != hz
}

func (r *Rig) observeMode(m Mode) bool {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()

	prev := r.mode
	r.mode = m
	return prev != ModeUndefined && prev != m
}

// queryFrequency asks for VFO A. ok is false when the reply did not decode.
func (r *Rig) queryFrequency(ctx context.Context) (hz int64, ok bool, err error) {
	frame, err := r.exchange(ctx, EncodeQueryFrequency())
	if err != nil {
		return 0, false, err
	}

	hz, ok = DecodeFrequency(frame)
	if !ok {
		r.metrics.rigQuery(cmdFrequency, resultInvalid)
		log.Debugf("[RIG] malformed FA reply %q", frame)
		return 0, false, nil
	}
	r.metrics.rigQuery(cmdFrequency, resultOK)
	return hz, true, nil
}

func (r *Rig) queryMode(ctx context.Context) (Mode, error) {
	frame, err := r.exchange(ctx, EncodeQueryMode())
	if err != nil {
		return ModeUndefined, err
	}

	m := DecodeMode(frame)
	if m == ModeUndefined {
		r.metrics.rigQuery(cmdMode, resultInvalid)
		log.Debugf("[RIG] unusable MD reply %q", frame)
		return ModeUndefined, nil
	}
	r.metrics.rigQuery(cmdMode, resultOK)
	return m, nil
}

// exchange writes query and returns the radio's reply to it. A read timeout
// resends the query; only ctx bounds the retries. Caller holds the device slot.
func (r *Rig) exchange(ctx context.Context, query []byte) (string, error) {
	cmd := string(query[:len(query)-1])

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		if _, err := r.port.Write(query); err != nil {
			return "", fmt.Errorf("write %s: %w", query, err)
		}

		frame, err := r.readReply(ctx, cmd)
		if errors.Is(err, ErrReadTimeout) {
			r.metrics.rigQuery(cmd, resultTimeout)
			continue
		}
		return frame, err
	}
}

// readReply reads frames until one answers cmd, dropping late replies to earlier
// queries that timed out.
func (r *Rig) readReply(ctx context.Context, cmd string) (string, error) {
	for {
		frame, err := r.readFrame(ctx)
		if err != nil {
			return "", err
		}
		if answers(cmd, frame) {
			return frame, nil
		}
		log.Debugf("[RIG] dropping stale frame %q", frame)
	}
}

// readFrame reads bytes up to and including ';'. Each byte waits for at most the
// read timeout, clipped to ctx's deadline.
func (r *Rig) readFrame(ctx context.Context) (string, error) {
	buf := make([]byte, 0, freqFrameLen)
	for {
		timeout, err := r.byteTimeout(ctx)
		if err != nil {
			return "", err
		}

		b, err := r.port.ReadByte(timeout)
		if err != nil {
			return "", err
		}

		buf = append(buf, b)
		if b == frameTerminator || len(buf) >= maxFrameLen {
			return string(buf), nil
		}
	}
}

func (r *Rig) byteTimeout(ctx context.Context) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	timeout := r.readTimeout
	if dl, ok := ctx.Deadline(); ok {
		left := time.Until(dl)
		if left <= 0 {
			return 0, context.DeadlineExceeded
		}
		if left < timeout {
			timeout = left
		}
	}
	if timeout < minByteTimeout {
		timeout = minByteTimeout
	}
	return timeout, nil
}

// Close stops the poll loop, waits for it, and closes the port.
func (r *Rig) Close() error {
	r.closeOnce.Do(func() {
		r.lifeMu.Lock()
		cancel, done := r.pollCancel, r.pollDone
		r.lifeMu.Unlock()

		if cancel != nil {
			cancel()
			<-done
		}

		// Waits for an in-flight set, which its own deadline bounds.
		r.ioSem <- struct{}{}
		r.closed = true
		r.closeErr = r.port.Close()
		r.release()
		log.Print("[RIG] closed")
	})
	return r.closeErr
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
