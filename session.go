package radiosession

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cwsl/radiosession/dataplane"
	"github.com/cwsl/radiosession/store"
)

// handshakeCommands is the fixed, ordered subscription sequence every
// session issues once the local client handle arrives (§6). Order matters:
// later subscriptions assume entities named by earlier ones already exist.
var handshakeCommands = []string{
	"profile global info",
	"profile tx info",
	"profile mic info",
	"profile display info",
	"sub client all",
	"sub tx all",
	"sub atu all",
	"sub amplifier all",
	"sub meter all",
	"sub pan all",
	"sub slice all",
	"sub gps all",
	"sub audio_stream all",
	"sub cwx all",
	"sub xvtr all",
	"sub memories all",
	"sub daxiq all",
	"sub dax all",
	"sub license all",
	"sub usb_cable all",
	"sub tnf all",
	"sub spot all",
	"sub rapidm all",
	"sub ale all",
	"sub log_manager",
	"sub radio all",
	"sub apd all",
	"keepalive enable",
}

// Session is the client-side engine for one radio connection: it owns the
// control protocol, the reactive state store, the data-plane demultiplexer,
// and the event bus that ties them together.
type Session struct {
	// ID is a locally generated diagnostic identifier (not sent on the
	// wire); it exists purely to correlate this session's log lines and
	// metrics across a process that may hold more than one.
	ID string

	cfg     Config
	engine  *protocolEngine
	store   *store.Store
	events  *emitter
	metrics *sessionMetrics
	logger  *log.Logger

	demux   *dataplane.Demux
	dataMu  sync.Mutex
	data    DataTransport

	mu    sync.Mutex
	stage Stage

	closeOnce sync.Once
	closed    chan struct{}

	handleWaitersMu sync.Mutex
	handleWaiters   []chan string
	handle          string
}

// NewSession constructs a session over an already-connected control
// transport. It does not block; call Connect to run the handshake.
func NewSession(ctrl ControlTransport, cfg Config, logger *log.Logger) *Session {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.CommandTimeout == 0 {
		cfg = DefaultConfig()
	}

	var metrics *sessionMetrics
	if cfg.Metrics.Enabled {
		metrics = newSessionMetrics(cfg.Metrics.Namespace)
	}

	s := &Session{
		ID:      uuid.NewString(),
		cfg:     cfg,
		engine:  newProtocolEngine(ctrl, cfg),
		store:   store.New(logger),
		events:  newEmitter(),
		metrics: metrics,
		logger:  logger,
		demux:   dataplane.NewDemux(cfg.StreamBackpressureCap),
		closed:  make(chan struct{}),
	}

	s.engine.onHandle = s.handleHandleLine
	s.engine.onStatus = s.handleStatusFrame
	s.engine.onNotice = s.handleNoticeFrame
	s.engine.onMessage = s.handleMessageLine
	s.engine.onFatal = s.handleFatal

	return s
}

// Store returns the reactive state store. Safe to read concurrently with
// the session's lifecycle.
func (s *Session) Store() *store.Store { return s.store }

// Demux returns the data-plane demultiplexer, for subscribing to panadapter,
// waterfall, meter, and audio frames.
func (s *Session) Demux() *dataplane.Demux { return s.demux }

// AttachData wires an optional data-plane transport into the session (§4.3:
// "optional data-plane attached" on the path to StageReady). It starts a
// goroutine that reads frames from dt until the session closes or dt errors,
// feeding every frame to Demux().Ingest and folding meter-class payloads
// into the store's live meter values. A control-plane-only session simply
// never calls this.
func (s *Session) AttachData(dt DataTransport) {
	s.dataMu.Lock()
	s.data = dt
	s.dataMu.Unlock()
	go s.runDataLoop(dt)
}

func (s *Session) runDataLoop(dt DataTransport) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.closed:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		raw, err := dt.ReadFrame(ctx)
		if err != nil {
			return
		}
		if frame, perr := dataplane.ParseFrame(raw); perr == nil {
			if mp, ok := frame.Payload.(*dataplane.MeterPayload); ok {
				s.applyMeterSamples(mp)
			}
		} else if s.metrics != nil {
			s.metrics.parseErrors.Inc()
		}
		if err := s.demux.Ingest(raw); err != nil && s.metrics != nil {
			s.metrics.parseErrors.Inc()
		}
	}
}

// applyMeterSamples scales each Q15 reading into the meter's real-world
// Low..High range (when known) and folds it into the store, emitting a
// change event for every meter whose value actually moved.
func (s *Session) applyMeterSamples(mp *dataplane.MeterPayload) {
	for _, sample := range mp.Samples {
		id := strconv.Itoa(int(sample.MeterID))
		value := dataplane.Q15ToFloat(sample.ValueQ15)
		if m, ok := s.store.GetMeter(id); ok && m.High != m.Low {
			value = m.Low + (value+1)/2*(m.High-m.Low)
		}
		if change := s.store.ApplyMeterSample(id, value); change != nil {
			s.events.emit(Event{Kind: EventChange, Change: change})
		}
	}
}

// Stage returns the current lifecycle stage.
func (s *Session) Stage() Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage
}

func (s *Session) setStage(stage Stage) {
	s.mu.Lock()
	s.stage = stage
	s.mu.Unlock()
	s.events.emit(Event{Kind: EventProgress, Progress: stage})
}

// Connect starts the read loop, waits for the handle, runs the fixed
// handshake subscription sequence, and starts the keep-alive. It returns
// once the session reaches StageReady or the handshake fails.
func (s *Session) Connect(ctx context.Context) error {
	s.setStage(StageConnecting)

	scanner := bufio.NewScanner(s.engine.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	go s.engine.readLoop(scanner)

	handle, err := s.waitForHandle(ctx)
	if err != nil {
		s.setStage(StageFailed)
		return err
	}
	s.handle = handle
	s.store.SetLocalClientHandle(handle)

	s.setStage(StageHandshaking)
	for _, cmd := range handshakeCommands {
		if err := s.runCommand(ctx, cmd); err != nil {
			s.setStage(StageFailed)
			return err
		}
	}

	go s.engine.runKeepalive(s.cfg.KeepaliveInterval, s.cfg.KeepaliveMissThreshold)

	s.setStage(StageReady)
	s.events.emit(Event{Kind: EventReady})
	return nil
}

func (s *Session) waitForHandle(ctx context.Context) (string, error) {
	s.handleWaitersMu.Lock()
	if s.handle != "" {
		h := s.handle
		s.handleWaitersMu.Unlock()
		return h, nil
	}
	ch := make(chan string, 1)
	s.handleWaiters = append(s.handleWaiters, ch)
	s.handleWaitersMu.Unlock()

	timeout := s.cfg.HandleTimeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case h := <-ch:
		return h, nil
	case <-timer.C:
		return "", &Error{Kind: KindHandleTimeout, Err: ErrHandleTimeout}
	case <-ctx.Done():
		return "", ctx.Err()
	case <-s.closed:
		return "", &Error{Kind: KindSessionClosed, Err: ErrSessionClosed}
	}
}

func (s *Session) handleHandleLine(handle string) {
	s.handleWaitersMu.Lock()
	s.handle = handle
	waiters := s.handleWaiters
	s.handleWaiters = nil
	s.handleWaitersMu.Unlock()

	for _, w := range waiters {
		select {
		case w <- handle:
		default:
		}
	}
}

// Command sends one control command and blocks until its terminal reply
// (or session closure, command timeout, or ctx cancellation). A non-zero
// reply code is returned as a command-rejected Error; the caller still
// receives the raw reply.
func (s *Session) Command(ctx context.Context, cmd string) error {
	return s.runCommand(ctx, cmd)
}

func (s *Session) runCommand(ctx context.Context, cmd string) error {
	_, resolve, err := s.engine.send(cmd)
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.commandsInFlight.Inc()
		defer s.metrics.commandsInFlight.Dec()
	}

	select {
	case reply := <-resolve:
		return s.resolveReply(cmd, reply)
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closed:
		return &Error{Kind: KindSessionClosed, Err: ErrSessionClosed}
	}
}

func (s *Session) resolveReply(cmd string, reply ReplyFrame) error {
	s.events.emit(Event{Kind: EventReply, ReplyFrame: &reply})

	switch reply.Message {
	case "command-timeout":
		if s.metrics != nil {
			s.metrics.commandsTimedOut.Inc()
		}
		return &Error{Kind: KindCommandTimeout, Err: ErrCommandTimeout}
	case "session-closed":
		return &Error{Kind: KindSessionClosed, Err: ErrSessionClosed}
	}

	if reply.Code != 0 {
		if s.metrics != nil {
			s.metrics.commandsRejected.Inc()
		}
		return commandRejected(reply.Code, describeCode(reply.Code), fmt.Sprintf("%s -> %s", cmd, reply.Message))
	}
	return nil
}

func (s *Session) handleStatusFrame(frame StatusFrame) {
	s.events.emit(Event{Kind: EventStatus, StatusFrame: &frame})
	for _, ch := range s.store.Apply(frame) {
		change := ch
		s.events.emit(Event{Kind: EventChange, Change: &change})
	}
}

func (s *Session) handleNoticeFrame(n NoticeFrame) {
	s.events.emit(Event{Kind: EventNotice, NoticeFrame: &n})
}

// handleMessageLine reports every raw inbound wire line (§4.6), independent
// of whatever more specific event its tag also triggers.
func (s *Session) handleMessageLine(line string) {
	s.events.emit(Event{Kind: EventMessage, Message: line})
}

func (s *Session) handleFatal(err error) {
	s.mu.Lock()
	alreadyClosed := s.stage == StageClosed
	s.mu.Unlock()
	if alreadyClosed {
		return
	}
	s.setStage(StageFailed)
	s.events.emit(Event{Kind: EventDisconnected, Err: err})
	s.closeOnce.Do(func() { close(s.closed) })
}

// On registers a handler for events of kind. The returned Subscription's
// Cancel removes it; it is safe to call from within the handler itself.
func (s *Session) On(kind EventKind, h Handler) *Subscription { return s.events.on(kind, h) }

// Once registers a handler that fires at most once.
func (s *Session) Once(kind EventKind, h Handler) *Subscription { return s.events.once(kind, h) }

// Close rejects every pending command with session-closed, stops the
// keep-alive, and closes the underlying transport. Idempotent.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.setStage(StageClosed)
		close(s.closed)
		err = s.engine.close()
	})
	return err
}
