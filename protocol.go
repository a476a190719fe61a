package radiosession

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cwsl/radiosession/store"
)

// ReplyFrame is the parsed form of one inbound "R<seq>|code|message" line.
type ReplyFrame struct {
	Seq     uint32
	Code    uint32
	Message string
}

// NoticeFrame is the parsed form of one inbound "M<code>|text" asynchronous
// notice line — a server-initiated message not correlated to any request.
type NoticeFrame struct {
	Code uint32
	Text string
}

// StatusFrame mirrors store.StatusFrame at the session boundary; the wire
// parser produces store frames directly so Apply never re-parses them.
type StatusFrame = store.StatusFrame

// Stage reports session lifecycle progress (§6), delivered via EventProgress.
type Stage string

const (
	StageConnecting   Stage = "connecting"
	StageHandshaking  Stage = "handshaking"
	StageSubscribing  Stage = "subscribing"
	StageReady        Stage = "ready"
	StageClosed       Stage = "closed"
	StageFailed       Stage = "failed"
)

const (
	defaultCommandTimeout  = 5 * time.Second
	defaultKeepaliveEvery  = 1 * time.Second
	defaultKeepaliveMisses = 3
	defaultQueueWatermark  = 256
)

// pendingCommand is one in-flight request awaiting its terminal reply.
type pendingCommand struct {
	seq      uint32
	resolve  chan ReplyFrame
	deadline *time.Timer
}

// protocolEngine owns control-channel framing: line read/write, seq
// correlation, keep-alive, and back-pressure. It never interprets scopes or
// attributes — that is the store's job; the engine hands it parsed
// StatusFrame/ReplyFrame/NoticeFrame values.
type protocolEngine struct {
	conn ControlTransport
	w    *bufio.Writer
	wmu  sync.Mutex // serializes writes; reads happen on a single goroutine

	seq int64 // atomic

	mu      sync.Mutex
	pending map[uint32]*pendingCommand
	closed  bool
	closeErr error

	queued int32 // atomic: outbound lines not yet flushed

	commandTimeout  time.Duration
	queueWatermark  int32

	onStatus  func(StatusFrame)
	onNotice  func(NoticeFrame)
	onHandle  func(handle string)
	onVersion func(version string)
	onMessage func(line string)
	onFatal   func(error)

	missedKeepalives int32
	stopKeepalive    chan struct{}
	keepaliveDone    chan struct{}
}

func newProtocolEngine(conn ControlTransport, cfg Config) *protocolEngine {
	timeout := cfg.CommandTimeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	watermark := cfg.QueueWatermark
	if watermark <= 0 {
		watermark = defaultQueueWatermark
	}
	return &protocolEngine{
		conn:           conn,
		w:              bufio.NewWriter(conn),
		pending:        map[uint32]*pendingCommand{},
		commandTimeout: timeout,
		queueWatermark: int32(watermark),
		stopKeepalive:  make(chan struct{}),
		keepaliveDone:  make(chan struct{}),
	}
}

// nextSeq returns the next outbound command sequence number, wrapping at
// 2^31 per §4.1 so it always fits the wire's signed-looking decimal field.
func (p *protocolEngine) nextSeq() uint32 {
	n := atomic.AddInt64(&p.seq, 1)
	return uint32(n % (1 << 31))
}

// send writes one outbound command line and registers a correlation entry
// for its reply. Returns ErrTransportClosed if the engine is shut down, or a
// transport-overrun Error if the outbound queue watermark is exceeded.
func (p *protocolEngine) send(cmd string) (uint32, chan ReplyFrame, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, nil, &Error{Kind: KindTransportError, Err: ErrTransportClosed}
	}
	p.mu.Unlock()

	if atomic.LoadInt32(&p.queued) >= p.queueWatermark {
		return 0, nil, &Error{Kind: KindTransportError, Err: fmt.Errorf("transport-overrun: outbound queue watermark %d exceeded", p.queueWatermark)}
	}

	seq := p.nextSeq()
	resolve := make(chan ReplyFrame, 1)
	pc := &pendingCommand{seq: seq, resolve: resolve}
	pc.deadline = time.AfterFunc(p.commandTimeout, func() { p.timeoutCommand(seq) })

	p.mu.Lock()
	p.pending[seq] = pc
	p.mu.Unlock()

	line := fmt.Sprintf("C%d|%s\n", seq, cmd)
	atomic.AddInt32(&p.queued, 1)
	p.wmu.Lock()
	_, err := p.w.WriteString(line)
	if err == nil {
		err = p.w.Flush()
	}
	p.wmu.Unlock()
	atomic.AddInt32(&p.queued, -1)

	if err != nil {
		p.mu.Lock()
		delete(p.pending, seq)
		p.mu.Unlock()
		pc.deadline.Stop()
		return 0, nil, &Error{Kind: KindTransportError, Err: err}
	}
	return seq, resolve, nil
}

func (p *protocolEngine) timeoutCommand(seq uint32) {
	p.mu.Lock()
	pc, ok := p.pending[seq]
	if ok {
		delete(p.pending, seq)
	}
	p.mu.Unlock()
	if !ok {
		return
	}
	select {
	case pc.resolve <- ReplyFrame{Seq: seq, Code: 0, Message: "command-timeout"}:
	default:
	}
}

// writeLine writes one raw line to the transport and flushes it, serialized
// with send's writes. It registers no correlation entry.
func (p *protocolEngine) writeLine(line string) error {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	if _, err := p.w.WriteString(line); err != nil {
		return err
	}
	return p.w.Flush()
}

// runKeepalive pings the connection every interval and declares the
// transport dead after threshold consecutive misses.
func (p *protocolEngine) runKeepalive(interval time.Duration, threshold int) {
	if interval <= 0 {
		interval = defaultKeepaliveEvery
	}
	if threshold <= 0 {
		threshold = defaultKeepaliveMisses
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer close(p.keepaliveDone)

	for {
		select {
		case <-p.stopKeepalive:
			return
		case <-ticker.C:
			seq, resolve, err := p.send("ping")
			if err != nil {
				return
			}
			go func(seq uint32, resolve chan ReplyFrame) {
				select {
				case reply := <-resolve:
					if reply.Message == "command-timeout" {
						if atomic.AddInt32(&p.missedKeepalives, 1) >= int32(threshold) {
							p.fail(fmt.Errorf("keep-alive: %d consecutive misses", threshold))
						}
						return
					}
					atomic.StoreInt32(&p.missedKeepalives, 0)
				case <-p.stopKeepalive:
				}
				_ = seq
			}(seq, resolve)
		}
	}
}

// readLoop reads and dispatches inbound lines until the transport closes.
// Must run on a single goroutine; it is the only reader of conn.
func (p *protocolEngine) readLoop(scanner *bufio.Scanner) {
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		p.dispatchLine(line)
	}
	p.fail(scanner.Err())
}

// dispatchLine routes one inbound line by its leading tag and, per §4.6,
// reports every wire message to onMessage before (or regardless of) any
// more specific handling.
func (p *protocolEngine) dispatchLine(line string) {
	if p.onMessage != nil {
		p.onMessage(line)
	}
	switch line[0] {
	case 'H':
		if p.onHandle != nil {
			p.onHandle(strings.TrimSpace(line[1:]))
		}
	case 'V':
		if p.onVersion != nil {
			p.onVersion(strings.TrimSpace(line[1:]))
		}
	case 'R':
		p.dispatchReply(line[1:])
	case 'S':
		if sf, ok := parseStatusLine(line[1:]); ok && p.onStatus != nil {
			p.onStatus(sf)
		}
	case 'M':
		if nf, ok := parseNoticeLine(line[1:]); ok && p.onNotice != nil {
			p.onNotice(nf)
		}
	}
}

// dispatchReply parses "seq|code|message" and resolves the matching pending
// command. A reply with no matching seq (already timed out, or a duplicate)
// is silently dropped: exactly one terminal outcome per command is a
// property of the correlation table, not of the wire.
func (p *protocolEngine) dispatchReply(rest string) {
	parts := strings.SplitN(rest, "|", 3)
	if len(parts) == 0 {
		return
	}
	seq64, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return
	}
	var code uint64
	var msg string
	if len(parts) > 1 {
		code, _ = strconv.ParseUint(parts[1], 0, 32)
	}
	if len(parts) > 2 {
		msg = parts[2]
	}

	p.mu.Lock()
	pc, ok := p.pending[uint32(seq64)]
	if ok {
		delete(p.pending, uint32(seq64))
	}
	p.mu.Unlock()
	if !ok {
		return
	}
	pc.deadline.Stop()
	select {
	case pc.resolve <- ReplyFrame{Seq: uint32(seq64), Code: uint32(code), Message: msg}:
	default:
	}
}

// parseStatusLine parses "handle|scope id k=v k=v ...". Identifier and the
// attribute set are whitespace-separated after the scope token, which may
// itself contain a single embedded space ("display pan").
func parseStatusLine(rest string) (StatusFrame, bool) {
	bar := strings.IndexByte(rest, '|')
	if bar < 0 {
		return StatusFrame{}, false
	}
	handle := rest[:bar]
	body := rest[bar+1:]
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return StatusFrame{}, false
	}

	scope := fields[0]
	rest2 := fields[1:]
	if scope == "display" && len(rest2) > 0 && (rest2[0] == "pan" || rest2[0] == "waterfall") {
		scope = scope + " " + rest2[0]
		rest2 = rest2[1:]
	}

	var id string
	attrStart := 0
	if len(rest2) > 0 && !strings.Contains(rest2[0], "=") {
		id = rest2[0]
		attrStart = 1
	}

	attrs := map[string]string{}
	for _, kv := range rest2[attrStart:] {
		eq := strings.IndexByte(kv, '=')
		if eq < 0 {
			continue
		}
		attrs[kv[:eq]] = kv[eq+1:]
	}
	return StatusFrame{Handle: handle, Scope: scope, Identifier: id, Attrs: attrs}, true
}

func parseNoticeLine(rest string) (NoticeFrame, bool) {
	bar := strings.IndexByte(rest, '|')
	if bar < 0 {
		return NoticeFrame{}, false
	}
	code, err := strconv.ParseUint(rest[:bar], 0, 32)
	if err != nil {
		return NoticeFrame{}, false
	}
	return NoticeFrame{Code: uint32(code), Text: rest[bar+1:]}, true
}

// fail marks the engine closed and rejects every pending command with
// session-closed, per §7's "terminal outcome" guarantee surviving shutdown.
func (p *protocolEngine) fail(err error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.closeErr = err
	pending := p.pending
	p.pending = map[uint32]*pendingCommand{}
	p.mu.Unlock()

	close(p.stopKeepalive)

	for _, pc := range pending {
		pc.deadline.Stop()
		select {
		case pc.resolve <- ReplyFrame{Seq: pc.seq, Message: "session-closed"}:
		default:
		}
	}
	if p.onFatal != nil {
		p.onFatal(err)
	}
}

func (p *protocolEngine) close() error {
	p.fail(ErrSessionClosed)
	return p.conn.Close()
}
