package ftpclient

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/fclairamb/go-log"
)

// ControlSocket owns the control connection, line framing, reply
// accounting, keep-alive, operation dispatch, and TLS upgrade for one FTP
// session. It is the client-side mirror of the teacher's clientHandler: a
// single struct holding the socket, a logger, and mutex-guarded shared
// state — except where the teacher answers one command at a time off a flat
// table, this runs a single-goroutine event loop driving an explicit stack
// of operations.
type ControlSocket struct {
	engine   *Engine
	server   Server
	creds    Credentials
	notifier Notifier
	logger   log.Logger

	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer

	framer    lineFramer
	assembler replyAssembler

	stack              opStack
	pendingReplies     int
	repliesToSkip      int
	currentPath        ServerPath
	lastTypeBinary     bool
	protectDataChannel bool
	clientVersion      string
	connected          bool
	disconnected       bool
	currentIsConnect   bool

	tlsSessionCache tls.ClientSessionCache
	tlsResumed      Tri

	transfer *TransferSocket // non-nil only while a RawTransfer op is active

	rateLimiter *RateLimiter
	latency     *LatencyMeter
	resolver    *ExternalIPResolver

	lastCommandAt   time.Time
	keepAlive       *keepAliveTimer
	pendingComplete completeFunc

	baseCtx context.Context

	replies     chan Reply
	sockErr     chan error
	submit      chan func()
	transferEnd chan transferEndEvent
	done        chan struct{}
}

// transferEndEvent is posted by a TransferSocket's byte-moving goroutine
// when it finishes, successfully or not. socket identifies which
// TransferSocket produced it, so a result racing the next operation's own
// transfer socket is dropped rather than misapplied.
type transferEndEvent struct {
	socket           *TransferSocket
	reason           TransferEndReason
	bytesTransferred int64
	err              error
}

// completeFunc fires exactly once the current top-level command finishes.
type completeFunc func(Status, error)

// NewControlSocket builds a ControlSocket bound to engine-wide caches and
// configuration, ready to Connect.
func NewControlSocket(engine *Engine, server Server, notifier Notifier) *ControlSocket {
	if notifier == nil {
		notifier = NoopNotifier{}
	}

	return &ControlSocket{
		engine:          engine,
		server:          server,
		notifier:        notifier,
		logger:          engine.Logger.With("server", server.String()),
		tlsSessionCache: tls.NewLRUClientSessionCache(4),
		rateLimiter:     NewRateLimiter(cs0, cs0),
		latency:         NewLatencyMeter(),
		keepAlive:       newKeepAliveTimer(),
		replies:         make(chan Reply, 16),
		sockErr:         make(chan error, 1),
		submit:          make(chan func()),
		transferEnd:     make(chan transferEndEvent, 1),
		done:            make(chan struct{}),
	}
}

// cs0 spells out that the rate limiter starts unlimited in both directions;
// named instead of a bare 0 to read clearly at the call site above.
const cs0 = 0

func (cs *ControlSocket) ctx() opContext { return opContext{cs: cs} }

// Connect dials the server, optionally performs an implicit TLS handshake,
// starts the event loop, and drives the Logon operation to completion.
func (cs *ControlSocket) Connect(ctx context.Context, creds Credentials) (Status, error) {
	cs.creds = creds
	cs.baseCtx = ctx

	dialer := &net.Dialer{Timeout: cs.engine.Config.ConnectTimeout, Control: dialerControl}

	addr := fmt.Sprintf("%s:%d", cs.server.Host, cs.server.Port)

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return StatusError | StatusCriticalError | StatusDisconnected, err
	}

	if cs.server.Protocol == ProtocolFTPS {
		tlsConn := tls.Client(conn, cs.clientTLSConfig())
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()

			return StatusError | StatusCriticalError | StatusDisconnected, err
		}

		if !cs.verifyPeer(tlsConn) {
			tlsConn.Close()

			return StatusError | StatusCriticalError | StatusDisconnected, fmt.Errorf("certificate not trusted")
		}

		conn = tlsConn
	}

	cs.conn = conn
	cs.reader = bufio.NewReaderSize(conn, 4096)
	cs.writer = bufio.NewWriter(conn)
	cs.connected = true
	cs.currentPath = ServerPath{}
	cs.lastTypeBinary = false

	// The banner is sent unsolicited, so it's accounted for here rather than
	// by a sendLine call: logonWelcome's Send issues nothing and waits for
	// this slot to drain.
	cs.pendingReplies = 1

	go cs.readLoop()
	go cs.loop()

	return cs.submitAndWait(true, newLogonOp())
}

// Close tears down the control connection. The engine never reconnects a
// closed control socket (Non-goal: no control-connection resumption).
func (cs *ControlSocket) Close() error {
	cs.disconnected = true
	cs.connected = false

	close(cs.done)

	if cs.conn != nil {
		return cs.conn.Close()
	}

	return nil
}

// Cancel tears down the current operation stack without closing the
// connection: subsequent replies are discarded until repliesToSkip drains,
// at which point idle keep-alive resumes.
func (cs *ControlSocket) Cancel() {
	cs.submit <- func() {
		if cs.transfer != nil {
			cs.transfer.Close()
			cs.transfer = nil
		}

		cs.stack.reset()
		cs.repliesToSkip = cs.pendingReplies

		if cs.pendingComplete != nil {
			pc := cs.pendingComplete
			cs.pendingComplete = nil
			pc(StatusError|StatusCanceled, ErrCanceled)
		}
	}
}

// readLoop reads bytes off the connection, frames lines, assembles replies,
// and forwards each complete Reply to the event loop. It runs on its own
// goroutine for the lifetime of the connection, mirroring the teacher's
// separation between network I/O and protocol handling.
func (cs *ControlSocket) readLoop() {
	buf := make([]byte, 4096)

	for {
		n, err := cs.reader.Read(buf)
		if n > 0 {
			for _, line := range cs.framer.feed(buf[:n]) {
				decoded := decodeIncoming(line, cs.activeEncoding())

				reply, aerr := cs.assembler.feed(decoded)
				if aerr == errIncompleteReply {
					continue
				}

				if aerr != nil {
					// A line that isn't a valid "ddd..." reply almost always
					// means the peer isn't speaking FTP at all (e.g. an SSH
					// banner on a misconfigured port); treat it the same as a
					// transport failure rather than hang waiting for a reply
					// that will never parse.
					select {
					case cs.sockErr <- NewProtocolError("unparseable reply: "+decoded, StatusCriticalError, aerr):
					case <-cs.done:
					}

					return
				}

				select {
				case cs.replies <- reply:
				case <-cs.done:
					return
				}
			}
		}

		if err != nil {
			select {
			case cs.sockErr <- err:
			case <-cs.done:
			}

			return
		}
	}
}

// loop is the engine's single-goroutine event loop: every mutation of
// ControlSocket's protocol state happens here, so operations never need
// their own locking.
func (cs *ControlSocket) loop() {
	for {
		var keepAliveC <-chan time.Time
		if t := cs.keepAlive.channel(); t != nil {
			keepAliveC = t
		}

		select {
		case reply := <-cs.replies:
			cs.dispatchReply(reply)
		case err := <-cs.sockErr:
			cs.handleSocketError(err)

			return
		case fn := <-cs.submit:
			fn()
		case ev := <-cs.transferEnd:
			cs.dispatchTransferEnd(ev)
		case <-keepAliveC:
			cs.fireKeepAlive()
		case <-cs.done:
			return
		}
	}
}

// submitAndWait posts a top-level command to the event loop and blocks the
// calling goroutine until it completes.
func (cs *ControlSocket) submitAndWait(isConnect bool, op OpData) (Status, error) {
	type outcome struct {
		status Status
		err    error
	}

	resultCh := make(chan outcome, 1)

	cs.submit <- func() {
		cs.currentIsConnect = isConnect
		cs.keepAlive.stop()
		cs.pendingComplete = func(status Status, err error) {
			resultCh <- outcome{status, err}
		}
		cs.stack.push(op)
		cs.sendNextCommand()
	}

	r := <-resultCh

	return r.status, r.err
}

// sendNextCommand repeatedly calls Send on the top of the stack until it
// returns ResultWouldBlock, pops on ResultOk, or fails on ResultError.
func (cs *ControlSocket) sendNextCommand() {
	for {
		top := cs.stack.top()
		if top == nil {
			return
		}

		result, status, err := top.Send(cs.ctx())

		switch result {
		case ResultWouldBlock:
			return
		case ResultContinue:
			continue
		case ResultOk, ResultError:
			cs.afterOpFinished(result, status, err)

			return
		}
	}
}

// dispatchReply delivers a complete Reply to the top-of-stack operation,
// honoring repliesToSkip and the pendingReplies invariant.
func (cs *ControlSocket) dispatchReply(reply Reply) {
	if cs.repliesToSkip > 0 {
		if !reply.Preliminary() {
			cs.repliesToSkip--
			cs.latency.Stop()
		}

		return
	}

	if !reply.Preliminary() {
		cs.pendingReplies--
		cs.latency.Stop()
	}

	top := cs.stack.top()
	if top == nil {
		return
	}

	result, status, err := top.ParseResponse(cs.ctx(), reply)
	cs.handleStepResult(result, status, err)
}

// dispatchTransferEnd delivers a TransferSocket's background byte-moving
// result back into the single-threaded loop. ev.socket is compared against
// the current transfer socket rather than trusted outright, since the
// goroutine that produced ev may have raced a Cancel/reset that already
// replaced or cleared cs.transfer.
func (cs *ControlSocket) dispatchTransferEnd(ev transferEndEvent) {
	if ev.socket != cs.transfer {
		return
	}

	top := cs.stack.top()
	if top == nil {
		return
	}

	ta, ok := top.(transferAware)
	if !ok {
		return
	}

	result, status, err := ta.TransferEnd(cs.ctx(), ev.reason, ev.bytesTransferred, ev.err)
	cs.handleStepResult(result, status, err)
}

// isTopOfStack reports whether op is still the active operation. Used by
// callbacks posted through cs.submit from background goroutines (external
// IP resolution, transfer completion) to avoid mutating an operation that
// has already been popped or reset.
func (cs *ControlSocket) isTopOfStack(op OpData) bool {
	return cs.stack.top() == op
}

func (cs *ControlSocket) handleStepResult(result Result, status Status, err error) {
	switch result {
	case ResultOk, ResultError:
		cs.afterOpFinished(result, status, err)
	case ResultContinue:
		cs.sendNextCommand()
	case ResultWouldBlock:
	}
}

// afterOpFinished pops a finished operation, propagates its result to the
// new top of stack via SubcommandResult, or — if the stack is now empty —
// completes the whole command.
func (cs *ControlSocket) afterOpFinished(result Result, status Status, err error) {
	if result == ResultError {
		cs.resetOperation(status, err)

		return
	}

	cs.stack.pop()

	parent := cs.stack.top()
	if parent == nil {
		cs.completeCommand(status, err)

		return
	}

	r2, st2, err2 := parent.SubcommandResult(cs.ctx(), status, err)
	cs.handleStepResult(r2, st2, err2)
}

// resetOperation tears down the whole operation stack on failure. If the
// failing command was the connect/logon operation, the connection is closed
// outright (it never had a usable session); otherwise only the operation
// stack is reset and the control connection stays up for the next command
// (design note #4: connect errors close, operation errors reset).
func (cs *ControlSocket) resetOperation(status Status, err error) {
	if cs.transfer != nil {
		cs.transfer.Close()
		cs.transfer = nil
	}

	cs.stack.reset()
	cs.repliesToSkip = cs.pendingReplies

	if cs.currentIsConnect || status.Has(StatusDisconnected) {
		cs.connected = false
		cs.disconnected = true

		if cs.conn != nil {
			cs.conn.Close()
		}
	}

	cs.notifier.OperationCompleted(cs.server, status, err)

	if cs.pendingComplete != nil {
		pc := cs.pendingComplete
		cs.pendingComplete = nil
		pc(status, err)
	}
}

func (cs *ControlSocket) completeCommand(status Status, err error) {
	cs.lastCommandAt = time.Now()
	cs.notifier.OperationCompleted(cs.server, status, err)
	cs.keepAlive.arm(30 * time.Second)

	if cs.pendingComplete != nil {
		pc := cs.pendingComplete
		cs.pendingComplete = nil
		pc(status, err)
	}
}

func (cs *ControlSocket) handleSocketError(err error) {
	cs.resetOperation(StatusError|StatusCriticalError|StatusDisconnected, err)
}

// fireKeepAlive sends one of NOOP/TYPE/PWD at random when idle and
// discards its reply via repliesToSkip.
func (cs *ControlSocket) fireKeepAlive() {
	if !cs.stack.empty() || cs.pendingReplies > 0 {
		return
	}

	if time.Since(cs.lastCommandAt) > 30*time.Minute {
		return
	}

	if !cs.engine.Config.SendKeepAlive {
		return
	}

	if err := cs.sendLine(pickKeepAliveCommand(cs.lastTypeBinary)); err != nil {
		return
	}

	cs.repliesToSkip++
	cs.keepAlive.arm(30 * time.Second)
}

// sendLine writes one command line to the control connection and tracks
// pendingReplies and round-trip latency. Called by operations through
// opContext.
func (cs *ControlSocket) sendLine(line string) error {
	encoded, err := encodeOutgoing(line, cs.activeEncoding())
	if err != nil {
		return NewProtocolError("could not encode command", StatusError, err)
	}

	cs.latency.Start()
	cs.pendingReplies++

	if _, err := cs.writer.WriteString(encoded + "\r\n"); err != nil {
		return err
	}

	return cs.writer.Flush()
}

func (cs *ControlSocket) activeEncoding() encodingPolicy {
	utf8 := cs.engine.Capabilities.hasUTF8(cs.server.Key())

	return encodingPolicyFor(cs.server, utf8)
}

func (s *ServerCapabilities) hasUTF8(key ServerKey) bool {
	state, _ := s.Get(key, CapUTF8)

	return state == TriYes
}
