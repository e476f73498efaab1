package ftpclient

import (
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/fclairamb/ftpclient/listingparser"
	"github.com/fclairamb/ftpclient/localfs"
)

// rawTransferKind selects which byte-moving role the data connection plays.
type rawTransferKind int

// Supported data-connection roles.
const (
	rawTransferList rawTransferKind = iota
	rawTransferDownload
	rawTransferUpload
	rawTransferResumeTest
)

// rawTransferState enumerates the steps of the RawTransfer sequence.
type rawTransferState int

const (
	rtInit rawTransferState = iota
	rtType
	rtPortPasv
	rtRest
	rtTransferCmd
	rtWaitFinish      // waiting for the first reply to the transfer command
	rtWaitTransfer    // 1yz received; waiting for either the final reply or TransferEnd
	rtWaitTransferPre // TransferEnd already happened; waiting for the final reply
	rtWaitSocket      // final reply already arrived; waiting for TransferEnd
)

// rawTransferArgs carries everything a RawTransfer operation needs to move
// bytes for one command, supplied by the FileTransfer/List operation that
// pushes it.
type rawTransferArgs struct {
	Command  string // "RETR", "STOR", "APPE", "LIST", "MLSD"
	Argument string // the bare command argument, already formatted by the caller

	Kind rawTransferKind
	Ctx  *TransferContext // shared with the parent; ResumeOffset/Binary read here

	// Local exposes the local filesystem side of a Download/Upload/
	// ResumeTest transfer. Unused for List.
	Local *localfs.Transfer

	// Parser receives bytes for a List transfer. Unused otherwise.
	Parser *listingparser.Parser

	Direction TransferDirection
}

// rawTransferOp implements RawTransfer: it owns the TransferSocket for the
// lifetime of one data-channel exchange, negotiating PASV/EPSV or PORT/EPRT,
// issuing REST when resuming, sending the transfer command, and reconciling
// the control-channel reply with the TransferSocket's own completion event.
type rawTransferOp struct {
	args  rawTransferArgs
	state rawTransferState

	usingActive  bool
	triedPassive bool
	triedActive  bool

	externalIP    string
	externalIPSet bool

	finalReply Reply
	finalOk    bool

	endReason       TransferEndReason
	bytesMoved      int64
	transferErr     error
	haveTransferEnd bool

	parsedEntries []listingparser.Entry
}

func newRawTransferOp(args rawTransferArgs) *rawTransferOp {
	return &rawTransferOp{args: args}
}

// ParsedEntries is read by List after the op completes successfully.
func (o *rawTransferOp) ParsedEntries() []listingparser.Entry { return o.parsedEntries }

// BytesMoved is read by FileTransfer/List to report how much data actually
// moved, independent of success or failure.
func (o *rawTransferOp) BytesMoved() int64 { return o.bytesMoved }

func (o *rawTransferOp) Send(ctx opContext) (Result, Status, error) {
	cs := ctx.cs

	switch o.state {
	case rtInit:
		o.usingActive = o.wantsActive(cs)
		o.state = rtType

		return ResultContinue, StatusOk, nil

	case rtType:
		if cs.lastTypeBinary == o.args.Ctx.Binary {
			o.state = rtPortPasv

			return ResultContinue, StatusOk, nil
		}

		cmd := "TYPE A"
		if o.args.Ctx.Binary {
			cmd = "TYPE I"
		}

		if err := cs.sendLine(cmd); err != nil {
			return ResultError, StatusError, err
		}

		return ResultWouldBlock, StatusOk, nil

	case rtPortPasv:
		return o.sendPortPasv(cs)

	case rtRest:
		if err := cs.sendLine("REST " + strconv.FormatInt(o.args.Ctx.ResumeOffset, 10)); err != nil {
			return ResultError, StatusError, err
		}

		return ResultWouldBlock, StatusOk, nil

	case rtTransferCmd:
		if err := cs.sendLine(o.args.Command + " " + o.args.Argument); err != nil {
			return ResultError, StatusError, err
		}

		o.args.Ctx.TransferCommandSent = true
		o.state = rtWaitFinish

		return ResultWouldBlock, StatusOk, nil

	default:
		return ResultWouldBlock, StatusOk, nil
	}
}

// wantsActive decides the initial transfer-mode attempt from server
// preference and engine configuration; fallback between modes is driven by
// maybeFallback below.
func (o *rawTransferOp) wantsActive(cs *ControlSocket) bool {
	switch cs.server.PassivePreference {
	case PassiveModePreferActive:
		return true
	case PassiveModePreferPassive:
		return false
	default:
		return !cs.engine.Config.UsePassive
	}
}

func (o *rawTransferOp) sendPortPasv(cs *ControlSocket) (Result, Status, error) {
	if o.usingActive {
		return o.sendActive(cs)
	}

	return o.sendPassive(cs)
}

func (o *rawTransferOp) sendPassive(cs *ControlSocket) (Result, Status, error) {
	o.triedPassive = true

	cmd := "PASV"
	if isIPv6Addr(cs.conn.RemoteAddr()) {
		cmd = "EPSV"
	}

	if err := cs.sendLine(cmd); err != nil {
		return ResultError, StatusError, err
	}

	return ResultWouldBlock, StatusOk, nil
}

func (o *rawTransferOp) sendActive(cs *ControlSocket) (Result, Status, error) {
	if cs.engine.Config.ExternalIPMode == ExternalIPResolverMode && !o.externalIPSet {
		if skip, localIP := skipResolverForLAN(cs); skip {
			o.externalIP = localIP
			o.externalIPSet = true

			return ResultContinue, StatusOk, nil
		}

		o.beginResolveExternalIP(cs)

		return ResultWouldBlock, StatusOk, nil
	}

	if !o.externalIPSet {
		o.externalIP = o.resolveExternalIPSync(cs)
		o.externalIPSet = true
	}

	var tlsConfig *tls.Config
	if cs.protectDataChannel {
		tlsConfig = cs.dataTLSConfig()
	}

	socket, port, err := NewActiveTransferSocket(cs.engine.Config, tlsConfig)
	if err != nil {
		return ResultError, StatusError, err
	}

	cs.transfer = socket
	o.triedActive = true

	var cmd string
	if isIPv6Literal(o.externalIP) {
		cmd = fmt.Sprintf("EPRT |2|%s|%d|", o.externalIP, port)
	} else {
		cmd = "PORT " + formatPortOctets(o.externalIP, port)
	}

	if err := cs.sendLine(cmd); err != nil {
		cs.transfer.Close()
		cs.transfer = nil

		return ResultError, StatusError, err
	}

	return ResultWouldBlock, StatusOk, nil
}

// beginResolveExternalIP dispatches the one-shot resolver task off the
// event-loop goroutine and posts the result back through cs.submit, so the
// op can return ResultWouldBlock without blocking the loop on an HTTP call.
func (o *rawTransferOp) beginResolveExternalIP(cs *ControlSocket) {
	resolver := cs.resolver
	if resolver == nil {
		resolver = NewExternalIPResolver(cs.engine.Config.ExternalIPResolverURL)
		cs.resolver = resolver
	}

	go func() {
		ip, err := resolver.Resolve(cs.ctx2(), false)

		select {
		case cs.submit <- func() {
			if !cs.isTopOfStack(o) {
				return
			}

			if err != nil {
				ip = localAddrHost(cs.conn)
			}

			o.externalIP = ip
			o.externalIPSet = true
			cs.sendNextCommand()
		}:
		case <-cs.done:
		}
	}()
}

// resolveExternalIPSync handles ExternalIPNone/ExternalIPLiteral, which need
// no network round-trip.
func (o *rawTransferOp) resolveExternalIPSync(cs *ControlSocket) string {
	if cs.engine.Config.ExternalIPMode == ExternalIPLiteral && cs.engine.Config.ExternalIP != "" {
		return cs.engine.Config.ExternalIP
	}

	return localAddrHost(cs.conn)
}

// skipResolverForLAN implements the design note on the original source's
// "goto getLocalIP": when the peer is a LAN address and NoExternalOnLocal is
// set, skip the resolver entirely and use the control connection's local
// address, expressed as an early return instead of a goto.
func skipResolverForLAN(cs *ControlSocket) (bool, string) {
	if !cs.engine.Config.NoExternalOnLocal {
		return false, ""
	}

	host, _, err := net.SplitHostPort(cs.conn.RemoteAddr().String())
	if err != nil {
		return false, ""
	}

	ip := net.ParseIP(host)
	if ip == nil || !ip.IsPrivate() {
		return false, ""
	}

	return true, localAddrHost(cs.conn)
}

func localAddrHost(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.LocalAddr().String())
	if err != nil {
		return conn.LocalAddr().String()
	}

	return host
}

func isIPv6Addr(addr net.Addr) bool {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return false
	}

	ip := net.ParseIP(host)

	return ip != nil && ip.To4() == nil
}

func isIPv6Literal(s string) bool {
	ip := net.ParseIP(s)

	return ip != nil && ip.To4() == nil
}

func formatPortOctets(host string, port int) string {
	ip := net.ParseIP(host).To4()
	if ip == nil {
		ip = net.IPv4(127, 0, 0, 1).To4()
	}

	return fmt.Sprintf("%d,%d,%d,%d,%d,%d", ip[0], ip[1], ip[2], ip[3], port>>8, port&0xff)
}

func (o *rawTransferOp) ParseResponse(ctx opContext, reply Reply) (Result, Status, error) {
	cs := ctx.cs

	switch o.state {
	case rtType:
		if reply.Class() != 2 {
			return ResultError, StatusError, NewProtocolError("TYPE failed: "+reply.FullText(), StatusError, nil)
		}

		cs.lastTypeBinary = o.args.Ctx.Binary
		o.state = rtPortPasv

		return ResultContinue, StatusOk, nil

	case rtPortPasv:
		return o.parsePortPasvReply(cs, reply)

	case rtRest:
		if !reply.Positive() {
			return o.failPreTransfer(NewProtocolError("REST failed: "+reply.FullText(), StatusError, nil))
		}

		o.state = rtTransferCmd

		return ResultContinue, StatusOk, nil

	case rtWaitFinish:
		return o.parseWaitFinish(cs, reply)

	case rtWaitTransfer:
		return o.parseWaitTransfer(reply)

	case rtWaitTransferPre:
		return o.parseWaitTransferPre(reply)

	default:
		return ResultWouldBlock, StatusOk, nil
	}
}

func (o *rawTransferOp) failPreTransfer(err error) (Result, Status, error) {
	return ResultError, StatusError, NewTransferError(err.Error(), TransferEndPreTransferCommandFailure, err)
}

// parsePortPasvReply handles the PASV/EPSV/PORT/EPRT reply: on failure, it
// falls back to the other transfer mode if configured to allow it.
func (o *rawTransferOp) parsePortPasvReply(cs *ControlSocket, reply Reply) (Result, Status, error) {
	if o.usingActive {
		if !reply.Positive() {
			return o.maybeFallback(cs)
		}

		o.state = nextAfterPortPasv(o.args.Ctx)

		return ResultContinue, StatusOk, nil
	}

	if !reply.Positive() {
		return o.maybeFallback(cs)
	}

	host, port, err := parsePassiveReply(reply)
	if err != nil {
		return o.maybeFallback(cs)
	}

	if host == "" {
		host, _, _ = net.SplitHostPort(cs.conn.RemoteAddr().String())
	} else if !isRoutable(host) {
		switch cs.engine.Config.PasvReplyFallback {
		case PasvReplyFailOnUnroutable:
			return o.maybeFallback(cs)
		case PasvReplyAlwaysUsePeer:
			host, _, _ = net.SplitHostPort(cs.conn.RemoteAddr().String())
		default:
			if peerHost, _, perr := net.SplitHostPort(cs.conn.RemoteAddr().String()); perr == nil && isRoutable(peerHost) {
				host = peerHost
			}
		}
	}

	var tlsConfig *tls.Config
	if cs.protectDataChannel {
		tlsConfig = cs.dataTLSConfig()
	}

	cs.transfer = NewPassiveTransferSocket(host, port, tlsConfig)

	o.state = nextAfterPortPasv(o.args.Ctx)

	return ResultContinue, StatusOk, nil
}

// maybeFallback switches to the other transfer mode once, if configured to
// allow it; otherwise the operation fails outright.
func (o *rawTransferOp) maybeFallback(cs *ControlSocket) (Result, Status, error) {
	if !cs.engine.Config.AllowTransferModeFallback {
		return o.failPreTransfer(NewProtocolError("transfer mode negotiation failed", StatusError, nil))
	}

	if o.usingActive && !o.triedPassive {
		o.usingActive = false
		o.state = rtPortPasv

		return ResultContinue, StatusOk, nil
	}

	if !o.usingActive && !o.triedActive {
		o.usingActive = true
		o.state = rtPortPasv

		return ResultContinue, StatusOk, nil
	}

	return o.failPreTransfer(NewProtocolError("transfer mode negotiation failed on both passive and active", StatusError, nil))
}

func nextAfterPortPasv(tc *TransferContext) rawTransferState {
	if tc.ResumeOffset != 0 {
		return rtRest
	}

	return rtTransferCmd
}

func (o *rawTransferOp) parseWaitFinish(cs *ControlSocket, reply Reply) (Result, Status, error) {
	if reply.Preliminary() {
		o.state = rtWaitTransfer
		o.beginIO(cs)

		return ResultWouldBlock, StatusOk, nil
	}

	o.finalReply = reply
	o.finalOk = reply.Positive()

	if !o.finalOk {
		if cs.transfer != nil {
			cs.transfer.Close()
			cs.transfer = nil
		}

		return ResultError, StatusError, NewTransferError("transfer command failed: "+reply.FullText(), TransferEndCommandFailureImmediate, nil)
	}

	o.state = rtWaitSocket
	o.beginIO(cs)

	return ResultWouldBlock, StatusOk, nil
}

func (o *rawTransferOp) parseWaitTransfer(reply Reply) (Result, Status, error) {
	if reply.Preliminary() {
		return ResultWouldBlock, StatusOk, nil
	}

	o.finalReply = reply
	o.finalOk = reply.Positive()
	o.state = rtWaitSocket

	return ResultWouldBlock, StatusOk, nil
}

func (o *rawTransferOp) parseWaitTransferPre(reply Reply) (Result, Status, error) {
	if reply.Preliminary() {
		return ResultWouldBlock, StatusOk, nil
	}

	o.finalReply = reply
	o.finalOk = reply.Positive()

	return o.tryComplete()
}

// TransferEnd is invoked by ControlSocket.dispatchTransferEnd when the
// background byte-moving goroutine finishes.
func (o *rawTransferOp) TransferEnd(ctx opContext, reason TransferEndReason, bytesTransferred int64, err error) (Result, Status, error) {
	ctx.cs.transfer = nil

	o.haveTransferEnd = true
	o.endReason = reason
	o.bytesMoved = bytesTransferred
	o.transferErr = err

	switch o.state {
	case rtWaitTransfer:
		o.state = rtWaitTransferPre

		return ResultWouldBlock, StatusOk, nil
	case rtWaitSocket:
		return o.tryComplete()
	default:
		return ResultWouldBlock, StatusOk, nil
	}
}

// tryComplete is called once both the final control reply and the
// TransferEnd event are in hand; the transfer-end reason takes priority over
// a merely-positive final reply.
func (o *rawTransferOp) tryComplete() (Result, Status, error) {
	if o.endReason != TransferEndSuccessful {
		return ResultError, o.endReason.Status(), NewTransferError("transfer failed", o.endReason, o.transferErr)
	}

	if !o.finalOk {
		return ResultError, StatusError, NewProtocolError("transfer command failed: "+o.finalReply.FullText(), StatusError, nil)
	}

	return ResultOk, StatusOk, nil
}

// beginIO opens the data connection (dialing for passive, accepting for
// active) and starts the background byte-moving goroutine.
func (o *rawTransferOp) beginIO(cs *ControlSocket) {
	socket := cs.transfer

	go func() {
		conn, err := socket.Open(cs.engine.Config.ConnectTimeout)
		if err != nil {
			o.postTransferEnd(cs, socket, TransferEndFailure, 0, err)

			return
		}

		reason, n, ioErr := o.runIO(cs, conn)
		o.postTransferEnd(cs, socket, reason, n, ioErr)
	}()
}

func (o *rawTransferOp) postTransferEnd(cs *ControlSocket, socket *TransferSocket, reason TransferEndReason, n int64, err error) {
	select {
	case cs.transferEnd <- transferEndEvent{socket: socket, reason: reason, bytesTransferred: n, err: err}:
	case <-cs.done:
	}
}

// runIO moves bytes between conn and the local filesystem/parser side,
// according to the operation's Kind, reporting progress via the host
// Notifier every progressInterval.
func (o *rawTransferOp) runIO(cs *ControlSocket, conn net.Conn) (TransferEndReason, int64, error) {
	defer conn.Close()

	switch o.args.Kind {
	case rawTransferList:
		return o.runList(conn)
	case rawTransferDownload:
		return o.runDownload(cs, conn)
	case rawTransferUpload:
		return o.runUpload(cs, conn)
	default:
		return o.runResumeTest(conn)
	}
}

const progressInterval = 250 * time.Millisecond

func (o *rawTransferOp) runList(conn net.Conn) (TransferEndReason, int64, error) {
	buf := make([]byte, 4096)

	var total int64

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			total += int64(n)
			o.parsedEntries = append(o.parsedEntries, o.args.Parser.Feed(buf[:n])...)
		}

		if err != nil {
			if err == io.EOF {
				o.parsedEntries = append(o.parsedEntries, o.args.Parser.Finish()...)

				return TransferEndSuccessful, total, nil
			}

			return TransferEndFailure, total, err
		}
	}
}

func (o *rawTransferOp) runDownload(cs *ControlSocket, conn net.Conn) (TransferEndReason, int64, error) {
	var src io.Reader = conn
	if !o.args.Ctx.Binary {
		src = newASCIIConverter(conn, convertModeToLF)
	}

	buf := make([]byte, 32*1024)

	var total int64

	lastNotify := time.Now()

	for {
		if err := cs.rateLimiter.WaitDownload(cs.baseCtx, len(buf)); err != nil {
			return TransferEndFailure, total, err
		}

		n, err := src.Read(buf)
		if n > 0 {
			total += int64(n)

			if werr := o.args.Local.Push(buf[:n]); werr != nil {
				return TransferEndFailureCritical, total, werr
			}

			if time.Since(lastNotify) > progressInterval {
				lastNotify = time.Now()
				cs.notifier.TransferProgress(cs.server, TransferStatus{
					Direction:  o.args.Direction,
					BytesSoFar: total,
				})
			}
		}

		if err != nil {
			if err == io.EOF {
				return TransferEndSuccessful, total, nil
			}

			return TransferEndFailure, total, err
		}
	}
}

func (o *rawTransferOp) runUpload(cs *ControlSocket, conn net.Conn) (TransferEndReason, int64, error) {
	var src io.Reader = o.args.Local
	if !o.args.Ctx.Binary {
		src = newASCIIConverter(o.args.Local, convertModeToCRLF)
	}

	buf := make([]byte, 32*1024)

	var total int64

	lastNotify := time.Now()

	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if err := cs.rateLimiter.WaitUpload(cs.baseCtx, n); err != nil {
				return TransferEndFailure, total, err
			}

			if _, werr := conn.Write(buf[:n]); werr != nil {
				return TransferEndFailure, total, werr
			}

			total += int64(n)

			if time.Since(lastNotify) > progressInterval {
				lastNotify = time.Now()
				cs.notifier.TransferProgress(cs.server, TransferStatus{
					Direction:  o.args.Direction,
					BytesSoFar: total,
				})
			}
		}

		if rerr != nil {
			if rerr == io.EOF {
				if tlsConn, ok := conn.(*tls.Conn); ok {
					_ = tlsConn.CloseWrite()
				}

				return TransferEndSuccessful, total, nil
			}

			return TransferEndFailureCritical, total, rerr
		}
	}
}

func (o *rawTransferOp) runResumeTest(conn net.Conn) (TransferEndReason, int64, error) {
	buf := make([]byte, 2)

	n, err := io.ReadFull(conn, buf)
	if n == 1 && err == io.ErrUnexpectedEOF {
		return TransferEndSuccessful, 1, nil
	}

	if err == nil {
		return TransferEndFailedResumeTest, int64(n), nil
	}

	if n == 0 && err == io.EOF {
		return TransferEndFailedResumeTest, 0, nil
	}

	return TransferEndFailedResumeTest, int64(n), err
}

func (o *rawTransferOp) SubcommandResult(ctx opContext, status Status, err error) (Result, Status, error) {
	return ResultOk, status, err
}

// parsePassiveReply extracts the host:port out of a 227/229 reply using
// advSplitN for the comma-separated PASV octets, grounded on
// nieware-goftp's pasv()/epsv(). An EPSV reply carries no host, signalled by
// returning an empty string (the caller substitutes the control peer's IP).
func parsePassiveReply(reply Reply) (string, int, error) {
	text := reply.FullText()

	start := strings.IndexByte(text, '(')
	end := strings.IndexByte(text, ')')

	if start < 0 || end < 0 || end <= start {
		return "", 0, NewProtocolError("malformed PASV/EPSV reply: "+text, StatusError, nil)
	}

	inside := text[start+1 : end]

	if strings.Count(inside, "|") >= 2 {
		fields := strings.Split(inside, "|")

		portStr := fields[len(fields)-2]

		port, err := strconv.Atoi(portStr)
		if err != nil {
			return "", 0, NewProtocolError("malformed EPSV reply: "+text, StatusError, err)
		}

		return "", port, nil
	}

	fields, err := advSplitN(inside, ',', 6)
	if err != nil || len(fields) != 6 {
		return "", 0, NewProtocolError("malformed PASV reply: "+text, StatusError, nil)
	}

	host := strings.Join(fields[:4], ".")

	p1, err1 := strconv.Atoi(strings.TrimSpace(fields[4]))
	p2, err2 := strconv.Atoi(strings.TrimSpace(fields[5]))

	if err1 != nil || err2 != nil {
		return "", 0, NewProtocolError("malformed PASV reply port: "+text, StatusError, nil)
	}

	port := p1*256 + p2
	if port < 1 || port > 65535 {
		return "", 0, NewProtocolError("PASV reply port out of range: "+text, StatusError, nil)
	}

	return host, port, nil
}

// isRoutable reports whether host is a syntactically valid, non-loopback,
// non-unspecified IP literal. A PASV reply handing back 0.0.0.0 or 127/8
// means the server doesn't know its own public address.
func isRoutable(host string) bool {
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}

	return !ip.IsLoopback() && !ip.IsUnspecified()
}
