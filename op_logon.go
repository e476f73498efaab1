package ftpclient

import (
	"strings"
)

// logonState enumerates the steps of the Logon sequence in the order they
// run. Not every connection visits every state: AUTH only runs for
// ProtocolFTPES, ACCT only when the server asks for it after PASS, PBSZ/PROT
// only for FTPS/FTPES, OptsUtf8/OptsMlst only when the matching capability
// was negotiated.
type logonState int

const (
	logonWelcome logonState = iota
	logonAuthTLS
	logonUser
	logonPass
	logonAcct
	logonSyst
	logonFeat
	logonOptsUtf8
	logonPbsz
	logonProt
	logonOptsMlst
	logonPwd
	logonPostLogin
	logonDone
)

// logonOp drives AUTH TLS/SSL (explicit mode only), USER/PASS/ACCT, SYST,
// FEAT, OPTS UTF8, PBSZ/PROT, OPTS MLST, PWD, and any server-specific
// post-login commands, populating the ServerCapabilities cache and the
// ControlSocket's currentPath along the way. Pushed once, directly, as the
// bottom of a fresh ControlSocket's operation stack.
type logonOp struct {
	state        logonState
	postLoginIdx int
	triedAuthSSL bool
}

func newLogonOp() *logonOp {
	return &logonOp{}
}

func (o *logonOp) Send(ctx opContext) (Result, Status, error) {
	cs := ctx.cs

	switch o.state {
	case logonWelcome:
		// Nothing to send: the banner arrives unsolicited. Connect already
		// primed pendingReplies for it.
		return ResultWouldBlock, StatusOk, nil

	case logonAuthTLS:
		if cs.server.Protocol != ProtocolFTPES {
			o.state = logonUser

			return ResultContinue, StatusOk, nil
		}

		cmd := "AUTH TLS"
		if o.triedAuthSSL {
			cmd = "AUTH SSL"
		}

		if err := cs.sendLine(cmd); err != nil {
			return ResultError, StatusError | StatusCriticalError | StatusDisconnected, err
		}

		return ResultWouldBlock, StatusOk, nil

	case logonUser:
		user := o.username(cs)
		if err := cs.sendLine("USER " + user); err != nil {
			return ResultError, StatusError | StatusCriticalError | StatusDisconnected, err
		}

		return ResultWouldBlock, StatusOk, nil

	case logonPass:
		pass, ok := o.password(cs)
		if !ok {
			return ResultError, StatusError | StatusCriticalError | StatusPasswordFailed, NewProtocolError("no password available", StatusPasswordFailed, nil)
		}

		if err := cs.sendLine("PASS " + pass); err != nil {
			return ResultError, StatusError | StatusCriticalError | StatusDisconnected, err
		}

		return ResultWouldBlock, StatusOk, nil

	case logonAcct:
		if err := cs.sendLine("ACCT " + cs.creds.Account); err != nil {
			return ResultError, StatusError | StatusCriticalError | StatusDisconnected, err
		}

		return ResultWouldBlock, StatusOk, nil

	case logonSyst:
		if err := cs.sendLine("SYST"); err != nil {
			return ResultError, StatusError, err
		}

		return ResultWouldBlock, StatusOk, nil

	case logonFeat:
		if err := cs.sendLine("FEAT"); err != nil {
			return ResultError, StatusError, err
		}

		return ResultWouldBlock, StatusOk, nil

	case logonOptsUtf8:
		if !o.wantsOptsUtf8(cs) {
			o.state = logonPbsz

			return ResultContinue, StatusOk, nil
		}

		if err := cs.sendLine("OPTS UTF8 ON"); err != nil {
			return ResultError, StatusError, err
		}

		return ResultWouldBlock, StatusOk, nil

	case logonPbsz:
		if !cs.server.Protocol.usesTLS() {
			o.state = logonOptsMlst

			return ResultContinue, StatusOk, nil
		}

		if err := cs.sendLine("PBSZ 0"); err != nil {
			return ResultError, StatusError, err
		}

		return ResultWouldBlock, StatusOk, nil

	case logonProt:
		if err := cs.sendLine("PROT P"); err != nil {
			return ResultError, StatusError, err
		}

		return ResultWouldBlock, StatusOk, nil

	case logonOptsMlst:
		if !o.wantsOptsMlst(cs) {
			o.state = logonPwd

			return ResultContinue, StatusOk, nil
		}

		if err := cs.sendLine("OPTS MLST type;size;modify;perm;unique;UNIX.mode;UNIX.owner;UNIX.group;UNIX.uid;UNIX.gid;"); err != nil {
			return ResultError, StatusError, err
		}

		return ResultWouldBlock, StatusOk, nil

	case logonPwd:
		if err := cs.sendLine("PWD"); err != nil {
			return ResultError, StatusError, err
		}

		return ResultWouldBlock, StatusOk, nil

	case logonPostLogin:
		cmds := cs.server.PostLoginCommands
		if o.postLoginIdx >= len(cmds) {
			o.state = logonDone

			return ResultContinue, StatusOk, nil
		}

		cmd := cmds[o.postLoginIdx]
		o.postLoginIdx++

		if err := cs.sendLine(cmd); err != nil {
			return ResultError, StatusError, err
		}

		return ResultWouldBlock, StatusOk, nil

	default:
		return ResultOk, StatusOk, nil
	}
}

func (o *logonOp) wantsOptsUtf8(cs *ControlSocket) bool {
	if cs.server.Encoding != EncodingUTF8 && cs.server.Encoding != EncodingAuto {
		return false
	}

	state, _ := cs.engine.Capabilities.Get(cs.server.Key(), CapUTF8)

	return state == TriYes
}

func (o *logonOp) wantsOptsMlst(cs *ControlSocket) bool {
	caps := cs.engine.Capabilities

	mlsd, _ := caps.Get(cs.server.Key(), CapMLSD)
	mlst, _ := caps.Get(cs.server.Key(), CapMLST)

	return mlsd == TriYes || mlst == TriYes
}

func (o *logonOp) username(cs *ControlSocket) string {
	if cs.creds.LogonType == LogonAnonymous {
		return "anonymous"
	}

	return cs.creds.User
}

// password resolves the PASS argument, prompting the host for one when the
// stored Credentials didn't supply it and the logon type allows asking.
func (o *logonOp) password(cs *ControlSocket) (string, bool) {
	switch cs.creds.LogonType {
	case LogonAnonymous:
		return "anonymous@", true
	case LogonAsk, LogonInteractive:
		if cs.creds.Password != "" {
			return cs.creds.Password, true
		}

		return cs.notifier.InteractiveLogin(cs.server, InteractiveLoginPrompt{Field: "password"})
	default:
		return cs.creds.Password, true
	}
}

func (o *logonOp) ParseResponse(ctx opContext, reply Reply) (Result, Status, error) {
	cs := ctx.cs

	switch o.state {
	case logonWelcome:
		return o.parseWelcome(reply)
	case logonAuthTLS:
		return o.parseAuthTLS(cs, reply)
	case logonUser:
		return o.parseUser(reply)
	case logonPass:
		return o.parsePass(reply)
	case logonAcct:
		return o.parseSimpleAdvance(reply, logonSyst)
	case logonSyst:
		return o.parseSyst(cs, reply)
	case logonFeat:
		return o.parseFeat(cs, reply)
	case logonOptsUtf8:
		return o.parseSimpleAdvance(reply, logonPbsz)
	case logonPbsz:
		return o.parsePbsz(reply)
	case logonProt:
		return o.parseProt(cs, reply)
	case logonOptsMlst:
		return o.parseSimpleAdvance(reply, logonPwd)
	case logonPwd:
		return o.parsePwd(cs, reply)
	case logonPostLogin:
		return o.parseSimpleAdvance(reply, logonPostLogin)
	default:
		return ResultOk, StatusOk, nil
	}
}

// parseWelcome checks the server banner for the tell-tale "ssh" prefix a
// misconfigured SFTP-only endpoint sends on an FTP port, failing the
// connection outright rather than attempting USER/PASS against it.
func (o *logonOp) parseWelcome(reply Reply) (Result, Status, error) {
	first := reply.Text
	if len(reply.Lines) > 0 {
		first = reply.Lines[0]
	}

	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(first)), "ssh") {
		return ResultError, StatusError | StatusCriticalError | StatusDisconnected,
			NewProtocolError("server banner looks like SSH, not FTP: "+reply.FullText(), StatusCriticalError, nil)
	}

	o.state = logonAuthTLS

	return ResultContinue, StatusOk, nil
}

func (o *logonOp) parseAuthTLS(cs *ControlSocket, reply Reply) (Result, Status, error) {
	if reply.Class() != 2 {
		if !o.triedAuthSSL {
			o.triedAuthSSL = true

			return ResultContinue, StatusOk, nil
		}

		return ResultError, StatusError | StatusCriticalError | StatusDisconnected,
			NewProtocolError("server rejected AUTH TLS/SSL: "+reply.FullText(), StatusError, nil)
	}

	tlsConn := tlsClientOver(cs.conn, cs.clientTLSConfig())
	if err := tlsConn.HandshakeContext(cs.ctx2()); err != nil {
		return ResultError, StatusError | StatusCriticalError | StatusDisconnected, err
	}

	if !cs.verifyPeer(tlsConn) {
		return ResultError, StatusError | StatusCriticalError | StatusDisconnected,
			NewProtocolError("certificate not trusted", StatusError, nil)
	}

	cs.rewrapConn(tlsConn)
	cs.protectDataChannel = true
	o.state = logonUser

	return ResultContinue, StatusOk, nil
}

func (o *logonOp) parseUser(reply Reply) (Result, Status, error) {
	switch reply.Class() {
	case 2:
		o.state = logonSyst

		return ResultContinue, StatusOk, nil
	case 3:
		o.state = logonPass

		return ResultContinue, StatusOk, nil
	default:
		return ResultError, StatusError | StatusCriticalError | StatusPasswordFailed,
			NewProtocolError("USER rejected: "+reply.FullText(), StatusPasswordFailed, nil)
	}
}

func (o *logonOp) parsePass(reply Reply) (Result, Status, error) {
	switch reply.Class() {
	case 2:
		o.state = logonSyst

		return ResultContinue, StatusOk, nil
	case 3:
		o.state = logonAcct

		return ResultContinue, StatusOk, nil
	default:
		return ResultError, StatusError | StatusCriticalError | StatusPasswordFailed,
			NewProtocolError("PASS rejected: "+reply.FullText(), StatusPasswordFailed, nil)
	}
}

func (o *logonOp) parseSimpleAdvance(reply Reply, next logonState) (Result, Status, error) {
	o.state = next

	if reply.Class() != 2 {
		// SYST/FEAT/OPTS/post-login commands are advisory; a non-2yz reply
		// just means we learned nothing, not that logon failed.
		return ResultContinue, StatusOk, nil
	}

	return ResultContinue, StatusOk, nil
}

func (o *logonOp) parseSyst(cs *ControlSocket, reply Reply) (Result, Status, error) {
	if reply.Class() == 2 {
		cs.engine.Capabilities.Set(cs.server.Key(), CapSyst, TriYes, strings.TrimSpace(reply.Text))
	}

	o.state = logonFeat

	return ResultContinue, StatusOk, nil
}

func (o *logonOp) parseFeat(cs *ControlSocket, reply Reply) (Result, Status, error) {
	if reply.Class() == 2 {
		applyFeatLines(cs.engine.Capabilities, cs.server.Key(), reply.Lines)
	}

	o.state = logonOptsUtf8

	return ResultContinue, StatusOk, nil
}

// parsePbsz advances to PROT on success (FTPS/FTPES only); a non-2xy PBSZ
// just means the server doesn't offer protected data channels, so we skip
// PROT too and fall through to OPTS MLST.
func (o *logonOp) parsePbsz(reply Reply) (Result, Status, error) {
	if reply.Class() != 2 {
		o.state = logonOptsMlst

		return ResultContinue, StatusOk, nil
	}

	o.state = logonProt

	return ResultContinue, StatusOk, nil
}

func (o *logonOp) parseProt(cs *ControlSocket, reply Reply) (Result, Status, error) {
	if reply.Class() == 2 {
		cs.protectDataChannel = true
	}

	o.state = logonOptsMlst

	return ResultContinue, StatusOk, nil
}

func (o *logonOp) parsePwd(cs *ControlSocket, reply Reply) (Result, Status, error) {
	if reply.Class() != 2 {
		return ResultError, StatusError | StatusCriticalError,
			NewProtocolError("PWD failed during logon: "+reply.FullText(), StatusError, nil)
	}

	raw, err := extractPwdQuoted(reply.Text)
	if err != nil {
		return ResultError, StatusError, err
	}

	cs.currentPath = NewServerPath(raw, pathStyleFor(cs.server.Type))
	o.state = logonPostLogin

	return ResultContinue, StatusOk, nil
}

func (o *logonOp) SubcommandResult(ctx opContext, status Status, err error) (Result, Status, error) {
	return ResultOk, status, err
}

// applyFeatLines records every recognized FEAT capability line against the
// engine's capability cache. Unrecognized lines are ignored rather than
// treated as an error: FEAT is explicitly extensible. MLST's fact list
// overrides MLSD's, per spec: both are stored under their own keys with the
// full fact list as the capability's associated value, but MLST having been
// seen at all means OPTS MLST should use its facts, which parsePbsz/
// parseProt/wantsOptsMlst read back via CapMLST/CapMLSD.
func applyFeatLines(caps *ServerCapabilities, key ServerKey, lines []string) {
	mlsdOrMlstSeen := false

	for _, rawLine := range lines {
		line := strings.TrimSpace(rawLine)
		name := strings.ToUpper(strings.SplitN(line, " ", 2)[0])

		var facts string
		if idx := strings.IndexByte(line, ' '); idx >= 0 {
			facts = strings.TrimSpace(line[idx+1:])
		}

		switch {
		case name == "UTF8":
			caps.Set(key, CapUTF8, TriYes, "")
		case name == "CLNT":
			caps.Set(key, CapCLNT, TriYes, "")
		case name == "MLSD":
			caps.Set(key, CapMLSD, TriYes, facts)
			mlsdOrMlstSeen = true
		case name == "MLST":
			caps.Set(key, CapMLST, TriYes, facts)
			mlsdOrMlstSeen = true
		case name == "MFMT":
			caps.Set(key, CapMFMT, TriYes, "")
		case name == "MDTM":
			caps.Set(key, CapMDTM, TriYes, "")
		case name == "SIZE":
			caps.Set(key, CapSIZE, TriYes, "")
		case name == "TVFS":
			caps.Set(key, CapTVFS, TriYes, "")
		case name == "EPSV":
			caps.Set(key, CapEPSV, TriYes, "")
		case name == "REST" && strings.Contains(strings.ToUpper(line), "STREAM"):
			caps.Set(key, CapRestStream, TriYes, "")
		case strings.HasPrefix(name, "MODE") && strings.Contains(strings.ToUpper(line), "Z"):
			caps.Set(key, CapModeZ, TriYes, "")
		}
	}

	// The presence of MLSD or MLST forces UTC timezone bookkeeping; recorded
	// here so ChangeDir/List never need to re-derive it from FEAT text.
	if mlsdOrMlstSeen {
		caps.Set(key, CapForceUTCTimezone, TriYes, "")
	}
}

// extractPwdQuoted pulls the quoted path out of a PWD 257 reply, e.g.
// `257 "/home/user" is the current directory`, unescaping doubled quotes
// per RFC 959.
func extractPwdQuoted(text string) (string, error) {
	first := strings.IndexByte(text, '"')
	if first < 0 {
		return "", NewProtocolError("malformed PWD reply: "+text, StatusError, nil)
	}

	rest := text[first+1:]

	var b strings.Builder

	for i := 0; i < len(rest); i++ {
		if rest[i] == '"' {
			if i+1 < len(rest) && rest[i+1] == '"' {
				b.WriteByte('"')
				i++

				continue
			}

			return b.String(), nil
		}

		b.WriteByte(rest[i])
	}

	return "", NewProtocolError("malformed PWD reply: "+text, StatusError, nil)
}
