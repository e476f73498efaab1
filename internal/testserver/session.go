package testserver

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"

	log "github.com/fclairamb/go-log"
)

// FTP reply codes this fixture actually sends. Named per RFC 959 rather
// than imported from anywhere, since the full status-code table the
// teacher's real package exposes isn't part of this adapted subset.
const (
	codeServiceReady      = 220
	codeClosing           = 221
	codeFileActionOK      = 226
	codeEnteringPassive   = 227
	codePathCreated       = 257
	codeUserOK            = 331
	codeNeedDest          = 350
	codeLoggedIn          = 230
	codeCommandOK         = 200
	codeSystem            = 215
	codeFeatures          = 211
	codeDataConnOpening   = 150
	codeNotLoggedIn       = 530
	codeBadSequence       = 503
	codeActionNotTaken    = 450
	codeActionAborted     = 550
	codeCommandNotImpl    = 502
	codeSyntaxErrorParams = 501
	codeRequestedOK       = 250
	codeFileStatus        = 213
)

// session is one client connection: the client-side mirror of the
// teacher's clientHandler, trimmed to the fields this fixture's command
// set actually touches.
type session struct {
	server *FtpServer
	id     uint32
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
	logger log.Logger

	loggedIn     bool
	user         string
	cwd          string
	binary       bool
	renameFrom   string
	dataListener net.Listener
}

func newSession(server *FtpServer, conn net.Conn, id uint32) *session {
	return &session{
		server: server,
		id:     id,
		conn:   conn,
		reader: bufio.NewReaderSize(conn, 4096),
		writer: bufio.NewWriter(conn),
		logger: server.Logger.With("clientId", id),
		cwd:    "/",
		binary: true,
	}
}

// commandTable maps each verb this fixture understands to its handler.
// Anything absent falls through to handleNotImplemented, the same
// fallback the teacher's command table uses for verbs it recognizes but
// chooses not to support.
var commandTable = map[string]func(*session, string){ //nolint:gochecknoglobals
	"USER": (*session).handleUSER,
	"PASS": (*session).handlePASS,
	"SYST": (*session).handleSYST,
	"FEAT": (*session).handleFEAT,
	"NOOP": (*session).handleNOOP,
	"OPTS": (*session).handleOPTS,
	"CLNT": (*session).handleCLNT,
	"QUIT": (*session).handleQUIT,
	"PWD":  (*session).handlePWD,
	"XPWD": (*session).handlePWD,
	"CWD":  (*session).handleCWD,
	"XCWD": (*session).handleCWD,
	"CDUP": (*session).handleCDUP,
	"TYPE": (*session).handleTYPE,
	"MKD":  (*session).handleMKD,
	"XMKD": (*session).handleMKD,
	"RMD":  (*session).handleRMD,
	"XRMD": (*session).handleRMD,
	"DELE": (*session).handleDELE,
	"RNFR": (*session).handleRNFR,
	"RNTO": (*session).handleRNTO,
	"SITE": (*session).handleSITE,
	"SIZE": (*session).handleSIZE,
	"MDTM": (*session).handleMDTM,
	"PASV": (*session).handlePASV,
	"MLSD": (*session).handleMLSD,
	"RETR": (*session).handleRETR,
	"STOR": (*session).handleSTOR,
	"APPE": (*session).handleAPPE,
}

// commandsNeedingLogin lists verbs rejected with 530 before authentication,
// mirroring the teacher's CommandDescription.Open flag inverted to a set.
var commandsNeedingLogin = map[string]bool{ //nolint:gochecknoglobals
	"PWD": true, "XPWD": true, "CWD": true, "XCWD": true, "CDUP": true,
	"TYPE": true, "MKD": true, "XMKD": true, "RMD": true, "XRMD": true,
	"DELE": true, "RNFR": true, "RNTO": true, "SITE": true, "SIZE": true,
	"MDTM": true, "PASV": true, "MLSD": true, "RETR": true, "STOR": true,
	"APPE": true,
}

// run drives the session's read loop: send the banner, then dispatch one
// line at a time until the connection closes, the same split the teacher's
// HandleCommands/handleCommand pair makes between framing and dispatch.
func (s *session) run() {
	s.logger.Debug("client connected", "remoteAddr", s.conn.RemoteAddr())

	defer func() {
		s.conn.Close()
		s.logger.Debug("client disconnected", "remoteAddr", s.conn.RemoteAddr())
	}()

	if s.dataListener != nil {
		defer s.dataListener.Close()
	}

	s.writeReply(codeServiceReady, "ftpclient fixture server")

	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			return
		}

		verb, arg := parseLine(line)
		if verb == "" {
			continue
		}

		if commandsNeedingLogin[verb] && !s.loggedIn {
			s.writeReply(codeNotLoggedIn, "not logged in")

			continue
		}

		handler, ok := commandTable[verb]
		if !ok {
			s.handleNotImplemented(arg)

			continue
		}

		handler(s, arg)

		if verb == "QUIT" {
			return
		}
	}
}

// parseLine splits one command line into its verb and argument the way the
// teacher's clientHandler.parseLine does: verb uppercased, argument
// trimmed, CRLF stripped.
func parseLine(line string) (string, string) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", ""
	}

	parts := strings.SplitN(line, " ", 2)
	verb := strings.ToUpper(parts[0])

	if len(parts) == 1 {
		return verb, ""
	}

	return verb, parts[1]
}

func (s *session) writeReply(code int, text string) {
	fmt.Fprintf(s.writer, "%d %s\r\n", code, text)
	s.writer.Flush()
}

func (s *session) handleNotImplemented(string) {
	s.writeReply(codeCommandNotImpl, "not implemented by this fixture")
}

func (s *session) handleQUIT(string) {
	s.writeReply(codeClosing, "bye")
}

func (s *session) handleNOOP(string) {
	s.writeReply(codeCommandOK, "OK")
}

func (s *session) handleCLNT(string) {
	s.writeReply(codeCommandOK, "OK")
}

func (s *session) handleOPTS(arg string) {
	s.writeReply(codeCommandOK, strings.TrimSpace(arg))
}

func (s *session) handleSYST(string) {
	s.writeReply(codeSystem, "UNIX Type: L8")
}

// handleFEAT advertises exactly the capabilities the integration tests
// (and the Logon op's FEAT parser) expect: MLSD/MLST with facts, UTF8,
// SIZE, MDTM, and REST STREAM.
func (s *session) handleFEAT(string) {
	fmt.Fprint(s.writer, "211-Features:\r\n")
	fmt.Fprint(s.writer, " UTF8\r\n")
	fmt.Fprint(s.writer, " SIZE\r\n")
	fmt.Fprint(s.writer, " MDTM\r\n")
	fmt.Fprint(s.writer, " REST STREAM\r\n")
	fmt.Fprint(s.writer, " MLSD type*;size*;modify*;perm*;\r\n")
	fmt.Fprint(s.writer, " MLST type*;size*;modify*;perm*;\r\n")
	fmt.Fprintf(s.writer, "%d End\r\n", codeFeatures)
	s.writer.Flush()
}

func (s *session) handleUSER(arg string) {
	s.user = arg
	s.writeReply(codeUserOK, "user OK, password needed")
}

func (s *session) handlePASS(arg string) {
	if s.user != s.server.user || arg != s.server.pass {
		s.writeReply(codeNotLoggedIn, "authentication failed")

		return
	}

	s.loggedIn = true
	s.writeReply(codeLoggedIn, "password OK, logged in")
}

func (s *session) handleTYPE(arg string) {
	switch strings.ToUpper(strings.TrimSpace(arg)) {
	case "A":
		s.binary = false
	default:
		s.binary = true
	}

	s.writeReply(codeCommandOK, "type set")
}

func (s *session) handleSIZE(arg string) {
	info, err := s.server.fs.Stat(s.resolve(arg))
	if err != nil || info.IsDir() {
		s.writeReply(codeActionNotTaken, "could not stat file")

		return
	}

	s.writeReply(codeFileStatus, strconv.FormatInt(info.Size(), 10))
}

func (s *session) handleMDTM(arg string) {
	info, err := s.server.fs.Stat(s.resolve(arg))
	if err != nil {
		s.writeReply(codeActionNotTaken, "could not stat file")

		return
	}

	s.writeReply(codeFileStatus, info.ModTime().UTC().Format("20060102150405"))
}
