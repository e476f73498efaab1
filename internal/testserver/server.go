// Package testserver is the real FTP peer this repository's own tests talk
// to. It is not a general-purpose server: it implements exactly the
// command subset the engine's operations issue against it (spec.md §4.2
// through §4.8) over a single in-memory afero filesystem, nothing more.
//
// Grounded on fclairamb/ftpserverlib's shape — a small FtpServer holding a
// listener and a logger, a per-connection handler reading commands off a
// bufio.Reader, a passive-mode data connection opened on demand — but with
// the pluggable MainDriver/ClientDriver/Settings layers collapsed away:
// there is only ever one driver here (a fixed user/pass pair over one
// afero.Fs), so that indirection bought nothing and is dropped rather than
// carried unused.
package testserver

import (
	"crypto/tls"
	"net"
	"sync"

	"github.com/spf13/afero"

	log "github.com/fclairamb/go-log"
	lognoop "github.com/fclairamb/go-log/noop"
)

// FtpServer accepts connections and authenticates them against a single
// fixed user/pass pair backed by one afero.Fs, shared by every session.
type FtpServer struct {
	Logger log.Logger

	user, pass string
	fs         afero.Fs
	tlsConfig  *tls.Config

	mu       sync.Mutex
	listener net.Listener
	nextID   uint32
}

// NewFtpServer builds a server over fs, accepting only user/pass. If
// tlsConfig is non-nil, the listening socket is wrapped in it (implicit
// TLS), mirroring how the teacher's createListener wraps a plain
// net.Listener when TLSRequired == ImplicitEncryption.
func NewFtpServer(fs afero.Fs, user, pass string, tlsConfig *tls.Config) *FtpServer {
	return &FtpServer{
		Logger:    lognoop.NewNoOpLogger(),
		user:      user,
		pass:      pass,
		fs:        fs,
		tlsConfig: tlsConfig,
	}
}

// Listen starts listening on a random loopback port. It is not blocking.
func (s *FtpServer) Listen() error {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}

	if s.tlsConfig != nil {
		listener = tls.NewListener(listener, s.tlsConfig)
	}

	s.listener = listener
	s.Logger.Info("listening", "address", listener.Addr())

	return nil
}

// Serve accepts and runs sessions until the listener is closed.
func (s *FtpServer) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return err
		}

		s.mu.Lock()
		s.nextID++
		id := s.nextID
		s.mu.Unlock()

		sess := newSession(s, conn, id)
		go sess.run()
	}
}

// Addr reports the listening address, or "" before Listen.
func (s *FtpServer) Addr() string {
	if s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}

// Stop closes the listener; in-flight sessions run to completion.
func (s *FtpServer) Stop() error {
	if s.listener == nil {
		return nil
	}

	return s.listener.Close()
}
