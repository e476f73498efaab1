package ftpclient

import (
	"crypto/tls"
	"fmt"
	"math/rand"
	"net"
	"time"
)

// TransferMode selects which half of the active/passive handshake the
// RawTransfer operation drives.
type TransferMode int

// Supported transfer connection modes.
const (
	TransferModePassive TransferMode = iota // client connects out, like the teacher's activeTransferHandler
	TransferModeActive                      // client listens, like the teacher's passiveTransferHandler
)

// TransferSocket opens and owns the data connection for one RawTransfer
// operation. It is the client-side mirror of the teacher's transferHandler
// pair with the two roles swapped: a client in passive mode dials out the
// way the teacher's server dials back to an active client, and a client in
// active mode listens the way the teacher's server listens for a passive
// client.
type TransferSocket struct {
	mode TransferMode

	// Passive-mode fields: where to dial.
	dialAddr  string
	tlsConfig *tls.Config

	// Active-mode fields: where to listen.
	listener    net.Listener
	tcpListener *net.TCPListener

	conn net.Conn
}

// NewPassiveTransferSocket builds a socket that will dial host:port, the
// address a PASV/EPSV reply gave us.
func NewPassiveTransferSocket(host string, port int, tlsConfig *tls.Config) *TransferSocket {
	return &TransferSocket{
		mode:      TransferModePassive,
		dialAddr:  net.JoinHostPort(host, fmt.Sprintf("%d", port)),
		tlsConfig: tlsConfig,
	}
}

// NewActiveTransferSocket opens a listening socket within the configured
// port range (or an ephemeral port if none is set) for a PORT/EPRT
// command, returning the socket and the port the caller should announce.
func NewActiveTransferSocket(cfg EngineConfig, tlsConfig *tls.Config) (*TransferSocket, int, error) {
	tcpListener, err := listenWithinRange(cfg)
	if err != nil {
		return nil, 0, err
	}

	var listener net.Listener = tcpListener
	if tlsConfig != nil {
		listener = tls.NewListener(tcpListener, tlsConfig)
	}

	port := tcpListener.Addr().(*net.TCPAddr).Port

	return &TransferSocket{
		mode:        TransferModeActive,
		listener:    listener,
		tcpListener: tcpListener,
		tlsConfig:   tlsConfig,
	}, port, nil
}

func listenWithinRange(cfg EngineConfig) (*net.TCPListener, error) {
	if !cfg.LimitPorts || cfg.LimitPortsLow == 0 {
		addr, _ := net.ResolveTCPAddr("tcp", ":0")

		return net.ListenTCP("tcp", addr)
	}

	low := cfg.LimitPortsLow + cfg.LimitPortsOffset
	high := cfg.LimitPortsHigh + cfg.LimitPortsOffset

	attempts := high - low
	if attempts < 10 {
		attempts = 10
	} else if attempts > 1000 {
		attempts = 1000
	}

	for i := 0; i < attempts; i++ {
		port := low + rand.Intn(high-low+1) //nolint:gosec

		addr, err := net.ResolveTCPAddr("tcp", fmt.Sprintf("0.0.0.0:%d", port))
		if err != nil {
			return nil, err
		}

		listener, err := net.ListenTCP("tcp", addr)
		if err == nil {
			return listener, nil
		}
	}

	return nil, NewProtocolError("could not find a free port within the configured range", StatusError, nil)
}

// Open establishes the data connection: dialing in passive mode, accepting
// the one pending connection in active mode.
func (t *TransferSocket) Open(timeout time.Duration) (net.Conn, error) {
	if t.conn != nil {
		return t.conn, nil
	}

	switch t.mode {
	case TransferModePassive:
		dialer := &net.Dialer{Timeout: timeout}

		conn, err := dialer.Dial("tcp", t.dialAddr)
		if err != nil {
			return nil, fmt.Errorf("could not establish passive data connection: %w", err)
		}

		if t.tlsConfig != nil {
			conn = tls.Client(conn, t.tlsConfig)
		}

		t.conn = conn

		return conn, nil
	default:
		if err := t.tcpListener.SetDeadline(time.Now().Add(timeout)); err != nil {
			return nil, fmt.Errorf("failed to set deadline: %w", err)
		}

		conn, err := t.listener.Accept()
		if err != nil {
			return nil, err
		}

		t.conn = conn

		return conn, nil
	}
}

// Close releases the listener (active mode) and the established
// connection, if any.
func (t *TransferSocket) Close() error {
	var err error

	if t.tcpListener != nil {
		err = t.tcpListener.Close()
	}

	if t.conn != nil {
		if cerr := t.conn.Close(); err == nil {
			err = cerr
		}
	}

	return err
}
