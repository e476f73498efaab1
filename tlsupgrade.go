package ftpclient

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
)

// ctx2 returns the context to use for in-session handshakes (the explicit
// AUTH TLS upgrade), falling back to Background if Connect's context is
// somehow unset.
func (cs *ControlSocket) ctx2() context.Context {
	if cs.baseCtx != nil {
		return cs.baseCtx
	}

	return context.Background()
}

// tlsClientOver wraps an already-established TCP connection (the one AUTH
// TLS/SSL just got a 2xy reply on) in a TLS client, ready to handshake.
func tlsClientOver(conn net.Conn, config *tls.Config) *tls.Conn {
	return tls.Client(conn, config)
}

// rewrapConn swaps the control connection for its TLS-wrapped form and
// rebuilds the buffered reader/writer over it, the way the implicit-FTPS
// path in Connect does it inline.
func (cs *ControlSocket) rewrapConn(tlsConn *tls.Conn) {
	cs.conn = tlsConn
	cs.reader = bufio.NewReaderSize(tlsConn, 4096)
	cs.writer = bufio.NewWriter(tlsConn)
}

// clientTLSConfig builds the tls.Config used for both the implicit FTPS
// handshake (in Connect) and the explicit FTPES upgrade (pushed by the
// Logon operation after AUTH TLS/SSL succeeds). Certificate trust is never
// decided here: VerifyPeerCertificate is disabled in favor of verifyPeer,
// which always runs after the handshake completes so the host's Notifier
// can be asked about first-use or changed certificates.
func (cs *ControlSocket) clientTLSConfig() *tls.Config {
	return &tls.Config{
		ServerName:         cs.server.Host,
		InsecureSkipVerify: true, //nolint:gosec // verifyPeer runs the real check post-handshake
		ClientSessionCache: cs.tlsSessionCache,
		MinVersion:         tls.VersionTLS12,
	}
}

// dataTLSConfig builds the tls.Config for the data channel of a protected
// (PROT P) transfer. It mirrors clientTLSConfig, reusing the same session
// cache so the control channel's handshake can prime resumption for the
// data channel's, but skips verifyPeer: the certificate was already
// accepted once on the control connection, and RFC 4217 data connections
// are expected to resume rather than re-prompt.
func (cs *ControlSocket) dataTLSConfig() *tls.Config {
	return &tls.Config{
		ServerName:         cs.server.Host,
		InsecureSkipVerify: true, //nolint:gosec // data channel trust follows the control channel's
		ClientSessionCache: cs.tlsSessionCache,
		MinVersion:         tls.VersionTLS12,
	}
}

// checkDataResumption records whether the data channel's TLS handshake
// resumed the control channel's session, downgrading CapTLSResume to TriNo
// the first time resumption is attempted and fails.
func (cs *ControlSocket) checkDataResumption(state tls.ConnectionState) {
	if state.DidResume {
		cs.engine.Capabilities.Set(cs.server.Key(), CapTLSResume, TriYes, "")

		return
	}

	if already, _ := cs.engine.Capabilities.Get(cs.server.Key(), CapTLSResume); already == TriUnknown {
		return
	}

	cs.engine.Capabilities.Set(cs.server.Key(), CapTLSResume, TriNo, "")
}

// verifyPeer runs the engine's own chain validation, then — unless the
// chain validates against the system roots — asks the host's Notifier to
// approve the certificate the way an interactive FTP client would prompt
// on first connect or on a certificate change.
func (cs *ControlSocket) verifyPeer(conn *tls.Conn) bool {
	state := conn.ConnectionState()
	cs.tlsResumed = triFromBool(state.DidResume)

	chain := state.PeerCertificates
	if len(chain) == 0 {
		return false
	}

	if verifiesAgainstSystemRoots(chain) {
		return true
	}

	return cs.notifier.VerifyCertificate(cs.server, CertificatePrompt{Chain: chain})
}

func verifiesAgainstSystemRoots(chain []*x509.Certificate) bool {
	if len(chain) == 0 {
		return false
	}

	intermediates := x509.NewCertPool()
	for _, c := range chain[1:] {
		intermediates.AddCert(c)
	}

	_, err := chain[0].Verify(x509.VerifyOptions{Intermediates: intermediates})

	return err == nil
}

func triFromBool(b bool) Tri {
	if b {
		return TriYes
	}

	return TriNo
}
