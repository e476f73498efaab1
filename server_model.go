package ftpclient

import "fmt"

// Protocol is the wire security mode used to reach a Server.
type Protocol int

// Supported protocols.
const (
	ProtocolInsecureFTP Protocol = iota
	ProtocolFTP
	ProtocolFTPS  // implicit TLS
	ProtocolFTPES // explicit TLS (AUTH TLS/SSL)
)

// usesTLS reports whether the protocol requires a TLS handshake at some
// point in the connection lifecycle.
func (p Protocol) usesTLS() bool {
	return p == ProtocolFTPS || p == ProtocolFTPES
}

// ServerType hints at the remote OS/FTP daemon, mostly to pick a ServerPath
// style and to tune quirk handling.
type ServerType int

// Supported server type hints.
const (
	ServerTypeDefault ServerType = iota
	ServerTypeUnix
	ServerTypeVMS
	ServerTypeDOS
	ServerTypeMVS
	ServerTypeVxWorks
	ServerTypeZVM
	ServerTypeHPNonStop
	ServerTypeDOSVirtual
	ServerTypeCygwin
)

// EncodingMode selects how outgoing commands are encoded.
type EncodingMode int

// Supported encoding modes.
const (
	EncodingAuto EncodingMode = iota
	EncodingUTF8
	EncodingCustom
)

// PassivePreference records whether a Server should default to passive mode
// when nothing else overrides it.
type PassivePreference int

// Passive mode preferences.
const (
	PassiveModeDefault PassivePreference = iota
	PassiveModePreferActive
	PassiveModePreferPassive
)

// Server is the immutable identity of a remote endpoint. It never mutates
// after construction; per-server mutable state (capabilities, caches) is
// keyed by a Server value in the Engine's process-wide stores.
type Server struct {
	Host     string
	Port     int
	Protocol Protocol
	Type     ServerType
	Name     string

	TimezoneOffsetMinutes int
	PassivePreference     PassivePreference
	MaxConcurrentConns    int

	Encoding       EncodingMode
	CustomEncoding string // only meaningful when Encoding == EncodingCustom

	BypassProxy      bool
	PostLoginCommands []string
}

// Key returns the comparable value used to index process-wide, per-server
// stores (ServerCapabilities, DirectoryCache, PathCache). Two Server values
// constructed with the same host/port/protocol/type are the same server for
// caching purposes even if their display Name differs.
func (s Server) Key() ServerKey {
	return ServerKey{
		Host:     s.Host,
		Port:     s.Port,
		Protocol: s.Protocol,
		Type:     s.Type,
	}
}

// String renders the server as "protocol://host:port" for logs.
func (s Server) String() string {
	return fmt.Sprintf("%s://%s:%d", protocolLabel(s.Protocol), s.Host, s.Port)
}

func protocolLabel(p Protocol) string {
	switch p {
	case ProtocolFTP:
		return "ftp"
	case ProtocolFTPS:
		return "ftps"
	case ProtocolFTPES:
		return "ftpes"
	default:
		return "ftp-insecure"
	}
}

// ServerKey is the comparable identity used as a map key by the
// process-wide caches.
type ServerKey struct {
	Host     string
	Port     int
	Protocol Protocol
	Type     ServerType
}

// LogonType selects how Credentials should be presented during the Logon
// operation.
type LogonType int

// Supported logon types.
const (
	LogonAnonymous LogonType = iota
	LogonNormal
	LogonAsk
	LogonInteractive
	LogonAccount
	LogonKey
)

// Credentials is consumed by the Logon operation and never persisted by the
// engine. The host is responsible for decrypting any at-rest storage before
// handing a Credentials value to Connect.
type Credentials struct {
	LogonType LogonType
	User      string
	Password  string
	Account   string
	KeyFile   string
}
