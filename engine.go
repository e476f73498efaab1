package ftpclient

import (
	"time"

	"github.com/fclairamb/go-log"
	lognoop "github.com/fclairamb/go-log/noop"
)

// ExternalIPMode selects how the active-mode PORT/EPRT address is obtained.
type ExternalIPMode int

// Supported external IP modes.
const (
	ExternalIPNone ExternalIPMode = iota
	ExternalIPLiteral
	ExternalIPResolverMode
)

// PasvReplyFallbackMode selects how an unroutable PASV reply address is
// handled.
type PasvReplyFallbackMode int

// Supported PASV reply fallback modes.
const (
	PasvReplyUseAsIs PasvReplyFallbackMode = iota
	PasvReplyFailOnUnroutable
	PasvReplyAlwaysUsePeer
)

// EngineConfig carries every host-tunable option the engine recognizes.
// Zero values are sane defaults: passive mode is tried first,
// fallback between transfer modes is allowed, PASV replies are rewritten
// rather than rejected.
type EngineConfig struct {
	TCPKeepaliveIntervalMinutes int // 0 disables SO_KEEPALIVE

	UsePassive                bool
	AllowTransferModeFallback bool
	PasvReplyFallback         PasvReplyFallbackMode

	ExternalIPMode        ExternalIPMode
	ExternalIP            string
	ExternalIPResolverURL string
	NoExternalOnLocal     bool

	LimitPorts       bool
	LimitPortsLow    int
	LimitPortsHigh   int
	LimitPortsOffset int

	SendKeepAlive bool

	SocketBufferRecv int
	SocketBufferSend int

	ConnectTimeout    time.Duration
	InactivityTimeout time.Duration
}

// DefaultEngineConfig returns the configuration the engine uses when the
// host doesn't override anything.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		UsePassive:                true,
		AllowTransferModeFallback: true,
		SendKeepAlive:             true,
		ConnectTimeout:            30 * time.Second,
		InactivityTimeout:         5 * time.Minute,
	}
}

// Engine is the process-wide context shared by every ControlSocket: the
// capability, directory and path caches, plus default configuration and
// logging. Exactly one Engine is normally constructed per process; tests
// construct a fresh one per case so caches never leak between them.
type Engine struct {
	Capabilities *ServerCapabilities
	DirCache     *DirectoryCache
	PathCache    *PathCache
	Config       EngineConfig
	Logger       log.Logger
}

// NewEngine builds a fresh Engine with empty caches.
func NewEngine(config EngineConfig, logger log.Logger) *Engine {
	if logger == nil {
		logger = lognoop.NewNoOpLogger()
	}

	return &Engine{
		Capabilities: NewServerCapabilities(),
		DirCache:     NewDirectoryCache(),
		PathCache:    NewPathCache(),
		Config:       config,
		Logger:       logger,
	}
}
