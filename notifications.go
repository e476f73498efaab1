package ftpclient

import "crypto/x509"

// MessageCategory is the stable category a host-visible log line carries,
// independent of its (localized, host-owned) text.
type MessageCategory int

// Message categories the engine emits.
const (
	MsgStatus MessageCategory = iota
	MsgError
	MsgCommand
	MsgResponse
	MsgDebugWarning
	MsgDebugInfo
	MsgDebugVerbose
	MsgDebugDebug
)

// TransferDirection distinguishes upload from download for transfer-status
// notifications.
type TransferDirection int

// Transfer directions.
const (
	TransferDownload TransferDirection = iota
	TransferUpload
)

// TransferStatus is a progress notification emitted while a RawTransfer is
// in flight.
type TransferStatus struct {
	Direction    TransferDirection
	BytesTotal   int64 // 0 if unknown
	BytesSoFar   int64
	Stalled      bool
}

// FileExistsAction is the host's answer to a FileExistsPrompt.
type FileExistsAction int

// Actions the host can choose when a local/remote name collision is found.
const (
	FileExistsOverwrite FileExistsAction = iota
	FileExistsResume
	FileExistsRename
	FileExistsSkip
	FileExistsAbort
)

// FileExistsPrompt describes a local/remote naming collision the host must
// resolve before a transfer proceeds.
type FileExistsPrompt struct {
	LocalPath    string
	RemotePath   ServerPath
	RemoteName   string
	RemoteSize   int64
	RemoteMTime  int64 // unix seconds, 0 if unknown
	LocalSize    int64
	LocalMTime   int64
}

// CertificatePrompt is raised when a TLS handshake needs host approval of
// the peer certificate chain (first use, or a change since last time).
type CertificatePrompt struct {
	Chain []*x509.Certificate
}

// InteractiveLoginPrompt is raised when Credentials.LogonType is
// LogonInteractive or LogonAsk and the server needs a value the Credentials
// didn't supply (e.g. a one-time password, or a password at all).
type InteractiveLoginPrompt struct {
	// Field names what's being asked for: "password" or "account".
	Field string
}

// Notifier receives every host-visible event the engine produces. A host
// implements this to drive a GUI, a CLI, or a test harness; the engine
// itself never assumes a particular UI.
type Notifier interface {
	Log(category MessageCategory, server Server, line string)
	StatusChanged(server Server, status string)
	DirectoryListingChanged(server Server, path ServerPath)
	TransferProgress(server Server, status TransferStatus)
	OperationCompleted(server Server, status Status, err error)

	// FileExists asks the host to resolve a naming collision; the engine
	// suspends the FileTransfer operation until this returns.
	FileExists(server Server, prompt FileExistsPrompt) FileExistsAction

	// InteractiveLogin asks the host to supply a missing credential value;
	// the engine suspends the Logon operation until this returns.
	InteractiveLogin(server Server, prompt InteractiveLoginPrompt) (value string, ok bool)

	// VerifyCertificate asks the host to accept or reject a TLS peer
	// certificate chain; false closes the connection with
	// StatusCriticalError.
	VerifyCertificate(server Server, prompt CertificatePrompt) bool
}

// NoopNotifier discards every notification. Useful for tests that only
// care about the final Status of an operation.
type NoopNotifier struct{}

func (NoopNotifier) Log(MessageCategory, Server, string)             {}
func (NoopNotifier) StatusChanged(Server, string)                    {}
func (NoopNotifier) DirectoryListingChanged(Server, ServerPath)       {}
func (NoopNotifier) TransferProgress(Server, TransferStatus)          {}
func (NoopNotifier) OperationCompleted(Server, Status, error)         {}
func (NoopNotifier) FileExists(Server, FileExistsPrompt) FileExistsAction {
	return FileExistsOverwrite
}
func (NoopNotifier) InteractiveLogin(Server, InteractiveLoginPrompt) (string, bool) {
	return "", false
}
func (NoopNotifier) VerifyCertificate(Server, CertificatePrompt) bool { return true }
