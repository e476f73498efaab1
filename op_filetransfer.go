package ftpclient

import (
	"errors"
	"strconv"
	"time"

	"github.com/spf13/afero"

	"github.com/fclairamb/ftpclient/listingparser"
	"github.com/fclairamb/ftpclient/localfs"
)

// fileTransferState enumerates the steps of the FileTransfer sequence.
type fileTransferState int

const (
	ftInit fileTransferState = iota
	ftWaitCwd
	ftWaitList
	ftWaitSize
	ftWaitMdtm
	ftResumeTest
	ftWaitTransfer
	ftWaitMfmt
)

// ErrFileExistsAborted is returned when the host's FileExists answer was
// Rename or Skip/Abort; none of those carry a usable new name, so the
// transfer simply does not proceed.
var ErrFileExistsAborted = errors.New("ftpclient: transfer aborted by host")

// fileTransferArgs carries a FileTransfer operation's inputs.
type fileTransferArgs struct {
	Path ServerPath
	Name string

	LocalPath string
	Fs        afero.Fs

	Direction TransferDirection
	Append    bool
	Binary    bool

	// CheckExists requests the List+SIZE/MDTM+FileExists-prompt sequence
	// before transferring. Skipped for transfers the host already knows are
	// safe (e.g. a fresh download into a name it just generated).
	CheckExists bool

	// SourceModTime is the local file's mtime, used to preserve it with
	// MFMT after a successful upload when the server advertises the
	// capability. Zero means "don't bother".
	SourceModTime time.Time
}

// fileTransferOp implements FileTransfer: ensures the working directory,
// optionally resolves a local/remote naming collision through the host's
// Notifier, optionally resume-tests an ASCII download, then pushes a
// RawTransfer child to move the bytes.
type fileTransferOp struct {
	args  fileTransferArgs
	state fileTransferState

	list *listOp

	remoteExists bool
	remoteSize   int64
	remoteMTime  time.Time

	resumeOffset int64

	tc       *TransferContext
	local    *localfs.Transfer
	transfer *rawTransferOp
}

func newFileTransferOp(args fileTransferArgs) *fileTransferOp {
	return &fileTransferOp{args: args}
}

func (o *fileTransferOp) Send(ctx opContext) (Result, Status, error) {
	cs := ctx.cs

	switch o.state {
	case ftInit:
		cs.stack.push(newChangeDirOp(changeDirArgs{Path: &o.args.Path}))
		o.state = ftWaitCwd

		return ResultContinue, StatusOk, nil

	case ftWaitSize:
		if err := cs.sendLine("SIZE " + o.args.Name); err != nil {
			return ResultError, StatusError, err
		}

		return ResultWouldBlock, StatusOk, nil

	case ftWaitMdtm:
		if err := cs.sendLine("MDTM " + o.args.Name); err != nil {
			return ResultError, StatusError, err
		}

		return ResultWouldBlock, StatusOk, nil

	case ftWaitMfmt:
		stamp := o.args.SourceModTime.UTC().Format("20060102150405")
		if err := cs.sendLine("MFMT " + stamp + " " + o.args.Name); err != nil {
			return ResultError, StatusError, err
		}

		return ResultWouldBlock, StatusOk, nil

	default:
		return ResultWouldBlock, StatusOk, nil
	}
}

func (o *fileTransferOp) ParseResponse(ctx opContext, reply Reply) (Result, Status, error) {
	cs := ctx.cs

	switch o.state {
	case ftWaitSize:
		return o.parseSize(cs, reply)

	case ftWaitMdtm:
		return o.parseMdtm(cs, reply)

	case ftWaitMfmt:
		// MFMT is best-effort: a server that rejects it still completed the
		// transfer successfully.
		return ResultOk, StatusOk, nil

	default:
		return ResultWouldBlock, StatusOk, nil
	}
}

func (o *fileTransferOp) parseSize(cs *ControlSocket, reply Reply) (Result, Status, error) {
	if reply.Class() == 2 {
		if n, err := strconv.ParseInt(firstField(reply.Text), 10, 64); err == nil {
			o.remoteSize = n
			o.remoteExists = true
		}
	}

	return o.afterExistsProbe(cs)
}

func (o *fileTransferOp) parseMdtm(cs *ControlSocket, reply Reply) (Result, Status, error) {
	if reply.Class() == 2 {
		if t, err := listingparser.ParseMLSXTime(firstField(reply.Text)); err == nil {
			o.remoteMTime = t
			o.remoteExists = true
		}
	}

	return o.promptIfNeeded(cs)
}

// afterExistsProbe runs between the SIZE and MDTM steps, issuing MDTM next
// when the capability is known, otherwise going straight to the prompt.
func (o *fileTransferOp) afterExistsProbe(cs *ControlSocket) (Result, Status, error) {
	if state, _ := cs.engine.Capabilities.Get(cs.server.Key(), CapMDTM); state == TriYes {
		o.state = ftWaitMdtm

		return ResultContinue, StatusOk, nil
	}

	return o.promptIfNeeded(cs)
}

// promptIfNeeded asks the host to resolve a naming collision once SIZE/MDTM
// have been consulted as far as the server's capabilities allow.
func (o *fileTransferOp) promptIfNeeded(cs *ControlSocket) (Result, Status, error) {
	if !o.remoteExists {
		return o.decideResumeAndTransfer(cs)
	}

	prompt := FileExistsPrompt{
		LocalPath:  o.args.LocalPath,
		RemotePath: o.args.Path,
		RemoteName: o.args.Name,
		RemoteSize: o.remoteSize,
	}

	if !o.remoteMTime.IsZero() {
		prompt.RemoteMTime = o.remoteMTime.Unix()
	}

	if localInfo, err := o.args.Fs.Stat(o.args.LocalPath); err == nil {
		prompt.LocalSize = localInfo.Size()
		prompt.LocalMTime = localInfo.ModTime().Unix()
	}

	switch cs.notifier.FileExists(cs.server, prompt) {
	case FileExistsOverwrite:
		o.resumeOffset = 0
	case FileExistsResume:
		if o.args.Direction == TransferUpload {
			o.resumeOffset = o.remoteSize
		} else {
			o.resumeOffset = prompt.LocalSize
		}
	default: // FileExistsRename, FileExistsSkip, FileExistsAbort
		return ResultError, StatusError, ErrFileExistsAborted
	}

	return o.decideResumeAndTransfer(cs)
}

// decideResumeAndTransfer runs a ResumeTest first when the conditions the
// spec calls out apply (download, non-zero resume offset, ASCII mode),
// otherwise pushes the real transfer directly.
func (o *fileTransferOp) decideResumeAndTransfer(cs *ControlSocket) (Result, Status, error) {
	o.tc = &TransferContext{Binary: o.args.Binary, ResumeOffset: o.resumeOffset}

	if o.args.Direction == TransferDownload && o.resumeOffset > 0 && !o.args.Binary {
		testCtx := &TransferContext{Binary: true, ResumeOffset: o.resumeOffset - 1}

		child := newRawTransferOp(rawTransferArgs{
			Command:   "RETR",
			Argument:  o.args.Name,
			Kind:      rawTransferResumeTest,
			Ctx:       testCtx,
			Direction: TransferDownload,
		})

		o.state = ftResumeTest
		cs.stack.push(child)

		return ResultContinue, StatusOk, nil
	}

	return o.beginTransferReal(cs)
}

func (o *fileTransferOp) SubcommandResult(ctx opContext, status Status, err error) (Result, Status, error) {
	cs := ctx.cs

	switch o.state {
	case ftWaitCwd:
		return o.afterCwd(cs, status, err)

	case ftWaitList:
		return o.afterList(cs, status, err)

	case ftResumeTest:
		if !status.Ok() {
			return ResultError, status, err
		}

		return o.beginTransferReal(cs)

	case ftWaitTransfer:
		return o.afterTransfer(cs, status, err)

	default:
		return ResultOk, status, err
	}
}

func (o *fileTransferOp) afterCwd(cs *ControlSocket, status Status, err error) (Result, Status, error) {
	if !status.Ok() {
		return ResultError, status, err
	}

	if !o.args.CheckExists {
		return o.promptIfNeeded(cs)
	}

	o.list = newListOp(listArgs{Path: &o.args.Path})
	o.state = ftWaitList
	cs.stack.push(o.list)

	return ResultContinue, StatusOk, nil
}

func (o *fileTransferOp) afterList(cs *ControlSocket, status Status, err error) (Result, Status, error) {
	if !status.Ok() {
		return ResultError, status, err
	}

	if entry, found := o.list.Result().ByName(o.args.Name); found {
		o.remoteExists = true
		o.remoteSize = entry.Size
		o.remoteMTime = entry.ModTime
	}

	if state, _ := cs.engine.Capabilities.Get(cs.server.Key(), CapSIZE); state == TriYes {
		o.state = ftWaitSize

		return ResultContinue, StatusOk, nil
	}

	return o.afterExistsProbe(cs)
}

func (o *fileTransferOp) afterTransfer(cs *ControlSocket, status Status, err error) (Result, Status, error) {
	bytesMoved := o.transfer.BytesMoved()

	finalizeErr := o.local.Finalize()

	if !status.Ok() {
		if o.args.Direction == TransferDownload && bytesMoved == 0 && o.local.WasCreated() {
			_ = localfs.Remove(o.args.Fs, o.args.LocalPath)
		}

		return ResultError, status, err
	}

	if finalizeErr != nil {
		return ResultError, StatusError, finalizeErr
	}

	key := cs.server.Key()
	cs.engine.DirCache.Update(key, o.args.Path, UnsureMkdir)
	cs.notifier.DirectoryListingChanged(cs.server, o.args.Path)

	if o.args.Direction == TransferUpload && !o.args.SourceModTime.IsZero() {
		if state, _ := cs.engine.Capabilities.Get(key, CapMFMT); state == TriYes {
			o.state = ftWaitMfmt

			return ResultContinue, StatusOk, nil
		}
	}

	return ResultOk, StatusOk, nil
}

func (o *fileTransferOp) beginTransferReal(cs *ControlSocket) (Result, Status, error) {
	dir := localfs.DirectionDownload
	if o.args.Direction == TransferUpload {
		dir = localfs.DirectionUpload
	}

	local, err := localfs.Open(o.args.Fs, o.args.LocalPath, dir, o.resumeOffset)
	if err != nil {
		return ResultError, StatusError, err
	}

	o.local = local

	command := "RETR"
	if o.args.Direction == TransferUpload {
		command = "STOR"
		if o.args.Append {
			command = "APPE"
		}
	}

	child := newRawTransferOp(rawTransferArgs{
		Command:   command,
		Argument:  o.args.Name,
		Kind:      rawTransferKindFor(o.args.Direction),
		Ctx:       o.tc,
		Local:     local,
		Direction: o.args.Direction,
	})

	o.transfer = child
	o.state = ftWaitTransfer
	cs.stack.push(child)

	return ResultContinue, StatusOk, nil
}

func rawTransferKindFor(dir TransferDirection) rawTransferKind {
	if dir == TransferUpload {
		return rawTransferUpload
	}

	return rawTransferDownload
}
