package ftpclient

import (
	"time"

	"github.com/spf13/afero"
)

// List fetches (or returns a cached copy of) the listing for path. A nil
// path lists the current working directory.
func (cs *ControlSocket) List(path *ServerPath, forceRefresh bool) (Status, error) {
	return cs.submitAndWait(false, newListOp(listArgs{Path: path, ForceRefresh: forceRefresh}))
}

// ListResult runs List and also returns the DirectoryListing produced, for
// callers that don't want to thread a shared DirCache lookup through their
// own code.
func (cs *ControlSocket) ListResult(path *ServerPath, forceRefresh bool) (DirectoryListing, Status, error) {
	op := newListOp(listArgs{Path: path, ForceRefresh: forceRefresh})

	status, err := cs.submitAndWait(false, op)

	return op.Result(), status, err
}

// ChangeDir navigates to path (optionally descending into subdir below it)
// and reports the canonical path the server resolved to.
func (cs *ControlSocket) ChangeDir(path *ServerPath, subdir string) (ServerPath, Status, error) {
	op := newChangeDirOp(changeDirArgs{Path: path, Subdir: subdir})

	status, err := cs.submitAndWait(false, op)

	return op.resultPath, status, err
}

// DownloadArgs configures a FileTransfer pulling a remote file to local
// storage.
type DownloadArgs struct {
	Path        ServerPath
	Name        string
	LocalPath   string
	Fs          afero.Fs
	Binary      bool
	CheckExists bool
}

// Download runs FileTransfer in the download direction.
func (cs *ControlSocket) Download(args DownloadArgs) (Status, error) {
	op := newFileTransferOp(fileTransferArgs{
		Path:        args.Path,
		Name:        args.Name,
		LocalPath:   args.LocalPath,
		Fs:          args.Fs,
		Direction:   TransferDownload,
		Binary:      args.Binary,
		CheckExists: args.CheckExists,
	})

	return cs.submitAndWait(false, op)
}

// UploadArgs configures a FileTransfer pushing a local file to the server.
type UploadArgs struct {
	Path          ServerPath
	Name          string
	LocalPath     string
	Fs            afero.Fs
	Binary        bool
	Append        bool
	CheckExists   bool
	SourceModTime time.Time
}

// Upload runs FileTransfer in the upload direction.
func (cs *ControlSocket) Upload(args UploadArgs) (Status, error) {
	op := newFileTransferOp(fileTransferArgs{
		Path:          args.Path,
		Name:          args.Name,
		LocalPath:     args.LocalPath,
		Fs:            args.Fs,
		Direction:     TransferUpload,
		Binary:        args.Binary,
		Append:        args.Append,
		CheckExists:   args.CheckExists,
		SourceModTime: args.SourceModTime,
	})

	return cs.submitAndWait(false, op)
}

// Delete issues DELE for each of names, relative to path.
func (cs *ControlSocket) Delete(path ServerPath, names []string) (Status, error) {
	return cs.submitAndWait(false, newDeleteOp(path, names))
}

// RemoveDir issues RMD against subdir, relative to parent.
func (cs *ControlSocket) RemoveDir(parent ServerPath, subdir string) (Status, error) {
	return cs.submitAndWait(false, newRemoveDirOp(parent, subdir))
}

// Mkdir creates target, walking up to find an existing ancestor and
// creating every missing segment back down.
func (cs *ControlSocket) Mkdir(target ServerPath) (Status, error) {
	return cs.submitAndWait(false, newMkdirOp(target))
}

// Rename issues RNFR/RNTO, moving fromPath/fromName to toPath/toName.
func (cs *ControlSocket) Rename(fromPath ServerPath, fromName string, toPath ServerPath, toName string) (Status, error) {
	return cs.submitAndWait(false, newRenameOp(fromPath, fromName, toPath, toName))
}

// Chmod issues SITE CHMOD against name, relative to path.
func (cs *ControlSocket) Chmod(path ServerPath, name, permission string) (Status, error) {
	return cs.submitAndWait(false, newChmodOp(path, name, permission))
}

// RawCommand sends command verbatim and forwards replies to the Notifier.
func (cs *ControlSocket) RawCommand(command string) (Status, error) {
	return cs.submitAndWait(false, newRawCommandOp(command))
}
