package ftpclient

// renameState enumerates the steps of the Rename operation.
type renameState int

const (
	renameChangeDir renameState = iota
	renameRnfr
	renameRnto
)

// renameOp issues RNFR <from> then RNTO <to>. Both paths are given in full
// (fromPath/fromName, toPath/toName), matching rename(from_path,
// from_name, to_path, to_name) contract; RNFR/RNTO themselves are sent as
// full paths so the two names need not share a directory.
type renameOp struct {
	fromPath ServerPath
	fromName string
	toPath   ServerPath
	toName   string

	state renameState
}

func newRenameOp(fromPath ServerPath, fromName string, toPath ServerPath, toName string) *renameOp {
	return &renameOp{fromPath: fromPath, fromName: fromName, toPath: toPath, toName: toName}
}

func (o *renameOp) Send(ctx opContext) (Result, Status, error) {
	cs := ctx.cs

	switch o.state {
	case renameChangeDir:
		cs.stack.push(newChangeDirOp(changeDirArgs{Path: &o.fromPath}))

		return ResultContinue, StatusOk, nil

	case renameRnfr:
		if err := cs.sendLine("RNFR " + o.fromPath.AddSegment(o.fromName).String()); err != nil {
			return ResultError, StatusError, err
		}

		return ResultWouldBlock, StatusOk, nil

	case renameRnto:
		if err := cs.sendLine("RNTO " + o.toPath.AddSegment(o.toName).String()); err != nil {
			return ResultError, StatusError, err
		}

		return ResultWouldBlock, StatusOk, nil

	default:
		return ResultOk, StatusOk, nil
	}
}

func (o *renameOp) ParseResponse(ctx opContext, reply Reply) (Result, Status, error) {
	cs := ctx.cs

	switch o.state {
	case renameRnfr:
		if reply.Class() != 3 && reply.Class() != 2 {
			return ResultError, StatusError, NewProtocolError("RNFR failed: "+reply.FullText(), StatusError, nil)
		}

		o.state = renameRnto

		return ResultContinue, StatusOk, nil

	case renameRnto:
		if reply.Class() != 2 {
			return ResultError, StatusError, NewProtocolError("RNTO failed: "+reply.FullText(), StatusError, nil)
		}

		from := o.fromPath.AddSegment(o.fromName)
		to := o.toPath.AddSegment(o.toName)

		key := cs.server.Key()
		cs.engine.DirCache.Invalidate(key, from)
		cs.engine.DirCache.Invalidate(key, to)
		cs.engine.DirCache.Update(key, o.fromPath, UnsureRename)
		cs.engine.DirCache.Update(key, o.toPath, UnsureRename)
		cs.engine.PathCache.Invalidate(key, from)
		cs.engine.PathCache.Invalidate(key, to)
		cs.notifier.DirectoryListingChanged(cs.server, o.fromPath)
		cs.notifier.DirectoryListingChanged(cs.server, o.toPath)

		return ResultOk, StatusOk, nil

	default:
		return ResultOk, StatusOk, nil
	}
}

func (o *renameOp) SubcommandResult(ctx opContext, status Status, err error) (Result, Status, error) {
	if !status.Ok() {
		return ResultError, status, err
	}

	o.state = renameRnfr

	return ResultContinue, StatusOk, nil
}
