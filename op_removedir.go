package ftpclient

// removeDirState enumerates the steps of the RemoveDir operation.
type removeDirState int

const (
	rmdChangeDir removeDirState = iota
	rmdRmd
)

// removeDirOp changes into parent, then issues RMD against subdir.
type removeDirOp struct {
	parent ServerPath
	subdir string
	state  removeDirState
}

func newRemoveDirOp(parent ServerPath, subdir string) *removeDirOp {
	return &removeDirOp{parent: parent, subdir: subdir}
}

func (o *removeDirOp) Send(ctx opContext) (Result, Status, error) {
	cs := ctx.cs

	switch o.state {
	case rmdChangeDir:
		cs.stack.push(newChangeDirOp(changeDirArgs{Path: &o.parent}))

		return ResultContinue, StatusOk, nil

	case rmdRmd:
		if err := cs.sendLine("RMD " + o.subdir); err != nil {
			return ResultError, StatusError, err
		}

		return ResultWouldBlock, StatusOk, nil

	default:
		return ResultOk, StatusOk, nil
	}
}

func (o *removeDirOp) ParseResponse(ctx opContext, reply Reply) (Result, Status, error) {
	if o.state != rmdRmd {
		return ResultOk, StatusOk, nil
	}

	cs := ctx.cs

	if reply.Class() != 2 {
		return ResultError, StatusError, NewProtocolError("RMD failed: "+reply.FullText(), StatusError, nil)
	}

	target := o.parent.AddSegment(o.subdir)
	cs.engine.DirCache.Invalidate(cs.server.Key(), target)
	cs.engine.DirCache.Update(cs.server.Key(), o.parent, UnsureDelete)
	cs.engine.PathCache.Invalidate(cs.server.Key(), target)
	cs.notifier.DirectoryListingChanged(cs.server, o.parent)

	return ResultOk, StatusOk, nil
}

func (o *removeDirOp) SubcommandResult(ctx opContext, status Status, err error) (Result, Status, error) {
	if !status.Ok() {
		return ResultError, status, err
	}

	o.state = rmdRmd

	return ResultContinue, StatusOk, nil
}
