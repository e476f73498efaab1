package ftpclient

// changeDirState enumerates the steps of the ChangeDir sequence.
type changeDirState int

const (
	cdInit changeDirState = iota
	cdPwdOnly
	cdCwdMain
	cdMkdirRetryWait
	cdPwdAfterCwd
	cdCwdSub
	cdCwdSubFallback
	cdPwdSub
	cdDone
)

// changeDirArgs carries a ChangeDir operation's inputs. Path nil together
// with an empty Subdir means "just tell me the current directory" (a bare
// PWD); otherwise Path is the directory to CWD into before optionally
// descending into Subdir.
type changeDirArgs struct {
	Path          *ServerPath
	Subdir        string
	LinkDiscovery bool
	TryMkdOnFail  bool
}

// changeDirOp implements ChangeDir. It is pushed both as a top-level
// operation (from the host's change_dir command) and as a nested dependency
// by List, FileTransfer, Delete, RemoveDir, and Mkdir's own ancestor walk.
type changeDirOp struct {
	args changeDirArgs
	state changeDirState

	pwdConfirmedByCwd bool
	mkdirRetried      bool

	// resultPath is the canonical path this operation resolved to, reported
	// via SubcommandResult to whichever operation pushed it.
	resultPath ServerPath
}

func newChangeDirOp(args changeDirArgs) *changeDirOp {
	return &changeDirOp{args: args}
}

func (o *changeDirOp) Send(ctx opContext) (Result, Status, error) {
	cs := ctx.cs

	switch o.state {
	case cdInit:
		if o.args.Path == nil && o.args.Subdir == "" {
			o.state = cdPwdOnly

			return ResultContinue, StatusOk, nil
		}

		o.state = cdCwdMain

		return ResultContinue, StatusOk, nil

	case cdPwdOnly, cdPwdAfterCwd, cdPwdSub:
		if err := cs.sendLine("PWD"); err != nil {
			return ResultError, StatusError, err
		}

		return ResultWouldBlock, StatusOk, nil

	case cdCwdMain:
		if cached, ok := cs.engine.PathCache.Lookup(cs.server.Key(), cs.currentPath, o.args.Path.String()); ok && o.args.Subdir == "" {
			o.resultPath = cached
			cs.currentPath = cached
			o.state = cdDone

			return ResultOk, StatusOk, nil
		}

		if err := cs.sendLine("CWD " + o.args.Path.String()); err != nil {
			return ResultError, StatusError, err
		}

		return ResultWouldBlock, StatusOk, nil

	case cdCwdSub:
		if o.args.Subdir == ".." {
			if err := cs.sendLine("CDUP"); err != nil {
				return ResultError, StatusError, err
			}

			return ResultWouldBlock, StatusOk, nil
		}

		if err := cs.sendLine("CWD " + cs.currentPath.FormatSubdir(o.args.Subdir)); err != nil {
			return ResultError, StatusError, err
		}

		return ResultWouldBlock, StatusOk, nil

	case cdCwdSubFallback:
		if err := cs.sendLine("CWD .."); err != nil {
			return ResultError, StatusError, err
		}

		return ResultWouldBlock, StatusOk, nil

	case cdMkdirRetryWait:
		return ResultWouldBlock, StatusOk, nil

	default:
		return ResultOk, StatusOk, nil
	}
}

func (o *changeDirOp) ParseResponse(ctx opContext, reply Reply) (Result, Status, error) {
	cs := ctx.cs

	switch o.state {
	case cdPwdOnly:
		return o.parsePwdOnly(cs, reply)
	case cdCwdMain:
		return o.parseCwdMain(ctx, reply)
	case cdPwdAfterCwd:
		return o.parsePwdAfterCwd(cs, reply)
	case cdCwdSub:
		return o.parseCwdSub(cs, reply)
	case cdCwdSubFallback:
		return o.parseCwdSubFallback(cs, reply)
	case cdPwdSub:
		return o.parsePwdSub(cs, reply)
	default:
		return ResultOk, StatusOk, nil
	}
}

func (o *changeDirOp) parsePwdOnly(cs *ControlSocket, reply Reply) (Result, Status, error) {
	if reply.Class() != 2 {
		return ResultError, StatusError, NewProtocolError("PWD failed: "+reply.FullText(), StatusError, nil)
	}

	raw, err := extractPwdQuoted(reply.Text)
	if err != nil {
		return ResultError, StatusError, err
	}

	o.resultPath = NewServerPath(raw, pathStyleFor(cs.server.Type))
	cs.currentPath = o.resultPath
	o.state = cdDone

	return ResultOk, StatusOk, nil
}

func (o *changeDirOp) parseCwdMain(ctx opContext, reply Reply) (Result, Status, error) {
	cs := ctx.cs

	if reply.Class() != 2 && reply.Class() != 3 {
		if o.args.TryMkdOnFail && !o.mkdirRetried {
			o.mkdirRetried = true
			o.state = cdMkdirRetryWait
			cs.stack.push(newMkdirOp(*o.args.Path))

			return ResultContinue, StatusOk, nil
		}

		return ResultError, StatusError, NewProtocolError("CWD failed: "+reply.FullText(), StatusError, nil)
	}

	// The engine never speculatively sets current_path: some servers echo
	// the resolved path in the CWD reply text, but we always confirm via a
	// real PWD round-trip.
	o.pwdConfirmedByCwd = false

	if o.args.Subdir != "" {
		o.state = cdCwdSub

		return ResultContinue, StatusOk, nil
	}

	o.state = cdPwdAfterCwd

	return ResultContinue, StatusOk, nil
}

func (o *changeDirOp) parsePwdAfterCwd(cs *ControlSocket, reply Reply) (Result, Status, error) {
	if reply.Class() != 2 {
		return ResultError, StatusError, NewProtocolError("PWD after CWD failed: "+reply.FullText(), StatusError, nil)
	}

	raw, err := extractPwdQuoted(reply.Text)
	if err != nil {
		return ResultError, StatusError, err
	}

	o.resultPath = NewServerPath(raw, pathStyleFor(cs.server.Type))
	cs.engine.PathCache.Store(cs.server.Key(), cs.currentPath, o.args.Path.String(), o.resultPath)
	cs.currentPath = o.resultPath
	o.state = cdDone

	return ResultOk, StatusOk, nil
}

func (o *changeDirOp) parseCwdSub(cs *ControlSocket, reply Reply) (Result, Status, error) {
	if reply.Class() != 2 && reply.Class() != 3 {
		if o.args.Subdir == ".." {
			o.state = cdCwdSubFallback

			return ResultContinue, StatusOk, nil
		}

		if o.args.LinkDiscovery {
			return ResultError, StatusError | StatusLinkNotDir,
				NewProtocolError("CWD target is not a directory: "+reply.FullText(), StatusLinkNotDir, nil)
		}

		return ResultError, StatusError, NewProtocolError("CWD subdir failed: "+reply.FullText(), StatusError, nil)
	}

	o.state = cdPwdSub

	return ResultContinue, StatusOk, nil
}

func (o *changeDirOp) parseCwdSubFallback(cs *ControlSocket, reply Reply) (Result, Status, error) {
	if reply.Class() != 2 && reply.Class() != 3 {
		if o.args.LinkDiscovery {
			return ResultError, StatusError | StatusLinkNotDir,
				NewProtocolError("CWD .. is not a directory: "+reply.FullText(), StatusLinkNotDir, nil)
		}

		return ResultError, StatusError, NewProtocolError("CWD .. failed: "+reply.FullText(), StatusError, nil)
	}

	o.state = cdPwdSub

	return ResultContinue, StatusOk, nil
}

func (o *changeDirOp) parsePwdSub(cs *ControlSocket, reply Reply) (Result, Status, error) {
	if reply.Class() != 2 {
		return ResultError, StatusError, NewProtocolError("PWD after subdir CWD failed: "+reply.FullText(), StatusError, nil)
	}

	raw, err := extractPwdQuoted(reply.Text)
	if err != nil {
		return ResultError, StatusError, err
	}

	o.resultPath = NewServerPath(raw, pathStyleFor(cs.server.Type))

	parent := cs.currentPath
	if o.args.Path != nil {
		parent = *o.args.Path
	}

	cs.engine.PathCache.Store(cs.server.Key(), parent, o.args.Subdir, o.resultPath)
	cs.currentPath = o.resultPath
	o.state = cdDone

	return ResultOk, StatusOk, nil
}

func (o *changeDirOp) SubcommandResult(ctx opContext, status Status, err error) (Result, Status, error) {
	if o.state != cdMkdirRetryWait {
		return ResultOk, status, err
	}

	if !status.Ok() {
		return ResultError, status, err
	}

	// Mkdir created the target; retry the CWD that originally failed.
	o.state = cdCwdMain

	return ResultContinue, StatusOk, nil
}
