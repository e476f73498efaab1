package ftpclient

// chmodState enumerates the steps of the Chmod operation.
type chmodState int

const (
	chmodChangeDir chmodState = iota
	chmodSite
)

// chmodOp issues SITE CHMOD <perm> <path> against name, relative to path.
type chmodOp struct {
	path       ServerPath
	name       string
	permission string

	state chmodState
}

func newChmodOp(path ServerPath, name, permission string) *chmodOp {
	return &chmodOp{path: path, name: name, permission: permission}
}

func (o *chmodOp) Send(ctx opContext) (Result, Status, error) {
	cs := ctx.cs

	switch o.state {
	case chmodChangeDir:
		cs.stack.push(newChangeDirOp(changeDirArgs{Path: &o.path}))

		return ResultContinue, StatusOk, nil

	case chmodSite:
		if err := cs.sendLine("SITE CHMOD " + o.permission + " " + o.name); err != nil {
			return ResultError, StatusError, err
		}

		return ResultWouldBlock, StatusOk, nil

	default:
		return ResultOk, StatusOk, nil
	}
}

func (o *chmodOp) ParseResponse(ctx opContext, reply Reply) (Result, Status, error) {
	if o.state != chmodSite {
		return ResultOk, StatusOk, nil
	}

	cs := ctx.cs

	if reply.Class() != 2 {
		return ResultError, StatusError, NewProtocolError("SITE CHMOD failed: "+reply.FullText(), StatusError, nil)
	}

	// Mark the file's cached state unknown rather than guessing the new
	// permission string locally; the next List refreshes it for real.
	cs.engine.DirCache.Update(cs.server.Key(), o.path.AddSegment(o.name), UnsureChmod)

	return ResultOk, StatusOk, nil
}

func (o *chmodOp) SubcommandResult(ctx opContext, status Status, err error) (Result, Status, error) {
	if !status.Ok() {
		return ResultError, status, err
	}

	o.state = chmodSite

	return ResultContinue, StatusOk, nil
}
