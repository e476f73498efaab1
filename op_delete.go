package ftpclient

import "time"

// deleteState enumerates the steps of the Delete operation.
type deleteState int

const (
	deleteChangeDir deleteState = iota
	deleteDele
	deleteDone
)

// deleteOp issues DELE for each of Names, after first ensuring the working
// directory via a nested ChangeDir. Directory-cache invalidation is batched
// to at most one notification per second.
type deleteOp struct {
	path  ServerPath
	names []string

	state deleteState
	idx   int

	lastNotify time.Time
	anyDeleted bool
}

func newDeleteOp(path ServerPath, names []string) *deleteOp {
	return &deleteOp{path: path, names: names}
}

func (o *deleteOp) Send(ctx opContext) (Result, Status, error) {
	cs := ctx.cs

	switch o.state {
	case deleteChangeDir:
		cs.stack.push(newChangeDirOp(changeDirArgs{Path: &o.path}))

		return ResultContinue, StatusOk, nil

	case deleteDele:
		if o.idx >= len(o.names) {
			return ResultOk, StatusOk, nil
		}

		name := o.names[o.idx]

		if err := cs.sendLine("DELE " + name); err != nil {
			return ResultError, StatusError, err
		}

		return ResultWouldBlock, StatusOk, nil

	default:
		return ResultOk, StatusOk, nil
	}
}

func (o *deleteOp) ParseResponse(ctx opContext, reply Reply) (Result, Status, error) {
	cs := ctx.cs

	if o.state != deleteDele {
		return ResultOk, StatusOk, nil
	}

	name := o.names[o.idx]
	o.idx++

	if reply.Class() != 2 {
		return ResultError, StatusError, NewProtocolError("DELE "+name+" failed: "+reply.FullText(), StatusError, nil)
	}

	o.anyDeleted = true
	cs.engine.DirCache.Update(cs.server.Key(), o.path, UnsureDelete)
	o.notifyThrottled(cs)

	if o.idx >= len(o.names) {
		o.state = deleteDone

		return ResultOk, StatusOk, nil
	}

	return ResultContinue, StatusOk, nil
}

// notifyThrottled emits at most one directory-listing-changed notification
// per second while multiple deletions are in flight.
func (o *deleteOp) notifyThrottled(cs *ControlSocket) {
	if !o.lastNotify.IsZero() && time.Since(o.lastNotify) < time.Second {
		return
	}

	o.lastNotify = time.Now()
	cs.notifier.DirectoryListingChanged(cs.server, o.path)
}

func (o *deleteOp) SubcommandResult(ctx opContext, status Status, err error) (Result, Status, error) {
	if !status.Ok() {
		return ResultError, status, err
	}

	o.state = deleteDele

	return ResultContinue, StatusOk, nil
}
