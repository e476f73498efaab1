package ftpclient

// rawCommandOp sends a user-supplied command verbatim and forwards every
// reply it gets back to the host via Notifier.Log, completing as soon as a
// non-preliminary reply arrives.
type rawCommandOp struct {
	command string
	sent    bool
}

func newRawCommandOp(command string) *rawCommandOp {
	return &rawCommandOp{command: command}
}

func (o *rawCommandOp) Send(ctx opContext) (Result, Status, error) {
	cs := ctx.cs

	if o.sent {
		return ResultOk, StatusOk, nil
	}

	o.sent = true

	if err := cs.sendLine(o.command); err != nil {
		return ResultError, StatusError, err
	}

	return ResultWouldBlock, StatusOk, nil
}

func (o *rawCommandOp) ParseResponse(ctx opContext, reply Reply) (Result, Status, error) {
	cs := ctx.cs

	cs.notifier.Log(MsgResponse, cs.server, reply.FullText())

	if reply.Preliminary() {
		return ResultWouldBlock, StatusOk, nil
	}

	if reply.Class() == 4 || reply.Class() == 5 {
		return ResultError, StatusError, NewProtocolError("command failed: "+reply.FullText(), StatusError, nil)
	}

	return ResultOk, StatusOk, nil
}

func (o *rawCommandOp) SubcommandResult(ctx opContext, status Status, err error) (Result, Status, error) {
	return ResultOk, status, err
}
