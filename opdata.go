package ftpclient

import "github.com/fclairamb/go-log"

// Result is the outcome of a send() or parseResponse() call on an OpData.
type Result int

// Results an operation step can return, per the engine's control flow.
const (
	// ResultWouldBlock means a command was issued (or we're waiting on a
	// non-protocol event); release control until the next event arrives.
	ResultWouldBlock Result = iota
	// ResultContinue means the operation pushed a nested operation (or
	// otherwise wants send() called again immediately).
	ResultContinue
	// ResultOk means the operation completed successfully; pop it and
	// report success to its parent.
	ResultOk
	// ResultError means the operation failed; status carries the flags.
	ResultError
)

// opContext is the shared state operations read and mutate, threaded
// through send()/parseResponse()/subcommandResult() instead of a
// pointer-back-link to the ControlSocket. This removes the cyclic
// op<->control-socket ownership the original engine used.
type opContext struct {
	cs *ControlSocket
}

func (c opContext) engine() *Engine     { return c.cs.engine }
func (c opContext) server() Server      { return c.cs.server }
func (c opContext) logger() log.Logger  { return c.cs.logger }

// OpData is the uniform interface every operation (Logon, ChangeDir, List,
// FileTransfer, RawTransfer, Delete, Mkdir, RemoveDir, Rename, Chmod,
// RawCommand) implements. A ControlSocket owns an explicit stack of these;
// operations never hold a pointer back to the ControlSocket or to their
// parent, only to the opContext handed to them at construction.
type OpData interface {
	// Send runs the next protocol step. It may issue a command
	// (ResultWouldBlock), push a nested operation onto the stack and
	// request another Send (ResultContinue), or report completion
	// (ResultOk/ResultError).
	Send(ctx opContext) (Result, Status, error)

	// ParseResponse is called with every reply delivered to this
	// operation while it is at the top of the stack.
	ParseResponse(ctx opContext, reply Reply) (Result, Status, error)

	// SubcommandResult is invoked on the parent operation when a nested
	// operation it pushed completes, carrying the child's final status.
	SubcommandResult(ctx opContext, status Status, err error) (Result, Status, error)
}

// opStack is the LIFO stack of in-flight operations a ControlSocket drives.
// The top of the stack receives every reply (subject to repliesToSkip);
// completion of the top operation invokes the new top's SubcommandResult.
type opStack struct {
	items []OpData
}

func (s *opStack) push(op OpData) {
	s.items = append(s.items, op)
}

func (s *opStack) pop() OpData {
	if len(s.items) == 0 {
		return nil
	}

	top := s.items[len(s.items)-1]
	s.items = s.items[:len(s.items)-1]

	return top
}

func (s *opStack) top() OpData {
	if len(s.items) == 0 {
		return nil
	}

	return s.items[len(s.items)-1]
}

func (s *opStack) empty() bool {
	return len(s.items) == 0
}

func (s *opStack) reset() {
	s.items = nil
}

// TransferContext is shared between a FileTransfer/List operation and the
// RawTransfer child it pushes to actually move bytes.
type TransferContext struct {
	Binary             bool
	ResumeOffset       int64
	TransferCommandSent bool
	EndReason          TransferEndReason
}

// transferAware is implemented by the one operation type that can sit atop
// the stack while a TransferSocket is running (rawTransferOp). Only events
// from the current TransferSocket are honored, so dispatch type-asserts for
// this rather than adding a no-op method to every other OpData implementation.
type transferAware interface {
	TransferEnd(ctx opContext, reason TransferEndReason, bytesTransferred int64, err error) (Result, Status, error)
}
