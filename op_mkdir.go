package ftpclient

import "strings"

// mkdirState walks up from the target path looking for an ancestor the
// server accepts via CWD, then issues MKD for each missing segment back
// down to the target. If the walk finds no acceptable ancestor at all, it
// falls back to a single MKD against the full path.
type mkdirState int

const (
	mkdirWalkUp mkdirState = iota
	mkdirCreateDown
	mkdirFallbackFull
)

// mkdirOp implements the Mkdir operation.
type mkdirOp struct {
	state  mkdirState
	target ServerPath

	// walked is the prefix of target.segments() already confirmed to exist
	// (found by walking upward with CWD); toCreate is what's left to MKD,
	// shallowest first.
	existingDepth int
	toCreate      []ServerPath

	lastMkdPath ServerPath
}

func newMkdirOp(target ServerPath) *mkdirOp {
	return &mkdirOp{target: target}
}

func (o *mkdirOp) Send(ctx opContext) (Result, Status, error) {
	cs := ctx.cs

	switch o.state {
	case mkdirWalkUp:
		// Try the full target first; on failure we walk the parent chain
		// one level at a time via a nested ChangeDir probe.
		return ResultContinue, StatusOk, o.pushProbe(cs)

	case mkdirCreateDown:
		if len(o.toCreate) == 0 {
			return ResultOk, StatusOk, nil
		}

		o.lastMkdPath = o.toCreate[0]
		o.toCreate = o.toCreate[1:]

		if err := cs.sendLine("MKD " + o.lastMkdPath.LastSegment()); err != nil {
			return ResultError, StatusError, err
		}

		return ResultWouldBlock, StatusOk, nil

	case mkdirFallbackFull:
		o.lastMkdPath = o.target

		if err := cs.sendLine("MKD " + o.target.String()); err != nil {
			return ResultError, StatusError, err
		}

		return ResultWouldBlock, StatusOk, nil

	default:
		return ResultOk, StatusOk, nil
	}
}

// pushProbe pushes a ChangeDir against the deepest ancestor not yet known to
// exist, walking upward one level per SubcommandResult until one succeeds or
// we reach the root.
func (o *mkdirOp) pushProbe(cs *ControlSocket) error {
	depth := o.probeDepth()
	if depth < 0 {
		// Walked all the way to the root without an ancestor answering;
		// nothing to CWD into, so fall back to a direct full-path MKD.
		o.state = mkdirFallbackFull

		return nil
	}

	segs := o.target.segmentsUpTo(depth)
	probePath := pathFromSegments(o.target, segs)

	cs.stack.push(newChangeDirOp(changeDirArgs{Path: &probePath}))

	return nil
}

func (o *mkdirOp) probeDepth() int {
	n := o.target.Depth()
	depth := n - 1 - o.existingDepth

	if depth < 0 {
		return -1
	}

	return depth
}

func (o *mkdirOp) ParseResponse(ctx opContext, reply Reply) (Result, Status, error) {
	cs := ctx.cs

	switch o.state {
	case mkdirCreateDown:
		return o.parseMkd(cs, reply)
	case mkdirFallbackFull:
		return o.parseMkdFallback(cs, reply)
	default:
		return ResultOk, StatusOk, nil
	}
}

func (o *mkdirOp) parseMkd(cs *ControlSocket, reply Reply) (Result, Status, error) {
	if reply.Class() != 2 {
		// A segment we believed didn't exist failed to create; surface the
		// error rather than silently continuing down a broken chain.
		return ResultError, StatusError, NewProtocolError("MKD failed: "+reply.FullText(), StatusError, nil)
	}

	cs.engine.DirCache.Update(cs.server.Key(), o.lastMkdPath.Parent(), UnsureMkdir)
	cs.engine.DirCache.Update(cs.server.Key(), o.lastMkdPath, UnsureMkdir)

	if len(o.toCreate) == 0 {
		return ResultOk, StatusOk, nil
	}

	return ResultContinue, StatusOk, nil
}

// parseMkdFallback applies the decided "already exists" heuristic (see
// DESIGN.md): a 5xx reply whose text mentions "exist" independently of the
// target path text itself is treated as a benign "the leaf is already
// there", not as a genuine failure, so Mkdir completes Ok either way. Any
// other 5xx is a real failure.
func (o *mkdirOp) parseMkdFallback(cs *ControlSocket, reply Reply) (Result, Status, error) {
	if reply.Class() == 2 {
		cs.engine.DirCache.Update(cs.server.Key(), o.target.Parent(), UnsureMkdir)
		cs.engine.DirCache.Update(cs.server.Key(), o.target, UnsureMkdir)

		return ResultOk, StatusOk, nil
	}

	if mkdirAlreadyExists(reply.FullText(), o.target.String()) {
		return ResultOk, StatusOk, nil
	}

	return ResultError, StatusError, NewProtocolError("MKD failed: "+reply.FullText(), StatusError, nil)
}

// mkdirAlreadyExists implements the disambiguated rule for the source's
// "already exists" heuristic: strip the target path text out of
// the lower-cased response before checking for "exist", so a path that
// itself contains the substring "exist" doesn't produce a false positive.
func mkdirAlreadyExists(responseText, targetPath string) bool {
	lowerResp := strings.ToLower(responseText)
	lowerPath := strings.ToLower(targetPath)

	withoutPath := strings.ReplaceAll(lowerResp, lowerPath, "")

	return strings.Contains(withoutPath, "exist")
}

func (o *mkdirOp) SubcommandResult(ctx opContext, status Status, err error) (Result, Status, error) {
	if status.Ok() {
		// The probe ChangeDir succeeded: everything from the root down to
		// this depth exists. Build the list of segments still to create,
		// shallowest first, and start issuing MKD.
		o.existingDepth = o.probeDepth() + 1
		o.toCreate = o.buildCreateList()
		o.state = mkdirCreateDown

		return ResultContinue, StatusOk, nil
	}

	// This ancestor doesn't exist either (or isn't reachable); walk one
	// level further up.
	o.existingDepth++

	if o.probeDepth() < 0 {
		o.state = mkdirFallbackFull

		return ResultContinue, StatusOk, nil
	}

	return ResultContinue, StatusOk, o.pushProbe(ctx.cs)
}

// buildCreateList returns every ancestor of target strictly below the
// confirmed-existing depth, shallowest first, ending with target itself.
func (o *mkdirOp) buildCreateList() []ServerPath {
	n := o.target.Depth()

	list := make([]ServerPath, 0, n-o.existingDepth)

	for d := o.existingDepth + 1; d <= n; d++ {
		segs := o.target.segmentsUpTo(d)
		list = append(list, pathFromSegments(o.target, segs))
	}

	return list
}
