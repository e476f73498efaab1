package ftpclient

import (
	"strconv"
	"time"

	"github.com/fclairamb/ftpclient/listingparser"
)

// listState enumerates the steps of the List sequence.
type listState int

const (
	listInit listState = iota
	listWaitCwd
	listAcquiringLock
	listCheckFresh
	listIssue
	listWaitList
	listWaitMdtm
	listDone
)

// listArgs carries a List operation's inputs. Path nil means "list the
// current directory"; otherwise it names the directory to ChangeDir into
// first.
type listArgs struct {
	Path         *ServerPath
	ForceRefresh bool
}

// listOp implements List: it serializes concurrent listings of the same
// path with DirectoryCache.Lock, serves a fresh cached copy without
// touching the network when one exists, and otherwise pushes a RawTransfer
// child to pull LIST/MLSD bytes off a data connection.
type listOp struct {
	args  listArgs
	state listState

	targetPath ServerPath
	unlock     func()

	usingMLSD  bool
	triedDashA bool

	transfer *rawTransferOp

	rawEntries []listingparser.Entry

	tzCandidate     string
	tzCandidateTime time.Time

	result DirectoryListing
}

func newListOp(args listArgs) *listOp {
	return &listOp{args: args}
}

// Result returns the listing this operation produced, once it has
// completed successfully.
func (o *listOp) Result() DirectoryListing { return o.result }

func (o *listOp) Send(ctx opContext) (Result, Status, error) {
	cs := ctx.cs

	switch o.state {
	case listInit:
		cs.stack.push(newChangeDirOp(changeDirArgs{Path: o.args.Path}))
		o.state = listWaitCwd

		return ResultContinue, StatusOk, nil

	case listCheckFresh:
		return o.checkFreshOrIssue(cs)

	case listIssue:
		return o.issueListCommand(cs)

	case listWaitMdtm:
		if err := cs.sendLine("MDTM " + o.tzCandidate); err != nil {
			return ResultError, StatusError, err
		}

		return ResultWouldBlock, StatusOk, nil

	default:
		return ResultWouldBlock, StatusOk, nil
	}
}

// checkFreshOrIssue runs once the directory lock is held: a fresh cached
// listing is returned without any network I/O, otherwise a LIST/MLSD is
// issued.
func (o *listOp) checkFreshOrIssue(cs *ControlSocket) (Result, Status, error) {
	if !o.args.ForceRefresh {
		if cached, ok := cs.engine.DirCache.Fresh(cs.server.Key(), o.targetPath, listCacheMaxAge); ok {
			o.result = cached
			o.releaseLock()

			return ResultOk, StatusOk, nil
		}
	}

	o.state = listIssue

	return o.issueListCommand(cs)
}

// listCacheMaxAge is how long a cached listing is trusted before a List
// call re-fetches it from the server.
const listCacheMaxAge = 15 * time.Second

// beginLockAcquire takes the directory-cache lock off the event-loop
// goroutine: DirectoryCache.Lock blocks until any earlier holder for the
// same path releases it, which would otherwise stall every other
// connection's operations sharing this single-threaded loop.
func (o *listOp) beginLockAcquire(cs *ControlSocket) {
	server := cs.server.Key()
	path := o.targetPath

	go func() {
		unlock := cs.engine.DirCache.Lock(server, path)

		select {
		case cs.submit <- func() {
			if !cs.isTopOfStack(o) {
				unlock()

				return
			}

			o.unlock = unlock
			o.state = listCheckFresh
			cs.sendNextCommand()
		}:
		case <-cs.done:
			unlock()
		}
	}()
}

func (o *listOp) issueListCommand(cs *ControlSocket) (Result, Status, error) {
	key := cs.server.Key()

	mode := listingparser.ModeUnixList
	command := "LIST"
	argument := "-a"

	if state, _ := cs.engine.Capabilities.Get(key, CapMLSD); state == TriYes {
		mode = listingparser.ModeMLSD
		command = "MLSD"
		argument = ""
		o.usingMLSD = true
	} else if state, _ := cs.engine.Capabilities.Get(key, CapListDashA); state == TriNo {
		argument = ""
	}

	o.triedDashA = argument == "-a"

	tc := &TransferContext{Binary: true}

	child := newRawTransferOp(rawTransferArgs{
		Command: command,
		Argument: argument,
		Kind:      rawTransferList,
		Ctx:       tc,
		Parser:    listingparser.New(mode),
		Direction: TransferDownload,
	})

	o.transfer = child
	o.state = listWaitList
	cs.stack.push(child)

	return ResultContinue, StatusOk, nil
}

func (o *listOp) ParseResponse(ctx opContext, reply Reply) (Result, Status, error) {
	cs := ctx.cs

	switch o.state {
	case listWaitCwd:
		return ResultWouldBlock, StatusOk, nil

	case listWaitMdtm:
		return o.parseMdtm(cs, reply)

	default:
		return ResultWouldBlock, StatusOk, nil
	}
}

func (o *listOp) parseMdtm(cs *ControlSocket, reply Reply) (Result, Status, error) {
	if reply.Class() == 2 {
		if t, err := listingparser.ParseMLSXTime(firstField(reply.Text)); err == nil {
			offset := t.Sub(o.tzCandidateTime)
			cs.engine.Capabilities.Set(cs.server.Key(), CapTimezoneOffsetMinutes, TriYes,
				strconv.Itoa(int(offset.Minutes())))

			o.applyTimezoneOffset(offset)
		}
	}

	o.finish(cs)

	return ResultOk, StatusOk, nil
}

func firstField(text string) string {
	for i, r := range text {
		if r == ' ' {
			return text[:i]
		}
	}

	return text
}

// applyTimezoneOffset corrects every minute-precision entry's ModTime by
// the offset discovered from the MDTM probe, then rebuilds the reported
// DirEntry list from the corrected raw entries.
func (o *listOp) applyTimezoneOffset(offset time.Duration) {
	for i := range o.rawEntries {
		e := &o.rawEntries[i]
		if e.HasModTime && e.MinutePrecision {
			e.ModTime = e.ModTime.Add(offset)
		}
	}

	o.result.Entries = toDirEntries(o.rawEntries)
}

func (o *listOp) SubcommandResult(ctx opContext, status Status, err error) (Result, Status, error) {
	cs := ctx.cs

	switch o.state {
	case listWaitCwd:
		if !status.Ok() {
			return ResultError, status, err
		}

		o.targetPath = cs.currentPath
		o.state = listAcquiringLock
		o.beginLockAcquire(cs)

		return ResultWouldBlock, StatusOk, nil

	case listWaitList:
		return o.handleTransferResult(cs, status, err)

	default:
		return ResultOk, status, err
	}
}

func (o *listOp) handleTransferResult(cs *ControlSocket, status Status, err error) (Result, Status, error) {
	key := cs.server.Key()

	if !status.Ok() {
		if o.usingMLSD {
			cs.engine.Capabilities.Set(key, CapMLSD, TriNo, "")
		} else if o.triedDashA {
			cs.engine.Capabilities.Set(key, CapListDashA, TriNo, "")
			o.state = listIssue

			return ResultContinue, StatusOk, nil
		}

		o.releaseLock()

		return ResultError, status, err
	}

	if o.usingMLSD {
		cs.engine.Capabilities.Set(key, CapMLSD, TriYes, "")
	} else if o.triedDashA {
		cs.engine.Capabilities.Set(key, CapListDashA, TriYes, "")
	}

	o.rawEntries = o.transfer.ParsedEntries()

	o.result = DirectoryListing{
		Path:          o.targetPath,
		Entries:       toDirEntries(o.rawEntries),
		FirstListTime: time.Now(),
	}

	if o.usingMLSD {
		cs.engine.Capabilities.Set(key, CapForceUTCTimezone, TriYes, "")
	}

	if o.shouldProbeTimezone(cs) {
		o.state = listWaitMdtm

		return ResultContinue, StatusOk, nil
	}

	o.finish(cs)

	return ResultOk, StatusOk, nil
}

// shouldProbeTimezone decides whether a minute-precision LIST entry is
// available to anchor a timezone-offset probe, skipping the probe entirely
// on servers already known to report UTC (MLSD/MLST) or whose offset is
// already known.
func (o *listOp) shouldProbeTimezone(cs *ControlSocket) bool {
	key := cs.server.Key()

	if state, _ := cs.engine.Capabilities.Get(key, CapForceUTCTimezone); state == TriYes {
		return false
	}

	if state, _ := cs.engine.Capabilities.Get(key, CapTimezoneOffsetMinutes); state != TriUnknown {
		return false
	}

	for _, e := range o.rawEntries {
		if !e.HasModTime || !e.MinutePrecision || e.IsDir {
			continue
		}

		o.tzCandidate = e.Name
		o.tzCandidateTime = e.ModTime

		return true
	}

	return false
}

func (o *listOp) finish(cs *ControlSocket) {
	cs.engine.DirCache.Store(cs.server.Key(), o.result)
	cs.notifier.DirectoryListingChanged(cs.server, o.targetPath)
	o.releaseLock()
}

func (o *listOp) releaseLock() {
	if o.unlock != nil {
		o.unlock()
		o.unlock = nil
	}
}

func toDirEntries(entries []listingparser.Entry) []DirEntry {
	out := make([]DirEntry, 0, len(entries))

	for _, e := range entries {
		out = append(out, DirEntry{
			Name:        e.Name,
			Size:        e.Size,
			ModTime:     e.ModTime,
			Permissions: e.Permissions,
			Owner:       e.Owner,
			Group:       e.Group,
			IsDir:       e.IsDir,
			IsLink:      e.IsLink,
			LinkTarget:  e.LinkTarget,
		})
	}

	return out
}
