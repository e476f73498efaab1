// Package localfs implements the pull/push byte producer the engine treats as
// an external collaborator: the local filesystem "I/O thread" a transfer
// operation reads from (upload) or writes to (download). Backed by
// afero.Fs, the same abstraction the teacher uses for its ClientDriver, so
// tests can swap in an in-memory filesystem without touching real disk.
package localfs

import (
	"io"
	"os"

	"github.com/spf13/afero"
)

// Direction distinguishes which side of a transfer a Transfer serves.
type Direction int

// Supported directions.
const (
	// DirectionDownload means bytes arrive off the wire and are pushed into
	// the local file.
	DirectionDownload Direction = iota
	// DirectionUpload means bytes are pulled from the local file to be sent
	// over the wire.
	DirectionUpload
)

// Transfer owns one afero.File for the lifetime of a single RawTransfer
// operation, tracking how many bytes have moved through it and exposing the
// finalize handshake: the socket pulls/pushes bytes
// through Pull/Push, then calls Finalize exactly once when the wire side is
// done (successfully or not).
type Transfer struct {
	fs   afero.Fs
	path string
	dir  Direction

	file       afero.File
	bytesMoved int64
	created    bool
}

// Open prepares path on fs for the given direction. For a download, the file
// is created (truncated unless resumeOffset > 0, in which case it must
// already exist with at least that many bytes); for an upload, it is opened
// read-only. resumeOffset seeks past bytes already transferred in a prior
// attempt.
func Open(fs afero.Fs, path string, dir Direction, resumeOffset int64) (*Transfer, error) {
	t := &Transfer{fs: fs, path: path, dir: dir}

	switch dir {
	case DirectionDownload:
		existed, _ := afero.Exists(fs, path)

		flag := os.O_WRONLY | os.O_CREATE
		if resumeOffset == 0 {
			flag |= os.O_TRUNC
		}

		file, err := fs.OpenFile(path, flag, 0o644)
		if err != nil {
			return nil, err
		}

		t.file = file
		t.created = !existed
	default:
		file, err := fs.Open(path)
		if err != nil {
			return nil, err
		}

		t.file = file
	}

	if resumeOffset > 0 {
		if _, err := t.file.Seek(resumeOffset, io.SeekStart); err != nil {
			t.file.Close()

			return nil, err
		}
	}

	return t, nil
}

// Pull reads up to len(buf) bytes from the local file, for an upload.
func (t *Transfer) Pull(buf []byte) (int, error) {
	n, err := t.file.Read(buf)
	t.bytesMoved += int64(n)

	return n, err
}

// Push writes buf to the local file, for a download. A short write (without
// an accompanying error, which afero.File never produces) is reported as
// io.ErrShortWrite rather than silently dropping bytes.
func (t *Transfer) Push(buf []byte) error {
	n, err := t.file.Write(buf)
	t.bytesMoved += int64(n)

	if err == nil && n < len(buf) {
		return io.ErrShortWrite
	}

	return err
}

// BytesMoved returns the running total of bytes pulled or pushed so far.
func (t *Transfer) BytesMoved() int64 {
	return t.bytesMoved
}

// WasCreated reports whether Open created path fresh (download only); used
// by FileTransfer to decide whether a failed, empty download should be
// cleaned up when a download fails before any bytes arrive.
func (t *Transfer) WasCreated() bool {
	return t.created
}

// Finalize completes the handshake: flush and close the local file. It is
// safe to call exactly once, regardless of whether the transfer succeeded;
// callers decide separately whether a failed, zero-byte download should be
// removed (see Remove).
func (t *Transfer) Finalize() error {
	if t.file == nil {
		return nil
	}

	err := t.file.Close()
	t.file = nil

	return err
}

// Remove deletes path from fs. Used to clean up a zero-byte file left by a
// download that failed before any bytes arrived.
func Remove(fs afero.Fs, path string) error {
	return fs.Remove(path)
}
