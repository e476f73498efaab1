package testserver

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/spf13/afero"
)

// handlePASV opens a fresh listener for the next data transfer and reports
// its address the way the teacher's passiveTransferHandler does, except
// there is no port-range configuration to honor: the fixture never needs
// one, since it only ever talks to the engine under test on loopback.
func (s *session) handlePASV(string) {
	if s.dataListener != nil {
		s.dataListener.Close()
		s.dataListener = nil
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		s.writeReply(codeActionAborted, "could not open passive listener: "+err.Error())

		return
	}

	s.dataListener = listener

	_, portStr, _ := net.SplitHostPort(listener.Addr().String())
	port, _ := strconv.Atoi(portStr)

	s.writeReply(codeEnteringPassive, fmt.Sprintf(
		"Entering Passive Mode (127,0,0,1,%d,%d)", port/256, port%256)) //nolint:gomnd
}

// acceptData accepts the one data connection the engine's RawTransferSocket
// opens against the listener handlePASV created, with a deadline so a
// client that never connects doesn't hang the session forever.
func (s *session) acceptData() (net.Conn, error) {
	if s.dataListener == nil {
		return nil, errNoDataListener
	}

	defer func() {
		s.dataListener.Close()
		s.dataListener = nil
	}()

	type acceptResult struct {
		conn net.Conn
		err  error
	}

	ch := make(chan acceptResult, 1)

	go func() {
		conn, err := s.dataListener.Accept()
		ch <- acceptResult{conn, err}
	}()

	select {
	case r := <-ch:
		return r.conn, r.err
	case <-time.After(10 * time.Second):
		return nil, errDataConnTimeout
	}
}

var errNoDataListener = errors.New("PASV must be sent before a data transfer")
var errDataConnTimeout = errors.New("timed out waiting for the data connection")

// handleMLSD lists the target directory over the data connection using
// RFC 3659 facts, matching the "type;size;modify;perm; name" shape
// listingparser.parseMLSDLine expects.
func (s *session) handleMLSD(arg string) {
	target := s.resolve(arg)

	entries, err := afero.ReadDir(s.server.fs, target)
	if err != nil {
		s.writeReply(codeActionAborted, "could not list directory: "+err.Error())

		return
	}

	conn, err := s.beginTransfer()
	if err != nil {
		s.writeReply(codeActionAborted, err.Error())

		return
	}

	for _, info := range entries {
		kind := "file"
		if info.IsDir() {
			kind = "dir"
		}

		fmt.Fprintf(conn, "type=%s;size=%d;modify=%s;perm=%s; %s\r\n",
			kind, info.Size(), info.ModTime().UTC().Format("20060102150405"),
			mlsdPerm(info.IsDir()), info.Name())
	}

	conn.Close()
	s.writeReply(codeFileActionOK, "transfer complete")
}

func mlsdPerm(isDir bool) string {
	if isDir {
		return "el"
	}

	return "r"
}

// handleRETR streams a file to the data connection.
func (s *session) handleRETR(arg string) {
	target := s.resolve(arg)

	file, err := s.server.fs.Open(target)
	if err != nil {
		s.writeReply(codeActionAborted, "could not open file: "+err.Error())

		return
	}
	defer file.Close()

	conn, err := s.beginTransfer()
	if err != nil {
		s.writeReply(codeActionAborted, err.Error())

		return
	}

	_, copyErr := io.Copy(conn, file)
	conn.Close()

	if copyErr != nil {
		s.writeReply(codeActionAborted, "transfer failed: "+copyErr.Error())

		return
	}

	s.writeReply(codeFileActionOK, "transfer complete")
}

// handleSTOR and handleAPPE both write the data connection's bytes to a
// local file, differing only in the open flags, the same way the teacher's
// handleSTOR/handleAPPE share one storeOrAppend helper.
func (s *session) handleSTOR(arg string) {
	s.store(arg, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
}

func (s *session) handleAPPE(arg string) {
	s.store(arg, os.O_WRONLY|os.O_CREATE|os.O_APPEND)
}

func (s *session) store(arg string, flags int) {
	target := s.resolve(arg)

	file, err := s.server.fs.OpenFile(target, flags, 0o644)
	if err != nil {
		s.writeReply(codeActionAborted, "could not open file: "+err.Error())

		return
	}
	defer file.Close()

	conn, err := s.beginTransfer()
	if err != nil {
		s.writeReply(codeActionAborted, err.Error())

		return
	}

	_, copyErr := io.Copy(file, conn)
	conn.Close()

	if copyErr != nil {
		s.writeReply(codeActionAborted, "transfer failed: "+copyErr.Error())

		return
	}

	s.writeReply(codeFileActionOK, "transfer complete")
}

// beginTransfer announces the 1yz "about to open data connection" reply the
// engine's RawTransfer op waits on in its WaitFinish state, then accepts the
// data connection itself.
func (s *session) beginTransfer() (net.Conn, error) {
	s.writeReply(codeDataConnOpening, "opening data connection")

	return s.acceptData()
}
