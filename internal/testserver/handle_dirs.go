package testserver

import (
	"fmt"
	"os"
	gopath "path"
	"strconv"
	"strings"
)

// resolve joins arg against the session's current directory the way the
// teacher's clientHandler.absPath does, collapsing "." and "..".
func (s *session) resolve(arg string) string {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return s.cwd
	}

	if strings.HasPrefix(arg, "/") {
		return gopath.Clean(arg)
	}

	return gopath.Clean(gopath.Join(s.cwd, arg))
}

func (s *session) handlePWD(string) {
	s.writeReply(codePathCreated, quotePath(s.cwd)+" is the current directory")
}

func (s *session) handleCWD(arg string) {
	target := s.resolve(arg)

	info, err := s.server.fs.Stat(target)
	if err != nil || !info.IsDir() {
		s.writeReply(codeActionAborted, "no such directory")

		return
	}

	s.cwd = target
	s.writeReply(codeRequestedOK, "directory changed")
}

func (s *session) handleCDUP(string) {
	s.handleCWD("..")
}

func (s *session) handleMKD(arg string) {
	target := s.resolve(arg)

	if err := s.server.fs.Mkdir(target, 0o755); err != nil {
		s.writeReply(codeActionAborted, "could not create directory: "+err.Error())

		return
	}

	s.writeReply(codePathCreated, quotePath(target)+" created")
}

func (s *session) handleRMD(arg string) {
	target := s.resolve(arg)

	if err := s.server.fs.Remove(target); err != nil {
		s.writeReply(codeActionAborted, "could not remove directory: "+err.Error())

		return
	}

	s.writeReply(codeRequestedOK, "directory removed")
}

func (s *session) handleDELE(arg string) {
	target := s.resolve(arg)

	if err := s.server.fs.Remove(target); err != nil {
		s.writeReply(codeActionAborted, "could not delete file: "+err.Error())

		return
	}

	s.writeReply(codeRequestedOK, "file deleted")
}

func (s *session) handleRNFR(arg string) {
	s.renameFrom = s.resolve(arg)
	s.writeReply(codeNeedDest, "ready for RNTO")
}

func (s *session) handleRNTO(arg string) {
	if s.renameFrom == "" {
		s.writeReply(codeBadSequence, "RNFR required first")

		return
	}

	target := s.resolve(arg)

	err := s.server.fs.Rename(s.renameFrom, target)
	s.renameFrom = ""

	if err != nil {
		s.writeReply(codeActionAborted, "could not rename: "+err.Error())

		return
	}

	s.writeReply(codeRequestedOK, "renamed")
}

// handleSITE supports only "SITE CHMOD <perm> <path>", the one SITE
// subcommand the engine's Chmod operation issues.
func (s *session) handleSITE(arg string) {
	fields := strings.Fields(arg)
	if len(fields) != 3 || strings.ToUpper(fields[0]) != "CHMOD" {
		s.writeReply(codeSyntaxErrorParams, "only SITE CHMOD is supported")

		return
	}

	mode, err := strconv.ParseUint(fields[1], 8, 32)
	if err != nil {
		s.writeReply(codeSyntaxErrorParams, "bad permission: "+fields[1])

		return
	}

	target := s.resolve(fields[2])

	if err := s.server.fs.Chmod(target, os.FileMode(mode)); err != nil {
		s.writeReply(codeActionAborted, "could not chmod: "+err.Error())

		return
	}

	s.writeReply(codeCommandOK, "SITE CHMOD command successful")
}

func quotePath(p string) string {
	return fmt.Sprintf("%q", p)
}
