package ftpclient

import "testing"

func TestReplyAssemblerSingleLine(t *testing.T) {
	var a replyAssembler

	reply, err := a.feed("230 Logged in")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if reply.Code != 230 || reply.Text != "Logged in" {
		t.Fatalf("got %+v", reply)
	}

	if reply.Class() != 2 || !reply.Positive() || reply.Preliminary() {
		t.Fatalf("class/positive/preliminary wrong: %+v", reply)
	}
}

func TestReplyAssemblerMultiLine(t *testing.T) {
	var a replyAssembler

	if _, err := a.feed("211-Features:"); err != errIncompleteReply {
		t.Fatalf("expected errIncompleteReply, got %v", err)
	}

	if _, err := a.feed(" UTF8"); err != errIncompleteReply {
		t.Fatalf("expected errIncompleteReply, got %v", err)
	}

	if _, err := a.feed(" EPSV"); err != errIncompleteReply {
		t.Fatalf("expected errIncompleteReply, got %v", err)
	}

	reply, err := a.feed("211 End")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if reply.Code != 211 {
		t.Fatalf("got code %d", reply.Code)
	}

	if len(reply.Lines) != 2 || reply.Lines[0] != "UTF8" || reply.Lines[1] != "EPSV" {
		t.Fatalf("got lines %#v", reply.Lines)
	}

	if reply.Text != "End" {
		t.Fatalf("got text %q", reply.Text)
	}
}

// A line that merely starts with the open code but isn't followed by a
// space is not the terminator and must be buffered as another body line.
func TestReplyAssemblerTerminatorRequiresExactPrefix(t *testing.T) {
	var a replyAssembler

	if _, err := a.feed("211-Features:"); err != errIncompleteReply {
		t.Fatalf("expected errIncompleteReply, got %v", err)
	}

	if _, err := a.feed("2110 not a terminator"); err != errIncompleteReply {
		t.Fatalf("expected errIncompleteReply, got %v", err)
	}

	reply, err := a.feed("211 End")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(reply.Lines) != 1 || reply.Lines[0] != "2110 not a terminator" {
		t.Fatalf("got lines %#v", reply.Lines)
	}
}

func TestReplyAssemblerMalformed(t *testing.T) {
	var a replyAssembler

	if _, err := a.feed("xy"); err == nil {
		t.Fatalf("expected error for too-short line")
	}
}

func TestLineFramerSplitsOnAnyTerminator(t *testing.T) {
	var f lineFramer

	lines := f.feed([]byte("220 hi\r\n230 ok\n000 nul\x00250 more"))
	want := []string{"220 hi", "230 ok", "000 nul"}

	if len(lines) != len(want) {
		t.Fatalf("got %#v", lines)
	}

	for i, l := range want {
		if lines[i] != l {
			t.Fatalf("line %d: got %q want %q", i, lines[i], l)
		}
	}

	// trailing partial line stays buffered until terminated
	more := f.feed([]byte("\r\n"))
	if len(more) != 1 || more[0] != "250 more" {
		t.Fatalf("got %#v", more)
	}
}

func TestLineFramerSkipsEmptyFragments(t *testing.T) {
	var f lineFramer

	lines := f.feed([]byte("\r\n\r\n220 hi\r\n"))
	if len(lines) != 1 || lines[0] != "220 hi" {
		t.Fatalf("got %#v", lines)
	}
}

func TestLineFramerTruncatesLongLines(t *testing.T) {
	var f lineFramer

	long := make([]byte, maxLineLength+500)
	for i := range long {
		long[i] = 'a'
	}

	lines := f.feed(append(long, '\r', '\n'))
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d", len(lines))
	}

	if len(lines[0]) != maxLineLength {
		t.Fatalf("expected truncation to %d bytes, got %d", maxLineLength, len(lines[0]))
	}
}
