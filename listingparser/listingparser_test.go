package listingparser

import (
	"testing"
	"time"
)

func TestParseUnixListLineFile(t *testing.T) {
	entries := ReadAllLines(ModeUnixList, []byte(
		"-rw-r--r-- 1 user group 1234 Jan 2 2020 report.txt\n"))

	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}

	e := entries[0]
	if e.Name != "report.txt" || e.IsDir || e.Size != 1234 || !e.HasSize {
		t.Fatalf("got %+v", e)
	}

	if e.ModTime.Year() != 2020 || e.MinutePrecision {
		t.Fatalf("expected year-precision timestamp for year-bearing line: %+v", e)
	}
}

func TestParseUnixListLineDirectory(t *testing.T) {
	entries := ReadAllLines(ModeUnixList, []byte(
		"drwxr-xr-x 2 user group 4096 Mar 5 10:21 incoming\n"))

	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}

	e := entries[0]
	if !e.IsDir || e.HasSize {
		t.Fatalf("directory entries shouldn't carry a usable size: %+v", e)
	}

	if !e.MinutePrecision {
		t.Fatalf("expected minute-precision timestamp for the hh:mm form")
	}
}

func TestParseUnixListLineSymlink(t *testing.T) {
	entries := ReadAllLines(ModeUnixList, []byte(
		"lrwxrwxrwx 1 user group 9 Mar 5 10:21 current -> releases/1\n"))

	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}

	e := entries[0]
	if !e.IsLink || e.Name != "current" || e.LinkTarget != "releases/1" {
		t.Fatalf("got %+v", e)
	}
}

func TestParseUnixListLineMalformedSkipped(t *testing.T) {
	entries := ReadAllLines(ModeUnixList, []byte("not a listing line\ntotal 0\n"))
	if len(entries) != 0 {
		t.Fatalf("expected malformed/summary lines to be skipped, got %+v", entries)
	}
}

func TestParseMLSDLine(t *testing.T) {
	entries := ReadAllLines(ModeMLSD, []byte(
		"type=file;size=42;modify=20200102030405; report.txt\r\n"+
			"type=dir;modify=20200102030405; incoming\r\n"))

	if len(entries) != 2 {
		t.Fatalf("expected two entries, got %d", len(entries))
	}

	file := entries[0]
	if file.Name != "report.txt" || file.Size != 42 || !file.HasSize || file.IsDir {
		t.Fatalf("got %+v", file)
	}

	if !file.HasModTime || !file.ModTime.Equal(time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Fatalf("unexpected modtime: %+v", file.ModTime)
	}

	dir := entries[1]
	if dir.Name != "incoming" || !dir.IsDir {
		t.Fatalf("got %+v", dir)
	}
}

func TestParseMLSDLineMissingNameSpaceSkipped(t *testing.T) {
	// Per RFC 3659 the name must be preceded by exactly one space; a line
	// without it is not a valid fact line.
	entries := ReadAllLines(ModeMLSD, []byte("type=file;size=1;nospacebeforename\n"))
	if len(entries) != 0 {
		t.Fatalf("expected no entries, got %+v", entries)
	}
}

func TestFeedHandlesChunkedTrailingLine(t *testing.T) {
	p := New(ModeUnixList)

	first := p.Feed([]byte("-rw-r--r-- 1 u g 10 Jan 2 2020 a.txt\n-rw-r--r-- 1 u g 20 Jan"))
	if len(first) != 1 || first[0].Name != "a.txt" {
		t.Fatalf("got %+v", first)
	}

	second := p.Feed([]byte(" 3 2020 b.txt\n"))
	if len(second) != 1 || second[0].Name != "b.txt" {
		t.Fatalf("got %+v", second)
	}
}

func TestFinishParsesTrailingLineWithoutNewline(t *testing.T) {
	p := New(ModeUnixList)

	mid := p.Feed([]byte("-rw-r--r-- 1 u g 10 Jan 2 2020 a.txt"))
	if len(mid) != 0 {
		t.Fatalf("expected nothing yet, got %+v", mid)
	}

	final := p.Finish()
	if len(final) != 1 || final[0].Name != "a.txt" {
		t.Fatalf("got %+v", final)
	}
}

func TestParseMLSXTimeFractional(t *testing.T) {
	tm, err := ParseMLSXTime("20200102030405.5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tm.Year() != 2020 || tm.Location() != time.UTC {
		t.Fatalf("got %+v", tm)
	}
}
