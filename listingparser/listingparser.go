// Package listingparser implements the streaming directory-listing parser
// the engine treats as an external collaborator: it consumes bytes off a data
// connection and produces parsed entries, one line at a time, without
// knowing anything about the control connection that requested them.
//
// Grounded on nieware-goftp's ftp.go: parseListLine (Unix-style LIST) and
// parseMListLine (MLSD facts), adapted from one-shot post-read parsing into
// an incremental Feed/Finish API so a RawTransfer operation can hand it
// bytes as they arrive instead of buffering the whole response.
package listingparser

import (
	"bytes"
	"strconv"
	"strings"
	"time"
)

// Mode selects which wire format Feed expects.
type Mode int

// Supported listing formats.
const (
	ModeUnixList Mode = iota
	ModeMLSD
)

// Entry is one parsed listing line. ModTime is the zero time when the
// source format didn't carry one precise enough to use (bare Unix LIST
// lines carry only a date or a minute-precision time, never both).
type Entry struct {
	Name        string
	Size        int64
	HasSize     bool
	ModTime     time.Time
	HasModTime  bool
	MinutePrecision bool // true if ModTime lacks server-confirmed seconds
	Permissions string
	Owner       string
	Group       string
	IsDir       bool
	IsLink      bool
	LinkTarget  string
}

// Parser accumulates bytes fed from a data connection and yields Entry
// values as complete lines become available.
type Parser struct {
	mode Mode
	buf  bytes.Buffer
}

// New builds a parser for the given wire format.
func New(mode Mode) *Parser {
	return &Parser{mode: mode}
}

// Feed appends chunk and returns every Entry completed by it. Malformed
// lines are skipped rather than failing the whole listing, matching
// parseListLine/parseMListLine's "return err, caller ignores the line"
// convention.
func (p *Parser) Feed(chunk []byte) []Entry {
	p.buf.Write(chunk)

	var entries []Entry

	for {
		line, err := p.buf.ReadString('\n')
		if err != nil {
			// Incomplete trailing line: put it back for the next Feed/Finish.
			p.buf.Reset()
			p.buf.WriteString(line)

			break
		}

		if e, ok := p.parseLine(line); ok {
			entries = append(entries, e)
		}
	}

	return entries
}

// Finish parses any trailing line left without a terminator (a transfer
// whose last line has no trailing newline) and returns it if valid.
func (p *Parser) Finish() []Entry {
	rest := p.buf.String()
	p.buf.Reset()

	if strings.TrimSpace(rest) == "" {
		return nil
	}

	if e, ok := p.parseLine(rest); ok {
		return []Entry{e}
	}

	return nil
}

func (p *Parser) parseLine(line string) (Entry, bool) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return Entry{}, false
	}

	switch p.mode {
	case ModeMLSD:
		return parseMLSDLine(line)
	default:
		return parseUnixListLine(line)
	}
}

// parseUnixListLine parses one "ls -l"-style LIST line, grounded directly
// on nieware-goftp's parseListLine.
func parseUnixListLine(line string) (Entry, bool) {
	fields := strings.Fields(line)
	if len(fields) < 9 {
		return Entry{}, false
	}

	var e Entry

	switch fields[0][0] {
	case '-':
	case 'd':
		e.IsDir = true
	case 'l':
		e.IsLink = true
	default:
		return Entry{}, false
	}

	e.Permissions = fields[0]

	if !e.IsDir {
		size, err := strconv.ParseInt(fields[4], 10, 64)
		if err == nil {
			e.Size = size
			e.HasSize = true
		}
	}

	t, minutePrecision, ok := parseUnixListTime(fields[5], fields[6], fields[7])
	if ok {
		e.ModTime = t
		e.HasModTime = true
		e.MinutePrecision = minutePrecision
	}

	name := strings.Join(fields[8:], " ")

	if e.IsLink {
		if idx := strings.Index(name, " -> "); idx >= 0 {
			e.LinkTarget = name[idx+4:]
			name = name[:idx]
		}
	}

	e.Name = name

	return e, true
}

// parseUnixListTime mirrors nieware-goftp's month/day/(year|time) handling:
// a field containing ":" means the year is omitted and the time-of-day is
// given (current or previous year, whichever doesn't land in the future);
// otherwise the year is given and the time-of-day defaults to midnight.
func parseUnixListTime(month, day, yearOrTime string) (time.Time, bool, bool) {
	monthTime, err := time.Parse("Jan", month)
	if err != nil {
		return time.Time{}, false, false
	}

	now := time.Now().UTC()
	year := now.Year()

	if strings.Contains(yearOrTime, ":") {
		if monthTime.Month() > now.Month() {
			year--
		}

		t, err := time.Parse("Jan 2 15:04 2006", month+" "+day+" "+yearOrTime+" "+strconv.Itoa(year))
		if err != nil {
			return time.Time{}, false, false
		}

		return t, true, true
	}

	t, err := time.Parse("Jan 2 2006", month+" "+day+" "+yearOrTime)
	if err != nil {
		return time.Time{}, false, false
	}

	return t, false, true
}

// parseMLSDLine parses one MLSD/MLST fact line, grounded on nieware-goftp's
// parseMListLine.
func parseMLSDLine(line string) (Entry, bool) {
	fields := strings.Split(line, ";")
	if len(fields) < 2 {
		return Entry{}, false
	}

	nameField := fields[len(fields)-1]

	name := strings.TrimPrefix(nameField, " ")
	if name == nameField {
		// The name field must be space-prefixed per the RFC 3659 grammar.
		return Entry{}, false
	}

	e := Entry{Name: name}

	for _, item := range fields[:len(fields)-1] {
		kv := strings.SplitN(item, "=", 2)
		if len(kv) != 2 {
			continue
		}

		applyMLSDFact(&e, strings.ToLower(kv[0]), kv[1])
	}

	return e, true
}

func applyMLSDFact(e *Entry, key, value string) {
	switch key {
	case "type":
		lv := strings.ToLower(value)
		e.IsDir = lv == "dir" || lv == "cdir" || lv == "pdir"
		e.IsLink = lv == "os.unix=symlink" || strings.Contains(lv, "symlink")
	case "size":
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			e.Size = n
			e.HasSize = true
		}
	case "modify":
		if t, err := ParseMLSXTime(value); err == nil {
			e.ModTime = t
			e.HasModTime = true
		}
	case "perm":
		e.Permissions = value
	case "unix.owner", "unix.uid":
		if e.Owner == "" {
			e.Owner = value
		}
	case "unix.group", "unix.gid":
		if e.Group == "" {
			e.Group = value
		}
	}
}

// mlsxTimeLayout and mlsxTimeLayoutFrac are nieware-goftp's
// TimeLayoutMlsx/TimeLayoutMlsxFrac, renamed to this package's convention.
const (
	mlsxTimeLayout     = "20060102150405"
	mlsxTimeLayoutFrac = "20060102150405.9"
)

// ParseMLSXTime parses an MLSD/MLST "modify"/"create" fact value, which is
// always UTC per RFC 3659.
func ParseMLSXTime(s string) (time.Time, error) {
	layout := mlsxTimeLayout
	if strings.Contains(s, ".") {
		layout = mlsxTimeLayoutFrac
	}

	return time.ParseInLocation(layout, s, time.UTC)
}

// ReadAllLines is a convenience used by tests: parse every line in data at
// once, as if fed through Feed then Finish.
func ReadAllLines(mode Mode, data []byte) []Entry {
	p := New(mode)
	entries := p.Feed(data)
	entries = append(entries, p.Finish()...)

	return entries
}
