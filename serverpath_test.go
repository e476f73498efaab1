package ftpclient

import "testing"

func TestServerPathUnixRoundTrip(t *testing.T) {
	cases := []string{"/", "/pub", "/pub/incoming", "/a/b/c"}

	for _, str := range cases {
		p := NewServerPath(str, PathStyleUnix)
		if got := p.String(); got != str {
			t.Errorf("NewServerPath(%q).String() = %q", str, got)
		}
	}
}

func TestServerPathUnixEmpty(t *testing.T) {
	p := NewServerPath("", PathStyleUnix)
	if !p.IsEmpty() {
		t.Fatalf("expected empty path for empty string")
	}

	if p.HasParent() {
		t.Fatalf("empty path must not report HasParent")
	}
}

func TestServerPathParentAndAddSegment(t *testing.T) {
	root := NewServerPath("/", PathStyleUnix)
	pub := root.AddSegment("pub")

	if got := pub.String(); got != "/pub" {
		t.Fatalf("AddSegment: got %q", got)
	}

	if got := pub.Parent().String(); got != "/" {
		t.Fatalf("Parent: got %q", got)
	}

	if root.HasParent() {
		t.Fatalf("root must not report HasParent")
	}

	if got := root.Parent().String(); got != "/" {
		t.Fatalf("Parent() of root must return itself unchanged, got %q", got)
	}
}

func TestServerPathFormatFilenameParent(t *testing.T) {
	dir := NewServerPath("/pub/incoming", PathStyleUnix)

	full := dir.FormatFilename("f.bin", false)
	if full != "/pub/incoming/f.bin" {
		t.Fatalf("FormatFilename(relative=false) = %q", full)
	}

	parsed := NewServerPath(full, PathStyleUnix)
	if got := parsed.Parent().String(); got != dir.String() {
		t.Fatalf("format_filename(name).parent() != self: got %q want %q", got, dir.String())
	}

	rel := dir.FormatFilename("f.bin", true)
	if rel != "f.bin" {
		t.Fatalf("FormatFilename(relative=true) = %q", rel)
	}
}

func TestServerPathIsSubdirAndParentOf(t *testing.T) {
	a := NewServerPath("/a", PathStyleUnix)
	ab := NewServerPath("/a/b", PathStyleUnix)
	abc := NewServerPath("/a/b/c", PathStyleUnix)

	if !ab.IsSubdirOf(a) {
		t.Fatalf("/a/b should be a direct subdir of /a")
	}

	if abc.IsSubdirOf(a) {
		t.Fatalf("/a/b/c should not be a direct subdir of /a")
	}

	if !a.IsParentOf(abc) {
		t.Fatalf("/a should be an ancestor of /a/b/c")
	}

	if abc.IsParentOf(a) {
		t.Fatalf("/a/b/c must not be considered an ancestor of /a")
	}
}

func TestServerPathCommonParent(t *testing.T) {
	ab := NewServerPath("/a/b", PathStyleUnix)
	ac := NewServerPath("/a/c", PathStyleUnix)

	if got := ab.CommonParent(ac).String(); got != "/a" {
		t.Fatalf("CommonParent = %q, want /a", got)
	}

	same := ab.CommonParent(ab)
	if got := same.String(); got != "/a/b" {
		t.Fatalf("CommonParent(self) = %q, want /a/b", got)
	}
}

func TestServerPathDOS(t *testing.T) {
	p := NewServerPath(`C:\pub\incoming`, PathStyleDOS)

	if got := p.String(); got != `C:pub\incoming` {
		t.Fatalf("DOS round trip: got %q", got)
	}

	if got := p.LastSegment(); got != "incoming" {
		t.Fatalf("DOS LastSegment: got %q", got)
	}
}

func TestServerPathVMS(t *testing.T) {
	p := NewServerPath("DISK$USER:[DIR.SUBDIR]FILE.TXT", PathStyleVMS)

	if got := p.String(); got != "DISK$USER:[DIR.SUBDIR]FILE.TXT" {
		t.Fatalf("VMS round trip: got %q", got)
	}
}

func TestServerPathMVS(t *testing.T) {
	p := NewServerPath("'HLQ.MEMBER'", PathStyleMVS)

	if got := p.String(); got != "'HLQ.MEMBER'" {
		t.Fatalf("MVS round trip: got %q", got)
	}

	if got := p.LastSegment(); got != "MEMBER" {
		t.Fatalf("MVS LastSegment: got %q", got)
	}
}
