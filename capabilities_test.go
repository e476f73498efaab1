package ftpclient

import "testing"

func testServerKey() ServerKey {
	return Server{Host: "ftp.example.com", Port: 21, Protocol: ProtocolFTP}.Key()
}

func TestServerCapabilitiesGetUnknown(t *testing.T) {
	c := NewServerCapabilities()

	state, value := c.Get(testServerKey(), CapUTF8)
	if state != TriUnknown || value != "" {
		t.Fatalf("expected unknown/empty, got %v %q", state, value)
	}
}

func TestServerCapabilitiesSetAndGet(t *testing.T) {
	c := NewServerCapabilities()
	key := testServerKey()

	c.Set(key, CapMLSD, TriYes, "type;size;modify;perm;")

	state, value := c.Get(key, CapMLSD)
	if state != TriYes || value != "type;size;modify;perm;" {
		t.Fatalf("got %v %q", state, value)
	}

	// A different server key must not see this capability.
	other := Server{Host: "other.example.com", Port: 21, Protocol: ProtocolFTP}.Key()

	state, _ = c.Get(other, CapMLSD)
	if state != TriUnknown {
		t.Fatalf("capability leaked across server keys")
	}
}

func TestServerCapabilitiesReset(t *testing.T) {
	c := NewServerCapabilities()
	key := testServerKey()

	c.Set(key, CapUTF8, TriYes, "")
	c.Reset(key)

	state, _ := c.Get(key, CapUTF8)
	if state != TriUnknown {
		t.Fatalf("expected capability cleared after Reset, got %v", state)
	}
}

func TestServerCapabilitiesHasUTF8(t *testing.T) {
	c := NewServerCapabilities()
	key := testServerKey()

	if c.hasUTF8(key) {
		t.Fatalf("hasUTF8 should be false before it is set")
	}

	c.Set(key, CapUTF8, TriYes, "")

	if !c.hasUTF8(key) {
		t.Fatalf("hasUTF8 should be true once set to TriYes")
	}
}
