package ftpclient

import "testing"

func TestEncodingPolicyForForcedUTF8(t *testing.T) {
	server := Server{Encoding: EncodingUTF8}
	if got := encodingPolicyFor(server, false); got != encodingUTF8 {
		t.Fatalf("got %v", got)
	}
}

func TestEncodingPolicyForAutoFallsBackWithoutUTF8Capability(t *testing.T) {
	server := Server{Encoding: EncodingAuto}

	if got := encodingPolicyFor(server, true); got != encodingUTF8 {
		t.Fatalf("expected utf8 when capability known, got %v", got)
	}

	if got := encodingPolicyFor(server, false); got != encodingLatin1 {
		t.Fatalf("expected latin1 fallback without utf8 capability, got %v", got)
	}
}

func TestLatin1RoundTripAsciiSubset(t *testing.T) {
	const s = "hello WORLD 123"

	if got := latin1ToUTF8(utf8ToLatin1(s)); got != s {
		t.Fatalf("got %q", got)
	}
}

func TestUtf8ToLatin1SubstitutesOutOfRangeRunes(t *testing.T) {
	got := utf8ToLatin1("café 中文")
	if got != "caf\xe9 ??" {
		t.Fatalf("got %q", got)
	}
}

func TestEncodeDecodeIncomingRoundTrip(t *testing.T) {
	encoded, err := encodeOutgoing("résumé.txt", encodingLatin1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	decoded := decodeIncoming(encoded, encodingLatin1)
	if decoded != "résumé.txt" {
		t.Fatalf("got %q", decoded)
	}
}
