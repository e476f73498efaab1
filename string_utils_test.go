package ftpclient

import "testing"

func TestAdvSplitNPasvReplyOctets(t *testing.T) {
	got, err := advSplitN("127,0,0,1,231,42", ',', 6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"127", "0", "0", "1", "231", "42"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}

	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestAdvSplitNTruncatesExtraFields(t *testing.T) {
	got, err := advSplitN("a,b,c,d", ',', 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("got %v", got)
	}
}
