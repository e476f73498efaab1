package ftpclient

import "testing"

func TestStatusHasComposesFlags(t *testing.T) {
	s := StatusError | StatusCriticalError | StatusDisconnected

	if !s.Has(StatusError) || !s.Has(StatusCriticalError) || !s.Has(StatusDisconnected) {
		t.Fatalf("expected all three flags set: %v", s)
	}

	if s.Has(StatusTimeout) {
		t.Fatalf("StatusTimeout must not be set: %v", s)
	}
}

func TestStatusOk(t *testing.T) {
	if !StatusOk.Ok() {
		t.Fatalf("StatusOk.Ok() should be true")
	}

	mixed := StatusOk | StatusError
	if mixed.Ok() {
		t.Fatalf("Ok|Error must not report Ok()")
	}
}

func TestStatusString(t *testing.T) {
	if got := Status(0).String(); got != "None" {
		t.Fatalf("zero status: got %q", got)
	}

	s := StatusError | StatusCriticalError | StatusDisconnected
	if got := s.String(); got != "Error|CriticalError|Disconnected" {
		t.Fatalf("got %q", got)
	}
}

func TestTransferEndReasonStatus(t *testing.T) {
	cases := []struct {
		reason TransferEndReason
		want   Status
	}{
		{TransferEndSuccessful, StatusOk},
		{TransferEndTimeout, StatusError | StatusTimeout},
		{TransferEndFailureCritical, StatusError | StatusCriticalError | StatusWriteFailed},
		{TransferEndCommandFailureImmediate, StatusError | StatusCriticalError},
		{TransferEndFailure, StatusError},
		{TransferEndFailedResumeTest, StatusError},
	}

	for _, c := range cases {
		if got := c.reason.Status(); got != c.want {
			t.Errorf("%v.Status() = %v, want %v", c.reason, got, c.want)
		}
	}
}

func TestProtocolErrorUnwrap(t *testing.T) {
	inner := ErrCanceled
	e := NewProtocolError("boom", StatusError, inner)

	if e.Error() == "" {
		t.Fatalf("expected non-empty message")
	}

	if e.Unwrap() != inner {
		t.Fatalf("Unwrap did not return the wrapped error")
	}

	if e.Status() != StatusError {
		t.Fatalf("Status() = %v", e.Status())
	}
}
