package proc

import (
	"errors"
	"testing"
)

func TestOSErrorUnwraps(t *testing.T) {
	cause := errors.New("ESRCH")
	err := OSError{Op: "peek", Err: cause}
	if !errors.Is(err, cause) {
		t.Fatalf("errors.Is(OSError, cause) = false, want true")
	}
	if err.Error() != "peek: ESRCH" {
		t.Fatalf("Error() = %q", err.Error())
	}
}
