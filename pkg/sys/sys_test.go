package sys

import (
	"testing"

	"src.jsrt.sh/pkg/testutil"
)

func TestIsATTY_Pipe(t *testing.T) {
	r, w := testutil.MustPipe()
	defer r.Close()
	defer w.Close()
	if IsATTY(r.Fd()) {
		t.Errorf("IsATTY(pipe) = true")
	}
}

func TestNotifyInterrupt_Stop(t *testing.T) {
	sigCh, stop := NotifyInterrupt()
	stop()
	select {
	case sig := <-sigCh:
		t.Errorf("got signal %v after stop", sig)
	default:
	}
}
