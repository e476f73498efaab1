package ftpclient

import (
	"math/rand"
	"time"
)

// keepAliveTimer wraps a stdlib timer with the arm/stop vocabulary the
// control loop needs: idle between commands, armed for 30s after each one
// finishes, and disarmed the moment a new command starts.
type keepAliveTimer struct {
	timer *time.Timer
}

// newKeepAliveTimer builds a timer that starts disarmed.
func newKeepAliveTimer() *keepAliveTimer {
	t := time.NewTimer(time.Hour)
	if !t.Stop() {
		<-t.C
	}

	return &keepAliveTimer{timer: t}
}

// channel returns the timer's fire channel for the event loop's select.
func (k *keepAliveTimer) channel() <-chan time.Time {
	return k.timer.C
}

// stop disarms the timer, draining a pending fire if one raced it.
func (k *keepAliveTimer) stop() {
	if !k.timer.Stop() {
		select {
		case <-k.timer.C:
		default:
		}
	}
}

// arm disarms and re-arms the timer for d from now.
func (k *keepAliveTimer) arm(d time.Duration) {
	k.stop()
	k.timer.Reset(d)
}

// pickKeepAliveCommand returns one of the commands the engine considers
// safe to send with no effect on session state: NOOP, PWD, or TYPE (set
// back to whatever mode is already active, so it is a true no-op).
func pickKeepAliveCommand(lastTypeBinary bool) string {
	switch rand.Intn(3) {
	case 0:
		return "NOOP"
	case 1:
		return "PWD"
	default:
		if lastTypeBinary {
			return "TYPE I"
		}

		return "TYPE A"
	}
}
