package webrtcsvc

import "time"

// DefaultSessionSeconds is the session timeout used when a request omits
// timeout_s.
const DefaultSessionSeconds = 60 * 60

// MaxSessionWithoutKeepAliveSeconds caps a requested timeout when the
// client did not ask for keepAlive.
const MaxSessionWithoutKeepAliveSeconds = 15 * 60

// sessionTimeout applies the default/cap rule to a client's requested
// timeout_s and keepAlive flag.
func sessionTimeout(requestedSeconds int, keepAlive bool) time.Duration {
	seconds := requestedSeconds
	if seconds <= 0 {
		seconds = DefaultSessionSeconds
	}
	if !keepAlive && seconds > MaxSessionWithoutKeepAliveSeconds {
		seconds = MaxSessionWithoutKeepAliveSeconds
	}
	return time.Duration(seconds) * time.Second
}
