package webrtcsvc

import (
	"testing"
	"time"
)

func TestSessionTimeoutDefault(t *testing.T) {
	if got := sessionTimeout(0, false); got != DefaultSessionSeconds*time.Second {
		t.Fatalf("got %v, want %v", got, DefaultSessionSeconds*time.Second)
	}
}

func TestSessionTimeoutCappedWithoutKeepAlive(t *testing.T) {
	if got := sessionTimeout(7200, false); got != MaxSessionWithoutKeepAliveSeconds*time.Second {
		t.Fatalf("got %v, want %v", got, MaxSessionWithoutKeepAliveSeconds*time.Second)
	}
}

func TestSessionTimeoutUncappedWithKeepAlive(t *testing.T) {
	if got := sessionTimeout(7200, true); got != 7200*time.Second {
		t.Fatalf("got %v, want %v", got, 7200*time.Second)
	}
}
