package logging

import "testing"

func TestNewSetsLevelFromDebug(t *testing.T) {
	log := New("capture-mipi", false)
	if log.GetLevel().String() != "info" {
		t.Errorf("level = %s, want info", log.GetLevel())
	}

	debugLog := New("capture-mipi", true)
	if debugLog.GetLevel().String() != "debug" {
		t.Errorf("debug level = %s, want debug", debugLog.GetLevel())
	}
}
