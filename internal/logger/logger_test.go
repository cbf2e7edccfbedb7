package logger

import "testing"

func TestSetLevelUpdatesAtomicLevel(t *testing.T) {
	if err := Init("info", false); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if got := Level(); got != "info" {
		t.Fatalf("Level() = %s, want info", got)
	}

	SetLevel("debug")
	if got := Level(); got != "debug" {
		t.Fatalf("Level() = %s, want debug", got)
	}
	if !L().Core().Enabled(-1) {
		t.Fatalf("debug entries should be enabled after SetLevel(debug)")
	}

	SetLevel("bogus")
	if got := Level(); got != "info" {
		t.Fatalf("unknown level should fall back to info, got %s", got)
	}
}
