package common

import (
	"errors"
	"testing"
)

func TestGuardNilView(t *testing.T) {
	if err := Guard(nil, "lending"); err != nil {
		t.Fatalf("expected nil view to allow, got %v", err)
	}
}

func TestGuardPausedModule(t *testing.T) {
	pauses := NewPauses(map[string]bool{" Lending ": true})
	if err := Guard(pauses, "lending"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	pauses.Set("lending", false)
	if err := Guard(pauses, "lending"); err != nil {
		t.Fatalf("expected unpaused module to pass, got %v", err)
	}
	if err := Guard(pauses, "swap"); err != nil {
		t.Fatalf("expected unknown module to pass, got %v", err)
	}
}
