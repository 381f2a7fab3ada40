package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapKeepsInnerKind(t *testing.T) {
	inner := New(NotFound, "original message not found")
	err := Wrap(ProviderUnavailable, "sending reply", inner)

	if got := KindOf(err); got != NotFound {
		t.Fatalf("KindOf = %v, want %v", got, NotFound)
	}
	if got := Message(err); got != "original message not found" {
		t.Errorf("Message = %q", got)
	}
}

func TestWrapNil(t *testing.T) {
	if err := Wrap(StorageUnavailable, "op", nil); err != nil {
		t.Fatalf("Wrap(nil) = %v, want nil", err)
	}
}

func TestIsKindThroughFmtWrap(t *testing.T) {
	base := Wrap(StorageUnavailable, "upserting messages", errors.New("disk full"))
	err := fmt.Errorf("syncing inbox: %w", base)

	if !IsKind(err, StorageUnavailable) {
		t.Fatalf("IsKind(StorageUnavailable) = false for %v", err)
	}
	if IsKind(err, NotFound) {
		t.Fatalf("IsKind(NotFound) = true for %v", err)
	}
	if got, want := Message(err), "Storage unavailable: disk full"; got != want {
		t.Errorf("Message = %q, want %q", got, want)
	}
}

func TestMessageUnclassified(t *testing.T) {
	if got := Message(errors.New("boom")); got != "boom" {
		t.Errorf("Message = %q", got)
	}
	if got := Message(nil); got != "" {
		t.Errorf("Message(nil) = %q", got)
	}
}
