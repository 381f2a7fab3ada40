package sync

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/mail-assistant/internal/apperr"
)

type countingSyncer struct {
	calls atomic.Int32
	err   error
}

func (s *countingSyncer) Sync(context.Context) (int, error) {
	s.calls.Add(1)
	return 3, s.err
}

func TestRefreshRunsSync(t *testing.T) {
	s := &countingSyncer{}
	p := New(s, zerolog.Nop())

	cmd := p.Start(time.Hour)
	defer p.Stop()
	if cmd == nil {
		t.Fatal("Start returned nil")
	}
	if p.Start(time.Hour) != nil {
		t.Error("second Start should be a no-op")
	}

	p.Refresh()
	msg, ok := cmd().(SyncResultMsg)
	if !ok {
		t.Fatalf("unexpected message type")
	}
	if msg.Error != nil || msg.Count != 3 {
		t.Errorf("result = %+v", msg)
	}

	st := p.Status()
	if st.State != SyncIdle || st.Count != 3 || st.LastSync.IsZero() {
		t.Errorf("status = %+v", st)
	}
}

func TestTickerRunsSync(t *testing.T) {
	s := &countingSyncer{}
	p := New(s, zerolog.Nop())

	cmd := p.Start(10 * time.Millisecond)
	defer p.Stop()

	if _, ok := cmd().(SyncResultMsg); !ok {
		t.Fatal("no result from ticker")
	}
	if s.calls.Load() < 1 {
		t.Error("syncer not called")
	}
}

func TestAuthFailureIsFlagged(t *testing.T) {
	s := &countingSyncer{err: apperr.Wrap(apperr.AuthenticationFailed, "sync", errors.New("401"))}
	p := New(s, zerolog.Nop())

	cmd := p.Start(time.Hour)
	defer p.Stop()
	p.Refresh()

	msg := cmd().(SyncResultMsg)
	if msg.AuthError == nil {
		t.Errorf("result = %+v, want an auth error", msg)
	}
	if p.Status().State != SyncError {
		t.Errorf("state = %v", p.Status().State)
	}
}

func TestStopAndRestart(t *testing.T) {
	p := New(&countingSyncer{}, zerolog.Nop())

	p.Start(time.Hour)
	if !p.Running() {
		t.Fatal("not running after Start")
	}
	p.Stop()
	p.Stop()
	if p.Running() {
		t.Fatal("running after Stop")
	}
	if p.Start(time.Hour) == nil {
		t.Error("restart returned nil")
	}
	p.Stop()
}
