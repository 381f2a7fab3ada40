// Package sync runs the optional background inbox sync loop.
package sync

import (
	"context"
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/nhle/mail-assistant/internal/apperr"
)

// SyncState represents the current state of the sync loop.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncError
)

// SyncStatus is a snapshot of the loop.
type SyncStatus struct {
	State    SyncState
	LastSync time.Time
	Count    int
	Error    error
}

// SyncResultMsg is a tea.Msg sent when a background sync completes.
type SyncResultMsg struct {
	Count     int
	Error     error
	AuthError *AuthErrorMsg
}

// AuthErrorMsg is a tea.Msg sent when the mailbox rejects the stored
// credentials.
type AuthErrorMsg struct {
	Message string
}

// Syncer performs one inbox sync and reports how many messages it wrote.
type Syncer interface {
	Sync(ctx context.Context) (int, error)
}

const (
	// syncTimeout bounds a single sync.
	syncTimeout = 60 * time.Second

	defaultInterval = 5 * time.Minute
)

// Poller calls Syncer on a fixed interval while running.
type Poller struct {
	syncer    Syncer
	log       zerolog.Logger
	resultCh  chan SyncResultMsg
	triggerCh chan struct{}

	mu      gosync.Mutex
	stopCh  chan struct{}
	running bool
	status  SyncStatus
}

// New creates a stopped Poller.
func New(s Syncer, log zerolog.Logger) *Poller {
	return &Poller{
		syncer:    s,
		log:       log.With().Str("component", "autosync").Logger(),
		resultCh:  make(chan SyncResultMsg, 16),
		triggerCh: make(chan struct{}, 1),
	}
}

// Start launches the loop with the given interval and returns a command
// that delivers the next SyncResultMsg. Starting a running poller
// returns nil.
func (p *Poller) Start(interval time.Duration) tea.Cmd {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	if interval <= 0 {
		interval = defaultInterval
	}
	p.running = true
	p.stopCh = make(chan struct{})
	stop := p.stopCh
	p.mu.Unlock()

	go p.loop(interval, stop)
	p.log.Info().Dur("interval", interval).Msg("auto-sync started")

	return p.waitForResult()
}

// Stop halts the loop. It is safe to call on a stopped poller.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	close(p.stopCh)
	p.running = false
	p.log.Info().Msg("auto-sync stopped")
}

// Running reports whether the loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Refresh asks a running loop to sync now.
func (p *Poller) Refresh() {
	select {
	case p.triggerCh <- struct{}{}:
	default:
		// a sync is already pending
	}
}

// Status returns the latest loop status.
func (p *Poller) Status() SyncStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Poller) loop(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.syncOnce()
		case <-p.triggerCh:
			p.syncOnce()
		}
	}
}

// syncOnce performs a single sync and publishes the result.
func (p *Poller) syncOnce() {
	p.setStatus(SyncRunning, 0, nil)

	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()

	count, err := p.syncer.Sync(ctx)
	if err != nil {
		p.setStatus(SyncError, 0, err)
		p.log.Warn().Err(err).Msg("background sync failed")

		msg := SyncResultMsg{Error: err}
		if apperr.IsKind(err, apperr.AuthenticationFailed) {
			msg.AuthError = &AuthErrorMsg{
				Message: "Mailbox authentication expired. Sign in again from Settings.",
			}
		}
		p.sendResult(msg)
		return
	}

	p.setStatus(SyncIdle, count, nil)
	p.sendResult(SyncResultMsg{Count: count})
}

func (p *Poller) setStatus(state SyncState, count int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status.State = state
	p.status.Error = err
	if state == SyncIdle && err == nil {
		p.status.LastSync = time.Now()
		p.status.Count = count
	}
}

// sendResult publishes without blocking the loop.
func (p *Poller) sendResult(msg SyncResultMsg) {
	select {
	case p.resultCh <- msg:
	default:
		p.log.Debug().Msg("sync result dropped, channel full")
	}
}

func (p *Poller) waitForResult() tea.Cmd {
	return func() tea.Msg {
		return <-p.resultCh
	}
}

// WaitForNextResult returns a tea.Cmd that waits for the next sync result.
// Call it after handling a SyncResultMsg to keep listening.
func (p *Poller) WaitForNextResult() tea.Cmd {
	return p.waitForResult()
}
