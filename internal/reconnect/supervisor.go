// Package reconnect implements the bounded-retry reconnect supervisor
// of spec §4.D: it wraps a reader session, re-running the connect
// sequence (and, when auto_connect is set, start_reading) up to R_MAX
// times with a fixed pause between attempts, notifying once on
// exhaustion.
package reconnect

import (
	"context"
	"time"

	"github.com/chronokeep/portal-gateway/pkg/log"
)

// MaxAttempts and Wait are R_MAX and T_WAIT from spec §4.D.
const (
	MaxAttempts = 30
	Wait        = 1 * time.Second
)

// Session is the slice of a reader session the supervisor drives.
type Session interface {
	Connect(ctx context.Context) error
	StartReading() error
}

// ExhaustionNotifier is told, once, when a reader's reconnect budget
// is spent without success (spec §4.D "the operator is notified once
// via the event bus").
type ExhaustionNotifier interface {
	NotifyReconnectExhausted(readerName string)
}

// Supervisor runs the bounded-retry loop for one reader at a time. A
// single Supervisor value is stateless and safe to reuse across
// readers; callers spawn one Run call per reader needing supervision
// (spec §5 "one reconnect-supervisor thread per reader, spawned on
// demand").
type Supervisor struct {
	notifier ExhaustionNotifier
	wait     time.Duration
}

func New(notifier ExhaustionNotifier) *Supervisor {
	return &Supervisor{notifier: notifier, wait: Wait}
}

// Run attempts to (re)connect readerName's session up to MaxAttempts
// times, pausing Wait between attempts. It returns true as soon as a
// connect (and, if autoConnect, a start_reading) succeeds, or false
// once the budget is exhausted or ctx is cancelled. On exhaustion it
// notifies the configured ExhaustionNotifier exactly once.
func (s *Supervisor) Run(ctx context.Context, readerName string, session Session, autoConnect bool) bool {
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return false
		default:
		}

		if err := session.Connect(ctx); err != nil {
			log.Warnf("reader %q reconnect attempt %d/%d failed: %v", readerName, attempt, MaxAttempts, err)
		} else if !autoConnect {
			return true
		} else if err := session.StartReading(); err != nil {
			log.Warnf("reader %q auto-start after reconnect failed: %v", readerName, err)
		} else {
			return true
		}

		if attempt == MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(s.wait):
		}
	}

	log.Errorf("reader %q exhausted %d reconnect attempts", readerName, MaxAttempts)
	if s.notifier != nil {
		s.notifier.NotifyReconnectExhausted(readerName)
	}
	return false
}
