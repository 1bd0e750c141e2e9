// Package taskmanager wraps the single periodic job the gateway needs
// outside any component's own loop: the event bus's subscriber
// keep-alive sweep (spec §4.E "a 30-second session keep-alive"). The
// upload worker and the per-reader aggregation grace-flush already
// drive their own timing internally and are deliberately not
// scheduled here (see DESIGN.md).
package taskmanager

import (
	"time"

	"github.com/chronokeep/portal-gateway/pkg/log"
	"github.com/go-co-op/gocron/v2"
)

var s gocron.Scheduler

// KeepaliveInterval is how often the sweep runs, matching the bus's
// own 30-second keep-alive interval.
const KeepaliveInterval = 30 * time.Second

// Sweeper is the slice of eventbus.Bus the keep-alive job drives.
type Sweeper interface {
	SweepKeepalive()
}

// Start creates the scheduler and registers the keep-alive sweep job,
// then starts it running.
func Start(bus Sweeper) error {
	var err error
	s, err = gocron.NewScheduler()
	if err != nil {
		return err
	}

	if _, err := s.NewJob(gocron.DurationJob(KeepaliveInterval),
		gocron.NewTask(func() {
			bus.SweepKeepalive()
		})); err != nil {
		return err
	}

	s.Start()
	log.Infof("taskmanager: keep-alive sweep registered at %s interval", KeepaliveInterval)
	return nil
}

// Shutdown stops the scheduler.
func Shutdown() error {
	if s == nil {
		return nil
	}
	return s.Shutdown()
}
