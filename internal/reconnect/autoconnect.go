package reconnect

import (
	"context"
	"time"

	"github.com/chronokeep/portal-gateway/internal/model"
	"github.com/chronokeep/portal-gateway/pkg/log"
)

// StartupPause is the delay AutoConnectAll waits before dialing any
// reader, giving the gateway process time to finish its own startup
// (settling network interfaces, loading settings) before it starts
// reaching out to hardware. A var, not a const, so tests can shrink it.
var StartupPause = 30 * time.Second

// SessionFactory builds the Session for a reader on demand.
// AutoConnectAll calls it once per reader, and Supervisor.Run reuses
// that one Session for every connect attempt.
type SessionFactory func(reader *model.Reader) Session

// AutoConnectAll waits StartupPause and then, for every reader with
// AutoConnect set, runs the full bounded-retry sequence via sup and
// reports the outcome through onResult. It is meant to be launched as
// its own goroutine once at process startup; readers added later are
// connected individually by whatever control-protocol handler created
// them, not by this pass.
func AutoConnectAll(ctx context.Context, readers []*model.Reader, newSession SessionFactory, sup *Supervisor, onResult func(reader *model.Reader, connected bool)) {
	log.Infof("auto connect: pausing %s before connecting to readers", StartupPause)
	select {
	case <-ctx.Done():
		return
	case <-time.After(StartupPause):
	}

	log.Infof("auto connect: done waiting, connecting now")
	for _, reader := range readers {
		if !reader.AutoConnect {
			continue
		}
		log.Infof("auto connect: connecting to reader %q", reader.Nickname)
		session := newSession(reader)
		connected := sup.Run(ctx, reader.Nickname, session, true)
		if onResult != nil {
			onResult(reader, connected)
		}
	}
	log.Infof("auto connect: done connecting to readers")
}
