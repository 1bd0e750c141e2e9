package control

import (
	"context"
	"sync"

	"github.com/chronokeep/portal-gateway/internal/model"
	"github.com/chronokeep/portal-gateway/internal/reconnect"
)

// Session is the subset of readersession.Session the registry drives.
// A *readersession.Session satisfies this directly; tests substitute a
// fake.
type Session interface {
	Connect(ctx context.Context) error
	StartReading() error
	StopReading() error
	Close()
	// OnLost registers a callback invoked once, outside of any Close
	// the registry itself initiated, when the session drops.
	OnLost(fn func())
}

// SessionFactory builds the live session for a configured reader. The
// returned session and reader share state (spec §4.B: Connect/Close
// write Connected/Reading back onto the same *model.Reader), so the
// registry never needs to separately track live status.
type SessionFactory func(reader *model.Reader) Session

// registry is the live, in-memory mirror of the readers table: the
// set of configured readers plus whichever ones currently have a
// session attached. All control-protocol reader_* commands operate
// through it so every connected subscriber sees a consistent list.
type registry struct {
	mu         sync.Mutex
	readers    map[int64]*model.Reader
	sessions   map[int64]Session
	newSession SessionFactory
	supervisor *reconnect.Supervisor
	ctx        context.Context
}

func newRegistry(readers []*model.Reader, newSession SessionFactory, supervisor *reconnect.Supervisor) *registry {
	r := &registry{
		readers:    make(map[int64]*model.Reader, len(readers)),
		sessions:   make(map[int64]Session),
		newSession: newSession,
		supervisor: supervisor,
		ctx:        context.Background(),
	}
	for _, reader := range readers {
		r.readers[reader.ID] = reader
	}
	return r
}

// attachSession wires a freshly created session's loss callback so an
// unexpected disconnect (spec §4.D "resurrecting sessions that drop")
// is handed to the reconnect supervisor, the same as a failed initial
// connect already is. The callback re-checks that s is still the
// registry's current session for reader before acting, so a session
// already replaced or removed by an explicit operator action is left
// alone.
func (r *registry) attachSession(reader *model.Reader, s Session) {
	s.OnLost(func() {
		r.mu.Lock()
		cur, ok := r.sessions[reader.ID]
		ctx := r.ctx
		r.mu.Unlock()
		if !ok || cur != s {
			return
		}
		go r.supervisor.Run(ctx, reader.Nickname, s, reader.AutoConnect)
	})
}

func (r *registry) list() []*model.Reader {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Reader, 0, len(r.readers))
	for _, reader := range r.readers {
		out = append(out, reader)
	}
	return out
}

func (r *registry) get(id int64) (*model.Reader, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reader, ok := r.readers[id]
	return reader, ok
}

func (r *registry) put(reader *model.Reader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readers[reader.ID] = reader
}

func (r *registry) remove(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		s.Close()
		delete(r.sessions, id)
	}
	delete(r.readers, id)
}

// connect spawns (or reuses) the session for reader and runs the
// bounded reconnect loop once, manually (not an auto-connect startup
// pass). It returns once the first attempt settles; retries continue
// in the background exactly as reconnect.Supervisor.Run defines them.
func (r *registry) connect(ctx context.Context, reader *model.Reader) error {
	r.mu.Lock()
	if _, ok := r.sessions[reader.ID]; ok {
		r.mu.Unlock()
		return nil
	}
	s := r.newSession(reader)
	r.sessions[reader.ID] = s
	r.mu.Unlock()
	r.attachSession(reader, s)

	if err := s.Connect(ctx); err != nil {
		go r.supervisor.Run(ctx, reader.Nickname, s, false)
		return err
	}
	return nil
}

// autoConnectAll spawns a supervised connect attempt for every reader
// configured with auto_connect=true, one goroutine per reader (spec §5
// "one reconnect-supervisor thread per reader, spawned on demand").
// Called once at startup; later auto-connects (after a reader_add)
// are the operator's job via reader_connect.
func (r *registry) autoConnectAll(ctx context.Context) {
	r.mu.Lock()
	r.ctx = ctx
	var pending []*model.Reader
	for _, reader := range r.readers {
		if reader.AutoConnect {
			if _, ok := r.sessions[reader.ID]; !ok {
				pending = append(pending, reader)
			}
		}
	}
	r.mu.Unlock()

	for _, reader := range pending {
		s := r.newSession(reader)
		r.mu.Lock()
		r.sessions[reader.ID] = s
		r.mu.Unlock()
		r.attachSession(reader, s)
		go r.supervisor.Run(ctx, reader.Nickname, s, true)
	}
}

func (r *registry) disconnect(id int64) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	s.Close()
	return nil
}

func (r *registry) startReading(id int64) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return errSessionNotConnected
	}
	return s.StartReading()
}

func (r *registry) stopReading(id int64) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return errSessionNotConnected
	}
	return s.StopReading()
}

type notConnectedError struct{}

func (notConnectedError) Error() string { return "reader is not connected" }

var errSessionNotConnected = notConnectedError{}
