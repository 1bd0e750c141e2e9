package control

import (
	"context"
	"fmt"
	"net"

	"github.com/chronokeep/portal-gateway/internal/eventbus"
	"github.com/chronokeep/portal-gateway/internal/model"
	"github.com/chronokeep/portal-gateway/internal/reconnect"
	"github.com/chronokeep/portal-gateway/pkg/log"
)

// PortRangeStart/PortRangeEnd bound the control port search of spec §6
// ("first free TCP port in [4488, 5588) on 0.0.0.0").
const (
	PortRangeStart = 4488
	PortRangeEnd   = 5588
)

// Store is the subset of internal/repository's entity methods the
// control protocol drives.
type Store interface {
	Setting(name string) (model.Setting, error)
	Settings() ([]model.Setting, error)
	SetSetting(name, value string) error

	Readers() ([]*model.Reader, error)
	SaveReader(reader *model.Reader) (int64, error)
	DeleteReader(id int64) error

	RemoteAPIs() ([]model.RemoteAPI, error)
	SaveAPI(api model.RemoteAPI) (int64, error)
	DeleteAPI(id int64) error

	Participants() ([]model.Participant, error)
	AddParticipants(participants []model.Participant) error
	DeleteAllParticipants() error

	ReadsBetween(start, end uint64) ([]model.Read, error)
	AllReads() ([]model.Read, error)
	DeleteReadsBetween(start, end uint64) (int64, error)
	DeleteAllReads() (int64, error)
}

// Server accepts control-protocol TCP connections and dispatches the
// command set of spec §6 against Store, the live reader registry, and
// the event bus.
type Server struct {
	store      Store
	bus        *eventbus.Bus
	registry   *registry
	portalName func() string
	listener   net.Listener
}

// New builds a Server over readers already loaded from store. newSession
// constructs the live session for a reader when a reader_connect (or
// auto-connect) command attaches one.
func New(store Store, bus *eventbus.Bus, readers []*model.Reader, newSession SessionFactory, supervisor *reconnect.Supervisor, portalName func() string) *Server {
	return &Server{
		store:      store,
		bus:        bus,
		registry:   newRegistry(readers, newSession, supervisor),
		portalName: portalName,
	}
}

// Listen binds the first free TCP port in [PortRangeStart, PortRangeEnd)
// on 0.0.0.0 and returns it. Call Serve to start accepting connections.
func (s *Server) Listen() (int, error) {
	for port := PortRangeStart; port < PortRangeEnd; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", port))
		if err != nil {
			continue
		}
		s.listener = ln
		return port, nil
	}
	return 0, fmt.Errorf("control: no free port in [%d, %d)", PortRangeStart, PortRangeEnd)
}

// Serve accepts connections until the listener is closed (by Close,
// typically from a quit command or process shutdown).
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return err
		}
		h := newConnHandler(conn, s)
		go h.run()
	}
}

// AutoConnect kicks off a supervised connect attempt for every
// configured reader with auto_connect=true. Intended to be called once
// at process startup, after New and before Serve.
func (s *Server) AutoConnect(ctx context.Context) {
	s.registry.autoConnectAll(ctx)
}

// Readers returns the live reader registry's current list, for callers
// outside the control protocol (the reconnect-exhaustion notifier)
// that need to re-broadcast it.
func (s *Server) Readers() []*model.Reader {
	return s.registry.list()
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) logf(format string, args ...interface{}) {
	log.Infof("control: "+format, args...)
}
