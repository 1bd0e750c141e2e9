package control

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/chronokeep/portal-gateway/internal/config"
	"github.com/chronokeep/portal-gateway/internal/eventbus"
	"github.com/chronokeep/portal-gateway/internal/model"
	"github.com/chronokeep/portal-gateway/internal/portalerr"
	"github.com/chronokeep/portal-gateway/internal/upload"
)

// connHandler owns one subscriber connection: decoding inbound lines,
// dispatching commands, and writing responses. It also implements
// eventbus.Writer so the bus can address it directly for broadcasts.
type connHandler struct {
	conn   net.Conn
	server *Server

	mu    sync.Mutex
	index int
	attached bool
}

func newConnHandler(conn net.Conn, server *Server) *connHandler {
	return &connHandler{conn: conn, server: server}
}

func (h *connHandler) run() {
	defer h.conn.Close()

	loopback := isLoopback(h.conn)
	scanner := bufio.NewScanner(h.conn)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			h.send(newError(errUnknownCommand, "unable to parse request"))
			continue
		}
		if h.attached {
			h.server.bus.Touch(h.index)
		}
		quit := h.dispatch(&req, loopback)
		if quit {
			break
		}
	}

	if h.attached {
		h.server.bus.Unsubscribe(h.index)
	}
}

func (h *connHandler) send(v interface{}) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf = append(buf, '\n')
	h.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_, err = h.conn.Write(buf)
	return err
}

// dispatch handles one request, returning true if the connection
// should close (disconnect/quit).
func (h *connHandler) dispatch(req *request, loopback bool) bool {
	switch req.Command {
	case "connect":
		h.handleConnect(req, loopback)
	case "disconnect":
		h.send(disconnectResponse{Command: "disconnect"})
		return true
	case "keepalive_ack":
		// Touch already recorded above; nothing else to do.
	case "subscribe":
		h.handleSubscribe(req)
	case "reader_list":
		h.broadcastReaders()
	case "reader_add":
		h.handleReaderAdd(req)
	case "reader_remove":
		h.handleReaderRemove(req)
	case "reader_connect":
		h.handleReaderConnect(req)
	case "reader_disconnect":
		h.handleReaderDisconnect(req)
	case "reader_start":
		h.handleReaderStart(req)
	case "reader_stop":
		h.handleReaderStop(req)
	case "settings_get":
		h.handleSettingsGet()
	case "settings_set":
		h.handleSettingsSet(req)
	case "api_list":
		h.handleAPIList()
	case "api_add":
		h.handleAPIAdd(req)
	case "api_remove":
		h.handleAPIRemove(req)
	case "participants_get":
		h.handleParticipantsGet()
	case "participants_add":
		h.handleParticipantsAdd(req)
	case "participants_remove":
		h.handleParticipantsRemove()
	case "reads_get":
		h.handleReadsGet(req)
	case "reads_get_all":
		h.handleReadsGetAll()
	case "reads_delete":
		h.handleReadsDelete(req)
	case "reads_delete_all":
		h.handleReadsDeleteAll()
	case "time_get":
		h.send(newTimeResponse(time.Now()))
	case "quit":
		h.server.Close()
		return true
	default:
		h.send(newError(errUnknownCommand, "unrecognized command: "+req.Command))
	}
	return false
}

func boolOr(p *bool, fallback bool) bool {
	if p == nil {
		return fallback
	}
	return *p
}

func (h *connHandler) handleConnect(req *request, loopback bool) {
	reads := boolOr(req.Reads, false)
	sightings := boolOr(req.Sightings, false)

	index, err := h.server.bus.Subscribe(h, reads, sightings, loopback && h.server.bus.Count() >= eventbus.MaxSubscribers)
	if err != nil {
		h.send(newError(errTooManyConns, "too many concurrent control connections"))
		return
	}
	h.mu.Lock()
	h.index = index
	h.attached = true
	h.mu.Unlock()

	h.send(connectionSuccessfulResponse{
		Command:             "connection_successful",
		Kind:                "chrono_portal",
		Version:              protocolVersion,
		ReadsSubscribed:      reads,
		SightingsSubscribed:  sightings,
		Readers:              toWireReaders(h.server.registry.list()),
	})
}

func (h *connHandler) handleSubscribe(req *request) {
	if !h.attached {
		h.send(newError(errServerError, "not connected"))
		return
	}
	reads := boolOr(req.Reads, false)
	sightings := boolOr(req.Sightings, false)
	if err := h.server.bus.UpdateSubscription(h.index, reads, sightings); err != nil {
		h.send(newError(errAlreadySubbed, "subscription already matches requested state"))
	}
}

func (h *connHandler) broadcastReaders() {
	h.server.bus.BroadcastReaders(h.server.registry.list())
}

func (h *connHandler) handleReaderAdd(req *request) {
	kind := model.ReaderKind(req.Kind)
	if kind != model.KindLLRP && kind != model.KindRFID && kind != model.KindImpinj {
		h.send(newError(errInvalidReaderType, "unknown reader kind: "+req.Kind))
		return
	}
	reader := &model.Reader{
		Nickname:    req.Name,
		Kind:        kind,
		IPAddress:   net.ParseIP(req.IPAddress),
		Port:        req.Port,
		AutoConnect: req.AutoConnect,
	}
	if req.ID != nil {
		reader.ID = *req.ID
	}
	id, err := h.server.store.SaveReader(reader)
	if err != nil {
		h.send(newError(errDatabaseError, "unable to save reader"))
		return
	}
	reader.ID = id
	h.server.registry.put(reader)
	h.server.bus.BroadcastReaders(h.server.registry.list())
}

func (h *connHandler) handleReaderRemove(req *request) {
	if req.ID == nil {
		h.send(newError(errNotFound, "missing reader id"))
		return
	}
	if err := h.server.store.DeleteReader(*req.ID); err != nil {
		h.send(newError(errDatabaseError, "unable to delete reader"))
		return
	}
	h.server.registry.remove(*req.ID)
	h.server.bus.BroadcastReaders(h.server.registry.list())
}

func (h *connHandler) handleReaderConnect(req *request) {
	if req.ID == nil {
		h.send(newError(errNotFound, "missing reader id"))
		return
	}
	reader, ok := h.server.registry.get(*req.ID)
	if !ok {
		h.send(newError(errNotFound, "unknown reader"))
		return
	}
	if err := h.server.registry.connect(context.Background(), reader); err != nil {
		h.send(newError(errReaderConnection, err.Error()))
	}
	h.server.bus.BroadcastReaders(h.server.registry.list())
}

func (h *connHandler) handleReaderDisconnect(req *request) {
	if req.ID == nil {
		h.send(newError(errNotFound, "missing reader id"))
		return
	}
	if err := h.server.registry.disconnect(*req.ID); err != nil {
		h.send(newError(errReaderConnection, err.Error()))
	}
	h.server.bus.BroadcastReaders(h.server.registry.list())
}

func (h *connHandler) handleReaderStart(req *request) {
	if req.ID == nil {
		h.send(newError(errNotFound, "missing reader id"))
		return
	}
	if err := h.server.registry.startReading(*req.ID); err != nil {
		h.send(newError(errReaderConnection, err.Error()))
		return
	}
	h.server.bus.BroadcastReaders(h.server.registry.list())
}

func (h *connHandler) handleReaderStop(req *request) {
	if req.ID == nil {
		h.send(newError(errNotFound, "missing reader id"))
		return
	}
	if err := h.server.registry.stopReading(*req.ID); err != nil {
		h.send(newError(errReaderConnection, err.Error()))
		return
	}
	h.server.bus.BroadcastReaders(h.server.registry.list())
}

func (h *connHandler) handleSettingsGet() {
	settings, err := h.server.store.Settings()
	if err != nil {
		h.send(newError(errDatabaseError, "unable to load settings"))
		return
	}
	wire := make([]wireSetting, len(settings))
	for i, s := range settings {
		wire[i] = wireSetting{Name: s.Name, Value: s.Value}
	}
	h.send(settingsResponse{Command: "settings", Settings: wire})
}

func (h *connHandler) handleSettingsSet(req *request) {
	for _, s := range req.Settings {
		if err := config.Validate(s.Name, s.Value); err != nil {
			var configErr *portalerr.ConfigError
			asConfigError(err, &configErr)
			h.send(newError(errInvalidSetting, configErr.Error()))
			return
		}
		if err := h.server.store.SetSetting(s.Name, s.Value); err != nil {
			var configErr *portalerr.ConfigError
			if asConfigError(err, &configErr) {
				h.send(newError(errInvalidSetting, configErr.Error()))
				return
			}
			h.send(newError(errDatabaseError, "unable to save setting"))
			return
		}
	}
	h.handleSettingsGet()
}

func asConfigError(err error, target **portalerr.ConfigError) bool {
	ce, ok := err.(*portalerr.ConfigError)
	if ok {
		*target = ce
	}
	return ok
}

func (h *connHandler) handleAPIList() {
	apis, err := h.server.store.RemoteAPIs()
	if err != nil {
		h.send(newError(errDatabaseError, "unable to load remote apis"))
		return
	}
	h.send(apiListResponse{Command: "api_list", APIs: toWireAPIs(apis)})
}

func (h *connHandler) handleAPIAdd(req *request) {
	kind := model.RemoteAPIKind(req.Kind)
	if kind != model.RemoteKindChronokeep && kind != model.RemoteKindChronokeepSelf {
		h.send(newError(errInvalidAPIType, "unknown remote api kind: "+req.Kind))
		return
	}
	api := model.RemoteAPI{Name: req.Name, Kind: kind, URI: req.URI, Token: req.Token}
	if req.ID != nil {
		api.ID = *req.ID
	}
	if _, err := h.server.store.SaveAPI(api); err != nil {
		h.send(newError(errDatabaseError, "unable to save remote api"))
		return
	}
	h.handleAPIList()
}

func (h *connHandler) handleAPIRemove(req *request) {
	if req.ID == nil {
		h.send(newError(errNotFound, "missing api id"))
		return
	}
	if err := h.server.store.DeleteAPI(*req.ID); err != nil {
		h.send(newError(errDatabaseError, "unable to delete remote api"))
		return
	}
	h.handleAPIList()
}

func (h *connHandler) handleParticipantsGet() {
	participants, err := h.server.store.Participants()
	if err != nil {
		h.send(newError(errDatabaseError, "unable to load participants"))
		return
	}
	h.send(participantsResponse{Command: "participants", Participants: toWireParticipants(participants)})
}

func (h *connHandler) handleParticipantsAdd(req *request) {
	participants := make([]model.Participant, len(req.Participants))
	for i, p := range req.Participants {
		participants[i] = toModelParticipant(p)
	}
	if err := h.server.store.AddParticipants(participants); err != nil {
		h.send(newError(errDatabaseError, "unable to save participants"))
		return
	}
	h.handleParticipantsGet()
}

func (h *connHandler) handleParticipantsRemove() {
	if err := h.server.store.DeleteAllParticipants(); err != nil {
		h.send(newError(errDatabaseError, "unable to remove participants"))
		return
	}
	h.handleParticipantsGet()
}

func (h *connHandler) handleReadsGet(req *request) {
	reads, err := h.server.store.ReadsBetween(req.StartSeconds, req.EndSeconds)
	if err != nil {
		h.send(newError(errDatabaseError, "unable to load reads"))
		return
	}
	h.send(readsResponse{Command: "reads", Reads: toWireReads(reads)})
}

func (h *connHandler) handleReadsGetAll() {
	reads, err := h.server.store.AllReads()
	if err != nil {
		h.send(newError(errDatabaseError, "unable to load reads"))
		return
	}
	h.send(readsResponse{Command: "reads", Reads: toWireReads(reads)})
}

func (h *connHandler) handleReadsDelete(req *request) {
	count, err := h.server.store.DeleteReadsBetween(req.StartSeconds, req.EndSeconds)
	if err != nil {
		h.send(newError(errDatabaseError, "unable to delete reads"))
		return
	}
	h.send(successResponse{Command: "success", Count: int(count)})
}

func (h *connHandler) handleReadsDeleteAll() {
	count, err := h.server.store.DeleteAllReads()
	if err != nil {
		h.send(newError(errDatabaseError, "unable to delete reads"))
		return
	}
	h.send(successResponse{Command: "success", Count: int(count)})
}

// eventbus.Writer implementation: every broadcast from the bus lands
// here as a regular framed response.

func (h *connHandler) WriteReads(reads []model.Read) error {
	return h.send(readsResponse{Command: "reads", Reads: toWireReads(reads)})
}

func (h *connHandler) WriteSightings(sightings []model.Sighting) error {
	return h.send(sightingsResponse{Command: "sightings", Sightings: toWireSightings(sightings)})
}

func (h *connHandler) WriteReaders(readers []*model.Reader) error {
	return h.send(readersResponse{Command: "readers", Readers: toWireReaders(readers)})
}

func (h *connHandler) WriteSettings(settings []model.Setting) error {
	wire := make([]wireSetting, len(settings))
	for i, s := range settings {
		wire[i] = wireSetting{Name: s.Name, Value: s.Value}
	}
	return h.send(settingsResponse{Command: "settings", Settings: wire})
}

func (h *connHandler) WriteAPIs(apis []model.RemoteAPI) error {
	return h.send(apiListResponse{Command: "api_list", APIs: toWireAPIs(apis)})
}

func (h *connHandler) WriteParticipants(participants []model.Participant) error {
	return h.send(participantsResponse{Command: "participants", Participants: toWireParticipants(participants)})
}

func (h *connHandler) WriteKeepalive() error {
	return h.send(keepaliveMessage{Command: "keepalive"})
}

func (h *connHandler) WriteUploaderStatus(status upload.Status) error {
	return h.send(uploaderStatusMessage{Command: "uploader_status", Status: string(status)})
}

func (h *connHandler) Close() error {
	return h.conn.Close()
}
