// Package readersession implements the per-reader TCP session state
// machine of spec §4.B: connect, configure, start/stop reading, the
// inventory read loop, and teardown. It knows the exact LLRP message
// sequence a Zebra-profile reader expects; it knows nothing about
// persistence, the event bus or reconnection -- those are injected as
// the Aggregator and Sink interfaces, and supervised externally by
// internal/reconnect.
package readersession

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/chronokeep/portal-gateway/internal/llrp"
	"github.com/chronokeep/portal-gateway/internal/model"
	"github.com/chronokeep/portal-gateway/internal/portalerr"
	"github.com/chronokeep/portal-gateway/pkg/log"
)

// State is a reader session's position in the spec §4.B state machine.
type State int

const (
	Disconnected State = iota
	Configuring
	Idle
	Inventorying
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Configuring:
		return "configuring"
	case Idle:
		return "idle"
	case Inventorying:
		return "inventorying"
	default:
		return "unknown"
	}
}

// connectTimeout/readTimeout match the 1-second budgets of spec §4.B.
const (
	connectTimeout = 1 * time.Second
	readTimeout    = 1 * time.Second

	// rospecID is the single always-on ROSpec id the session manages
	// (spec §4.B "add-ROSpec(id=100)").
	rospecID = 100

	recvBufSize = 51200
)

// Aggregator is the subset of the tag aggregation engine (§4.C) a
// session drives: folding a batch of observations into the per-tag
// window map, ticking the grace-period flush, and draining everything
// at teardown.
type Aggregator interface {
	Observe(tags []model.TagObservation) []model.Read
	Tick() []model.Read
	Drain() []model.Read
}

// Sink receives durable reads a session's aggregator has emitted. A
// real sink persists via internal/repository and notifies the event
// bus and sightings processor (spec §4.C "Persistence contract");
// tests can substitute a slice-collecting fake.
type Sink interface {
	AcceptReads(reads []model.Read)
}

// Session is one live (or about to be torn down) connection to a
// reader. Exported state (Reader) is only safe to read while the
// session is not concurrently transitioning; callers needing a
// consistent snapshot should go through Reader().
type Session struct {
	reader     *model.Reader
	aggregator Aggregator
	sink       Sink
	chipType   model.ChipType

	mu    sync.Mutex
	state State
	conn  net.Conn

	stopLoop chan struct{}
	loopDone chan struct{}

	lossHandler func()
}

// New builds a session for reader, bound to the given aggregator and
// sink. chipType controls how the aggregator's identifier rendering
// happens downstream; the session itself never formats identifiers.
func New(reader *model.Reader, aggregator Aggregator, sink Sink, chipType model.ChipType) *Session {
	return &Session{
		reader:     reader,
		aggregator: aggregator,
		sink:       sink,
		chipType:   chipType,
		state:      Disconnected,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnLost registers the callback invoked once, from the inventory
// loop's own goroutine, when the session drops outside of an explicit
// Close (spec §4.D: "(D) wraps (B), resurrecting sessions that
// drop"). The owner uses it to hand the session to the reconnect
// supervisor; it is never called for an operator-initiated Close.
func (s *Session) OnLost(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lossHandler = fn
}

func (s *Session) nextID() uint32 {
	s.reader.NextMessageID++
	return s.reader.NextMessageID
}

func (s *Session) write(buf []byte) error {
	if _, err := s.conn.Write(buf); err != nil {
		return &portalerr.ConnectError{Reason: "unable to write to stream: " + err.Error()}
	}
	return nil
}

// Connect dials the reader and runs the full connect sequence of spec
// §4.B: delete-all-access-spec, delete-all-ROSpec, set-keepalive,
// vendor purge-tags, vendor no-filter, normal reader-config,
// enable-events-and-reports, with monotone ids starting at 1. On
// success the session enters Idle and the inventory read loop starts;
// any failure leaves the session Disconnected.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Disconnected {
		s.mu.Unlock()
		return &portalerr.ConnectError{Reason: "session is not disconnected"}
	}
	s.state = Configuring
	s.mu.Unlock()

	addr := net.JoinHostPort(s.reader.IPAddress.String(), portString(s.reader.Port))
	dialer := net.Dialer{Timeout: connectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		s.mu.Lock()
		s.state = Disconnected
		s.mu.Unlock()
		return &portalerr.ConnectError{Reason: "unable to connect: " + err.Error()}
	}

	s.mu.Lock()
	s.conn = conn
	s.reader.NextMessageID = 0
	s.mu.Unlock()

	if err := s.sendConnectSequence(); err != nil {
		conn.Close()
		s.mu.Lock()
		s.conn = nil
		s.state = Disconnected
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.state = Idle
	s.reader.Connected = true
	s.stopLoop = make(chan struct{})
	s.loopDone = make(chan struct{})
	s.mu.Unlock()

	go s.inventoryLoop()
	log.Infof("reader %q connected", s.reader.Nickname)
	return nil
}

func (s *Session) sendConnectSequence() error {
	steps := []func(uint32, uint32) []byte{
		llrp.DeleteAccessSpec,
		llrp.DeleteROSpec,
	}
	for _, step := range steps {
		if err := s.write(step(s.nextID(), 0)); err != nil {
			return err
		}
	}
	if err := s.write(llrp.SetKeepalive(s.nextID())); err != nil {
		return err
	}
	if err := s.write(llrp.PurgeTags(s.nextID())); err != nil {
		return err
	}
	if err := s.write(llrp.SetNoFilter(s.nextID())); err != nil {
		return err
	}
	if err := s.write(llrp.SetReaderConfig(s.nextID())); err != nil {
		return err
	}
	if err := s.write(llrp.EnableEventsAndReports(s.nextID())); err != nil {
		return err
	}
	return nil
}

// StartReading transitions Idle->Inventorying, issuing delete-all-
// access-spec, delete-all-ROSpec, add-ROSpec(100), enable-ROSpec(100),
// start-ROSpec(100) (spec §4.B "Start reading").
func (s *Session) StartReading() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Idle {
		if s.state == Inventorying {
			return &portalerr.AlreadyReading{Reader: s.reader.Nickname}
		}
		return &portalerr.ConnectError{Reason: "session not idle"}
	}
	if err := s.write(llrp.DeleteAccessSpec(s.nextID(), 0)); err != nil {
		return err
	}
	if err := s.write(llrp.DeleteROSpec(s.nextID(), 0)); err != nil {
		return err
	}
	if err := s.write(llrp.AddROSpec(s.nextID(), rospecID)); err != nil {
		return err
	}
	if err := s.write(llrp.EnableROSpec(s.nextID(), rospecID)); err != nil {
		return err
	}
	if err := s.write(llrp.StartROSpec(s.nextID(), rospecID)); err != nil {
		return err
	}
	s.state = Inventorying
	s.reader.Reading = true
	return nil
}

// StopReading transitions Inventorying->Idle: disable-ROSpec(0),
// delete-ROSpec(0) (spec §4.B "Stop reading").
func (s *Session) StopReading() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopReadingLocked()
}

func (s *Session) stopReadingLocked() error {
	if s.state != Inventorying {
		return &portalerr.NotReading{Reader: s.reader.Nickname}
	}
	if err := s.write(llrp.DisableROSpec(s.nextID(), 0)); err != nil {
		return err
	}
	if err := s.write(llrp.DeleteROSpec(s.nextID(), 0)); err != nil {
		return err
	}
	s.state = Idle
	s.reader.Reading = false
	return nil
}

// Close tears the session down (spec §4.B "Teardown"): stops reading
// if still inventorying, sends CLOSE_CONNECTION, drains one last
// message, flushes any remaining aggregation entries as reads, and
// releases the socket.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == Disconnected {
		s.mu.Unlock()
		return
	}
	stop := s.stopLoop
	s.mu.Unlock()

	if stop != nil {
		close(stop)
		<-s.loopDone
	}

	s.teardown()
	log.Infof("reader %q disconnected", s.reader.Nickname)
}

// teardown runs the shared shutdown steps of spec §4.B "Teardown"
// (stop reading, CLOSE_CONNECTION, drain, release the socket, reset
// state) without touching stopLoop/loopDone, so it is safe to call
// both from Close and from inside the inventory loop's own goroutine
// on connection loss (calling Close there would deadlock waiting on
// loopDone).
func (s *Session) teardown() {
	s.mu.Lock()
	if s.state == Inventorying {
		_ = s.stopReadingLocked()
	}
	finID := s.nextID()
	closeBuf := llrp.CloseConnection(finID)
	_ = s.write(closeBuf)
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		buf := make([]byte, recvBufSize)
		conn.Read(buf) // best-effort drain; errors are expected and ignored
		conn.Close()
	}

	remaining := s.aggregator.Drain()
	if len(remaining) > 0 {
		s.sink.AcceptReads(remaining)
	}

	s.mu.Lock()
	s.state = Disconnected
	s.reader.Connected = false
	s.reader.Reading = false
	s.conn = nil
	s.mu.Unlock()
}

// handleLoss tears the session down after an unexpected connection
// loss and, if an owner registered one, invokes the loss callback so
// the reconnect supervisor can pick the session back up (spec §4.D).
func (s *Session) handleLoss() {
	s.teardown()
	s.mu.Lock()
	onLost := s.lossHandler
	s.mu.Unlock()
	if onLost != nil {
		onLost()
	}
}

// inventoryLoop is the per-session read thread (spec §5 "one thread
// per reader session"). It owns the socket read deadline and is the
// only goroutine allowed to call Aggregator.Observe/Tick.
func (s *Session) inventoryLoop() {
	defer close(s.loopDone)
	buf := make([]byte, recvBufSize)
	s.conn.SetReadDeadline(time.Now().Add(readTimeout))

	for {
		select {
		case <-s.stopLoop:
			return
		default:
		}

		reports, err := s.readOnce(buf)
		if err != nil {
			if isTimeout(err) {
				s.flush(s.aggregator.Tick())
				s.conn.SetReadDeadline(time.Now().Add(readTimeout))
				continue
			}
			if errors.Is(err, io.EOF) || isConnReset(err) {
				log.Warnf("reader %q session lost: %v", s.reader.Nickname, err)
				s.handleLoss()
				return
			}
			log.Errorf("reader %q read error: %v", s.reader.Nickname, err)
			s.conn.SetReadDeadline(time.Now().Add(readTimeout))
			continue
		}

		if len(reports) > 0 {
			observations := make([]model.TagObservation, len(reports))
			for i, r := range reports {
				observations[i] = model.TagObservation{
					EPC:       r.EPC,
					Antenna:   r.Antenna,
					RSSI:      r.RSSI,
					FirstSeen: r.FirstSeen,
					LastSeen:  r.LastSeen,
				}
			}
			s.flush(s.aggregator.Observe(observations))
		}
		s.conn.SetReadDeadline(time.Now().Add(readTimeout))
	}
}

func (s *Session) flush(reads []model.Read) {
	if len(reads) > 0 {
		s.sink.AcceptReads(reads)
	}
}

// readOnce consumes a single TCP read, which may contain several
// concatenated LLRP messages, and returns every tag report found
// across all RO_ACCESS_REPORT messages in it. KEEPALIVE messages are
// answered inline (spec §4.B "Inventory loop").
func (s *Session) readOnce(buf []byte) ([]llrp.TagReport, error) {
	n, err := s.conn.Read(buf)
	if err != nil {
		return nil, err
	}
	var reports []llrp.TagReport
	ix := 0
	for ix < n {
		if ix+llrp.HeaderLen > n {
			return reports, &portalerr.ProtocolError{Reason: "truncated message header"}
		}
		header, err := llrp.DecodeHeader(buf[ix : ix+llrp.HeaderLen])
		if err != nil {
			return reports, err
		}
		maxIx := ix + int(header.Length)
		if maxIx > n {
			return reports, &portalerr.ProtocolError{Reason: "message overruns buffer"}
		}
		switch header.Type {
		case llrp.MsgKeepalive:
			_ = s.write(llrp.KeepaliveAck(header.ID))
		case llrp.MsgROAccessReport:
			got, err := llrp.DecodeROAccessReport(buf, ix+llrp.HeaderLen, maxIx)
			if err != nil {
				log.Warnf("reader %q: %v", s.reader.Nickname, err)
			} else {
				reports = append(reports, got...)
			}
		}
		ix = maxIx
	}
	return reports, nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isConnReset(err error) bool {
	return errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED)
}

func portString(p uint16) string {
	return strconv.Itoa(int(p))
}
