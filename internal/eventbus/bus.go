// Package eventbus implements the bounded control-session fan-out of
// spec §4.E: a fixed-size subscriber table with independent reads/
// sightings subscription bits, broadcast helpers for the entity lists
// the control protocol cares about, and a keep-alive timeout that
// detaches a subscriber the gateway hasn't heard from in a while.
package eventbus

import (
	"sync"
	"time"

	"github.com/chronokeep/portal-gateway/internal/model"
	"github.com/chronokeep/portal-gateway/internal/portalerr"
	"github.com/chronokeep/portal-gateway/internal/upload"
	"github.com/chronokeep/portal-gateway/pkg/log"
)

// MaxSubscribers is N_MAX (spec §4.E, §6): up to four regular control
// sessions. LoopbackSlot is one additional reserved index accepted
// only for a loopback-originated connection.
const (
	MaxSubscribers = 4
	LoopbackSlot   = MaxSubscribers
	slotCount      = MaxSubscribers + 1

	// keepaliveInterval/keepaliveTimeout implement the 30s/60s rule
	// of spec §4.E.
	keepaliveInterval = 30 * time.Second
	keepaliveTimeout  = 2 * keepaliveInterval
)

// Writer is anything a subscriber's outbound messages can be written
// to; the control package's connection wraps a net.Conn with whatever
// framing the wire protocol needs.
type Writer interface {
	WriteReads(reads []model.Read) error
	WriteSightings(sightings []model.Sighting) error
	WriteReaders(readers []*model.Reader) error
	WriteSettings(settings []model.Setting) error
	WriteAPIs(apis []model.RemoteAPI) error
	WriteParticipants(participants []model.Participant) error
	WriteUploaderStatus(status upload.Status) error
	WriteKeepalive() error
	Close() error
}

type subscriber struct {
	writer         Writer
	reads          bool
	sightings      bool
	lastActivity   time.Time
	loopback       bool
}

// Bus is the bounded fan-out registry. The zero value is not usable;
// construct with New.
type Bus struct {
	mu   sync.Mutex
	subs [slotCount]*subscriber
}

func New() *Bus {
	return &Bus{}
}

// Subscribe attaches a writer at the first free regular slot (or the
// reserved loopback slot, if loopback is true), with the given initial
// subscription bits. It returns the slot index, used later to
// unsubscribe or to route directed writes.
func (b *Bus) Subscribe(w Writer, reads, sightings, loopback bool) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if loopback {
		if b.subs[LoopbackSlot] != nil {
			return 0, &portalerr.SubscriberError{Index: LoopbackSlot, Err: errTooMany}
		}
		b.subs[LoopbackSlot] = &subscriber{writer: w, reads: reads, sightings: sightings, lastActivity: time.Now(), loopback: true}
		return LoopbackSlot, nil
	}

	for i := 0; i < MaxSubscribers; i++ {
		if b.subs[i] == nil {
			b.subs[i] = &subscriber{writer: w, reads: reads, sightings: sightings, lastActivity: time.Now()}
			return i, nil
		}
	}
	return 0, &portalerr.SubscriberError{Index: -1, Err: errTooMany}
}

var errTooMany = subscriberLimitError{}

type subscriberLimitError struct{}

func (subscriberLimitError) Error() string { return "too many connections" }

// Unsubscribe detaches the slot, closing its writer.
func (b *Bus) Unsubscribe(index int) {
	b.mu.Lock()
	sub := b.subs[index]
	b.subs[index] = nil
	b.mu.Unlock()
	if sub != nil {
		sub.writer.Close()
	}
}

// UpdateSubscription flips a slot's reads/sightings bits. It returns
// AlreadySubscribed if the requested bits equal the current ones
// (spec §4.E "An AlreadySubscribed error is returned when a subscribe
// request does not change the current bit").
func (b *Bus) UpdateSubscription(index int, reads, sightings bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := b.subs[index]
	if sub == nil {
		return &portalerr.SubscriberError{Index: index, Err: errNotFound}
	}
	if sub.reads == reads && sub.sightings == sightings {
		return &portalerr.SubscriberError{Index: index, Err: errAlreadySubscribed}
	}
	sub.reads = reads
	sub.sightings = sightings
	return nil
}

var (
	errNotFound           = notFoundError{}
	errAlreadySubscribed  = alreadySubscribedError{}
)

type notFoundError struct{}

func (notFoundError) Error() string { return "not found" }

type alreadySubscribedError struct{}

func (alreadySubscribedError) Error() string { return "already_subscribed" }

// Touch records activity from a subscriber (any inbound message,
// including keepalive_ack), resetting its keep-alive timeout.
func (b *Bus) Touch(index int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub := b.subs[index]; sub != nil {
		sub.lastActivity = time.Now()
	}
}

// BroadcastReads sends reads to every subscriber with reads=true
// (spec §4.C "subscribers are notified via the event bus").
func (b *Bus) BroadcastReads(reads []model.Read) {
	b.forEach(func(i int, s *subscriber) bool { return s.reads }, func(s *subscriber) error {
		return s.writer.WriteReads(reads)
	})
}

// BroadcastSightings sends sightings to every subscriber with
// sightings=true (spec §4.F step 7).
func (b *Bus) BroadcastSightings(sightings []model.Sighting) {
	b.forEach(func(i int, s *subscriber) bool { return s.sightings }, func(s *subscriber) error {
		return s.writer.WriteSightings(sightings)
	})
}

// BroadcastReaders sends the full reader list to all subscribers
// (spec §4.E "broadcast-reader-list").
func (b *Bus) BroadcastReaders(readers []*model.Reader) {
	b.forEach(nil, func(s *subscriber) error { return s.writer.WriteReaders(readers) })
}

// BroadcastSettings sends the full settings list to all subscribers.
func (b *Bus) BroadcastSettings(settings []model.Setting) {
	b.forEach(nil, func(s *subscriber) error { return s.writer.WriteSettings(settings) })
}

// BroadcastAPIs sends the full remote-API list to all subscribers.
func (b *Bus) BroadcastAPIs(apis []model.RemoteAPI) {
	b.forEach(nil, func(s *subscriber) error { return s.writer.WriteAPIs(apis) })
}

// BroadcastParticipants sends the full participant list to all
// subscribers.
func (b *Bus) BroadcastParticipants(participants []model.Participant) {
	b.forEach(nil, func(s *subscriber) error { return s.writer.WriteParticipants(participants) })
}

// BroadcastUploaderStatus sends the upload worker's lifecycle state to
// all subscribers (spec §4.G "each transition is broadcast via (E) as
// an uploader status message").
func (b *Bus) BroadcastUploaderStatus(status upload.Status) {
	b.forEach(nil, func(s *subscriber) error { return s.writer.WriteUploaderStatus(status) })
}

// forEach writes to every attached subscriber matching filter (nil
// filter means "all"), detaching any subscriber whose write fails
// (spec §4.E "A per-write failure detaches that subscriber only").
// The bus lock is held for the whole pass over all subscribers, which
// keeps each subscriber's writes FIFO; a slow write to one subscriber
// delays the writes to every subscriber after it.
func (b *Bus) forEach(filter func(int, *subscriber) bool, write func(*subscriber) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub == nil {
			continue
		}
		if filter != nil && !filter(i, sub) {
			continue
		}
		if err := write(sub); err != nil {
			log.Warnf("eventbus: detaching subscriber %d: %v", i, err)
			sub.writer.Close()
			b.subs[i] = nil
		}
	}
}

// SweepKeepalive detaches any subscriber silent for more than
// keepaliveTimeout. Intended to run on a keepaliveInterval ticker
// (spec §4.E "a 30-second session keep-alive").
func (b *Bus) SweepKeepalive() {
	b.mu.Lock()
	now := time.Now()
	var stale []*subscriber
	for i, sub := range b.subs {
		if sub == nil {
			continue
		}
		if now.Sub(sub.lastActivity) > keepaliveTimeout {
			stale = append(stale, sub)
			b.subs[i] = nil
			continue
		}
		if now.Sub(sub.lastActivity) >= keepaliveInterval {
			if err := sub.writer.WriteKeepalive(); err != nil {
				stale = append(stale, sub)
				b.subs[i] = nil
			}
		}
	}
	b.mu.Unlock()
	for _, sub := range stale {
		sub.writer.Close()
	}
}

// Count returns the number of attached regular (non-loopback)
// subscribers, used to enforce spec §8 invariant 8.
func (b *Bus) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for i := 0; i < MaxSubscribers; i++ {
		if b.subs[i] != nil {
			n++
		}
	}
	return n
}
