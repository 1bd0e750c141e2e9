// Package model holds the data types shared across the gateway's
// components: reader descriptors, tag observations, durable reads,
// participants, bib/chip mappings, sightings and settings (spec §3).
package model

import "net"

// ReaderKind is the tagged variant over reader hardware families.
// Only Kind LLRP has a working implementation; the others are
// reserved identifiers so reader rows created by an older or future
// revision still round-trip through the data-access port.
type ReaderKind string

const (
	KindLLRP   ReaderKind = "LLRP"
	KindRFID   ReaderKind = "RFID"
	KindImpinj ReaderKind = "IMPINJ"
)

// AntennaStatus tracks the four states an antenna slot can be in.
type AntennaStatus int

const (
	AntennaUnused AntennaStatus = iota
	AntennaConnected
	AntennaDisconnected
	AntennaNone
)

// AntennaCount is the fixed number of antenna slots tracked per reader.
const AntennaCount = 8

// Reader is the stable, persisted descriptor for a configured RFID
// reader, plus the mutable live-session state layered on top of it
// while a session is connected.
type Reader struct {
	ID          int64
	Nickname    string
	Kind        ReaderKind
	IPAddress   net.IP
	Port        uint16
	AutoConnect bool

	// Mutable live state. Zero value is the disconnected state.
	Connected     bool
	Reading       bool
	Antennas      [AntennaCount]AntennaStatus
	NextMessageID uint32
}

// Clone returns a value copy safe to hand to a caller outside the
// lock protecting the live reader table.
func (r *Reader) Clone() *Reader {
	cp := *r
	return &cp
}
