package model

// ReadStatus is the classification state a sightings pass assigns to
// a read (spec §3, §4.F).
type ReadStatus string

const (
	ReadStatusUnused  ReadStatus = "unused"
	ReadStatusUsed    ReadStatus = "used"
	ReadStatusTooSoon ReadStatus = "too_soon"
)

// IdentType distinguishes a read keyed by chip (EPC-derived) vs. one
// entered manually against a bib number.
type IdentType string

const (
	IdentTypeChip IdentType = "chip"
	IdentTypeBib  IdentType = "bib"
)

// ReadKind distinguishes reads produced by a reader session from
// ones entered by an operator.
type ReadKind string

const (
	ReadKindReader ReadKind = "reader"
	ReadKindManual ReadKind = "manual"
)

// Read is a durable tag read (spec §3 "Durable read"). Uniqueness is
// on (Identifier, Seconds, Milliseconds); the repository enforces
// this with a unique index and silently drops duplicate inserts
// (spec invariant 3).
type Read struct {
	ID                 int64
	Identifier         string
	Seconds            uint64
	Milliseconds       uint32
	ReaderSeconds      uint64
	ReaderMilliseconds uint32
	Antenna            uint16
	Reader             string
	RSSI               string
	IdentType          IdentType
	Kind               ReadKind
	Status             ReadStatus
	Uploaded           bool
}

// Before reports whether r occurred strictly earlier than other when
// compared lexicographically on (seconds, milliseconds), the ordering
// spec §4.F and §8 use for the sighting period comparison.
func (r Read) Before(other Read) bool {
	if r.Seconds != other.Seconds {
		return r.Seconds < other.Seconds
	}
	return r.Milliseconds < other.Milliseconds
}

// AtOrAfter is the complement of Before. The sightings processor's
// "last + period > r" check (readOutsidePeriod) compares the fields
// directly and does not call it.
func (r Read) AtOrAfter(other Read) bool {
	return !r.Before(other)
}

// AddSeconds returns a (seconds, milliseconds) pair advanced by the
// given whole seconds, used to compute "last + period" without
// constructing an intermediate Read.
func AddSeconds(seconds uint64, milliseconds uint32, delta uint64) (uint64, uint32) {
	return seconds + delta, milliseconds
}
