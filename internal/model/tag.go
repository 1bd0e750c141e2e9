package model

// TagObservation is an ephemeral, single EPC sighting as projected
// from one TAG_REPORT_DATA parameter. It never touches storage on
// its own — the aggregation engine folds a run of these into one
// durable Read (spec §3, §4.C).
type TagObservation struct {
	// EPC is the 96-bit tag value. uint96 doesn't exist in Go, so it
	// is kept as the big-endian bytes the wire codec decoded plus a
	// decimal/hex rendering helper (see Tag.Identifier in epc.go).
	EPC       Tag
	Antenna   uint16
	RSSI      int8
	FirstSeen int64 // microseconds, UTC
	LastSeen  int64 // microseconds, UTC
}

// AggregationEntry is the per-tag state kept by the aggregation
// engine: the window's open timestamp and the best (highest-RSSI)
// observation seen in it so far.
type AggregationEntry struct {
	WindowOpenUS int64
	Best         TagObservation
}
