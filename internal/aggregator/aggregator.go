// Package aggregator implements the per-reader tag aggregation engine
// of spec §4.C: a sliding read-window keyed by tag value that picks
// the best (highest RSSI) observation in each window and emits
// exactly one durable read per window, plus a grace-period flush so a
// tag that goes silent is never held indefinitely.
package aggregator

import (
	"sort"
	"strconv"
	"time"

	"github.com/chronokeep/portal-gateway/internal/model"
)

// graceMicros is the grace period G of spec §4.C: a window is flushed
// by Tick even without a closing observation once it has been open
// W+G microseconds.
const graceMicros int64 = 1_000_000

// tenthSecondMicros converts the configured read-window (tenths of a
// second) to the microsecond unit the window math runs in.
const tenthSecondMicros int64 = 100_000

// Aggregator holds the per-tag window map for a single reader
// session. It is not safe for concurrent use: spec §5 assigns the
// aggregation map to exactly one thread (the owning session).
type Aggregator struct {
	readerName string
	chipType   model.ChipType
	windowUS   int64

	entries map[model.Tag]model.AggregationEntry
}

// New builds an Aggregator for one reader session. readWindowTenths is
// the configured SETTING_READ_WINDOW value (tenths of a second).
func New(readerName string, chipType model.ChipType, readWindowTenths uint8) *Aggregator {
	return &Aggregator{
		readerName: readerName,
		chipType:   chipType,
		windowUS:   int64(readWindowTenths) * tenthSecondMicros,
		entries:    make(map[model.Tag]model.AggregationEntry),
	}
}

// Observe folds a batch of new observations into the window map and
// returns any durable reads that close out as a result (spec §4.C
// steps 1-3), then performs the same grace-period scan Tick does so a
// call with a non-empty batch also catches any window whose grace
// period has separately elapsed.
func (a *Aggregator) Observe(tags []model.TagObservation) []model.Read {
	sorted := make([]model.TagObservation, len(tags))
	copy(sorted, tags)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].FirstSeen < sorted[j].FirstSeen })

	var reads []model.Read
	for _, o := range sorted {
		entry, ok := a.entries[o.EPC]
		if !ok {
			a.entries[o.EPC] = model.AggregationEntry{WindowOpenUS: o.FirstSeen, Best: o}
			continue
		}
		if entry.WindowOpenUS+a.windowUS > o.FirstSeen {
			best := entry.Best
			if o.RSSI > best.RSSI {
				best = o
			}
			a.entries[o.EPC] = model.AggregationEntry{WindowOpenUS: entry.WindowOpenUS, Best: best}
			continue
		}
		reads = append(reads, a.project(entry.Best))
		a.entries[o.EPC] = model.AggregationEntry{WindowOpenUS: o.FirstSeen, Best: o}
	}

	reads = append(reads, a.tick(nowMicros())...)
	return reads
}

// Tick performs only the grace-period scan (spec §4.C "On every tick
// (including empty ticks)"), used when a session's socket read times
// out with no new data.
func (a *Aggregator) Tick() []model.Read {
	return a.tick(nowMicros())
}

func (a *Aggregator) tick(now int64) []model.Read {
	var reads []model.Read
	var expired []model.Tag
	for tag, entry := range a.entries {
		if entry.WindowOpenUS+a.windowUS+graceMicros < now {
			reads = append(reads, a.project(entry.Best))
			expired = append(expired, tag)
		}
	}
	for _, tag := range expired {
		delete(a.entries, tag)
	}
	return reads
}

// Drain flushes every open window unconditionally (spec §4.B
// "Teardown ... flushes any remaining aggregation entries as reads").
func (a *Aggregator) Drain() []model.Read {
	reads := make([]model.Read, 0, len(a.entries))
	for _, entry := range a.entries {
		reads = append(reads, a.project(entry.Best))
	}
	a.entries = make(map[model.Tag]model.AggregationEntry)
	return reads
}

// project renders the best observation of a closed window as a
// durable read (spec §4.C "Projection to durable read"). The reader's
// own clock is the only timestamp source available at this layer, so
// reader-seconds/milliseconds mirror seconds/milliseconds for
// reader-kind reads.
func (a *Aggregator) project(best model.TagObservation) model.Read {
	seconds := uint64(best.FirstSeen / 1_000_000)
	millis := uint32((best.FirstSeen / 1_000) % 1000)
	return model.Read{
		Identifier:         best.EPC.Identifier(a.chipType),
		Seconds:            seconds,
		Milliseconds:       millis,
		ReaderSeconds:      seconds,
		ReaderMilliseconds: millis,
		Antenna:            best.Antenna,
		Reader:             a.readerName,
		RSSI:               strconv.Itoa(int(best.RSSI)),
		IdentType:          model.IdentTypeChip,
		Kind:               model.ReadKindReader,
		Status:             model.ReadStatusUnused,
		Uploaded:           false,
	}
}

func nowMicros() int64 { return time.Now().UnixMicro() }
