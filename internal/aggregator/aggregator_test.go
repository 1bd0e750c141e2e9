package aggregator

import (
	"testing"

	"github.com/chronokeep/portal-gateway/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tag(b byte) model.Tag {
	var t model.Tag
	t[model.EPCBytes-1] = b
	return t
}

// Observe runs the grace scan against the wall clock, so observation
// timestamps are taken relative to the current time.

func TestObserveWithinWindowKeepsBestRSSI(t *testing.T) {
	a := New("reader-1", model.ChipTypeDEC, 20) // window = 2,000,000us
	epc := tag(1)
	base := nowMicros()

	reads := a.Observe([]model.TagObservation{
		{EPC: epc, Antenna: 1, RSSI: -60, FirstSeen: base + 1_000_000, LastSeen: base + 1_000_000},
	})
	assert.Empty(t, reads)

	reads = a.Observe([]model.TagObservation{
		{EPC: epc, Antenna: 1, RSSI: -40, FirstSeen: base + 1_500_000, LastSeen: base + 1_500_000},
	})
	require.Empty(t, reads, "still inside the window, no emission expected")

	entry, ok := a.entries[epc]
	require.True(t, ok)
	assert.Equal(t, int8(-40), entry.Best.RSSI, "higher rssi observation should win")
	assert.Equal(t, base+1_000_000, entry.WindowOpenUS, "window open time must not move")
}

func TestObserveEmitsOnWindowClose(t *testing.T) {
	a := New("reader-1", model.ChipTypeDEC, 20) // window = 2,000,000us
	epc := tag(2)
	base := nowMicros()

	a.Observe([]model.TagObservation{
		{EPC: epc, Antenna: 3, RSSI: -55, FirstSeen: base, LastSeen: base},
	})
	reads := a.Observe([]model.TagObservation{
		{EPC: epc, Antenna: 3, RSSI: -50, FirstSeen: base + 3_000_000, LastSeen: base + 3_000_000},
	})

	require.Len(t, reads, 1)
	assert.Equal(t, "2", reads[0].Identifier)
	assert.Equal(t, uint16(3), reads[0].Antenna)
	assert.Equal(t, "-55", reads[0].RSSI)
	assert.Equal(t, model.ReadStatusUnused, reads[0].Status)
	assert.False(t, reads[0].Uploaded)

	_, stillOpen := a.entries[epc]
	assert.True(t, stillOpen, "the new observation opens a fresh window")
}

func TestTickFlushesAfterGracePeriod(t *testing.T) {
	a := New("reader-1", model.ChipTypeHEX, 10) // window = 1,000,000us
	epc := tag(0xAB)
	base := nowMicros()

	a.Observe([]model.TagObservation{
		{EPC: epc, Antenna: 1, RSSI: -60, FirstSeen: base, LastSeen: base},
	})

	reads := a.tick(base + 1_000_000 + 1_000_000 - 1) // window + grace not yet elapsed
	assert.Empty(t, reads)

	reads = a.tick(base + 1_000_000 + 1_000_000 + 1) // window + grace elapsed
	require.Len(t, reads, 1)
	assert.Len(t, reads[0].Identifier, 24)
	assert.Equal(t, "AB", reads[0].Identifier[22:])
	assert.Empty(t, a.entries)
}

func TestDrainFlushesEverythingUnconditionally(t *testing.T) {
	a := New("reader-1", model.ChipTypeDEC, 100)
	base := nowMicros()
	a.Observe([]model.TagObservation{
		{EPC: tag(1), Antenna: 1, RSSI: -60, FirstSeen: base, LastSeen: base},
		{EPC: tag(2), Antenna: 1, RSSI: -60, FirstSeen: base, LastSeen: base},
	})

	reads := a.Drain()
	assert.Len(t, reads, 2)
	assert.Empty(t, a.entries)
}
