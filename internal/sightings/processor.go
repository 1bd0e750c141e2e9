// Package sightings implements the classification pass of spec §4.F:
// turning unused reads into sightings against the current participant
// roster, one notification-driven pass at a time.
package sightings

import (
	"context"
	"strconv"

	"github.com/chronokeep/portal-gateway/internal/model"
	"github.com/chronokeep/portal-gateway/pkg/log"
)

// DefaultSightingPeriod is used when the SETTING_SIGHTING_PERIOD row
// is missing or unparsable.
const DefaultSightingPeriod = 300

// Store is the slice of the data-access port the processor needs. A
// repository implementation satisfies this alongside its other
// interfaces.
type Store interface {
	UsefulReads() ([]model.Read, error)
	Participants() ([]model.Participant, error)
	BibChips() ([]model.BibChip, error)
	Setting(name string) (model.Setting, error)

	AddParticipants(participants []model.Participant) error
	AddBibChips(bibChips []model.BibChip) error
	UpdateReadStatuses(reads []model.Read) error
	SaveSightings(sightings []model.Sighting) error
}

// Broadcaster is notified once a pass has produced new sightings.
type Broadcaster interface {
	BroadcastSightings(sightings []model.Sighting)
}

// Processor runs one classification pass per notification, collapsing
// any notifications that arrive while a pass is already running or
// already pending into a single extra pass (spec §4.F "re-entrant via
// an internal dirty flag").
type Processor struct {
	store   Store
	bus     Broadcaster
	notify  chan struct{}
	stop    chan struct{}
	stopped chan struct{}
}

func New(store Store, bus Broadcaster) *Processor {
	return &Processor{
		store:   store,
		bus:     bus,
		notify:  make(chan struct{}, 1),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Notify schedules a pass. Safe to call from any goroutine, any
// number of times; at most one pass is pending at a time regardless
// of how many Notify calls overlap it.
func (p *Processor) Notify() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// Run processes notifications until Stop is called or ctx is done.
// Meant to be run in its own goroutine.
func (p *Processor) Run(ctx context.Context) {
	defer close(p.stopped)
	log.Infof("sightings processor started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-p.notify:
			p.drain()
		}
	}
}

// Stop signals Run to exit and blocks until it has.
func (p *Processor) Stop() {
	close(p.stop)
	<-p.stopped
}

// drain runs passes back to back until a pass finds no unused reads
// left to classify, matching the original's "keep processing reads
// until there's nothing left to do" inner loop.
func (p *Processor) drain() {
	for {
		more, err := p.pass()
		if err != nil {
			log.Errorf("sightings processor: %v", err)
			return
		}
		if !more {
			return
		}
	}
}

// pass runs exactly one classification pass. It returns more=true if
// it processed any reads (meaning another pass may find more work
// queued behind them).
func (p *Processor) pass() (more bool, err error) {
	reads, err := p.store.UsefulReads()
	if err != nil {
		return false, err
	}
	participants, err := p.store.Participants()
	if err != nil {
		return false, err
	}
	bibChips, err := p.store.BibChips()
	if err != nil {
		return false, err
	}

	bibToChip := make(map[string]string, len(bibChips))
	for _, bc := range bibChips {
		bibToChip[bc.Bib] = bc.Chip
	}
	chipToParticipant := make(map[string]model.Participant, len(participants))
	for _, part := range participants {
		if chip, ok := bibToChip[part.Bib]; ok {
			chipToParticipant[chip] = part
		}
	}

	var unused []model.Read
	used := make(map[string]model.Read)
	for _, r := range reads {
		if _, ok := bibToChip[r.Identifier]; r.IdentType == model.IdentTypeBib && !ok {
			log.Warnf("sightings processor: unresolved bib %q, skipping classification", r.Identifier)
			continue
		}
		switch r.Status {
		case model.ReadStatusUnused:
			unused = append(unused, r)
		case model.ReadStatusUsed:
			chip := resolveChip(r, bibToChip)
			if last, ok := used[chip]; !ok || last.Before(r) {
				used[chip] = r
			}
		}
	}
	if len(unused) == 0 {
		return false, nil
	}

	sortReadsBySecond(unused)

	period := p.sightingPeriod()

	var updatedReads []model.Read
	var newParticipants []model.Participant
	var newBibChips []model.BibChip
	var sightingsOut []model.Sighting

	for _, r := range unused {
		chip := resolveChip(r, bibToChip)

		if _, ok := chipToParticipant[chip]; !ok {
			part := model.PlaceholderParticipant(chip)
			newBibChips = append(newBibChips, model.BibChip{Bib: chip, Chip: chip})
			newParticipants = append(newParticipants, part)
			chipToParticipant[chip] = part
		}

		last, hasLast := used[chip]
		tooSoon := hasLast && !readOutsidePeriod(last, r, period)
		if tooSoon {
			r.Status = model.ReadStatusTooSoon
			updatedReads = append(updatedReads, r)
			continue
		}

		r.Status = model.ReadStatusUsed
		updatedReads = append(updatedReads, r)
		used[chip] = r
		sightingsOut = append(sightingsOut, model.Sighting{
			Participant: chipToParticipant[chip],
			Read:        r,
		})
	}

	if len(newParticipants) > 0 {
		if err := p.store.AddParticipants(newParticipants); err != nil {
			return false, err
		}
		if err := p.store.AddBibChips(newBibChips); err != nil {
			return false, err
		}

		participants, err = p.store.Participants()
		if err != nil {
			return false, err
		}
		bibChips, err = p.store.BibChips()
		if err != nil {
			return false, err
		}
		bibToChip = make(map[string]string, len(bibChips))
		for _, bc := range bibChips {
			bibToChip[bc.Bib] = bc.Chip
		}
		chipToParticipant = make(map[string]model.Participant, len(participants))
		for _, part := range participants {
			if chip, ok := bibToChip[part.Bib]; ok {
				chipToParticipant[chip] = part
			}
		}

		for i, s := range sightingsOut {
			chip := resolveChip(s.Read, bibToChip)
			part, ok := chipToParticipant[chip]
			if !ok {
				return false, errParticipantVanished{chip: chip}
			}
			sightingsOut[i].Participant = part
		}
	}

	if err := p.store.UpdateReadStatuses(updatedReads); err != nil {
		return false, err
	}
	if err := p.store.SaveSightings(sightingsOut); err != nil {
		return false, err
	}

	if p.bus != nil && len(sightingsOut) > 0 {
		p.bus.BroadcastSightings(sightingsOut)
	}

	return true, nil
}

// resolveChip returns the chip identifier a read's classification
// should key off of: the read's own identifier for a chip-typed read,
// or the bib→chip lookup for a bib-typed one (spec §4.F step 3).
func resolveChip(r model.Read, bibToChip map[string]string) string {
	if r.IdentType != model.IdentTypeBib {
		return r.Identifier
	}
	if chip, ok := bibToChip[r.Identifier]; ok {
		return chip
	}
	log.Warnf("sightings processor: unresolved bib %q, skipping classification", r.Identifier)
	return r.Identifier
}

// readOutsidePeriod reports whether r falls outside last's sighting
// period, i.e. whether r should be classified as a new sighting
// rather than too_soon (spec §4.F step 6, §8 invariant 5).
func readOutsidePeriod(last, r model.Read, period uint64) bool {
	boundarySeconds, boundaryMillis := model.AddSeconds(last.Seconds, last.Milliseconds, period)
	tooSoon := boundarySeconds > r.Seconds ||
		(boundarySeconds == r.Seconds && boundaryMillis > r.Milliseconds)
	return !tooSoon
}

func (p *Processor) sightingPeriod() uint64 {
	setting, err := p.store.Setting(model.SettingSightingPeriod)
	if err != nil {
		return DefaultSightingPeriod
	}
	period, err := strconv.ParseUint(setting.Value, 10, 64)
	if err != nil {
		log.Warnf("sightings processor: invalid %s value %q, using default", model.SettingSightingPeriod, setting.Value)
		return DefaultSightingPeriod
	}
	return period
}

func sortReadsBySecond(reads []model.Read) {
	// insertion sort is adequate here: a notification batch is the
	// handful of reads that arrived since the last pass, not the
	// whole table.
	for i := 1; i < len(reads); i++ {
		for j := i; j > 0 && reads[j].Before(reads[j-1]); j-- {
			reads[j], reads[j-1] = reads[j-1], reads[j]
		}
	}
}

type errParticipantVanished struct{ chip string }

func (e errParticipantVanished) Error() string {
	return "participant not found after re-load for chip " + e.chip
}
